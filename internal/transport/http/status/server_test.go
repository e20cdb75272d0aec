package statushttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mirra/internal/modes"
	"mirra/internal/types"
	"mirra/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *worker.StatusFile, *worker.CurrentDeltaFile, *modes.History) {
	t.Helper()
	dir := t.TempDir()
	status := worker.NewStatusFile(filepath.Join(dir, "status.json"))
	delta := worker.NewCurrentDeltaFile(filepath.Join(dir, "delta.json"))
	history := modes.NewHistory(dir)

	srv, err := NewServer(ServerConfig{
		Status:  status,
		Delta:   delta,
		History: history,
	})
	require.NoError(t, err)
	return srv, status, delta, history
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	rec := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	srv, status, _, _ := newTestServer(t)
	now := time.Now()
	require.NoError(t, status.Save(worker.Status{
		Command:       worker.CommandStart,
		Running:       true,
		PID:           os.Getpid(),
		LastHeartbeat: &now,
	}))

	rec := get(t, srv, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status worker.Status `json:"status"`
		Alive  bool          `json:"alive"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Alive)
	assert.Equal(t, worker.CommandStart, body.Status.Command)
}

func TestDeltaEndpoint(t *testing.T) {
	srv, _, delta, _ := newTestServer(t)
	require.NoError(t, delta.Save(map[string]types.ClientDelta{
		"c1": {
			ClientName: "client one",
			Timestamp:  time.Now(),
			Deltas: []types.DeltaLine{
				{Action: types.ActionBuy, Symbol: "SPY", Quantity: 5, Value: 2400},
			},
		},
	}))

	rec := get(t, srv, "/api/delta")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]types.ClientDelta
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "c1")
	assert.Equal(t, "SPY", body["c1"].Deltas[0].Symbol)
}

func TestHistoryEndpoint(t *testing.T) {
	srv, _, _, history := newTestServer(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, history.Append("c1", types.SyncResult{
			ID:        "r" + string(rune('0'+i)),
			Timestamp: time.Now(),
			Status:    types.SyncSuccess,
			Mode:      types.ModeLive,
		}))
	}

	rec := get(t, srv, "/api/history/c1?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body []types.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "r2", body[1].ID)

	rec = get(t, srv, "/api/history/c1?limit=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, srv, "/api/history/unknown")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body)
}

func TestServerRequiresStatusFile(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	require.Error(t, err)
}
