package worker

import (
	"context"
	"errors"
	"time"

	"mirra/internal/gateway/notifier"
	"mirra/internal/logger"
	"mirra/internal/modes"
	"mirra/internal/types"

	"github.com/google/uuid"
)

var (
	errNoLiveFactory = errors.New("apply: no live strategy factory configured")
	errNoBook        = errors.New("apply: no virtual ledger configured")
)

// handleApply runs one explicit reconciliation-with-orders pass out of band.
// Only monitor modes honor it; the caller reverts the command to start
// afterwards so passive monitoring resumes.
func (w *Worker) handleApply(ctx context.Context) {
	if !isMonitorMode(w.Mode) {
		logger.Warnf("worker: apply ignored in %s mode", w.Mode)
		return
	}

	var total int
	var err error
	switch w.Mode {
	case types.ModeMonitorLive:
		total, err = w.applyLive(ctx)
	case types.ModeMonitorSimulation:
		total, err = w.applySimulation()
	}
	if err != nil {
		logger.Errorf("worker: apply failed: %v", err)
		if serr := w.Status.Mutate(func(s *Status) { s.Error = "apply failed: " + err.Error() }); serr != nil {
			logger.Warnf("worker: apply error record failed: %v", serr)
		}
		return
	}

	if w.Delta != nil {
		if cerr := w.Delta.Clear(); cerr != nil {
			logger.Warnf("worker: delta clear after apply failed: %v", cerr)
		}
	}
	if w.Changes != nil {
		w.Changes.Forget()
	}
	logger.Infof("worker: apply done, %d orders", total)
	w.notify(notifier.FormatApplyResult(w.Mode, total, time.Now()))
}

// applyLive places the monitored deltas as real orders by running a full
// live pass per client. Fresh snapshots, not the stored delta, drive the
// orders: the market has moved since the delta was displayed.
func (w *Worker) applyLive(ctx context.Context) (int, error) {
	if w.NewLive == nil {
		return 0, errNoLiveFactory
	}
	total := 0
	for _, c := range w.Clients {
		live := w.NewLive(c.Spec)
		res, err := live.Reconcile(ctx, modes.Options{})
		if err != nil {
			logger.Errorf("worker: apply for %s failed: %v", c.Spec.ID, err)
			continue
		}
		total += res.Summary.OrdersPlaced
		if res.Summary.OrdersPlaced > 0 {
			w.notify(notifier.FormatSyncSummary(types.ModeLive, c.Spec.Name, res))
		}
	}
	return total, nil
}

// applySimulation replays the stored current delta into the virtual ledger
// as simulated fills and records them in the dry history.
func (w *Worker) applySimulation() (int, error) {
	if w.Book == nil || w.Delta == nil {
		return 0, errNoBook
	}
	stored := w.Delta.Load()
	total := 0
	for _, c := range w.Clients {
		cd, ok := stored[c.Spec.ID]
		if !ok || len(cd.Deltas) == 0 {
			continue
		}
		fills := make([]types.OrderResult, 0, len(cd.Deltas))
		for _, d := range cd.Deltas {
			price := 0.0
			if d.Quantity > 0 {
				price = d.Value / float64(d.Quantity)
			}
			fills = append(fills, types.OrderResult{
				Symbol:    d.Symbol,
				Action:    d.Action,
				Quantity:  d.Quantity,
				Price:     price,
				Status:    types.OrderSimulated,
				OrderID:   "SIM-" + uuid.NewString()[:8],
				Timestamp: time.Now(),
			})
		}
		if err := w.Book.ApplyFills(c.Spec.ID, fills); err != nil {
			logger.Errorf("worker: apply fills for %s failed: %v", c.Spec.ID, err)
			continue
		}
		total += len(fills)

		if w.History != nil {
			res := types.SyncResult{
				ID:          uuid.NewString(),
				Timestamp:   time.Now(),
				Status:      types.SyncSuccess,
				Mode:        types.ModeMonitorSimulation,
				Deltas:      map[string]int{},
				ValidDeltas: map[string]int{},
				Errors:      []string{},
				Results:     fills,
				Summary: types.SyncSummary{
					TotalDeltas:   len(fills),
					OrdersPlaced:  len(fills),
					OrdersSuccess: len(fills),
				},
				Reason: "applied monitored delta",
			}
			if err := w.History.Append(c.Spec.ID, res); err != nil {
				logger.Warnf("worker: apply history for %s failed: %v", c.Spec.ID, err)
			}
		}
	}
	return total, nil
}
