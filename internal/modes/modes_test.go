package modes

import (
	"context"
	"errors"
	"testing"
	"time"

	"mirra/internal/copier"
	"mirra/internal/gateway/schwab"
	"mirra/internal/ledger"
	"mirra/internal/pkg/retry"
	"mirra/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	snaps map[string]types.AccountSnapshot
	errs  map[string]error
}

func (f *fakeProvider) GetSnapshot(_ context.Context, ref string) (types.AccountSnapshot, error) {
	if err, ok := f.errs[ref]; ok {
		return types.AccountSnapshot{}, err
	}
	snap, ok := f.snaps[ref]
	if !ok {
		return types.AccountSnapshot{}, errors.New("unknown account " + ref)
	}
	return snap, nil
}

type mockPlacer struct {
	mock.Mock
}

func (m *mockPlacer) PlaceOrder(ctx context.Context, ref string, intent types.OrderIntent) (string, error) {
	args := m.Called(ctx, ref, intent)
	return args.String(0), args.Error(1)
}

var _ schwab.SnapshotProvider = (*fakeProvider)(nil)
var _ schwab.OrderPlacer = (*mockPlacer)(nil)

func snapshot(id string, equity, cash float64, positions ...types.Position) types.AccountSnapshot {
	var posValue float64
	for _, p := range positions {
		posValue += p.MarketValue
	}
	return types.AccountSnapshot{
		AccountID: id,
		Balances: types.Balances{
			LiquidationValue: equity,
			CashBalance:      cash,
			PositionsValue:   posValue,
		},
		Positions: positions,
		FetchedAt: time.Now(),
	}
}

func pos(symbol string, qty, price float64) types.Position {
	return types.Position{
		Symbol:      symbol,
		Side:        types.SideLong,
		Quantity:    qty,
		Price:       price,
		MarketValue: qty * price,
	}
}

func baseSpec() ClientSpec {
	return ClientSpec{
		ID:       "c1",
		Name:     "client one",
		MainRef:  "MAIN",
		SlaveRef: "SLAVE",
		Scale: types.ScaleConfig{
			Method:       types.ScaleDynamicRatio,
			UsagePercent: 100,
			Rounding:     types.RoundDown,
		},
	}
}

func TestAvailableCash(t *testing.T) {
	margin := types.ScaleConfig{UseMargin: true, MarginPercent: 50}

	t.Run("no buying power reported", func(t *testing.T) {
		bal := types.Balances{CashBalance: 5000}
		assert.Equal(t, 5000.0, availableCash(bal, margin, 0))
	})

	t.Run("margin disabled uses cash", func(t *testing.T) {
		bal := types.Balances{CashBalance: 5000, BuyingPower: 10000}
		assert.Equal(t, 5000.0, availableCash(bal, types.ScaleConfig{}, 0))
	})

	t.Run("cash account detected", func(t *testing.T) {
		// Buying power within 10% of cash means no real margin.
		bal := types.Balances{CashBalance: 5000, BuyingPower: 5400}
		assert.Equal(t, 5000.0, availableCash(bal, margin, 0))
	})

	t.Run("margin capped by user limit", func(t *testing.T) {
		bal := types.Balances{
			LiquidationValue: 10000,
			CashBalance:      2000,
			BuyingPower:      20000,
			PositionsValue:   8000,
		}
		// User cap 10000*1.5=15000 < buying power, minus 8000 held.
		assert.Equal(t, 7000.0, availableCash(bal, margin, 0))
	})

	t.Run("margin capped by buying power", func(t *testing.T) {
		bal := types.Balances{
			LiquidationValue: 10000,
			CashBalance:      2000,
			BuyingPower:      12000,
			PositionsValue:   8000,
		}
		assert.Equal(t, 4000.0, availableCash(bal, margin, 0))
	})

	t.Run("never negative", func(t *testing.T) {
		bal := types.Balances{
			LiquidationValue: 1000,
			CashBalance:      10,
			BuyingPower:      1200,
			PositionsValue:   5000,
		}
		assert.Equal(t, 0.0, availableCash(bal, margin, 0))
	})
}

func TestRunPassShortCircuits(t *testing.T) {
	t.Run("zero scale pauses trading", func(t *testing.T) {
		spec := baseSpec()
		spec.Scale = types.ScaleConfig{
			Method:         types.ScaleFixedAmount,
			FixedAmount:    5000,
			EquityAtConfig: 15000,
			Rounding:       types.RoundDown,
		}
		main := snapshot("m", 100000, 100000)
		// protected = 15000-5000 = 10000; equity below it pauses.
		slave := snapshot("s", 9000, 9000, pos("SPY", 5, 480))

		called := false
		res := runPass(context.Background(), types.ModeLive, spec, main, slave, func(context.Context, []types.OrderIntent) []types.OrderResult {
			called = true
			return nil
		})

		assert.False(t, called)
		assert.Equal(t, types.SyncSuccess, res.Status)
		assert.Zero(t, res.Scale)
		assert.Empty(t, res.Deltas)
		assert.Contains(t, res.Reason, "paused")
	})

	t.Run("positions in sync", func(t *testing.T) {
		spec := baseSpec()
		main := snapshot("m", 100000, 4000, pos("SPY", 100, 480))
		slave := snapshot("s", 10000, 400, pos("SPY", 10, 480))

		res := runPass(context.Background(), types.ModeLive, spec, main, slave, nil)

		assert.Equal(t, types.SyncSuccess, res.Status)
		assert.InDelta(t, 0.1, res.Scale, 1e-9)
		assert.Empty(t, res.Deltas)
		assert.Equal(t, "positions in sync", res.Reason)
	})

	t.Run("scale error surfaces", func(t *testing.T) {
		spec := baseSpec()

		res := runPass(context.Background(), types.ModeLive, spec, snapshot("m", 0, 0), snapshot("s", 10000, 0), nil)

		assert.Equal(t, types.SyncError, res.Status)
		require.Len(t, res.Errors, 1)
	})
}

func TestRunPassExecution(t *testing.T) {
	spec := baseSpec()
	main := snapshot("m", 100000, 10000, pos("SPY", 100, 480), pos("QQQ", 50, 400))
	slave := snapshot("s", 10000, 5000, pos("SPY", 20, 480))

	var got []types.OrderIntent
	res := runPass(context.Background(), types.ModeLive, spec, main, slave, func(_ context.Context, intents []types.OrderIntent) []types.OrderResult {
		got = intents
		out := make([]types.OrderResult, 0, len(intents))
		for i, in := range intents {
			r := types.OrderResult{Symbol: in.Symbol, Action: in.Action, Quantity: in.Quantity, Status: types.OrderSuccess}
			if i == len(intents)-1 {
				r.Status = types.OrderError
				r.Error = "rejected"
			}
			out = append(out, r)
		}
		return out
	})

	// scale 0.1: SPY 10-20=-10 sell first, then QQQ 5 buy.
	require.Len(t, got, 2)
	assert.Equal(t, "SPY", got[0].Symbol)
	assert.Equal(t, types.ActionSell, got[0].Action)
	assert.Equal(t, 10, got[0].Quantity)
	assert.Equal(t, "QQQ", got[1].Symbol)
	assert.Equal(t, types.ActionBuy, got[1].Action)
	assert.Equal(t, 5, got[1].Quantity)

	assert.Equal(t, 2, res.Summary.OrdersPlaced)
	assert.Equal(t, 1, res.Summary.OrdersSuccess)
	assert.Equal(t, 1, res.Summary.OrdersFailed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "QQQ")
}

func TestRunPassMonitorDoesNotExecute(t *testing.T) {
	spec := baseSpec()
	main := snapshot("m", 100000, 10000, pos("SPY", 100, 480))
	slave := snapshot("s", 10000, 5000)

	res := runPass(context.Background(), types.ModeMonitorLive, spec, main, slave, nil)

	assert.Equal(t, map[string]int{"SPY": 10}, res.ValidDeltas)
	assert.Empty(t, res.Results)
	assert.Zero(t, res.Summary.OrdersPlaced)
}

func TestLiveReconcile(t *testing.T) {
	spec := baseSpec()
	main := snapshot("m", 100000, 10000, pos("SPY", 100, 480))
	slave := snapshot("s", 10000, 6000)

	t.Run("places orders and records history", func(t *testing.T) {
		placer := &mockPlacer{}
		placer.On("PlaceOrder", mock.Anything, "SLAVE", mock.Anything).Return("1001", nil)

		hist := NewHistory(t.TempDir())
		live := &Live{
			Spec:     spec,
			Provider: &fakeProvider{snaps: map[string]types.AccountSnapshot{"MAIN": main, "SLAVE": slave}},
			Orders:   placer,
			Exec:     retry.NewExecutor(0, time.Millisecond),
			Tracker:  retry.NewTracker(),
			History:  hist,
		}

		res, err := live.Reconcile(context.Background(), Options{})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Summary.OrdersSuccess)
		require.Len(t, res.Results, 1)
		assert.Equal(t, "1001", res.Results[0].OrderID)
		assert.Equal(t, types.OrderSuccess, res.Results[0].Status)

		entries := hist.Tail("c1", false, 0)
		require.Len(t, entries, 1)
		assert.Equal(t, res.ID, entries[0].ID)
		placer.AssertExpectations(t)
	})

	t.Run("no history when nothing placed", func(t *testing.T) {
		hist := NewHistory(t.TempDir())
		insync := snapshot("s", 10000, 5200, pos("SPY", 10, 480))
		live := &Live{
			Spec:     spec,
			Provider: &fakeProvider{snaps: map[string]types.AccountSnapshot{"MAIN": main, "SLAVE": insync}},
			Exec:     retry.NewExecutor(0, time.Millisecond),
			Tracker:  retry.NewTracker(),
			History:  hist,
		}

		res, err := live.Reconcile(context.Background(), Options{})
		require.NoError(t, err)
		assert.Zero(t, res.Summary.OrdersPlaced)
		assert.Empty(t, hist.Tail("c1", false, 0))
	})

	t.Run("critical error halts the rest of the pass", func(t *testing.T) {
		wide := snapshot("m", 100000, 10000, pos("AAA", 100, 50), pos("BBB", 100, 50))
		empty := snapshot("s", 10000, 10000)

		placer := &mockPlacer{}
		placer.On("PlaceOrder", mock.Anything, "SLAVE", mock.Anything).
			Return("", &retry.HTTPError{StatusCode: 401, Body: `{"message":"token expired"}`}).Once()

		stopSpec := spec
		stopSpec.StopOnCritical = true
		live := &Live{
			Spec:     stopSpec,
			Provider: &fakeProvider{snaps: map[string]types.AccountSnapshot{"MAIN": wide, "SLAVE": empty}},
			Orders:   placer,
			Exec:     retry.NewExecutor(0, time.Millisecond),
			Tracker:  retry.NewTracker(),
			History:  NewHistory(t.TempDir()),
		}

		res, err := live.Reconcile(context.Background(), Options{})
		require.NoError(t, err)
		require.Len(t, res.Results, 2)
		assert.Equal(t, types.OrderError, res.Results[0].Status)
		assert.Equal(t, types.OrderSkipped, res.Results[1].Status)
		assert.Contains(t, res.Results[1].Error, "stopped")
		placer.AssertExpectations(t)
	})

	t.Run("snapshot failure returns error result", func(t *testing.T) {
		live := &Live{
			Spec:     spec,
			Provider: &fakeProvider{errs: map[string]error{"MAIN": errors.New("api down")}},
			Exec:     retry.NewExecutor(0, time.Millisecond),
			Tracker:  retry.NewTracker(),
		}
		res, err := live.Reconcile(context.Background(), Options{})
		require.Error(t, err)
		assert.Equal(t, types.SyncError, res.Status)
	})
}

func TestSimulationReconcile(t *testing.T) {
	spec := baseSpec()
	main := snapshot("m", 100000, 10000, pos("SPY", 100, 480))

	newBook := func(t *testing.T) *ledger.Ledger {
		t.Helper()
		book := ledger.New(t.TempDir() + "/ledger.json")
		require.NoError(t, book.RefreshMain(main))
		require.NoError(t, book.SeedClient("c1", snapshot("s", 10000, 10000)))
		return book
	}

	t.Run("virtual fills move the book", func(t *testing.T) {
		book := newBook(t)
		hist := NewHistory(t.TempDir())
		sim := &Simulation{
			Spec:    spec,
			Main:    &fakeProvider{snaps: map[string]types.AccountSnapshot{"MAIN": main}},
			Book:    book,
			History: hist,
		}

		res, err := sim.Reconcile(context.Background(), Options{})
		require.NoError(t, err)
		require.Len(t, res.Results, 1)
		assert.Equal(t, types.OrderSimulated, res.Results[0].Status)
		assert.True(t, len(res.Results[0].OrderID) > 4 && res.Results[0].OrderID[:4] == "SIM-")

		after, err := book.GetSnapshot(context.Background(), "c1")
		require.NoError(t, err)
		p, ok := after.Position("SPY")
		require.True(t, ok)
		assert.Equal(t, 10.0, p.Quantity)
		assert.InDelta(t, 10000-10*480, after.Balances.CashBalance, 1e-9)
	})

	t.Run("history appended even when in sync", func(t *testing.T) {
		book := newBook(t)
		hist := NewHistory(t.TempDir())
		sim := &Simulation{
			Spec:    spec,
			Main:    &fakeProvider{snaps: map[string]types.AccountSnapshot{"MAIN": main}},
			Book:    book,
			History: hist,
		}

		_, err := sim.Reconcile(context.Background(), Options{})
		require.NoError(t, err)
		_, err = sim.Reconcile(context.Background(), Options{})
		require.NoError(t, err)

		entries := hist.Tail("c1", true, 0)
		require.Len(t, entries, 2)
		assert.Equal(t, "positions in sync", entries[1].Reason)
	})
}

func TestMonitorModes(t *testing.T) {
	spec := baseSpec()
	main := snapshot("m", 100000, 10000, pos("SPY", 100, 480))

	t.Run("monitor live tags results", func(t *testing.T) {
		mon := &MonitorLive{
			Spec: spec,
			Provider: &fakeProvider{snaps: map[string]types.AccountSnapshot{
				"MAIN":  main,
				"SLAVE": snapshot("s", 10000, 10000),
			}},
		}
		res, err := mon.Reconcile(context.Background(), Options{})
		require.NoError(t, err)
		assert.Equal(t, types.ModeMonitorLive, res.Mode)
		assert.Equal(t, map[string]int{"SPY": 10}, res.ValidDeltas)
		assert.Empty(t, res.Results)
	})

	t.Run("monitor simulation reads the book", func(t *testing.T) {
		book := ledger.New(t.TempDir() + "/ledger.json")
		require.NoError(t, book.SeedClient("c1", snapshot("s", 10000, 10000)))
		mon := &MonitorSimulation{
			Spec: spec,
			Main: &fakeProvider{snaps: map[string]types.AccountSnapshot{"MAIN": main}},
			Book: book,
		}
		res, err := mon.Reconcile(context.Background(), Options{})
		require.NoError(t, err)
		assert.Equal(t, types.ModeMonitorSimulation, res.Mode)
		assert.Equal(t, map[string]int{"SPY": 10}, res.ValidDeltas)
	})
}

func TestHistoryDryCap(t *testing.T) {
	hist := NewHistory(t.TempDir())
	for i := 0; i < dryHistoryCap+10; i++ {
		res := newResult(types.ModeSimulation, 0.1, 100, 10)
		require.NoError(t, hist.Append("c1", res))
	}
	entries := hist.Tail("c1", true, 0)
	assert.Len(t, entries, dryHistoryCap)
}

func TestDeltaLines(t *testing.T) {
	deltas := map[string]int{"SPY": 5, "QQQ": -3}
	mainPrices := map[string]float64{"SPY": 480, "QQQ": 400}
	slavePrices := map[string]float64{"QQQ": 395}

	lines := DeltaLines(deltas, mainPrices, slavePrices)
	require.Len(t, lines, 2)

	// Sorted by symbol; sell priced from the slave side.
	assert.Equal(t, types.ActionSell, lines[0].Action)
	assert.Equal(t, "QQQ", lines[0].Symbol)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.InDelta(t, 3*395.0, lines[0].Value, 1e-9)

	assert.Equal(t, types.ActionBuy, lines[1].Action)
	assert.Equal(t, "SPY", lines[1].Symbol)
	assert.InDelta(t, 5*480.0, lines[1].Value, 1e-9)
}

func TestValidatorLimitsFlowThroughPass(t *testing.T) {
	spec := baseSpec()
	spec.Limits = copier.Limits{MaxOrderSize: 4}
	main := snapshot("m", 100000, 10000, pos("SPY", 100, 480))
	slave := snapshot("s", 10000, 10000)

	res := runPass(context.Background(), types.ModeMonitorLive, spec, main, slave, nil)
	assert.Equal(t, map[string]int{"SPY": 10}, res.Deltas)
	assert.Equal(t, map[string]int{"SPY": 4}, res.ValidDeltas)
}
