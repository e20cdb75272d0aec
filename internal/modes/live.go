package modes

import (
	"context"
	"time"

	"mirra/internal/gateway/schwab"
	"mirra/internal/logger"
	"mirra/internal/pkg/retry"
	"mirra/internal/types"
)

// Live reconciles against the brokerage with real orders. Placement runs
// through the retry executor, and the session tracker can halt the rest of
// a pass after critical or repeated failures.
type Live struct {
	Spec     ClientSpec
	Provider schwab.SnapshotProvider
	Orders   schwab.OrderPlacer
	Exec     *retry.Executor
	Tracker  *retry.Tracker
	History  *History
}

func (l *Live) Mode() string     { return types.ModeLive }
func (l *Live) ClientID() string { return l.Spec.ID }

func (l *Live) Reconcile(ctx context.Context, opts Options) (types.SyncResult, error) {
	main, err := l.Provider.GetSnapshot(ctx, l.Spec.MainRef)
	if err != nil {
		return errorResult(types.ModeLive, err), err
	}
	slave, err := l.Provider.GetSnapshot(ctx, l.Spec.SlaveRef)
	if err != nil {
		return errorResult(types.ModeLive, err), err
	}

	res := runPass(ctx, types.ModeLive, l.Spec, main, slave, l.execute)

	// A pass that placed nothing is routine noise; only real activity is
	// worth a history entry.
	if !opts.SkipHistory && res.Summary.OrdersPlaced > 0 && l.History != nil {
		if err := l.History.Append(l.Spec.ID, res); err != nil {
			logger.Warnf("live %s: history append failed: %v", l.Spec.ID, err)
		}
	}
	return res, nil
}

func (l *Live) execute(ctx context.Context, intents []types.OrderIntent) []types.OrderResult {
	results := make([]types.OrderResult, 0, len(intents))
	for _, intent := range intents {
		base := types.OrderResult{
			Symbol:    intent.Symbol,
			Action:    intent.Action,
			Quantity:  intent.Quantity,
			Price:     intent.Price,
			Timestamp: time.Now(),
		}
		if l.Tracker.ShouldStop(l.Spec.StopOnCritical) {
			base.Status = types.OrderSkipped
			base.Error = "stopped due to critical errors"
			results = append(results, base)
			continue
		}
		var orderID string
		err := l.Exec.Do(ctx, "place order "+intent.Symbol, func() error {
			var placeErr error
			orderID, placeErr = l.Orders.PlaceOrder(ctx, l.Spec.SlaveRef, intent)
			return placeErr
		})
		if err != nil {
			ce := retry.Classify(err, intent.Symbol)
			l.Tracker.RecordError(ce)
			base.Status = types.OrderError
			base.Error = ce.Error()
			logger.Errorf("live %s: %s %s x%d failed: %v", l.Spec.ID, intent.Action, intent.Symbol, intent.Quantity, ce)
		} else {
			l.Tracker.RecordSuccess()
			base.Status = types.OrderSuccess
			base.OrderID = orderID
			logger.Infof("live %s: %s %s x%d ok (order %s)", l.Spec.ID, intent.Action, intent.Symbol, intent.Quantity, orderID)
		}
		results = append(results, base)
	}
	return results
}
