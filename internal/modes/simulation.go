package modes

import (
	"context"
	"time"

	"mirra/internal/gateway/schwab"
	"mirra/internal/ledger"
	"mirra/internal/logger"
	"mirra/internal/types"

	"github.com/google/uuid"
)

// Simulation reconciles the dry book against the live main account. Fills
// are virtual: they move the client's ledger cash and positions and never
// touch the brokerage.
type Simulation struct {
	Spec ClientSpec
	Main schwab.SnapshotProvider
	Book *ledger.Ledger

	History *History
}

func (s *Simulation) Mode() string     { return types.ModeSimulation }
func (s *Simulation) ClientID() string { return s.Spec.ID }

func (s *Simulation) Reconcile(ctx context.Context, opts Options) (types.SyncResult, error) {
	main, err := s.Main.GetSnapshot(ctx, s.Spec.MainRef)
	if err != nil {
		return errorResult(types.ModeSimulation, err), err
	}
	slave, err := s.Book.GetSnapshot(ctx, s.Spec.ID)
	if err != nil {
		return errorResult(types.ModeSimulation, err), err
	}

	res := runPass(ctx, types.ModeSimulation, s.Spec, main, slave, s.execute)

	// Simulation history always appends, even no-op passes: the dry book's
	// drift over time is the whole point of the mode.
	if !opts.SkipHistory && s.History != nil {
		if err := s.History.Append(s.Spec.ID, res); err != nil {
			logger.Warnf("simulation %s: history append failed: %v", s.Spec.ID, err)
		}
	}
	return res, nil
}

func (s *Simulation) execute(_ context.Context, intents []types.OrderIntent) []types.OrderResult {
	results := make([]types.OrderResult, 0, len(intents))
	for _, intent := range intents {
		results = append(results, types.OrderResult{
			Symbol:    intent.Symbol,
			Action:    intent.Action,
			Quantity:  intent.Quantity,
			Price:     intent.Price,
			Status:    types.OrderSimulated,
			OrderID:   "SIM-" + uuid.NewString()[:8],
			Timestamp: time.Now(),
		})
	}
	if err := s.Book.ApplyFills(s.Spec.ID, results); err != nil {
		logger.Warnf("simulation %s: ledger update failed: %v", s.Spec.ID, err)
		for i := range results {
			results[i].Status = types.OrderError
			results[i].Error = err.Error()
		}
	}
	return results
}
