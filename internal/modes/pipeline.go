package modes

import (
	"context"
	"sort"
	"time"

	"mirra/internal/copier"
	"mirra/internal/logger"
	"mirra/internal/types"

	"github.com/google/uuid"
)

// executorFunc turns validated intents into terminal order results. A nil
// executor means a monitor pass: deltas are computed but nothing runs.
type executorFunc func(ctx context.Context, intents []types.OrderIntent) []types.OrderResult

func newResult(mode string, scale, mainEquity, slaveEquity float64) types.SyncResult {
	return types.SyncResult{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		Status:      types.SyncSuccess,
		Mode:        mode,
		Scale:       scale,
		MainEquity:  mainEquity,
		SlaveEquity: slaveEquity,
		Deltas:      map[string]int{},
		ValidDeltas: map[string]int{},
		Results:     []types.OrderResult{},
		Errors:      []string{},
	}
}

func errorResult(mode string, err error) types.SyncResult {
	res := newResult(mode, 0, 0, 0)
	res.Status = types.SyncError
	res.Errors = append(res.Errors, err.Error())
	return res
}

// runPass is the pipeline every mode shares: scale, deltas, short-circuit
// when in sync, price lookup, cash ceiling, validation, then execution
// when the mode executes at all.
func runPass(ctx context.Context, mode string, spec ClientSpec, main, slave types.AccountSnapshot, exec executorFunc) types.SyncResult {
	var calc copier.Calculator

	scale, err := calc.Scale(main.Equity(), slave.Equity(), spec.Scale)
	if err != nil {
		logger.Warnf("%s %s: scale failed: %v", mode, spec.ID, err)
		res := errorResult(mode, err)
		res.MainEquity = main.Equity()
		res.SlaveEquity = slave.Equity()
		return res
	}

	res := newResult(mode, scale, main.Equity(), slave.Equity())
	if scale == 0 {
		res.Reason = "scale is zero, trading paused"
		return res
	}

	deltas := calc.AllDeltas(main.Positions, slave.Positions, scale, spec.Scale.Rounding, spec.Scale.DeadBand)
	res.Deltas = deltas
	res.Summary.TotalDeltas = len(deltas)
	if len(deltas) == 0 {
		res.Reason = "positions in sync"
		return res
	}

	// Prices come from the main snapshot; orphan closes fall back to the
	// slave's own price.
	prices := main.PriceMap()
	for sym, price := range slave.PriceMap() {
		if _, ok := prices[sym]; !ok {
			prices[sym] = price
		}
	}

	cash := availableCash(slave.Balances, spec.Scale, spec.MarginDetectFactor)

	validator := copier.NewValidator(spec.Limits)
	valid, messages := validator.ValidateAll(deltas, prices, cash)
	res.ValidDeltas = valid
	for _, msg := range messages {
		logger.Infof("%s %s: %s", mode, spec.ID, msg)
	}

	if exec == nil || len(valid) == 0 {
		return res
	}

	intents := intentsFromDeltas(valid, prices)
	res.Results = exec(ctx, intents)
	res.Summary.OrdersPlaced = len(res.Results)
	for _, r := range res.Results {
		switch r.Status {
		case types.OrderSuccess, types.OrderSimulated:
			res.Summary.OrdersSuccess++
		case types.OrderError:
			res.Summary.OrdersFailed++
			if r.Error != "" {
				res.Errors = append(res.Errors, r.Symbol+": "+r.Error)
			}
		}
	}
	return res
}

// intentsFromDeltas orders execution sells-first so raised cash is booked
// before buys run.
func intentsFromDeltas(deltas map[string]int, prices map[string]float64) []types.OrderIntent {
	symbols := make([]string, 0, len(deltas))
	for sym := range deltas {
		symbols = append(symbols, sym)
	}
	sort.Slice(symbols, func(i, j int) bool {
		si, sj := deltas[symbols[i]] < 0, deltas[symbols[j]] < 0
		if si != sj {
			return si
		}
		return symbols[i] < symbols[j]
	})
	out := make([]types.OrderIntent, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, types.IntentFromDelta(sym, deltas[sym], prices[sym]))
	}
	return out
}

// DeltaLines renders validated deltas as monitor-report rows. Sells are
// priced from the slave's own holdings, buys from the main account.
func DeltaLines(deltas map[string]int, mainPrices, slavePrices map[string]float64) []types.DeltaLine {
	symbols := make([]string, 0, len(deltas))
	for sym := range deltas {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	out := make([]types.DeltaLine, 0, len(symbols))
	for _, sym := range symbols {
		d := deltas[sym]
		line := types.DeltaLine{Symbol: sym, Quantity: d}
		price := mainPrices[sym]
		if d < 0 {
			line.Action = types.ActionSell
			line.Quantity = -d
			if p, ok := slavePrices[sym]; ok {
				price = p
			}
		} else {
			line.Action = types.ActionBuy
		}
		line.Value = float64(line.Quantity) * price
		out = append(out, line)
	}
	return out
}
