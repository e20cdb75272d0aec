// Package copier holds the position-copy arithmetic: the scale factor, the
// per-symbol delta computation and the order risk validator.
package copier

import (
	"errors"
	"fmt"
	"math"

	"mirra/internal/types"
)

var ErrInvalidConfig = errors.New("invalid scale config")

// Calculator derives the scale factor and the per-symbol deltas from a pair
// of account snapshots.
type Calculator struct{}

// Scale computes the fraction applied to the main account's share counts.
//
// DYNAMIC_RATIO: (usage/100) * slaveEquity / mainEquity.
//
// FIXED_AMOUNT: equity below (equityAtConfig - fixedAmount) is protected and
// never traded; only equity above that floor works. A client whose equity has
// fallen to or below the floor gets scale 0 — trading simply pauses, this is
// not an error.
func (Calculator) Scale(mainEquity, slaveEquity float64, cfg types.ScaleConfig) (float64, error) {
	if mainEquity <= 0 {
		return 0, fmt.Errorf("%w: main equity must be positive, got %.2f", ErrInvalidConfig, mainEquity)
	}
	switch cfg.Method {
	case types.ScaleFixedAmount:
		if cfg.FixedAmount <= 0 {
			return 0, fmt.Errorf("%w: fixed amount must be positive", ErrInvalidConfig)
		}
		nomin := cfg.EquityAtConfig
		if nomin <= 0 {
			// Legacy client entries predate equity_at_config; treat the
			// current equity as the baseline.
			nomin = slaveEquity
		}
		protected := nomin - cfg.FixedAmount
		working := slaveEquity - protected
		if working <= 0 {
			return 0, nil
		}
		return working / mainEquity, nil
	default:
		usage := cfg.UsagePercent
		if usage <= 0 {
			usage = 100
		}
		return (usage / 100) * slaveEquity / mainEquity, nil
	}
}

// TargetQuantity converts a main-account quantity into the client's whole
// share target.
func (Calculator) TargetQuantity(mainQty, scale float64, rounding types.Rounding) int {
	target := mainQty * scale
	switch rounding {
	case types.RoundUp:
		n := int(target)
		if target > float64(n) {
			n++
		}
		return n
	case types.RoundNearest:
		return int(math.Floor(target + 0.5))
	default:
		return int(target)
	}
}

// Delta returns target-current, suppressed to 0 when the relative change
// against an existing holding falls inside the dead band. Opening a new
// position (current == 0) is never suppressed.
func (Calculator) Delta(target, current int, threshold float64) int {
	delta := target - current
	if delta == 0 {
		return 0
	}
	if current > 0 && threshold > 0 {
		if math.Abs(float64(delta))/float64(current) < threshold {
			return 0
		}
	}
	return delta
}

// AllDeltas computes the signed per-symbol changes that converge slave onto
// main at the given scale. Slave symbols absent from main are orphans and
// always emit a full close, regardless of the dead band. Short legs are
// skipped on both sides: orders go out as plain market BUY/SELL, which
// cannot open or cover a short.
func (c Calculator) AllDeltas(main, slave []types.Position, scale float64, rounding types.Rounding, threshold float64) map[string]int {
	current := make(map[string]int, len(slave))
	for _, p := range slave {
		if p.Side == types.SideShort {
			continue
		}
		current[p.Symbol] = int(p.Quantity)
	}
	out := make(map[string]int)
	seen := make(map[string]bool, len(main))
	for _, p := range main {
		if p.Side == types.SideShort {
			continue
		}
		seen[p.Symbol] = true
		target := c.TargetQuantity(p.Quantity, scale, rounding)
		if d := c.Delta(target, current[p.Symbol], threshold); d != 0 {
			out[p.Symbol] = d
		}
	}
	for sym, qty := range current {
		if !seen[sym] && qty > 0 {
			out[sym] = -qty
		}
	}
	return out
}
