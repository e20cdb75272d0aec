package copier

import (
	"fmt"
	"sort"
	"strings"
)

// Limits are the configured per-client risk limits. A zero value disables
// the corresponding check.
type Limits struct {
	MaxOrderSize     int
	MaxPositionValue float64
	MinOrderValue    float64
	MaxOrdersPerRun  int
}

// Validator clamps or rejects proposed orders against the configured limits
// and the client's available cash.
type Validator struct {
	limits Limits
}

func NewValidator(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// ValidateOrderLimits clamps |qty| down to the size and value limits and
// rejects orders whose final value falls below the minimum. Clamping a
// too-small order upward would misrepresent intent, so below-minimum orders
// are rejected outright (adjusted = 0). The sign of qty is preserved.
func (v *Validator) ValidateOrderLimits(symbol string, qty int, price float64) (bool, string, int) {
	sign := 1
	abs := qty
	if qty < 0 {
		sign = -1
		abs = -qty
	}
	var msgs []string
	if v.limits.MaxOrderSize > 0 && abs > v.limits.MaxOrderSize {
		msgs = append(msgs, fmt.Sprintf("%s: quantity %d clamped to max order size %d", symbol, abs, v.limits.MaxOrderSize))
		abs = v.limits.MaxOrderSize
	}
	if v.limits.MaxPositionValue > 0 && price > 0 {
		if float64(abs)*price > v.limits.MaxPositionValue {
			maxByValue := int(v.limits.MaxPositionValue / price)
			if maxByValue < abs {
				msgs = append(msgs, fmt.Sprintf("%s: quantity %d clamped to %d by max position value $%.2f", symbol, abs, maxByValue, v.limits.MaxPositionValue))
				abs = maxByValue
			}
		}
	}
	if v.limits.MinOrderValue > 0 {
		if value := float64(abs) * price; value < v.limits.MinOrderValue {
			msg := fmt.Sprintf("%s: order value $%.2f below minimum $%.2f, rejected", symbol, value, v.limits.MinOrderValue)
			return false, msg, 0
		}
	}
	return true, strings.Join(msgs, "; "), sign * abs
}

// ValidateBuyingPower checks that the required cash fits the available cash.
func (v *Validator) ValidateBuyingPower(required, available float64) (bool, string) {
	if available <= 0 {
		return false, fmt.Sprintf("no available cash ($%.2f)", available)
	}
	if required > available {
		return false, fmt.Sprintf("required $%.2f exceeds available $%.2f", required, available)
	}
	return true, ""
}

// ValidateAll applies the full order-set policy: sells pass through
// unconditionally (they only raise cash), buys are clamped per order and
// then proportionally scaled down when their combined cost exceeds the
// available cash, and the total order count is capped with sells taking
// priority. Every adjustment is reported in the returned messages.
func (v *Validator) ValidateAll(deltas map[string]int, prices map[string]float64, availableCash float64) (map[string]int, []string) {
	var messages []string
	sells := make(map[string]int)
	buys := make(map[string]int)

	for _, sym := range sortedKeys(deltas) {
		qty := deltas[sym]
		price := prices[sym]
		if price <= 0 {
			messages = append(messages, fmt.Sprintf("%s: no price available, skipped", sym))
			continue
		}
		if qty < 0 {
			sells[sym] = qty
			continue
		}
		ok, msg, adjusted := v.ValidateOrderLimits(sym, qty, price)
		if msg != "" {
			messages = append(messages, msg)
		}
		if !ok || adjusted == 0 {
			continue
		}
		buys[sym] = adjusted
	}

	if len(buys) > 0 {
		totalCost := 0.0
		for sym, qty := range buys {
			totalCost += float64(qty) * prices[sym]
		}
		if totalCost > availableCash {
			if availableCash <= 0 {
				messages = append(messages, fmt.Sprintf("no available cash, all %d buys rejected", len(buys)))
				buys = map[string]int{}
			} else {
				ratio := availableCash / totalCost
				messages = append(messages, fmt.Sprintf("buy cost $%.2f exceeds available $%.2f, scaling buys by %.2f", totalCost, availableCash, ratio))
				for _, sym := range sortedKeys(buys) {
					scaled := int(float64(buys[sym]) * ratio)
					if scaled <= 0 {
						messages = append(messages, fmt.Sprintf("%s: buy scaled to zero, removed", sym))
						delete(buys, sym)
						continue
					}
					if scaled != buys[sym] {
						messages = append(messages, fmt.Sprintf("%s: buy quantity %d scaled to %d", sym, buys[sym], scaled))
						buys[sym] = scaled
					}
				}
			}
		}
	}

	validated := make(map[string]int, len(sells)+len(buys))
	remaining := v.limits.MaxOrdersPerRun
	if remaining <= 0 {
		remaining = len(sells) + len(buys)
	}
	for _, sym := range sortedKeys(sells) {
		if remaining == 0 {
			messages = append(messages, fmt.Sprintf("%s: dropped, max orders per run reached", sym))
			continue
		}
		validated[sym] = sells[sym]
		remaining--
	}
	for _, sym := range sortedKeys(buys) {
		if remaining == 0 {
			messages = append(messages, fmt.Sprintf("%s: dropped, max orders per run reached", sym))
			continue
		}
		validated[sym] = buys[sym]
		remaining--
	}
	return validated, messages
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
