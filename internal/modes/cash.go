package modes

import "mirra/internal/types"

const defaultMarginDetectFactor = 1.1

// availableCash works out how much the client can spend on buys.
//
// Margin is only usable when the broker actually extends it: buying power
// that is not meaningfully above the cash balance means a cash account, and
// the configured margin policy is ignored. When margin is live, the user's
// own cap is equity grown by the configured margin percentage, and the
// spendable amount is whatever of min(buying power, user cap) is not already
// tied up in positions.
func availableCash(bal types.Balances, cfg types.ScaleConfig, detectFactor float64) float64 {
	if detectFactor <= 0 {
		detectFactor = defaultMarginDetectFactor
	}
	if bal.BuyingPower == 0 {
		return bal.CashBalance
	}
	if !cfg.UseMargin {
		return bal.CashBalance
	}
	if bal.BuyingPower <= bal.CashBalance*detectFactor {
		// Broker does not extend margin on this account.
		return bal.CashBalance
	}
	userLimit := bal.LiquidationValue * (1 + cfg.MarginPercent/100)
	limit := bal.BuyingPower
	if userLimit < limit {
		limit = userLimit
	}
	available := limit - bal.PositionsValue
	if available < 0 {
		return 0
	}
	return available
}
