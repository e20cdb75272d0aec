package types

import "strings"

// ScaleMethod selects how a client's scale factor is derived.
type ScaleMethod string

const (
	// ScaleDynamicRatio sizes the client against its current equity.
	ScaleDynamicRatio ScaleMethod = "DYNAMIC_RATIO"
	// ScaleFixedAmount dedicates a fixed dollar amount of the client's
	// equity to copying; the remainder is protected and never traded.
	ScaleFixedAmount ScaleMethod = "FIXED_AMOUNT"
)

// Rounding selects how fractional target quantities become whole shares.
type Rounding string

const (
	RoundDown    Rounding = "ROUND_DOWN"
	RoundNearest Rounding = "ROUND_NEAREST"
	RoundUp      Rounding = "ROUND_UP"
)

// ParseRounding normalizes a configured rounding name, defaulting to
// ROUND_DOWN for anything unrecognized.
func ParseRounding(s string) Rounding {
	switch Rounding(strings.ToUpper(strings.TrimSpace(s))) {
	case RoundNearest:
		return RoundNearest
	case RoundUp:
		return RoundUp
	default:
		return RoundDown
	}
}

// ScaleConfig is the per-client scaling policy. It is owned by client
// configuration and only read by the calculator.
type ScaleConfig struct {
	Method ScaleMethod `json:"method"`

	// UsagePercent applies to DYNAMIC_RATIO; 0 means 100.
	UsagePercent float64 `json:"usage_percent"`

	// FixedAmount and EquityAtConfig apply to FIXED_AMOUNT. EquityAtConfig
	// is the client's equity recorded when the fixed amount was chosen;
	// equity above (EquityAtConfig - FixedAmount) is the working capital.
	FixedAmount    float64 `json:"fixed_amount"`
	EquityAtConfig float64 `json:"equity_at_config"`

	Rounding Rounding `json:"rounding"`

	// DeadBand suppresses deltas whose relative size against the current
	// holding falls below this fraction.
	DeadBand float64 `json:"dead_band"`

	UseMargin     bool    `json:"use_margin"`
	MarginPercent float64 `json:"margin_percent"`
}
