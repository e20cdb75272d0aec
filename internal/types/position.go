package types

import (
	"errors"
	"time"
)

// Side is the direction of a holding. Quantity stays non-negative and the
// direction is carried here.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

var ErrEmptyPosition = errors.New("position has no quantity")

// Position is one holding inside an account snapshot.
type Position struct {
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	Kind         AssetKind `json:"asset_kind,omitempty"`
	Quantity     float64   `json:"quantity"`
	AveragePrice float64   `json:"average_price"`
	Price        float64   `json:"price"`
	MarketValue  float64   `json:"market_value"`
	UnrealizedPL float64   `json:"unrealized_pl"`
}

// RawPosition carries the broker's untranslated position fields.
type RawPosition struct {
	Symbol            string
	AssetType         string
	InstrumentType    string
	LongQuantity      float64
	ShortQuantity     float64
	AveragePrice      float64
	AverageLongPrice  float64
	AverageShortPrice float64
	MarketValue       float64
	UnrealizedPL      float64
	Price             float64
}

// PositionFromRaw collapses the broker's long/short quantity pair into a net
// side and quantity. A position that carries both long and short quantity
// nets out; one that carries neither is an error.
func PositionFromRaw(raw RawPosition) (Position, error) {
	net := raw.LongQuantity - raw.ShortQuantity
	if net == 0 && raw.LongQuantity == 0 && raw.ShortQuantity == 0 {
		return Position{}, ErrEmptyPosition
	}
	side := SideLong
	qty := net
	if net < 0 {
		side = SideShort
		qty = -net
	}
	avg := raw.AveragePrice
	if avg == 0 {
		if side == SideLong {
			avg = raw.AverageLongPrice
		} else {
			avg = raw.AverageShortPrice
		}
	}
	return Position{
		Symbol:       raw.Symbol,
		Side:         side,
		Kind:         ClassifyAsset(raw.AssetType, raw.InstrumentType),
		Quantity:     qty,
		AveragePrice: avg,
		Price:        raw.Price,
		MarketValue:  raw.MarketValue,
		UnrealizedPL: raw.UnrealizedPL,
	}, nil
}

// Balances holds the account-level money fields of a snapshot.
type Balances struct {
	LiquidationValue float64 `json:"liquidation_value"`
	CashBalance      float64 `json:"cash_balance"`
	BuyingPower      float64 `json:"buying_power"`
	AvailableFunds   float64 `json:"available_funds"`
	PositionsValue   float64 `json:"positions_value"`
}

// AccountSnapshot is a point-in-time view of one account. It is built once
// per reconciliation pass and never mutated afterwards.
type AccountSnapshot struct {
	AccountID string     `json:"account_id"`
	Balances  Balances   `json:"balances"`
	Positions []Position `json:"positions"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// Equity is the account's liquidation value.
func (s AccountSnapshot) Equity() float64 {
	return s.Balances.LiquidationValue
}

// QuantityMap returns whole-share quantities keyed by symbol.
func (s AccountSnapshot) QuantityMap() map[string]int {
	out := make(map[string]int, len(s.Positions))
	for _, p := range s.Positions {
		out[p.Symbol] = int(p.Quantity)
	}
	return out
}

// PriceMap returns the last known per-share price keyed by symbol. Symbols
// without a usable price are omitted.
func (s AccountSnapshot) PriceMap() map[string]float64 {
	out := make(map[string]float64, len(s.Positions))
	for _, p := range s.Positions {
		if p.Price > 0 {
			out[p.Symbol] = p.Price
		}
	}
	return out
}

// Position looks up a holding by symbol.
func (s AccountSnapshot) Position(symbol string) (Position, bool) {
	for _, p := range s.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}
