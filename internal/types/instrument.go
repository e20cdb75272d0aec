package types

import "strings"

// AssetKind is the coarse asset classification used for reporting.
type AssetKind string

const (
	AssetETF    AssetKind = "ETF"
	AssetEquity AssetKind = "EQUITY"
	AssetOther  AssetKind = "OTHER"
)

// Instrument describes one tradable symbol.
type Instrument struct {
	Symbol      string    `json:"symbol"`
	Description string    `json:"description,omitempty"`
	Kind        AssetKind `json:"asset_kind"`
}

// ClassifyAsset derives the asset kind from the broker's two raw
// classification fields. ETFs are reported either as a collective
// investment asset type or with an explicit ETF instrument type.
func ClassifyAsset(assetType, instrumentType string) AssetKind {
	at := strings.ToUpper(strings.TrimSpace(assetType))
	it := strings.ToUpper(strings.TrimSpace(instrumentType))
	switch {
	case at == "COLLECTIVE_INVESTMENT" || it == "EXCHANGE_TRADED_FUND":
		return AssetETF
	case at == "EQUITY":
		return AssetEquity
	default:
		return AssetOther
	}
}

// NewInstrument builds an Instrument from raw broker fields.
func NewInstrument(symbol, description, assetType, instrumentType string) Instrument {
	return Instrument{
		Symbol:      strings.TrimSpace(symbol),
		Description: strings.TrimSpace(description),
		Kind:        ClassifyAsset(assetType, instrumentType),
	}
}
