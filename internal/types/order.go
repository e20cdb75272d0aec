package types

import "time"

// OrderAction is the direction of a proposed order.
type OrderAction string

const (
	ActionBuy  OrderAction = "BUY"
	ActionSell OrderAction = "SELL"
)

// OrderStatus is the terminal state of an executed (or skipped) order.
type OrderStatus string

const (
	OrderSuccess   OrderStatus = "SUCCESS"
	OrderError     OrderStatus = "ERROR"
	OrderSimulated OrderStatus = "SIMULATED"
	OrderSkipped   OrderStatus = "SKIPPED"
)

// OrderIntent is a proposed order. Quantity is always positive; the
// direction lives in Action.
type OrderIntent struct {
	Symbol   string      `json:"symbol"`
	Action   OrderAction `json:"action"`
	Quantity int         `json:"quantity"`
	Price    float64     `json:"price"`
}

// EstimatedCost is the notional value of the intent at its reference price.
func (o OrderIntent) EstimatedCost() float64 {
	return float64(o.Quantity) * o.Price
}

// IntentFromDelta translates a signed delta quantity into an intent.
func IntentFromDelta(symbol string, delta int, price float64) OrderIntent {
	action := ActionBuy
	qty := delta
	if delta < 0 {
		action = ActionSell
		qty = -delta
	}
	return OrderIntent{Symbol: symbol, Action: action, Quantity: qty, Price: price}
}

// OrderResult records the terminal outcome of exactly one intent.
type OrderResult struct {
	Symbol    string      `json:"symbol"`
	Action    OrderAction `json:"action"`
	Quantity  int         `json:"quantity"`
	Price     float64     `json:"price"`
	Status    OrderStatus `json:"status"`
	OrderID   string      `json:"order_id,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
