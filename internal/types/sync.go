package types

import "time"

// Operating modes of the reconciliation engine.
const (
	ModeLive              = "live"
	ModeSimulation        = "simulation"
	ModeMonitorLive       = "monitor_live"
	ModeMonitorSimulation = "monitor_simulation"
)

// Sync pass statuses.
const (
	SyncSuccess = "success"
	SyncError   = "error"
	SyncSkipped = "skipped"
)

// SyncSummary aggregates the order counts of one pass.
type SyncSummary struct {
	TotalDeltas   int `json:"total_deltas"`
	OrdersPlaced  int `json:"orders_placed"`
	OrdersSuccess int `json:"orders_success"`
	OrdersFailed  int `json:"orders_failed"`
}

// SyncResult is the full outcome of one reconciliation pass for one client.
// It is appended to the client's durable history unless the mode skips it.
type SyncResult struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Status      string         `json:"status"`
	Mode        string         `json:"operating_mode"`
	Scale       float64        `json:"scale"`
	MainEquity  float64        `json:"main_equity"`
	SlaveEquity float64        `json:"slave_equity"`
	Deltas      map[string]int `json:"deltas"`
	ValidDeltas map[string]int `json:"valid_deltas"`
	Results     []OrderResult  `json:"results"`
	Errors      []string       `json:"errors"`
	Summary     SyncSummary    `json:"summary"`
	Reason      string         `json:"reason,omitempty"`
}

// DeltaLine is one row of a monitor-mode delta report: the action, size and
// notional value of what an apply would do.
type DeltaLine struct {
	Action   OrderAction `json:"action"`
	Symbol   string      `json:"symbol"`
	Quantity int         `json:"qty"`
	Value    float64     `json:"value"`
}

// ClientDelta is the rolling current-delta record for one client, fully
// overwritten each monitor tick.
type ClientDelta struct {
	ClientName string      `json:"client_name"`
	Timestamp  time.Time   `json:"timestamp"`
	Deltas     []DeltaLine `json:"deltas"`
}
