// Package schwab talks to the brokerage REST API: account snapshots, equity
// market orders, and account-number-to-hash resolution.
package schwab

import (
	"context"

	"mirra/internal/types"
)

// SnapshotProvider fetches a point-in-time account snapshot. The live
// client and the simulation ledger both satisfy it.
type SnapshotProvider interface {
	GetSnapshot(ctx context.Context, accountRef string) (types.AccountSnapshot, error)
}

// OrderPlacer submits one order and returns the broker's order id.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, accountRef string, intent types.OrderIntent) (string, error)
}

// AccountResolver maps a plain account number onto the broker's per-account
// routing hash. Hashes go stale; callers refresh on a stale-ref failure.
type AccountResolver interface {
	ResolveAccountRef(ctx context.Context, accountNumber string) (string, error)
}
