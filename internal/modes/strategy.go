// Package modes implements the four reconciliation strategies. They share
// one pipeline (snapshot -> scale -> deltas -> validate -> execute) and
// differ in where the slave state comes from and what execution means.
package modes

import (
	"context"

	"mirra/internal/copier"
	"mirra/internal/types"
)

// ClientSpec carries everything one client's reconciliation needs.
type ClientSpec struct {
	ID   string
	Name string

	// MainRef and SlaveRef are the broker routing refs of the source and
	// target accounts.
	MainRef  string
	SlaveRef string

	Scale  types.ScaleConfig
	Limits copier.Limits

	StopOnCritical bool

	// MarginDetectFactor: buying power above cash by more than this factor
	// means the broker actually extends margin. Default 1.1.
	MarginDetectFactor float64
}

// Options tune a single reconciliation pass.
type Options struct {
	// SkipHistory suppresses the history append, used by out-of-band
	// passes that record their outcome elsewhere.
	SkipHistory bool
}

// Strategy is one operating mode bound to one client.
type Strategy interface {
	Mode() string
	ClientID() string
	Reconcile(ctx context.Context, opts Options) (types.SyncResult, error)
}
