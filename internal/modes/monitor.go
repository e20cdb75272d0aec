package modes

import (
	"context"

	"mirra/internal/gateway/schwab"
	"mirra/internal/ledger"
	"mirra/internal/types"
)

// MonitorLive computes what a live pass would trade without placing
// anything. The resulting deltas are published for a human to apply.
type MonitorLive struct {
	Spec     ClientSpec
	Provider schwab.SnapshotProvider
}

func (m *MonitorLive) Mode() string     { return types.ModeMonitorLive }
func (m *MonitorLive) ClientID() string { return m.Spec.ID }

func (m *MonitorLive) Reconcile(ctx context.Context, _ Options) (types.SyncResult, error) {
	main, err := m.Provider.GetSnapshot(ctx, m.Spec.MainRef)
	if err != nil {
		return errorResult(types.ModeMonitorLive, err), err
	}
	slave, err := m.Provider.GetSnapshot(ctx, m.Spec.SlaveRef)
	if err != nil {
		return errorResult(types.ModeMonitorLive, err), err
	}
	return runPass(ctx, types.ModeMonitorLive, m.Spec, main, slave, nil), nil
}

// MonitorSimulation is MonitorLive against the dry book: the main account
// is read from the brokerage, the client side from the ledger.
type MonitorSimulation struct {
	Spec ClientSpec
	Main schwab.SnapshotProvider
	Book *ledger.Ledger
}

func (m *MonitorSimulation) Mode() string     { return types.ModeMonitorSimulation }
func (m *MonitorSimulation) ClientID() string { return m.Spec.ID }

func (m *MonitorSimulation) Reconcile(ctx context.Context, _ Options) (types.SyncResult, error) {
	main, err := m.Main.GetSnapshot(ctx, m.Spec.MainRef)
	if err != nil {
		return errorResult(types.ModeMonitorSimulation, err), err
	}
	slave, err := m.Book.GetSnapshot(ctx, m.Spec.ID)
	if err != nil {
		return errorResult(types.ModeMonitorSimulation, err), err
	}
	return runPass(ctx, types.ModeMonitorSimulation, m.Spec, main, slave, nil), nil
}
