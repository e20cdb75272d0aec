package notifier

import (
	"fmt"
	"strings"
	"time"

	"mirra/internal/pkg/text"
	"mirra/internal/types"
)

const maxMessageLen = 3800

func modeLabel(mode string) string {
	switch mode {
	case types.ModeLive:
		return "Live"
	case types.ModeSimulation:
		return "Simulation"
	case types.ModeMonitorLive:
		return "Monitor Live Delta"
	case types.ModeMonitorSimulation:
		return "Monitor Simulation Delta"
	default:
		return mode
	}
}

func clip(s string) string {
	return text.Truncate(s, maxMessageLen)
}

// FormatWorkerStarted renders the start-transition announcement.
func FormatWorkerStarted(mode string, interval time.Duration) string {
	return clip(fmt.Sprintf("Worker started\nMode: %s\nInterval: %s", modeLabel(mode), interval))
}

// FormatWorkerStopped renders the stop-transition announcement.
func FormatWorkerStopped(mode, reason string) string {
	msg := fmt.Sprintf("Worker stopped\nMode: %s", modeLabel(mode))
	if reason != "" {
		msg += "\nReason: " + reason
	}
	return clip(msg)
}

// FormatMarketTransition announces a market open/closed flip.
func FormatMarketTransition(open bool, reason string) string {
	if open {
		return "Market open, sync resumed"
	}
	return clip("Market closed, sync paused\n" + reason)
}

// FormatDeltaChanged renders the monitor-mode notification sent when the
// computed delta differs from the previous tick.
func FormatDeltaChanged(mode string, byClient map[string]types.ClientDelta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: delta changed\n", modeLabel(mode))
	for _, cd := range byClient {
		if len(cd.Deltas) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", cd.ClientName)
		for _, d := range cd.Deltas {
			fmt.Fprintf(&b, "%s / %s / %d / $%.2f\n", d.Action, d.Symbol, d.Quantity, d.Value)
		}
	}
	return clip(strings.TrimSpace(b.String()))
}

// FormatSyncSummary renders the per-pass order summary for live and
// simulation modes.
func FormatSyncSummary(mode, clientName string, res types.SyncResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", modeLabel(mode), clientName)
	fmt.Fprintf(&b, "Orders: %d placed, %d ok, %d failed\n",
		res.Summary.OrdersPlaced, res.Summary.OrdersSuccess, res.Summary.OrdersFailed)
	for _, r := range res.Results {
		fmt.Fprintf(&b, "%s %s x%d @ $%.2f [%s]\n", r.Action, r.Symbol, r.Quantity, r.Price, r.Status)
	}
	if len(res.Errors) > 0 {
		b.WriteString("Errors:\n")
		for _, e := range res.Errors {
			b.WriteString(e + "\n")
		}
	}
	return clip(strings.TrimSpace(b.String()))
}

// FormatApplyResult renders the outcome of an explicit apply pass.
func FormatApplyResult(mode string, totalOrders int, when time.Time) string {
	return clip(fmt.Sprintf("%s\nApply done: %d orders\n%s",
		modeLabel(mode), totalOrders, when.Format("Monday, 02.01.2006, 15:04 MST")))
}
