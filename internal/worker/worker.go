package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mirra/internal/cache"
	"mirra/internal/deltatrack"
	"mirra/internal/gateway/notifier"
	"mirra/internal/gateway/schwab"
	"mirra/internal/ledger"
	"mirra/internal/logger"
	"mirra/internal/modes"
	"mirra/internal/pkg/retry"
	"mirra/internal/scheduler"
	"mirra/internal/types"

	"github.com/fsnotify/fsnotify"
)

// DefaultPoll is the command-file poll cadence. fsnotify usually wakes the
// loop sooner; the poll is the fallback.
const DefaultPoll = 5 * time.Second

// MarketOracle reports whether the market is open at a given time, with a
// reason when it is not. *marketcal.Oracle satisfies it.
type MarketOracle interface {
	IsOpen(now time.Time) (bool, string)
}

// Client binds one client's strategy to the plain account numbers its refs
// were resolved from, so a stale ref can be re-resolved in place.
type Client struct {
	Spec        modes.ClientSpec
	MainNumber  string
	SlaveNumber string
	Strategy    modes.Strategy
}

// Worker is the single-process reconciliation loop. One tick: read the
// command file, obey stop/apply, heartbeat, and when the interval is due
// run every client once. No two passes for the same client ever overlap
// because there is exactly one loop.
type Worker struct {
	Mode     string
	Interval time.Duration
	Poll     time.Duration

	Status     *StatusFile
	Supervisor *SupervisorFile
	Delta      *CurrentDeltaFile

	Clients []*Client
	// NewStrategy rebuilds a client's strategy after its account refs were
	// re-resolved.
	NewStrategy func(spec modes.ClientSpec) modes.Strategy
	// NewLive builds a real order-placing strategy for apply passes in
	// monitor_live mode.
	NewLive func(spec modes.ClientSpec) modes.Strategy

	Provider schwab.SnapshotProvider
	Resolver schwab.AccountResolver

	Cache   *cache.Store
	Book    *ledger.Ledger
	Changes *deltatrack.Tracker
	Market  MarketOracle
	Notify  notifier.TextNotifier
	History *modes.History

	running       bool
	lastSync      time.Time
	lastOpen      *bool
	lastHeartbeat time.Time
	snaps         map[string]types.AccountSnapshot
}

// Run blocks until ctx is cancelled. It refuses to start when another live
// worker owns the status file.
func (w *Worker) Run(ctx context.Context) error {
	if w.Poll <= 0 {
		w.Poll = DefaultPoll
	}
	if w.Notify == nil {
		w.Notify = notifier.Nop{}
	}

	w.Status.CleanupStale()
	st := w.Status.Load()
	if st.Running && st.PID != os.Getpid() && processAlive(st.PID) {
		return fmt.Errorf("another worker is already running (pid %d)", st.PID)
	}
	if err := w.Status.Mutate(func(s *Status) {
		s.PID = os.Getpid()
		s.IntervalSeconds = int(w.Interval.Seconds())
		s.Error = ""
	}); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	wake := make(chan struct{}, 1)
	if watcher, err := fsnotify.NewWatcher(); err != nil {
		logger.Warnf("worker: fsnotify unavailable, poll only: %v", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(w.Status.Path())); err != nil {
			logger.Warnf("worker: watch %s failed: %v", w.Status.Path(), err)
		}
		go w.watch(ctx, watcher, wake)
	}

	p := scheduler.NewPoller(ctx, w.Poll)
	p.Wake = wake
	p.Start(func() { w.tick(ctx) })

	if err := w.Status.Mutate(func(s *Status) { s.Running = false }); err != nil {
		logger.Warnf("worker: final status write failed: %v", err)
	}
	return nil
}

func (w *Worker) watch(ctx context.Context, watcher *fsnotify.Watcher, wake chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.Status.Path() {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("worker: watcher error: %v", err)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	st := w.Status.Load()

	if w.Supervisor != nil && st.Command != CommandStop && w.Supervisor.Gone() {
		logger.Warnf("worker: supervisor process gone, forcing stop")
		if err := w.Status.Mutate(func(s *Status) { s.Command = CommandStop }); err != nil {
			logger.Errorf("worker: force-stop write failed: %v", err)
		}
		st.Command = CommandStop
	}

	switch st.Command {
	case CommandStop:
		if w.running {
			w.onStop("stop requested")
		}
		return
	case CommandApply:
		w.handleApply(ctx)
		if err := w.Status.Mutate(func(s *Status) { s.Command = CommandStart }); err != nil {
			logger.Errorf("worker: apply revert failed: %v", err)
		}
		return
	}

	if !w.running {
		w.onStart()
	}
	w.heartbeat()

	if w.Interval > 0 && !w.lastSync.IsZero() && time.Since(w.lastSync) < w.Interval {
		return
	}
	w.runAll(ctx)
}

func (w *Worker) onStart() {
	w.running = true
	w.lastSync = time.Time{}
	w.lastOpen = nil
	now := time.Now()
	w.lastHeartbeat = now
	if err := w.Status.Mutate(func(s *Status) {
		s.Running = true
		s.StartedAt = &now
		s.LastHeartbeat = &now
		s.Error = ""
	}); err != nil {
		logger.Errorf("worker: start transition write failed: %v", err)
	}
	logger.Infof("worker: started mode=%s interval=%s", w.Mode, w.Interval)
	w.notify(notifier.FormatWorkerStarted(w.Mode, w.Interval))
}

func (w *Worker) onStop(reason string) {
	w.running = false
	w.lastOpen = nil
	if w.Delta != nil {
		if err := w.Delta.Clear(); err != nil {
			logger.Warnf("worker: delta clear failed: %v", err)
		}
	}
	if w.Book != nil && isDryMode(w.Mode) {
		if err := w.Book.ResetClients(); err != nil {
			logger.Warnf("worker: ledger reset failed: %v", err)
		}
	}
	if w.Changes != nil {
		w.Changes.Forget()
	}
	if err := w.Status.Mutate(func(s *Status) { s.Running = false }); err != nil {
		logger.Errorf("worker: stop transition write failed: %v", err)
	}
	logger.Infof("worker: stopped (%s)", reason)
	w.notify(notifier.FormatWorkerStopped(w.Mode, reason))
}

func (w *Worker) heartbeat() {
	if time.Since(w.lastHeartbeat) < HeartbeatEvery {
		return
	}
	now := time.Now()
	w.lastHeartbeat = now
	if err := w.Status.Mutate(func(s *Status) { s.LastHeartbeat = &now }); err != nil {
		logger.Warnf("worker: heartbeat write failed: %v", err)
	}
}

func (w *Worker) runAll(ctx context.Context) {
	now := time.Now()

	open, reason := true, ""
	if w.Market != nil {
		open, reason = w.Market.IsOpen(now)
	}
	w.noteMarket(open, reason)
	if !open {
		// A closed-market pass still counts against the interval, so the
		// loop idles at the configured cadence instead of the poll cadence.
		w.lastSync = now
		w.recordSync(now, "market closed: "+reason)
		return
	}

	failed := w.refresh(ctx)

	byClient := map[string]types.ClientDelta{}
	changedClients := map[string]types.ClientDelta{}
	okCount, failCount := 0, 0

	for _, c := range w.Clients {
		if ferr, ok := failed[c.Spec.ID]; ok {
			failCount++
			logger.Errorf("worker: client %s failed: %v", c.Spec.ID, ferr)
			continue
		}
		res, err := w.reconcileClient(ctx, c)
		if err != nil {
			failCount++
			logger.Errorf("worker: client %s failed: %v", c.Spec.ID, err)
			continue
		}
		okCount++

		if isMonitorMode(w.Mode) {
			cd := w.clientDelta(c, res)
			byClient[c.Spec.ID] = cd
			if w.Changes != nil {
				if changed, why, _ := w.Changes.Observe(c.Spec.ID, res.ValidDeltas); changed && len(cd.Deltas) > 0 {
					logger.Infof("worker: client %s delta changed (%s)", c.Spec.ID, why)
					changedClients[c.Spec.ID] = cd
				}
			}
		} else if res.Summary.OrdersPlaced > 0 {
			w.notify(notifier.FormatSyncSummary(w.Mode, c.Spec.Name, res))
		}
	}

	if isMonitorMode(w.Mode) && w.Delta != nil {
		if err := w.Delta.Save(byClient); err != nil {
			logger.Warnf("worker: delta save failed: %v", err)
		}
		if len(changedClients) > 0 {
			w.notify(notifier.FormatDeltaChanged(w.Mode, changedClients))
		}
	}

	w.lastSync = now
	w.recordSync(now, fmt.Sprintf("%d ok, %d failed", okCount, failCount))
}

// refresh pulls fresh broker snapshots for every account this tick needs,
// mirrors them into the cache, and keeps the ledger's main side current.
// A fetch failure is charged to the clients whose accounts it covers; the
// rest of the tick proceeds without them.
func (w *Worker) refresh(ctx context.Context) map[string]error {
	w.snaps = map[string]types.AccountSnapshot{}
	fetchErrs := map[string]error{}
	fetch := func(ref string) (types.AccountSnapshot, error) {
		if s, ok := w.snaps[ref]; ok {
			return s, nil
		}
		if err, ok := fetchErrs[ref]; ok {
			return types.AccountSnapshot{}, err
		}
		s, err := w.Provider.GetSnapshot(ctx, ref)
		if err != nil {
			fetchErrs[ref] = err
			return types.AccountSnapshot{}, err
		}
		w.snaps[ref] = s
		if w.Cache != nil {
			if cerr := w.Cache.Put(ctx, s); cerr != nil {
				logger.Warnf("worker: cache write for %s failed: %v", s.AccountID, cerr)
			}
		}
		return s, nil
	}

	failed := map[string]error{}
	for _, c := range w.Clients {
		if err := w.refreshClient(c, fetch); err != nil {
			failed[c.Spec.ID] = err
		}
	}
	return failed
}

func (w *Worker) refreshClient(c *Client, fetch func(string) (types.AccountSnapshot, error)) error {
	main, err := fetch(c.Spec.MainRef)
	if err != nil {
		return fmt.Errorf("main snapshot: %w", err)
	}
	if w.Book != nil {
		if err := w.Book.RefreshMain(main); err != nil {
			logger.Warnf("worker: ledger main refresh failed: %v", err)
		}
		if !w.Book.Seeded(c.Spec.ID) {
			slave, err := fetch(c.Spec.SlaveRef)
			if err != nil {
				return fmt.Errorf("seed snapshot: %w", err)
			}
			if err := w.Book.SeedClient(c.Spec.ID, slave); err != nil {
				return fmt.Errorf("seed ledger: %w", err)
			}
			logger.Infof("worker: seeded virtual ledger for %s from %s", c.Spec.ID, slave.AccountID)
		}
	}
	if !isDryMode(w.Mode) {
		if _, err := fetch(c.Spec.SlaveRef); err != nil {
			return fmt.Errorf("slave snapshot: %w", err)
		}
	}
	return nil
}

// reconcileClient runs one pass, refreshing stale account refs once before
// giving up.
func (w *Worker) reconcileClient(ctx context.Context, c *Client) (types.SyncResult, error) {
	res, err := c.Strategy.Reconcile(ctx, modes.Options{})
	if err == nil {
		return res, nil
	}
	if !retry.IsStaleAccountRef(err) || w.Resolver == nil || w.NewStrategy == nil {
		return res, err
	}

	logger.Warnf("worker: client %s account ref stale, re-resolving", c.Spec.ID)
	if rerr := w.refreshRefs(ctx, c); rerr != nil {
		logger.Errorf("worker: client %s ref refresh failed: %v", c.Spec.ID, rerr)
		return res, err
	}
	return c.Strategy.Reconcile(ctx, modes.Options{})
}

func (w *Worker) refreshRefs(ctx context.Context, c *Client) error {
	if c.MainNumber != "" {
		ref, err := w.Resolver.ResolveAccountRef(ctx, c.MainNumber)
		if err != nil {
			return err
		}
		c.Spec.MainRef = ref
	}
	if c.SlaveNumber != "" {
		ref, err := w.Resolver.ResolveAccountRef(ctx, c.SlaveNumber)
		if err != nil {
			return err
		}
		c.Spec.SlaveRef = ref
	}
	c.Strategy = w.NewStrategy(c.Spec)
	return nil
}

// clientDelta prices the validated deltas for the current-delta record.
// Sells use the client's own last price, buys the main account's.
func (w *Worker) clientDelta(c *Client, res types.SyncResult) types.ClientDelta {
	mainPrices := w.snaps[c.Spec.MainRef].PriceMap()
	var slavePrices map[string]float64
	if isDryMode(w.Mode) {
		if snap, ok := w.bookSnapshot(c.Spec.ID); ok {
			slavePrices = snap.PriceMap()
		}
	} else {
		slavePrices = w.snaps[c.Spec.SlaveRef].PriceMap()
	}
	return types.ClientDelta{
		ClientName: c.Spec.Name,
		Timestamp:  time.Now(),
		Deltas:     modes.DeltaLines(res.ValidDeltas, mainPrices, slavePrices),
	}
}

func (w *Worker) bookSnapshot(clientID string) (types.AccountSnapshot, bool) {
	if w.Book == nil {
		return types.AccountSnapshot{}, false
	}
	return w.Book.Client(clientID)
}

func (w *Worker) noteMarket(open bool, reason string) {
	if w.lastOpen == nil {
		w.lastOpen = &open
		if !open {
			logger.Infof("worker: market closed (%s)", reason)
			w.notify(notifier.FormatMarketTransition(false, reason))
		}
		return
	}
	if *w.lastOpen == open {
		return
	}
	w.lastOpen = &open
	logger.Infof("worker: market transition open=%v (%s)", open, reason)
	w.notify(notifier.FormatMarketTransition(open, reason))
}

func (w *Worker) recordSync(when time.Time, result string) {
	if err := w.Status.Mutate(func(s *Status) {
		s.LastSync = &when
		s.LastSyncResult = result
	}); err != nil {
		logger.Warnf("worker: sync record write failed: %v", err)
	}
}

func (w *Worker) notify(text string) {
	if w.Notify == nil {
		return
	}
	if err := w.Notify.SendText(text); err != nil {
		logger.Warnf("worker: notify failed: %v", err)
	}
}

func isMonitorMode(mode string) bool {
	return mode == types.ModeMonitorLive || mode == types.ModeMonitorSimulation
}

func isDryMode(mode string) bool {
	return mode == types.ModeSimulation || mode == types.ModeMonitorSimulation
}
