package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"mirra/internal/cache"
	"mirra/internal/config"
	"mirra/internal/deltatrack"
	"mirra/internal/gateway/notifier"
	"mirra/internal/gateway/schwab"
	"mirra/internal/ledger"
	"mirra/internal/logger"
	"mirra/internal/marketcal"
	"mirra/internal/modes"
	"mirra/internal/pkg/retry"
	"mirra/internal/scheduler"
	statushttp "mirra/internal/transport/http/status"
	"mirra/internal/types"
	"mirra/internal/worker"
)

func build(ctx context.Context, cfg *config.Config) (*App, error) {
	dataDir := cfg.App.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	broker := schwab.NewClient(cfg.Broker.BaseURL, cfg.Broker.Timeout(),
		&schwab.FileTokenSource{Path: cfg.Broker.TokenPath})

	var notify notifier.TextNotifier = notifier.Nop{}
	if cfg.Notify.Telegram.Enabled {
		notify = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}

	oracle, err := marketcal.New(cfg.Market.CalendarPath, marketcal.Config{
		Timezone:      cfg.Market.Timezone,
		Open:          cfg.Market.Open,
		Close:         cfg.Market.Close,
		CheckWeekend:  cfg.Market.CheckWeekend,
		CheckHolidays: cfg.Market.CheckHolidays,
	})
	if err != nil {
		return nil, fmt.Errorf("market calendar: %w", err)
	}

	cachePath := cfg.Cache.Path
	if cachePath == "" {
		cachePath = filepath.Join(dataDir, "accounts.db")
	}
	store, err := cache.NewStore(cachePath)
	if err != nil {
		return nil, fmt.Errorf("snapshot cache: %w", err)
	}

	mode := cfg.Worker.Mode
	interval, _ := scheduler.ParseIntervalDuration(cfg.Worker.Interval)
	poll, _ := scheduler.ParseIntervalDuration(cfg.Worker.Poll)

	history := modes.NewHistory(dataDir)
	changes := deltatrack.NewTracker(dataDir, 0)

	var book *ledger.Ledger
	if mode == types.ModeSimulation || mode == types.ModeMonitorSimulation {
		book = ledger.New(filepath.Join(dataDir, "ledger.json"))
	}

	exec := retry.NewExecutor(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay())

	newLive := func(spec modes.ClientSpec) modes.Strategy {
		return &modes.Live{
			Spec:     spec,
			Provider: broker,
			Orders:   broker,
			Exec:     exec,
			Tracker:  retry.NewTracker(),
			History:  history,
		}
	}
	newStrategy := func(spec modes.ClientSpec) modes.Strategy {
		switch mode {
		case types.ModeLive:
			return newLive(spec)
		case types.ModeSimulation:
			return &modes.Simulation{Spec: spec, Main: broker, Book: book, History: history}
		case types.ModeMonitorSimulation:
			return &modes.MonitorSimulation{Spec: spec, Main: broker, Book: book}
		default:
			return &modes.MonitorLive{Spec: spec, Provider: broker}
		}
	}

	clients := make([]*worker.Client, 0, len(cfg.Clients))
	for _, cc := range cfg.Clients {
		mainRef, err := broker.ResolveAccountRef(ctx, cc.MainAccount)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("resolve main account for %s: %w", cc.ID, err)
		}
		slaveRef, err := broker.ResolveAccountRef(ctx, cc.SlaveAccount)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("resolve slave account for %s: %w", cc.ID, err)
		}
		spec := modes.ClientSpec{
			ID:                 cc.ID,
			Name:               cc.Name,
			MainRef:            mainRef,
			SlaveRef:           slaveRef,
			Scale:              cc.Scale.ToScale(),
			Limits:             cc.EffectiveLimits(cfg.Limits),
			StopOnCritical:     cc.StopOnCritical,
			MarginDetectFactor: cc.Scale.MarginDetectFactor,
		}
		clients = append(clients, &worker.Client{
			Spec:        spec,
			MainNumber:  cc.MainAccount,
			SlaveNumber: cc.SlaveAccount,
			Strategy:    newStrategy(spec),
		})
		logger.Infof("client %s (%s): mode=%s scale=%s", cc.ID, cc.Name, mode, cc.Scale.Method)
	}

	w := &worker.Worker{
		Mode:        mode,
		Interval:    interval,
		Poll:        poll,
		Status:      worker.NewStatusFile(filepath.Join(dataDir, "worker_status.json")),
		Supervisor:  worker.NewSupervisorFile(filepath.Join(dataDir, "supervisor.json")),
		Delta:       worker.NewCurrentDeltaFile(filepath.Join(dataDir, "current_delta.json")),
		Clients:     clients,
		NewStrategy: newStrategy,
		NewLive:     newLive,
		Provider:    broker,
		Resolver:    broker,
		Cache:       store,
		Book:        book,
		Changes:     changes,
		Market:      oracle,
		Notify:      notify,
		History:     history,
	}

	a := &App{
		cfg:    cfg,
		worker: w,
		close: func() {
			if err := store.Close(); err != nil {
				logger.Warnf("cache close failed: %v", err)
			}
		},
	}

	if cfg.App.HTTPEnabled {
		srv, err := statushttp.NewServer(statushttp.ServerConfig{
			Addr:    cfg.App.HTTPAddr,
			Status:  w.Status,
			Delta:   w.Delta,
			History: history,
			Cache:   store,
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("status http server: %w", err)
		}
		a.http = srv
	}

	return a, nil
}
