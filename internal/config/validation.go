package config

import (
	"fmt"
	"strings"

	"mirra/internal/scheduler"
	"mirra/internal/types"
)

var validModes = map[string]bool{
	types.ModeLive:              true,
	types.ModeSimulation:        true,
	types.ModeMonitorLive:       true,
	types.ModeMonitorSimulation: true,
}

func validate(c *Config) error {
	if err := c.Worker.validate(); err != nil {
		return err
	}
	if err := c.Broker.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if len(c.Clients) == 0 {
		return fmt.Errorf("clients requires at least one entry")
	}
	seen := make(map[string]bool, len(c.Clients))
	for i := range c.Clients {
		cl := &c.Clients[i]
		if err := cl.validate(); err != nil {
			return err
		}
		if seen[cl.ID] {
			return fmt.Errorf("clients contains duplicate id: %s", cl.ID)
		}
		seen[cl.ID] = true
	}
	return nil
}

func (w *WorkerConfig) validate() error {
	if !validModes[w.Mode] {
		return fmt.Errorf("worker.mode must be one of live, simulation, monitor_live, monitor_simulation (got %q)", w.Mode)
	}
	if _, ok := scheduler.ParseIntervalDuration(w.Interval); !ok {
		return fmt.Errorf("worker.interval is not a valid interval: %q", w.Interval)
	}
	if _, ok := scheduler.ParseIntervalDuration(w.Poll); !ok {
		return fmt.Errorf("worker.poll is not a valid interval: %q", w.Poll)
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	if strings.TrimSpace(b.TokenPath) == "" {
		return fmt.Errorf("broker.token_path is required")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	tg := n.Telegram
	if !tg.Enabled {
		return nil
	}
	if strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "" {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}
	return nil
}

func (c *ClientConfig) validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("clients entry missing id")
	}
	if strings.TrimSpace(c.MainAccount) == "" {
		return fmt.Errorf("client %s missing main_account", c.ID)
	}
	if strings.TrimSpace(c.SlaveAccount) == "" {
		return fmt.Errorf("client %s missing slave_account", c.ID)
	}
	s := c.Scale
	method := strings.ToUpper(strings.TrimSpace(s.Method))
	switch method {
	case string(types.ScaleDynamicRatio):
		if s.UsagePercent <= 0 || s.UsagePercent > 100 {
			return fmt.Errorf("client %s: scale.usage_percent must be in (0, 100]", c.ID)
		}
	case string(types.ScaleFixedAmount):
		if s.FixedAmount <= 0 {
			return fmt.Errorf("client %s: scale.fixed_amount must be positive", c.ID)
		}
	default:
		return fmt.Errorf("client %s: scale.method must be DYNAMIC_RATIO or FIXED_AMOUNT (got %q)", c.ID, s.Method)
	}
	if s.DeadBand < 0 || s.DeadBand >= 1 {
		return fmt.Errorf("client %s: scale.dead_band must be in [0, 1)", c.ID)
	}
	if s.UseMargin && s.MarginPercent < 0 {
		return fmt.Errorf("client %s: scale.margin_percent must be >= 0", c.ID)
	}
	return nil
}
