package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppLogPath  = "/data/logs/mirra.log"
	defaultAppDataDir  = "/data/mirra"
	defaultAppHTTPAddr = ":9981"

	defaultBrokerBaseURL = "https://api.schwabapi.com"
	defaultBrokerTimeout = 30

	defaultWorkerMode     = "monitor_live"
	defaultWorkerInterval = "30s"
	defaultWorkerPoll     = "5s"

	defaultMarketTimezone = "America/New_York"
	defaultMarketOpen     = "09:30"
	defaultMarketClose    = "16:00"

	defaultRetryMax       = 3
	defaultRetryBaseDelay = 500

	defaultScaleUsagePercent = 100
	defaultScaleRounding     = "ROUND_DOWN"
	defaultScaleDeadBand     = 0.03
	defaultMarginDetect      = 1.1
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Broker.applyDefaults(keys)
	c.Worker.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Retry.applyDefaults(keys)
	for i := range c.Clients {
		c.Clients[i].applyDefaults()
	}
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.data_dir", &a.DataDir, defaultAppDataDir),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (b *BrokerConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("broker.base_url", &b.BaseURL, defaultBrokerBaseURL),
		fieldDefault{
			key:   "broker.timeout_seconds",
			need:  func() bool { return b.TimeoutSeconds <= 0 },
			apply: func() { b.TimeoutSeconds = defaultBrokerTimeout },
		},
	)
}

func (w *WorkerConfig) applyDefaults(keys keySet) {
	if w == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("worker.mode", &w.Mode, defaultWorkerMode),
		stringFieldDefault("worker.interval", &w.Interval, defaultWorkerInterval),
		stringFieldDefault("worker.poll", &w.Poll, defaultWorkerPoll),
	)
	w.Mode = strings.ToLower(strings.TrimSpace(w.Mode))
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.timezone", &m.Timezone, defaultMarketTimezone),
		stringFieldDefault("market.open", &m.Open, defaultMarketOpen),
		stringFieldDefault("market.close", &m.Close, defaultMarketClose),
		boolFieldDefault("market.check_weekend", &m.CheckWeekend, true),
		boolFieldDefault("market.check_holidays", &m.CheckHolidays, true),
	)
}

func (r *RetryConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "retry.max_retries",
			need:  func() bool { return r.MaxRetries <= 0 },
			apply: func() { r.MaxRetries = defaultRetryMax },
		},
		fieldDefault{
			key:   "retry.base_delay_ms",
			need:  func() bool { return r.BaseDelayMS <= 0 },
			apply: func() { r.BaseDelayMS = defaultRetryBaseDelay },
		},
	)
}

// Client entries live in a list, so per-entry key paths are not tracked;
// defaults apply whenever the field is zero.
func (c *ClientConfig) applyDefaults() {
	if c == nil {
		return
	}
	if strings.TrimSpace(c.Name) == "" {
		c.Name = c.ID
	}
	s := &c.Scale
	if strings.TrimSpace(s.Method) == "" {
		s.Method = "DYNAMIC_RATIO"
	}
	if s.UsagePercent <= 0 {
		s.UsagePercent = defaultScaleUsagePercent
	}
	if strings.TrimSpace(s.Rounding) == "" {
		s.Rounding = defaultScaleRounding
	}
	if s.DeadBand <= 0 {
		s.DeadBand = defaultScaleDeadBand
	}
	if s.MarginDetectFactor <= 0 {
		s.MarginDetectFactor = defaultMarginDetect
	}
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
