package config

import (
	"strings"
	"time"

	"mirra/internal/copier"
	"mirra/internal/types"
)

// Config is the full configuration tree.
type Config struct {
	App     AppConfig      `yaml:"app"`
	Broker  BrokerConfig   `yaml:"broker"`
	Worker  WorkerConfig   `yaml:"worker"`
	Market  MarketConfig   `yaml:"market"`
	Notify  NotifyConfig   `yaml:"notify"`
	Retry   RetryConfig    `yaml:"retry"`
	Limits  LimitsConfig   `yaml:"limits"`
	Cache   CacheConfig    `yaml:"cache"`
	Clients []ClientConfig `yaml:"clients"`
}

type AppConfig struct {
	Env         string `yaml:"env"`
	LogLevel    string `yaml:"log_level"`
	LogPath     string `yaml:"log_path"`
	DataDir     string `yaml:"data_dir"`
	HTTPEnabled bool   `yaml:"http_enabled"`
	HTTPAddr    string `yaml:"http_addr"`
}

type BrokerConfig struct {
	BaseURL        string `yaml:"base_url"`
	TokenPath      string `yaml:"token_path"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (b BrokerConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

type WorkerConfig struct {
	Mode     string `yaml:"mode"`
	Interval string `yaml:"interval"`
	Poll     string `yaml:"poll"`
}

type MarketConfig struct {
	CalendarPath  string `yaml:"calendar_path"`
	Timezone      string `yaml:"timezone"`
	Open          string `yaml:"open"`
	Close         string `yaml:"close"`
	CheckWeekend  bool   `yaml:"check_weekend"`
	CheckHolidays bool   `yaml:"check_holidays"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type RetryConfig struct {
	MaxRetries  int `yaml:"max_retries"`
	BaseDelayMS int `yaml:"base_delay_ms"`
}

func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// LimitsConfig is the order risk-limit block. Zero disables a limit.
type LimitsConfig struct {
	MaxOrderSize     int     `yaml:"max_order_size"`
	MaxPositionValue float64 `yaml:"max_position_value"`
	MinOrderValue    float64 `yaml:"min_order_value"`
	MaxOrdersPerRun  int     `yaml:"max_orders_per_run"`
}

func (l LimitsConfig) ToLimits() copier.Limits {
	return copier.Limits{
		MaxOrderSize:     l.MaxOrderSize,
		MaxPositionValue: l.MaxPositionValue,
		MinOrderValue:    l.MinOrderValue,
		MaxOrdersPerRun:  l.MaxOrdersPerRun,
	}
}

type CacheConfig struct {
	Path string `yaml:"path"`
}

// ScaleSettings sizes one client against the main account.
type ScaleSettings struct {
	Method             string  `yaml:"method"`
	UsagePercent       float64 `yaml:"usage_percent"`
	FixedAmount        float64 `yaml:"fixed_amount"`
	EquityAtConfig     float64 `yaml:"equity_at_config"`
	Rounding           string  `yaml:"rounding"`
	DeadBand           float64 `yaml:"dead_band"`
	UseMargin          bool    `yaml:"use_margin"`
	MarginPercent      float64 `yaml:"margin_percent"`
	MarginDetectFactor float64 `yaml:"margin_detect_factor"`
}

func (s ScaleSettings) ToScale() types.ScaleConfig {
	method := types.ScaleDynamicRatio
	if strings.EqualFold(strings.TrimSpace(s.Method), string(types.ScaleFixedAmount)) {
		method = types.ScaleFixedAmount
	}
	return types.ScaleConfig{
		Method:         method,
		UsagePercent:   s.UsagePercent,
		FixedAmount:    s.FixedAmount,
		EquityAtConfig: s.EquityAtConfig,
		Rounding:       types.ParseRounding(s.Rounding),
		DeadBand:       s.DeadBand,
		UseMargin:      s.UseMargin,
		MarginPercent:  s.MarginPercent,
	}
}

// ClientConfig describes one slave account. Limits, when present, override
// the global block.
type ClientConfig struct {
	ID             string        `yaml:"id"`
	Name           string        `yaml:"name"`
	MainAccount    string        `yaml:"main_account"`
	SlaveAccount   string        `yaml:"slave_account"`
	Scale          ScaleSettings `yaml:"scale"`
	Limits         *LimitsConfig `yaml:"limits"`
	StopOnCritical bool          `yaml:"stop_on_critical"`
}

// EffectiveLimits resolves the client's risk limits against the global
// block.
func (c ClientConfig) EffectiveLimits(global LimitsConfig) copier.Limits {
	if c.Limits != nil {
		return c.Limits.ToLimits()
	}
	return global.ToLimits()
}

// keySet tracks field paths explicitly present in the config files, so
// defaults never clobber an intentional zero value.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault is one field's defaulting rule.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
