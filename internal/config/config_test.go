package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"mirra/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
broker:
  token_path: /tmp/token.json
clients:
  - id: c1
    main_account: "111"
    slave_account: "222"
    scale:
      method: DYNAMIC_RATIO
      usage_percent: 50
`

func TestLoadMinimalAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "https://api.schwabapi.com", cfg.Broker.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Broker.Timeout())
	assert.Equal(t, "monitor_live", cfg.Worker.Mode)
	assert.Equal(t, "30s", cfg.Worker.Interval)
	assert.True(t, cfg.Market.CheckWeekend)
	assert.True(t, cfg.Market.CheckHolidays)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay())

	require.Len(t, cfg.Clients, 1)
	cl := cfg.Clients[0]
	assert.Equal(t, "c1", cl.Name)
	assert.Equal(t, 50.0, cl.Scale.UsagePercent)
	assert.Equal(t, "ROUND_DOWN", cl.Scale.Rounding)
	assert.Equal(t, 0.03, cl.Scale.DeadBand)
	assert.Equal(t, 1.1, cl.Scale.MarginDetectFactor)
}

func TestExplicitFalseSurvivesDefaults(t *testing.T) {
	body := minimalConfig + `
market:
  check_weekend: false
`
	path := writeConfig(t, t.TempDir(), "config.yaml", body)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Market.CheckWeekend)
	assert.True(t, cfg.Market.CheckHolidays)
}

func TestIncludeMerge(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
app:
  log_level: debug
broker:
  token_path: /tmp/token.json
`)
	main := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
app:
  env: prod
clients:
  - id: c1
    main_account: "111"
    slave_account: "222"
    scale:
      method: FIXED_AMOUNT
      fixed_amount: 5000
      equity_at_config: 15000
`)

	cfg, err := Load(main)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "debug", cfg.App.LogLevel)

	sc := cfg.Clients[0].Scale.ToScale()
	assert.Equal(t, types.ScaleFixedAmount, sc.Method)
	assert.Equal(t, 5000.0, sc.FixedAmount)
}

func TestIncludeCycleFails(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeConfig(t, dir, "b.yaml", "include: [a.yaml]\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing clients",
			body: "broker:\n  token_path: /tmp/t.json\n",
			want: "clients",
		},
		{
			name: "missing token path",
			body: `
clients:
  - id: c1
    main_account: "111"
    slave_account: "222"
    scale: {method: DYNAMIC_RATIO, usage_percent: 100}
`,
			want: "token_path",
		},
		{
			name: "bad mode",
			body: minimalConfig + "worker:\n  mode: turbo\n",
			want: "worker.mode",
		},
		{
			name: "bad interval",
			body: minimalConfig + "worker:\n  interval: soon\n",
			want: "worker.interval",
		},
		{
			name: "usage percent out of range",
			body: `
broker:
  token_path: /tmp/t.json
clients:
  - id: c1
    main_account: "111"
    slave_account: "222"
    scale: {method: DYNAMIC_RATIO, usage_percent: 150}
`,
			want: "usage_percent",
		},
		{
			name: "fixed amount missing",
			body: `
broker:
  token_path: /tmp/t.json
clients:
  - id: c1
    main_account: "111"
    slave_account: "222"
    scale: {method: FIXED_AMOUNT}
`,
			want: "fixed_amount",
		},
		{
			name: "duplicate client id",
			body: `
broker:
  token_path: /tmp/t.json
clients:
  - id: c1
    main_account: "111"
    slave_account: "222"
    scale: {method: DYNAMIC_RATIO, usage_percent: 100}
  - id: c1
    main_account: "111"
    slave_account: "333"
    scale: {method: DYNAMIC_RATIO, usage_percent: 100}
`,
			want: "duplicate",
		},
		{
			name: "telegram enabled without token",
			body: minimalConfig + "notify:\n  telegram:\n    enabled: true\n",
			want: "telegram",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "config.yaml", c.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.want)
		})
	}
}

func TestEffectiveLimits(t *testing.T) {
	global := LimitsConfig{MaxOrderSize: 100, MinOrderValue: 50}

	noOverride := ClientConfig{}
	assert.Equal(t, 100, noOverride.EffectiveLimits(global).MaxOrderSize)

	override := ClientConfig{Limits: &LimitsConfig{MaxOrderSize: 10}}
	got := override.EffectiveLimits(global)
	assert.Equal(t, 10, got.MaxOrderSize)
	assert.Zero(t, got.MinOrderValue)
}
