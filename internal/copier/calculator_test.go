package copier

import (
	"testing"

	"mirra/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculator_Scale(t *testing.T) {
	var calc Calculator

	t.Run("dynamic ratio", func(t *testing.T) {
		scale, err := calc.Scale(100000, 20000, types.ScaleConfig{
			Method:       types.ScaleDynamicRatio,
			UsagePercent: 100,
		})
		require.NoError(t, err)
		assert.InDelta(t, 0.2, scale, 1e-9)
	})

	t.Run("dynamic ratio with usage percent", func(t *testing.T) {
		scale, err := calc.Scale(100000, 20000, types.ScaleConfig{
			Method:       types.ScaleDynamicRatio,
			UsagePercent: 50,
		})
		require.NoError(t, err)
		assert.InDelta(t, 0.1, scale, 1e-9)
	})

	t.Run("zero usage defaults to full", func(t *testing.T) {
		scale, err := calc.Scale(100000, 20000, types.ScaleConfig{Method: types.ScaleDynamicRatio})
		require.NoError(t, err)
		assert.InDelta(t, 0.2, scale, 1e-9)
	})

	t.Run("fixed amount working equity", func(t *testing.T) {
		// 25k recorded at config time, 10k dedicated: 15k is protected.
		// At 18k equity only 3k works.
		scale, err := calc.Scale(100000, 18000, types.ScaleConfig{
			Method:         types.ScaleFixedAmount,
			FixedAmount:    10000,
			EquityAtConfig: 25000,
		})
		require.NoError(t, err)
		assert.InDelta(t, 0.03, scale, 1e-9)
	})

	t.Run("fixed amount floor pauses trading", func(t *testing.T) {
		scale, err := calc.Scale(100000, 14000, types.ScaleConfig{
			Method:         types.ScaleFixedAmount,
			FixedAmount:    10000,
			EquityAtConfig: 25000,
		})
		require.NoError(t, err)
		assert.Zero(t, scale)
	})

	t.Run("fixed amount legacy baseline", func(t *testing.T) {
		// Missing equity_at_config falls back to current equity, so the
		// fixed amount itself is the working capital.
		scale, err := calc.Scale(100000, 20000, types.ScaleConfig{
			Method:      types.ScaleFixedAmount,
			FixedAmount: 5000,
		})
		require.NoError(t, err)
		assert.InDelta(t, 0.05, scale, 1e-9)
	})

	t.Run("fixed amount requires positive amount", func(t *testing.T) {
		_, err := calc.Scale(100000, 20000, types.ScaleConfig{Method: types.ScaleFixedAmount})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("non positive main equity", func(t *testing.T) {
		_, err := calc.Scale(0, 20000, types.ScaleConfig{Method: types.ScaleDynamicRatio})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestCalculator_TargetQuantity(t *testing.T) {
	var calc Calculator

	tests := []struct {
		name     string
		mainQty  float64
		scale    float64
		rounding types.Rounding
		want     int
	}{
		{"round down", 100, 0.2, types.RoundDown, 20},
		{"round down truncates", 107, 0.2, types.RoundDown, 21},
		{"round up exact stays", 100, 0.2, types.RoundUp, 20},
		{"round up remainder bumps", 101, 0.2, types.RoundUp, 21},
		{"nearest below half", 102, 0.2, types.RoundNearest, 20},
		{"nearest half rounds up", 102.5, 0.2, types.RoundNearest, 21},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calc.TargetQuantity(tt.mainQty, tt.scale, tt.rounding))
		})
	}
}

func TestCalculator_Delta(t *testing.T) {
	var calc Calculator

	t.Run("kept above dead band", func(t *testing.T) {
		// 2/18 = 0.111 >= 0.03
		assert.Equal(t, 2, calc.Delta(20, 18, 0.03))
	})

	t.Run("suppressed inside dead band", func(t *testing.T) {
		assert.Equal(t, 0, calc.Delta(101, 100, 0.03))
	})

	t.Run("dead band idempotence", func(t *testing.T) {
		for current := 1; current <= 200; current++ {
			for _, target := range []int{current - 2, current - 1, current, current + 1, current + 2} {
				got := calc.Delta(target, current, 0.5)
				diff := target - current
				if diff == 0 {
					assert.Zero(t, got)
					continue
				}
				rel := float64(diff) / float64(current)
				if rel < 0 {
					rel = -rel
				}
				if rel < 0.5 {
					assert.Zero(t, got, "target=%d current=%d", target, current)
				} else {
					assert.Equal(t, diff, got, "target=%d current=%d", target, current)
				}
			}
		}
	})

	t.Run("new position never suppressed", func(t *testing.T) {
		assert.Equal(t, 1, calc.Delta(1, 0, 0.99))
	})
}

func TestCalculator_AllDeltas(t *testing.T) {
	var calc Calculator

	main := []types.Position{
		{Symbol: "SPY", Quantity: 100, Price: 500},
		{Symbol: "AAPL", Quantity: 50, Price: 200},
	}
	slave := []types.Position{
		{Symbol: "SPY", Quantity: 18, Price: 500},
		{Symbol: "XYZ", Quantity: 7, Price: 10},
	}

	deltas := calc.AllDeltas(main, slave, 0.2, types.RoundDown, 0.03)

	assert.Equal(t, 2, deltas["SPY"])
	assert.Equal(t, 10, deltas["AAPL"])

	t.Run("orphan liquidated regardless of threshold", func(t *testing.T) {
		assert.Equal(t, -7, deltas["XYZ"])

		tight := calc.AllDeltas(main, slave, 0.2, types.RoundDown, 0.99)
		assert.Equal(t, -7, tight["XYZ"])
	})

	t.Run("zero deltas not materialized", func(t *testing.T) {
		synced := []types.Position{
			{Symbol: "SPY", Quantity: 20},
			{Symbol: "AAPL", Quantity: 10},
		}
		assert.Empty(t, calc.AllDeltas(main, synced, 0.2, types.RoundDown, 0.03))
	})
}
