package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mirra/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := types.AccountSnapshot{
		AccountID: "acct-1",
		Balances: types.Balances{
			LiquidationValue: 20000,
			CashBalance:      5000,
			BuyingPower:      10000,
			PositionsValue:   15000,
		},
		Positions: []types.Position{
			{Symbol: "SPY", Side: types.SideLong, Quantity: 30, Price: 500, MarketValue: 15000},
		},
		FetchedAt: time.Now().Truncate(time.Millisecond),
	}
	require.NoError(t, s.Put(ctx, snap))

	got, ok, err := s.Get(ctx, "acct-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 20000, got.Equity(), 1e-9)
	require.Len(t, got.Positions, 1)
	assert.Equal(t, "SPY", got.Positions[0].Symbol)

	t.Run("upsert replaces", func(t *testing.T) {
		snap.Balances.LiquidationValue = 21000
		require.NoError(t, s.Put(ctx, snap))
		got, ok, err := s.Get(ctx, "acct-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, 21000, got.Equity(), 1e-9)
	})

	t.Run("missing account", func(t *testing.T) {
		_, ok, err := s.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty account id rejected", func(t *testing.T) {
		assert.Error(t, s.Put(ctx, types.AccountSnapshot{}))
	})
}

func TestStore_All(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a"} {
		require.NoError(t, s.Put(ctx, types.AccountSnapshot{AccountID: id, FetchedAt: time.Now()}))
	}
	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].AccountID)
	assert.Equal(t, "b", all[1].AccountID)
}

func TestStore_NilGuards(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Close())
	assert.Error(t, s.Put(context.Background(), types.AccountSnapshot{AccountID: "x"}))
}
