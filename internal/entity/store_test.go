package entity

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreMutationsInvisibleUntilSave(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	pool := NewPool("0xabc")
	pool.TxCount = 1
	require.NoError(t, store.Save(ctx, pool))

	loaded, err := Load[*Pool](ctx, store, KindPool, "0xabc")
	require.NoError(t, err)

	loaded.TxCount = 99
	loaded.Liquidity.SetInt64(777)

	again, err := Load[*Pool](ctx, store, KindPool, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.TxCount)
	assert.Equal(t, int64(0), again.Liquidity.Int64())
}

func TestMemoryStoreSaveClones(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	pool := NewPool("0xabc")
	pool.Liquidity = big.NewInt(10)
	require.NoError(t, store.Save(ctx, pool))

	// Mutating the saved pointer must not leak into the store.
	pool.Liquidity.SetInt64(555)

	loaded, err := Load[*Pool](ctx, store, KindPool, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, int64(10), loaded.Liquidity.Int64())
}

func TestMemoryStoreCaseInsensitiveIDs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, NewToken("0xABCDEF")))

	_, err := Load[*Token](ctx, store, KindToken, "0xabcdef")
	assert.NoError(t, err)
}

func TestLoadMissingEntity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := Load[*Pool](ctx, store, KindPool, "0xmissing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadOrCreateDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	bundle, err := LoadOrCreate(ctx, store, KindBundle, BundleID, func(string) *Bundle {
		return NewBundle()
	})
	require.NoError(t, err)
	assert.True(t, bundle.NativePriceUSD.IsZero())

	// The defaults are not saved; a later load still misses.
	_, err = Load[*Bundle](ctx, store, KindBundle, BundleID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConvertTokenToDecimal(t *testing.T) {
	raw, ok := new(big.Int).SetString("1500000000000000000", 10)
	require.True(t, ok)

	got := ConvertTokenToDecimal(raw, 18)
	assert.True(t, got.Equal(decimal.RequireFromString("1.5")), got.String())

	zeroDecimals := ConvertTokenToDecimal(big.NewInt(42), 0)
	assert.True(t, zeroDecimals.Equal(decimal.NewFromInt(42)))
}

func TestSafeDiv(t *testing.T) {
	assert.True(t, SafeDiv(decimal.NewFromInt(1), decimal.Zero).IsZero())
	assert.True(t, SafeDiv(decimal.NewFromInt(10), decimal.NewFromInt(4)).Equal(decimal.RequireFromString("2.5")))
}

func TestBucketIDs(t *testing.T) {
	assert.Equal(t, "0xabc-5", BucketID("0xabc", 5*86400+100, BucketDay))
	assert.Equal(t, int64(5*86400), BucketStart(5*86400+100, BucketDay))
}
