package pricing

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muzman01/subgraph-studio/internal/config"
	"github.com/muzman01/subgraph-studio/internal/entity"
)

const (
	stablePairA = "0x1100000000000000000000000000000000000011"
	stablePairB = "0x1200000000000000000000000000000000000012"
)

func pairConfig() *config.DeploymentConfig {
	cfg := testConfig()
	cfg.StablePairs = []config.StablePairConfig{
		{Address: stablePairA, StableIsToken0: true},
		{Address: stablePairB, StableIsToken0: false},
	}
	return cfg
}

func savePair(t *testing.T, store entity.Store, id string, mutate func(*entity.Pair)) *entity.Pair {
	t.Helper()
	pair := entity.NewPair(id)
	mutate(pair)
	require.NoError(t, store.Save(context.Background(), pair))
	return pair
}

func TestBlendedNativePriceUSD(t *testing.T) {
	ctx := context.Background()
	store := entity.NewMemoryStore()
	oracle := NewPairOracle(pairConfig(), StorePairLookup{Store: store}, zerolog.Nop())

	// Neither pair exists.
	assert.True(t, oracle.BlendedNativePriceUSD(ctx, store).IsZero())

	// Single pair falls back to its own quote.
	savePair(t, store, stablePairA, func(p *entity.Pair) {
		p.Token0Price = decimal.NewFromInt(300)
		p.Reserve1 = decimal.NewFromInt(100)
	})
	assert.True(t, oracle.BlendedNativePriceUSD(ctx, store).Equal(decimal.NewFromInt(300)))

	// Two pairs blend weighted by native reserves: (300*100 + 320*300)/400.
	savePair(t, store, stablePairB, func(p *entity.Pair) {
		p.Token1Price = decimal.NewFromInt(320)
		p.Reserve0 = decimal.NewFromInt(300)
	})
	assert.True(t, oracle.BlendedNativePriceUSD(ctx, store).Equal(decimal.NewFromInt(315)))
}

func TestBlendedNativePriceUSDZeroReserves(t *testing.T) {
	ctx := context.Background()
	store := entity.NewMemoryStore()
	oracle := NewPairOracle(pairConfig(), StorePairLookup{Store: store}, zerolog.Nop())

	savePair(t, store, stablePairA, func(p *entity.Pair) {
		p.Token0Price = decimal.NewFromInt(300)
	})
	savePair(t, store, stablePairB, func(p *entity.Pair) {
		p.Token1Price = decimal.NewFromInt(320)
	})

	assert.True(t, oracle.BlendedNativePriceUSD(ctx, store).IsZero())
}

func TestPairFindNativePerToken(t *testing.T) {
	ctx := context.Background()
	store := entity.NewMemoryStore()
	oracle := NewPairOracle(pairConfig(), StorePairLookup{Store: store}, zerolog.Nop())

	// The reference asset is always 1.0.
	price := oracle.FindNativePerToken(ctx, store, testToken(wnativeAddr, decimal.Zero))
	assert.True(t, price.Equal(decimal.NewFromInt(1)))

	wnative := testToken(wnativeAddr, decimal.NewFromInt(1))
	require.NoError(t, store.Save(ctx, wnative))

	// Register the alt/wnative pair under its sorted registry id.
	token0, token1 := altAddr, wnativeAddr
	if token1 < token0 {
		token0, token1 = token1, token0
	}
	registry := entity.NewPair(token0 + "-" + token1)
	registry.Token0 = token0
	registry.Token1 = token1
	registry.Token0Price = decimal.NewFromInt(2)
	registry.Token1Price = decimal.RequireFromString("0.5")
	registry.ReserveNative = decimal.NewFromInt(50)
	require.NoError(t, store.Save(ctx, registry))

	alt := testToken(altAddr, decimal.Zero)
	price = oracle.FindNativePerToken(ctx, store, alt)
	assert.False(t, price.IsNegative())
	assert.False(t, price.IsZero())

	// Draining the reserve below the minimum disqualifies the pair.
	registry.ReserveNative = decimal.NewFromInt(1)
	require.NoError(t, store.Save(ctx, registry))
	assert.True(t, oracle.FindNativePerToken(ctx, store, alt).IsZero())
}

func TestTrackedVolumeUSD(t *testing.T) {
	ctx := context.Background()
	store := entity.NewMemoryStore()
	oracle := NewPairOracle(pairConfig(), StorePairLookup{Store: store}, zerolog.Nop())
	saveBundle(t, store, decimal.NewFromInt(1))

	wnative := testToken(wnativeAddr, decimal.NewFromInt(1))
	stable := testToken(stableAddr, decimal.NewFromInt(1))

	ten := decimal.NewFromInt(10)
	six := decimal.NewFromInt(6)

	// Both whitelisted: the two legs average.
	got := oracle.TrackedVolumeUSD(ctx, store, ten, wnative, six, stable)
	assert.True(t, got.Equal(decimal.NewFromInt(8)), got.String())

	// One whitelisted: that leg alone.
	unlisted := testToken(altAddr, decimal.Zero)
	got = oracle.TrackedVolumeUSD(ctx, store, ten, wnative, six, unlisted)
	assert.True(t, got.Equal(decimal.NewFromInt(10)))

	// Neither whitelisted but one leg carries a price picked up elsewhere:
	// the sum still leaks through instead of short-circuiting to zero.
	pricedUnlisted := testToken("0x7700000000000000000000000000000000000007", decimal.NewFromInt(3))
	got = oracle.TrackedVolumeUSD(ctx, store, ten, pricedUnlisted, six, unlisted)
	assert.True(t, got.Equal(decimal.NewFromInt(30)), got.String())

	// Fully unpriced legs still produce zero through the same path.
	got = oracle.TrackedVolumeUSD(ctx, store, ten, unlisted, six, unlisted)
	assert.True(t, got.IsZero())
}

func TestTrackedFeeVolumeUSD(t *testing.T) {
	ctx := context.Background()
	store := entity.NewMemoryStore()
	oracle := NewPairOracle(pairConfig(), StorePairLookup{Store: store}, zerolog.Nop())
	saveBundle(t, store, decimal.NewFromInt(1))

	wnative := testToken(wnativeAddr, decimal.NewFromInt(1))
	stable := testToken(stableAddr, decimal.NewFromInt(1))
	unlisted := testToken(altAddr, decimal.NewFromInt(1))

	got := oracle.TrackedFeeVolumeUSD(ctx, store, decimal.NewFromInt(10), wnative, decimal.NewFromInt(6), stable)
	assert.True(t, got.Equal(decimal.NewFromInt(4)))

	got = oracle.TrackedFeeVolumeUSD(ctx, store, decimal.NewFromInt(10), wnative, decimal.NewFromInt(6), unlisted)
	assert.True(t, got.IsZero())
}

func TestTrackedLiquidityUSD(t *testing.T) {
	ctx := context.Background()
	store := entity.NewMemoryStore()
	oracle := NewPairOracle(pairConfig(), StorePairLookup{Store: store}, zerolog.Nop())
	saveBundle(t, store, decimal.NewFromInt(1))

	wnative := testToken(wnativeAddr, decimal.NewFromInt(1))
	stable := testToken(stableAddr, decimal.NewFromInt(1))
	unlisted := testToken(altAddr, decimal.NewFromInt(1))

	ten := decimal.NewFromInt(10)
	six := decimal.NewFromInt(6)

	assert.True(t, oracle.TrackedLiquidityUSD(ctx, store, ten, wnative, six, stable).Equal(decimal.NewFromInt(16)))
	assert.True(t, oracle.TrackedLiquidityUSD(ctx, store, ten, wnative, six, unlisted).Equal(decimal.NewFromInt(20)))
	assert.True(t, oracle.TrackedLiquidityUSD(ctx, store, ten, unlisted, six, unlisted).IsZero())
}
