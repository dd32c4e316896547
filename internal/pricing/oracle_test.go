package pricing

import (
	"context"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muzman01/subgraph-studio/internal/config"
	"github.com/muzman01/subgraph-studio/internal/entity"
)

const (
	wnativeAddr = "0xbb00000000000000000000000000000000000001"
	stableAddr  = "0xcc00000000000000000000000000000000000002"
	altAddr     = "0xdd00000000000000000000000000000000000003"
	stablePool  = "0xee00000000000000000000000000000000000004"
	altPool     = "0xff00000000000000000000000000000000000005"
)

func testConfig() *config.DeploymentConfig {
	return &config.DeploymentConfig{
		FactoryAddress:       "0xaa00000000000000000000000000000000000000",
		WrappedNativeAddress: wnativeAddr,
		StablePoolAddress:    stablePool,
		StableIsToken0:       true,
		WhitelistTokens:      []string{wnativeAddr, stableAddr},
		Stablecoins:          []string{stableAddr},
		MinimumNativeLocked:  "5",
	}
}

func testToken(id string, derived decimal.Decimal) *entity.Token {
	token := entity.NewToken(id)
	token.DerivedNative = derived
	return token
}

func saveBundle(t *testing.T, store entity.Store, price decimal.Decimal) {
	t.Helper()
	bundle := entity.NewBundle()
	bundle.NativePriceUSD = price
	require.NoError(t, store.Save(context.Background(), bundle))
}

func TestSqrtPriceX96ToTokenPrices(t *testing.T) {
	token0 := testToken("0x01", decimal.Zero)
	token1 := testToken("0x02", decimal.Zero)

	// 2^96 encodes a raw price of exactly one.
	price0, price1 := SqrtPriceX96ToTokenPrices(new(big.Int).Lsh(big.NewInt(1), 96), token0, token1)
	assert.True(t, price0.Equal(decimal.NewFromInt(1)), price0.String())
	assert.True(t, price1.Equal(decimal.NewFromInt(1)), price1.String())

	// Decimal mismatch scales the ratio: 6-decimal stable vs 18-decimal native.
	token0.Decimals = 6
	_, price1 = SqrtPriceX96ToTokenPrices(new(big.Int).Lsh(big.NewInt(1), 96), token0, token1)
	assert.True(t, price1.Equal(decimal.RequireFromString("0.000000000001")), price1.String())

	// Zero sqrt price cannot blow up the reciprocal.
	price0, price1 = SqrtPriceX96ToTokenPrices(big.NewInt(0), token0, token1)
	assert.True(t, price0.IsZero())
	assert.True(t, price1.IsZero())
}

func TestNativePriceUSD(t *testing.T) {
	ctx := context.Background()
	store := entity.NewMemoryStore()
	oracle := NewOracle(testConfig(), zerolog.Nop())

	// No stable pool yet.
	assert.True(t, oracle.NativePriceUSD(ctx, store).IsZero())

	pool := entity.NewPool(stablePool)
	pool.Token0Price = decimal.RequireFromString("312.5")
	pool.Token1Price = decimal.RequireFromString("0.0032")
	require.NoError(t, store.Save(ctx, pool))

	assert.True(t, oracle.NativePriceUSD(ctx, store).Equal(decimal.RequireFromString("312.5")))

	cfg := testConfig()
	cfg.StableIsToken0 = false
	other := NewOracle(cfg, zerolog.Nop())
	assert.True(t, other.NativePriceUSD(ctx, store).Equal(decimal.RequireFromString("0.0032")))
}

func TestFindNativePerTokenWrappedNative(t *testing.T) {
	ctx := context.Background()
	store := entity.NewMemoryStore()
	oracle := NewOracle(testConfig(), zerolog.Nop())

	price := oracle.FindNativePerToken(ctx, store, testToken(wnativeAddr, decimal.Zero))
	assert.True(t, price.Equal(decimal.NewFromInt(1)))
}

func TestFindNativePerTokenStablecoin(t *testing.T) {
	ctx := context.Background()
	store := entity.NewMemoryStore()
	oracle := NewOracle(testConfig(), zerolog.Nop())

	// No bundle price yet: reciprocal guards the zero denominator.
	price := oracle.FindNativePerToken(ctx, store, testToken(stableAddr, decimal.Zero))
	assert.True(t, price.IsZero())

	saveBundle(t, store, decimal.NewFromInt(250))
	price = oracle.FindNativePerToken(ctx, store, testToken(stableAddr, decimal.Zero))
	assert.True(t, price.Equal(decimal.RequireFromString("0.004")), price.String())
}

func TestFindNativePerTokenWhitelistWalk(t *testing.T) {
	ctx := context.Background()
	store := entity.NewMemoryStore()
	oracle := NewOracle(testConfig(), zerolog.Nop())

	wnative := testToken(wnativeAddr, decimal.NewFromInt(1))
	require.NoError(t, store.Save(ctx, wnative))

	pool := entity.NewPool(altPool)
	pool.Token0 = altAddr
	pool.Token1 = wnativeAddr
	pool.Liquidity = big.NewInt(1000)
	pool.TotalValueLockedToken1 = decimal.NewFromInt(100)
	pool.Token1Price = decimal.RequireFromString("0.25")
	require.NoError(t, store.Save(ctx, pool))

	alt := testToken(altAddr, decimal.Zero)
	alt.WhitelistPools = []string{altPool}

	price := oracle.FindNativePerToken(ctx, store, alt)
	assert.True(t, price.Equal(decimal.RequireFromString("0.25")), price.String())
	assert.False(t, price.IsNegative())

	// Draining the pool's liquidity disqualifies it.
	pool.Liquidity = big.NewInt(0)
	require.NoError(t, store.Save(ctx, pool))
	assert.True(t, oracle.FindNativePerToken(ctx, store, alt).IsZero())
}

func TestFindNativePerTokenBelowMinimumNeedsWhitelistedCounterpart(t *testing.T) {
	ctx := context.Background()
	store := entity.NewMemoryStore()
	oracle := NewOracle(testConfig(), zerolog.Nop())

	counterpart := testToken("0x9900000000000000000000000000000000000009", decimal.NewFromInt(1))
	require.NoError(t, store.Save(ctx, counterpart))

	pool := entity.NewPool(altPool)
	pool.Token0 = altAddr
	pool.Token1 = counterpart.ID
	pool.Liquidity = big.NewInt(1)
	pool.TotalValueLockedToken1 = decimal.NewFromInt(2) // below the minimum of 5
	pool.Token1Price = decimal.NewFromInt(3)
	require.NoError(t, store.Save(ctx, pool))

	alt := testToken(altAddr, decimal.Zero)
	alt.WhitelistPools = []string{altPool}

	// Counterpart is not whitelisted and the pool is under threshold.
	assert.True(t, oracle.FindNativePerToken(ctx, store, alt).IsZero())
}

func TestAdjustedAmounts(t *testing.T) {
	ctx := context.Background()
	store := entity.NewMemoryStore()
	oracle := NewOracle(testConfig(), zerolog.Nop())
	saveBundle(t, store, decimal.NewFromInt(2))

	wnative := testToken(wnativeAddr, decimal.NewFromInt(1))
	stable := testToken(stableAddr, decimal.RequireFromString("0.5"))
	unlisted := testToken(altAddr, decimal.NewFromInt(1))

	ten := decimal.NewFromInt(10)
	four := decimal.NewFromInt(4)

	// Both whitelisted: full sum.
	set := oracle.AdjustedAmounts(ctx, store, ten, wnative, four, stable)
	assert.True(t, set.Native.Equal(decimal.NewFromInt(12)), set.Native.String())
	assert.True(t, set.USD.Equal(decimal.NewFromInt(24)))
	assert.True(t, set.NativeUntracked.Equal(decimal.NewFromInt(12)))

	// One whitelisted: doubled single side.
	set = oracle.AdjustedAmounts(ctx, store, ten, wnative, four, unlisted)
	assert.True(t, set.Native.Equal(decimal.NewFromInt(20)), set.Native.String())
	assert.True(t, set.NativeUntracked.Equal(decimal.NewFromInt(14)))

	// Neither whitelisted: zero tracked, untracked still carries the sum.
	set = oracle.AdjustedAmounts(ctx, store, ten, unlisted, four, unlisted)
	assert.True(t, set.Native.IsZero())
	assert.True(t, set.USD.IsZero())
	assert.True(t, set.NativeUntracked.Equal(decimal.NewFromInt(14)))
	assert.True(t, set.USDUntracked.Equal(decimal.NewFromInt(28)))
}
