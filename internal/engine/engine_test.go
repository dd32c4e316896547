package engine

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muzman01/subgraph-studio/internal/chain"
	"github.com/muzman01/subgraph-studio/internal/config"
	"github.com/muzman01/subgraph-studio/internal/entity"
	"github.com/muzman01/subgraph-studio/internal/events"
)

const (
	factoryAddr = "0x0f00000000000000000000000000000000000001"
	stableAddr  = "0x1000000000000000000000000000000000000002"
	wnativeAddr = "0x2000000000000000000000000000000000000003"
	poolAddr    = "0x3000000000000000000000000000000000000004"
	userAddr    = "0x4000000000000000000000000000000000000005"
)

var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

func tokens18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func testDeployment() *config.DeploymentConfig {
	return &config.DeploymentConfig{
		FactoryAddress:       factoryAddr,
		WrappedNativeAddress: wnativeAddr,
		StablePoolAddress:    poolAddr,
		StableIsToken0:       true,
		WhitelistTokens:      []string{stableAddr, wnativeAddr},
		Stablecoins:          []string{stableAddr},
		MinimumNativeLocked:  "0",
	}
}

func newTestEngine(t *testing.T) (*Engine, *entity.MemoryStore) {
	t.Helper()
	store := entity.NewMemoryStore()
	e, err := New(store, chain.StubAccessor{}, testDeployment(), zerolog.Nop())
	require.NoError(t, err)
	return e, store
}

var txCounter int

func testEvent(address, name string, args map[string]interface{}, timestamp int64) *events.ParsedEvent {
	txCounter++
	return &events.ParsedEvent{
		EventName:       name,
		Address:         common.HexToAddress(address),
		Args:            args,
		TransactionHash: common.HexToHash(fmt.Sprintf("0x%064x", txCounter)),
		BlockNumber:     uint64(txCounter),
		LogIndex:        0,
		Timestamp:       timestamp,
	}
}

func createPool(t *testing.T, e *Engine, timestamp int64) {
	t.Helper()
	err := e.handlePoolCreated(context.Background(), testEvent(factoryAddr, "PoolCreated", map[string]interface{}{
		"token0":      common.HexToAddress(stableAddr),
		"token1":      common.HexToAddress(wnativeAddr),
		"fee":         big.NewInt(3000),
		"tickSpacing": big.NewInt(60),
		"pool":        common.HexToAddress(poolAddr),
	}, timestamp))
	require.NoError(t, err)
}

func initializePool(t *testing.T, e *Engine, timestamp int64) {
	t.Helper()
	err := e.handleInitialize(context.Background(), testEvent(poolAddr, "Initialize", map[string]interface{}{
		"sqrtPriceX96": new(big.Int).Set(q96),
		"tick":         big.NewInt(0),
	}, timestamp))
	require.NoError(t, err)
}

func swapEvent(amount0, amount1 *big.Int, tick int64, timestamp int64) map[string]interface{} {
	return map[string]interface{}{
		"sender":             common.HexToAddress(userAddr),
		"recipient":          common.HexToAddress(userAddr),
		"amount0":            amount0,
		"amount1":            amount1,
		"sqrtPriceX96":       new(big.Int).Set(q96),
		"liquidity":          big.NewInt(1_000_000),
		"tick":               big.NewInt(tick),
		"protocolFeesToken0": big.NewInt(0),
		"protocolFeesToken1": big.NewInt(0),
	}
}

func mintEvent(tickLower, tickUpper, amount int64, amount0, amount1 *big.Int) map[string]interface{} {
	return map[string]interface{}{
		"sender":    common.HexToAddress(userAddr),
		"owner":     common.HexToAddress(userAddr),
		"tickLower": big.NewInt(tickLower),
		"tickUpper": big.NewInt(tickUpper),
		"amount":    big.NewInt(amount),
		"amount0":   amount0,
		"amount1":   amount1,
	}
}

func loadPool(t *testing.T, store entity.Store) *entity.Pool {
	t.Helper()
	pool, err := entity.Load[*entity.Pool](context.Background(), store, entity.KindPool, poolAddr)
	require.NoError(t, err)
	return pool
}

func TestPoolCreatedRegistersTokensAndWhitelists(t *testing.T) {
	e, store := newTestEngine(t)
	createPool(t, e, 1000)

	ctx := context.Background()
	pool := loadPool(t, store)
	assert.Equal(t, stableAddr, pool.Token0)
	assert.Equal(t, wnativeAddr, pool.Token1)
	assert.Equal(t, int64(3000), pool.FeeTier)
	assert.Nil(t, pool.Tick)

	factory, err := entity.Load[*entity.Factory](ctx, store, entity.KindFactory, factoryAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(1), factory.PoolCount)

	// Each token lists the pool because its counterpart is whitelisted.
	stable, err := entity.Load[*entity.Token](ctx, store, entity.KindToken, stableAddr)
	require.NoError(t, err)
	assert.Contains(t, stable.WhitelistPools, poolAddr)

	wnative, err := entity.Load[*entity.Token](ctx, store, entity.KindToken, wnativeAddr)
	require.NoError(t, err)
	assert.Contains(t, wnative.WhitelistPools, poolAddr)
}

func TestInitializeSetsUnitPrices(t *testing.T) {
	e, store := newTestEngine(t)
	createPool(t, e, 1000)
	initializePool(t, e, 1000)

	ctx := context.Background()
	pool := loadPool(t, store)
	require.NotNil(t, pool.Tick)
	assert.Equal(t, int32(0), *pool.Tick)

	// sqrtPriceX96 = 2^96 between two 18-decimal tokens prices both at one.
	assert.True(t, pool.Token0Price.Equal(decimal.NewFromInt(1)), pool.Token0Price.String())
	assert.True(t, pool.Token1Price.Equal(decimal.NewFromInt(1)), pool.Token1Price.String())

	bundle, err := entity.Load[*entity.Bundle](ctx, store, entity.KindBundle, entity.BundleID)
	require.NoError(t, err)
	assert.True(t, bundle.NativePriceUSD.Equal(decimal.NewFromInt(1)))

	stable, err := entity.Load[*entity.Token](ctx, store, entity.KindToken, stableAddr)
	require.NoError(t, err)
	assert.True(t, stable.DerivedNative.Equal(decimal.NewFromInt(1)))

	wnative, err := entity.Load[*entity.Token](ctx, store, entity.KindToken, wnativeAddr)
	require.NoError(t, err)
	assert.True(t, wnative.DerivedNative.Equal(decimal.NewFromInt(1)))
}

func TestSwapVolumeAndFees(t *testing.T) {
	e, store := newTestEngine(t)
	createPool(t, e, 1000)
	initializePool(t, e, 1000)

	ctx := context.Background()
	amount0 := tokens18(1000)
	amount1 := new(big.Int).Neg(tokens18(995))
	pe := testEvent(poolAddr, "Swap", swapEvent(amount0, amount1, 0, 1000), 1000)
	require.NoError(t, e.handleSwap(ctx, pe))

	pool := loadPool(t, store)

	// Both sides whitelisted at price one: adjusted value 1995, halved.
	assert.True(t, pool.VolumeUSD.Equal(decimal.RequireFromString("997.5")), pool.VolumeUSD.String())
	assert.True(t, pool.VolumeToken0.Equal(decimal.NewFromInt(1000)))
	assert.True(t, pool.VolumeToken1.Equal(decimal.NewFromInt(995)))
	assert.True(t, pool.FeesUSD.Equal(decimal.RequireFromString("2.9925")), pool.FeesUSD.String())

	factory, err := entity.Load[*entity.Factory](ctx, store, entity.KindFactory, factoryAddr)
	require.NoError(t, err)
	assert.True(t, factory.TotalVolumeUSD.Equal(pool.VolumeUSD))
	assert.True(t, factory.TotalFeesUSD.Equal(pool.FeesUSD))
	assert.Equal(t, int64(1), factory.TxCount)

	// TVL moves by the signed amounts: +1000 stable, -995 native.
	assert.True(t, pool.TotalValueLockedToken0.Equal(decimal.NewFromInt(1000)))
	assert.True(t, pool.TotalValueLockedToken1.Equal(decimal.NewFromInt(-995)))

	swap, err := entity.Load[*entity.Swap](ctx, store, entity.KindSwap, recordID(pe.TransactionHash.Hex(), 1))
	require.NoError(t, err)
	assert.True(t, swap.Amount0.Equal(decimal.NewFromInt(1000)))
	assert.True(t, swap.Amount1.Equal(decimal.NewFromInt(-995)))
	assert.True(t, swap.AmountUSD.Equal(pool.VolumeUSD))
}

func TestSwapOnUninitializedPoolAborts(t *testing.T) {
	e, store := newTestEngine(t)
	createPool(t, e, 1000)

	before := store.Len()
	pe := testEvent(poolAddr, "Swap", swapEvent(tokens18(1), new(big.Int).Neg(tokens18(1)), 0, 1000), 1000)
	require.NoError(t, e.handleSwap(context.Background(), pe))

	assert.Equal(t, before, store.Len())
	pool := loadPool(t, store)
	assert.Equal(t, int64(0), pool.TxCount)
}

func TestMintCreatesBoundaryTicks(t *testing.T) {
	e, store := newTestEngine(t)
	createPool(t, e, 1000)
	initializePool(t, e, 1000)

	ctx := context.Background()
	pe := testEvent(poolAddr, "Mint", mintEvent(-100, 100, 500, tokens18(10), tokens18(10)), 1000)
	require.NoError(t, e.handleMint(ctx, pe))

	pool := loadPool(t, store)
	// The range straddles the current tick, so liquidity activates.
	assert.Equal(t, int64(500), pool.Liquidity.Int64())
	assert.Equal(t, int64(1), pool.LiquidityProviderCount)
	assert.True(t, pool.TotalValueLockedToken0.Equal(decimal.NewFromInt(10)))

	lower, err := entity.Load[*entity.Tick](ctx, store, entity.KindTick, tickID(poolAddr, -100))
	require.NoError(t, err)
	assert.Equal(t, int64(500), lower.LiquidityGross.Int64())
	assert.Equal(t, int64(500), lower.LiquidityNet.Int64())

	upper, err := entity.Load[*entity.Tick](ctx, store, entity.KindTick, tickID(poolAddr, 100))
	require.NoError(t, err)
	assert.Equal(t, int64(500), upper.LiquidityGross.Int64())
	assert.Equal(t, int64(-500), upper.LiquidityNet.Int64())

	mint, err := entity.Load[*entity.Mint](ctx, store, entity.KindMint, recordID(pe.TransactionHash.Hex(), 1))
	require.NoError(t, err)
	assert.Equal(t, int32(-100), mint.TickLower)
	assert.Equal(t, int32(100), mint.TickUpper)
}

func TestMintOutOfRangeLeavesLiquidity(t *testing.T) {
	e, store := newTestEngine(t)
	createPool(t, e, 1000)
	initializePool(t, e, 1000)

	pe := testEvent(poolAddr, "Mint", mintEvent(60, 120, 500, tokens18(10), big.NewInt(0)), 1000)
	require.NoError(t, e.handleMint(context.Background(), pe))

	pool := loadPool(t, store)
	assert.Equal(t, int64(0), pool.Liquidity.Int64())
}

func TestBurnRestoresMintState(t *testing.T) {
	e, store := newTestEngine(t)
	createPool(t, e, 1000)
	initializePool(t, e, 1000)

	ctx := context.Background()
	mint := testEvent(poolAddr, "Mint", mintEvent(-100, 100, 500, tokens18(10), tokens18(10)), 1000)
	require.NoError(t, e.handleMint(ctx, mint))
	burn := testEvent(poolAddr, "Burn", map[string]interface{}{
		"owner":     common.HexToAddress(userAddr),
		"tickLower": big.NewInt(-100),
		"tickUpper": big.NewInt(100),
		"amount":    big.NewInt(500),
		"amount0":   tokens18(10),
		"amount1":   tokens18(10),
	}, 1000)
	require.NoError(t, e.handleBurn(ctx, burn))

	pool := loadPool(t, store)
	assert.Equal(t, int64(0), pool.Liquidity.Int64())
	assert.True(t, pool.TotalValueLockedToken0.IsZero())
	assert.True(t, pool.TotalValueLockedToken1.IsZero())
	assert.True(t, pool.TotalValueLockedUSD.IsZero())

	for _, idx := range []int32{-100, 100} {
		tick, err := entity.Load[*entity.Tick](ctx, store, entity.KindTick, tickID(poolAddr, idx))
		require.NoError(t, err)
		assert.Equal(t, int64(0), tick.LiquidityGross.Int64())
		assert.Equal(t, int64(0), tick.LiquidityNet.Int64())
	}
}

func TestBurnMissingTickAborts(t *testing.T) {
	e, store := newTestEngine(t)
	createPool(t, e, 1000)
	initializePool(t, e, 1000)

	burn := testEvent(poolAddr, "Burn", map[string]interface{}{
		"owner":     common.HexToAddress(userAddr),
		"tickLower": big.NewInt(-100),
		"tickUpper": big.NewInt(100),
		"amount":    big.NewInt(500),
		"amount0":   tokens18(10),
		"amount1":   tokens18(10),
	}, 1000)
	require.NoError(t, e.handleBurn(context.Background(), burn))

	pool := loadPool(t, store)
	assert.Equal(t, int64(0), pool.TxCount)
	assert.True(t, pool.TotalValueLockedToken0.IsZero())
}

func TestSwapTickWalk(t *testing.T) {
	e, store := newTestEngine(t)
	createPool(t, e, 1000)
	initializePool(t, e, 1000)

	ctx := context.Background()
	day := entity.BucketDay

	// Seed boundary ticks at 60 and 120.
	mint := testEvent(poolAddr, "Mint", mintEvent(60, 120, 500, tokens18(10), big.NewInt(0)), day)
	require.NoError(t, e.handleMint(ctx, mint))

	// Crossing two spacing-aligned boundaries refreshes both ticks.
	swap := testEvent(poolAddr, "Swap", swapEvent(tokens18(1), new(big.Int).Neg(tokens18(1)), 120, 2*day), 2*day)
	require.NoError(t, e.handleSwap(ctx, swap))

	for _, idx := range []int32{60, 120} {
		id := entity.BucketID(tickID(poolAddr, idx), 2*day, day)
		_, err := entity.Load[*entity.TickDayData](ctx, store, entity.KindTickDayData, id)
		assert.NoError(t, err, "tick %d should have been refreshed", idx)
	}
}

func TestSwapTickWalkEscapeValve(t *testing.T) {
	e, store := newTestEngine(t)
	createPool(t, e, 1000)
	initializePool(t, e, 1000)

	ctx := context.Background()
	day := entity.BucketDay

	mint := testEvent(poolAddr, "Mint", mintEvent(60, 120, 500, tokens18(10), big.NewInt(0)), day)
	require.NoError(t, e.handleMint(ctx, mint))

	// 150 spacing steps from tick 0 skips the refresh walk entirely.
	swap := testEvent(poolAddr, "Swap", swapEvent(tokens18(1), new(big.Int).Neg(tokens18(1)), 9000, 2*day), 2*day)
	require.NoError(t, e.handleSwap(ctx, swap))

	for _, idx := range []int32{60, 120} {
		id := entity.BucketID(tickID(poolAddr, idx), 2*day, day)
		_, err := entity.Load[*entity.TickDayData](ctx, store, entity.KindTickDayData, id)
		assert.ErrorIs(t, err, entity.ErrNotFound, "tick %d refresh should have been skipped", idx)
	}
}

func TestUnknownFeeTier(t *testing.T) {
	_, err := feeTierToTickSpacing(1234)
	var unknownTier ErrUnknownFeeTier
	require.ErrorAs(t, err, &unknownTier)
	assert.Equal(t, int64(1234), unknownTier.FeeTier)

	for tier, want := range map[int64]int32{100: 1, 500: 10, 2500: 50, 3000: 60, 10000: 200} {
		spacing, err := feeTierToTickSpacing(tier)
		require.NoError(t, err)
		assert.Equal(t, want, spacing)
	}
}

func TestCollectAccumulatesFees(t *testing.T) {
	e, store := newTestEngine(t)
	createPool(t, e, 1000)
	initializePool(t, e, 1000)

	ctx := context.Background()
	pe := testEvent(poolAddr, "Collect", map[string]interface{}{
		"owner":     common.HexToAddress(userAddr),
		"recipient": common.HexToAddress(userAddr),
		"tickLower": big.NewInt(-100),
		"tickUpper": big.NewInt(100),
		"amount0":   tokens18(3),
		"amount1":   tokens18(2),
	}, 1000)
	require.NoError(t, e.handleCollect(ctx, pe))

	pool := loadPool(t, store)
	assert.True(t, pool.CollectedFeesToken0.Equal(decimal.NewFromInt(3)))
	assert.True(t, pool.CollectedFeesToken1.Equal(decimal.NewFromInt(2)))
	assert.True(t, pool.CollectedFeesUSD.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, int64(1), pool.TxCount)

	_, err := entity.Load[*entity.Collect](ctx, store, entity.KindCollect, recordID(pe.TransactionHash.Hex(), 1))
	assert.NoError(t, err)
}

func TestCollectProtocolReducesTVL(t *testing.T) {
	e, store := newTestEngine(t)
	createPool(t, e, 1000)
	initializePool(t, e, 1000)

	ctx := context.Background()
	mint := testEvent(poolAddr, "Mint", mintEvent(-100, 100, 500, tokens18(10), tokens18(10)), 1000)
	require.NoError(t, e.handleMint(ctx, mint))

	pe := testEvent(poolAddr, "CollectProtocol", map[string]interface{}{
		"sender":    common.HexToAddress(userAddr),
		"recipient": common.HexToAddress(userAddr),
		"amount0":   tokens18(4),
		"amount1":   tokens18(1),
	}, 1000)
	require.NoError(t, e.handleCollectProtocol(ctx, pe))

	pool := loadPool(t, store)
	assert.True(t, pool.TotalValueLockedToken0.Equal(decimal.NewFromInt(6)))
	assert.True(t, pool.TotalValueLockedToken1.Equal(decimal.NewFromInt(9)))
}

func TestBucketMonotonicity(t *testing.T) {
	e, store := newTestEngine(t)
	createPool(t, e, 1000)
	initializePool(t, e, 1000)

	ctx := context.Background()
	// Move the price around within one hour window.
	for _, shift := range []int64{97, 95, 99, 96} {
		args := swapEvent(tokens18(10), new(big.Int).Neg(tokens18(10)), 0, 1800)
		args["sqrtPriceX96"] = new(big.Int).Lsh(big.NewInt(1), uint(shift))
		require.NoError(t, e.handleSwap(ctx, testEvent(poolAddr, "Swap", args, 1800)))
	}

	pool := loadPool(t, store)
	id := entity.BucketID(pool.ID, 1800, entity.BucketHour)
	bucket, err := entity.Load[*entity.PoolBucketData](ctx, store, entity.KindPoolHourData, id)
	require.NoError(t, err)

	assert.True(t, bucket.High.GreaterThanOrEqual(bucket.Open))
	assert.True(t, bucket.High.GreaterThanOrEqual(bucket.Close))
	assert.True(t, bucket.Low.LessThanOrEqual(bucket.Open))
	assert.True(t, bucket.Low.LessThanOrEqual(bucket.Close))
	assert.True(t, bucket.High.GreaterThanOrEqual(bucket.Low))
}

func TestDeterminism(t *testing.T) {
	run := func() *entity.MemoryStore {
		store := entity.NewMemoryStore()
		e, err := New(store, chain.StubAccessor{}, testDeployment(), zerolog.Nop())
		require.NoError(t, err)

		ctx := context.Background()
		base := txCounter
		createPool(t, e, 1000)
		initializePool(t, e, 1000)
		require.NoError(t, e.handleMint(ctx, testEvent(poolAddr, "Mint", mintEvent(-100, 100, 500, tokens18(10), tokens18(10)), 1000)))
		require.NoError(t, e.handleSwap(ctx, testEvent(poolAddr, "Swap", swapEvent(tokens18(5), new(big.Int).Neg(tokens18(5)), 0, 2000), 2000)))
		txCounter = base
		return store
	}

	first := run()
	second := run()

	require.Equal(t, first.Keys(), second.Keys())
	for _, key := range first.Keys() {
		a, _ := first.Get(key)
		b, _ := second.Get(key)
		assert.Equal(t, a, b, "entity %s diverged between runs", key)
	}
}

func TestFlashRefreshKeepsStoredValuesWithoutRPC(t *testing.T) {
	e, store := newTestEngine(t)
	createPool(t, e, 1000)
	initializePool(t, e, 1000)

	pe := testEvent(poolAddr, "Flash", map[string]interface{}{
		"sender":    common.HexToAddress(userAddr),
		"recipient": common.HexToAddress(userAddr),
		"amount0":   big.NewInt(0),
		"amount1":   big.NewInt(0),
		"paid0":     big.NewInt(0),
		"paid1":     big.NewInt(0),
	}, 1000)
	require.NoError(t, e.handleFlash(context.Background(), pe))

	pool := loadPool(t, store)
	assert.Equal(t, int64(0), pool.FeeGrowthGlobal0X128.Int64())
}
