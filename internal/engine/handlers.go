package engine

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/muzman01/subgraph-studio/internal/entity"
	"github.com/muzman01/subgraph-studio/internal/events"
	"github.com/muzman01/subgraph-studio/internal/pricing"
)

var million = decimal.NewFromInt(1_000_000)

// handlePoolCreated registers the pool and its tokens. Token metadata
// comes from the chain accessor and falls back to placeholders, so an
// unreadable ERC20 never blocks pool creation.
func (e *Engine) handlePoolCreated(ctx context.Context, pe *events.ParsedEvent) error {
	ev, err := events.DecodePoolCreated(pe)
	if err != nil {
		return err
	}

	factory, err := e.loadFactory(ctx)
	if err != nil {
		return err
	}
	factory.PoolCount++

	token0, err := e.loadOrCreateToken(ctx, ev.Token0)
	if err != nil {
		return err
	}
	token1, err := e.loadOrCreateToken(ctx, ev.Token1)
	if err != nil {
		return err
	}

	pool := entity.NewPool(ev.Pool)
	pool.Token0 = token0.ID
	pool.Token1 = token1.ID
	pool.FeeTier = ev.Fee
	pool.CreatedAtTimestamp = pe.Timestamp
	pool.CreatedAtBlockNumber = pe.BlockNumber

	// Whitelisted counterparts make this pool a price-discovery candidate
	// for the other side.
	if e.cfg.IsWhitelisted(token0.ID) {
		token1.WhitelistPools = append(token1.WhitelistPools, pool.ID)
	}
	if e.cfg.IsWhitelisted(token1.ID) {
		token0.WhitelistPools = append(token0.WhitelistPools, pool.ID)
	}

	for _, ent := range []entity.Entity{token0, token1, pool, factory} {
		if err := e.store.Save(ctx, ent); err != nil {
			return err
		}
	}

	if e.onPool != nil {
		e.onPool(pool.ID)
	}

	e.logger.Info().
		Str("pool", pool.ID).
		Str("token0", token0.Symbol).
		Str("token1", token1.Symbol).
		Int64("fee_tier", pool.FeeTier).
		Msg("Pool created")
	return nil
}

func (e *Engine) loadOrCreateToken(ctx context.Context, id string) (*entity.Token, error) {
	token, err := entity.Load[*entity.Token](ctx, e.store, entity.KindToken, id)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, entity.ErrNotFound) {
		return nil, err
	}

	token = entity.NewToken(id)
	metadata, err := e.chain.TokenMetadata(ctx, id)
	if err != nil {
		e.logger.Warn().Err(err).Str("token", id).Msg("Failed to fetch token metadata, using defaults")
	} else {
		token.Name = metadata.Name
		token.Symbol = metadata.Symbol
		token.Decimals = metadata.Decimals
		token.TotalSupply = metadata.TotalSupply
	}
	return token, nil
}

// handleInitialize records the pool's starting price and tick, then
// refreshes the bundle price and both tokens' derived prices.
func (e *Engine) handleInitialize(ctx context.Context, pe *events.ParsedEvent) error {
	ev, err := events.DecodeInitialize(pe)
	if err != nil {
		return err
	}

	poolID := addressID(pe)
	pool, err := entity.Load[*entity.Pool](ctx, e.store, entity.KindPool, poolID)
	if err != nil {
		e.logger.Error().Str("pool", poolID).Msg("Pool not found for initialize")
		return nil
	}

	token0, token1, err := e.loadPoolTokens(ctx, pool)
	if err != nil {
		return nil
	}

	pool.SqrtPrice = ev.SqrtPriceX96
	tick := ev.Tick
	pool.Tick = &tick
	pool.Token0Price, pool.Token1Price = pricing.SqrtPriceX96ToTokenPrices(pool.SqrtPrice, token0, token1)
	if err := e.store.Save(ctx, pool); err != nil {
		return err
	}

	bundle, err := e.loadBundle(ctx)
	if err != nil {
		return err
	}
	bundle.NativePriceUSD = e.oracle.NativePriceUSD(ctx, e.store)
	if err := e.store.Save(ctx, bundle); err != nil {
		return err
	}

	if _, err := e.updatePoolBuckets(ctx, pool, pe.Timestamp); err != nil {
		return err
	}

	token0.DerivedNative = e.oracle.FindNativePerToken(ctx, e.store, token0)
	token1.DerivedNative = e.oracle.FindNativePerToken(ctx, e.store, token1)
	if err := e.store.Save(ctx, token0); err != nil {
		return err
	}
	return e.store.Save(ctx, token1)
}

func (e *Engine) handleMint(ctx context.Context, pe *events.ParsedEvent) error {
	ev, err := events.DecodeMint(pe)
	if err != nil {
		return err
	}

	poolID := addressID(pe)
	pool, err := entity.Load[*entity.Pool](ctx, e.store, entity.KindPool, poolID)
	if err != nil {
		e.logger.Error().Str("pool", poolID).Msg("Pool not found for mint")
		return nil
	}
	token0, token1, err := e.loadPoolTokens(ctx, pool)
	if err != nil {
		return nil
	}

	bundle, err := e.loadBundle(ctx)
	if err != nil {
		return err
	}
	factory, err := e.loadFactory(ctx)
	if err != nil {
		return err
	}

	amount0 := entity.ConvertTokenToDecimal(ev.Amount0, token0.Decimals)
	amount1 := entity.ConvertTokenToDecimal(ev.Amount1, token1.Decimals)
	amountUSD := amount0.Mul(token0.DerivedNative.Mul(bundle.NativePriceUSD)).
		Add(amount1.Mul(token1.DerivedNative.Mul(bundle.NativePriceUSD)))

	oldPoolTVLNative := pool.TotalValueLockedNative
	oldPoolTVLNativeUntracked := pool.TotalValueLockedNativeUntracked
	token0.TotalValueLocked = token0.TotalValueLocked.Add(amount0)
	token1.TotalValueLocked = token1.TotalValueLocked.Add(amount1)
	pool.TotalValueLockedToken0 = pool.TotalValueLockedToken0.Add(amount0)
	pool.TotalValueLockedToken1 = pool.TotalValueLockedToken1.Add(amount1)
	if err := e.updateDerivedTVLAmounts(ctx, pool, factory, token0, token1, oldPoolTVLNative, oldPoolTVLNativeUntracked); err != nil {
		return err
	}

	factory.TxCount++
	token0.TxCount++
	token1.TxCount++
	pool.TxCount++

	// Only in-range liquidity participates in swaps.
	if pool.Tick != nil && ev.TickLower <= *pool.Tick && ev.TickUpper > *pool.Tick {
		pool.Liquidity = new(big.Int).Add(pool.Liquidity, ev.Amount)
	}
	pool.LiquidityProviderCount++

	tx, err := e.loadTransaction(ctx, pe)
	if err != nil {
		return err
	}

	mint := &entity.Mint{
		ID:          recordID(tx.ID, pool.TxCount),
		Transaction: tx.ID,
		Timestamp:   tx.Timestamp,
		Pool:        pool.ID,
		Token0:      pool.Token0,
		Token1:      pool.Token1,
		Owner:       ev.Owner,
		Sender:      ev.Sender,
		Origin:      ev.Sender,
		Amount:      ev.Amount,
		Amount0:     amount0,
		Amount1:     amount1,
		AmountUSD:   amountUSD,
		TickLower:   ev.TickLower,
		TickUpper:   ev.TickUpper,
		LogIndex:    pe.LogIndex,
	}

	lowerTick, err := e.loadOrCreateTick(ctx, pool.ID, ev.TickLower, pe)
	if err != nil {
		return err
	}
	upperTick, err := e.loadOrCreateTick(ctx, pool.ID, ev.TickUpper, pe)
	if err != nil {
		return err
	}

	lowerTick.LiquidityGross = new(big.Int).Add(lowerTick.LiquidityGross, ev.Amount)
	lowerTick.LiquidityNet = new(big.Int).Add(lowerTick.LiquidityNet, ev.Amount)
	upperTick.LiquidityGross = new(big.Int).Add(upperTick.LiquidityGross, ev.Amount)
	upperTick.LiquidityNet = new(big.Int).Sub(upperTick.LiquidityNet, ev.Amount)

	if _, err := e.updateProtocolDayData(ctx, factory, pe.Timestamp); err != nil {
		return err
	}
	if _, err := e.updatePoolBuckets(ctx, pool, pe.Timestamp); err != nil {
		return err
	}
	if _, err := e.updateTokenBuckets(ctx, token0, pe.Timestamp); err != nil {
		return err
	}
	if _, err := e.updateTokenBuckets(ctx, token1, pe.Timestamp); err != nil {
		return err
	}

	for _, ent := range []entity.Entity{token0, token1, pool, factory, mint} {
		if err := e.store.Save(ctx, ent); err != nil {
			return err
		}
	}

	if err := e.refreshTickFeeVars(ctx, lowerTick, pe); err != nil {
		return err
	}
	return e.refreshTickFeeVars(ctx, upperTick, pe)
}

func (e *Engine) handleBurn(ctx context.Context, pe *events.ParsedEvent) error {
	ev, err := events.DecodeBurn(pe)
	if err != nil {
		return err
	}

	poolID := addressID(pe)
	pool, err := entity.Load[*entity.Pool](ctx, e.store, entity.KindPool, poolID)
	if err != nil {
		e.logger.Error().Str("pool", poolID).Msg("Pool not found for burn")
		return nil
	}
	token0, token1, err := e.loadPoolTokens(ctx, pool)
	if err != nil {
		return nil
	}

	// Boundary ticks must exist before any mutation is persisted.
	lowerTick, lerr := entity.Load[*entity.Tick](ctx, e.store, entity.KindTick, tickID(pool.ID, ev.TickLower))
	upperTick, uerr := entity.Load[*entity.Tick](ctx, e.store, entity.KindTick, tickID(pool.ID, ev.TickUpper))
	if lerr != nil || uerr != nil {
		e.logger.Error().Str("pool", pool.ID).
			Int32("tick_lower", ev.TickLower).
			Int32("tick_upper", ev.TickUpper).
			Msg("Boundary tick not found for burn")
		return nil
	}

	bundle, err := e.loadBundle(ctx)
	if err != nil {
		return err
	}
	factory, err := e.loadFactory(ctx)
	if err != nil {
		return err
	}

	amount0 := entity.ConvertTokenToDecimal(ev.Amount0, token0.Decimals)
	amount1 := entity.ConvertTokenToDecimal(ev.Amount1, token1.Decimals)
	amountUSD := amount0.Mul(token0.DerivedNative.Mul(bundle.NativePriceUSD)).
		Add(amount1.Mul(token1.DerivedNative.Mul(bundle.NativePriceUSD)))

	factory.TxCount++
	token0.TxCount++
	token1.TxCount++
	pool.TxCount++

	oldPoolTVLNative := pool.TotalValueLockedNative
	oldPoolTVLNativeUntracked := pool.TotalValueLockedNativeUntracked
	token0.TotalValueLocked = token0.TotalValueLocked.Sub(amount0)
	token1.TotalValueLocked = token1.TotalValueLocked.Sub(amount1)
	pool.TotalValueLockedToken0 = pool.TotalValueLockedToken0.Sub(amount0)
	pool.TotalValueLockedToken1 = pool.TotalValueLockedToken1.Sub(amount1)
	if err := e.updateDerivedTVLAmounts(ctx, pool, factory, token0, token1, oldPoolTVLNative, oldPoolTVLNativeUntracked); err != nil {
		return err
	}

	if pool.Tick != nil && ev.TickLower <= *pool.Tick && ev.TickUpper > *pool.Tick {
		pool.Liquidity = new(big.Int).Sub(pool.Liquidity, ev.Amount)
	}

	tx, err := e.loadTransaction(ctx, pe)
	if err != nil {
		return err
	}

	burn := &entity.Burn{
		ID:          recordID(tx.ID, pool.TxCount),
		Transaction: tx.ID,
		Timestamp:   tx.Timestamp,
		Pool:        pool.ID,
		Token0:      pool.Token0,
		Token1:      pool.Token1,
		Owner:       ev.Owner,
		Origin:      ev.Owner,
		Amount:      ev.Amount,
		Amount0:     amount0,
		Amount1:     amount1,
		AmountUSD:   amountUSD,
		TickLower:   ev.TickLower,
		TickUpper:   ev.TickUpper,
		LogIndex:    pe.LogIndex,
	}

	lowerTick.LiquidityGross = new(big.Int).Sub(lowerTick.LiquidityGross, ev.Amount)
	lowerTick.LiquidityNet = new(big.Int).Sub(lowerTick.LiquidityNet, ev.Amount)
	upperTick.LiquidityGross = new(big.Int).Sub(upperTick.LiquidityGross, ev.Amount)
	upperTick.LiquidityNet = new(big.Int).Add(upperTick.LiquidityNet, ev.Amount)

	if _, err := e.updateProtocolDayData(ctx, factory, pe.Timestamp); err != nil {
		return err
	}
	if _, err := e.updatePoolBuckets(ctx, pool, pe.Timestamp); err != nil {
		return err
	}
	if _, err := e.updateTokenBuckets(ctx, token0, pe.Timestamp); err != nil {
		return err
	}
	if _, err := e.updateTokenBuckets(ctx, token1, pe.Timestamp); err != nil {
		return err
	}
	if err := e.refreshTickFeeVars(ctx, lowerTick, pe); err != nil {
		return err
	}
	if err := e.refreshTickFeeVars(ctx, upperTick, pe); err != nil {
		return err
	}

	for _, ent := range []entity.Entity{token0, token1, pool, factory, burn} {
		if err := e.store.Save(ctx, ent); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) handleSwap(ctx context.Context, pe *events.ParsedEvent) error {
	ev, err := events.DecodeSwap(pe)
	if err != nil {
		return err
	}

	poolID := addressID(pe)
	pool, err := entity.Load[*entity.Pool](ctx, e.store, entity.KindPool, poolID)
	if err != nil {
		e.logger.Warn().Str("pool", poolID).Msg("Pool not found for swap")
		return nil
	}
	token0, token1, err := e.loadPoolTokens(ctx, pool)
	if err != nil {
		return nil
	}
	if pool.Tick == nil {
		e.logger.Warn().Str("pool", pool.ID).Msg("Swap on uninitialized pool")
		return nil
	}
	oldTick := *pool.Tick

	bundle, err := e.loadBundle(ctx)
	if err != nil {
		return err
	}
	factory, err := e.loadFactory(ctx)
	if err != nil {
		return err
	}

	amount0 := entity.ConvertTokenToDecimal(ev.Amount0, token0.Decimals)
	amount1 := entity.ConvertTokenToDecimal(ev.Amount1, token1.Decimals)
	protocolFeeAmount0 := entity.ConvertTokenToDecimal(ev.ProtocolFeesToken0, token0.Decimals)
	protocolFeeAmount1 := entity.ConvertTokenToDecimal(ev.ProtocolFeesToken1, token1.Decimals)

	amount0Abs := amount0.Abs()
	amount1Abs := amount1.Abs()

	volumeAmounts := e.oracle.AdjustedAmounts(ctx, e.store, amount0Abs, token0, amount1Abs, token1)
	if volumeAmounts.USD.IsZero() {
		e.logger.Debug().Str("tx", pe.TransactionHash.Hex()).Msg("Swap tracked volume is zero")
	}

	// Each leg carries the full trade value, so halve the sum.
	volumeNative := volumeAmounts.Native.Div(two)
	volumeUSD := volumeAmounts.USD.Div(two)
	volumeUSDUntracked := volumeAmounts.USDUntracked.Div(two)

	protocolFeeAmounts := e.oracle.AdjustedAmounts(ctx, e.store, protocolFeeAmount0, token0, protocolFeeAmount1, token1)

	feesNative := volumeNative.Mul(decimal.NewFromInt(pool.FeeTier)).Div(million)
	feesUSD := volumeUSD.Mul(decimal.NewFromInt(pool.FeeTier)).Div(million)

	factory.TxCount++
	factory.TotalVolumeNative = factory.TotalVolumeNative.Add(volumeNative)
	factory.TotalVolumeUSD = factory.TotalVolumeUSD.Add(volumeUSD)
	factory.UntrackedVolumeUSD = factory.UntrackedVolumeUSD.Add(volumeUSDUntracked)
	factory.TotalFeesNative = factory.TotalFeesNative.Add(feesNative)
	factory.TotalFeesUSD = factory.TotalFeesUSD.Add(feesUSD)
	factory.TotalProtocolFeesNative = factory.TotalProtocolFeesNative.Add(protocolFeeAmounts.Native)
	factory.TotalProtocolFeesUSD = factory.TotalProtocolFeesUSD.Add(protocolFeeAmounts.USD)

	pool.VolumeToken0 = pool.VolumeToken0.Add(amount0Abs)
	pool.VolumeToken1 = pool.VolumeToken1.Add(amount1Abs)
	pool.VolumeUSD = pool.VolumeUSD.Add(volumeUSD)
	pool.UntrackedVolumeUSD = pool.UntrackedVolumeUSD.Add(volumeUSDUntracked)
	pool.FeesUSD = pool.FeesUSD.Add(feesUSD)
	pool.ProtocolFeesUSD = pool.ProtocolFeesUSD.Add(protocolFeeAmounts.USD)
	pool.TxCount++

	pool.Liquidity = ev.Liquidity
	newTick := ev.Tick
	pool.Tick = &newTick
	pool.SqrtPrice = ev.SqrtPriceX96

	token0.Volume = token0.Volume.Add(amount0Abs)
	token0.VolumeUSD = token0.VolumeUSD.Add(volumeUSD)
	token0.UntrackedVolumeUSD = token0.UntrackedVolumeUSD.Add(volumeUSDUntracked)
	token0.FeesUSD = token0.FeesUSD.Add(feesUSD)
	token0.ProtocolFeesUSD = token0.ProtocolFeesUSD.Add(protocolFeeAmounts.USD)
	token0.TxCount++

	token1.Volume = token1.Volume.Add(amount1Abs)
	token1.VolumeUSD = token1.VolumeUSD.Add(volumeUSD)
	token1.UntrackedVolumeUSD = token1.UntrackedVolumeUSD.Add(volumeUSDUntracked)
	token1.FeesUSD = token1.FeesUSD.Add(feesUSD)
	token1.ProtocolFeesUSD = token1.ProtocolFeesUSD.Add(protocolFeeAmounts.USD)
	token1.TxCount++

	pool.Token0Price, pool.Token1Price = pricing.SqrtPriceX96ToTokenPrices(pool.SqrtPrice, token0, token1)
	if err := e.store.Save(ctx, pool); err != nil {
		return err
	}

	bundle.NativePriceUSD = e.oracle.NativePriceUSD(ctx, e.store)
	if err := e.store.Save(ctx, bundle); err != nil {
		return err
	}
	token0.DerivedNative = e.oracle.FindNativePerToken(ctx, e.store, token0)
	token1.DerivedNative = e.oracle.FindNativePerToken(ctx, e.store, token1)
	token0.DerivedUSD = token0.DerivedNative.Mul(bundle.NativePriceUSD)
	token1.DerivedUSD = token1.DerivedNative.Mul(bundle.NativePriceUSD)

	oldPoolTVLNative := pool.TotalValueLockedNative
	oldPoolTVLNativeUntracked := pool.TotalValueLockedNativeUntracked
	pool.TotalValueLockedToken0 = pool.TotalValueLockedToken0.Add(amount0)
	pool.TotalValueLockedToken1 = pool.TotalValueLockedToken1.Add(amount1)
	token0.TotalValueLocked = token0.TotalValueLocked.Add(amount0)
	token1.TotalValueLocked = token1.TotalValueLocked.Add(amount1)
	if err := e.updateDerivedTVLAmounts(ctx, pool, factory, token0, token1, oldPoolTVLNative, oldPoolTVLNativeUntracked); err != nil {
		return err
	}

	tx, err := e.loadTransaction(ctx, pe)
	if err != nil {
		return err
	}

	swap := &entity.Swap{
		ID:           recordID(tx.ID, pool.TxCount),
		Transaction:  tx.ID,
		Timestamp:    tx.Timestamp,
		Pool:         pool.ID,
		Token0:       pool.Token0,
		Token1:       pool.Token1,
		Sender:       ev.Sender,
		Recipient:    ev.Recipient,
		Origin:       ev.Sender,
		Amount0:      amount0,
		Amount1:      amount1,
		AmountUSD:    volumeUSD,
		AmountFeeUSD: protocolFeeAmounts.USD,
		SqrtPriceX96: ev.SqrtPriceX96,
		Tick:         ev.Tick,
		LogIndex:     pe.LogIndex,
	}

	global0, global1, err := e.chain.FeeGrowthGlobals(ctx, pool.ID)
	if err != nil {
		e.logger.Debug().Err(err).Str("pool", pool.ID).Msg("Fee growth globals unavailable, keeping stored values")
	} else {
		pool.FeeGrowthGlobal0X128 = global0
		pool.FeeGrowthGlobal1X128 = global1
	}

	protocolDay, err := e.updateProtocolDayData(ctx, factory, pe.Timestamp)
	if err != nil {
		return err
	}
	poolBuckets, err := e.updatePoolBuckets(ctx, pool, pe.Timestamp)
	if err != nil {
		return err
	}
	token0Buckets, err := e.updateTokenBuckets(ctx, token0, pe.Timestamp)
	if err != nil {
		return err
	}
	token1Buckets, err := e.updateTokenBuckets(ctx, token1, pe.Timestamp)
	if err != nil {
		return err
	}

	protocolDay.VolumeNative = protocolDay.VolumeNative.Add(volumeNative)
	protocolDay.VolumeUSD = protocolDay.VolumeUSD.Add(volumeUSD)
	protocolDay.VolumeUSDUntracked = protocolDay.VolumeUSDUntracked.Add(volumeUSDUntracked)
	protocolDay.FeesUSD = protocolDay.FeesUSD.Add(feesUSD)
	protocolDay.ProtocolFeesUSD = protocolDay.ProtocolFeesUSD.Add(protocolFeeAmounts.USD)

	for _, bucket := range poolBuckets {
		bucket.VolumeUSD = bucket.VolumeUSD.Add(volumeUSD)
		bucket.VolumeToken0 = bucket.VolumeToken0.Add(amount0Abs)
		bucket.VolumeToken1 = bucket.VolumeToken1.Add(amount1Abs)
		bucket.FeesUSD = bucket.FeesUSD.Add(feesUSD)
		bucket.ProtocolFeesUSD = bucket.ProtocolFeesUSD.Add(protocolFeeAmounts.USD)
	}
	applyTokenBucketDeltas(token0Buckets, amount0Abs, volumeUSD, volumeUSDUntracked, feesUSD, protocolFeeAmounts.USD)
	applyTokenBucketDeltas(token1Buckets, amount1Abs, volumeUSD, volumeUSDUntracked, feesUSD, protocolFeeAmounts.USD)

	if err := e.store.Save(ctx, swap); err != nil {
		return err
	}
	if err := e.store.Save(ctx, factory); err != nil {
		return err
	}
	if err := e.store.Save(ctx, protocolDay); err != nil {
		return err
	}
	if err := e.store.Save(ctx, pool); err != nil {
		return err
	}
	for _, bucket := range poolBuckets {
		if err := e.store.Save(ctx, bucket); err != nil {
			return err
		}
	}
	for _, buckets := range []map[int64]*entity.TokenBucketData{token0Buckets, token1Buckets} {
		for _, bucket := range buckets {
			if err := e.store.Save(ctx, bucket); err != nil {
				return err
			}
		}
	}
	if err := e.store.Save(ctx, token0); err != nil {
		return err
	}
	if err := e.store.Save(ctx, token1); err != nil {
		return err
	}

	if err := e.walkCrossedTicks(ctx, pool, oldTick, newTick, pe); err != nil {
		e.logger.Error().Err(err).Str("pool", pool.ID).Msg("Crossed-tick walk failed")
		return err
	}

	if e.publisher != nil {
		e.publisher.PublishPool(pool)
	}
	return nil
}

// handleFlash only refreshes the fee-growth accumulators; flash loan
// amounts are returned within the transaction and do not move TVL.
func (e *Engine) handleFlash(ctx context.Context, pe *events.ParsedEvent) error {
	poolID := addressID(pe)
	pool, err := entity.Load[*entity.Pool](ctx, e.store, entity.KindPool, poolID)
	if err != nil {
		e.logger.Error().Str("pool", poolID).Msg("Pool not found for flash")
		return nil
	}

	global0, global1, err := e.chain.FeeGrowthGlobals(ctx, pool.ID)
	if err != nil {
		e.logger.Debug().Err(err).Str("pool", pool.ID).Msg("Fee growth globals unavailable")
		return nil
	}
	pool.FeeGrowthGlobal0X128 = global0
	pool.FeeGrowthGlobal1X128 = global1
	return e.store.Save(ctx, pool)
}

func (e *Engine) handleCollect(ctx context.Context, pe *events.ParsedEvent) error {
	ev, err := events.DecodeCollect(pe)
	if err != nil {
		return err
	}

	poolID := addressID(pe)
	pool, err := entity.Load[*entity.Pool](ctx, e.store, entity.KindPool, poolID)
	if err != nil {
		e.logger.Error().Str("pool", poolID).Msg("Pool not found for collect")
		return nil
	}
	token0, token1, err := e.loadPoolTokens(ctx, pool)
	if err != nil {
		return nil
	}
	factory, err := e.loadFactory(ctx)
	if err != nil {
		return err
	}

	tx, err := e.loadTransaction(ctx, pe)
	if err != nil {
		return err
	}

	amount0 := entity.ConvertTokenToDecimal(ev.Amount0, token0.Decimals)
	amount1 := entity.ConvertTokenToDecimal(ev.Amount1, token1.Decimals)
	amounts := e.oracle.AdjustedAmounts(ctx, e.store, amount0, token0, amount1, token1)

	pool.CollectedFeesToken0 = pool.CollectedFeesToken0.Add(amount0)
	pool.CollectedFeesToken1 = pool.CollectedFeesToken1.Add(amount1)
	pool.CollectedFeesUSD = pool.CollectedFeesUSD.Add(amounts.USD)

	factory.TxCount++
	token0.TxCount++
	token1.TxCount++
	pool.TxCount++

	collect := &entity.Collect{
		ID:          recordID(tx.ID, pool.TxCount),
		Transaction: tx.ID,
		Timestamp:   pe.Timestamp,
		Pool:        pool.ID,
		Owner:       ev.Owner,
		Amount0:     amount0,
		Amount1:     amount1,
		AmountUSD:   amounts.USD,
		TickLower:   ev.TickLower,
		TickUpper:   ev.TickUpper,
		LogIndex:    pe.LogIndex,
	}

	for _, ent := range []entity.Entity{token0, token1, factory, pool, collect} {
		if err := e.store.Save(ctx, ent); err != nil {
			return err
		}
	}
	return nil
}

// handleCollectProtocol withdraws accrued protocol fees from the pool's
// reserves; the fee totals themselves accrued at swap time.
func (e *Engine) handleCollectProtocol(ctx context.Context, pe *events.ParsedEvent) error {
	ev, err := events.DecodeCollectProtocol(pe)
	if err != nil {
		return err
	}

	poolID := addressID(pe)
	pool, err := entity.Load[*entity.Pool](ctx, e.store, entity.KindPool, poolID)
	if err != nil {
		e.logger.Error().Str("pool", poolID).Msg("Pool not found for collect protocol")
		return nil
	}
	token0, token1, err := e.loadPoolTokens(ctx, pool)
	if err != nil {
		return nil
	}
	factory, err := e.loadFactory(ctx)
	if err != nil {
		return err
	}

	amount0 := entity.ConvertTokenToDecimal(ev.Amount0, token0.Decimals)
	amount1 := entity.ConvertTokenToDecimal(ev.Amount1, token1.Decimals)

	oldPoolTVLNative := pool.TotalValueLockedNative
	oldPoolTVLNativeUntracked := pool.TotalValueLockedNativeUntracked
	pool.TotalValueLockedToken0 = pool.TotalValueLockedToken0.Sub(amount0)
	pool.TotalValueLockedToken1 = pool.TotalValueLockedToken1.Sub(amount1)
	token0.TotalValueLocked = token0.TotalValueLocked.Sub(amount0)
	token1.TotalValueLocked = token1.TotalValueLocked.Sub(amount1)
	if err := e.updateDerivedTVLAmounts(ctx, pool, factory, token0, token1, oldPoolTVLNative, oldPoolTVLNativeUntracked); err != nil {
		return err
	}

	factory.TxCount++
	token0.TxCount++
	token1.TxCount++
	pool.TxCount++

	for _, ent := range []entity.Entity{token0, token1, factory, pool} {
		if err := e.store.Save(ctx, ent); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) loadPoolTokens(ctx context.Context, pool *entity.Pool) (*entity.Token, *entity.Token, error) {
	token0, err0 := entity.Load[*entity.Token](ctx, e.store, entity.KindToken, pool.Token0)
	token1, err1 := entity.Load[*entity.Token](ctx, e.store, entity.KindToken, pool.Token1)
	if err0 != nil || err1 != nil {
		e.logger.Error().Str("pool", pool.ID).Msg("Token0 or token1 not found for pool")
		return nil, nil, entity.ErrNotFound
	}
	return token0, token1, nil
}

func (e *Engine) loadOrCreateTick(ctx context.Context, poolID string, tickIdx int32, pe *events.ParsedEvent) (*entity.Tick, error) {
	id := tickID(poolID, tickIdx)
	tick, err := entity.Load[*entity.Tick](ctx, e.store, entity.KindTick, id)
	if err == nil {
		return tick, nil
	}
	if !errors.Is(err, entity.ErrNotFound) {
		return nil, err
	}
	return createTick(id, tickIdx, poolID, pe), nil
}

func applyTokenBucketDeltas(buckets map[int64]*entity.TokenBucketData, volume, volumeUSD, volumeUSDUntracked, feesUSD, protocolFeesUSD decimal.Decimal) {
	for _, bucket := range buckets {
		bucket.Volume = bucket.Volume.Add(volume)
		bucket.VolumeUSD = bucket.VolumeUSD.Add(volumeUSD)
		bucket.UntrackedVolumeUSD = bucket.UntrackedVolumeUSD.Add(volumeUSDUntracked)
		bucket.FeesUSD = bucket.FeesUSD.Add(feesUSD)
		bucket.ProtocolFeesUSD = bucket.ProtocolFeesUSD.Add(protocolFeesUSD)
	}
}

func addressID(pe *events.ParsedEvent) string {
	return strings.ToLower(pe.Address.Hex())
}
