package engine

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/muzman01/subgraph-studio/internal/entity"
)

// poolBucketWidths are rolled for every pool-touching event, widest first
// to match the established write order.
var poolBucketWidths = []int64{
	entity.BucketYear,
	entity.BucketMonth,
	entity.BucketWeek,
	entity.BucketDay,
	entity.BucketHour,
}

var tokenBucketWidths = []int64{
	entity.BucketDay,
	entity.BucketHour,
}

// updateProtocolDayData rolls factory-wide totals into the daily window.
// The returned bucket is already saved; callers adding volume deltas save
// it again.
func (e *Engine) updateProtocolDayData(ctx context.Context, factory *entity.Factory, timestamp int64) (*entity.ProtocolDayData, error) {
	dayID := timestamp / entity.BucketDay
	id := strconv.FormatInt(dayID, 10)

	day, err := entity.LoadOrCreate(ctx, e.store, entity.KindProtocolDayData, id, func(id string) *entity.ProtocolDayData {
		return &entity.ProtocolDayData{
			ID:                 id,
			Date:               dayID * entity.BucketDay,
			VolumeNative:       decimal.Zero,
			VolumeUSD:          decimal.Zero,
			VolumeUSDUntracked: decimal.Zero,
			FeesUSD:            decimal.Zero,
			ProtocolFeesUSD:    decimal.Zero,
		}
	})
	if err != nil {
		return nil, err
	}

	day.TVLUSD = factory.TotalValueLockedUSD
	day.TxCount = factory.TxCount
	if err := e.store.Save(ctx, day); err != nil {
		return nil, err
	}
	return day, nil
}

// updatePoolBucket upserts one width's aggregate for a pool. OHLC tracks
// pool.token0Price; the snapshot fields copy the pool's current state.
func (e *Engine) updatePoolBucket(ctx context.Context, pool *entity.Pool, timestamp, width int64) (*entity.PoolBucketData, error) {
	id := entity.BucketID(pool.ID, timestamp, width)
	kind := entity.PoolBucketKind(width)

	bucket, err := entity.LoadOrCreate(ctx, e.store, kind, id, func(id string) *entity.PoolBucketData {
		b := entity.NewPoolBucketData(id, width)
		b.Date = entity.BucketStart(timestamp, width)
		b.Pool = pool.ID
		b.Open = pool.Token0Price
		b.High = pool.Token0Price
		b.Low = pool.Token0Price
		b.Close = pool.Token0Price
		return b
	})
	if err != nil {
		return nil, err
	}
	bucket.SetKind(kind)

	if pool.Token0Price.GreaterThan(bucket.High) {
		bucket.High = pool.Token0Price
	}
	if pool.Token0Price.LessThan(bucket.Low) {
		bucket.Low = pool.Token0Price
	}

	bucket.Liquidity = pool.Liquidity
	bucket.SqrtPrice = pool.SqrtPrice
	bucket.FeeGrowthGlobal0X128 = pool.FeeGrowthGlobal0X128
	bucket.FeeGrowthGlobal1X128 = pool.FeeGrowthGlobal1X128
	bucket.Token0Price = pool.Token0Price
	bucket.Token1Price = pool.Token1Price
	bucket.Tick = pool.Tick
	bucket.TVLUSD = pool.TotalValueLockedUSD
	bucket.TxCount++
	bucket.Close = pool.Token0Price

	if err := e.store.Save(ctx, bucket); err != nil {
		return nil, err
	}
	return bucket, nil
}

// updatePoolBuckets rolls all five widths and returns them keyed by width.
func (e *Engine) updatePoolBuckets(ctx context.Context, pool *entity.Pool, timestamp int64) (map[int64]*entity.PoolBucketData, error) {
	buckets := make(map[int64]*entity.PoolBucketData, len(poolBucketWidths))
	for _, width := range poolBucketWidths {
		bucket, err := e.updatePoolBucket(ctx, pool, timestamp, width)
		if err != nil {
			return nil, err
		}
		buckets[width] = bucket
	}
	return buckets, nil
}

// updateTokenBucket upserts one width's aggregate for a token. OHLC
// tracks derivedNative x the bundle price.
func (e *Engine) updateTokenBucket(ctx context.Context, token *entity.Token, timestamp, width int64) (*entity.TokenBucketData, error) {
	bundle, err := e.loadBundle(ctx)
	if err != nil {
		return nil, err
	}
	tokenPrice := token.DerivedNative.Mul(bundle.NativePriceUSD)

	id := entity.BucketID(token.ID, timestamp, width)
	kind := entity.TokenBucketKind(width)

	bucket, err := entity.LoadOrCreate(ctx, e.store, kind, id, func(id string) *entity.TokenBucketData {
		b := entity.NewTokenBucketData(id, width)
		b.Date = entity.BucketStart(timestamp, width)
		b.Token = token.ID
		b.Open = tokenPrice
		b.High = tokenPrice
		b.Low = tokenPrice
		b.Close = tokenPrice
		return b
	})
	if err != nil {
		return nil, err
	}
	bucket.SetKind(kind)

	if tokenPrice.GreaterThan(bucket.High) {
		bucket.High = tokenPrice
	}
	if tokenPrice.LessThan(bucket.Low) {
		bucket.Low = tokenPrice
	}

	bucket.Close = tokenPrice
	bucket.PriceUSD = tokenPrice
	bucket.TotalValueLocked = token.TotalValueLocked
	bucket.TotalValueLockedUSD = token.TotalValueLockedUSD

	if err := e.store.Save(ctx, bucket); err != nil {
		return nil, err
	}
	return bucket, nil
}

func (e *Engine) updateTokenBuckets(ctx context.Context, token *entity.Token, timestamp int64) (map[int64]*entity.TokenBucketData, error) {
	buckets := make(map[int64]*entity.TokenBucketData, len(tokenBucketWidths))
	for _, width := range tokenBucketWidths {
		bucket, err := e.updateTokenBucket(ctx, token, timestamp, width)
		if err != nil {
			return nil, err
		}
		buckets[width] = bucket
	}
	return buckets, nil
}

// updateTickDayData snapshots a tick's liquidity and fee state into its
// daily window.
func (e *Engine) updateTickDayData(ctx context.Context, tick *entity.Tick, timestamp int64) error {
	id := entity.BucketID(tick.ID, timestamp, entity.BucketDay)

	day, err := entity.LoadOrCreate(ctx, e.store, entity.KindTickDayData, id, func(id string) *entity.TickDayData {
		return &entity.TickDayData{
			ID:   id,
			Date: entity.BucketStart(timestamp, entity.BucketDay),
			Pool: tick.Pool,
			Tick: tick.ID,
		}
	})
	if err != nil {
		return err
	}

	day.LiquidityGross = tick.LiquidityGross
	day.LiquidityNet = tick.LiquidityNet
	day.VolumeToken0 = tick.VolumeToken0
	day.VolumeToken1 = tick.VolumeToken1
	day.VolumeUSD = tick.VolumeUSD
	day.FeesUSD = tick.FeesUSD
	day.FeeGrowthOutside0X128 = tick.FeeGrowthOutside0X128
	day.FeeGrowthOutside1X128 = tick.FeeGrowthOutside1X128

	return e.store.Save(ctx, day)
}
