package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/muzman01/subgraph-studio/internal/entity"
)

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// updateDerivedTVLAmounts re-derives the USD and native TVL figures after
// a raw token TVL change. Factory totals are maintained by subtracting
// the pool's pre-mutation TVL and adding the recomputed one, so only the
// touched pool's contribution moves. Mutates in place; callers save.
func (e *Engine) updateDerivedTVLAmounts(ctx context.Context, pool *entity.Pool, factory *entity.Factory, token0, token1 *entity.Token, oldPoolTVLNative, oldPoolTVLNativeUntracked decimal.Decimal) error {
	bundle, err := e.loadBundle(ctx)
	if err != nil {
		return err
	}

	token0.TotalValueLockedUSD = token0.TotalValueLocked.Mul(token0.DerivedNative).Mul(bundle.NativePriceUSD)
	token1.TotalValueLockedUSD = token1.TotalValueLocked.Mul(token1.DerivedNative).Mul(bundle.NativePriceUSD)

	amounts := e.oracle.AdjustedAmounts(ctx, e.store, pool.TotalValueLockedToken0, token0, pool.TotalValueLockedToken1, token1)
	pool.TotalValueLockedNative = amounts.Native
	pool.TotalValueLockedUSD = amounts.USD
	pool.TotalValueLockedNativeUntracked = amounts.NativeUntracked
	pool.TotalValueLockedUSDUntracked = amounts.USDUntracked

	factory.TotalValueLockedNative = factory.TotalValueLockedNative.Sub(oldPoolTVLNative).Add(pool.TotalValueLockedNative)
	factory.TotalValueLockedNativeUntracked = factory.TotalValueLockedNativeUntracked.Sub(oldPoolTVLNativeUntracked).Add(pool.TotalValueLockedNativeUntracked)
	factory.TotalValueLockedUSD = factory.TotalValueLockedNative.Mul(bundle.NativePriceUSD)
	factory.TotalValueLockedUSDUntracked = factory.TotalValueLockedNativeUntracked.Mul(bundle.NativePriceUSD)

	return nil
}
