package pricing

import (
	"context"
	"math/big"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/muzman01/subgraph-studio/internal/config"
	"github.com/muzman01/subgraph-studio/internal/entity"
)

var one = decimal.NewFromInt(1)

// q192 = 2^192, the divisor turning sqrtPriceX96 squared into a ratio.
var q192 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 192), 0)

// AmountSet is a paired-token value in native and USD terms, split into
// the tracked portion and the full untracked total.
type AmountSet struct {
	Native          decimal.Decimal
	USD             decimal.Decimal
	NativeUntracked decimal.Decimal
	USDUntracked    decimal.Decimal
}

// Oracle derives token prices from concentrated-liquidity pool state.
type Oracle struct {
	cfg    *config.DeploymentConfig
	logger zerolog.Logger
}

func NewOracle(cfg *config.DeploymentConfig, logger zerolog.Logger) *Oracle {
	return &Oracle{
		cfg:    cfg,
		logger: logger.With().Str("component", "pricing").Logger(),
	}
}

// SqrtPriceX96ToTokenPrices converts a pool's Q64.96 sqrt price into the
// two spot prices, adjusted for token decimals.
func SqrtPriceX96ToTokenPrices(sqrtPriceX96 *big.Int, token0, token1 *entity.Token) (decimal.Decimal, decimal.Decimal) {
	num := decimal.NewFromBigInt(new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96), 0)
	price1 := num.Div(q192).
		Mul(entity.ExponentToDecimal(token0.Decimals)).
		Div(entity.ExponentToDecimal(token1.Decimals))
	price0 := entity.SafeDiv(one, price1)
	return price0, price1
}

// NativePriceUSD reads the native coin's USD price off the configured
// stablecoin/wrapped-native pool. Zero until that pool exists.
func (o *Oracle) NativePriceUSD(ctx context.Context, store entity.Store) decimal.Decimal {
	pool, err := entity.Load[*entity.Pool](ctx, store, entity.KindPool, o.cfg.StablePoolAddress)
	if err != nil {
		o.logger.Debug().Str("pool", o.cfg.StablePoolAddress).Msg("Stable pool not found, native price is zero")
		return decimal.Zero
	}
	if o.cfg.StableIsToken0 {
		return pool.Token0Price
	}
	return pool.Token1Price
}

// FindNativePerToken derives a token's price in the native coin by
// scanning its whitelist pools for the one holding the most native value.
// A candidate pool qualifies when its native side exceeds the minimum
// locked threshold or its counterpart token is whitelisted. Zero when no
// pool qualifies.
func (o *Oracle) FindNativePerToken(ctx context.Context, store entity.Store, token *entity.Token) decimal.Decimal {
	if token.ID == o.cfg.WrappedNativeAddress {
		return one
	}

	priceSoFar := decimal.Zero
	if o.cfg.IsStablecoin(token.ID) {
		bundle, err := entity.Load[*entity.Bundle](ctx, store, entity.KindBundle, entity.BundleID)
		if err != nil {
			return decimal.Zero
		}
		return entity.SafeDiv(one, bundle.NativePriceUSD)
	}

	largestLiquidityNative := decimal.Zero
	minimumLocked := o.cfg.MinimumLocked()
	for _, poolID := range token.WhitelistPools {
		pool, err := entity.Load[*entity.Pool](ctx, store, entity.KindPool, poolID)
		if err != nil {
			continue
		}
		if pool.Liquidity.Sign() <= 0 {
			continue
		}

		if pool.Token0 == token.ID {
			counterpart, err := entity.Load[*entity.Token](ctx, store, entity.KindToken, pool.Token1)
			if err != nil {
				continue
			}
			nativeLocked := pool.TotalValueLockedToken1.Mul(counterpart.DerivedNative)
			if nativeLocked.GreaterThan(largestLiquidityNative) &&
				(nativeLocked.GreaterThan(minimumLocked) || o.cfg.IsWhitelisted(counterpart.ID)) {
				largestLiquidityNative = nativeLocked
				priceSoFar = pool.Token1Price.Mul(counterpart.DerivedNative)
			}
		}
		if pool.Token1 == token.ID {
			counterpart, err := entity.Load[*entity.Token](ctx, store, entity.KindToken, pool.Token0)
			if err != nil {
				continue
			}
			nativeLocked := pool.TotalValueLockedToken0.Mul(counterpart.DerivedNative)
			if nativeLocked.GreaterThan(largestLiquidityNative) &&
				(nativeLocked.GreaterThan(minimumLocked) || o.cfg.IsWhitelisted(counterpart.ID)) {
				largestLiquidityNative = nativeLocked
				priceSoFar = pool.Token0Price.Mul(counterpart.DerivedNative)
			}
		}
	}

	return priceSoFar
}

// AdjustedAmounts values a token pair amount for volume and TVL tracking.
// Both sides whitelisted counts the full sum; one side doubles that side;
// neither side contributes nothing tracked. The untracked fields always
// carry the full sum.
func (o *Oracle) AdjustedAmounts(ctx context.Context, store entity.Store, amount0 decimal.Decimal, token0 *entity.Token, amount1 decimal.Decimal, token1 *entity.Token) AmountSet {
	bundle, err := entity.Load[*entity.Bundle](ctx, store, entity.KindBundle, entity.BundleID)
	if err != nil {
		bundle = entity.NewBundle()
	}

	native0 := amount0.Mul(token0.DerivedNative)
	native1 := amount1.Mul(token1.DerivedNative)
	nativeUntracked := native0.Add(native1)

	whitelisted0 := o.cfg.IsWhitelisted(token0.ID)
	whitelisted1 := o.cfg.IsWhitelisted(token1.ID)

	native := decimal.Zero
	switch {
	case whitelisted0 && whitelisted1:
		native = nativeUntracked
	case whitelisted0:
		native = native0.Mul(decimal.NewFromInt(2))
	case whitelisted1:
		native = native1.Mul(decimal.NewFromInt(2))
	}

	return AmountSet{
		Native:          native,
		USD:             native.Mul(bundle.NativePriceUSD),
		NativeUntracked: nativeUntracked,
		USDUntracked:    nativeUntracked.Mul(bundle.NativePriceUSD),
	}
}
