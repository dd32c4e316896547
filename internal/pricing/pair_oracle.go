package pricing

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/muzman01/subgraph-studio/internal/config"
	"github.com/muzman01/subgraph-studio/internal/entity"
)

var two = decimal.NewFromInt(2)

// PairLookup resolves the constant-product pair address for a token
// combination, or the zero address when none was deployed.
type PairLookup interface {
	PairFor(ctx context.Context, tokenA, tokenB string) (string, error)
}

// StorePairLookup resolves pairs through the entity store using the
// canonical "{token0}-{token1}" registry ids written at pair creation.
type StorePairLookup struct {
	Store entity.Store
}

func (l StorePairLookup) PairFor(ctx context.Context, tokenA, tokenB string) (string, error) {
	token0, token1 := tokenA, tokenB
	if token1 < token0 {
		token0, token1 = token1, token0
	}
	pair, err := entity.Load[*entity.Pair](ctx, l.Store, entity.KindPair, token0+"-"+token1)
	if err != nil {
		return entity.AddressZero, nil
	}
	return pair.ID, nil
}

// PairOracle derives prices from constant-product pair reserves.
type PairOracle struct {
	cfg    *config.DeploymentConfig
	pairs  PairLookup
	logger zerolog.Logger
}

func NewPairOracle(cfg *config.DeploymentConfig, pairs PairLookup, logger zerolog.Logger) *PairOracle {
	return &PairOracle{
		cfg:    cfg,
		pairs:  pairs,
		logger: logger.With().Str("component", "pair_pricing").Logger(),
	}
}

func pairNativePrice(pair *entity.Pair, stableIsToken0 bool) decimal.Decimal {
	if stableIsToken0 {
		return pair.Token0Price
	}
	return pair.Token1Price
}

func pairNativeReserve(pair *entity.Pair, stableIsToken0 bool) decimal.Decimal {
	if stableIsToken0 {
		return pair.Reserve1
	}
	return pair.Reserve0
}

// BlendedNativePriceUSD weighs the configured stable pairs by their
// native-side reserves. Falls back to whichever single pair exists; zero
// when none do or the combined native reserves are zero.
func (o *PairOracle) BlendedNativePriceUSD(ctx context.Context, store entity.Store) decimal.Decimal {
	if len(o.cfg.StablePairs) == 0 {
		return decimal.Zero
	}

	loaded := make([]*entity.Pair, 0, len(o.cfg.StablePairs))
	sides := make([]bool, 0, len(o.cfg.StablePairs))
	for _, spc := range o.cfg.StablePairs {
		pair, err := entity.Load[*entity.Pair](ctx, store, entity.KindPair, spc.Address)
		if err != nil {
			continue
		}
		loaded = append(loaded, pair)
		sides = append(sides, spc.StableIsToken0)
	}

	switch len(loaded) {
	case 0:
		return decimal.Zero
	case 1:
		return pairNativePrice(loaded[0], sides[0])
	}

	totalNative := decimal.Zero
	for i, pair := range loaded {
		totalNative = totalNative.Add(pairNativeReserve(pair, sides[i]))
	}
	if totalNative.IsZero() {
		return decimal.Zero
	}

	blended := decimal.Zero
	for i, pair := range loaded {
		weight := pairNativeReserve(pair, sides[i]).Div(totalNative)
		blended = blended.Add(pairNativePrice(pair, sides[i]).Mul(weight))
	}
	return blended
}

// FindNativePerToken walks the whitelist counterparts and returns the
// price implied by the first pair whose native-side reserve clears the
// minimum threshold. Zero when no pair qualifies.
func (o *PairOracle) FindNativePerToken(ctx context.Context, store entity.Store, token *entity.Token) decimal.Decimal {
	if token.ID == o.cfg.WrappedNativeAddress {
		return one
	}

	minimumReserve := o.cfg.MinimumLocked()
	for _, counterpartID := range o.cfg.WhitelistTokens {
		if counterpartID == token.ID {
			continue
		}
		pairAddress, err := o.pairs.PairFor(ctx, token.ID, counterpartID)
		if err != nil || pairAddress == entity.AddressZero {
			continue
		}
		pair, err := entity.Load[*entity.Pair](ctx, store, entity.KindPair, pairAddress)
		if err != nil {
			continue
		}
		if !pair.ReserveNative.GreaterThan(minimumReserve) {
			continue
		}
		if pair.Token0 == token.ID {
			counterpart, err := entity.Load[*entity.Token](ctx, store, entity.KindToken, pair.Token1)
			if err != nil {
				continue
			}
			return pair.Token1Price.Mul(counterpart.DerivedNative)
		}
		if pair.Token1 == token.ID {
			counterpart, err := entity.Load[*entity.Token](ctx, store, entity.KindToken, pair.Token0)
			if err != nil {
				continue
			}
			return pair.Token0Price.Mul(counterpart.DerivedNative)
		}
	}
	return decimal.Zero
}

// TrackedVolumeUSD values swap volume by whitelist membership. Both sides
// whitelisted averages the two legs; a single whitelisted side counts
// that leg alone. The final branch intentionally sums both legs at full
// weight, matching long-standing accounting downstream consumers rely on.
func (o *PairOracle) TrackedVolumeUSD(ctx context.Context, store entity.Store, amount0 decimal.Decimal, token0 *entity.Token, amount1 decimal.Decimal, token1 *entity.Token) decimal.Decimal {
	price0, price1 := o.tokenUSDPrices(ctx, store, token0, token1)

	whitelisted0 := o.cfg.IsWhitelisted(token0.ID)
	whitelisted1 := o.cfg.IsWhitelisted(token1.ID)

	switch {
	case whitelisted0 && whitelisted1:
		return amount0.Mul(price0).Add(amount1.Mul(price1)).Div(two)
	case whitelisted0:
		return amount0.Mul(price0)
	case whitelisted1:
		return amount1.Mul(price1)
	default:
		return amount0.Mul(price0).Add(amount1.Mul(price1))
	}
}

// TrackedFeeVolumeUSD values fee volume as the absolute difference of the
// two legs, counted only when both sides are whitelisted.
func (o *PairOracle) TrackedFeeVolumeUSD(ctx context.Context, store entity.Store, amount0 decimal.Decimal, token0 *entity.Token, amount1 decimal.Decimal, token1 *entity.Token) decimal.Decimal {
	price0, price1 := o.tokenUSDPrices(ctx, store, token0, token1)

	if o.cfg.IsWhitelisted(token0.ID) && o.cfg.IsWhitelisted(token1.ID) {
		return amount0.Mul(price0).Sub(amount1.Mul(price1)).Abs()
	}
	return decimal.Zero
}

// TrackedLiquidityUSD values pair reserves: full sum when both sides are
// whitelisted, doubled single side otherwise, zero when neither is.
func (o *PairOracle) TrackedLiquidityUSD(ctx context.Context, store entity.Store, amount0 decimal.Decimal, token0 *entity.Token, amount1 decimal.Decimal, token1 *entity.Token) decimal.Decimal {
	price0, price1 := o.tokenUSDPrices(ctx, store, token0, token1)

	whitelisted0 := o.cfg.IsWhitelisted(token0.ID)
	whitelisted1 := o.cfg.IsWhitelisted(token1.ID)

	switch {
	case whitelisted0 && whitelisted1:
		return amount0.Mul(price0).Add(amount1.Mul(price1))
	case whitelisted0:
		return amount0.Mul(price0).Mul(two)
	case whitelisted1:
		return amount1.Mul(price1).Mul(two)
	default:
		return decimal.Zero
	}
}

func (o *PairOracle) tokenUSDPrices(ctx context.Context, store entity.Store, token0, token1 *entity.Token) (decimal.Decimal, decimal.Decimal) {
	bundle, err := entity.Load[*entity.Bundle](ctx, store, entity.KindBundle, entity.BundleID)
	if err != nil {
		bundle = entity.NewBundle()
	}
	return token0.DerivedNative.Mul(bundle.NativePriceUSD),
		token1.DerivedNative.Mul(bundle.NativePriceUSD)
}
