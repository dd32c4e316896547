package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/muzman01/subgraph-studio/internal/entity"
	"github.com/muzman01/subgraph-studio/internal/events"
)

// ErrUnknownFeeTier signals a fee tier with no tick-spacing mapping.
// Guessing a spacing would corrupt the crossed-tick walk, so the walk is
// abandoned instead.
type ErrUnknownFeeTier struct {
	FeeTier int64
}

func (e ErrUnknownFeeTier) Error() string {
	return fmt.Sprintf("unknown fee tier %d, cannot derive tick spacing", e.FeeTier)
}

func feeTierToTickSpacing(feeTier int64) (int32, error) {
	switch feeTier {
	case 100:
		return 1, nil
	case 500:
		return 10, nil
	case 2500:
		return 50, nil
	case 3000:
		return 60, nil
	case 10000:
		return 200, nil
	default:
		return 0, ErrUnknownFeeTier{FeeTier: feeTier}
	}
}

func tickID(poolID string, tickIdx int32) string {
	return poolID + "#" + strconv.FormatInt(int64(tickIdx), 10)
}

var tickBase = decimal.NewFromFloat(1.0001)

// tickPrice0 is 1.0001^tickIdx, rounded to bound digit growth for ticks
// far from zero.
func tickPrice0(tickIdx int32) decimal.Decimal {
	return tickBase.Pow(decimal.NewFromInt(int64(tickIdx))).Round(34)
}

func createTick(id string, tickIdx int32, poolID string, pe *events.ParsedEvent) *entity.Tick {
	tick := entity.NewTick(id, poolID, tickIdx)
	tick.Price0 = tickPrice0(tickIdx)
	tick.Price1 = entity.SafeDiv(one, tick.Price0)
	tick.CreatedAtTimestamp = pe.Timestamp
	tick.CreatedAtBlockNumber = pe.BlockNumber
	return tick
}

// refreshTickFeeVars pulls the tick's fee-growth-outside snapshots from
// the live contract, saves the tick and rolls its day bucket. Accessor
// failures keep the stored snapshots; the tick is still saved.
func (e *Engine) refreshTickFeeVars(ctx context.Context, tick *entity.Tick, pe *events.ParsedEvent) error {
	outside0, outside1, err := e.chain.TickFeeGrowthOutside(ctx, tick.Pool, tick.TickIdx)
	if err != nil {
		e.logger.Debug().Err(err).Str("tick", tick.ID).Msg("Tick fee growth unavailable, keeping stored snapshot")
	} else {
		tick.FeeGrowthOutside0X128 = outside0
		tick.FeeGrowthOutside1X128 = outside1
	}
	if err := e.store.Save(ctx, tick); err != nil {
		return err
	}
	return e.updateTickDayData(ctx, tick, pe.Timestamp)
}

// refreshStoredTick refreshes fee vars for an already-persisted tick, a
// no-op when the tick was never created as a range boundary.
func (e *Engine) refreshStoredTick(ctx context.Context, poolID string, tickIdx int32, pe *events.ParsedEvent) error {
	tick, err := entity.Load[*entity.Tick](ctx, e.store, entity.KindTick, tickID(poolID, tickIdx))
	if err != nil {
		return nil
	}
	return e.refreshTickFeeVars(ctx, tick, pe)
}

// walkCrossedTicks refreshes every spacing-aligned boundary between the
// old and new tick after a swap. Crossing more than 100 boundaries skips
// the walk; later events repair the staleness.
func (e *Engine) walkCrossedTicks(ctx context.Context, pool *entity.Pool, oldTick, newTick int32, pe *events.ParsedEvent) error {
	tickSpacing, err := feeTierToTickSpacing(pool.FeeTier)
	if err != nil {
		return err
	}

	modulo := newTick % tickSpacing
	if modulo == 0 {
		if err := e.refreshStoredTick(ctx, pool.ID, newTick, pe); err != nil {
			return err
		}
	}

	numIters := abs32(oldTick-newTick) / tickSpacing
	if numIters > 100 {
		return nil
	}

	if newTick > oldTick {
		firstInitialized := oldTick + (tickSpacing - modulo)
		for i := firstInitialized; i <= newTick; i += tickSpacing {
			if err := e.refreshStoredTick(ctx, pool.ID, i, pe); err != nil {
				return err
			}
		}
	} else if newTick < oldTick {
		firstInitialized := oldTick - modulo
		for i := firstInitialized; i >= newTick; i -= tickSpacing {
			if err := e.refreshStoredTick(ctx, pool.ID, i, pe); err != nil {
				return err
			}
		}
	}
	return nil
}

func abs32(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}
