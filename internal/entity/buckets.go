package entity

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Bucket widths in seconds. A bucket id is "{ownerId}-{timestamp/width}".
const (
	BucketHour  int64 = 3600
	BucketDay   int64 = 86400
	BucketWeek  int64 = 604800
	BucketMonth int64 = 2592000
	BucketYear  int64 = 31536000
)

// Bucket entity kinds.
const (
	KindProtocolDayData = "protocolDayData"
	KindPoolHourData    = "poolHourData"
	KindPoolDayData     = "poolDayData"
	KindPoolWeekData    = "poolWeekData"
	KindPoolMonthData   = "poolMonthData"
	KindPoolYearData    = "poolYearData"
	KindTokenHourData   = "tokenHourData"
	KindTokenDayData    = "tokenDayData"
	KindTickDayData     = "tickDayData"
)

// BucketID builds the composite aggregate id for an owner and width.
func BucketID(ownerID string, timestamp, width int64) string {
	return fmt.Sprintf("%s-%d", ownerID, timestamp/width)
}

// BucketStart is the rounded-down start timestamp of the bucket covering
// the given event timestamp.
func BucketStart(timestamp, width int64) int64 {
	return (timestamp / width) * width
}

// ProtocolDayData aggregates factory-wide totals over daily windows.
type ProtocolDayData struct {
	ID                 string          `json:"id"`
	Date               int64           `json:"date"`
	VolumeNative       decimal.Decimal `json:"volumeNative"`
	VolumeUSD          decimal.Decimal `json:"volumeUSD"`
	VolumeUSDUntracked decimal.Decimal `json:"volumeUSDUntracked"`
	FeesUSD            decimal.Decimal `json:"feesUSD"`
	ProtocolFeesUSD    decimal.Decimal `json:"protocolFeesUSD"`
	TVLUSD             decimal.Decimal `json:"tvlUSD"`
	TxCount            int64           `json:"txCount"`
}

func (d *ProtocolDayData) EntityID() string   { return d.ID }
func (d *ProtocolDayData) EntityKind() string { return KindProtocolDayData }
func (d *ProtocolDayData) Clone() Entity {
	c := *d
	return &c
}

// PoolBucketData is the OHLC aggregate for one pool and one bucket width.
// The open/high/low/close series tracks pool.token0Price; volume and fee
// fields accumulate deltas within the window; the remaining fields are
// point-in-time snapshots taken at last update.
type PoolBucketData struct {
	ID                   string          `json:"id"`
	kind                 string
	Date                 int64           `json:"date"`
	Pool                 string          `json:"pool"`
	Liquidity            *big.Int        `json:"liquidity"`
	SqrtPrice            *big.Int        `json:"sqrtPrice"`
	Token0Price          decimal.Decimal `json:"token0Price"`
	Token1Price          decimal.Decimal `json:"token1Price"`
	Tick                 *int32          `json:"tick"`
	FeeGrowthGlobal0X128 *big.Int        `json:"feeGrowthGlobal0X128"`
	FeeGrowthGlobal1X128 *big.Int        `json:"feeGrowthGlobal1X128"`
	TVLUSD               decimal.Decimal `json:"tvlUSD"`
	VolumeToken0         decimal.Decimal `json:"volumeToken0"`
	VolumeToken1         decimal.Decimal `json:"volumeToken1"`
	VolumeUSD            decimal.Decimal `json:"volumeUSD"`
	FeesUSD              decimal.Decimal `json:"feesUSD"`
	ProtocolFeesUSD      decimal.Decimal `json:"protocolFeesUSD"`
	TxCount              int64           `json:"txCount"`
	Open                 decimal.Decimal `json:"open"`
	High                 decimal.Decimal `json:"high"`
	Low                  decimal.Decimal `json:"low"`
	Close                decimal.Decimal `json:"close"`
}

// PoolBucketKind maps a bucket width to its entity kind.
func PoolBucketKind(width int64) string {
	switch width {
	case BucketHour:
		return KindPoolHourData
	case BucketDay:
		return KindPoolDayData
	case BucketWeek:
		return KindPoolWeekData
	case BucketMonth:
		return KindPoolMonthData
	case BucketYear:
		return KindPoolYearData
	default:
		return KindPoolDayData
	}
}

func NewPoolBucketData(id string, width int64) *PoolBucketData {
	return &PoolBucketData{
		ID:              id,
		kind:            PoolBucketKind(width),
		VolumeToken0:    decimal.Zero,
		VolumeToken1:    decimal.Zero,
		VolumeUSD:       decimal.Zero,
		FeesUSD:         decimal.Zero,
		ProtocolFeesUSD: decimal.Zero,
	}
}

func (d *PoolBucketData) EntityID() string   { return d.ID }
func (d *PoolBucketData) EntityKind() string { return d.kind }
func (d *PoolBucketData) SetKind(kind string) { d.kind = kind }
func (d *PoolBucketData) Clone() Entity {
	c := *d
	c.Liquidity = cloneBig(d.Liquidity)
	c.SqrtPrice = cloneBig(d.SqrtPrice)
	c.FeeGrowthGlobal0X128 = cloneBig(d.FeeGrowthGlobal0X128)
	c.FeeGrowthGlobal1X128 = cloneBig(d.FeeGrowthGlobal1X128)
	if d.Tick != nil {
		tick := *d.Tick
		c.Tick = &tick
	}
	return &c
}

// TokenBucketData is the OHLC aggregate for one token and one bucket
// width. The price series tracks derivedNative x bundle price.
type TokenBucketData struct {
	ID                  string `json:"id"`
	kind                string
	Date                int64           `json:"date"`
	Token               string          `json:"token"`
	Volume              decimal.Decimal `json:"volume"`
	VolumeUSD           decimal.Decimal `json:"volumeUSD"`
	UntrackedVolumeUSD  decimal.Decimal `json:"untrackedVolumeUSD"`
	FeesUSD             decimal.Decimal `json:"feesUSD"`
	ProtocolFeesUSD     decimal.Decimal `json:"protocolFeesUSD"`
	PriceUSD            decimal.Decimal `json:"priceUSD"`
	TotalValueLocked    decimal.Decimal `json:"totalValueLocked"`
	TotalValueLockedUSD decimal.Decimal `json:"totalValueLockedUSD"`
	Open                decimal.Decimal `json:"open"`
	High                decimal.Decimal `json:"high"`
	Low                 decimal.Decimal `json:"low"`
	Close               decimal.Decimal `json:"close"`
}

// TokenBucketKind maps a bucket width to its entity kind.
func TokenBucketKind(width int64) string {
	if width == BucketHour {
		return KindTokenHourData
	}
	return KindTokenDayData
}

func NewTokenBucketData(id string, width int64) *TokenBucketData {
	return &TokenBucketData{
		ID:                 id,
		kind:               TokenBucketKind(width),
		Volume:             decimal.Zero,
		VolumeUSD:          decimal.Zero,
		UntrackedVolumeUSD: decimal.Zero,
		FeesUSD:            decimal.Zero,
		ProtocolFeesUSD:    decimal.Zero,
	}
}

func (d *TokenBucketData) EntityID() string   { return d.ID }
func (d *TokenBucketData) EntityKind() string { return d.kind }
func (d *TokenBucketData) SetKind(kind string) { d.kind = kind }
func (d *TokenBucketData) Clone() Entity {
	c := *d
	return &c
}

// TickDayData snapshots a tick's liquidity and fee growth daily.
type TickDayData struct {
	ID                    string          `json:"id"`
	Date                  int64           `json:"date"`
	Pool                  string          `json:"pool"`
	Tick                  string          `json:"tick"`
	LiquidityGross        *big.Int        `json:"liquidityGross"`
	LiquidityNet          *big.Int        `json:"liquidityNet"`
	FeeGrowthOutside0X128 *big.Int        `json:"feeGrowthOutside0X128"`
	FeeGrowthOutside1X128 *big.Int        `json:"feeGrowthOutside1X128"`
	VolumeToken0          decimal.Decimal `json:"volumeToken0"`
	VolumeToken1          decimal.Decimal `json:"volumeToken1"`
	VolumeUSD             decimal.Decimal `json:"volumeUSD"`
	FeesUSD               decimal.Decimal `json:"feesUSD"`
}

func (d *TickDayData) EntityID() string   { return d.ID }
func (d *TickDayData) EntityKind() string { return KindTickDayData }
func (d *TickDayData) Clone() Entity {
	c := *d
	c.LiquidityGross = cloneBig(d.LiquidityGross)
	c.LiquidityNet = cloneBig(d.LiquidityNet)
	c.FeeGrowthOutside0X128 = cloneBig(d.FeeGrowthOutside0X128)
	c.FeeGrowthOutside1X128 = cloneBig(d.FeeGrowthOutside1X128)
	return &c
}
