package entity

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Entity kinds used as the first component of store keys.
const (
	KindBundle      = "bundle"
	KindFactory     = "factory"
	KindToken       = "token"
	KindPool        = "pool"
	KindPair        = "pair"
	KindTick        = "tick"
	KindTransaction = "transaction"
	KindSwap        = "swap"
	KindMint        = "mint"
	KindBurn        = "burn"
	KindCollect     = "collect"
)

// Entity is the contract every persisted record satisfies. Load returns a
// deep copy; mutations are invisible until Save.
type Entity interface {
	EntityID() string
	EntityKind() string
	Clone() Entity
}

// Bundle holds the current native coin price in USD. Singleton, id "1".
const BundleID = "1"

type Bundle struct {
	ID             string          `json:"id"`
	NativePriceUSD decimal.Decimal `json:"nativePriceUSD"`
}

func NewBundle() *Bundle {
	return &Bundle{ID: BundleID, NativePriceUSD: decimal.Zero}
}

func (b *Bundle) EntityID() string   { return b.ID }
func (b *Bundle) EntityKind() string { return KindBundle }
func (b *Bundle) Clone() Entity {
	c := *b
	return &c
}

// Factory carries protocol-wide running totals. Singleton, keyed by the
// factory contract address.
type Factory struct {
	ID                              string          `json:"id"`
	PoolCount                       int64           `json:"poolCount"`
	TxCount                         int64           `json:"txCount"`
	TotalVolumeNative               decimal.Decimal `json:"totalVolumeNative"`
	TotalVolumeUSD                  decimal.Decimal `json:"totalVolumeUSD"`
	UntrackedVolumeUSD              decimal.Decimal `json:"untrackedVolumeUSD"`
	TotalFeesNative                 decimal.Decimal `json:"totalFeesNative"`
	TotalFeesUSD                    decimal.Decimal `json:"totalFeesUSD"`
	TotalProtocolFeesNative         decimal.Decimal `json:"totalProtocolFeesNative"`
	TotalProtocolFeesUSD            decimal.Decimal `json:"totalProtocolFeesUSD"`
	TotalValueLockedNative          decimal.Decimal `json:"totalValueLockedNative"`
	TotalValueLockedUSD             decimal.Decimal `json:"totalValueLockedUSD"`
	TotalValueLockedNativeUntracked decimal.Decimal `json:"totalValueLockedNativeUntracked"`
	TotalValueLockedUSDUntracked    decimal.Decimal `json:"totalValueLockedUSDUntracked"`
	Owner                           string          `json:"owner"`
}

const AddressZero = "0x0000000000000000000000000000000000000000"

func NewFactory(id string) *Factory {
	return &Factory{
		ID:                              id,
		TotalVolumeNative:               decimal.Zero,
		TotalVolumeUSD:                  decimal.Zero,
		UntrackedVolumeUSD:              decimal.Zero,
		TotalFeesNative:                 decimal.Zero,
		TotalFeesUSD:                    decimal.Zero,
		TotalProtocolFeesNative:         decimal.Zero,
		TotalProtocolFeesUSD:            decimal.Zero,
		TotalValueLockedNative:          decimal.Zero,
		TotalValueLockedUSD:             decimal.Zero,
		TotalValueLockedNativeUntracked: decimal.Zero,
		TotalValueLockedUSDUntracked:    decimal.Zero,
		Owner:                           AddressZero,
	}
}

func (f *Factory) EntityID() string   { return f.ID }
func (f *Factory) EntityKind() string { return KindFactory }
func (f *Factory) Clone() Entity {
	c := *f
	return &c
}

// Token is keyed by the lowercase hex contract address. DerivedNative is the
// zero value until a whitelist-connected pool with sufficient liquidity
// exists; callers treat zero as "no price found".
type Token struct {
	ID                           string          `json:"id"`
	Symbol                       string          `json:"symbol"`
	Name                         string          `json:"name"`
	Decimals                     int32           `json:"decimals"`
	TotalSupply                  *big.Int        `json:"totalSupply"`
	Volume                       decimal.Decimal `json:"volume"`
	VolumeUSD                    decimal.Decimal `json:"volumeUSD"`
	UntrackedVolumeUSD           decimal.Decimal `json:"untrackedVolumeUSD"`
	FeesUSD                      decimal.Decimal `json:"feesUSD"`
	ProtocolFeesUSD              decimal.Decimal `json:"protocolFeesUSD"`
	TxCount                      int64           `json:"txCount"`
	TotalValueLocked             decimal.Decimal `json:"totalValueLocked"`
	TotalValueLockedUSD          decimal.Decimal `json:"totalValueLockedUSD"`
	TotalValueLockedUSDUntracked decimal.Decimal `json:"totalValueLockedUSDUntracked"`
	DerivedNative                decimal.Decimal `json:"derivedNative"`
	DerivedUSD                   decimal.Decimal `json:"derivedUSD"`
	WhitelistPools               []string        `json:"whitelistPools"`
}

func NewToken(id string) *Token {
	return &Token{
		ID:                           id,
		Symbol:                       "???",
		Name:                         "Unknown",
		Decimals:                     18,
		TotalSupply:                  new(big.Int),
		Volume:                       decimal.Zero,
		VolumeUSD:                    decimal.Zero,
		UntrackedVolumeUSD:           decimal.Zero,
		FeesUSD:                      decimal.Zero,
		ProtocolFeesUSD:              decimal.Zero,
		TotalValueLocked:             decimal.Zero,
		TotalValueLockedUSD:          decimal.Zero,
		TotalValueLockedUSDUntracked: decimal.Zero,
		DerivedNative:                decimal.Zero,
		DerivedUSD:                   decimal.Zero,
	}
}

func (t *Token) EntityID() string   { return t.ID }
func (t *Token) EntityKind() string { return KindToken }
func (t *Token) Clone() Entity {
	c := *t
	c.TotalSupply = cloneBig(t.TotalSupply)
	c.WhitelistPools = append([]string(nil), t.WhitelistPools...)
	return &c
}

// Pool is keyed by the pool contract address. Token0/Token1 ordering is
// fixed at creation; amount0/amount1 deltas are signed relative to it
// (positive flows into the pool). Tick is nil until Initialize.
type Pool struct {
	ID                              string          `json:"id"`
	Token0                          string          `json:"token0"`
	Token1                          string          `json:"token1"`
	FeeTier                         int64           `json:"feeTier"`
	Liquidity                       *big.Int        `json:"liquidity"`
	SqrtPrice                       *big.Int        `json:"sqrtPrice"`
	Tick                            *int32          `json:"tick"`
	FeeGrowthGlobal0X128            *big.Int        `json:"feeGrowthGlobal0X128"`
	FeeGrowthGlobal1X128            *big.Int        `json:"feeGrowthGlobal1X128"`
	Token0Price                     decimal.Decimal `json:"token0Price"`
	Token1Price                     decimal.Decimal `json:"token1Price"`
	VolumeToken0                    decimal.Decimal `json:"volumeToken0"`
	VolumeToken1                    decimal.Decimal `json:"volumeToken1"`
	VolumeUSD                       decimal.Decimal `json:"volumeUSD"`
	UntrackedVolumeUSD              decimal.Decimal `json:"untrackedVolumeUSD"`
	FeesUSD                         decimal.Decimal `json:"feesUSD"`
	ProtocolFeesUSD                 decimal.Decimal `json:"protocolFeesUSD"`
	CollectedFeesToken0             decimal.Decimal `json:"collectedFeesToken0"`
	CollectedFeesToken1             decimal.Decimal `json:"collectedFeesToken1"`
	CollectedFeesUSD                decimal.Decimal `json:"collectedFeesUSD"`
	TxCount                         int64           `json:"txCount"`
	LiquidityProviderCount          int64           `json:"liquidityProviderCount"`
	TotalValueLockedToken0          decimal.Decimal `json:"totalValueLockedToken0"`
	TotalValueLockedToken1          decimal.Decimal `json:"totalValueLockedToken1"`
	TotalValueLockedNative          decimal.Decimal `json:"totalValueLockedNative"`
	TotalValueLockedUSD             decimal.Decimal `json:"totalValueLockedUSD"`
	TotalValueLockedNativeUntracked decimal.Decimal `json:"totalValueLockedNativeUntracked"`
	TotalValueLockedUSDUntracked    decimal.Decimal `json:"totalValueLockedUSDUntracked"`
	CreatedAtTimestamp              int64           `json:"createdAtTimestamp"`
	CreatedAtBlockNumber            uint64          `json:"createdAtBlockNumber"`
}

func NewPool(id string) *Pool {
	return &Pool{
		ID:                              id,
		Liquidity:                       new(big.Int),
		SqrtPrice:                       new(big.Int),
		FeeGrowthGlobal0X128:            new(big.Int),
		FeeGrowthGlobal1X128:            new(big.Int),
		Token0Price:                     decimal.Zero,
		Token1Price:                     decimal.Zero,
		VolumeToken0:                    decimal.Zero,
		VolumeToken1:                    decimal.Zero,
		VolumeUSD:                       decimal.Zero,
		UntrackedVolumeUSD:              decimal.Zero,
		FeesUSD:                         decimal.Zero,
		ProtocolFeesUSD:                 decimal.Zero,
		CollectedFeesToken0:             decimal.Zero,
		CollectedFeesToken1:             decimal.Zero,
		CollectedFeesUSD:                decimal.Zero,
		TotalValueLockedToken0:          decimal.Zero,
		TotalValueLockedToken1:          decimal.Zero,
		TotalValueLockedNative:          decimal.Zero,
		TotalValueLockedUSD:             decimal.Zero,
		TotalValueLockedNativeUntracked: decimal.Zero,
		TotalValueLockedUSDUntracked:    decimal.Zero,
	}
}

func (p *Pool) EntityID() string   { return p.ID }
func (p *Pool) EntityKind() string { return KindPool }
func (p *Pool) Clone() Entity {
	c := *p
	c.Liquidity = cloneBig(p.Liquidity)
	c.SqrtPrice = cloneBig(p.SqrtPrice)
	c.FeeGrowthGlobal0X128 = cloneBig(p.FeeGrowthGlobal0X128)
	c.FeeGrowthGlobal1X128 = cloneBig(p.FeeGrowthGlobal1X128)
	if p.Tick != nil {
		tick := *p.Tick
		c.Tick = &tick
	}
	return &c
}

// Pair is the constant-product (V2) pool record. Reserves are human-scale
// decimals; ReserveNative is the pair's combined reserve valued in the
// native coin.
type Pair struct {
	ID            string          `json:"id"`
	Token0        string          `json:"token0"`
	Token1        string          `json:"token1"`
	Reserve0      decimal.Decimal `json:"reserve0"`
	Reserve1      decimal.Decimal `json:"reserve1"`
	ReserveNative decimal.Decimal `json:"reserveNative"`
	ReserveUSD    decimal.Decimal `json:"reserveUSD"`
	Token0Price   decimal.Decimal `json:"token0Price"`
	Token1Price   decimal.Decimal `json:"token1Price"`
	VolumeUSD     decimal.Decimal `json:"volumeUSD"`
	TxCount       int64           `json:"txCount"`
}

func NewPair(id string) *Pair {
	return &Pair{
		ID:            id,
		Reserve0:      decimal.Zero,
		Reserve1:      decimal.Zero,
		ReserveNative: decimal.Zero,
		ReserveUSD:    decimal.Zero,
		Token0Price:   decimal.Zero,
		Token1Price:   decimal.Zero,
		VolumeUSD:     decimal.Zero,
	}
}

func (p *Pair) EntityID() string   { return p.ID }
func (p *Pair) EntityKind() string { return KindPair }
func (p *Pair) Clone() Entity {
	c := *p
	return &c
}

// Tick is keyed "{poolAddress}#{tickIndex}". Created on first use as a
// range boundary and never deleted, even when liquidityGross returns to
// zero.
type Tick struct {
	ID                    string          `json:"id"`
	Pool                  string          `json:"pool"`
	TickIdx               int32           `json:"tickIdx"`
	Price0                decimal.Decimal `json:"price0"`
	Price1                decimal.Decimal `json:"price1"`
	LiquidityGross        *big.Int        `json:"liquidityGross"`
	LiquidityNet          *big.Int        `json:"liquidityNet"`
	VolumeToken0          decimal.Decimal `json:"volumeToken0"`
	VolumeToken1          decimal.Decimal `json:"volumeToken1"`
	VolumeUSD             decimal.Decimal `json:"volumeUSD"`
	FeesUSD               decimal.Decimal `json:"feesUSD"`
	FeeGrowthOutside0X128 *big.Int        `json:"feeGrowthOutside0X128"`
	FeeGrowthOutside1X128 *big.Int        `json:"feeGrowthOutside1X128"`
	CreatedAtTimestamp    int64           `json:"createdAtTimestamp"`
	CreatedAtBlockNumber  uint64          `json:"createdAtBlockNumber"`
}

// NewTick seeds a boundary tick; prices are set by the caller.
func NewTick(id, poolID string, tickIdx int32) *Tick {
	return &Tick{
		ID:                    id,
		Pool:                  poolID,
		TickIdx:               tickIdx,
		Price0:                decimal.Zero,
		Price1:                decimal.Zero,
		LiquidityGross:        new(big.Int),
		LiquidityNet:          new(big.Int),
		VolumeToken0:          decimal.Zero,
		VolumeToken1:          decimal.Zero,
		VolumeUSD:             decimal.Zero,
		FeesUSD:               decimal.Zero,
		FeeGrowthOutside0X128: new(big.Int),
		FeeGrowthOutside1X128: new(big.Int),
	}
}

func (t *Tick) EntityID() string   { return t.ID }
func (t *Tick) EntityKind() string { return KindTick }
func (t *Tick) Clone() Entity {
	c := *t
	c.LiquidityGross = cloneBig(t.LiquidityGross)
	c.LiquidityNet = cloneBig(t.LiquidityNet)
	c.FeeGrowthOutside0X128 = cloneBig(t.FeeGrowthOutside0X128)
	c.FeeGrowthOutside1X128 = cloneBig(t.FeeGrowthOutside1X128)
	return &c
}

// Transaction groups the event records emitted within one transaction.
type Transaction struct {
	ID          string `json:"id"`
	BlockNumber uint64 `json:"blockNumber"`
	Timestamp   int64  `json:"timestamp"`
}

func (t *Transaction) EntityID() string   { return t.ID }
func (t *Transaction) EntityKind() string { return KindTransaction }
func (t *Transaction) Clone() Entity {
	c := *t
	return &c
}

// Swap, Mint, Burn and Collect are immutable event-derived records keyed
// "{transactionId}#{pool.txCount}".

type Swap struct {
	ID           string          `json:"id"`
	Transaction  string          `json:"transaction"`
	Timestamp    int64           `json:"timestamp"`
	Pool         string          `json:"pool"`
	Token0       string          `json:"token0"`
	Token1       string          `json:"token1"`
	Sender       string          `json:"sender"`
	Recipient    string          `json:"recipient"`
	Origin       string          `json:"origin"`
	Amount0      decimal.Decimal `json:"amount0"`
	Amount1      decimal.Decimal `json:"amount1"`
	AmountUSD    decimal.Decimal `json:"amountUSD"`
	AmountFeeUSD decimal.Decimal `json:"amountFeeUSD"`
	SqrtPriceX96 *big.Int        `json:"sqrtPriceX96"`
	Tick         int32           `json:"tick"`
	LogIndex     uint            `json:"logIndex"`
}

func (s *Swap) EntityID() string   { return s.ID }
func (s *Swap) EntityKind() string { return KindSwap }
func (s *Swap) Clone() Entity {
	c := *s
	c.SqrtPriceX96 = cloneBig(s.SqrtPriceX96)
	return &c
}

type Mint struct {
	ID          string          `json:"id"`
	Transaction string          `json:"transaction"`
	Timestamp   int64           `json:"timestamp"`
	Pool        string          `json:"pool"`
	Token0      string          `json:"token0"`
	Token1      string          `json:"token1"`
	Owner       string          `json:"owner"`
	Sender      string          `json:"sender"`
	Origin      string          `json:"origin"`
	Amount      *big.Int        `json:"amount"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
	AmountUSD   decimal.Decimal `json:"amountUSD"`
	TickLower   int32           `json:"tickLower"`
	TickUpper   int32           `json:"tickUpper"`
	LogIndex    uint            `json:"logIndex"`
}

func (m *Mint) EntityID() string   { return m.ID }
func (m *Mint) EntityKind() string { return KindMint }
func (m *Mint) Clone() Entity {
	c := *m
	c.Amount = cloneBig(m.Amount)
	return &c
}

type Burn struct {
	ID          string          `json:"id"`
	Transaction string          `json:"transaction"`
	Timestamp   int64           `json:"timestamp"`
	Pool        string          `json:"pool"`
	Token0      string          `json:"token0"`
	Token1      string          `json:"token1"`
	Owner       string          `json:"owner"`
	Origin      string          `json:"origin"`
	Amount      *big.Int        `json:"amount"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
	AmountUSD   decimal.Decimal `json:"amountUSD"`
	TickLower   int32           `json:"tickLower"`
	TickUpper   int32           `json:"tickUpper"`
	LogIndex    uint            `json:"logIndex"`
}

func (b *Burn) EntityID() string   { return b.ID }
func (b *Burn) EntityKind() string { return KindBurn }
func (b *Burn) Clone() Entity {
	c := *b
	c.Amount = cloneBig(b.Amount)
	return &c
}

type Collect struct {
	ID          string          `json:"id"`
	Transaction string          `json:"transaction"`
	Timestamp   int64           `json:"timestamp"`
	Pool        string          `json:"pool"`
	Owner       string          `json:"owner"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
	AmountUSD   decimal.Decimal `json:"amountUSD"`
	TickLower   int32           `json:"tickLower"`
	TickUpper   int32           `json:"tickUpper"`
	LogIndex    uint            `json:"logIndex"`
}

func (c *Collect) EntityID() string   { return c.ID }
func (c *Collect) EntityKind() string { return KindCollect }
func (c *Collect) Clone() Entity {
	cc := *c
	return &cc
}

func cloneBig(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
