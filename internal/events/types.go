package events

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Typed views over ParsedEvent args. Addresses are normalized to
// lowercase hex strings, matching entity ids.

type PoolCreated struct {
	Token0      string
	Token1      string
	Fee         int64
	TickSpacing int32
	Pool        string
}

type Initialize struct {
	SqrtPriceX96 *big.Int
	Tick         int32
}

type Swap struct {
	Sender             string
	Recipient          string
	Amount0            *big.Int
	Amount1            *big.Int
	SqrtPriceX96       *big.Int
	Liquidity          *big.Int
	Tick               int32
	ProtocolFeesToken0 *big.Int
	ProtocolFeesToken1 *big.Int
}

type Mint struct {
	Sender    string
	Owner     string
	TickLower int32
	TickUpper int32
	Amount    *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

type Burn struct {
	Owner     string
	TickLower int32
	TickUpper int32
	Amount    *big.Int
	Amount0   *big.Int
	Amount1   *big.Int
}

type Collect struct {
	Owner     string
	Recipient string
	TickLower int32
	TickUpper int32
	Amount0   *big.Int
	Amount1   *big.Int
}

type CollectProtocol struct {
	Sender    string
	Recipient string
	Amount0   *big.Int
	Amount1   *big.Int
}

type Flash struct {
	Sender    string
	Recipient string
	Amount0   *big.Int
	Amount1   *big.Int
	Paid0     *big.Int
	Paid1     *big.Int
}

func DecodePoolCreated(pe *ParsedEvent) (*PoolCreated, error) {
	ev := &PoolCreated{
		Token0:      argAddress(pe, "token0"),
		Token1:      argAddress(pe, "token1"),
		Fee:         argBig(pe, "fee").Int64(),
		TickSpacing: int32(argBig(pe, "tickSpacing").Int64()),
		Pool:        argAddress(pe, "pool"),
	}
	if ev.Token0 == "" || ev.Token1 == "" || ev.Pool == "" {
		return nil, ErrEventParsing{Event: "PoolCreated", Err: errMissingArg}
	}
	return ev, nil
}

func DecodeInitialize(pe *ParsedEvent) (*Initialize, error) {
	return &Initialize{
		SqrtPriceX96: argBig(pe, "sqrtPriceX96"),
		Tick:         int32(argBig(pe, "tick").Int64()),
	}, nil
}

func DecodeSwap(pe *ParsedEvent) (*Swap, error) {
	return &Swap{
		Sender:             argAddress(pe, "sender"),
		Recipient:          argAddress(pe, "recipient"),
		Amount0:            argBig(pe, "amount0"),
		Amount1:            argBig(pe, "amount1"),
		SqrtPriceX96:       argBig(pe, "sqrtPriceX96"),
		Liquidity:          argBig(pe, "liquidity"),
		Tick:               int32(argBig(pe, "tick").Int64()),
		ProtocolFeesToken0: argBig(pe, "protocolFeesToken0"),
		ProtocolFeesToken1: argBig(pe, "protocolFeesToken1"),
	}, nil
}

func DecodeMint(pe *ParsedEvent) (*Mint, error) {
	return &Mint{
		Sender:    argAddress(pe, "sender"),
		Owner:     argAddress(pe, "owner"),
		TickLower: int32(argBig(pe, "tickLower").Int64()),
		TickUpper: int32(argBig(pe, "tickUpper").Int64()),
		Amount:    argBig(pe, "amount"),
		Amount0:   argBig(pe, "amount0"),
		Amount1:   argBig(pe, "amount1"),
	}, nil
}

func DecodeBurn(pe *ParsedEvent) (*Burn, error) {
	return &Burn{
		Owner:     argAddress(pe, "owner"),
		TickLower: int32(argBig(pe, "tickLower").Int64()),
		TickUpper: int32(argBig(pe, "tickUpper").Int64()),
		Amount:    argBig(pe, "amount"),
		Amount0:   argBig(pe, "amount0"),
		Amount1:   argBig(pe, "amount1"),
	}, nil
}

func DecodeCollect(pe *ParsedEvent) (*Collect, error) {
	return &Collect{
		Owner:     argAddress(pe, "owner"),
		Recipient: argAddress(pe, "recipient"),
		TickLower: int32(argBig(pe, "tickLower").Int64()),
		TickUpper: int32(argBig(pe, "tickUpper").Int64()),
		Amount0:   argBig(pe, "amount0"),
		Amount1:   argBig(pe, "amount1"),
	}, nil
}

func DecodeCollectProtocol(pe *ParsedEvent) (*CollectProtocol, error) {
	return &CollectProtocol{
		Sender:    argAddress(pe, "sender"),
		Recipient: argAddress(pe, "recipient"),
		Amount0:   argBig(pe, "amount0"),
		Amount1:   argBig(pe, "amount1"),
	}, nil
}

func DecodeFlash(pe *ParsedEvent) (*Flash, error) {
	return &Flash{
		Sender:    argAddress(pe, "sender"),
		Recipient: argAddress(pe, "recipient"),
		Amount0:   argBig(pe, "amount0"),
		Amount1:   argBig(pe, "amount1"),
		Paid0:     argBig(pe, "paid0"),
		Paid1:     argBig(pe, "paid1"),
	}, nil
}

var errMissingArg = missingArgError{}

type missingArgError struct{}

func (missingArgError) Error() string { return "missing argument" }

func argAddress(pe *ParsedEvent, name string) string {
	v, ok := pe.Args[name]
	if !ok {
		return ""
	}
	switch a := v.(type) {
	case common.Address:
		return strings.ToLower(a.Hex())
	case string:
		return strings.ToLower(a)
	default:
		return ""
	}
}

func argBig(pe *ParsedEvent, name string) *big.Int {
	v, ok := pe.Args[name]
	if !ok {
		return new(big.Int)
	}
	switch n := v.(type) {
	case *big.Int:
		return new(big.Int).Set(n)
	case uint8:
		return big.NewInt(int64(n))
	case uint16:
		return big.NewInt(int64(n))
	case uint32:
		return big.NewInt(int64(n))
	case uint64:
		return new(big.Int).SetUint64(n)
	case int8:
		return big.NewInt(int64(n))
	case int16:
		return big.NewInt(int64(n))
	case int32:
		return big.NewInt(int64(n))
	case int64:
		return big.NewInt(n)
	default:
		return new(big.Int)
	}
}
