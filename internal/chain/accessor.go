package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// TokenMetadata carries the ERC20 descriptor fields read at pool creation.
type TokenMetadata struct {
	Name        string
	Symbol      string
	Decimals    int32
	TotalSupply *big.Int
}

// Accessor reads live contract state the event stream does not carry.
type Accessor interface {
	FeeGrowthGlobals(ctx context.Context, pool string) (*big.Int, *big.Int, error)
	TickFeeGrowthOutside(ctx context.Context, pool string, tickIdx int32) (*big.Int, *big.Int, error)
	TokenMetadata(ctx context.Context, token string) (*TokenMetadata, error)
}

const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"NAME","outputs":[{"name":"","type":"bytes32"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"SYMBOL","outputs":[{"name":"","type":"bytes32"}],"type":"function"}
]`

const poolStateABIJSON = `[
	{"constant":true,"inputs":[],"name":"feeGrowthGlobal0X128","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"feeGrowthGlobal1X128","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"tick","type":"int24"}],"name":"ticks","outputs":[
		{"name":"liquidityGross","type":"uint128"},
		{"name":"liquidityNet","type":"int128"},
		{"name":"feeGrowthOutside0X128","type":"uint256"},
		{"name":"feeGrowthOutside1X128","type":"uint256"},
		{"name":"tickCumulativeOutside","type":"int56"},
		{"name":"secondsPerLiquidityOutsideX128","type":"uint160"},
		{"name":"secondsOutside","type":"uint32"},
		{"name":"initialized","type":"bool"}
	],"type":"function"}
]`

// Client is the ethclient-backed Accessor.
type Client struct {
	eth      *ethclient.Client
	erc20ABI abi.ABI
	poolABI  abi.ABI
}

func NewClient(rpcEndpoint string) (*Client, error) {
	eth, err := ethclient.Dial(rpcEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rpc endpoint: %w", err)
	}
	return newClient(eth)
}

func newClient(eth *ethclient.Client) (*Client, error) {
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	poolABI, err := abi.JSON(strings.NewReader(poolStateABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool state ABI: %w", err)
	}
	return &Client{eth: eth, erc20ABI: erc20ABI, poolABI: poolABI}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) boundPool(pool string) *bind.BoundContract {
	return bind.NewBoundContract(common.HexToAddress(pool), c.poolABI, c.eth, c.eth, c.eth)
}

func (c *Client) FeeGrowthGlobals(ctx context.Context, pool string) (*big.Int, *big.Int, error) {
	contract := c.boundPool(pool)
	opts := &bind.CallOpts{Context: ctx}

	results := []interface{}{new(*big.Int)}
	if err := contract.Call(opts, &results, "feeGrowthGlobal0X128"); err != nil {
		return nil, nil, fmt.Errorf("feeGrowthGlobal0X128 call failed: %w", err)
	}
	global0 := *results[0].(**big.Int)

	results = []interface{}{new(*big.Int)}
	if err := contract.Call(opts, &results, "feeGrowthGlobal1X128"); err != nil {
		return nil, nil, fmt.Errorf("feeGrowthGlobal1X128 call failed: %w", err)
	}
	global1 := *results[0].(**big.Int)

	return global0, global1, nil
}

func (c *Client) TickFeeGrowthOutside(ctx context.Context, pool string, tickIdx int32) (*big.Int, *big.Int, error) {
	contract := c.boundPool(pool)
	opts := &bind.CallOpts{Context: ctx}

	results := []interface{}{
		new(*big.Int), new(*big.Int), new(*big.Int), new(*big.Int),
		new(*big.Int), new(*big.Int), new(uint32), new(bool),
	}
	if err := contract.Call(opts, &results, "ticks", big.NewInt(int64(tickIdx))); err != nil {
		return nil, nil, fmt.Errorf("ticks call failed: %w", err)
	}
	outside0 := *results[2].(**big.Int)
	outside1 := *results[3].(**big.Int)
	return outside0, outside1, nil
}

// TokenMetadata reads ERC20 descriptor fields with bytes32 fallbacks for
// tokens predating the string convention. Failed individual calls leave
// the placeholder defaults in place.
func (c *Client) TokenMetadata(ctx context.Context, token string) (*TokenMetadata, error) {
	metadata := &TokenMetadata{
		Name:        "Unknown",
		Symbol:      "???",
		Decimals:    18,
		TotalSupply: big.NewInt(0),
	}

	contract := bind.NewBoundContract(common.HexToAddress(token), c.erc20ABI, c.eth, c.eth, c.eth)
	opts := &bind.CallOpts{Context: ctx}

	results := []interface{}{new(string)}
	if err := contract.Call(opts, &results, "name"); err == nil {
		if name := *results[0].(*string); name != "" {
			metadata.Name = name
		}
	}
	if metadata.Name == "Unknown" {
		results = []interface{}{new([32]byte)}
		if err := contract.Call(opts, &results, "NAME"); err == nil {
			b32 := *results[0].(*[32]byte)
			if name := strings.TrimRight(string(b32[:]), "\x00"); name != "" {
				metadata.Name = name
			}
		}
	}

	results = []interface{}{new(string)}
	if err := contract.Call(opts, &results, "symbol"); err == nil {
		if sym := *results[0].(*string); sym != "" {
			metadata.Symbol = sym
		}
	}
	if metadata.Symbol == "???" {
		results = []interface{}{new([32]byte)}
		if err := contract.Call(opts, &results, "SYMBOL"); err == nil {
			b32 := *results[0].(*[32]byte)
			if sym := strings.TrimRight(string(b32[:]), "\x00"); sym != "" {
				metadata.Symbol = sym
			}
		}
	}

	results = []interface{}{new(uint8)}
	if err := contract.Call(opts, &results, "decimals"); err == nil {
		metadata.Decimals = int32(*results[0].(*uint8))
	}

	results = []interface{}{new(*big.Int)}
	if err := contract.Call(opts, &results, "totalSupply"); err == nil {
		if ts := *results[0].(**big.Int); ts != nil {
			metadata.TotalSupply = ts
		}
	}

	return metadata, nil
}
