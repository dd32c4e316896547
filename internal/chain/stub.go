package chain

import (
	"context"
	"errors"
	"math/big"
)

// ErrNoRPC is returned by the stub accessor for pool state reads.
var ErrNoRPC = errors.New("no rpc client configured")

// StubAccessor satisfies Accessor without a chain connection. Pool state
// reads fail with ErrNoRPC; token metadata resolves to placeholders.
// Used in tests and when replaying from a stored log archive.
type StubAccessor struct{}

func (StubAccessor) FeeGrowthGlobals(ctx context.Context, pool string) (*big.Int, *big.Int, error) {
	return nil, nil, ErrNoRPC
}

func (StubAccessor) TickFeeGrowthOutside(ctx context.Context, pool string, tickIdx int32) (*big.Int, *big.Int, error) {
	return nil, nil, ErrNoRPC
}

func (StubAccessor) TokenMetadata(ctx context.Context, token string) (*TokenMetadata, error) {
	return &TokenMetadata{
		Name:        "Unknown",
		Symbol:      "???",
		Decimals:    18,
		TotalSupply: big.NewInt(0),
	}, nil
}
