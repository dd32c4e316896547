package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// LatestBlockNumber returns the chain head.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	number, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return number, nil
}

// FilterLogs runs an eth_getLogs query against the node.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}
	return logs, nil
}

// BlockTimestamp returns a block's timestamp in seconds.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (int64, error) {
	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, fmt.Errorf("failed to get header %d: %w", number, err)
	}
	return int64(header.Time), nil
}
