package processor

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/muzman01/subgraph-studio/internal/chain"
	"github.com/muzman01/subgraph-studio/internal/database"
	"github.com/muzman01/subgraph-studio/internal/engine"
	"github.com/muzman01/subgraph-studio/internal/events"
)

// LogFeed pulls logs for tracked contracts and delivers them to the
// engine in canonical order: block number, then transaction index, then
// log index. The address filter starts with the factory and grows as
// pools are created.
type LogFeed struct {
	client     *chain.Client
	engine     *engine.Engine
	prefetcher *chain.MetadataPrefetcher
	logger     zerolog.Logger

	poolCreatedTopic common.Hash
	topics           []common.Hash

	mu        sync.Mutex
	addresses map[common.Address]struct{}
}

func NewLogFeed(client *chain.Client, eng *engine.Engine, prefetcher *chain.MetadataPrefetcher, factoryAddress string, logger zerolog.Logger) (*LogFeed, error) {
	factoryABI, _, err := events.ParseABIs()
	if err != nil {
		return nil, err
	}

	f := &LogFeed{
		client:           client,
		engine:           eng,
		prefetcher:       prefetcher,
		logger:           logger.With().Str("component", "log_feed").Logger(),
		poolCreatedTopic: factoryABI.Events["PoolCreated"].ID,
		topics:           eng.Topics(),
		addresses:        make(map[common.Address]struct{}),
	}
	f.AddAddress(factoryAddress)
	return f, nil
}

// AddAddress adds a contract to the log filter.
func (f *LogFeed) AddAddress(address string) {
	f.mu.Lock()
	f.addresses[common.HexToAddress(address)] = struct{}{}
	f.mu.Unlock()
}

// SeedAddresses loads every known pool into the filter. Called once at
// startup before the first range.
func (f *LogFeed) SeedAddresses(ctx context.Context, store *database.EntityStore) error {
	pools, err := store.PoolAddresses(ctx)
	if err != nil {
		return err
	}
	for _, pool := range pools {
		f.AddAddress(pool)
	}
	f.logger.Info().Int("pools", len(pools)).Msg("Seeded address filter")
	return nil
}

func (f *LogFeed) filterAddresses() []common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	addresses := make([]common.Address, 0, len(f.addresses))
	for addr := range f.addresses {
		addresses = append(addresses, addr)
	}
	return addresses
}

// ProcessRange fetches, orders and applies all logs in [from, to].
// Returns the number of logs delivered to the engine.
func (f *LogFeed) ProcessRange(ctx context.Context, from, to uint64) (int, error) {
	query := ethereum.FilterQuery{
		FromBlock: newBlockNumber(from),
		ToBlock:   newBlockNumber(to),
		Addresses: f.filterAddresses(),
		Topics:    [][]common.Hash{f.topics},
	}

	logs, err := f.client.FilterLogs(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(logs) == 0 {
		return 0, nil
	}

	sort.Slice(logs, func(a, b int) bool {
		if logs[a].BlockNumber != logs[b].BlockNumber {
			return logs[a].BlockNumber < logs[b].BlockNumber
		}
		if logs[a].TxIndex != logs[b].TxIndex {
			return logs[a].TxIndex < logs[b].TxIndex
		}
		return logs[a].Index < logs[b].Index
	})

	f.prefetchTokens(ctx, logs)

	timestamps := make(map[uint64]int64)
	for idx := range logs {
		log := &logs[idx]

		timestamp, ok := timestamps[log.BlockNumber]
		if !ok {
			timestamp, err = f.client.BlockTimestamp(ctx, log.BlockNumber)
			if err != nil {
				return 0, err
			}
			timestamps[log.BlockNumber] = timestamp
		}

		if err := f.engine.ProcessLog(ctx, log, timestamp); err != nil {
			f.logger.Error().Err(err).
				Uint64("block", log.BlockNumber).
				Str("tx", log.TxHash.Hex()).
				Uint("log_index", log.Index).
				Msg("Failed to process log")
			return 0, err
		}
	}

	return len(logs), nil
}

// prefetchTokens warms token metadata for every PoolCreated log in the
// batch so the handlers don't block on sequential RPC calls.
func (f *LogFeed) prefetchTokens(ctx context.Context, logs []types.Log) {
	var tokens []string
	for idx := range logs {
		log := &logs[idx]
		if len(log.Topics) < 3 || log.Topics[0] != f.poolCreatedTopic {
			continue
		}
		tokens = append(tokens,
			strings.ToLower(common.HexToAddress(log.Topics[1].Hex()).Hex()),
			strings.ToLower(common.HexToAddress(log.Topics[2].Hex()).Hex()),
		)
	}
	if len(tokens) > 0 {
		f.prefetcher.Prefetch(ctx, tokens)
	}
}

func newBlockNumber(n uint64) *big.Int {
	return new(big.Int).SetUint64(n)
}
