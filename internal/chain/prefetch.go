package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// MetadataPrefetcher warms a metadata cache for a batch of token
// addresses with bounded RPC concurrency.
type MetadataPrefetcher struct {
	accessor Accessor
	logger   zerolog.Logger
	sem      *semaphore.Weighted

	mu    sync.RWMutex
	cache map[string]*TokenMetadata
}

func NewMetadataPrefetcher(accessor Accessor, workers int64, logger zerolog.Logger) *MetadataPrefetcher {
	if workers < 1 {
		workers = 1
	}
	return &MetadataPrefetcher{
		accessor: accessor,
		logger:   logger.With().Str("component", "metadata_prefetcher").Logger(),
		sem:      semaphore.NewWeighted(workers),
		cache:    make(map[string]*TokenMetadata),
	}
}

// Prefetch resolves metadata for every address not already cached.
// Individual failures are logged and skipped; the batch continues.
func (p *MetadataPrefetcher) Prefetch(ctx context.Context, tokens []string) {
	var wg sync.WaitGroup
	for _, token := range tokens {
		p.mu.RLock()
		_, cached := p.cache[token]
		p.mu.RUnlock()
		if cached {
			continue
		}

		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			defer p.sem.Release(1)

			metadata, err := p.accessor.TokenMetadata(ctx, token)
			if err != nil {
				p.logger.Warn().Err(err).Str("token", token).Msg("Failed to prefetch token metadata")
				return
			}
			p.mu.Lock()
			p.cache[token] = metadata
			p.mu.Unlock()
		}(token)
	}
	wg.Wait()
}

// TokenMetadata serves from the cache, falling through to the accessor.
func (p *MetadataPrefetcher) TokenMetadata(ctx context.Context, token string) (*TokenMetadata, error) {
	p.mu.RLock()
	metadata, ok := p.cache[token]
	p.mu.RUnlock()
	if ok {
		return metadata, nil
	}
	return p.accessor.TokenMetadata(ctx, token)
}

// Pool state reads pass straight through, making the prefetcher a
// drop-in Accessor.

func (p *MetadataPrefetcher) FeeGrowthGlobals(ctx context.Context, pool string) (*big.Int, *big.Int, error) {
	return p.accessor.FeeGrowthGlobals(ctx, pool)
}

func (p *MetadataPrefetcher) TickFeeGrowthOutside(ctx context.Context, pool string, tickIdx int32) (*big.Int, *big.Int, error) {
	return p.accessor.TickFeeGrowthOutside(ctx, pool, tickIdx)
}
