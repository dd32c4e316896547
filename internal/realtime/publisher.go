package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/centrifugal/gocent/v3"
	"github.com/rs/zerolog"

	"github.com/muzman01/subgraph-studio/internal/entity"
)

// Publisher pushes pool snapshots to Centrifugo. Snapshots are debounced:
// the engine hands over every post-swap pool state, the flusher publishes
// the latest snapshot per pool at most every 250ms. Publication is
// fire-and-forget; a failed publish never blocks indexing.
type Publisher struct {
	gc           *gocent.Client
	logger       zerolog.Logger
	mu           sync.Mutex
	pending      map[string]*entity.Pool
	flushCh      chan struct{}
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	currentBlock uint64
}

type PublishConfig struct {
	APIURL string
	APIKey string
}

func NewPublisher(config PublishConfig, logger zerolog.Logger) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())

	p := &Publisher{
		gc: gocent.New(gocent.Config{
			Addr: config.APIURL,
			Key:  config.APIKey,
		}),
		logger:  logger.With().Str("component", "realtime-publisher").Logger(),
		pending: make(map[string]*entity.Pool),
		flushCh: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	p.startFlusher()
	return p
}

func (p *Publisher) startFlusher() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-p.ctx.Done():
				p.logger.Info().Msg("Stopping publisher flusher")
				return
			case <-ticker.C:
				p.flush(p.ctx)
			case <-p.flushCh:
				p.flush(p.ctx)
			}
		}
	}()
}

// PublishPool queues a pool snapshot for the next flush. Later snapshots
// for the same pool replace earlier ones.
func (p *Publisher) PublishPool(pool *entity.Pool) {
	snapshot, ok := pool.Clone().(*entity.Pool)
	if !ok {
		return
	}

	p.mu.Lock()
	p.pending[strings.ToLower(pool.ID)] = snapshot
	p.mu.Unlock()

	select {
	case p.flushCh <- struct{}{}:
	default:
	}
}

func (p *Publisher) SetCurrentBlock(blockNumber uint64) {
	p.mu.Lock()
	p.currentBlock = blockNumber
	p.mu.Unlock()
}

func (p *Publisher) Flush() {
	p.flush(p.ctx)
}

func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}

	pools := make([]*entity.Pool, 0, len(p.pending))
	for _, pool := range p.pending {
		pools = append(pools, pool)
	}
	currentBlock := p.currentBlock
	p.pending = make(map[string]*entity.Pool)
	p.mu.Unlock()

	p.logger.Debug().
		Int("count", len(pools)).
		Uint64("block", currentBlock).
		Msg("Flushing pool updates")

	timestamp := time.Now().UTC().Unix()

	for _, pool := range pools {
		payload := map[string]any{
			"type":         "pool.update",
			"block_number": currentBlock,
			"ts":           timestamp,
			"pool":         pool,
		}

		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			p.logger.Warn().Err(err).Msg("Failed to marshal pool payload")
			continue
		}

		channel := fmt.Sprintf("dex.pool.%s", strings.ToLower(pool.ID))
		if _, err := p.gc.Publish(ctx, channel, payloadBytes); err != nil {
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Warn().
				Err(err).
				Str("pool", pool.ID).
				Str("channel", channel).
				Msg("Failed to publish pool update")
		}
	}

	items := make([]any, 0, len(pools))
	for _, pool := range pools {
		items = append(items, pool)
	}

	batchPayload := map[string]any{
		"type":         "pool.batch",
		"block_number": currentBlock,
		"ts":           timestamp,
		"items":        items,
	}

	batchPayloadBytes, err := json.Marshal(batchPayload)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to marshal batch payload")
		return
	}

	if _, err := p.gc.Publish(ctx, "dex.pools", batchPayloadBytes); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to publish batch update")
	} else {
		p.logger.Debug().
			Int("count", len(items)).
			Uint64("block", currentBlock).
			Msg("Published batch update")
	}
}

func (p *Publisher) Close() error {
	p.logger.Info().Msg("Closing publisher")
	p.cancel()
	p.wg.Wait()
	return nil
}
