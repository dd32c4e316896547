package processor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/muzman01/subgraph-studio/internal/chain"
	"github.com/muzman01/subgraph-studio/internal/config"
	"github.com/muzman01/subgraph-studio/internal/database"
	"github.com/muzman01/subgraph-studio/internal/engine"
	"github.com/muzman01/subgraph-studio/internal/realtime"
)

// Indexer coordinates the log feed, the engine and the store flushes.
type Indexer struct {
	config *config.Config
	client *chain.Client
	db     *database.Database
	store  *database.EntityStore
	engine *engine.Engine
	feed   *LogFeed

	publisher *realtime.Publisher
	scheduler gocron.Scheduler

	logger zerolog.Logger
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	lastBlock   uint64
	latestBlock uint64
}

// NewIndexer creates a new indexer instance
func NewIndexer(cfg *config.Config, logger zerolog.Logger) (*Indexer, error) {
	client, err := chain.NewClient(cfg.Chain.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}

	db, err := database.New(context.Background(), &cfg.Database, logger)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := database.NewEntityStore(db, cfg.Deployment.FactoryAddress, logger)

	prefetcher := chain.NewMetadataPrefetcher(client, int64(cfg.Processor.MetadataWorkers), logger)
	eng, err := engine.New(store, prefetcher, &cfg.Deployment, logger)
	if err != nil {
		db.Close()
		client.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	feed, err := NewLogFeed(client, eng, prefetcher, cfg.Deployment.FactoryAddress, logger)
	if err != nil {
		db.Close()
		client.Close()
		return nil, err
	}
	eng.SetPoolListener(feed.AddAddress)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		db.Close()
		client.Close()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	i := &Indexer{
		config:    cfg,
		client:    client,
		db:        db,
		store:     store,
		engine:    eng,
		feed:      feed,
		scheduler: scheduler,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	if cfg.Realtime.Enabled {
		i.publisher = realtime.NewPublisher(realtime.PublishConfig{
			APIURL: cfg.Realtime.APIURL,
			APIKey: cfg.Realtime.APIKey,
		}, logger)
		eng.SetPublisher(i.publisher)
	}

	return i, nil
}

// Start starts the indexer
func (i *Indexer) Start() error {
	i.logger.Info().Msg("Starting indexer")

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := i.startProgressReporter(); err != nil {
		return err
	}

	// Start sync loop in a goroutine
	i.wg.Add(1)
	go i.syncLoop()

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		i.logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-i.ctx.Done():
		i.logger.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	i.Stop()
	return nil
}

// Stop stops the indexer gracefully
func (i *Indexer) Stop() {
	i.logger.Info().Msg("Stopping indexer")

	i.cancel()
	i.wg.Wait()

	if err := i.scheduler.Shutdown(); err != nil {
		i.logger.Error().Err(err).Msg("Error shutting down scheduler")
	}
	if i.publisher != nil {
		i.publisher.Flush()
		if err := i.publisher.Close(); err != nil {
			i.logger.Error().Err(err).Msg("Error closing publisher")
		}
	}

	i.client.Close()
	i.db.Close()

	i.logger.Info().Msg("Indexer stopped")
}

func (i *Indexer) startProgressReporter() error {
	interval := time.Duration(i.config.Processor.ProgressInterval) * time.Second

	_, err := i.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			i.mu.Lock()
			last, latest := i.lastBlock, i.latestBlock
			i.mu.Unlock()

			var lag uint64
			if latest > last {
				lag = latest - last
			}
			i.logger.Info().
				Uint64("last_block", last).
				Uint64("latest_block", latest).
				Uint64("lag", lag).
				Int("dirty_entities", i.store.Dirty()).
				Msg("Sync progress")
		}),
		gocron.WithName("sync-progress"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule progress job: %w", err)
	}

	i.scheduler.Start()
	return nil
}

// syncLoop is the main synchronization loop
func (i *Indexer) syncLoop() {
	defer i.wg.Done()

	lastBlock, err := i.db.LoadCheckpoint(i.ctx, i.config.Deployment.FactoryAddress)
	if err != nil {
		i.logger.Error().Err(err).Msg("Failed to load checkpoint")
		return
	}
	if lastBlock == 0 && i.config.Chain.StartBlock > 0 {
		lastBlock = i.config.Chain.StartBlock - 1
		i.logger.Info().Uint64("block", i.config.Chain.StartBlock).Msg("Starting from configured block")
	}

	if err := i.feed.SeedAddresses(i.ctx, i.store); err != nil {
		i.logger.Error().Err(err).Msg("Failed to seed address filter")
		return
	}

	batchSize := uint64(i.config.Processor.BatchSize)
	if batchSize == 0 {
		batchSize = 100
	}
	flushInterval := uint64(i.config.Processor.FlushInterval)
	if flushInterval == 0 {
		flushInterval = 1
	}

	consecutiveErrors := 0
	maxConsecutiveErrors := 10
	var blocksSinceFlush uint64

	for {
		select {
		case <-i.ctx.Done():
			i.logger.Info().Msg("Sync loop stopped")
			return
		default:
		}

		latestBlock, err := i.client.LatestBlockNumber(i.ctx)
		if err != nil {
			i.logger.Error().Err(err).Msg("Failed to get latest block number")
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				i.logger.Error().Msg("Too many consecutive errors, stopping sync")
				return
			}
			time.Sleep(5 * time.Second)
			continue
		}

		i.mu.Lock()
		i.lastBlock, i.latestBlock = lastBlock, latestBlock
		i.mu.Unlock()

		if lastBlock >= latestBlock {
			// Caught up; push out anything still staged.
			if blocksSinceFlush > 0 {
				if err := i.store.Flush(i.ctx, lastBlock, ""); err != nil {
					i.logger.Error().Err(err).Msg("Failed to flush entities")
				} else {
					blocksSinceFlush = 0
				}
			}
			time.Sleep(i.config.Chain.BlockTime)
			continue
		}

		from := lastBlock + 1
		to := lastBlock + batchSize
		if to > latestBlock {
			to = latestBlock
		}

		startTime := time.Now()
		count, err := i.feed.ProcessRange(i.ctx, from, to)
		processingTime := time.Since(startTime)

		if err != nil {
			i.logger.Error().
				Err(err).
				Uint64("from", from).
				Uint64("to", to).
				Dur("duration", processingTime).
				Msg("Failed to process block range")

			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				i.logger.Error().Msg("Too many consecutive errors, stopping sync")
				return
			}
			time.Sleep(5 * time.Second)
			continue
		}
		consecutiveErrors = 0

		if i.publisher != nil {
			i.publisher.SetCurrentBlock(to)
		}

		blocksSinceFlush += to - lastBlock
		lastBlock = to

		if blocksSinceFlush >= flushInterval {
			if err := i.store.Flush(i.ctx, lastBlock, ""); err != nil {
				i.logger.Error().Err(err).Msg("Failed to flush entities")
				consecutiveErrors++
				continue
			}
			blocksSinceFlush = 0
		}

		i.logger.Debug().
			Uint64("from", from).
			Uint64("to", to).
			Int("logs", count).
			Dur("duration", processingTime).
			Msg("Range processed")
	}
}
