package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/muzman01/subgraph-studio/internal/chain"
	"github.com/muzman01/subgraph-studio/internal/config"
	"github.com/muzman01/subgraph-studio/internal/database"
	"github.com/muzman01/subgraph-studio/internal/engine"
	"github.com/muzman01/subgraph-studio/internal/processor"
)

// backfill replays a historical block range through the engine and exits.
// It shares the checkpoint with the live indexer, so the range should end
// at or before the checkpointed block of a running deployment.
func main() {
	var (
		configPath string
		fromBlock  uint64
		toBlock    uint64
	)

	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Uint64Var(&fromBlock, "from", 0, "Starting block")
	flag.Uint64Var(&toBlock, "to", 0, "Ending block")
	flag.Parse()

	if fromBlock == 0 || toBlock == 0 || toBlock < fromBlock {
		fmt.Fprintf(os.Stderr, "A valid -from/-to block range is required\n")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"}).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()

	ctx := context.Background()

	if err := database.RunMigrations(ctx, &cfg.Database, logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	client, err := chain.NewClient(cfg.Chain.RPCEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create RPC client")
	}
	defer client.Close()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	store := database.NewEntityStore(db, cfg.Deployment.FactoryAddress, logger)
	prefetcher := chain.NewMetadataPrefetcher(client, int64(cfg.Processor.MetadataWorkers), logger)

	eng, err := engine.New(store, prefetcher, &cfg.Deployment, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create engine")
	}

	feed, err := processor.NewLogFeed(client, eng, prefetcher, cfg.Deployment.FactoryAddress, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create log feed")
	}
	eng.SetPoolListener(feed.AddAddress)

	if err := feed.SeedAddresses(ctx, store); err != nil {
		logger.Fatal().Err(err).Msg("Failed to seed address filter")
	}

	batchSize := uint64(cfg.Processor.BatchSize)
	if batchSize == 0 {
		batchSize = 100
	}

	logger.Info().Uint64("from", fromBlock).Uint64("to", toBlock).Msg("Starting backfill")
	start := time.Now()
	totalLogs := 0

	for from := fromBlock; from <= toBlock; from += batchSize {
		to := from + batchSize - 1
		if to > toBlock {
			to = toBlock
		}

		count, err := feed.ProcessRange(ctx, from, to)
		if err != nil {
			logger.Fatal().Err(err).Uint64("from", from).Uint64("to", to).Msg("Failed to process block range")
		}
		totalLogs += count

		if err := store.Flush(ctx, to, ""); err != nil {
			logger.Fatal().Err(err).Msg("Failed to flush entities")
		}

		logger.Debug().Uint64("from", from).Uint64("to", to).Int("logs", count).Msg("Range processed")
	}

	logger.Info().
		Int("logs", totalLogs).
		Dur("duration", time.Since(start)).
		Msg("Backfill complete")
}
