package engine

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/muzman01/subgraph-studio/internal/chain"
	"github.com/muzman01/subgraph-studio/internal/config"
	"github.com/muzman01/subgraph-studio/internal/entity"
	"github.com/muzman01/subgraph-studio/internal/events"
	"github.com/muzman01/subgraph-studio/internal/pricing"
)

type handlerFunc func(ctx context.Context, pe *events.ParsedEvent) error

// PoolPublisher receives pool snapshots after swaps. Fire-and-forget.
type PoolPublisher interface {
	PublishPool(pool *entity.Pool)
}

// Engine is the deterministic state machine that applies decoded pool
// events to the entity store. One instance per deployment; ProcessLog is
// not safe for concurrent use, callers deliver logs in canonical order.
type Engine struct {
	store     entity.Store
	chain     chain.Accessor
	cfg       *config.DeploymentConfig
	oracle    *pricing.Oracle
	logger    zerolog.Logger
	parser    *events.Parser
	handlers  map[common.Hash]handlerFunc
	publisher PoolPublisher
	onPool    func(poolID string)
}

func New(store entity.Store, accessor chain.Accessor, cfg *config.DeploymentConfig, logger zerolog.Logger) (*Engine, error) {
	factoryABI, poolABI, err := events.ParseABIs()
	if err != nil {
		return nil, err
	}

	parser := events.NewParser()
	parser.AddABI(factoryABI)
	parser.AddABI(poolABI)

	e := &Engine{
		store:    store,
		chain:    accessor,
		cfg:      cfg,
		oracle:   pricing.NewOracle(cfg, logger),
		logger:   logger.With().Str("module", "engine").Logger(),
		parser:   parser,
		handlers: make(map[common.Hash]handlerFunc),
	}

	e.handlers[factoryABI.Events["PoolCreated"].ID] = e.handlePoolCreated
	e.handlers[poolABI.Events["Initialize"].ID] = e.handleInitialize
	e.handlers[poolABI.Events["Mint"].ID] = e.handleMint
	e.handlers[poolABI.Events["Burn"].ID] = e.handleBurn
	e.handlers[poolABI.Events["Swap"].ID] = e.handleSwap
	e.handlers[poolABI.Events["Collect"].ID] = e.handleCollect
	e.handlers[poolABI.Events["CollectProtocol"].ID] = e.handleCollectProtocol
	e.handlers[poolABI.Events["Flash"].ID] = e.handleFlash

	return e, nil
}

// SetPublisher attaches an optional realtime pool snapshot sink.
func (e *Engine) SetPublisher(p PoolPublisher) {
	e.publisher = p
}

// SetPoolListener registers a callback invoked with each newly created
// pool address. The log feed uses it to grow its address filter.
func (e *Engine) SetPoolListener(fn func(poolID string)) {
	e.onPool = fn
}

// Topics returns the event signatures the engine handles.
func (e *Engine) Topics() []common.Hash {
	topics := make([]common.Hash, 0, len(e.handlers))
	for topic := range e.handlers {
		topics = append(topics, topic)
	}
	return topics
}

// ProcessLog decodes one log and runs its handler. Unknown topics are
// skipped. The timestamp is the log's block timestamp in seconds.
func (e *Engine) ProcessLog(ctx context.Context, log *types.Log, timestamp int64) error {
	if len(log.Topics) == 0 {
		return nil
	}
	handler, exists := e.handlers[log.Topics[0]]
	if !exists {
		return nil
	}

	pe, err := e.parser.ParseEvent(log)
	if err != nil {
		e.logger.Warn().Err(err).
			Str("tx", log.TxHash.Hex()).
			Uint("log_index", log.Index).
			Msg("Failed to parse event")
		return err
	}
	pe.Timestamp = timestamp

	return handler(ctx, pe)
}

// loadTransaction load-or-creates the grouping record for an event's
// transaction and persists it.
func (e *Engine) loadTransaction(ctx context.Context, pe *events.ParsedEvent) (*entity.Transaction, error) {
	id := pe.TransactionHash.Hex()
	tx, err := entity.LoadOrCreate(ctx, e.store, entity.KindTransaction, id, func(id string) *entity.Transaction {
		return &entity.Transaction{ID: id}
	})
	if err != nil {
		return nil, err
	}
	tx.BlockNumber = pe.BlockNumber
	tx.Timestamp = pe.Timestamp
	if err := e.store.Save(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (e *Engine) loadBundle(ctx context.Context) (*entity.Bundle, error) {
	return entity.LoadOrCreate(ctx, e.store, entity.KindBundle, entity.BundleID, func(string) *entity.Bundle {
		return entity.NewBundle()
	})
}

func (e *Engine) loadFactory(ctx context.Context) (*entity.Factory, error) {
	return entity.LoadOrCreate(ctx, e.store, entity.KindFactory, e.cfg.FactoryAddress, func(id string) *entity.Factory {
		return entity.NewFactory(id)
	})
}

func recordID(txID string, poolTxCount int64) string {
	return txID + "#" + strconv.FormatInt(poolTxCount, 10)
}
