package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/muzman01/subgraph-studio/internal/entity"
)

// decoders maps entity kinds to empty instances for JSONB decoding.
var decoders = map[string]func() entity.Entity{
	entity.KindBundle:      func() entity.Entity { return &entity.Bundle{} },
	entity.KindFactory:     func() entity.Entity { return &entity.Factory{} },
	entity.KindToken:       func() entity.Entity { return &entity.Token{} },
	entity.KindPool:        func() entity.Entity { return &entity.Pool{} },
	entity.KindPair:        func() entity.Entity { return &entity.Pair{} },
	entity.KindTick:        func() entity.Entity { return &entity.Tick{} },
	entity.KindTransaction: func() entity.Entity { return &entity.Transaction{} },
	entity.KindSwap:        func() entity.Entity { return &entity.Swap{} },
	entity.KindMint:        func() entity.Entity { return &entity.Mint{} },
	entity.KindBurn:        func() entity.Entity { return &entity.Burn{} },
	entity.KindCollect:     func() entity.Entity { return &entity.Collect{} },

	entity.KindProtocolDayData: func() entity.Entity { return &entity.ProtocolDayData{} },
	entity.KindPoolHourData:    func() entity.Entity { return &entity.PoolBucketData{} },
	entity.KindPoolDayData:     func() entity.Entity { return &entity.PoolBucketData{} },
	entity.KindPoolWeekData:    func() entity.Entity { return &entity.PoolBucketData{} },
	entity.KindPoolMonthData:   func() entity.Entity { return &entity.PoolBucketData{} },
	entity.KindPoolYearData:    func() entity.Entity { return &entity.PoolBucketData{} },
	entity.KindTokenHourData:   func() entity.Entity { return &entity.TokenBucketData{} },
	entity.KindTokenDayData:    func() entity.Entity { return &entity.TokenBucketData{} },
	entity.KindTickDayData:     func() entity.Entity { return &entity.TickDayData{} },
}

// EntityStore backs entity.Store with Postgres JSONB documents. Reads go
// through an in-memory staging layer, so a loaded entity is fetched from
// the database at most once per flush cycle. Saves accumulate in the
// staging layer until Flush writes them in one transaction together with
// the block checkpoint.
type EntityStore struct {
	db         *Database
	deployment string
	mem        *entity.MemoryStore
	dirty      map[string]entity.Entity
	logger     zerolog.Logger
}

func NewEntityStore(db *Database, deployment string, logger zerolog.Logger) *EntityStore {
	return &EntityStore{
		db:         db,
		deployment: deployment,
		mem:        entity.NewMemoryStore(),
		dirty:      make(map[string]entity.Entity),
		logger:     logger.With().Str("component", "entity_store").Logger(),
	}
}

func (s *EntityStore) Load(ctx context.Context, kind, id string) (entity.Entity, error) {
	e, err := s.mem.Load(ctx, kind, id)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, entity.ErrNotFound) {
		return nil, err
	}

	newFunc, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("no decoder for entity kind %q", kind)
	}

	var data []byte
	query := `SELECT data FROM entities WHERE kind = $1 AND id = $2`
	if err := s.db.pool.QueryRow(ctx, query, kind, strings.ToLower(id)).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load entity %s/%s: %w", kind, id, err)
	}

	e = newFunc()
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("failed to decode entity %s/%s: %w", kind, id, err)
	}
	if b, ok := e.(interface{ SetKind(string) }); ok {
		b.SetKind(kind)
	}

	if err := s.mem.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *EntityStore) Save(ctx context.Context, e entity.Entity) error {
	if err := s.mem.Save(ctx, e); err != nil {
		return err
	}
	s.dirty[dirtyKey(e.EntityKind(), e.EntityID())] = e.Clone()
	return nil
}

func dirtyKey(kind, id string) string {
	return kind + "|" + strings.ToLower(id)
}

// Dirty reports how many entities await the next flush.
func (s *EntityStore) Dirty() int { return len(s.dirty) }

// PoolAddresses returns every persisted pool id. The log feed seeds its
// address filter from this at startup.
func (s *EntityStore) PoolAddresses(ctx context.Context) ([]string, error) {
	rows, err := s.db.pool.Query(ctx, `SELECT id FROM entities WHERE kind = $1`, entity.KindPool)
	if err != nil {
		return nil, fmt.Errorf("failed to query pool addresses: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		addresses = append(addresses, id)
	}
	return addresses, rows.Err()
}

// Flush upserts all dirty entities and advances the checkpoint in a
// single transaction. The staging layer keeps its contents, so entities
// stay readable without a database round trip.
func (s *EntityStore) Flush(ctx context.Context, blockNumber uint64, blockHash string) error {
	start := time.Now()
	count := len(s.dirty)

	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range s.dirty {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to encode entity %s/%s: %w", e.EntityKind(), e.EntityID(), err)
			}
			batch.Queue(`
				INSERT INTO entities (kind, id, data, updated_at)
				VALUES ($1, $2, $3, NOW())
				ON CONFLICT (kind, id) DO UPDATE
				SET data = EXCLUDED.data, updated_at = NOW()`,
				e.EntityKind(), strings.ToLower(e.EntityID()), data)
		}

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("failed to upsert entity: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("failed to close batch: %w", err)
		}

		return saveCheckpointTx(ctx, tx, s.deployment, blockNumber, blockHash)
	})
	if err != nil {
		return err
	}

	s.dirty = make(map[string]entity.Entity)

	s.logger.Debug().
		Int("entities", count).
		Uint64("block", blockNumber).
		Dur("elapsed", time.Since(start)).
		Msg("Flushed entities")
	return nil
}
