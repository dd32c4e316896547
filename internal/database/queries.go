package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Read-side queries for the API. Entities are stored as JSONB documents,
// so results come back as raw JSON and are passed through to the client
// without re-decoding into Go structs.

// sortFields whitelists the JSON fields a client may order by. Anything
// else falls back to totalValueLockedUSD.
var sortFields = map[string]bool{
	"totalValueLockedUSD": true,
	"volumeUSD":           true,
	"feesUSD":             true,
	"txCount":             true,
}

func sortClause(sortBy, sortOrder string) string {
	if !sortFields[sortBy] {
		sortBy = "totalValueLockedUSD"
	}
	order := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		order = "ASC"
	}
	return fmt.Sprintf("ORDER BY COALESCE((data->>'%s')::numeric, 0) %s, id", sortBy, order)
}

func GetEntity(ctx context.Context, pool *pgxpool.Pool, kind, id string) (json.RawMessage, error) {
	var data json.RawMessage
	err := pool.QueryRow(ctx,
		`SELECT data FROM entities WHERE kind = $1 AND id = $2`,
		kind, strings.ToLower(id),
	).Scan(&data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func ListEntities(ctx context.Context, pool *pgxpool.Pool, kind string, limit, offset int, sortBy, sortOrder string) ([]json.RawMessage, error) {
	q := fmt.Sprintf(`SELECT data FROM entities WHERE kind = $1 %s LIMIT $2 OFFSET $3`,
		sortClause(sortBy, sortOrder))
	rows, err := pool.Query(ctx, q, kind, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJSON(rows)
}

func SearchTokens(ctx context.Context, pool *pgxpool.Pool, search string, limit, offset int) ([]json.RawMessage, error) {
	pattern := "%" + strings.ToLower(search) + "%"
	rows, err := pool.Query(ctx, `
		SELECT data FROM entities
		WHERE kind = 'token'
		  AND (id LIKE $1 OR LOWER(data->>'symbol') LIKE $1 OR LOWER(data->>'name') LIKE $1)
		ORDER BY COALESCE((data->>'totalValueLockedUSD')::numeric, 0) DESC, id
		LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJSON(rows)
}

// ListPoolRecords pages through the swap/mint/burn/collect records of one
// pool, newest first.
func ListPoolRecords(ctx context.Context, pool *pgxpool.Pool, kind, poolID string, limit, offset int) ([]json.RawMessage, error) {
	rows, err := pool.Query(ctx, `
		SELECT data FROM entities
		WHERE kind = $1 AND data->>'pool' = $2
		ORDER BY COALESCE((data->>'timestamp')::bigint, 0) DESC, id DESC
		LIMIT $3 OFFSET $4`,
		kind, strings.ToLower(poolID), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJSON(rows)
}

// ListPoolBuckets returns the time-bucket rows of one pool for a given
// bucket kind (poolHourData, poolDayData, ...), newest first.
func ListPoolBuckets(ctx context.Context, pool *pgxpool.Pool, kind, poolID string, limit, offset int) ([]json.RawMessage, error) {
	rows, err := pool.Query(ctx, `
		SELECT data FROM entities
		WHERE kind = $1 AND data->>'pool' = $2
		ORDER BY COALESCE((data->>'date')::bigint, 0) DESC
		LIMIT $3 OFFSET $4`,
		kind, strings.ToLower(poolID), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJSON(rows)
}

type KindCount struct {
	Kind  string `json:"kind"`
	Count int64  `json:"count"`
}

func CountEntities(ctx context.Context, pool *pgxpool.Pool) ([]KindCount, error) {
	rows, err := pool.Query(ctx,
		`SELECT kind, COUNT(*) FROM entities GROUP BY kind ORDER BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []KindCount
	for rows.Next() {
		var kc KindCount
		if err := rows.Scan(&kc.Kind, &kc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, kc)
	}
	return counts, rows.Err()
}

type CheckpointRow struct {
	Deployment  string    `json:"deployment"`
	BlockNumber uint64    `json:"block_number"`
	BlockHash   string    `json:"block_hash"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func ListCheckpoints(ctx context.Context, pool *pgxpool.Pool) ([]CheckpointRow, error) {
	rows, err := pool.Query(ctx,
		`SELECT deployment, block_number, block_hash, updated_at FROM checkpoints ORDER BY deployment`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checkpoints []CheckpointRow
	for rows.Next() {
		var cp CheckpointRow
		if err := rows.Scan(&cp.Deployment, &cp.BlockNumber, &cp.BlockHash, &cp.UpdatedAt); err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

func collectJSON(rows pgx.Rows) ([]json.RawMessage, error) {
	items := []json.RawMessage{}
	for rows.Next() {
		var data json.RawMessage
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		items = append(items, data)
	}
	return items, rows.Err()
}
