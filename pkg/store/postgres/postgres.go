// Package postgres stores businesses and ingest checkpoints in PostgreSQL.
// Business documents are kept whole in a jsonb column keyed by hash_id.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/yelp-ingest/pkg/checkpoint"
	"github.com/Sternrassler/yelp-ingest/pkg/entity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultBatchSize is the number of statements sent per round trip.
const DefaultBatchSize = 200

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entities (
	hash_id    text PRIMARY KEY,
	name       text NOT NULL,
	zip_code   text NOT NULL,
	doc        jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS ingest_checkpoints (
	id       bigserial PRIMARY KEY,
	op       text NOT NULL,
	date     timestamptz NOT NULL,
	searches text[] NOT NULL
);
CREATE INDEX IF NOT EXISTS ingest_checkpoints_op_date ON ingest_checkpoints (op, date DESC);
`

const upsertSQL = `INSERT INTO entities (hash_id, name, zip_code, doc, updated_at)
	VALUES ($1, $2, $3, $4::jsonb, now())
	ON CONFLICT (hash_id) DO UPDATE
	SET name = EXCLUDED.name, zip_code = EXCLUDED.zip_code, doc = EXCLUDED.doc, updated_at = now()`

// Open parses dsn and opens a pool. viaBouncer switches to the simple
// protocol for transaction-pooling proxies.
func Open(ctx context.Context, dsn string, maxConns int, viaBouncer bool) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse PG_DSN: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)
	if viaBouncer {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}
	return pool, nil
}

// Store implements the entity writer and checkpoint.Store on one pool.
type Store struct {
	pool  *pgxpool.Pool
	batch int
}

// NewStore creates a store. A non-positive batch uses DefaultBatchSize.
func NewStore(pool *pgxpool.Pool, batch int) *Store {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Store{pool: pool, batch: batch}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertBusinesses inserts or replaces every business, sending batches of
// the configured size. It returns the number of rows written before the
// first failure.
func (s *Store) UpsertBusinesses(ctx context.Context, businesses []entity.Business) (int, error) {
	total := 0
	for i := 0; i < len(businesses); i += s.batch {
		j := min(i+s.batch, len(businesses))

		b, err := upsertBatch(businesses[i:j])
		if err != nil {
			return total, err
		}

		br := s.pool.SendBatch(ctx, b)
		for k := 0; k < b.Len(); k++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return total, fmt.Errorf("upsert %s: %w", businesses[i+k].HashID, err)
			}
			total++
		}
		if err := br.Close(); err != nil {
			return total, err
		}
	}
	return total, nil
}

func upsertBatch(businesses []entity.Business) (*pgx.Batch, error) {
	b := &pgx.Batch{}
	for _, biz := range businesses {
		doc, err := json.Marshal(biz)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", biz.HashID, err)
		}
		b.Queue(upsertSQL, biz.HashID, biz.Name, biz.Zip(), string(doc))
	}
	return b, nil
}

// Last returns the most recent checkpoint of op, or an empty checkpoint.
func (s *Store) Last(ctx context.Context, op string) (checkpoint.Checkpoint, error) {
	cp := checkpoint.Checkpoint{Op: op}
	var searches []string
	err := s.pool.QueryRow(ctx,
		`SELECT date, searches FROM ingest_checkpoints WHERE op = $1 ORDER BY date DESC, id DESC LIMIT 1`,
		op,
	).Scan(&cp.Date, &searches)
	if errors.Is(err, pgx.ErrNoRows) {
		return checkpoint.Checkpoint{}, nil
	}
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("query last checkpoint: %w", err)
	}
	cp.Date = cp.Date.UTC()
	cp.Searches = searches
	return cp, nil
}

// Save appends cp.
func (s *Store) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	searches := []string(cp.Searches)
	if searches == nil {
		searches = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_checkpoints (op, date, searches) VALUES ($1, $2, $3)`,
		cp.Op, cp.Date, searches,
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

var _ checkpoint.Store = (*Store)(nil)
