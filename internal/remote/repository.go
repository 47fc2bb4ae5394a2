// Package remote implements the reference remote authority the sync
// engine pushes to: a Postgres-backed endpoint that upserts records by
// their stable id and honors soft deletions.
package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kesspos/kesspos/internal/syncer"
)

// kindTables whitelists the wire kinds and their backing tables.
var kindTables = map[string]string{
	"products":       "products",
	"sales":          "sales",
	"stockMovements": "stock_movements",
	"expenses":       "expenses",
	"suppliers":      "suppliers",
	"customers":      "customers",
	"creditPayments": "credit_payments",
}

// Repository persists accepted sync batches.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a Repository over the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema bootstraps the remote tables. Idempotent.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, table := range kindTables {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			company_id TEXT NOT NULL,
			pos_id TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			doc JSONB NOT NULL
		)`, table)
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("remote: ensure schema for %s: %w", table, err)
		}
		idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_scope ON %s (company_id, pos_id)`, table, table)
		if _, err := r.pool.Exec(ctx, idx); err != nil {
			return fmt.Errorf("remote: ensure schema for %s: %w", table, err)
		}
	}
	return nil
}

// Apply stores one batch atomically: soft-deleted records are removed,
// everything else is upserted by id (last write wins on re-push, which
// keeps client retries idempotent).
func (r *Repository) Apply(ctx context.Context, batch syncer.Batch) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("remote: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for kind, docs := range batch.Changes {
		table, ok := kindTables[kind]
		if !ok {
			return fmt.Errorf("remote: unknown kind %q", kind)
		}
		for _, doc := range docs {
			id, _ := doc["id"].(string)
			if id == "" {
				return fmt.Errorf("remote: %s record without id", kind)
			}

			if deleted, _ := doc["_deleted"].(bool); deleted {
				stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND company_id = $2 AND pos_id = $3`, table)
				if _, err := tx.Exec(ctx, stmt, id, batch.CompanyID, batch.PosID); err != nil {
					return fmt.Errorf("remote: delete from %s: %w", table, err)
				}
				continue
			}

			raw, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("remote: encode %s record: %w", kind, err)
			}
			updatedAt, _ := doc["updatedAt"].(string)
			stmt := fmt.Sprintf(`INSERT INTO %s (id, company_id, pos_id, updated_at, doc)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE
				SET updated_at = EXCLUDED.updated_at, doc = EXCLUDED.doc`, table)
			if _, err := tx.Exec(ctx, stmt, id, batch.CompanyID, batch.PosID, updatedAt, raw); err != nil {
				return fmt.Errorf("remote: upsert into %s: %w", table, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("remote: commit tx: %w", err)
	}
	return nil
}
