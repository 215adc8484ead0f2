package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS order_timings (
	order_id              TEXT PRIMARY KEY,
	item_count            INTEGER NOT NULL CHECK (item_count > 0),
	queue_position        INTEGER NOT NULL CHECK (queue_position >= 0),
	base_estimate_minutes INTEGER NOT NULL CHECK (base_estimate_minutes > 0),
	status                TEXT NOT NULL,
	enqueued_at           TIMESTAMPTZ NOT NULL,
	status_updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_timings_status ON order_timings(status);
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}
