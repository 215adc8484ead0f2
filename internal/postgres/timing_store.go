package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-order-timing/internal/timing"
)

const upsertTimingSQL = `
	INSERT INTO order_timings(order_id, item_count, queue_position, base_estimate_minutes, status, enqueued_at, status_updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (order_id) DO UPDATE SET
		queue_position    = EXCLUDED.queue_position,
		status            = EXCLUDED.status,
		status_updated_at = EXCLUDED.status_updated_at`

// TimingStore persists timing records in the order_timings table.
type TimingStore struct{ DB *pgxpool.Pool }

var _ timing.Store = (*TimingStore)(nil)

func (s *TimingStore) Load(ctx context.Context) ([]timing.Record, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT order_id, item_count, queue_position, base_estimate_minutes, status, enqueued_at, status_updated_at
		FROM order_timings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []timing.Record
	for rows.Next() {
		var r timing.Record
		var status string
		if err := rows.Scan(&r.OrderID, &r.ItemCount, &r.QueuePosition, &r.BaseEstimateMinutes,
			&status, &r.EnqueuedAt, &r.StatusUpdatedAt); err != nil {
			return nil, err
		}
		r.Status = timing.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *TimingStore) Save(ctx context.Context, r timing.Record) error {
	_, err := s.DB.Exec(ctx, upsertTimingSQL, upsertArgs(r)...)
	return err
}

// SaveAll upserts every record inside one transaction, so a re-rank is either
// fully visible or not at all.
func (s *TimingStore) SaveAll(ctx context.Context, recs []timing.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := &pgx.Batch{}
	for _, r := range recs {
		b.Queue(upsertTimingSQL, upsertArgs(r)...)
	}
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *TimingStore) Delete(ctx context.Context, orderID string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM order_timings WHERE order_id=$1`, orderID)
	return err
}

func upsertArgs(r timing.Record) []any {
	return []any{r.OrderID, r.ItemCount, r.QueuePosition, r.BaseEstimateMinutes,
		string(r.Status), r.EnqueuedAt.UTC(), r.StatusUpdatedAt.UTC()}
}
