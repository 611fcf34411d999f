package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the recorder uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS webhook_logs (
	id               TEXT PRIMARY KEY,
	received_at      TIMESTAMPTZ NOT NULL,
	payload          JSONB NOT NULL,
	matched_order_id TEXT NOT NULL,
	status           TEXT NOT NULL,
	match_score      INT NOT NULL DEFAULT 0,
	match_reason     TEXT NOT NULL DEFAULT '',
	invoice_id       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS webhook_logs_received_at_idx ON webhook_logs (received_at DESC);`

// PostgresRecorder stores audit records in the webhook_logs table.
type PostgresRecorder struct {
	DB DB
}

func (p *PostgresRecorder) Migrate(ctx context.Context) error {
	if _, err := p.DB.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate webhook_logs: %w", err)
	}
	return nil
}

func (p *PostgresRecorder) Record(ctx context.Context, _ string, r Record) error {
	_, err := p.DB.Exec(ctx, `
		INSERT INTO webhook_logs(id, received_at, payload, matched_order_id, status, match_score, match_reason, invoice_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			received_at = EXCLUDED.received_at, payload = EXCLUDED.payload,
			matched_order_id = EXCLUDED.matched_order_id, status = EXCLUDED.status,
			match_score = EXCLUDED.match_score, match_reason = EXCLUDED.match_reason,
			invoice_id = EXCLUDED.invoice_id`,
		r.ID, r.ReceivedAt, r.Payload, r.MatchedOrderID, r.Status, r.MatchScore, r.MatchReason, r.InvoiceID)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (p *PostgresRecorder) Recent(ctx context.Context, _ string, n int) ([]Record, error) {
	if n <= 0 {
		n = DefaultRecent
	}
	rows, err := p.DB.Query(ctx, `
		SELECT id, received_at, payload::text, matched_order_id, status, match_score, match_reason, invoice_id
		FROM webhook_logs ORDER BY received_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("read audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.ReceivedAt, &r.Payload, &r.MatchedOrderID, &r.Status, &r.MatchScore, &r.MatchReason, &r.InvoiceID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
