package postgres_storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"anon_relay_bot/internal/pkg/journal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS relay_deliveries (
	id                 UUID PRIMARY KEY,
	kind               TEXT NOT NULL,
	group_key          TEXT NOT NULL DEFAULT '',
	chat_id            BIGINT NOT NULL,
	source_message_id  INTEGER NOT NULL DEFAULT 0,
	sender_id          BIGINT NOT NULL,
	sender_username    TEXT NOT NULL DEFAULT '',
	item_count         INTEGER NOT NULL,
	destination_status TEXT NOT NULL,
	audit_status       TEXT NOT NULL,
	error              TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS relay_deliveries_created_at_idx ON relay_deliveries (created_at DESC);
`

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// Open connects to dsn, checks the connection and creates the journal table if needed.
func Open(ctx context.Context, dsn string) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := NewPostgresStorage(db)
	if err := p.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresStorage) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create relay_deliveries: %w", err)
	}
	return nil
}

func (p *PostgresStorage) Close() error {
	return p.db.Close()
}

func (p *PostgresStorage) SaveDelivery(ctx context.Context, d *domain.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO relay_deliveries (id, kind, group_key, chat_id, source_message_id, sender_id,
			sender_username, item_count, destination_status, audit_status, error, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO NOTHING
	`, d.ID, d.Kind, d.GroupKey, d.ChatID, d.SourceMessageID, d.SenderID,
		d.SenderUsername, d.ItemCount, d.DestinationStatus, d.AuditStatus, d.Error, d.CreatedAt)
	return err
}

func (p *PostgresStorage) RecentDeliveries(ctx context.Context, limit int) ([]*domain.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, kind, group_key, chat_id, source_message_id, sender_id, sender_username,
			item_count, destination_status, audit_status, error, created_at
		FROM relay_deliveries
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Delivery
	for rows.Next() {
		d := &domain.Delivery{}
		err := rows.Scan(&d.ID, &d.Kind, &d.GroupKey, &d.ChatID, &d.SourceMessageID, &d.SenderID,
			&d.SenderUsername, &d.ItemCount, &d.DestinationStatus, &d.AuditStatus, &d.Error, &d.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresStorage) DeliveryStats(ctx context.Context) (*domain.Stats, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN kind = 'batch' THEN 1 END),
			COUNT(CASE WHEN kind = 'single' THEN 1 END),
			COALESCE(SUM(item_count), 0),
			COUNT(CASE WHEN destination_status = 'failed' OR audit_status = 'failed' THEN 1 END)
		FROM relay_deliveries
	`)

	s := &domain.Stats{}
	if err := row.Scan(&s.Batches, &s.Singles, &s.Items, &s.Failures); err != nil {
		return nil, err
	}
	return s, nil
}
