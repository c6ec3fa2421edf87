package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresEventRepo implements EventRepo using PostgreSQL.
type PostgresEventRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresEventRepo(pool *pgxpool.Pool) *PostgresEventRepo {
	return &PostgresEventRepo{pool: pool}
}

func (r *PostgresEventRepo) InsertEvent(ctx context.Context, e *models.Event) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	meta, err := marshalMeta(e.Meta)
	if err != nil {
		return "", err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO events (id, user_id, session_id, product_id, type, ts, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.UserID, e.SessionID, e.ProductID, string(e.Type), e.Timestamp, meta)
	if err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}

	return e.ID, nil
}

// InsertEventsBulk writes the whole batch inside one transaction via COPY,
// so a failure leaves no partial batch behind.
func (r *PostgresEventRepo) InsertEventsBulk(ctx context.Context, events []*models.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	rows := make([][]interface{}, 0, len(events))
	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		meta, err := marshalMeta(e.Meta)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []interface{}{
			e.ID, e.UserID, e.SessionID, e.ProductID, string(e.Type), e.Timestamp, meta,
		})
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"events"},
		[]string{"id", "user_id", "session_id", "product_id", "type", "ts", "meta"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk insert events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit bulk insert: %w", err)
	}

	return int(n), nil
}

func (r *PostgresEventRepo) LinkSession(ctx context.Context, sessionID, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE events SET user_id = $2
		WHERE session_id = $1 AND user_id IS NULL
	`, sessionID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to link session: %w", err)
	}
	return tag.RowsAffected(), nil
}

func marshalMeta(meta map[string]interface{}) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event meta: %w", err)
	}
	return b, nil
}
