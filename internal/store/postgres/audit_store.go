package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

// AuditStore implements domain.AuditStore using PostgreSQL.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends an event to the audit journal.
func (s *AuditStore) Log(ctx context.Context, e domain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit event: %w", err)
	}

	var stream, market *string
	if !e.Stream.IsZero() {
		v := e.Stream.String()
		stream = &v
	}
	if !e.Market.IsZero() {
		v := e.Market.String()
		market = &v
	}

	const query = `
		INSERT INTO audit_log (id, stream, market, event, created_at)
		VALUES ($1, $2, $3, $4, NOW())`

	if _, err := q(ctx, s.pool).Exec(ctx, query, uuid.NewString(), stream, market, payload); err != nil {
		return fmt.Errorf("postgres: audit log: %w", err)
	}
	return nil
}

// ListByStream lists audit entries for a stream, oldest first.
func (s *AuditStore) ListByStream(ctx context.Context, stream domain.ID, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return s.list(ctx, `stream = $1`, stream.String(), opts)
}

// ListByMarket lists audit entries for a market, oldest first.
func (s *AuditStore) ListByMarket(ctx context.Context, market domain.ID, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return s.list(ctx, `market = $1`, market.String(), opts)
}

// DeleteByStream removes a stream's audit entries after archival.
func (s *AuditStore) DeleteByStream(ctx context.Context, stream domain.ID) error {
	if _, err := q(ctx, s.pool).Exec(ctx,
		`DELETE FROM audit_log WHERE stream = $1`, stream.String(),
	); err != nil {
		return fmt.Errorf("postgres: delete audit entries: %w", err)
	}
	return nil
}

func (s *AuditStore) list(ctx context.Context, where, arg string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT id, event, created_at FROM audit_log WHERE ` + where + `
		ORDER BY created_at ASC LIMIT $2 OFFSET $3`

	rows, err := q(ctx, s.pool).Query(ctx, query, arg, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &payload, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &entry.Event); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal audit event: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
