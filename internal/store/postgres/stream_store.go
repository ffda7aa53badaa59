package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

// StreamStore implements domain.StreamStore using PostgreSQL.
type StreamStore struct {
	pool *pgxpool.Pool
}

// NewStreamStore creates a StreamStore backed by the given connection pool.
func NewStreamStore(pool *pgxpool.Pool) *StreamStore {
	return &StreamStore{pool: pool}
}

const streamSelectCols = `id, host, name, mint, escrow, stream_type, status,
	total_deposited, total_distributed, start_time, end_time, created_at`

func scanStream(row pgx.Row) (domain.Stream, error) {
	var s domain.Stream
	var id, host, mint, escrow string
	var streamType []byte
	var status string

	err := row.Scan(
		&id, &host, &s.Name, &mint, &escrow, &streamType, &status,
		&s.TotalDeposited, &s.TotalDistributed, &s.StartTime, &s.EndTime, &s.CreatedAt,
	)
	if err != nil {
		return domain.Stream{}, err
	}

	if s.ID, err = domain.ParseID(id); err != nil {
		return domain.Stream{}, err
	}
	if s.Host, err = domain.ParseID(host); err != nil {
		return domain.Stream{}, err
	}
	if s.Mint, err = domain.ParseID(mint); err != nil {
		return domain.Stream{}, err
	}
	if s.Escrow, err = domain.ParseID(escrow); err != nil {
		return domain.Stream{}, err
	}
	if err = json.Unmarshal(streamType, &s.Type); err != nil {
		return domain.Stream{}, err
	}
	s.Status = domain.StreamStatus(status)
	return s, nil
}

// Create inserts a new stream record.
func (s *StreamStore) Create(ctx context.Context, st domain.Stream) error {
	streamType, err := json.Marshal(st.Type)
	if err != nil {
		return fmt.Errorf("postgres: marshal stream type: %w", err)
	}

	const query = `
		INSERT INTO streams (
			id, host, name, mint, escrow, stream_type, status,
			total_deposited, total_distributed, start_time, end_time, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())`

	_, err = q(ctx, s.pool).Exec(ctx, query,
		st.ID.String(), st.Host.String(), st.Name, st.Mint.String(), st.Escrow.String(),
		streamType, string(st.Status),
		st.TotalDeposited, st.TotalDistributed, st.StartTime, st.EndTime, st.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create stream %s: %w", st.ID, mapErr(err))
	}
	return nil
}

// Update replaces the mutable fields of a stream record.
func (s *StreamStore) Update(ctx context.Context, st domain.Stream) error {
	const query = `
		UPDATE streams SET
			status = $2, total_deposited = $3, total_distributed = $4,
			start_time = $5, end_time = $6, updated_at = NOW()
		WHERE id = $1`

	tag, err := q(ctx, s.pool).Exec(ctx, query,
		st.ID.String(), string(st.Status), st.TotalDeposited, st.TotalDistributed,
		st.StartTime, st.EndTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: update stream %s: %w", st.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a stream by identity.
func (s *StreamStore) GetByID(ctx context.Context, id domain.ID) (domain.Stream, error) {
	query := `SELECT ` + streamSelectCols + ` FROM streams WHERE id = $1`
	st, err := scanStream(q(ctx, s.pool).QueryRow(ctx, query, id.String()))
	if err != nil {
		return domain.Stream{}, mapErr(err)
	}
	return st, nil
}

// ListByHost lists streams created by a host, newest first.
func (s *StreamStore) ListByHost(ctx context.Context, host domain.ID, opts domain.ListOpts) ([]domain.Stream, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + streamSelectCols + `
		FROM streams WHERE host = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := q(ctx, s.pool).Query(ctx, query, host.String(), limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list streams by host: %w", err)
	}
	defer rows.Close()

	var out []domain.Stream
	for rows.Next() {
		st, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListTerminal lists ended or cancelled streams whose end time falls before
// the given cutoff, oldest first.
func (s *StreamStore) ListTerminal(ctx context.Context, endedBefore int64, opts domain.ListOpts) ([]domain.Stream, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + streamSelectCols + `
		FROM streams
		WHERE status IN ('ended', 'cancelled') AND end_time IS NOT NULL AND end_time < $1
		ORDER BY end_time ASC LIMIT $2 OFFSET $3`

	rows, err := q(ctx, s.pool).Query(ctx, query, endedBefore, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal streams: %w", err)
	}
	defer rows.Close()

	var out []domain.Stream
	for rows.Next() {
		st, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
