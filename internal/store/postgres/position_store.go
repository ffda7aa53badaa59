package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, bettor, market, positions, total_invested,
	total_returned, has_claimed, is_eligible_validator, created_at`

func scanPosition(row pgx.Row) (domain.BettorPosition, error) {
	var p domain.BettorPosition
	var id, bettor, market string
	var positions []byte

	err := row.Scan(
		&id, &bettor, &market, &positions, &p.TotalInvested,
		&p.TotalReturned, &p.HasClaimed, &p.IsEligibleValidator, &p.CreatedAt,
	)
	if err != nil {
		return domain.BettorPosition{}, err
	}
	if p.ID, err = domain.ParseID(id); err != nil {
		return domain.BettorPosition{}, err
	}
	if p.Bettor, err = domain.ParseID(bettor); err != nil {
		return domain.BettorPosition{}, err
	}
	if p.Market, err = domain.ParseID(market); err != nil {
		return domain.BettorPosition{}, err
	}
	if err = json.Unmarshal(positions, &p.Positions); err != nil {
		return domain.BettorPosition{}, err
	}
	return p, nil
}

// Create inserts a new bettor position.
func (s *PositionStore) Create(ctx context.Context, p domain.BettorPosition) error {
	positions, err := json.Marshal(p.Positions)
	if err != nil {
		return fmt.Errorf("postgres: marshal positions: %w", err)
	}

	const query = `
		INSERT INTO bettor_positions (
			id, bettor, market, positions, total_invested,
			total_returned, has_claimed, is_eligible_validator, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`

	_, err = q(ctx, s.pool).Exec(ctx, query,
		p.ID.String(), p.Bettor.String(), p.Market.String(), positions,
		p.TotalInvested, p.TotalReturned, p.HasClaimed, p.IsEligibleValidator, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, mapErr(err))
	}
	return nil
}

// Update replaces the mutable fields of a bettor position.
func (s *PositionStore) Update(ctx context.Context, p domain.BettorPosition) error {
	positions, err := json.Marshal(p.Positions)
	if err != nil {
		return fmt.Errorf("postgres: marshal positions: %w", err)
	}

	const query = `
		UPDATE bettor_positions SET
			positions = $2, total_invested = $3, total_returned = $4,
			has_claimed = $5, is_eligible_validator = $6, updated_at = NOW()
		WHERE id = $1`

	tag, err := q(ctx, s.pool).Exec(ctx, query,
		p.ID.String(), positions, p.TotalInvested, p.TotalReturned,
		p.HasClaimed, p.IsEligibleValidator,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a position by identity.
func (s *PositionStore) GetByID(ctx context.Context, id domain.ID) (domain.BettorPosition, error) {
	query := `SELECT ` + positionSelectCols + ` FROM bettor_positions WHERE id = $1`
	p, err := scanPosition(q(ctx, s.pool).QueryRow(ctx, query, id.String()))
	if err != nil {
		return domain.BettorPosition{}, mapErr(err)
	}
	return p, nil
}

// ListByMarket lists the positions of a market, oldest first.
func (s *PositionStore) ListByMarket(ctx context.Context, market domain.ID, opts domain.ListOpts) ([]domain.BettorPosition, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + positionSelectCols + `
		FROM bettor_positions WHERE market = $1
		ORDER BY created_at ASC LIMIT $2 OFFSET $3`

	rows, err := q(ctx, s.pool).Query(ctx, query, market.String(), limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions by market: %w", err)
	}
	defer rows.Close()

	var out []domain.BettorPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
