package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, stream, host, mint, vault, market_type, outcomes,
	total_pool, total_liquidity, fee_bps, resolution_time, resolved,
	winning_outcome, payout_denominator, randomness_requested, created_at`

func scanMarket(row pgx.Row) (domain.BettingMarket, error) {
	var m domain.BettingMarket
	var id, stream, host, mint, vault string
	var marketType, outcomes []byte
	var feeBps int
	var winning *int

	err := row.Scan(
		&id, &stream, &host, &mint, &vault, &marketType, &outcomes,
		&m.TotalPool, &m.TotalLiquidity, &feeBps, &m.ResolutionTime, &m.Resolved,
		&winning, &m.PayoutDenominator, &m.RandomnessRequested, &m.CreatedAt,
	)
	if err != nil {
		return domain.BettingMarket{}, err
	}

	if m.ID, err = domain.ParseID(id); err != nil {
		return domain.BettingMarket{}, err
	}
	if m.Stream, err = domain.ParseID(stream); err != nil {
		return domain.BettingMarket{}, err
	}
	if m.Host, err = domain.ParseID(host); err != nil {
		return domain.BettingMarket{}, err
	}
	if m.Mint, err = domain.ParseID(mint); err != nil {
		return domain.BettingMarket{}, err
	}
	if m.Vault, err = domain.ParseID(vault); err != nil {
		return domain.BettingMarket{}, err
	}
	if err = json.Unmarshal(marketType, &m.Type); err != nil {
		return domain.BettingMarket{}, err
	}
	if err = json.Unmarshal(outcomes, &m.Outcomes); err != nil {
		return domain.BettingMarket{}, err
	}
	m.FeeBps = uint16(feeBps)
	if winning != nil {
		w := uint8(*winning)
		m.WinningOutcome = &w
	}
	return m, nil
}

// Create inserts a new betting market.
func (s *MarketStore) Create(ctx context.Context, m domain.BettingMarket) error {
	marketType, err := json.Marshal(m.Type)
	if err != nil {
		return fmt.Errorf("postgres: marshal market type: %w", err)
	}
	outcomes, err := json.Marshal(m.Outcomes)
	if err != nil {
		return fmt.Errorf("postgres: marshal outcomes: %w", err)
	}

	const query = `
		INSERT INTO betting_markets (
			id, stream, host, mint, vault, market_type, outcomes,
			total_pool, total_liquidity, fee_bps, resolution_time, resolved,
			winning_outcome, payout_denominator, randomness_requested, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())`

	_, err = q(ctx, s.pool).Exec(ctx, query,
		m.ID.String(), m.Stream.String(), m.Host.String(), m.Mint.String(), m.Vault.String(),
		marketType, outcomes,
		m.TotalPool, m.TotalLiquidity, int(m.FeeBps), m.ResolutionTime, m.Resolved,
		winningCol(m.WinningOutcome), m.PayoutDenominator, m.RandomnessRequested, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, mapErr(err))
	}
	return nil
}

// Update replaces the mutable fields of a betting market.
func (s *MarketStore) Update(ctx context.Context, m domain.BettingMarket) error {
	outcomes, err := json.Marshal(m.Outcomes)
	if err != nil {
		return fmt.Errorf("postgres: marshal outcomes: %w", err)
	}

	const query = `
		UPDATE betting_markets SET
			outcomes = $2, total_pool = $3, resolved = $4, winning_outcome = $5,
			payout_denominator = $6, randomness_requested = $7, updated_at = NOW()
		WHERE id = $1`

	tag, err := q(ctx, s.pool).Exec(ctx, query,
		m.ID.String(), outcomes, m.TotalPool, m.Resolved,
		winningCol(m.WinningOutcome), m.PayoutDenominator, m.RandomnessRequested,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a market by identity.
func (s *MarketStore) GetByID(ctx context.Context, id domain.ID) (domain.BettingMarket, error) {
	query := `SELECT ` + marketSelectCols + ` FROM betting_markets WHERE id = $1`
	m, err := scanMarket(q(ctx, s.pool).QueryRow(ctx, query, id.String()))
	if err != nil {
		return domain.BettingMarket{}, mapErr(err)
	}
	return m, nil
}

// GetByStream fetches the market attached to a stream.
func (s *MarketStore) GetByStream(ctx context.Context, stream domain.ID) (domain.BettingMarket, error) {
	query := `SELECT ` + marketSelectCols + ` FROM betting_markets WHERE stream = $1`
	m, err := scanMarket(q(ctx, s.pool).QueryRow(ctx, query, stream.String()))
	if err != nil {
		return domain.BettingMarket{}, mapErr(err)
	}
	return m, nil
}

func winningCol(w *uint8) *int {
	if w == nil {
		return nil
	}
	v := int(*w)
	return &v
}
