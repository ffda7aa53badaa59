package postgres

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

// ResolutionStore implements domain.ResolutionStore using PostgreSQL.
type ResolutionStore struct {
	pool *pgxpool.Pool
}

// NewResolutionStore creates a ResolutionStore backed by the given pool.
func NewResolutionStore(pool *pgxpool.Pool) *ResolutionStore {
	return &ResolutionStore{pool: pool}
}

const resolutionSelectCols = `id, market, status, use_case, request_id, seed,
	proposed_outcome, validators, votes, total_stake_validating,
	eligible_validators, dispute_end_time, created_at`

func scanResolution(row pgx.Row) (domain.MarketResolution, error) {
	var r domain.MarketResolution
	var id, market, status, useCase, seed string
	var proposed *int
	var validators, votes, eligible []byte

	err := row.Scan(
		&id, &market, &status, &useCase, &r.RequestID, &seed,
		&proposed, &validators, &votes, &r.TotalStakeValidating,
		&eligible, &r.DisputeEndTime, &r.CreatedAt,
	)
	if err != nil {
		return domain.MarketResolution{}, err
	}
	if r.ID, err = domain.ParseID(id); err != nil {
		return domain.MarketResolution{}, err
	}
	if r.Market, err = domain.ParseID(market); err != nil {
		return domain.MarketResolution{}, err
	}
	r.Status = domain.ResolutionStatus(status)
	r.UseCase = domain.RandomnessUseCase(useCase)
	if seed != "" {
		raw, err := hex.DecodeString(seed)
		if err != nil || len(raw) != len(r.Seed) {
			return domain.MarketResolution{}, fmt.Errorf("postgres: decode seed: %w", err)
		}
		copy(r.Seed[:], raw)
	}
	if proposed != nil {
		p := uint8(*proposed)
		r.ProposedOutcome = &p
	}
	if err = json.Unmarshal(validators, &r.Validators); err != nil {
		return domain.MarketResolution{}, err
	}
	if err = json.Unmarshal(votes, &r.Votes); err != nil {
		return domain.MarketResolution{}, err
	}
	if err = json.Unmarshal(eligible, &r.EligibleValidators); err != nil {
		return domain.MarketResolution{}, err
	}
	return r, nil
}

func resolutionCols(r domain.MarketResolution) (validators, votes, eligible []byte, seed string, proposed *int, err error) {
	if validators, err = json.Marshal(r.Validators); err != nil {
		return
	}
	if votes, err = json.Marshal(r.Votes); err != nil {
		return
	}
	if eligible, err = json.Marshal(r.EligibleValidators); err != nil {
		return
	}
	if !r.Seed.IsZero() {
		seed = hex.EncodeToString(r.Seed[:])
	}
	if r.ProposedOutcome != nil {
		p := int(*r.ProposedOutcome)
		proposed = &p
	}
	return
}

// Create inserts a new resolution record.
func (s *ResolutionStore) Create(ctx context.Context, r domain.MarketResolution) error {
	validators, votes, eligible, seed, proposed, err := resolutionCols(r)
	if err != nil {
		return fmt.Errorf("postgres: marshal resolution: %w", err)
	}

	const query = `
		INSERT INTO market_resolutions (
			id, market, status, use_case, request_id, seed, proposed_outcome,
			validators, votes, total_stake_validating, eligible_validators,
			dispute_end_time, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())`

	_, err = q(ctx, s.pool).Exec(ctx, query,
		r.ID.String(), r.Market.String(), string(r.Status), string(r.UseCase),
		r.RequestID, seed, proposed, validators, votes, r.TotalStakeValidating,
		eligible, r.DisputeEndTime, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create resolution %s: %w", r.ID, mapErr(err))
	}
	return nil
}

// Update replaces the mutable fields of a resolution record.
func (s *ResolutionStore) Update(ctx context.Context, r domain.MarketResolution) error {
	validators, votes, eligible, seed, proposed, err := resolutionCols(r)
	if err != nil {
		return fmt.Errorf("postgres: marshal resolution: %w", err)
	}

	const query = `
		UPDATE market_resolutions SET
			status = $2, use_case = $3, request_id = $4, seed = $5,
			proposed_outcome = $6, validators = $7, votes = $8,
			total_stake_validating = $9, eligible_validators = $10,
			dispute_end_time = $11, updated_at = NOW()
		WHERE id = $1`

	tag, err := q(ctx, s.pool).Exec(ctx, query,
		r.ID.String(), string(r.Status), string(r.UseCase), r.RequestID, seed,
		proposed, validators, votes, r.TotalStakeValidating, eligible, r.DisputeEndTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: update resolution %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByMarket fetches the resolution record of a market.
func (s *ResolutionStore) GetByMarket(ctx context.Context, market domain.ID) (domain.MarketResolution, error) {
	query := `SELECT ` + resolutionSelectCols + ` FROM market_resolutions WHERE market = $1`
	r, err := scanResolution(q(ctx, s.pool).QueryRow(ctx, query, market.String()))
	if err != nil {
		return domain.MarketResolution{}, mapErr(err)
	}
	return r, nil
}

// GetByRequestID fetches the resolution record bound to an oracle request.
func (s *ResolutionStore) GetByRequestID(ctx context.Context, requestID string) (domain.MarketResolution, error) {
	query := `SELECT ` + resolutionSelectCols + ` FROM market_resolutions WHERE request_id = $1`
	r, err := scanResolution(q(ctx, s.pool).QueryRow(ctx, query, requestID))
	if err != nil {
		return domain.MarketResolution{}, mapErr(err)
	}
	return r, nil
}
