package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

// DonorStore implements domain.DonorStore using PostgreSQL.
type DonorStore struct {
	pool *pgxpool.Pool
}

// NewDonorStore creates a DonorStore backed by the given connection pool.
func NewDonorStore(pool *pgxpool.Pool) *DonorStore {
	return &DonorStore{pool: pool}
}

const donorSelectCols = `id, stream, donor, amount, refunded, first_deposit_at`

func scanDonor(row pgx.Row) (domain.DonorAccount, error) {
	var d domain.DonorAccount
	var id, stream, donor string

	err := row.Scan(&id, &stream, &donor, &d.Amount, &d.Refunded, &d.FirstDepositAt)
	if err != nil {
		return domain.DonorAccount{}, err
	}
	if d.ID, err = domain.ParseID(id); err != nil {
		return domain.DonorAccount{}, err
	}
	if d.Stream, err = domain.ParseID(stream); err != nil {
		return domain.DonorAccount{}, err
	}
	if d.Donor, err = domain.ParseID(donor); err != nil {
		return domain.DonorAccount{}, err
	}
	return d, nil
}

// Create inserts a new donor ledger entry.
func (s *DonorStore) Create(ctx context.Context, d domain.DonorAccount) error {
	const query = `
		INSERT INTO donor_accounts (id, stream, donor, amount, refunded, first_deposit_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`

	_, err := q(ctx, s.pool).Exec(ctx, query,
		d.ID.String(), d.Stream.String(), d.Donor.String(),
		d.Amount, d.Refunded, d.FirstDepositAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create donor %s: %w", d.ID, mapErr(err))
	}
	return nil
}

// Update replaces the mutable fields of a donor ledger entry.
func (s *DonorStore) Update(ctx context.Context, d domain.DonorAccount) error {
	const query = `
		UPDATE donor_accounts SET amount = $2, refunded = $3, updated_at = NOW()
		WHERE id = $1`

	tag, err := q(ctx, s.pool).Exec(ctx, query, d.ID.String(), d.Amount, d.Refunded)
	if err != nil {
		return fmt.Errorf("postgres: update donor %s: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a donor ledger entry by identity.
func (s *DonorStore) GetByID(ctx context.Context, id domain.ID) (domain.DonorAccount, error) {
	query := `SELECT ` + donorSelectCols + ` FROM donor_accounts WHERE id = $1`
	d, err := scanDonor(q(ctx, s.pool).QueryRow(ctx, query, id.String()))
	if err != nil {
		return domain.DonorAccount{}, mapErr(err)
	}
	return d, nil
}

// ListByStream lists the donor entries of a stream, oldest first.
func (s *DonorStore) ListByStream(ctx context.Context, stream domain.ID, opts domain.ListOpts) ([]domain.DonorAccount, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + donorSelectCols + `
		FROM donor_accounts WHERE stream = $1
		ORDER BY first_deposit_at ASC LIMIT $2 OFFSET $3`

	rows, err := q(ctx, s.pool).Query(ctx, query, stream.String(), limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list donors by stream: %w", err)
	}
	defer rows.Close()

	var out []domain.DonorAccount
	for rows.Next() {
		d, err := scanDonor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
