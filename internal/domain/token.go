package domain

import "context"

// TokenLedger is the consumed token-transfer facility. Transfer moves amount
// between token accounts atomically and fails with ErrInsufficientFunds when
// the source balance is short. The engine orders at most one transfer per
// operation.
type TokenLedger interface {
	Transfer(ctx context.Context, from, to ID, amount int64) error
	Balance(ctx context.Context, account ID) (int64, error)
}
