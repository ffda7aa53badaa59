// Package token provides implementations of the consumed token-transfer
// facility. The in-memory ledger backs tests and single-node deployments;
// production deployments adapt the on-chain token program behind the same
// interface.
package token

import (
	"context"
	"sync"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

// MemoryLedger is an in-memory domain.TokenLedger. Transfers are atomic under
// a single mutex and fail without side effects on insufficient balance.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[domain.ID]int64
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[domain.ID]int64)}
}

// Mint credits an account out of thin air. Test and bootstrap helper.
func (l *MemoryLedger) Mint(account domain.ID, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

// Transfer moves amount from one account to another atomically.
func (l *MemoryLedger) Transfer(ctx context.Context, from, to domain.ID, amount int64) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return domain.ErrInsufficientFunds
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// Balance returns the current balance of an account.
func (l *MemoryLedger) Balance(ctx context.Context, account domain.ID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}
