package token

import (
	"context"
	"errors"
	"testing"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

func account(label string) domain.ID {
	var id domain.ID
	copy(id[:], label)
	return id
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	a, b := account("a"), account("b")
	l.Mint(a, 100)

	if err := l.Transfer(ctx, a, b, 60); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if bal, _ := l.Balance(ctx, a); bal != 40 {
		t.Errorf("a=%d want 40", bal)
	}
	if bal, _ := l.Balance(ctx, b); bal != 60 {
		t.Errorf("b=%d want 60", bal)
	}

	// Insufficient balance fails without side effects.
	if err := l.Transfer(ctx, a, b, 41); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("overdraw: err=%v want=%v", err, domain.ErrInsufficientFunds)
	}
	if bal, _ := l.Balance(ctx, a); bal != 40 {
		t.Errorf("a=%d after failed transfer want 40", bal)
	}

	// Non-positive amounts are rejected.
	if err := l.Transfer(ctx, a, b, 0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("zero transfer: err=%v want=%v", err, domain.ErrInvalidAmount)
	}
	if err := l.Transfer(ctx, a, b, -5); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("negative transfer: err=%v want=%v", err, domain.ErrInvalidAmount)
	}
}
