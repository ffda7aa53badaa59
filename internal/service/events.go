// Package service implements the engine's operation catalogue: the stream
// ledger, the LMSR betting engine, and the randomness coordinator. Every
// operation is synchronous and fail-atomic -- validations and arithmetic run
// before any mutation, mutations commit in one unit of work, and the single
// token transfer an operation may order happens inside that unit.
//
// Operations take the invocation wall clock as an explicit argument; all
// precondition checks within one invocation observe the same instant.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

// publisher emits committed events to the signal bus. Publish failures are
// logged, never propagated: the operation has already committed.
type publisher struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

func (p *publisher) publish(ctx context.Context, ev domain.Event) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.WarnContext(ctx, "service: marshal event failed",
			slog.String("kind", ev.Kind),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := p.bus.Publish(ctx, ev.Channel(), payload); err != nil {
		p.logger.WarnContext(ctx, "service: publish event failed",
			slog.String("kind", ev.Kind),
			slog.String("error", err.Error()),
		)
	}
}

// runTx executes fn inside the unit of work when one is configured, and
// directly otherwise (tests with stub stores).
func runTx(ctx context.Context, uow domain.UnitOfWork, fn func(ctx context.Context) error) error {
	if uow == nil {
		return fn(ctx)
	}
	return uow.RunTx(ctx, fn)
}
