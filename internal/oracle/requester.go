package oracle

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

// PendingRequest is a dispatched randomness request awaiting its callback.
type PendingRequest struct {
	RequestID  string
	Target     domain.ID
	UseCase    domain.RandomnessUseCase
	ClientSeed domain.Seed
}

// MemoryRequester implements domain.RandomnessRequester by recording requests
// in memory. Single-node deployments pair it with an out-of-band oracle that
// polls Pending and posts signed callbacks; tests fire callbacks directly.
type MemoryRequester struct {
	mu      sync.Mutex
	pending []PendingRequest
}

// NewMemoryRequester creates an empty requester.
func NewMemoryRequester() *MemoryRequester {
	return &MemoryRequester{}
}

// Request records the request and returns a fresh request identifier.
func (r *MemoryRequester) Request(ctx context.Context, target domain.ID, useCase domain.RandomnessUseCase, clientSeed domain.Seed) (string, error) {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, PendingRequest{
		RequestID:  id,
		Target:     target,
		UseCase:    useCase,
		ClientSeed: clientSeed,
	})
	return id, nil
}

// Pending returns the dispatched requests that have not been taken yet and
// clears the queue.
func (r *MemoryRequester) Pending() []PendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}
