package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/derive"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/fixedpoint"
)

// StreamService implements the stream lifecycle state machine and the donor
// ledger: initialize, start, deposit, distribute, refund, update, complete.
type StreamService struct {
	streams domain.StreamStore
	donors  domain.DonorStore
	ledger  domain.TokenLedger
	uow     domain.UnitOfWork
	audit   domain.AuditStore
	cache   domain.StreamCache
	pub     publisher
	logger  *slog.Logger
}

// NewStreamService creates a StreamService. uow, audit, cache, and bus may be
// nil; the service degrades to direct store writes without caching or events.
func NewStreamService(
	streams domain.StreamStore,
	donors domain.DonorStore,
	ledger domain.TokenLedger,
	uow domain.UnitOfWork,
	audit domain.AuditStore,
	cache domain.StreamCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *StreamService {
	return &StreamService{
		streams: streams,
		donors:  donors,
		ledger:  ledger,
		uow:     uow,
		audit:   audit,
		cache:   cache,
		pub:     publisher{bus: bus, logger: logger},
		logger:  logger,
	}
}

// Initialize creates a stream record and its escrow vault. The stream starts
// in Initialized and must be started explicitly.
func (s *StreamService) Initialize(ctx context.Context, now time.Time, p domain.InitializeParams) (domain.Stream, error) {
	id, err := derive.Stream(p.Name, p.Caller)
	if err != nil {
		return domain.Stream{}, err
	}
	if err := p.Type.Validate(now.Unix()); err != nil {
		return domain.Stream{}, err
	}

	if _, err := s.streams.GetByID(ctx, id); err == nil {
		return domain.Stream{}, domain.ErrAlreadyInitialized
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Stream{}, fmt.Errorf("stream_service: lookup %s: %w", id, err)
	}

	stream := domain.Stream{
		ID:        id,
		Host:      p.Caller,
		Name:      p.Name,
		Mint:      p.Mint,
		Escrow:    derive.Escrow(id),
		Type:      p.Type,
		Status:    domain.StreamStatusInitialized,
		EndTime:   p.EndTime,
		CreatedAt: now.UTC(),
	}

	ev := domain.Event{
		Kind:      domain.EventStreamInitialized,
		Stream:    id,
		Actor:     p.Caller,
		Timestamp: now.Unix(),
	}
	err = runTx(ctx, s.uow, func(ctx context.Context) error {
		if err := s.streams.Create(ctx, stream); err != nil {
			return fmt.Errorf("stream_service: create stream: %w", err)
		}
		return s.logAudit(ctx, ev)
	})
	if err != nil {
		return domain.Stream{}, err
	}

	s.afterCommit(ctx, stream, ev)
	s.logger.InfoContext(ctx, "stream_service: stream initialized",
		slog.String("stream", id.String()),
		slog.String("kind", string(p.Type.Kind)),
	)
	return stream, nil
}

// StartStream activates an initialized stream and stamps its start time.
func (s *StreamService) StartStream(ctx context.Context, now time.Time, p domain.StartStreamParams) error {
	stream, err := s.getStream(ctx, p.Stream)
	if err != nil {
		return err
	}
	if stream.Host != p.Caller {
		return domain.ErrUnauthorized
	}
	switch stream.Status {
	case domain.StreamStatusInitialized:
	case domain.StreamStatusActive:
		return domain.ErrStreamAlreadyStarted
	default:
		return domain.ErrStreamAlreadyEnded
	}

	start := now.Unix()
	stream.StartTime = &start
	stream.Status = domain.StreamStatusActive

	ev := domain.Event{
		Kind:      domain.EventStreamStarted,
		Stream:    stream.ID,
		Actor:     p.Caller,
		Timestamp: now.Unix(),
	}
	err = runTx(ctx, s.uow, func(ctx context.Context) error {
		if err := s.streams.Update(ctx, stream); err != nil {
			return fmt.Errorf("stream_service: update stream: %w", err)
		}
		return s.logAudit(ctx, ev)
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, stream, ev)
	return nil
}

// Deposit moves tokens from the donor into the stream escrow and credits the
// donor's sub-ledger entry, creating it on first deposit.
func (s *StreamService) Deposit(ctx context.Context, now time.Time, p domain.DepositParams) error {
	if p.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	stream, err := s.getStream(ctx, p.Stream)
	if err != nil {
		return err
	}
	if p.Mint != stream.Mint {
		return domain.ErrMintMismatch
	}

	// Per-type status rules.
	switch stream.Type.Kind {
	case domain.StreamKindPrepaid:
		if stream.Status != domain.StreamStatusInitialized && stream.Status != domain.StreamStatusActive {
			return domain.ErrDepositNotAllowed
		}
	case domain.StreamKindLive:
		if stream.Status != domain.StreamStatusActive {
			return domain.ErrDepositNotAllowed
		}
	case domain.StreamKindConditional:
		if stream.Status.Terminal() {
			return domain.ErrStreamNotActive
		}
	}

	donorID := derive.Donor(stream.ID, p.Caller)
	donor, err := s.donors.GetByID(ctx, donorID)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		created = true
		donor = domain.DonorAccount{
			ID:             donorID,
			Stream:         stream.ID,
			Donor:          p.Caller,
			FirstDepositAt: now.UTC(),
		}
	default:
		return fmt.Errorf("stream_service: lookup donor %s: %w", donorID, err)
	}

	donor.Amount, err = fixedpoint.Add(donor.Amount, p.Amount)
	if err != nil {
		return domain.ErrArithmeticOverflow
	}
	donor.Refunded = false
	stream.TotalDeposited, err = fixedpoint.Add(stream.TotalDeposited, p.Amount)
	if err != nil {
		return domain.ErrArithmeticOverflow
	}

	ev := domain.Event{
		Kind:      domain.EventDepositMade,
		Stream:    stream.ID,
		Actor:     p.Caller,
		Amount:    p.Amount,
		Timestamp: now.Unix(),
	}
	err = runTx(ctx, s.uow, func(ctx context.Context) error {
		// The transfer goes first: it is the one mutation that can fail for
		// business reasons, and a failure must leave no record writes behind.
		if err := s.ledger.Transfer(ctx, p.Caller, stream.Escrow, p.Amount); err != nil {
			return err
		}
		if created {
			if err := s.donors.Create(ctx, donor); err != nil {
				return fmt.Errorf("stream_service: create donor: %w", err)
			}
		} else {
			if err := s.donors.Update(ctx, donor); err != nil {
				return fmt.Errorf("stream_service: update donor: %w", err)
			}
		}
		if err := s.streams.Update(ctx, stream); err != nil {
			return fmt.Errorf("stream_service: update stream: %w", err)
		}
		return s.logAudit(ctx, ev)
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, stream, ev)
	return nil
}

// Distribute pays a recipient from the escrow, gated by the stream type.
func (s *StreamService) Distribute(ctx context.Context, now time.Time, p domain.DistributeParams) error {
	if p.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	stream, err := s.getStream(ctx, p.Stream)
	if err != nil {
		return err
	}
	if stream.Host != p.Caller {
		return domain.ErrUnauthorized
	}
	if stream.Status != domain.StreamStatusActive {
		return domain.ErrStreamNotActive
	}

	switch stream.Type.Kind {
	case domain.StreamKindPrepaid:
		if stream.StartTime == nil {
			return domain.ErrStreamNotStarted
		}
		if now.Unix()-*stream.StartTime < stream.Type.MinDuration {
			return domain.ErrDurationNotMet
		}
	case domain.StreamKindConditional:
		if min := stream.Type.MinAmount; min != nil && stream.TotalDeposited < *min {
			return domain.ErrConditionsNotMet
		}
		if unlock := stream.Type.UnlockTime; unlock != nil && now.Unix() < *unlock {
			return domain.ErrConditionsNotMet
		}
	case domain.StreamKindLive:
		// No additional gate.
	}

	if p.Amount > stream.Available() {
		return domain.ErrInsufficientFunds
	}
	stream.TotalDistributed, err = fixedpoint.Add(stream.TotalDistributed, p.Amount)
	if err != nil {
		return domain.ErrArithmeticOverflow
	}

	ev := domain.Event{
		Kind:      domain.EventFundsDistributed,
		Stream:    stream.ID,
		Actor:     p.Caller,
		Recipient: p.Recipient,
		Amount:    p.Amount,
		Timestamp: now.Unix(),
	}
	err = runTx(ctx, s.uow, func(ctx context.Context) error {
		if err := s.ledger.Transfer(ctx, stream.Escrow, p.Recipient, p.Amount); err != nil {
			return err
		}
		if err := s.streams.Update(ctx, stream); err != nil {
			return fmt.Errorf("stream_service: update stream: %w", err)
		}
		return s.logAudit(ctx, ev)
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, stream, ev)
	return nil
}

// Refund returns escrowed tokens to a donor. The host or the donor themselves
// may initiate; the destination is always the donor's own token account.
func (s *StreamService) Refund(ctx context.Context, now time.Time, p domain.RefundParams) error {
	if p.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	stream, err := s.getStream(ctx, p.Stream)
	if err != nil {
		return err
	}
	if p.Caller != stream.Host && p.Caller != p.Donor {
		return domain.ErrUnauthorized
	}
	if stream.Status == domain.StreamStatusEnded {
		return domain.ErrStreamAlreadyEnded
	}
	if p.Mint != stream.Mint {
		return domain.ErrMintMismatch
	}

	donor, err := s.donors.GetByID(ctx, derive.Donor(stream.ID, p.Donor))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("stream_service: lookup donor: %w", err)
	}
	if donor.Refunded {
		return domain.ErrAlreadyRefunded
	}
	if p.Amount > donor.Amount || p.Amount > stream.Available() {
		return domain.ErrInsufficientFunds
	}

	donor.Amount -= p.Amount
	if donor.Amount == 0 {
		donor.Refunded = true
	}
	stream.TotalDeposited -= p.Amount

	ev := domain.Event{
		Kind:      domain.EventRefundProcessed,
		Stream:    stream.ID,
		Actor:     p.Caller,
		Recipient: p.Donor,
		Amount:    p.Amount,
		Remaining: donor.Amount,
		Timestamp: now.Unix(),
	}
	err = runTx(ctx, s.uow, func(ctx context.Context) error {
		if err := s.ledger.Transfer(ctx, stream.Escrow, p.Donor, p.Amount); err != nil {
			return err
		}
		if err := s.donors.Update(ctx, donor); err != nil {
			return fmt.Errorf("stream_service: update donor: %w", err)
		}
		if err := s.streams.Update(ctx, stream); err != nil {
			return fmt.Errorf("stream_service: update stream: %w", err)
		}
		return s.logAudit(ctx, ev)
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, stream, ev)
	return nil
}

// CompleteStream ends an active, started stream and stamps its end time.
func (s *StreamService) CompleteStream(ctx context.Context, now time.Time, p domain.CompleteStreamParams) error {
	stream, err := s.getStream(ctx, p.Stream)
	if err != nil {
		return err
	}
	if stream.Host != p.Caller {
		return domain.ErrUnauthorized
	}
	if stream.Status != domain.StreamStatusActive {
		return domain.ErrStreamNotActive
	}
	if stream.StartTime == nil {
		return domain.ErrStreamNotStarted
	}

	end := now.Unix()
	stream.EndTime = &end
	stream.Status = domain.StreamStatusEnded

	ev := domain.Event{
		Kind:      domain.EventStreamEnded,
		Stream:    stream.ID,
		Actor:     p.Caller,
		Timestamp: now.Unix(),
	}
	err = runTx(ctx, s.uow, func(ctx context.Context) error {
		if err := s.streams.Update(ctx, stream); err != nil {
			return fmt.Errorf("stream_service: update stream: %w", err)
		}
		return s.logAudit(ctx, ev)
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, stream, ev)
	return nil
}

// UpdateStream lets the host adjust the end time or force a terminal status.
// Terminal states admit no further transitions.
func (s *StreamService) UpdateStream(ctx context.Context, now time.Time, p domain.UpdateStreamParams) error {
	stream, err := s.getStream(ctx, p.Stream)
	if err != nil {
		return err
	}
	if stream.Host != p.Caller {
		return domain.ErrUnauthorized
	}
	if stream.Status.Terminal() {
		return domain.ErrStreamAlreadyEnded
	}

	if p.NewStatus != nil {
		switch *p.NewStatus {
		case domain.StreamStatusEnded, domain.StreamStatusCancelled:
			stream.Status = *p.NewStatus
			if stream.EndTime == nil && p.NewEnd == nil {
				end := now.Unix()
				stream.EndTime = &end
			}
		default:
			return domain.ErrInvalidTransition
		}
	}
	if p.NewEnd != nil {
		stream.EndTime = p.NewEnd
	}

	kind := domain.EventStreamUpdated
	if stream.Status.Terminal() {
		kind = domain.EventStreamEnded
	}
	ev := domain.Event{
		Kind:      kind,
		Stream:    stream.ID,
		Actor:     p.Caller,
		Timestamp: now.Unix(),
	}
	err = runTx(ctx, s.uow, func(ctx context.Context) error {
		if err := s.streams.Update(ctx, stream); err != nil {
			return fmt.Errorf("stream_service: update stream: %w", err)
		}
		return s.logAudit(ctx, ev)
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, stream, ev)
	return nil
}

// GetStream returns a stream read view, cache first.
func (s *StreamService) GetStream(ctx context.Context, id domain.ID) (domain.Stream, error) {
	if s.cache != nil {
		if st, err := s.cache.Get(ctx, id); err == nil {
			return st, nil
		}
	}
	stream, err := s.getStream(ctx, id)
	if err != nil {
		return domain.Stream{}, err
	}
	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, stream); cacheErr != nil {
			s.logger.WarnContext(ctx, "stream_service: cache set failed",
				slog.String("stream", id.String()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return stream, nil
}

// GetDonor returns the donor ledger entry for (stream, donor).
func (s *StreamService) GetDonor(ctx context.Context, stream, donor domain.ID) (domain.DonorAccount, error) {
	d, err := s.donors.GetByID(ctx, derive.Donor(stream, donor))
	if err != nil {
		return domain.DonorAccount{}, err
	}
	return d, nil
}

// ListDonors returns the donor ledger entries of a stream.
func (s *StreamService) ListDonors(ctx context.Context, stream domain.ID, opts domain.ListOpts) ([]domain.DonorAccount, error) {
	return s.donors.ListByStream(ctx, stream, opts)
}

func (s *StreamService) getStream(ctx context.Context, id domain.ID) (domain.Stream, error) {
	stream, err := s.streams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Stream{}, domain.ErrNotFound
		}
		return domain.Stream{}, fmt.Errorf("stream_service: get stream %s: %w", id, err)
	}
	// Freshness: the stored identity must survive re-derivation.
	want, err := derive.Stream(stream.Name, stream.Host)
	if err != nil || want != id {
		return domain.Stream{}, domain.ErrAddressMismatch
	}
	return stream, nil
}

func (s *StreamService) logAudit(ctx context.Context, ev domain.Event) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Log(ctx, ev); err != nil {
		return fmt.Errorf("stream_service: audit log: %w", err)
	}
	return nil
}

func (s *StreamService) afterCommit(ctx context.Context, stream domain.Stream, ev domain.Event) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, stream.ID); err != nil {
			s.logger.WarnContext(ctx, "stream_service: cache invalidate failed",
				slog.String("stream", stream.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	s.pub.publish(ctx, ev)
}
