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
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/oracle"
)

// CallbackVerifier checks a randomness callback's oracle signature.
type CallbackVerifier interface {
	Verify(requestID string, seed domain.Seed, sig []byte) error
}

// ResolutionService is the randomness coordinator: it mediates between
// markets and the external verifiable-randomness oracle, consumes delivered
// seeds, and runs the validator voting protocol.
type ResolutionService struct {
	markets     domain.MarketStore
	positions   domain.PositionStore
	resolutions domain.ResolutionStore
	requester   domain.RandomnessRequester
	verifier    CallbackVerifier
	uow         domain.UnitOfWork
	audit       domain.AuditStore
	cache       domain.MarketCache
	pub         publisher
	logger      *slog.Logger
}

// NewResolutionService creates a ResolutionService. uow, audit, cache, and
// bus may be nil; verifier may be nil only when callbacks arrive through a
// pre-verified channel.
func NewResolutionService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	resolutions domain.ResolutionStore,
	requester domain.RandomnessRequester,
	verifier CallbackVerifier,
	uow domain.UnitOfWork,
	audit domain.AuditStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *ResolutionService {
	return &ResolutionService{
		markets:     markets,
		positions:   positions,
		resolutions: resolutions,
		requester:   requester,
		verifier:    verifier,
		uow:         uow,
		audit:       audit,
		cache:       cache,
		pub:         publisher{bus: bus, logger: logger},
		logger:      logger,
	}
}

// RequestRandomness dispatches an oracle request for the market and creates
// or refreshes its resolution record.
func (s *ResolutionService) RequestRandomness(ctx context.Context, now time.Time, p domain.RequestRandomnessParams) (string, error) {
	market, err := s.markets.GetByID(ctx, p.Market)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("resolution_service: get market: %w", err)
	}
	if market.Host != p.Caller {
		return "", domain.ErrUnauthorized
	}
	if market.Resolved {
		return "", domain.ErrAlreadyResolved
	}

	if p.UseCase == domain.UseCaseValidatorSelection {
		if now.Unix() < market.ResolutionTime {
			return "", domain.ErrMarketNotReady
		}
		if len(p.EligibleValidators) == 0 {
			return "", domain.ErrInsufficientValidators
		}
	}

	requestID, err := s.requester.Request(ctx, market.ID, p.UseCase, p.ClientSeed)
	if err != nil {
		return "", fmt.Errorf("resolution_service: dispatch request: %w", err)
	}

	resolution, err := s.resolutions.GetByMarket(ctx, market.ID)
	created := false
	switch {
	case err == nil:
		resolution.UseCase = p.UseCase
		resolution.RequestID = requestID
		resolution.EligibleValidators = p.EligibleValidators
		resolution.Status = domain.ResolutionAwaitingRandomness
	case errors.Is(err, domain.ErrNotFound):
		created = true
		resolution = domain.MarketResolution{
			ID:                 derive.Resolution(market.ID),
			Market:             market.ID,
			Status:             domain.ResolutionAwaitingRandomness,
			UseCase:            p.UseCase,
			RequestID:          requestID,
			EligibleValidators: p.EligibleValidators,
			CreatedAt:          now.UTC(),
		}
	default:
		return "", fmt.Errorf("resolution_service: get resolution: %w", err)
	}

	market.RandomnessRequested = true

	ev := domain.Event{
		Kind:      domain.EventRandomnessRequested,
		Market:    market.ID,
		Actor:     p.Caller,
		Timestamp: now.Unix(),
	}
	err = runTx(ctx, s.uow, func(ctx context.Context) error {
		if created {
			if err := s.resolutions.Create(ctx, resolution); err != nil {
				return fmt.Errorf("resolution_service: create resolution: %w", err)
			}
		} else {
			if err := s.resolutions.Update(ctx, resolution); err != nil {
				return fmt.Errorf("resolution_service: update resolution: %w", err)
			}
		}
		if err := s.markets.Update(ctx, market); err != nil {
			return fmt.Errorf("resolution_service: update market: %w", err)
		}
		return s.logAudit(ctx, ev)
	})
	if err != nil {
		return "", err
	}

	s.invalidate(ctx, market.ID)
	s.pub.publish(ctx, ev)
	s.logger.InfoContext(ctx, "resolution_service: randomness requested",
		slog.String("market", market.ID.String()),
		slog.String("request_id", requestID),
		slog.String("use_case", string(p.UseCase)),
	)
	return requestID, nil
}

// HandleCallback consumes a signed oracle callback. The seed is bound to a
// market through the resolution record's request ID. With a verifier,
// callbacks that fail verification are rejected; without one, the signature
// is not checked.
func (s *ResolutionService) HandleCallback(ctx context.Context, now time.Time, requestID string, seed domain.Seed, sig []byte) error {
	if s.verifier != nil {
		if err := s.verifier.Verify(requestID, seed, sig); err != nil {
			return err
		}
	}

	resolution, err := s.resolutions.GetByRequestID(ctx, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("resolution_service: lookup request %s: %w", requestID, err)
	}
	if resolution.Status != domain.ResolutionAwaitingRandomness {
		return domain.ErrInvalidResolutionState
	}

	market, err := s.markets.GetByID(ctx, resolution.Market)
	if err != nil {
		return fmt.Errorf("resolution_service: get market: %w", err)
	}

	resolution.Seed = seed
	resolution.DisputeEndTime = now.Unix() + domain.DisputeWindow

	var events []domain.Event
	switch resolution.UseCase {
	case domain.UseCaseValidatorSelection:
		selected, err := oracle.SelectValidators(seed, resolution.EligibleValidators)
		if err != nil {
			return err
		}
		resolution.Validators = selected
		resolution.Status = domain.ResolutionUnderValidation
		events = append(events, domain.Event{
			Kind:      domain.EventValidatorsSelected,
			Market:    market.ID,
			Amount:    int64(len(selected)),
			Timestamp: now.Unix(),
		})

	case domain.UseCaseOutcomeSeeding:
		if market.Resolved {
			return domain.ErrAlreadyResolved
		}
		w := oracle.OutcomeFromSeed(seed, len(market.Outcomes))
		market.Resolved = true
		market.WinningOutcome = &w
		market.PayoutDenominator = market.Outcomes[w].TotalShares
		resolution.ProposedOutcome = &w
		resolution.Status = domain.ResolutionForcedByRandomness
		events = append(events, domain.Event{
			Kind:      domain.EventMarketResolved,
			Market:    market.ID,
			Outcome:   &w,
			Timestamp: now.Unix(),
		})

	default:
		return domain.ErrInvalidResolutionState
	}

	err = runTx(ctx, s.uow, func(ctx context.Context) error {
		if err := s.resolutions.Update(ctx, resolution); err != nil {
			return fmt.Errorf("resolution_service: update resolution: %w", err)
		}
		if err := s.markets.Update(ctx, market); err != nil {
			return fmt.Errorf("resolution_service: update market: %w", err)
		}
		for _, ev := range events {
			if err := s.logAudit(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, market.ID)
	for _, ev := range events {
		s.pub.publish(ctx, ev)
	}
	s.logger.InfoContext(ctx, "resolution_service: callback processed",
		slog.String("market", market.ID.String()),
		slog.String("use_case", string(resolution.UseCase)),
	)
	return nil
}

// ValidatorVote records a selected validator's vote on the market outcome.
// When votes reach two thirds of the selected set (rounded down), stake-weighted consensus
// is evaluated: a two-thirds-stake super-majority proposes the outcome and
// finalizes the resolution record.
func (s *ResolutionService) ValidatorVote(ctx context.Context, now time.Time, p domain.ValidatorVoteParams) error {
	market, err := s.markets.GetByID(ctx, p.Market)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("resolution_service: get market: %w", err)
	}
	if int(p.Outcome) >= len(market.Outcomes) {
		return domain.ErrInvalidOutcome
	}

	resolution, err := s.resolutions.GetByMarket(ctx, market.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrInvalidResolutionState
		}
		return fmt.Errorf("resolution_service: get resolution: %w", err)
	}
	if resolution.Status != domain.ResolutionUnderValidation {
		return domain.ErrInvalidResolutionState
	}
	if !resolution.IsSelected(p.Caller) {
		return domain.ErrNotValidator
	}
	if resolution.HasVoted(p.Caller) {
		return domain.ErrAlreadyVoted
	}

	pos, err := s.positions.GetByID(ctx, derive.Position(market.ID, p.Caller))
	if err != nil || pos.TotalInvested < domain.ValidatorStakeRequirement {
		return domain.ErrInsufficientStake
	}

	resolution.Votes = append(resolution.Votes, domain.ValidatorVote{
		Validator: p.Caller,
		Outcome:   p.Outcome,
		VotedAt:   now.Unix(),
		Stake:     pos.TotalInvested,
	})
	resolution.TotalStakeValidating, err = fixedpoint.Add(resolution.TotalStakeValidating, pos.TotalInvested)
	if err != nil {
		return domain.ErrArithmeticOverflow
	}

	// Consensus once two thirds of the selected validators (rounded down)
	// have voted.
	if required := (len(resolution.Validators) * 2) / 3; len(resolution.Votes) >= required {
		checkConsensus(&resolution)
	}

	ev := domain.Event{
		Kind:      domain.EventValidationVote,
		Market:    market.ID,
		Actor:     p.Caller,
		Outcome:   &p.Outcome,
		Amount:    pos.TotalInvested,
		Timestamp: now.Unix(),
	}
	err = runTx(ctx, s.uow, func(ctx context.Context) error {
		if err := s.resolutions.Update(ctx, resolution); err != nil {
			return fmt.Errorf("resolution_service: update resolution: %w", err)
		}
		return s.logAudit(ctx, ev)
	})
	if err != nil {
		return err
	}

	s.pub.publish(ctx, ev)
	return nil
}

// GetResolution returns the resolution record of a market.
func (s *ResolutionService) GetResolution(ctx context.Context, market domain.ID) (domain.MarketResolution, error) {
	return s.resolutions.GetByMarket(ctx, market)
}

// checkConsensus tallies votes by stake and finalizes the proposed outcome
// when one outcome holds at least two thirds of the validating stake.
func checkConsensus(r *domain.MarketResolution) {
	stakes := make(map[uint8]int64)
	for _, v := range r.Votes {
		stakes[v.Outcome] += v.Stake
	}

	var winner uint8
	var maxStake int64
	for outcome, stake := range stakes {
		if stake > maxStake || (stake == maxStake && outcome < winner) {
			maxStake = stake
			winner = outcome
		}
	}

	if required := (r.TotalStakeValidating * 2) / 3; maxStake >= required && maxStake > 0 {
		w := winner
		r.ProposedOutcome = &w
		r.Status = domain.ResolutionFinalized
	}
}

func (s *ResolutionService) logAudit(ctx context.Context, ev domain.Event) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Log(ctx, ev); err != nil {
		return fmt.Errorf("resolution_service: audit log: %w", err)
	}
	return nil
}

func (s *ResolutionService) invalidate(ctx context.Context, market domain.ID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, market); err != nil {
		s.logger.WarnContext(ctx, "resolution_service: cache invalidate failed",
			slog.String("market", market.String()),
			slog.String("error", err.Error()),
		)
	}
}
