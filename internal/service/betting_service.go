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
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/lmsr"
)

// BettingService implements the LMSR market engine: market creation, share
// purchase, resolution, and payout.
type BettingService struct {
	streams     domain.StreamStore
	markets     domain.MarketStore
	positions   domain.PositionStore
	resolutions domain.ResolutionStore
	ledger      domain.TokenLedger
	uow         domain.UnitOfWork
	audit       domain.AuditStore
	cache       domain.MarketCache
	pub         publisher
	logger      *slog.Logger
}

// NewBettingService creates a BettingService. uow, audit, cache, and bus may
// be nil.
func NewBettingService(
	streams domain.StreamStore,
	markets domain.MarketStore,
	positions domain.PositionStore,
	resolutions domain.ResolutionStore,
	ledger domain.TokenLedger,
	uow domain.UnitOfWork,
	audit domain.AuditStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *BettingService {
	return &BettingService{
		streams:     streams,
		markets:     markets,
		positions:   positions,
		resolutions: resolutions,
		ledger:      ledger,
		uow:         uow,
		audit:       audit,
		cache:       cache,
		pub:         publisher{bus: bus, logger: logger},
		logger:      logger,
	}
}

// InitializeMarket attaches a betting market to a stream. One market per
// stream; the outcome vector is fixed for the market's lifetime.
func (s *BettingService) InitializeMarket(ctx context.Context, now time.Time, p domain.InitializeMarketParams) (domain.BettingMarket, error) {
	stream, err := s.streams.GetByID(ctx, p.Stream)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.BettingMarket{}, domain.ErrNotFound
		}
		return domain.BettingMarket{}, fmt.Errorf("betting_service: get stream: %w", err)
	}
	if stream.Host != p.Caller {
		return domain.BettingMarket{}, domain.ErrUnauthorized
	}
	if p.Mint != stream.Mint {
		return domain.BettingMarket{}, domain.ErrMintMismatch
	}
	if err := p.Type.ValidateOutcomes(len(p.Outcomes)); err != nil {
		return domain.BettingMarket{}, err
	}
	if p.ResolutionTime <= now.Unix() {
		return domain.BettingMarket{}, domain.ErrInvalidTime
	}
	if p.FeeBps > domain.MaxFeeBps {
		return domain.BettingMarket{}, domain.ErrInvalidFee
	}
	if p.Liquidity <= 0 {
		return domain.BettingMarket{}, domain.ErrInvalidMarketSetup
	}

	id := derive.Market(stream.ID)
	if _, err := s.markets.GetByID(ctx, id); err == nil {
		return domain.BettingMarket{}, domain.ErrAlreadyInitialized
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.BettingMarket{}, fmt.Errorf("betting_service: lookup market: %w", err)
	}

	outcomes := make([]domain.MarketOutcome, len(p.Outcomes))
	for i, desc := range p.Outcomes {
		outcomes[i] = domain.MarketOutcome{
			ID:          uint8(i),
			Description: desc,
			// exp(0/b) normalized: every outcome starts at equal odds.
			LiquidityReserve: fixedpoint.Scale,
		}
	}

	market := domain.BettingMarket{
		ID:             id,
		Stream:         stream.ID,
		Host:           stream.Host,
		Mint:           stream.Mint,
		Vault:          derive.MarketVault(id),
		Type:           p.Type,
		Outcomes:       outcomes,
		TotalLiquidity: p.Liquidity,
		FeeBps:         p.FeeBps,
		ResolutionTime: p.ResolutionTime,
		CreatedAt:      now.UTC(),
	}

	ev := domain.Event{
		Kind:      domain.EventMarketCreated,
		Stream:    stream.ID,
		Market:    id,
		Actor:     p.Caller,
		Timestamp: now.Unix(),
	}
	err = runTx(ctx, s.uow, func(ctx context.Context) error {
		if err := s.markets.Create(ctx, market); err != nil {
			return fmt.Errorf("betting_service: create market: %w", err)
		}
		return s.logAudit(ctx, ev)
	})
	if err != nil {
		return domain.BettingMarket{}, err
	}

	s.afterCommit(ctx, market, ev)
	s.logger.InfoContext(ctx, "betting_service: market initialized",
		slog.String("market", id.String()),
		slog.Int("outcomes", len(outcomes)),
	)
	return market, nil
}

// PlaceBet buys shares in one outcome. The fee comes off the top; the net
// amount buys the largest share count whose LMSR cost it covers.
func (s *BettingService) PlaceBet(ctx context.Context, now time.Time, p domain.PlaceBetParams) (int64, error) {
	if p.Amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	market, err := s.getMarket(ctx, p.Market)
	if err != nil {
		return 0, err
	}
	if market.Resolved {
		return 0, domain.ErrMarketResolved
	}
	if now.Unix() >= market.ResolutionTime {
		return 0, domain.ErrMarketExpired
	}
	if p.Mint != market.Mint {
		return 0, domain.ErrMintMismatch
	}
	if int(p.OutcomeID) >= len(market.Outcomes) {
		return 0, domain.ErrInvalidOutcome
	}

	fee, err := fixedpoint.ApplyBps(p.Amount, market.FeeBps)
	if err != nil {
		return 0, domain.ErrArithmeticOverflow
	}
	net := p.Amount - fee
	if net <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	qs := market.OutcomeShares()
	shares, err := lmsr.SharesForAmount(qs, market.TotalLiquidity, int(p.OutcomeID), net)
	if err != nil {
		return 0, domain.ErrArithmeticOverflow
	}
	if shares < p.MinShares {
		return 0, domain.ErrSlippageExceeded
	}
	if shares == 0 {
		return 0, domain.ErrInvalidAmount
	}

	// Market mutations, all checked before any store write.
	outcome := &market.Outcomes[p.OutcomeID]
	if outcome.TotalShares, err = fixedpoint.Add(outcome.TotalShares, shares); err != nil {
		return 0, domain.ErrArithmeticOverflow
	}
	if outcome.TotalBacking, err = fixedpoint.Add(outcome.TotalBacking, net); err != nil {
		return 0, domain.ErrArithmeticOverflow
	}
	if market.TotalPool, err = fixedpoint.Add(market.TotalPool, p.Amount); err != nil {
		return 0, domain.ErrArithmeticOverflow
	}
	reserves, err := lmsr.Reserves(market.OutcomeShares(), market.TotalLiquidity)
	if err != nil {
		return 0, domain.ErrArithmeticOverflow
	}
	for i := range market.Outcomes {
		market.Outcomes[i].LiquidityReserve = reserves[i]
	}

	// Position bookkeeping.
	posID := derive.Position(market.ID, p.Caller)
	pos, err := s.positions.GetByID(ctx, posID)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		created = true
		pos = domain.BettorPosition{
			ID:        posID,
			Bettor:    p.Caller,
			Market:    market.ID,
			CreatedAt: now.UTC(),
		}
	default:
		return 0, fmt.Errorf("betting_service: lookup position: %w", err)
	}

	if err := applyPurchase(&pos, p.OutcomeID, shares, p.Amount); err != nil {
		return 0, err
	}

	ev := domain.Event{
		Kind:      domain.EventBetPlaced,
		Market:    market.ID,
		Actor:     p.Caller,
		Amount:    p.Amount,
		Shares:    shares,
		Outcome:   &p.OutcomeID,
		Timestamp: now.Unix(),
	}
	err = runTx(ctx, s.uow, func(ctx context.Context) error {
		// Transfer first so an insufficient balance leaves no record writes.
		if err := s.ledger.Transfer(ctx, p.Caller, market.Vault, p.Amount); err != nil {
			return err
		}
		if err := s.markets.Update(ctx, market); err != nil {
			return fmt.Errorf("betting_service: update market: %w", err)
		}
		if created {
			if err := s.positions.Create(ctx, pos); err != nil {
				return fmt.Errorf("betting_service: create position: %w", err)
			}
		} else {
			if err := s.positions.Update(ctx, pos); err != nil {
				return fmt.Errorf("betting_service: update position: %w", err)
			}
		}
		return s.logAudit(ctx, ev)
	})
	if err != nil {
		return 0, err
	}

	s.afterCommit(ctx, market, ev)
	s.logger.InfoContext(ctx, "betting_service: bet placed",
		slog.String("market", market.ID.String()),
		slog.Int64("amount", p.Amount),
		slog.Int64("shares", shares),
	)
	return shares, nil
}

// ResolveMarket settles the market on a winning outcome. Only the host may
// call it directly; a randomness-forced resolution may be overridden by the
// host while the dispute window is open, and is binding afterwards.
func (s *BettingService) ResolveMarket(ctx context.Context, now time.Time, p domain.ResolveMarketParams) error {
	market, err := s.getMarket(ctx, p.Market)
	if err != nil {
		return err
	}
	if market.Host != p.Caller {
		return domain.ErrUnauthorized
	}
	if int(p.WinningOutcome) >= len(market.Outcomes) {
		return domain.ErrInvalidOutcome
	}

	var resolution *domain.MarketResolution
	if r, err := s.resolutions.GetByMarket(ctx, market.ID); err == nil {
		resolution = &r
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("betting_service: get resolution: %w", err)
	}

	if market.Resolved {
		// Host override of a forced resolution, admitted only inside the
		// dispute window.
		if resolution == nil ||
			resolution.Status != domain.ResolutionForcedByRandomness ||
			now.Unix() >= resolution.DisputeEndTime {
			return domain.ErrAlreadyResolved
		}
	}

	w := p.WinningOutcome
	market.Resolved = true
	market.WinningOutcome = &w
	market.PayoutDenominator = market.Outcomes[w].TotalShares

	if resolution != nil {
		resolution.ProposedOutcome = &w
		resolution.Status = domain.ResolutionFinalized
	}

	ev := domain.Event{
		Kind:      domain.EventMarketResolved,
		Market:    market.ID,
		Actor:     p.Caller,
		Outcome:   &w,
		Timestamp: now.Unix(),
	}
	err = runTx(ctx, s.uow, func(ctx context.Context) error {
		if err := s.markets.Update(ctx, market); err != nil {
			return fmt.Errorf("betting_service: update market: %w", err)
		}
		if resolution != nil {
			if err := s.resolutions.Update(ctx, *resolution); err != nil {
				return fmt.Errorf("betting_service: update resolution: %w", err)
			}
		}
		return s.logAudit(ctx, ev)
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, market, ev)
	s.logger.InfoContext(ctx, "betting_service: market resolved",
		slog.String("market", market.ID.String()),
		slog.Int("outcome", int(w)),
	)
	return nil
}

// ClaimWinnings pays a bettor their pro-rata slice of the pool. Claims
// against a randomness-forced resolution wait out the dispute window.
func (s *BettingService) ClaimWinnings(ctx context.Context, now time.Time, p domain.ClaimWinningsParams) (int64, error) {
	market, err := s.getMarket(ctx, p.Market)
	if err != nil {
		return 0, err
	}
	if !market.Resolved || market.WinningOutcome == nil {
		return 0, domain.ErrMarketNotResolved
	}

	if r, err := s.resolutions.GetByMarket(ctx, market.ID); err == nil {
		if r.Status == domain.ResolutionForcedByRandomness && now.Unix() < r.DisputeEndTime {
			return 0, domain.ErrDisputeWindowOpen
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("betting_service: get resolution: %w", err)
	}

	pos, err := s.positions.GetByID(ctx, derive.Position(market.ID, p.Caller))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, domain.ErrNothingToClaim
		}
		return 0, fmt.Errorf("betting_service: lookup position: %w", err)
	}
	if pos.HasClaimed {
		return 0, domain.ErrAlreadyClaimed
	}

	w := *market.WinningOutcome
	shares := pos.SharesIn(w)
	if shares == 0 || market.PayoutDenominator == 0 {
		return 0, domain.ErrNothingToClaim
	}

	payout, err := fixedpoint.MulDiv(market.TotalPool, shares, market.PayoutDenominator)
	if err != nil {
		return 0, domain.ErrArithmeticOverflow
	}
	if payout == 0 {
		return 0, domain.ErrNothingToClaim
	}

	pos.HasClaimed = true
	pos.TotalReturned, err = fixedpoint.Add(pos.TotalReturned, payout)
	if err != nil {
		return 0, domain.ErrArithmeticOverflow
	}

	ev := domain.Event{
		Kind:      domain.EventWinningsClaimed,
		Market:    market.ID,
		Actor:     p.Caller,
		Amount:    payout,
		Timestamp: now.Unix(),
	}
	err = runTx(ctx, s.uow, func(ctx context.Context) error {
		if err := s.ledger.Transfer(ctx, market.Vault, p.Caller, payout); err != nil {
			return err
		}
		if err := s.positions.Update(ctx, pos); err != nil {
			return fmt.Errorf("betting_service: update position: %w", err)
		}
		return s.logAudit(ctx, ev)
	})
	if err != nil {
		return 0, err
	}

	s.afterCommit(ctx, market, ev)
	s.logger.InfoContext(ctx, "betting_service: winnings claimed",
		slog.String("market", market.ID.String()),
		slog.Int64("payout", payout),
	)
	return payout, nil
}

// GetMarket returns a market read view, cache first.
func (s *BettingService) GetMarket(ctx context.Context, id domain.ID) (domain.BettingMarket, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}
	market, err := s.getMarket(ctx, id)
	if err != nil {
		return domain.BettingMarket{}, err
	}
	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, market); cacheErr != nil {
			s.logger.WarnContext(ctx, "betting_service: cache set failed",
				slog.String("market", id.String()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return market, nil
}

// Probabilities returns the implied probability of each outcome, fixed-point
// at scale 10^6, from the persisted reserves.
func (s *BettingService) Probabilities(ctx context.Context, id domain.ID) ([]int64, error) {
	market, err := s.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	reserves := make([]int64, len(market.Outcomes))
	for i, o := range market.Outcomes {
		reserves[i] = o.LiquidityReserve
	}
	probs, err := lmsr.Probabilities(reserves)
	if err != nil {
		return nil, domain.ErrArithmeticOverflow
	}
	return probs, nil
}

// GetPosition returns the bettor's position in a market.
func (s *BettingService) GetPosition(ctx context.Context, market, bettor domain.ID) (domain.BettorPosition, error) {
	return s.positions.GetByID(ctx, derive.Position(market, bettor))
}

// applyPurchase folds a share purchase into the position record, maintaining
// the per-outcome average entry price.
func applyPurchase(pos *domain.BettorPosition, outcomeID uint8, shares, gross int64) error {
	var err error
	idx := -1
	for i, op := range pos.Positions {
		if op.OutcomeID == outcomeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		pos.Positions = append(pos.Positions, domain.OutcomePosition{OutcomeID: outcomeID})
		idx = len(pos.Positions) - 1
	}

	entry := &pos.Positions[idx]
	if entry.Shares, err = fixedpoint.Add(entry.Shares, shares); err != nil {
		return domain.ErrArithmeticOverflow
	}
	if entry.Invested, err = fixedpoint.Add(entry.Invested, gross); err != nil {
		return domain.ErrArithmeticOverflow
	}
	if entry.AvgEntryPrice, err = fixedpoint.MulDiv(entry.Invested, fixedpoint.Scale, entry.Shares); err != nil {
		return domain.ErrArithmeticOverflow
	}
	if pos.TotalInvested, err = fixedpoint.Add(pos.TotalInvested, gross); err != nil {
		return domain.ErrArithmeticOverflow
	}
	if pos.TotalInvested >= domain.ValidatorStakeRequirement {
		pos.IsEligibleValidator = true
	}
	return nil
}

func (s *BettingService) getMarket(ctx context.Context, id domain.ID) (domain.BettingMarket, error) {
	market, err := s.markets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.BettingMarket{}, domain.ErrNotFound
		}
		return domain.BettingMarket{}, fmt.Errorf("betting_service: get market %s: %w", id, err)
	}
	if derive.Market(market.Stream) != id {
		return domain.BettingMarket{}, domain.ErrAddressMismatch
	}
	return market, nil
}

func (s *BettingService) logAudit(ctx context.Context, ev domain.Event) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Log(ctx, ev); err != nil {
		return fmt.Errorf("betting_service: audit log: %w", err)
	}
	return nil
}

func (s *BettingService) afterCommit(ctx context.Context, market domain.BettingMarket, ev domain.Event) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, market.ID); err != nil {
			s.logger.WarnContext(ctx, "betting_service: cache invalidate failed",
				slog.String("market", market.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	s.pub.publish(ctx, ev)
}
