package service

import (
	"context"
	"errors"
	"testing"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/derive"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/oracle"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/token"
)

type resolutionFixture struct {
	svc         *ResolutionService
	betting     *BettingService
	markets     *stubMarketStore
	positions   *stubPositionStore
	resolutions *stubResolutionStore
	requester   *oracle.MemoryRequester
	ledger      *token.MemoryLedger
	streams     *stubStreamStore
}

func newResolutionFixture() *resolutionFixture {
	streams := newStubStreamStore()
	markets := newStubMarketStore()
	positions := newStubPositionStore()
	resolutions := newStubResolutionStore()
	requester := oracle.NewMemoryRequester()
	ledger := token.NewMemoryLedger()
	audit := newStubAuditStore()

	svc := NewResolutionService(
		markets, positions, resolutions, requester, nil,
		nil, audit, nil, nil, testLogger(),
	)
	betting := NewBettingService(
		streams, markets, positions, resolutions, ledger,
		nil, audit, nil, nil, testLogger(),
	)
	return &resolutionFixture{
		svc: svc, betting: betting, markets: markets, positions: positions,
		resolutions: resolutions, requester: requester, ledger: ledger, streams: streams,
	}
}

func (f *resolutionFixture) seedMarket(t *testing.T) domain.BettingMarket {
	t.Helper()
	name := "res-stream"
	id, err := derive.Stream(name, host)
	if err != nil {
		t.Fatalf("derive stream: %v", err)
	}
	start := int64(10)
	stream := domain.Stream{
		ID:        id,
		Host:      host,
		Name:      name,
		Mint:      mint,
		Escrow:    derive.Escrow(id),
		Type:      domain.StreamType{Kind: domain.StreamKindLive},
		Status:    domain.StreamStatusActive,
		StartTime: &start,
	}
	if err := f.streams.Create(context.Background(), stream); err != nil {
		t.Fatalf("seed stream: %v", err)
	}
	market, err := f.betting.InitializeMarket(context.Background(), at(100), domain.InitializeMarketParams{
		Caller:         host,
		Stream:         stream.ID,
		Mint:           mint,
		Type:           domain.MarketType{Kind: domain.MarketKindBinary},
		Outcomes:       []string{"A", "B"},
		ResolutionTime: 1_000,
		Liquidity:      liquidityB,
		FeeBps:         0,
	})
	if err != nil {
		t.Fatalf("initialize market: %v", err)
	}
	return market
}

func eligibleSet(stakes map[string]int64) []domain.EligibleValidator {
	out := make([]domain.EligibleValidator, 0, len(stakes))
	for label, stake := range stakes {
		out = append(out, domain.EligibleValidator{Validator: actorID(label), Stake: stake})
	}
	return out
}

func TestRequestRandomnessValidatorSelection(t *testing.T) {
	f := newResolutionFixture()
	ctx := context.Background()
	market := f.seedMarket(t)

	eligible := eligibleSet(map[string]int64{
		"val-1": 20_000_000, "val-2": 15_000_000, "val-3": 12_000_000, "val-4": 30_000_000,
	})

	// Not before the resolution deadline.
	if _, err := f.svc.RequestRandomness(ctx, at(500), domain.RequestRandomnessParams{
		Caller: host, Market: market.ID,
		UseCase:            domain.UseCaseValidatorSelection,
		EligibleValidators: eligible,
	}); !errors.Is(err, domain.ErrMarketNotReady) {
		t.Fatalf("early request: err=%v want=%v", err, domain.ErrMarketNotReady)
	}

	// Not without candidates.
	if _, err := f.svc.RequestRandomness(ctx, at(1_000), domain.RequestRandomnessParams{
		Caller: host, Market: market.ID,
		UseCase: domain.UseCaseValidatorSelection,
	}); !errors.Is(err, domain.ErrInsufficientValidators) {
		t.Fatalf("empty eligible set: err=%v want=%v", err, domain.ErrInsufficientValidators)
	}

	// Host-only.
	if _, err := f.svc.RequestRandomness(ctx, at(1_000), domain.RequestRandomnessParams{
		Caller: donor, Market: market.ID,
		UseCase:            domain.UseCaseValidatorSelection,
		EligibleValidators: eligible,
	}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-host request: err=%v want=%v", err, domain.ErrUnauthorized)
	}

	requestID, err := f.svc.RequestRandomness(ctx, at(1_000), domain.RequestRandomnessParams{
		Caller: host, Market: market.ID,
		UseCase:            domain.UseCaseValidatorSelection,
		EligibleValidators: eligible,
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	m, _ := f.markets.GetByID(ctx, market.ID)
	if !m.RandomnessRequested {
		t.Error("market should be flagged randomness_requested")
	}
	pending := f.requester.Pending()
	if len(pending) != 1 || pending[0].RequestID != requestID || pending[0].Target != market.ID {
		t.Fatalf("pending=%v want one request %s", pending, requestID)
	}

	// Callback selects validators and opens validation.
	var seed domain.Seed
	seed[0] = 7
	if err := f.svc.HandleCallback(ctx, at(1_010), requestID, seed, nil); err != nil {
		t.Fatalf("callback: %v", err)
	}

	res, _ := f.resolutions.GetByMarket(ctx, market.ID)
	if res.Status != domain.ResolutionUnderValidation {
		t.Errorf("status=%s want=%s", res.Status, domain.ResolutionUnderValidation)
	}
	if len(res.Validators) != 4 {
		t.Errorf("selected %d validators, want 4 (all eligible, below max)", len(res.Validators))
	}
	if res.DisputeEndTime != 1_010+domain.DisputeWindow {
		t.Errorf("dispute_end=%d want=%d", res.DisputeEndTime, 1_010+domain.DisputeWindow)
	}

	// The same callback cannot be consumed twice.
	if err := f.svc.HandleCallback(ctx, at(1_011), requestID, seed, nil); !errors.Is(err, domain.ErrInvalidResolutionState) {
		t.Errorf("replayed callback: err=%v want=%v", err, domain.ErrInvalidResolutionState)
	}
}

func TestCallbackOutcomeSeeding(t *testing.T) {
	f := newResolutionFixture()
	ctx := context.Background()
	market := f.seedMarket(t)

	requestID, err := f.svc.RequestRandomness(ctx, at(900), domain.RequestRandomnessParams{
		Caller: host, Market: market.ID,
		UseCase: domain.UseCaseOutcomeSeeding,
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	var seed domain.Seed
	seed[7] = 3 // big-endian uint64 of first 8 bytes = 3, 3 % 2 outcomes = 1
	if err := f.svc.HandleCallback(ctx, at(950), requestID, seed, nil); err != nil {
		t.Fatalf("callback: %v", err)
	}

	m, _ := f.markets.GetByID(ctx, market.ID)
	if !m.Resolved || m.WinningOutcome == nil || *m.WinningOutcome != 1 {
		t.Fatalf("market resolved=%v winning=%v want outcome 1", m.Resolved, m.WinningOutcome)
	}
	res, _ := f.resolutions.GetByMarket(ctx, market.ID)
	if res.Status != domain.ResolutionForcedByRandomness {
		t.Errorf("status=%s want=%s", res.Status, domain.ResolutionForcedByRandomness)
	}
}

func TestCallbackUnknownRequest(t *testing.T) {
	f := newResolutionFixture()
	var seed domain.Seed
	err := f.svc.HandleCallback(context.Background(), at(100), "no-such-request", seed, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown request: err=%v want=%v", err, domain.ErrNotFound)
	}
}

func TestValidatorVotingConsensus(t *testing.T) {
	f := newResolutionFixture()
	ctx := context.Background()
	market := f.seedMarket(t)

	// Give each validator a qualifying position.
	validators := []string{"val-1", "val-2", "val-3"}
	for _, label := range validators {
		v := actorID(label)
		f.ledger.Mint(v, 20_000_000)
		if _, err := f.betting.PlaceBet(ctx, at(200), domain.PlaceBetParams{
			Caller: v, Market: market.ID, Mint: mint, OutcomeID: 0, Amount: 20_000_000,
		}); err != nil {
			t.Fatalf("stake bet %s: %v", label, err)
		}
	}

	eligible := eligibleSet(map[string]int64{
		"val-1": 20_000_000, "val-2": 20_000_000, "val-3": 20_000_000,
	})
	requestID, err := f.svc.RequestRandomness(ctx, at(1_000), domain.RequestRandomnessParams{
		Caller: host, Market: market.ID,
		UseCase:            domain.UseCaseValidatorSelection,
		EligibleValidators: eligible,
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var seed domain.Seed
	seed[3] = 9
	if err := f.svc.HandleCallback(ctx, at(1_001), requestID, seed, nil); err != nil {
		t.Fatalf("callback: %v", err)
	}

	// An unselected actor may not vote.
	if err := f.svc.ValidatorVote(ctx, at(1_002), domain.ValidatorVoteParams{
		Caller: actorID("stranger"), Market: market.ID, Outcome: 0,
	}); !errors.Is(err, domain.ErrNotValidator) {
		t.Fatalf("stranger vote: err=%v want=%v", err, domain.ErrNotValidator)
	}

	// Two matching votes out of three validators reach 2/3 stake consensus.
	if err := f.svc.ValidatorVote(ctx, at(1_003), domain.ValidatorVoteParams{
		Caller: actorID("val-1"), Market: market.ID, Outcome: 0,
	}); err != nil {
		t.Fatalf("vote 1: %v", err)
	}

	// Double vote rejected.
	if err := f.svc.ValidatorVote(ctx, at(1_004), domain.ValidatorVoteParams{
		Caller: actorID("val-1"), Market: market.ID, Outcome: 0,
	}); !errors.Is(err, domain.ErrAlreadyVoted) {
		t.Fatalf("double vote: err=%v want=%v", err, domain.ErrAlreadyVoted)
	}

	if err := f.svc.ValidatorVote(ctx, at(1_005), domain.ValidatorVoteParams{
		Caller: actorID("val-2"), Market: market.ID, Outcome: 0,
	}); err != nil {
		t.Fatalf("vote 2: %v", err)
	}

	res, _ := f.resolutions.GetByMarket(ctx, market.ID)
	if res.Status != domain.ResolutionFinalized {
		t.Fatalf("status=%s want=%s after consensus", res.Status, domain.ResolutionFinalized)
	}
	if res.ProposedOutcome == nil || *res.ProposedOutcome != 0 {
		t.Fatalf("proposed=%v want outcome 0", res.ProposedOutcome)
	}

	// Voting is closed once finalized.
	if err := f.svc.ValidatorVote(ctx, at(1_006), domain.ValidatorVoteParams{
		Caller: actorID("val-3"), Market: market.ID, Outcome: 1,
	}); !errors.Is(err, domain.ErrInvalidResolutionState) {
		t.Fatalf("vote after finalize: err=%v want=%v", err, domain.ErrInvalidResolutionState)
	}
}
