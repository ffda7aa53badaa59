package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/derive"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
	"github.com/VidbloqHQ/bookish-octo-doodle/internal/token"
)

type streamFixture struct {
	svc     *StreamService
	streams *stubStreamStore
	donors  *stubDonorStore
	ledger  *token.MemoryLedger
	audit   *stubAuditStore
}

func newStreamFixture() *streamFixture {
	streams := newStubStreamStore()
	donors := newStubDonorStore()
	ledger := token.NewMemoryLedger()
	audit := newStubAuditStore()
	svc := NewStreamService(streams, donors, ledger, nil, audit, nil, nil, testLogger())
	return &streamFixture{svc: svc, streams: streams, donors: donors, ledger: ledger, audit: audit}
}

func at(unix int64) time.Time {
	return time.Unix(unix, 0).UTC()
}

var (
	host  = actorID("host")
	mint  = actorID("usdc")
	donor = actorID("donor-1")
)

func (f *streamFixture) initStream(t *testing.T, name string, st domain.StreamType, now int64) domain.Stream {
	t.Helper()
	stream, err := f.svc.Initialize(context.Background(), at(now), domain.InitializeParams{
		Caller: host,
		Name:   name,
		Mint:   mint,
		Type:   st,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return stream
}

func TestInitializeNameBounds(t *testing.T) {
	f := newStreamFixture()

	cases := []struct {
		name    string
		wantErr error
	}{
		{"abc", domain.ErrInvalidStreamName},
		{"abcd", nil},
		{"abcdefghijklmnopqrstuvwxyz012345", nil},                       // 32 bytes
		{"abcdefghijklmnopqrstuvwxyz0123456", domain.ErrInvalidStreamName}, // 33 bytes
	}
	for _, tc := range cases {
		_, err := f.svc.Initialize(context.Background(), at(10), domain.InitializeParams{
			Caller: host,
			Name:   tc.name,
			Mint:   mint,
			Type:   domain.StreamType{Kind: domain.StreamKindLive},
		})
		if !errors.Is(err, tc.wantErr) {
			t.Errorf("name %q (%d bytes): err=%v want=%v", tc.name, len(tc.name), err, tc.wantErr)
		}
	}
}

func TestInitializeTypeValidation(t *testing.T) {
	f := newStreamFixture()

	if _, err := f.svc.Initialize(context.Background(), at(10), domain.InitializeParams{
		Caller: host, Name: "badprepaid", Mint: mint,
		Type: domain.StreamType{Kind: domain.StreamKindPrepaid, MinDuration: 0},
	}); !errors.Is(err, domain.ErrInvalidStreamType) {
		t.Errorf("prepaid min_duration=0: err=%v want=%v", err, domain.ErrInvalidStreamType)
	}

	if _, err := f.svc.Initialize(context.Background(), at(10), domain.InitializeParams{
		Caller: host, Name: "badcond", Mint: mint,
		Type: domain.StreamType{Kind: domain.StreamKindConditional},
	}); !errors.Is(err, domain.ErrInvalidStreamType) {
		t.Errorf("conditional with no gate: err=%v want=%v", err, domain.ErrInvalidStreamType)
	}

	f.initStream(t, "goodname", domain.StreamType{Kind: domain.StreamKindLive}, 10)
	if _, err := f.svc.Initialize(context.Background(), at(11), domain.InitializeParams{
		Caller: host, Name: "goodname", Mint: mint,
		Type: domain.StreamType{Kind: domain.StreamKindLive},
	}); !errors.Is(err, domain.ErrAlreadyInitialized) {
		t.Errorf("double initialize: err=%v want=%v", err, domain.ErrAlreadyInitialized)
	}
}

// Prepaid lifecycle: deposit, start at t=100 with min_duration=5, distribute
// fails at t=101 and succeeds at t=106.
func TestPrepaidLifecycle(t *testing.T) {
	f := newStreamFixture()
	ctx := context.Background()
	f.ledger.Mint(donor, 10_000_000)

	stream := f.initStream(t, "prepaid-s", domain.StreamType{Kind: domain.StreamKindPrepaid, MinDuration: 5}, 50)

	if err := f.svc.Deposit(ctx, at(60), domain.DepositParams{
		Caller: donor, Stream: stream.ID, Mint: mint, Amount: 5_000_000,
	}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := f.svc.StartStream(ctx, at(100), domain.StartStreamParams{Caller: host, Stream: stream.ID}); err != nil {
		t.Fatalf("start: %v", err)
	}

	recipient := actorID("recipient")
	err := f.svc.Distribute(ctx, at(101), domain.DistributeParams{
		Caller: host, Stream: stream.ID, Recipient: recipient, Amount: 1000,
	})
	if !errors.Is(err, domain.ErrDurationNotMet) {
		t.Fatalf("distribute at t=101: err=%v want=%v", err, domain.ErrDurationNotMet)
	}

	if err := f.svc.Distribute(ctx, at(106), domain.DistributeParams{
		Caller: host, Stream: stream.ID, Recipient: recipient, Amount: 1000,
	}); err != nil {
		t.Fatalf("distribute at t=106: %v", err)
	}

	got, err := f.svc.GetStream(ctx, stream.ID)
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	if got.TotalDistributed != 1000 {
		t.Errorf("total_distributed=%d want=1000", got.TotalDistributed)
	}
	if bal, _ := f.ledger.Balance(ctx, recipient); bal != 1000 {
		t.Errorf("recipient balance=%d want=1000", bal)
	}
}

// Conditional unlock by time only: distribute fails before the unlock
// timestamp and succeeds after it.
func TestConditionalUnlockByTime(t *testing.T) {
	f := newStreamFixture()
	ctx := context.Background()
	f.ledger.Mint(donor, 10_000_000)

	t0 := int64(1000)
	unlock := t0 + 2
	stream := f.initStream(t, "cond-time", domain.StreamType{
		Kind:       domain.StreamKindConditional,
		UnlockTime: &unlock,
	}, t0)

	if err := f.svc.StartStream(ctx, at(t0), domain.StartStreamParams{Caller: host, Stream: stream.ID}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.svc.Deposit(ctx, at(t0), domain.DepositParams{
		Caller: donor, Stream: stream.ID, Mint: mint, Amount: 5_000_000,
	}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	recipient := actorID("recipient")
	err := f.svc.Distribute(ctx, at(t0+1), domain.DistributeParams{
		Caller: host, Stream: stream.ID, Recipient: recipient, Amount: 1500,
	})
	if !errors.Is(err, domain.ErrConditionsNotMet) {
		t.Fatalf("distribute before unlock: err=%v want=%v", err, domain.ErrConditionsNotMet)
	}

	if err := f.svc.Distribute(ctx, at(t0+3), domain.DistributeParams{
		Caller: host, Stream: stream.ID, Recipient: recipient, Amount: 1500,
	}); err != nil {
		t.Fatalf("distribute after unlock: %v", err)
	}
}

// Partial refund then full refund flips the refunded flag exactly at zero.
func TestPartialThenFullRefund(t *testing.T) {
	f := newStreamFixture()
	ctx := context.Background()
	f.ledger.Mint(donor, 5_000_000)

	stream := f.initStream(t, "refundable", domain.StreamType{Kind: domain.StreamKindPrepaid, MinDuration: 10}, 10)
	if err := f.svc.Deposit(ctx, at(20), domain.DepositParams{
		Caller: donor, Stream: stream.ID, Mint: mint, Amount: 5_000_000,
	}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Host-initiated partial refund.
	if err := f.svc.Refund(ctx, at(30), domain.RefundParams{
		Caller: host, Stream: stream.ID, Donor: donor, Mint: mint, Amount: 2_000,
	}); err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	d, err := f.svc.GetDonor(ctx, stream.ID, donor)
	if err != nil {
		t.Fatalf("get donor: %v", err)
	}
	if d.Amount != 4_998_000 || d.Refunded {
		t.Fatalf("after partial refund: amount=%d refunded=%v want amount=4998000 refunded=false", d.Amount, d.Refunded)
	}

	// Donor-initiated full refund of the remainder.
	if err := f.svc.Refund(ctx, at(31), domain.RefundParams{
		Caller: donor, Stream: stream.ID, Donor: donor, Mint: mint, Amount: 4_998_000,
	}); err != nil {
		t.Fatalf("full refund: %v", err)
	}
	d, _ = f.svc.GetDonor(ctx, stream.ID, donor)
	if d.Amount != 0 || !d.Refunded {
		t.Fatalf("after full refund: amount=%d refunded=%v want amount=0 refunded=true", d.Amount, d.Refunded)
	}

	err = f.svc.Refund(ctx, at(32), domain.RefundParams{
		Caller: donor, Stream: stream.ID, Donor: donor, Mint: mint, Amount: 1_000,
	})
	if !errors.Is(err, domain.ErrAlreadyRefunded) {
		t.Fatalf("refund after full refund: err=%v want=%v", err, domain.ErrAlreadyRefunded)
	}

	// Round trip: ledger is back to the pre-deposit state.
	if bal, _ := f.ledger.Balance(ctx, donor); bal != 5_000_000 {
		t.Errorf("donor balance=%d want=5000000", bal)
	}
	got, _ := f.svc.GetStream(ctx, stream.ID)
	if got.TotalDeposited != 0 {
		t.Errorf("total_deposited=%d want=0", got.TotalDeposited)
	}
}

// Multi-donor distribute draws from the aggregate escrow without charging
// individual donors.
func TestMultiDonorDistribute(t *testing.T) {
	f := newStreamFixture()
	ctx := context.Background()

	stream := f.initStream(t, "live-pool", domain.StreamType{Kind: domain.StreamKindLive}, 10)
	if err := f.svc.StartStream(ctx, at(20), domain.StartStreamParams{Caller: host, Stream: stream.ID}); err != nil {
		t.Fatalf("start: %v", err)
	}

	amounts := map[string]int64{"d1": 1_000_000, "d2": 2_000_000, "d3": 3_000_000}
	for label, amount := range amounts {
		d := actorID(label)
		f.ledger.Mint(d, amount)
		if err := f.svc.Deposit(ctx, at(30), domain.DepositParams{
			Caller: d, Stream: stream.ID, Mint: mint, Amount: amount,
		}); err != nil {
			t.Fatalf("deposit %s: %v", label, err)
		}
	}

	got, _ := f.svc.GetStream(ctx, stream.ID)
	if got.TotalDeposited != 6_000_000 {
		t.Fatalf("total_deposited=%d want=6000000", got.TotalDeposited)
	}

	if err := f.svc.Distribute(ctx, at(40), domain.DistributeParams{
		Caller: host, Stream: stream.ID, Recipient: actorID("recipient"), Amount: 3_000_000,
	}); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	got, _ = f.svc.GetStream(ctx, stream.ID)
	if got.TotalDistributed != 3_000_000 {
		t.Errorf("total_distributed=%d want=3000000", got.TotalDistributed)
	}
	for label, amount := range amounts {
		d, err := f.svc.GetDonor(ctx, stream.ID, actorID(label))
		if err != nil {
			t.Fatalf("get donor %s: %v", label, err)
		}
		if d.Amount != amount {
			t.Errorf("donor %s amount=%d want=%d (distributions must not charge donors)", label, d.Amount, amount)
		}
	}

	// Conservation: distributions do not charge donors, so donor amounts +
	// distributed == deposited + the 3_000_000 distributed above.
	donors, _ := f.svc.ListDonors(ctx, stream.ID, domain.ListOpts{})
	var sum int64
	for _, d := range donors {
		sum += d.Amount
	}
	if sum+got.TotalDistributed != got.TotalDeposited+3_000_000 {
		t.Errorf("conservation violated: donors=%d distributed=%d deposited=%d",
			sum, got.TotalDistributed, got.TotalDeposited)
	}
}

func TestDistributeBoundaries(t *testing.T) {
	f := newStreamFixture()
	ctx := context.Background()
	f.ledger.Mint(donor, 5_000_000)

	stream := f.initStream(t, "bounds", domain.StreamType{Kind: domain.StreamKindLive}, 10)
	if err := f.svc.StartStream(ctx, at(20), domain.StartStreamParams{Caller: host, Stream: stream.ID}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.svc.Deposit(ctx, at(21), domain.DepositParams{
		Caller: donor, Stream: stream.ID, Mint: mint, Amount: 5_000_000,
	}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Depositing zero fails.
	if err := f.svc.Deposit(ctx, at(22), domain.DepositParams{
		Caller: donor, Stream: stream.ID, Mint: mint, Amount: 0,
	}); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("deposit 0: err=%v want=%v", err, domain.ErrInvalidAmount)
	}

	// Mint mismatch.
	if err := f.svc.Deposit(ctx, at(22), domain.DepositParams{
		Caller: donor, Stream: stream.ID, Mint: actorID("other-mint"), Amount: 1,
	}); !errors.Is(err, domain.ErrMintMismatch) {
		t.Errorf("deposit wrong mint: err=%v want=%v", err, domain.ErrMintMismatch)
	}

	// Distributing exactly the available balance succeeds; one more fails.
	recipient := actorID("recipient")
	if err := f.svc.Distribute(ctx, at(23), domain.DistributeParams{
		Caller: host, Stream: stream.ID, Recipient: recipient, Amount: 5_000_000,
	}); err != nil {
		t.Fatalf("distribute full balance: %v", err)
	}
	if err := f.svc.Distribute(ctx, at(24), domain.DistributeParams{
		Caller: host, Stream: stream.ID, Recipient: recipient, Amount: 1,
	}); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("distribute past balance: err=%v want=%v", err, domain.ErrInsufficientFunds)
	}

	// Non-host distribution is rejected.
	if err := f.svc.Distribute(ctx, at(25), domain.DistributeParams{
		Caller: donor, Stream: stream.ID, Recipient: recipient, Amount: 1,
	}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("donor distribute: err=%v want=%v", err, domain.ErrUnauthorized)
	}
}

func TestLiveDepositRequiresActive(t *testing.T) {
	f := newStreamFixture()
	ctx := context.Background()
	f.ledger.Mint(donor, 1_000)

	stream := f.initStream(t, "live-gate", domain.StreamType{Kind: domain.StreamKindLive}, 10)
	err := f.svc.Deposit(ctx, at(11), domain.DepositParams{
		Caller: donor, Stream: stream.ID, Mint: mint, Amount: 1_000,
	})
	if !errors.Is(err, domain.ErrDepositNotAllowed) {
		t.Fatalf("live deposit before start: err=%v want=%v", err, domain.ErrDepositNotAllowed)
	}
}

func TestStatusTransitions(t *testing.T) {
	f := newStreamFixture()
	ctx := context.Background()

	stream := f.initStream(t, "machine", domain.StreamType{Kind: domain.StreamKindLive}, 10)

	// Start from Initialized.
	if err := f.svc.StartStream(ctx, at(20), domain.StartStreamParams{Caller: host, Stream: stream.ID}); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Second start fails.
	if err := f.svc.StartStream(ctx, at(21), domain.StartStreamParams{Caller: host, Stream: stream.ID}); !errors.Is(err, domain.ErrStreamAlreadyStarted) {
		t.Errorf("double start: err=%v want=%v", err, domain.ErrStreamAlreadyStarted)
	}

	// Complete from Active.
	if err := f.svc.CompleteStream(ctx, at(30), domain.CompleteStreamParams{Caller: host, Stream: stream.ID}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ := f.svc.GetStream(ctx, stream.ID)
	if got.Status != domain.StreamStatusEnded || got.EndTime == nil || *got.EndTime != 30 {
		t.Errorf("after complete: status=%s end=%v", got.Status, got.EndTime)
	}

	// Terminal states admit no transitions.
	cancelled := domain.StreamStatusCancelled
	if err := f.svc.UpdateStream(ctx, at(31), domain.UpdateStreamParams{
		Caller: host, Stream: stream.ID, NewStatus: &cancelled,
	}); !errors.Is(err, domain.ErrStreamAlreadyEnded) {
		t.Errorf("update after end: err=%v want=%v", err, domain.ErrStreamAlreadyEnded)
	}
	if err := f.svc.StartStream(ctx, at(32), domain.StartStreamParams{Caller: host, Stream: stream.ID}); !errors.Is(err, domain.ErrStreamAlreadyEnded) {
		t.Errorf("start after end: err=%v want=%v", err, domain.ErrStreamAlreadyEnded)
	}

	// Initialized -> Cancelled via update.
	stream2 := f.initStream(t, "cancel-me", domain.StreamType{Kind: domain.StreamKindLive}, 10)
	if err := f.svc.UpdateStream(ctx, at(40), domain.UpdateStreamParams{
		Caller: host, Stream: stream2.ID, NewStatus: &cancelled,
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Update to a non-terminal target is rejected.
	stream3 := f.initStream(t, "bad-target", domain.StreamType{Kind: domain.StreamKindLive}, 10)
	active := domain.StreamStatusActive
	if err := f.svc.UpdateStream(ctx, at(41), domain.UpdateStreamParams{
		Caller: host, Stream: stream3.ID, NewStatus: &active,
	}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("update to active: err=%v want=%v", err, domain.ErrInvalidTransition)
	}
}

func TestRefundBlockedAfterEnd(t *testing.T) {
	f := newStreamFixture()
	ctx := context.Background()
	f.ledger.Mint(donor, 1_000)

	stream := f.initStream(t, "ends-fast", domain.StreamType{Kind: domain.StreamKindPrepaid, MinDuration: 1}, 10)
	if err := f.svc.Deposit(ctx, at(11), domain.DepositParams{
		Caller: donor, Stream: stream.ID, Mint: mint, Amount: 1_000,
	}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.svc.StartStream(ctx, at(12), domain.StartStreamParams{Caller: host, Stream: stream.ID}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.svc.CompleteStream(ctx, at(20), domain.CompleteStreamParams{Caller: host, Stream: stream.ID}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	err := f.svc.Refund(ctx, at(21), domain.RefundParams{
		Caller: donor, Stream: stream.ID, Donor: donor, Mint: mint, Amount: 1_000,
	})
	if !errors.Is(err, domain.ErrStreamAlreadyEnded) {
		t.Fatalf("refund after end: err=%v want=%v", err, domain.ErrStreamAlreadyEnded)
	}
}

func TestFreshnessCheck(t *testing.T) {
	f := newStreamFixture()
	ctx := context.Background()

	// A record stored under an identity that does not re-derive is rejected.
	forged := domain.Stream{
		ID:     actorID("forged-id"),
		Host:   host,
		Name:   "some-name",
		Mint:   mint,
		Escrow: derive.Escrow(actorID("forged-id")),
		Type:   domain.StreamType{Kind: domain.StreamKindLive},
		Status: domain.StreamStatusActive,
	}
	if err := f.streams.Create(ctx, forged); err != nil {
		t.Fatalf("create forged: %v", err)
	}
	_, err := f.svc.GetStream(ctx, forged.ID)
	if !errors.Is(err, domain.ErrAddressMismatch) {
		t.Fatalf("forged identity: err=%v want=%v", err, domain.ErrAddressMismatch)
	}
}

func TestDepositInsufficientFunds(t *testing.T) {
	f := newStreamFixture()
	ctx := context.Background()

	stream := f.initStream(t, "broke-donor", domain.StreamType{Kind: domain.StreamKindPrepaid, MinDuration: 5}, 10)
	err := f.svc.Deposit(ctx, at(11), domain.DepositParams{
		Caller: donor, Stream: stream.ID, Mint: mint, Amount: 1_000,
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("deposit without balance: err=%v want=%v", err, domain.ErrInsufficientFunds)
	}
	// The failed operation left no donor record behind.
	if _, err := f.svc.GetDonor(ctx, stream.ID, donor); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("donor record after failed deposit: err=%v want=%v", err, domain.ErrNotFound)
	}
}
