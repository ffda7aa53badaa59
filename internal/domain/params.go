package domain

// Binding protocol constants.
const (
	MinValidators             = 3
	MaxValidators             = 7
	ValidatorStakeRequirement = 10_000_000
	DisputeWindow             = 3600 // seconds
	ValidatorRewardBps        = 50
)

// Operation parameter records. Every public operation takes exactly one of
// these; there are no side-channel inputs. Caller is the signing identity the
// transaction envelope verified.

// InitializeParams creates a stream and its escrow vault.
type InitializeParams struct {
	Caller  ID
	Name    string
	Mint    ID
	Type    StreamType
	EndTime *int64
}

// StartStreamParams activates an initialized stream.
type StartStreamParams struct {
	Caller ID
	Stream ID
}

// DepositParams moves tokens from the donor into the stream escrow.
type DepositParams struct {
	Caller ID // the donor
	Stream ID
	Mint   ID // mint of the donor's token account; must match the stream
	Amount int64
}

// DistributeParams pays a recipient from the stream escrow.
type DistributeParams struct {
	Caller    ID // must be the host
	Stream    ID
	Recipient ID
	Amount    int64
}

// RefundParams returns escrowed tokens to a donor.
type RefundParams struct {
	Caller ID // host or the donor themselves
	Stream ID
	Donor  ID
	Mint   ID
	Amount int64
}

// UpdateStreamParams lets the host adjust end time or force a terminal
// status.
type UpdateStreamParams struct {
	Caller    ID
	Stream    ID
	NewEnd    *int64
	NewStatus *StreamStatus
}

// CompleteStreamParams ends an active, started stream.
type CompleteStreamParams struct {
	Caller ID
	Stream ID
}

// InitializeMarketParams attaches a betting market to a stream.
type InitializeMarketParams struct {
	Caller         ID // must be the stream host
	Stream         ID
	Mint           ID
	Type           MarketType
	Outcomes       []string
	ResolutionTime int64
	Liquidity      int64 // LMSR b, scale 10^6
	FeeBps         uint16
}

// PlaceBetParams buys shares in one outcome.
type PlaceBetParams struct {
	Caller    ID // the bettor
	Market    ID
	Mint      ID
	OutcomeID uint8
	Amount    int64 // gross tokens paid, fee included
	MinShares int64 // slippage floor
}

// RequestRandomnessParams dispatches an oracle request for the market.
type RequestRandomnessParams struct {
	Caller             ID
	Market             ID
	UseCase            RandomnessUseCase
	ClientSeed         Seed
	EligibleValidators []EligibleValidator
}

// ResolveMarketParams settles the market on a winning outcome.
type ResolveMarketParams struct {
	Caller         ID // host, or the coordinator acting on a verified callback
	Market         ID
	WinningOutcome uint8
}

// ClaimWinningsParams pays out a bettor's winning position.
type ClaimWinningsParams struct {
	Caller ID // the bettor
	Market ID
}

// ValidatorVoteParams records a selected validator's vote.
type ValidatorVoteParams struct {
	Caller  ID // the validator
	Market  ID
	Outcome uint8
}
