package domain

import "errors"

// The engine's failure conditions form a closed set. Operations return these
// sentinels verbatim; callers match with errors.Is. Every failure aborts the
// operation atomically -- no partial mutations, no token moves.
var (
	// Authorization
	ErrUnauthorized = errors.New("unauthorized")
	ErrMintMismatch = errors.New("mint mismatch")

	// State
	ErrStreamAlreadyStarted = errors.New("stream already started")
	ErrStreamNotStarted     = errors.New("stream not started")
	ErrStreamNotActive      = errors.New("stream not active")
	ErrStreamAlreadyEnded   = errors.New("stream already ended")
	ErrAlreadyRefunded      = errors.New("donor already refunded")
	ErrAlreadyResolved      = errors.New("market already resolved")
	ErrMarketNotResolved    = errors.New("market not resolved")
	ErrMarketExpired        = errors.New("market expired")
	ErrMarketResolved       = errors.New("market resolved")
	ErrMarketNotReady       = errors.New("market not ready for resolution")
	ErrDisputeWindowOpen    = errors.New("dispute window still open")

	// Input validation
	ErrInvalidStreamName  = errors.New("invalid stream name")
	ErrInvalidStreamType  = errors.New("invalid stream type")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidOutcome     = errors.New("invalid outcome")
	ErrInvalidMarketSetup = errors.New("invalid market setup")
	ErrInvalidFee         = errors.New("invalid fee percentage")
	ErrInvalidTime        = errors.New("invalid time")
	ErrDepositNotAllowed  = errors.New("deposit not allowed")
	ErrAddressMismatch    = errors.New("derived address mismatch")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrInvalidTransition  = errors.New("invalid status transition")

	// Business rules
	ErrDurationNotMet         = errors.New("duration not met")
	ErrConditionsNotMet       = errors.New("conditions not met")
	ErrSlippageExceeded       = errors.New("slippage exceeded")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrNothingToClaim         = errors.New("nothing to claim")
	ErrAlreadyClaimed         = errors.New("already claimed")
	ErrInsufficientValidators = errors.New("insufficient validators")
	ErrInvalidResolutionState = errors.New("invalid resolution state")
	ErrNotValidator           = errors.New("not a selected validator")
	ErrInsufficientStake      = errors.New("insufficient stake for validation")
	ErrAlreadyVoted           = errors.New("already voted")

	// Arithmetic
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// Storage
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)
