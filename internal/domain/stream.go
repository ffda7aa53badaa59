package domain

import "time"

// StreamStatus represents the lifecycle state of a stream.
type StreamStatus string

const (
	StreamStatusInitialized StreamStatus = "initialized"
	StreamStatusActive      StreamStatus = "active"
	StreamStatusEnded       StreamStatus = "ended"
	StreamStatusCancelled   StreamStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s StreamStatus) Terminal() bool {
	return s == StreamStatusEnded || s == StreamStatusCancelled
}

// StreamKind discriminates the stream type variants.
type StreamKind string

const (
	StreamKindPrepaid     StreamKind = "prepaid"
	StreamKindLive        StreamKind = "live"
	StreamKindConditional StreamKind = "conditional"
)

// StreamType is the tagged stream-type variant. Exactly the fields of the
// active variant are meaningful: MinDuration for prepaid; MinAmount and/or
// UnlockTime for conditional; nothing extra for live.
type StreamType struct {
	Kind        StreamKind `json:"kind"`
	MinDuration int64      `json:"min_duration,omitempty"` // prepaid: seconds between start and first distribution
	MinAmount   *int64     `json:"min_amount,omitempty"`   // conditional: aggregate deposit gate
	UnlockTime  *int64     `json:"unlock_time,omitempty"`  // conditional: wall-clock gate (unix seconds)
}

// Validate checks the variant's own parameters. now is the invocation clock.
func (t StreamType) Validate(now int64) error {
	switch t.Kind {
	case StreamKindPrepaid:
		if t.MinDuration <= 0 {
			return ErrInvalidStreamType
		}
	case StreamKindConditional:
		if t.MinAmount == nil && t.UnlockTime == nil {
			return ErrInvalidStreamType
		}
		if t.MinAmount != nil && *t.MinAmount <= 0 {
			return ErrInvalidAmount
		}
		if t.UnlockTime != nil && *t.UnlockTime <= now {
			return ErrInvalidTime
		}
	case StreamKindLive:
		// No additional parameters.
	default:
		return ErrInvalidStreamType
	}
	return nil
}

// Stream name length bounds in bytes.
const (
	MinStreamNameLen = 4
	MaxStreamNameLen = 32
)

// Stream is a named, time-bounded escrow record owned by a host. Its identity
// derives from ("stream", name, host); the escrow vault holds donor deposits
// until distribution or refund.
type Stream struct {
	ID               ID
	Host             ID
	Name             string
	Mint             ID
	Escrow           ID // escrow token-account identity, owned by the stream
	Type             StreamType
	Status           StreamStatus
	TotalDeposited   int64
	TotalDistributed int64
	StartTime        *int64 // unix seconds, set by StartStream
	EndTime          *int64
	CreatedAt        time.Time
}

// Available returns the escrow balance not yet distributed.
func (s *Stream) Available() int64 {
	return s.TotalDeposited - s.TotalDistributed
}

// DonorAccount is the per-(stream, donor) sub-ledger entry. Created on the
// donor's first deposit, updated on later deposits and refunds, never
// destroyed.
type DonorAccount struct {
	ID             ID
	Stream         ID
	Donor          ID
	Amount         int64 // outstanding contribution
	Refunded       bool  // true only once Amount has been driven to zero
	FirstDepositAt time.Time
}
