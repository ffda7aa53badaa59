package domain

import "time"

// MarketKind discriminates the market type variants.
type MarketKind string

const (
	MarketKindBinary   MarketKind = "binary"
	MarketKindMultiple MarketKind = "multiple"
	MarketKindScalar   MarketKind = "scalar"
)

// Maximum outcome count for multiple-outcome and scalar markets.
const MaxOutcomes = 8

// MarketType is the tagged market-type variant. Binary markets carry exactly
// two outcomes; multiple-outcome markets between 2 and MaxOutcomes; scalar
// markets bin a numeric range, one outcome per bin.
type MarketType struct {
	Kind       MarketKind `json:"kind"`
	LowerBound int64      `json:"lower_bound,omitempty"` // scalar only
	UpperBound int64      `json:"upper_bound,omitempty"` // scalar only
	BinCount   int        `json:"bin_count,omitempty"`   // scalar only
}

// ValidateOutcomes checks the outcome count against the variant.
func (t MarketType) ValidateOutcomes(n int) error {
	switch t.Kind {
	case MarketKindBinary:
		if n != 2 {
			return ErrInvalidMarketSetup
		}
	case MarketKindMultiple:
		if n < 2 || n > MaxOutcomes {
			return ErrInvalidMarketSetup
		}
	case MarketKindScalar:
		if t.BinCount != n || n < 2 || n > MaxOutcomes || t.UpperBound <= t.LowerBound {
			return ErrInvalidMarketSetup
		}
	default:
		return ErrInvalidMarketSetup
	}
	return nil
}

// MarketOutcome is one entry of a market's outcome vector.
type MarketOutcome struct {
	ID               uint8
	Description      string
	TotalShares      int64 // fixed-point, scale 10^6
	LiquidityReserve int64 // running exp(q_i/b) term, scale 10^6, for O(1) probability reads
	TotalBacking     int64 // cumulative net tokens paid in for this outcome
}

// Fee ceiling in basis points.
const MaxFeeBps = 10_000

// BettingMarket is the LMSR market attached to a stream. At most one market
// exists per stream; its identity derives from ("betting_market", stream).
type BettingMarket struct {
	ID                  ID
	Stream              ID
	Host                ID
	Mint                ID
	Vault               ID // market vault token-account identity
	Type                MarketType
	Outcomes            []MarketOutcome
	TotalPool           int64 // cumulative gross bet amount
	TotalLiquidity      int64 // LMSR liquidity parameter b, scale 10^6
	FeeBps              uint16
	ResolutionTime      int64 // betting closes and resolution becomes possible at this unix time
	Resolved            bool
	WinningOutcome      *uint8 // immutable once Resolved
	PayoutDenominator   int64  // winning outcome's TotalShares snapshot at resolution
	RandomnessRequested bool
	CreatedAt           time.Time
}

// OutcomeShares returns the outstanding share vector, index-aligned with
// Outcomes.
func (m *BettingMarket) OutcomeShares() []int64 {
	qs := make([]int64, len(m.Outcomes))
	for i, o := range m.Outcomes {
		qs[i] = o.TotalShares
	}
	return qs
}
