package domain

import "time"

// OutcomePosition is a bettor's holding in a single outcome.
type OutcomePosition struct {
	OutcomeID     uint8
	Shares        int64
	AvgEntryPrice int64 // gross amount per share, scale 10^6
	Invested      int64 // gross amount paid toward this outcome
}

// BettorPosition is the per-(market, bettor) position record. Its identity
// derives from ("bettor_position", market, bettor).
type BettorPosition struct {
	ID                  ID
	Bettor              ID
	Market              ID
	Positions           []OutcomePosition
	TotalInvested       int64 // sum of gross amounts paid
	TotalReturned       int64
	HasClaimed          bool
	IsEligibleValidator bool // TotalInvested crossed the validator stake requirement
	CreatedAt           time.Time
}

// SharesIn returns the bettor's share count in the given outcome.
func (p *BettorPosition) SharesIn(outcomeID uint8) int64 {
	for _, op := range p.Positions {
		if op.OutcomeID == outcomeID {
			return op.Shares
		}
	}
	return 0
}
