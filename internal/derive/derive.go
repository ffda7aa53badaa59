// Package derive computes the deterministic 32-byte identities of persistent
// records. Each identity is BLAKE2b-256 over the program identity and a seed
// tuple; the same tuple always yields the same identity, and the derivation
// is the authority for record ownership -- callers supplying an identity that
// fails re-derivation are rejected before any mutation.
package derive

import (
	"golang.org/x/crypto/blake2b"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

// Seed tags, one per record kind.
const (
	tagStream      = "stream"
	tagDonor       = "donor"
	tagMarket      = "betting_market"
	tagResolution  = "market_resolution"
	tagPosition    = "bettor_position"
	tagMarketVault = "market_vault"
	tagEscrow      = "stream_escrow"
)

// ProgramID is the engine's own identity, mixed into every derivation.
var ProgramID = domain.ID(blake2b.Sum256([]byte("vidbloq/escrow-engine/v1")))

func derive(tag string, parts ...[]byte) domain.ID {
	h, _ := blake2b.New256(nil)
	h.Write(ProgramID[:])
	h.Write([]byte(tag))
	for _, p := range parts {
		h.Write(p)
	}
	var id domain.ID
	copy(id[:], h.Sum(nil))
	return id
}

// Stream derives a stream identity from its name and host. The name must be
// between 4 and 32 bytes; out-of-range names fail before anything is written.
func Stream(name string, host domain.ID) (domain.ID, error) {
	if len(name) < domain.MinStreamNameLen || len(name) > domain.MaxStreamNameLen {
		return domain.ID{}, domain.ErrInvalidStreamName
	}
	return derive(tagStream, []byte(name), host.Bytes()), nil
}

// Donor derives the per-(stream, donor) ledger identity.
func Donor(stream, donor domain.ID) domain.ID {
	return derive(tagDonor, stream.Bytes(), donor.Bytes())
}

// Market derives the betting-market identity for a stream.
func Market(stream domain.ID) domain.ID {
	return derive(tagMarket, stream.Bytes())
}

// Resolution derives the resolution-record identity for a market.
func Resolution(market domain.ID) domain.ID {
	return derive(tagResolution, market.Bytes())
}

// Position derives the per-(market, bettor) position identity.
func Position(market, bettor domain.ID) domain.ID {
	return derive(tagPosition, market.Bytes(), bettor.Bytes())
}

// MarketVault derives the market's vault token-account identity.
func MarketVault(market domain.ID) domain.ID {
	return derive(tagMarketVault, market.Bytes())
}

// Escrow derives the stream's escrow token-account identity.
func Escrow(stream domain.ID) domain.ID {
	return derive(tagEscrow, stream.Bytes())
}
