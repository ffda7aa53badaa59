// Package oracle integrates the external verifiable-randomness service:
// signature verification of callbacks, deterministic consumption of delivered
// seeds, and a recording requester for tests and single-node deployments.
package oracle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

// Verifier checks that a randomness callback was signed by the registered
// oracle identity. The signed digest is Keccak256(request_id || seed); the
// signature is a 65-byte [R || S || V] secp256k1 signature.
type Verifier struct {
	oracle common.Address
}

// NewVerifier creates a Verifier bound to the registered oracle address.
func NewVerifier(oracleAddr common.Address) *Verifier {
	return &Verifier{oracle: oracleAddr}
}

// Verify recovers the signer of the callback and compares it against the
// registered oracle. Unverified callbacks are rejected with ErrUnauthorized.
func (v *Verifier) Verify(requestID string, seed domain.Seed, sig []byte) error {
	if len(sig) != 65 {
		return fmt.Errorf("oracle: signature length %d: %w", len(sig), domain.ErrUnauthorized)
	}

	digest := CallbackDigest(requestID, seed)

	// Normalize the recovery id: callers may send 27/28 per Ethereum
	// convention.
	rs := make([]byte, 65)
	copy(rs, sig)
	if rs[64] >= 27 {
		rs[64] -= 27
	}

	pub, err := crypto.SigToPub(digest, rs)
	if err != nil {
		return fmt.Errorf("oracle: recover signer: %w", domain.ErrUnauthorized)
	}
	if crypto.PubkeyToAddress(*pub) != v.oracle {
		return domain.ErrUnauthorized
	}
	return nil
}

// CallbackDigest returns the digest an oracle signs for a callback.
func CallbackDigest(requestID string, seed domain.Seed) []byte {
	return crypto.Keccak256([]byte(requestID), seed[:])
}
