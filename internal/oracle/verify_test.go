package oracle

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

func TestVerifyCallbackSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	oracleAddr := crypto.PubkeyToAddress(key.PublicKey)
	v := NewVerifier(oracleAddr)

	var seed domain.Seed
	seed[0] = 1
	requestID := "req-123"

	sig, err := crypto.Sign(CallbackDigest(requestID, seed), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := v.Verify(requestID, seed, sig); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	// Ethereum-style recovery id (27/28) is normalized.
	shifted := make([]byte, len(sig))
	copy(shifted, sig)
	shifted[64] += 27
	if err := v.Verify(requestID, seed, shifted); err != nil {
		t.Fatalf("v=27 signature rejected: %v", err)
	}

	// A different request id fails verification.
	if err := v.Verify("req-456", seed, sig); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("wrong request id: err=%v want=%v", err, domain.ErrUnauthorized)
	}

	// A different seed fails verification.
	var other domain.Seed
	other[0] = 2
	if err := v.Verify(requestID, other, sig); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("wrong seed: err=%v want=%v", err, domain.ErrUnauthorized)
	}

	// A signature from another key fails verification.
	impostor, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	badSig, err := crypto.Sign(CallbackDigest(requestID, seed), impostor)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := v.Verify(requestID, seed, badSig); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("impostor signature: err=%v want=%v", err, domain.ErrUnauthorized)
	}

	// Truncated signatures are rejected outright.
	if err := v.Verify(requestID, seed, sig[:64]); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("short signature: err=%v want=%v", err, domain.ErrUnauthorized)
	}
}
