package oracle

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

// SelectValidators draws a stake-weighted sample without replacement from the
// eligible set, seeded by the oracle's 32-byte output. Between MinValidators
// and MaxValidators validators are selected; fewer eligible candidates than
// MinValidators is an error. Candidates are ordered lexicographically by
// identity before sampling, so equal stakes break ties deterministically.
func SelectValidators(seed domain.Seed, eligible []domain.EligibleValidator) ([]domain.ID, error) {
	pool := make([]domain.EligibleValidator, 0, len(eligible))
	for _, c := range eligible {
		if c.Stake > 0 {
			pool = append(pool, c)
		}
	}
	if len(pool) < domain.MinValidators {
		return nil, domain.ErrInsufficientValidators
	}

	sort.Slice(pool, func(i, j int) bool {
		return bytes.Compare(pool[i].Validator[:], pool[j].Validator[:]) < 0
	})

	n := len(pool)
	if n > domain.MaxValidators {
		n = domain.MaxValidators
	}

	selected := make([]domain.ID, 0, n)
	draw := drawStream(seed)
	for len(selected) < n {
		var total uint64
		for _, c := range pool {
			total += uint64(c.Stake)
		}
		r := draw() % total

		var cum uint64
		for i, c := range pool {
			cum += uint64(c.Stake)
			if r < cum {
				selected = append(selected, c.Validator)
				pool = append(pool[:i], pool[i+1:]...)
				break
			}
		}
	}
	return selected, nil
}

// OutcomeFromSeed maps the seed to a winning outcome by modular reduction
// over the outcome count.
func OutcomeFromSeed(seed domain.Seed, outcomes int) uint8 {
	v := binary.BigEndian.Uint64(seed[:8])
	return uint8(v % uint64(outcomes))
}

// drawStream returns a deterministic uint64 stream derived from the seed by
// hashing a running counter.
func drawStream(seed domain.Seed) func() uint64 {
	var counter uint64
	return func() uint64 {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], counter)
		counter++
		h := crypto.Keccak256(seed[:], buf[:])
		return binary.BigEndian.Uint64(h[:8])
	}
}
