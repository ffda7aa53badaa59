package derive

import (
	"errors"
	"strings"
	"testing"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

func actor(label string) domain.ID {
	var id domain.ID
	copy(id[:], label)
	return id
}

func TestStreamNameBounds(t *testing.T) {
	host := actor("host")

	cases := []struct {
		name string
		ok   bool
	}{
		{strings.Repeat("a", 3), false},
		{strings.Repeat("a", 4), true},
		{strings.Repeat("a", 32), true},
		{strings.Repeat("a", 33), false},
	}
	for _, tc := range cases {
		_, err := Stream(tc.name, host)
		if tc.ok && err != nil {
			t.Errorf("name of %d bytes: unexpected err=%v", len(tc.name), err)
		}
		if !tc.ok && !errors.Is(err, domain.ErrInvalidStreamName) {
			t.Errorf("name of %d bytes: err=%v want=%v", len(tc.name), err, domain.ErrInvalidStreamName)
		}
	}
}

func TestDerivationStable(t *testing.T) {
	host := actor("host")

	a, err := Stream("my-stream", host)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := Stream("my-stream", host)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a != b {
		t.Fatalf("same seed tuple produced %s and %s", a, b)
	}
}

func TestDerivationDistinct(t *testing.T) {
	host := actor("host")
	other := actor("other-host")

	s1, _ := Stream("my-stream", host)
	s2, _ := Stream("my-stream", other)
	s3, _ := Stream("my-strean", host)
	if s1 == s2 || s1 == s3 || s2 == s3 {
		t.Fatalf("distinct seed tuples collided: %s %s %s", s1, s2, s3)
	}

	// Different record kinds over the same parent never collide.
	ids := []domain.ID{
		Market(s1),
		Resolution(s1),
		Escrow(s1),
		MarketVault(s1),
		Donor(s1, host),
		Position(s1, host),
	}
	seen := make(map[domain.ID]bool)
	for _, id := range ids {
		if id.IsZero() || seen[id] {
			t.Fatalf("derived identities collided or zero: %v", ids)
		}
		seen[id] = true
	}
}
