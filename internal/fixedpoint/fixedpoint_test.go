package fixedpoint

import (
	"math"
	"testing"
)

// within asserts |got-want| <= tol.
func within(t *testing.T, name string, got, want, tol int64) {
	t.Helper()
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	if diff > tol {
		t.Errorf("%s = %d, want %d (±%d)", name, got, want, tol)
	}
}

func TestCheckedArithmetic(t *testing.T) {
	if got, err := Add(2_000_000, 3_000_000); err != nil || got != 5_000_000 {
		t.Errorf("Add = %d, %v", got, err)
	}
	if _, err := Add(math.MaxInt64, 1); err != ErrOverflow {
		t.Errorf("Add overflow: err=%v", err)
	}
	if _, err := Sub(math.MinInt64, 1); err != ErrOverflow {
		t.Errorf("Sub overflow: err=%v", err)
	}

	// 1.5 * 2.0 = 3.0
	if got, err := Mul(1_500_000, 2_000_000); err != nil || got != 3_000_000 {
		t.Errorf("Mul = %d, %v", got, err)
	}
	if _, err := Mul(math.MaxInt64, math.MaxInt64); err != ErrOverflow {
		t.Errorf("Mul overflow: err=%v", err)
	}

	// 3.0 / 2.0 = 1.5
	if got, err := Div(3_000_000, 2_000_000); err != nil || got != 1_500_000 {
		t.Errorf("Div = %d, %v", got, err)
	}
	if _, err := Div(1, 0); err != ErrDomain {
		t.Errorf("Div by zero: err=%v", err)
	}
}

func TestMulDivTruncatesTowardZero(t *testing.T) {
	cases := []struct {
		a, b, den, want int64
	}{
		{7, 3, 2, 10},
		{-7, 3, 2, -10},
		{7, -3, 2, -10},
		{-7, -3, 2, 10},
		{7, 3, -2, -10},
		{1, 1, 3, 0},
		{-1, 1, 3, 0},
	}
	for _, tc := range cases {
		got, err := MulDiv(tc.a, tc.b, tc.den)
		if err != nil || got != tc.want {
			t.Errorf("MulDiv(%d,%d,%d) = %d, %v; want %d", tc.a, tc.b, tc.den, got, err, tc.want)
		}
	}

	// Wide intermediates that would overflow a 64-bit product.
	got, err := MulDiv(1<<62, 10, 1<<62)
	if err != nil || got != 10 {
		t.Errorf("MulDiv wide = %d, %v", got, err)
	}
}

func TestApplyBps(t *testing.T) {
	cases := []struct {
		amount int64
		bps    uint16
		want   int64
	}{
		{1_000_000_000, 250, 25_000_000},
		{1_000_000_000, 0, 0},
		{1_000_000_000, 10_000, 1_000_000_000},
		{3, 5_000, 1}, // truncation toward zero
	}
	for _, tc := range cases {
		got, err := ApplyBps(tc.amount, tc.bps)
		if err != nil || got != tc.want {
			t.Errorf("ApplyBps(%d, %d) = %d, %v; want %d", tc.amount, tc.bps, got, err, tc.want)
		}
	}
}

func TestLnReferenceValues(t *testing.T) {
	// Exact at powers of two times the scale.
	if got, err := Ln(Scale); err != nil || got != 0 {
		t.Errorf("Ln(1) = %d, %v; want 0", got, err)
	}
	got, err := Ln(2 * Scale)
	if err != nil {
		t.Fatalf("Ln(2): %v", err)
	}
	within(t, "Ln(2)", got, 693_147, 1)

	got, err = Ln(2_718_282) // e
	if err != nil {
		t.Fatalf("Ln(e): %v", err)
	}
	within(t, "Ln(e)", got, Scale, 3)

	got, err = Ln(10 * Scale)
	if err != nil {
		t.Fatalf("Ln(10): %v", err)
	}
	within(t, "Ln(10)", got, 2_302_585, 3)

	// Below one the log goes negative.
	got, err = Ln(Scale / 2)
	if err != nil {
		t.Fatalf("Ln(0.5): %v", err)
	}
	within(t, "Ln(0.5)", got, -693_147, 2)

	if _, err := Ln(0); err != ErrDomain {
		t.Errorf("Ln(0): err=%v want=%v", err, ErrDomain)
	}
	if _, err := Ln(-5); err != ErrDomain {
		t.Errorf("Ln(-5): err=%v want=%v", err, ErrDomain)
	}
}

func TestExpReferenceValues(t *testing.T) {
	if got, err := Exp(0); err != nil || got != Scale {
		t.Errorf("Exp(0) = %d, %v; want %d", got, err, Scale)
	}

	got, err := Exp(693_147) // ln 2
	if err != nil {
		t.Fatalf("Exp(ln2): %v", err)
	}
	within(t, "Exp(ln2)", got, 2*Scale, 3)

	got, err = Exp(Scale)
	if err != nil {
		t.Fatalf("Exp(1): %v", err)
	}
	within(t, "Exp(1)", got, 2_718_282, 3)

	got, err = Exp(-Scale)
	if err != nil {
		t.Fatalf("Exp(-1): %v", err)
	}
	within(t, "Exp(-1)", got, 367_879, 3)

	// Deep negative inputs truncate to zero instead of failing.
	if got, err := Exp(-25 * Scale); err != nil || got != 0 {
		t.Errorf("Exp(-25) = %d, %v; want 0", got, err)
	}
	if _, err := Exp(30 * Scale); err != ErrOverflow {
		t.Errorf("Exp(30): err=%v want=%v", err, ErrOverflow)
	}
}

func TestExpLnRoundTrip(t *testing.T) {
	for _, x := range []int64{Scale, 1_500_000, 5_000_000, 123_456_789, 20_000_000} {
		lnX, err := Ln(x)
		if err != nil {
			t.Fatalf("Ln(%d): %v", x, err)
		}
		back, err := Exp(lnX)
		if err != nil {
			t.Fatalf("Exp(Ln(%d)): %v", x, err)
		}
		tol := x / 100_000 // 10 ppm
		if tol < 3 {
			tol = 3
		}
		within(t, "Exp(Ln(x))", back, x, tol)
	}
}

func TestDeterminism(t *testing.T) {
	// Identical inputs must produce identical outputs across invocations.
	for i := 0; i < 3; i++ {
		a, err1 := Ln(7_777_777)
		b, err2 := Ln(7_777_777)
		if err1 != nil || err2 != nil || a != b {
			t.Fatalf("Ln not deterministic: %d vs %d", a, b)
		}
		c, err1 := Exp(1_234_567)
		d, err2 := Exp(1_234_567)
		if err1 != nil || err2 != nil || c != d {
			t.Fatalf("Exp not deterministic: %d vs %d", c, d)
		}
	}
}
