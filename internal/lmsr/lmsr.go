// Package lmsr implements the logarithmic market scoring rule used to price
// outcome shares: C(q) = b * ln(sum_i exp(q_i/b)). All arithmetic is
// fixed-point at scale 10^6 via the fixedpoint package.
package lmsr

import (
	"errors"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/fixedpoint"
)

// ErrLiquidity is returned when the liquidity parameter is not positive.
var ErrLiquidity = errors.New("lmsr: liquidity must be positive")

// Cost evaluates the market cost function for outstanding shares qs and
// liquidity parameter b (all fixed-point, scale 10^6).
//
// The sum of exponentials is range-reduced by the maximum ratio so each
// term lies in (0, 1]: C = b*(m + ln(sum_i exp(q_i/b - m))).
func Cost(qs []int64, b int64) (int64, error) {
	if b <= 0 {
		return 0, ErrLiquidity
	}

	ratios, m, err := shareRatios(qs, b)
	if err != nil {
		return 0, err
	}

	var sum int64
	for _, r := range ratios {
		e, err := fixedpoint.Exp(r - m)
		if err != nil {
			return 0, err
		}
		sum, err = fixedpoint.Add(sum, e)
		if err != nil {
			return 0, err
		}
	}

	lnSum, err := fixedpoint.Ln(sum)
	if err != nil {
		return 0, err
	}
	inner, err := fixedpoint.Add(m, lnSum)
	if err != nil {
		return 0, err
	}
	return fixedpoint.Mul(b, inner)
}

// BuyCost returns the price of buying delta shares of outcome k:
// C(q + delta*e_k) - C(q). delta must be non-negative; cost is non-negative
// by convexity.
func BuyCost(qs []int64, b int64, k int, delta int64) (int64, error) {
	before, err := Cost(qs, b)
	if err != nil {
		return 0, err
	}

	bumped := make([]int64, len(qs))
	copy(bumped, qs)
	bumped[k], err = fixedpoint.Add(bumped[k], delta)
	if err != nil {
		return 0, err
	}

	after, err := Cost(bumped, b)
	if err != nil {
		return 0, err
	}
	return fixedpoint.Sub(after, before)
}

// SharesForAmount finds the largest integer delta such that buying delta
// shares of outcome k costs at most budget. The cost function is convex and
// monotone per coordinate, so the answer is unique; a doubling probe fixes
// the bracket and a binary search pins the boundary.
func SharesForAmount(qs []int64, b int64, k int, budget int64) (int64, error) {
	if budget <= 0 {
		return 0, nil
	}

	// Doubling probe: find hi with BuyCost(hi) > budget.
	var lo int64
	hi := int64(fixedpoint.Scale)
	for {
		cost, err := BuyCost(qs, b, k, hi)
		if err != nil {
			if errors.Is(err, fixedpoint.ErrOverflow) {
				break
			}
			return 0, err
		}
		if cost > budget {
			break
		}
		lo = hi
		if hi > 1<<61 {
			break
		}
		hi *= 2
	}

	// Binary search on (lo, hi]: lo always affordable, hi not.
	for lo+1 < hi {
		mid := lo + (hi-lo)/2
		cost, err := BuyCost(qs, b, k, mid)
		if err != nil {
			if errors.Is(err, fixedpoint.ErrOverflow) {
				hi = mid
				continue
			}
			return 0, err
		}
		if cost <= budget {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// Reserves returns the normalized exponential terms exp(q_i/b - m) for every
// outcome. Markets persist these so implied probabilities are served without
// re-running the exponentials.
func Reserves(qs []int64, b int64) ([]int64, error) {
	if b <= 0 {
		return nil, ErrLiquidity
	}
	ratios, m, err := shareRatios(qs, b)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(ratios))
	for i, r := range ratios {
		out[i], err = fixedpoint.Exp(r - m)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Probabilities returns the implied probability of each outcome from its
// persisted reserves: p_i = reserve_i / sum_j reserve_j, fixed-point.
func Probabilities(reserves []int64) ([]int64, error) {
	var sum int64
	var err error
	for _, r := range reserves {
		sum, err = fixedpoint.Add(sum, r)
		if err != nil {
			return nil, err
		}
	}
	if sum <= 0 {
		return nil, fixedpoint.ErrDomain
	}
	out := make([]int64, len(reserves))
	for i, r := range reserves {
		out[i], err = fixedpoint.MulDiv(r, fixedpoint.Scale, sum)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// shareRatios computes q_i/b for every outcome plus the maximum ratio.
func shareRatios(qs []int64, b int64) ([]int64, int64, error) {
	ratios := make([]int64, len(qs))
	var m int64
	for i, q := range qs {
		r, err := fixedpoint.Div(q, b)
		if err != nil {
			return nil, 0, err
		}
		ratios[i] = r
		if i == 0 || r > m {
			m = r
		}
	}
	return ratios, m, nil
}
