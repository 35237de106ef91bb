package nullmodel

import (
	"math"

	"synergy/domain/core"
)

const (
	bracketEps   = 1e-9
	rootTol      = 1e-12
	maxBisection = 200
)

// bisect finds the root of a monotone-decreasing f on (lo, hi). The callers
// guarantee f(lo) > 0; a non-negative f(hi) means the equation saturates at
// the upper bracket and is reported as such.
func bisect(f func(float64) float64, lo, hi float64) (float64, bool, error) {
	fLo := f(lo)
	fHi := f(hi)
	if fLo < 0 {
		return 0, false, core.ErrOccupancyBracket
	}
	if fHi >= 0 {
		// Dose additivity pushes past the achievable response range.
		return hi, true, nil
	}
	for i := 0; i < maxBisection; i++ {
		mid := 0.5 * (lo + hi)
		fm := f(mid)
		if math.Abs(fm) < rootTol || hi-lo < rootTol {
			return mid, false, nil
		}
		if fm > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi), false, nil
}

// occupancyEquation is the generalized Loewe dose-additivity condition:
// d1/e1(tau) + d2/e2(tau) = 1, with e_i(tau) = e_i * (tau/(1-tau))^(1/h_i)
// the dose at which compound i alone reaches occupancy tau.
func occupancyEquation(d1, d2, h1, h2, e1, e2 float64) func(float64) float64 {
	return func(tau float64) float64 {
		ratio := tau / (1 - tau)
		s := 0.0
		if d1 > 0 {
			s += d1 / (e1 * math.Pow(ratio, 1/h1))
		}
		if d2 > 0 {
			s += d2 / (e2 * math.Pow(ratio, 1/h2))
		}
		return s - 1
	}
}

// solveOccupancy finds the shared occupancy tau in (0, 1) for a dose pair.
func solveOccupancy(d1, d2, h1, h2, e1, e2 float64) (float64, error) {
	tau, _, err := bisect(occupancyEquation(d1, d2, h1, h2, e1, e2), bracketEps, 1-bracketEps)
	return tau, err
}
