package fit

import (
	"math"

	"github.com/montanaflynn/stats"

	"synergy/domain/core"
	"synergy/domain/dose"
)

// startValues derives closed-form starting coefficients from the on-axis
// replicate groups, on the latent scale: baseline from the double-zero
// point, asymptotes from the highest dose of each compound, potency from
// the dose whose mean response sits nearest the curve midpoint, and unit
// Hill slopes.
type axisPoint struct {
	dose float64
	mean float64
}

func startValues(groups []dose.ReplicateGroup) (dose.Coefficients, error) {
	var baselineVals []float64
	var axis1, axis2 []axisPoint

	for _, g := range groups {
		switch {
		case g.Pair.D1 == 0 && g.Pair.D2 == 0:
			baselineVals = append(baselineVals, g.Effects...)
		case g.Pair.D2 == 0:
			axis1 = append(axis1, axisPoint{g.Pair.D1, g.Mean()})
		case g.Pair.D1 == 0:
			axis2 = append(axis2, axisPoint{g.Pair.D2, g.Mean()})
		}
	}
	if len(axis1) == 0 || len(axis2) == 0 {
		return dose.Coefficients{}, core.ErrBadStartValues
	}

	var b float64
	if len(baselineVals) > 0 {
		b, _ = stats.Mean(baselineVals)
	} else {
		// No control wells: fall back on the lowest dose of each axis.
		b = (axis1[0].mean + axis2[0].mean) / 2
	}

	m1, e1 := axisStart(axis1, b)
	m2, e2 := axisStart(axis2, b)
	return dose.Coefficients{H1: 1, H2: 1, B: b, M1: m1, M2: m2, E1: e1, E2: e2}, nil
}

// axisStart picks the asymptote from the extreme dose and the potency from
// the dose closest to the half-effect, falling back on the median dose when
// the response range is degenerate.
func axisStart(points []axisPoint, b float64) (m, e float64) {
	maxDose := 0.0
	for _, p := range points {
		if p.dose > maxDose {
			maxDose = p.dose
			m = p.mean
		}
	}

	mid := (b + m) / 2
	bestDist := math.Inf(1)
	for _, p := range points {
		if d := math.Abs(p.mean - mid); d < bestDist {
			bestDist = d
			e = p.dose
		}
	}
	if e <= 0 || m == b {
		doses := make([]float64, 0, len(points))
		for _, p := range points {
			if p.dose > 0 {
				doses = append(doses, p.dose)
			}
		}
		e, _ = stats.Median(doses)
		if e <= 0 {
			e = 1
		}
	}
	return m, e
}
