// Package variance estimates the residual variance used to standardize
// observed-minus-predicted deviations: one pooled value, separate on-axis
// and off-axis pools, or a regression of replicate-group variance on group
// mean.
package variance

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"synergy/domain/core"
	"synergy/domain/dose"
)

// Transform selects the scale of the variance-on-mean regression.
type Transform string

const (
	TransformIdentity Transform = "identity"
	TransformLog      Transform = "log"
)

// ParseTransform validates a variance transform selector.
func ParseTransform(s string) (Transform, error) {
	switch Transform(s) {
	case TransformIdentity, TransformLog:
		return Transform(s), nil
	}
	return "", fmt.Errorf("unknown variance transform %q", s)
}

// minModelGroups is the smallest number of replicate groups that still
// supports a variance-on-mean regression.
const minModelGroups = 3

// Estimator computes variance estimates from replicate groups.
type Estimator struct {
	mode      dose.VarianceMode
	transform Transform
}

// NewEstimator creates an estimator for the given mode. The transform only
// applies in model mode.
func NewEstimator(mode dose.VarianceMode, transform Transform) *Estimator {
	if transform == "" {
		transform = TransformIdentity
	}
	return &Estimator{mode: mode, transform: transform}
}

// Estimate is a fitted variance rule that maps any replicate group to its
// variance. In model mode the prediction is floored at the smallest
// observed sample variance; no upper clamp is applied.
type Estimate struct {
	mode      dose.VarianceMode
	transform Transform

	pooledAll float64
	pooledOn  float64
	pooledOff float64

	alpha float64 // regression intercept
	beta  float64 // regression slope
	floor float64 // smallest observed sample variance
}

// Fit derives the variance rule from a dataset on the latent scale.
func (e *Estimator) Fit(data *dose.Dataset) (*Estimate, error) {
	groups := data.Groups()
	est := &Estimate{mode: e.mode, transform: e.transform}

	switch e.mode {
	case dose.VarianceEqual:
		est.pooledAll = pooled(groups)

	case dose.VarianceUnequal:
		var on, off []dose.ReplicateGroup
		for _, g := range groups {
			if g.Pair.OffAxis() {
				off = append(off, g)
			} else {
				on = append(on, g)
			}
		}
		est.pooledOn = pooled(on)
		est.pooledOff = pooled(off)
		if est.pooledOff == 0 {
			est.pooledOff = est.pooledOn
		}
		if est.pooledOn == 0 {
			est.pooledOn = est.pooledOff
		}

	case dose.VarianceModel:
		var means, vars []float64
		for _, g := range groups {
			if len(g.Effects) < 2 {
				continue
			}
			v := g.Variance()
			if e.transform == TransformLog && v <= 0 {
				continue
			}
			means = append(means, g.Mean())
			vars = append(vars, v)
		}
		if len(vars) < minModelGroups {
			return nil, fmt.Errorf("%w: %d groups with replicates, need %d",
				core.ErrInsufficientReplicates, len(vars), minModelGroups)
		}
		floor, _ := stats.Min(vars)
		est.floor = floor
		y := vars
		if e.transform == TransformLog {
			y = make([]float64, len(vars))
			for i, v := range vars {
				y[i] = math.Log(v)
			}
		}
		est.alpha, est.beta = stat.LinearRegression(means, y, nil, false)

	default:
		return nil, core.ErrInvalidOption
	}
	return est, nil
}

// ForGroup returns the variance estimate for one replicate group. Model
// predictions below the observed floor are clamped up to it; negative
// modeled variances are therefore never propagated downstream.
func (est *Estimate) ForGroup(g dose.ReplicateGroup) float64 {
	switch est.mode {
	case dose.VarianceEqual:
		return est.pooledAll
	case dose.VarianceUnequal:
		if g.Pair.OffAxis() {
			return est.pooledOff
		}
		return est.pooledOn
	case dose.VarianceModel:
		v := est.alpha + est.beta*g.Mean()
		if est.transform == TransformLog {
			v = math.Exp(v)
		}
		if v < est.floor {
			return est.floor
		}
		return v
	}
	return 0
}

// pooled computes the replicate-weighted pooled sample variance.
func pooled(groups []dose.ReplicateGroup) float64 {
	num, den := 0.0, 0.0
	for _, g := range groups {
		n := len(g.Effects)
		if n < 2 {
			continue
		}
		num += float64(n-1) * g.Variance()
		den += float64(n - 1)
	}
	if den == 0 {
		return 0
	}
	return num / den
}
