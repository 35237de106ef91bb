// Package confidence derives pointwise and overall effect-size intervals
// from the normal approximation or from bootstrap replicate effects.
package confidence

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"synergy/domain/core"
	"synergy/domain/dose"
)

// Engine produces effect-size confidence intervals for off-axis points.
type Engine struct{}

// NewEngine creates a confidence interval engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Normal computes pointwise intervals from each Z-score's standard error,
// widened by the prediction-error covariance when CP is present.
func (e *Engine) Normal(surface *dose.ResponseSurface, model *dose.MarginalModel, standardErrors []float64, level float64) []dose.ConfidenceInterval {
	z := distuv.UnitNormal.Quantile(0.5 + level/2)
	sigma2 := model.Sigma * model.Sigma
	out := make([]dose.ConfidenceInterval, len(surface.Points))
	for k, p := range surface.Points {
		effect := p.ObservedMean - p.Predicted
		v := standardErrors[k] * standardErrors[k]
		if surface.CP != nil {
			v += sigma2 * surface.CP[k][k]
		}
		sd := math.Sqrt(v)
		pair := p.Pair
		out[k] = dose.ConfidenceInterval{
			Pair:     &pair,
			Estimate: effect,
			Lower:    effect - z*sd,
			Upper:    effect + z*sd,
			Level:    level,
		}
	}
	return out
}

// NormalOverall aggregates the pointwise effects into one interval for the
// mean deviation from additivity.
func (e *Engine) NormalOverall(surface *dose.ResponseSurface, model *dose.MarginalModel, standardErrors []float64, level float64) dose.ConfidenceInterval {
	q := len(surface.Points)
	zq := distuv.UnitNormal.Quantile(0.5 + level/2)
	sigma2 := model.Sigma * model.Sigma

	mean := 0.0
	for _, p := range surface.Points {
		mean += p.ObservedMean - p.Predicted
	}
	mean /= float64(q)

	// Variance of the mean: replicate-averaging diagonal plus the full CP
	// block, both divided by q^2.
	v := 0.0
	for k := range surface.Points {
		v += standardErrors[k] * standardErrors[k]
	}
	if surface.CP != nil {
		for i := 0; i < q; i++ {
			for j := 0; j < q; j++ {
				v += sigma2 * surface.CP[i][j]
			}
		}
	}
	sd := math.Sqrt(v) / float64(q)
	return dose.ConfidenceInterval{
		Estimate: mean,
		Lower:    mean - zq*sd,
		Upper:    mean + zq*sd,
		Level:    level,
	}
}

// Bootstrap computes percentile intervals from the per-replicate effect
// sizes collected by the bootstrap engine (one row per replicate, one
// column per off-axis point).
func (e *Engine) Bootstrap(surface *dose.ResponseSurface, replicateEffects [][]float64, level float64) ([]dose.ConfidenceInterval, error) {
	if len(replicateEffects) == 0 {
		return nil, core.ErrInsufficientReplicates
	}
	q := len(surface.Points)
	lo := 100 * (0.5 - level/2)
	hi := 100 * (0.5 + level/2)

	out := make([]dose.ConfidenceInterval, q)
	col := make([]float64, len(replicateEffects))
	for k := 0; k < q; k++ {
		for r, row := range replicateEffects {
			col[r] = row[k]
		}
		estimate, _ := stats.Median(col)
		lower, err := stats.Percentile(col, lo)
		if err != nil {
			return nil, err
		}
		upper, err := stats.Percentile(col, hi)
		if err != nil {
			return nil, err
		}
		pair := surface.Points[k].Pair
		out[k] = dose.ConfidenceInterval{
			Pair:     &pair,
			Estimate: estimate,
			Lower:    lower,
			Upper:    upper,
			Level:    level,
		}
	}
	return out, nil
}

// BootstrapOverall computes the percentile interval of the mean effect
// across points, per replicate.
func (e *Engine) BootstrapOverall(replicateEffects [][]float64, level float64) (dose.ConfidenceInterval, error) {
	if len(replicateEffects) == 0 {
		return dose.ConfidenceInterval{}, core.ErrInsufficientReplicates
	}
	means := make([]float64, len(replicateEffects))
	for r, row := range replicateEffects {
		s := 0.0
		for _, v := range row {
			s += v
		}
		means[r] = s / float64(len(row))
	}
	estimate, _ := stats.Median(means)
	lower, err := stats.Percentile(means, 100*(0.5-level/2))
	if err != nil {
		return dose.ConfidenceInterval{}, err
	}
	upper, err := stats.Percentile(means, 100*(0.5+level/2))
	if err != nil {
		return dose.ConfidenceInterval{}, err
	}
	return dose.ConfidenceInterval{
		Estimate: estimate,
		Lower:    lower,
		Upper:    upper,
		Level:    level,
	}, nil
}
