// Package statistic converts the standardized deviations of a response
// surface into the global meanR test and the per-combination maxR test.
// Both tests evaluate against the same CP covariance so their conclusions
// cannot disagree on the same data.
package statistic

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"synergy/domain/core"
	"synergy/domain/dose"
)

// maxNullDraws is the simulation size for the normal-theory null
// distribution of the maximum absolute statistic.
const maxNullDraws = 10000

// Engine computes deviation test statistics. The RNG drives the
// normal-theory maxR null simulation and must be seeded by the caller for
// reproducibility.
type Engine struct {
	rng *rand.Rand
}

// NewEngine creates a test statistic engine around a seeded random stream.
func NewEngine(rng *rand.Rand) *Engine {
	return &Engine{rng: rng}
}

// Input bundles everything both tests read. StandardErrors holds the
// per-point standard error of the observed mean (sqrt(var_k/n_k)); CP on
// the surface is the bootstrapped prediction-error covariance, already
// scaled so that sigma^2 * CP is the prediction covariance.
type Input struct {
	Surface        *dose.ResponseSurface
	Model          *dose.MarginalModel
	StandardErrors []float64
	Cutoff         float64
}

// zCovariance assembles the covariance of the Z-score vector:
// identity from replicate averaging plus the standardized prediction-error
// covariance sigma^2 * CP.
func zCovariance(in Input) (*mat.SymDense, error) {
	q := len(in.Surface.Points)
	cov := mat.NewSymDense(q, nil)
	sigma2 := in.Model.Sigma * in.Model.Sigma
	for i := 0; i < q; i++ {
		for j := i; j < q; j++ {
			v := 0.0
			if i == j {
				v = 1
			}
			if in.Surface.CP != nil {
				sei := in.StandardErrors[i]
				sej := in.StandardErrors[j]
				if sei > 0 && sej > 0 {
					v += sigma2 * in.Surface.CP[i][j] / (sei * sej)
				}
			}
			cov.SetSym(i, j, v)
		}
	}
	return cov, nil
}

// MeanR computes the global F-type statistic Z' * Cov(Z)^-1 * Z / q with an
// F(q, df) reference under the normal-error assumption. A numerically
// singular covariance is reported, never regularized.
func (e *Engine) MeanR(in Input) (*dose.GlobalResult, error) {
	q := len(in.Surface.Points)
	if q == 0 {
		return nil, core.ErrNoOffAxisPoints
	}
	cov, err := zCovariance(in)
	if err != nil {
		return nil, err
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, core.NewSingularCovarianceError("meanR")
	}
	z := mat.NewVecDense(q, in.Surface.ZScores())
	sol := mat.NewVecDense(q, nil)
	if err := chol.SolveVecTo(sol, z); err != nil {
		return nil, core.NewSingularCovarianceError("meanR")
	}
	f := mat.Dot(z, sol) / float64(q)

	ref := distuv.F{D1: float64(q), D2: float64(in.Model.DF)}
	p := 1 - ref.CDF(f)
	return &dose.GlobalResult{
		Statistic: f,
		DF1:       q,
		DF2:       in.Model.DF,
		Reference: dose.ReferenceF,
		PValue:    p,
	}, nil
}

// MaxR computes the per-point signed statistic and classifies each
// combination against the null distribution of the maximum absolute
// component of a correlated standard normal vector.
func (e *Engine) MaxR(in Input) ([]dose.PointResult, error) {
	stats, err := e.PointStatistics(in)
	if err != nil {
		return nil, err
	}
	nullMax, err := e.SimulateMaxNull(in, maxNullDraws)
	if err != nil {
		return nil, err
	}
	return ClassifyPoints(in, stats, nullMax, dose.ReferenceNormalMax), nil
}

// PointStatistics returns the signed per-point statistics T_k, the Z-scores
// rescaled by their full standard deviation including prediction error.
func (e *Engine) PointStatistics(in Input) ([]float64, error) {
	q := len(in.Surface.Points)
	if q == 0 {
		return nil, core.ErrNoOffAxisPoints
	}
	cov, err := zCovariance(in)
	if err != nil {
		return nil, err
	}
	out := make([]float64, q)
	for k, p := range in.Surface.Points {
		sd := math.Sqrt(cov.At(k, k))
		if sd == 0 {
			return nil, core.NewSingularCovarianceError("maxR")
		}
		out[k] = p.ZScore / sd
	}
	return out, nil
}

// SimulateMaxNull draws the null distribution of max_k |T_k| from the
// correlation structure of the Z covariance.
func (e *Engine) SimulateMaxNull(in Input, draws int) ([]float64, error) {
	q := len(in.Surface.Points)
	cov, err := zCovariance(in)
	if err != nil {
		return nil, err
	}
	// Reduce to a correlation matrix so draws are on the statistic scale.
	corr := mat.NewSymDense(q, nil)
	for i := 0; i < q; i++ {
		for j := i; j < q; j++ {
			corr.SetSym(i, j, cov.At(i, j)/math.Sqrt(cov.At(i, i)*cov.At(j, j)))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(corr); !ok {
		return nil, core.NewSingularCovarianceError("maxR")
	}
	var lower mat.TriDense
	chol.LTo(&lower)

	out := make([]float64, draws)
	g := make([]float64, q)
	for d := 0; d < draws; d++ {
		for i := range g {
			g[i] = e.rng.NormFloat64()
		}
		maxAbs := 0.0
		for i := 0; i < q; i++ {
			s := 0.0
			for j := 0; j <= i; j++ {
				s += lower.At(i, j) * g[j]
			}
			if a := math.Abs(s); a > maxAbs {
				maxAbs = a
			}
		}
		out[d] = maxAbs
	}
	return out, nil
}

// ClassifyPoints labels each off-axis combination by comparing its
// statistic to the empirical null of the maximum, with the sign convention
// that deviation in the direction of effect is synergy.
func ClassifyPoints(in Input, stats, nullMax []float64, ref dose.ReferenceKind) []dose.PointResult {
	direction := in.Model.Coef.Direction()
	out := make([]dose.PointResult, len(stats))
	for k, t := range stats {
		p := TailProportion(nullMax, math.Abs(t))
		call := dose.CallAdditive
		if p <= 1-in.Cutoff {
			moreEffect := t > 0
			if direction == dose.DirectionDecreasing {
				moreEffect = t < 0
			}
			if moreEffect {
				call = dose.CallSynergy
			} else {
				call = dose.CallAntagonism
			}
		}
		out[k] = dose.PointResult{
			Pair:      in.Surface.Points[k].Pair,
			Statistic: t,
			PValue:    p,
			Call:      call,
		}
	}
	return out
}

// TailProportion is the empirical p-value: the proportion of the reference
// sample at or beyond the observed value, with the +1 continuity adjustment
// used for resampled references.
func TailProportion(sample []float64, observed float64) float64 {
	count := 0
	for _, s := range sample {
		if s >= observed {
			count++
		}
	}
	return float64(count+1) / float64(len(sample)+1)
}
