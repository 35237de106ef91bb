// Package fit jointly estimates the two marginal dose-response curves of a
// compound pair, sharing one baseline, under optional linear equality
// constraints. It performs exactly one solver attempt per call; fallback
// across solvers is an orchestration-level policy.
package fit

import (
	"math"

	"synergy/domain/core"
	"synergy/domain/dose"
	"synergy/internal/linalg"
)

// Request describes one marginal fit.
type Request struct {
	Data        *dose.Dataset
	Transform   dose.TransformSpec
	Constraints dose.ConstraintSpec
	Fixed       map[string]float64
	Method      dose.SolverMethod
}

// Fitter estimates the joint marginal model from on-axis observations.
type Fitter struct{}

// NewFitter creates a marginal curve fitter.
func NewFitter() *Fitter {
	return &Fitter{}
}

// Fit runs the selected solver once and returns the fitted model, or a
// typed failure (ErrConvergence, ErrConstraintInfeasible, ...) the caller
// can act on.
func (f *Fitter) Fit(req Request) (*dose.MarginalModel, error) {
	if err := req.Transform.Validate(); err != nil {
		return nil, err
	}
	method := req.Method
	if method == "" {
		method = dose.SolverLevenbergMarquardt
	}

	onAxis := req.Data.OnAxis()
	if len(onAxis) == 0 {
		return nil, core.NewDatasetError("no on-axis observations")
	}
	latent := make([]dose.Observation, len(onAxis))
	for i, o := range onAxis {
		o.Effect = req.Transform.Forward(o.Effect)
		latent[i] = o
	}
	latentSet := &dose.Dataset{Observations: latent}

	constraints, err := req.Constraints.WithFixed(req.Fixed)
	if err != nil {
		return nil, err
	}
	reparam, err := linalg.New(constraints.A, constraints.C, dose.NumCoef)
	if err != nil {
		return nil, err
	}
	mDiff, mPinned := reparam.FixedDifference(dose.CoefM1, dose.CoefM2)
	shared := mPinned && math.Abs(mDiff) <= 1e-8

	start, err := startValues(latentSet.Groups())
	if err != nil {
		return nil, err
	}
	// Project the heuristic start onto the feasible subspace.
	phi0 := reparam.Reduce(start.Vector())

	residuals := residualFn(latent, reparam)

	var solved solveResult
	switch method {
	case dose.SolverLevenbergMarquardt:
		solved, err = solveLevenbergMarquardt(residuals, phi0)
	case dose.SolverGaussNewton:
		solved, err = solveGaussNewton(residuals, phi0)
	case dose.SolverNelderMead:
		solved, err = solveNelderMead(residuals, phi0)
	default:
		return nil, core.ErrInvalidOption
	}
	if err != nil {
		return nil, err
	}

	coef := dose.CoefficientsFromVector(reparam.Expand(solved.Phi))
	res := residuals(solved.Phi)
	df := len(res) - reparam.FreeDim()
	if df < 1 {
		df = 1
	}
	sigma := math.Sqrt(sumSquares(res) / float64(df))

	fitted := make([]float64, len(latent))
	for i, o := range latent {
		fitted[i] = predictOnAxis(coef, o)
	}

	return &dose.MarginalModel{
		Coef:            coef,
		Sigma:           sigma,
		DF:              df,
		Constraints:     constraints,
		SharedAsymptote: shared,
		Method:          method,
		Transform:       req.Transform,
		Residuals:       res,
		Fitted:          fitted,
	}, nil
}

// residualFn builds the reduced-space residual function over the latent
// observations. Infeasible curve shapes (non-positive slope or potency) get
// a flat penalty so the solvers back away from the boundary.
func residualFn(latent []dose.Observation, reparam *linalg.Reparam) residualFunc {
	return func(phi []float64) []float64 {
		coef := dose.CoefficientsFromVector(reparam.Expand(phi))
		out := make([]float64, len(latent))
		if coef.E1 <= 0 || coef.E2 <= 0 || coef.H1 <= 0 || coef.H2 <= 0 {
			for i := range out {
				out[i] = 1e6
			}
			return out
		}
		for i, o := range latent {
			out[i] = predictOnAxis(coef, o) - o.Effect
		}
		return out
	}
}

func predictOnAxis(coef dose.Coefficients, o dose.Observation) float64 {
	switch {
	case o.D1 > 0:
		return coef.Response1(o.D1)
	case o.D2 > 0:
		return coef.Response2(o.D2)
	default:
		return coef.B
	}
}
