package fit

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"synergy/domain/core"
)

const (
	maxIterations = 200
	sseTolerance  = 1e-12
	stepTolerance = 1e-10
)

// residualFunc evaluates the residual vector at a free-parameter point.
type residualFunc func(phi []float64) []float64

type solveResult struct {
	Phi          []float64
	Iterations   int
	ResidualNorm float64
}

func sumSquares(r []float64) float64 {
	s := 0.0
	for _, v := range r {
		s += v * v
	}
	return s
}

// jacobian computes a forward-difference Jacobian of fn at phi.
func jacobian(fn residualFunc, phi, r0 []float64) *mat.Dense {
	n := len(r0)
	p := len(phi)
	j := mat.NewDense(n, p, nil)
	work := make([]float64, p)
	copy(work, phi)
	for k := 0; k < p; k++ {
		h := 1e-7 * (1 + math.Abs(phi[k]))
		work[k] = phi[k] + h
		rk := fn(work)
		work[k] = phi[k]
		for i := 0; i < n; i++ {
			j.Set(i, k, (rk[i]-r0[i])/h)
		}
	}
	return j
}

// solveLevenbergMarquardt minimizes the residual sum of squares with
// adaptive damping. One attempt only; non-convergence is returned to the
// caller, never retried here.
func solveLevenbergMarquardt(fn residualFunc, phi0 []float64) (solveResult, error) {
	return solveDamped(fn, phi0, "levenberg_marquardt", true)
}

// solveGaussNewton is the undamped variant with step halving.
func solveGaussNewton(fn residualFunc, phi0 []float64) (solveResult, error) {
	return solveDamped(fn, phi0, "gauss_newton", false)
}

func solveDamped(fn residualFunc, phi0 []float64, name string, damped bool) (solveResult, error) {
	p := len(phi0)
	phi := append([]float64(nil), phi0...)
	r := fn(phi)
	sse := sumSquares(r)
	lambda := 1e-3

	for iter := 1; iter <= maxIterations; iter++ {
		j := jacobian(fn, phi, r)

		var jtj mat.Dense
		jtj.Mul(j.T(), j)
		grad := make([]float64, p)
		for k := 0; k < p; k++ {
			for i := 0; i < len(r); i++ {
				grad[k] += j.At(i, k) * r[i]
			}
		}

		improved := false
		for attempt := 0; attempt < 12; attempt++ {
			var lhs mat.Dense
			lhs.CloneFrom(&jtj)
			if damped {
				for k := 0; k < p; k++ {
					d := jtj.At(k, k)
					if d == 0 {
						d = 1
					}
					lhs.Set(k, k, d*(1+lambda))
				}
			}

			delta := mat.NewVecDense(p, nil)
			rhs := mat.NewVecDense(p, grad)
			if err := delta.SolveVec(&lhs, rhs); err != nil {
				if !damped {
					return solveResult{}, core.NewConvergenceError(name, iter, math.Sqrt(sse))
				}
				lambda *= 10
				continue
			}

			step := 1.0
			if !damped {
				// Gauss-Newton can overshoot; halve until improvement.
				step = math.Pow(0.5, float64(attempt))
			}
			trial := make([]float64, p)
			for k := 0; k < p; k++ {
				trial[k] = phi[k] - step*delta.AtVec(k)
			}
			rTrial := fn(trial)
			sseTrial := sumSquares(rTrial)
			if sseTrial < sse {
				stepNorm := 0.0
				for k := 0; k < p; k++ {
					stepNorm += (trial[k] - phi[k]) * (trial[k] - phi[k])
				}
				converged := sse-sseTrial < sseTolerance*(1+sse) ||
					math.Sqrt(stepNorm) < stepTolerance
				phi, r, sse = trial, rTrial, sseTrial
				if damped {
					lambda = math.Max(lambda/10, 1e-12)
				}
				improved = true
				if converged {
					return solveResult{Phi: phi, Iterations: iter, ResidualNorm: math.Sqrt(sse)}, nil
				}
				break
			}
			if damped {
				lambda *= 10
			}
		}
		if !improved {
			// No descent direction found at any damping level: either we
			// are at a stationary point or the problem is degenerate.
			gnorm := 0.0
			for _, g := range grad {
				gnorm += g * g
			}
			if math.Sqrt(gnorm) < 1e-8*(1+sse) {
				return solveResult{Phi: phi, Iterations: iter, ResidualNorm: math.Sqrt(sse)}, nil
			}
			return solveResult{}, core.NewConvergenceError(name, iter, math.Sqrt(sse))
		}
	}
	return solveResult{}, core.NewConvergenceError(name, maxIterations, math.Sqrt(sse))
}

// solveNelderMead minimizes the residual sum of squares derivative-free.
func solveNelderMead(fn residualFunc, phi0 []float64) (solveResult, error) {
	problem := optimize.Problem{
		Func: func(phi []float64) float64 {
			return sumSquares(fn(phi))
		},
	}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-10,
			Iterations: 50,
		},
		MajorIterations: 4000,
	}
	result, err := optimize.Minimize(problem, phi0, settings, &optimize.NelderMead{})
	if err != nil {
		return solveResult{}, core.NewConvergenceError("nelder_mead", 0, math.Inf(1))
	}
	switch result.Status {
	case optimize.Success, optimize.FunctionConvergence, optimize.MethodConverge:
	default:
		return solveResult{}, core.NewConvergenceError("nelder_mead",
			result.Stats.MajorIterations, math.Sqrt(result.F))
	}
	return solveResult{
		Phi:          result.X,
		Iterations:   result.Stats.MajorIterations,
		ResidualNorm: math.Sqrt(result.F),
	}, nil
}
