package dose

import (
	"fmt"
	"math"
)

// Coefficient order used throughout the module for constraint matrices and
// solver vectors: h1, h2, b, m1, m2, e1, e2.
const (
	CoefH1 = iota
	CoefH2
	CoefB
	CoefM1
	CoefM2
	CoefE1
	CoefE2
	NumCoef
)

// CoefNames lists the coefficient names in vector order.
var CoefNames = [NumCoef]string{"h1", "h2", "b", "m1", "m2", "e1", "e2"}

// CoefIndex resolves a coefficient name to its vector position.
func CoefIndex(name string) (int, error) {
	for i, n := range CoefNames {
		if n == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("unknown coefficient %q", name)
}

// Coefficients holds the seven parameters of the joint marginal model: two
// Hill slopes, the shared baseline, two maximal-response asymptotes and two
// potency parameters.
type Coefficients struct {
	H1 float64 `json:"h1"`
	H2 float64 `json:"h2"`
	B  float64 `json:"b"`
	M1 float64 `json:"m1"`
	M2 float64 `json:"m2"`
	E1 float64 `json:"e1"`
	E2 float64 `json:"e2"`
}

// Vector returns the coefficients in canonical order.
func (c Coefficients) Vector() []float64 {
	return []float64{c.H1, c.H2, c.B, c.M1, c.M2, c.E1, c.E2}
}

// CoefficientsFromVector rebuilds Coefficients from canonical order.
func CoefficientsFromVector(v []float64) Coefficients {
	return Coefficients{H1: v[CoefH1], H2: v[CoefH2], B: v[CoefB],
		M1: v[CoefM1], M2: v[CoefM2], E1: v[CoefE1], E2: v[CoefE2]}
}

// loglogistic evaluates b + (m-b) * d^h / (d^h + e^h). The dose-zero value
// is exactly the baseline.
func loglogistic(d, h, b, m, e float64) float64 {
	if d <= 0 {
		return b
	}
	dh := math.Pow(d, h)
	eh := math.Pow(e, h)
	return b + (m-b)*dh/(dh+eh)
}

// Response1 evaluates the first compound's marginal curve at dose d, on the
// latent (fitting) scale.
func (c Coefficients) Response1(d float64) float64 {
	return loglogistic(d, c.H1, c.B, c.M1, c.E1)
}

// Response2 evaluates the second compound's marginal curve at dose d.
func (c Coefficients) Response2(d float64) float64 {
	return loglogistic(d, c.H2, c.B, c.M2, c.E2)
}

// Direction describes how the two marginal curves move away from baseline.
type Direction int

const (
	DirectionMixed Direction = iota
	DirectionIncreasing
	DirectionDecreasing
)

// Direction classifies the joint monotonicity of the two curves. A curve is
// flat when its asymptote equals the baseline; flat curves follow the other
// curve's direction.
func (c Coefficients) Direction() Direction {
	s1 := sign(c.M1 - c.B)
	s2 := sign(c.M2 - c.B)
	switch {
	case s1 >= 0 && s2 >= 0 && s1+s2 > 0:
		return DirectionIncreasing
	case s1 <= 0 && s2 <= 0 && s1+s2 < 0:
		return DirectionDecreasing
	case s1 == 0 && s2 == 0:
		return DirectionIncreasing
	default:
		return DirectionMixed
	}
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// SolverMethod selects the nonlinear least-squares solver.
type SolverMethod string

const (
	SolverLevenbergMarquardt SolverMethod = "levenberg_marquardt"
	SolverGaussNewton        SolverMethod = "gauss_newton"
	SolverNelderMead         SolverMethod = "nelder_mead"
)

// ParseSolverMethod validates a solver selector string.
func ParseSolverMethod(s string) (SolverMethod, error) {
	switch SolverMethod(s) {
	case SolverLevenbergMarquardt, SolverGaussNewton, SolverNelderMead:
		return SolverMethod(s), nil
	}
	return "", fmt.Errorf("unknown solver method %q", s)
}

// ConstraintSpec is a set of linear equality constraints A*coef = C on the
// seven coefficients, in canonical coefficient order. Fixed-value
// constraints compose with matrix rows via WithFixed.
type ConstraintSpec struct {
	A [][]float64 `json:"a"`
	C []float64   `json:"c"`
}

// Rows returns the number of constraint rows.
func (s ConstraintSpec) Rows() int { return len(s.A) }

// WithFixed appends one equality row per fixed coefficient value.
func (s ConstraintSpec) WithFixed(fixed map[string]float64) (ConstraintSpec, error) {
	out := ConstraintSpec{
		A: append([][]float64(nil), s.A...),
		C: append([]float64(nil), s.C...),
	}
	// Deterministic row order
	for i := 0; i < NumCoef; i++ {
		v, ok := fixed[CoefNames[i]]
		if !ok {
			continue
		}
		row := make([]float64, NumCoef)
		row[i] = 1
		out.A = append(out.A, row)
		out.C = append(out.C, v)
	}
	for name := range fixed {
		if _, err := CoefIndex(name); err != nil {
			return ConstraintSpec{}, err
		}
	}
	return out, nil
}

// MarginalModel is the result of the joint marginal fit. It is produced
// once per dataset and read-only afterwards; surfaces and test results are
// derived views that never mutate it.
type MarginalModel struct {
	Coef            Coefficients   `json:"coef"`
	Sigma           float64        `json:"sigma"`
	DF              int            `json:"df"`
	Constraints     ConstraintSpec `json:"constraints"`
	// SharedAsymptote holds exactly when the constraint system pins
	// m1 - m2 to zero; the fitter derives it from the feasible set, so
	// equality forced through combinations of rows counts too.
	SharedAsymptote bool           `json:"shared_asymptote"`
	Method          SolverMethod   `json:"method"`
	Transform       TransformSpec  `json:"-"`
	Residuals       []float64      `json:"-"`
	Fitted          []float64      `json:"-"`
}
