// Package linalg implements the equality-constraint reparametrization used
// by the marginal curve fitter: given A*x = c, it computes an orthonormal
// basis N of the null space of A and a particular solution p, so that every
// feasible coefficient vector is x = p + N*phi and the fit optimizes only
// the reduced free vector phi.
package linalg

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"synergy/domain/core"
)

const feasibilityTol = 1e-8

// Reparam maps between the full coefficient vector and the reduced free
// vector of a linearly constrained system.
type Reparam struct {
	particular []float64
	basis      *mat.Dense // n x f, orthonormal columns
	dim        int
}

// Identity returns the unconstrained reparametrization of dimension n.
func Identity(n int) *Reparam {
	basis := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		basis.Set(i, i, 1)
	}
	return &Reparam{particular: make([]float64, n), basis: basis, dim: n}
}

// New builds the reparametrization for the system A*x = c over n
// coefficients. Consistent redundant rows are tolerated; an inconsistent
// system is reported as ErrConstraintInfeasible. A fully determined system
// (empty null space) is also infeasible for fitting purposes: there is
// nothing left to optimize.
func New(a [][]float64, c []float64, n int) (*Reparam, error) {
	if len(a) == 0 {
		return Identity(n), nil
	}
	if len(a) != len(c) {
		return nil, core.NewConstraintError("constraint matrix and vector differ in length")
	}
	rows := len(a)
	am := mat.NewDense(rows, n, nil)
	for i, row := range a {
		if len(row) != n {
			return nil, core.NewConstraintError("constraint row has wrong width")
		}
		am.SetRow(i, row)
	}

	var svd mat.SVD
	if ok := svd.Factorize(am, mat.SVDFull); !ok {
		return nil, core.NewConstraintError("SVD of constraint matrix failed")
	}
	sv := svd.Values(nil)
	tol := feasibilityTol * math.Max(float64(rows), float64(n)) * maxOf(sv)
	rank := 0
	for _, s := range sv {
		if s > tol {
			rank++
		}
	}
	if rank == n {
		return nil, core.NewConstraintError("constraints leave no free coefficients")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// Minimum-norm particular solution p = V * S^+ * U^T * c.
	p := make([]float64, n)
	for k := 0; k < rank; k++ {
		utc := 0.0
		for i := 0; i < rows; i++ {
			utc += u.At(i, k) * c[i]
		}
		scale := utc / sv[k]
		for j := 0; j < n; j++ {
			p[j] += v.At(j, k) * scale
		}
	}

	// Inconsistent rows show up as a nonzero residual of the least-squares
	// solution.
	res := 0.0
	for i := 0; i < rows; i++ {
		ri := -c[i]
		for j := 0; j < n; j++ {
			ri += am.At(i, j) * p[j]
		}
		res += ri * ri
	}
	if math.Sqrt(res) > feasibilityTol*(1+norm(c)) {
		return nil, core.NewConstraintError("constraint equations are mutually inconsistent")
	}

	basis := mat.NewDense(n, n-rank, nil)
	for j := rank; j < n; j++ {
		for i := 0; i < n; i++ {
			basis.Set(i, j-rank, v.At(i, j))
		}
	}
	return &Reparam{particular: p, basis: basis, dim: n}, nil
}

// FreeDim returns the number of free parameters after elimination.
func (r *Reparam) FreeDim() int {
	_, f := r.basis.Dims()
	return f
}

// Expand maps a free vector phi to the full coefficient vector p + N*phi.
func (r *Reparam) Expand(phi []float64) []float64 {
	out := make([]float64, r.dim)
	copy(out, r.particular)
	_, f := r.basis.Dims()
	for j := 0; j < f; j++ {
		for i := 0; i < r.dim; i++ {
			out[i] += r.basis.At(i, j) * phi[j]
		}
	}
	return out
}

// FixedDifference reports whether the constraint system pins x_i - x_j to
// a single value across the whole feasible set, and that value. The
// difference is pinned exactly when e_i - e_j is orthogonal to every null
// space basis column, i.e. when the i-th and j-th basis rows coincide; the
// pinned value is then read off the particular solution. This answers the
// question algebraically, so constraints that force equality only through
// linear combinations of rows are detected too.
func (r *Reparam) FixedDifference(i, j int) (float64, bool) {
	_, f := r.basis.Dims()
	for k := 0; k < f; k++ {
		if math.Abs(r.basis.At(i, k)-r.basis.At(j, k)) > feasibilityTol {
			return 0, false
		}
	}
	return r.particular[i] - r.particular[j], true
}

// Reduce projects a full coefficient vector onto the free parameters. The
// basis is orthonormal, so the projection is N^T * (x - p).
func (r *Reparam) Reduce(x []float64) []float64 {
	_, f := r.basis.Dims()
	out := make([]float64, f)
	for j := 0; j < f; j++ {
		for i := 0; i < r.dim; i++ {
			out[j] += r.basis.At(i, j) * (x[i] - r.particular[i])
		}
	}
	return out
}

func maxOf(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}

func norm(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}
