// Package nullmodel predicts the response at arbitrary dose combinations
// under one of five additivity null models, given fitted marginal curves.
// Loewe-family variants solve the implicit occupancy equation per grid
// point; predictions and Z-scores live on the latent (fitting) scale.
package nullmodel

import (
	"math"

	"synergy/domain/core"
	"synergy/domain/dose"
)

// Engine dispatches the closed set of null model variants.
type Engine struct{}

// NewEngine creates a null model engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Prediction is the null-model output at one dose pair.
type Prediction struct {
	Pair      dose.Pair
	Response  float64
	Occupancy float64 // Loewe family only; fractional effect otherwise 0
}

// Predict evaluates the null model at each dose pair. Variants that demand
// jointly monotonic marginals (hsa, bliss, alternative_loewe) report a
// MonotonicityViolation instead of a best-effort number.
func (e *Engine) Predict(model *dose.MarginalModel, variant dose.NullModelVariant, pairs []dose.Pair) ([]Prediction, error) {
	coef := model.Coef
	if variant.RequiresMonotonicity() && coef.Direction() == dose.DirectionMixed {
		return nil, core.NewMonotonicityError(string(variant))
	}

	out := make([]Prediction, len(pairs))
	for i, p := range pairs {
		pred, err := e.predictOne(coef, variant, p)
		if err != nil {
			return nil, err
		}
		out[i] = pred
	}
	return out, nil
}

func (e *Engine) predictOne(coef dose.Coefficients, variant dose.NullModelVariant, p dose.Pair) (Prediction, error) {
	// Axis points need no interaction rule: the marginal curve is the
	// prediction under every variant.
	if !p.OffAxis() {
		resp := coef.B
		occ := 0.0
		switch {
		case p.D1 > 0:
			resp = coef.Response1(p.D1)
			occ = marginalOccupancy(p.D1, coef.H1, coef.E1)
		case p.D2 > 0:
			resp = coef.Response2(p.D2)
			occ = marginalOccupancy(p.D2, coef.H2, coef.E2)
		}
		if !variant.LoeweFamily() {
			occ = 0
		}
		return Prediction{Pair: p, Response: resp, Occupancy: occ}, nil
	}

	switch variant {
	case dose.HSA:
		return Prediction{Pair: p, Response: e.hsa(coef, p)}, nil
	case dose.Bliss:
		return Prediction{Pair: p, Response: e.bliss(coef, p)}, nil
	case dose.GeneralizedLoewe:
		return e.generalizedLoewe(coef, p)
	case dose.ClassicalLoewe:
		return e.responseLoewe(coef, p, false)
	case dose.AlternativeLoewe:
		return e.responseLoewe(coef, p, true)
	default:
		return Prediction{}, core.ErrUnknownNullModel
	}
}

// hsa takes the marginal prediction further from baseline: the maximum for
// jointly increasing curves, the minimum for jointly decreasing ones.
func (e *Engine) hsa(coef dose.Coefficients, p dose.Pair) float64 {
	y1 := coef.Response1(p.D1)
	y2 := coef.Response2(p.D2)
	if coef.Direction() == dose.DirectionDecreasing {
		return math.Min(y1, y2)
	}
	return math.Max(y1, y2)
}

// bliss applies the independence product rule on occupancies. With unequal
// asymptotes both marginals are rescaled to the larger dynamic range before
// combining, then mapped back to the response scale.
func (e *Engine) bliss(coef dose.Coefficients, p dose.Pair) float64 {
	u1 := marginalOccupancy(p.D1, coef.H1, coef.E1)
	u2 := marginalOccupancy(p.D2, coef.H2, coef.E2)
	r1 := coef.M1 - coef.B
	r2 := coef.M2 - coef.B
	rBig := r1
	if math.Abs(r2) > math.Abs(r1) {
		rBig = r2
	}
	if rBig == 0 {
		return coef.B
	}
	p1 := u1 * r1 / rBig
	p2 := u2 * r2 / rBig
	return coef.B + (p1+p2-p1*p2)*rBig
}

// generalizedLoewe solves the occupancy equation and maps the shared tau
// back through the asymptotes, weighted by each compound's dose share.
func (e *Engine) generalizedLoewe(coef dose.Coefficients, p dose.Pair) (Prediction, error) {
	tau, err := solveOccupancy(p.D1, p.D2, coef.H1, coef.H2, coef.E1, coef.E2)
	if err != nil {
		return Prediction{}, err
	}
	ratio := tau / (1 - tau)
	w1 := p.D1 / (coef.E1 * math.Pow(ratio, 1/coef.H1))
	w2 := p.D2 / (coef.E2 * math.Pow(ratio, 1/coef.H2))
	// w1 + w2 = 1 at the root; renormalize to absorb bisection tolerance.
	sum := w1 + w2
	w1, w2 = w1/sum, w2/sum
	resp := coef.B + tau*(w1*(coef.M1-coef.B)+w2*(coef.M2-coef.B))
	return Prediction{Pair: p, Response: resp, Occupancy: tau}, nil
}

// responseLoewe solves the classical dose-equivalence equation
// d1/D1(y) + d2/D2(y) = 1 in the response domain, where D_i(y) is the dose
// at which compound i alone reaches response y. The classical variant
// brackets at the less extreme asymptote; the alternative variant lets the
// stronger compound carry the prediction past it, dropping the weaker
// compound's term once y exceeds what it can reach alone.
func (e *Engine) responseLoewe(coef dose.Coefficients, p dose.Pair, alternative bool) (Prediction, error) {
	r1 := coef.M1 - coef.B
	r2 := coef.M2 - coef.B
	near, far := r1, r2
	if math.Abs(r2) < math.Abs(r1) {
		near, far = r2, r1
	}
	ref := near
	if alternative {
		ref = far
	}
	if ref == 0 {
		return Prediction{Pair: p, Response: coef.B, Occupancy: 0}, nil
	}

	// Parametrize y = b + t*ref with t in (0,1).
	f := func(t float64) float64 {
		y := coef.B + t*ref
		s := 0.0
		s += doseShare(p.D1, y, coef.B, coef.M1, coef.H1, coef.E1)
		s += doseShare(p.D2, y, coef.B, coef.M2, coef.H2, coef.E2)
		return s - 1
	}
	t, saturated, err := bisect(f, bracketEps, 1-bracketEps)
	if err != nil {
		return Prediction{}, err
	}
	if saturated {
		t = 1
	}
	return Prediction{Pair: p, Response: coef.B + t*ref, Occupancy: t}, nil
}

// doseShare is d/D(y) for one compound, or 0 when the compound alone
// cannot reach y.
func doseShare(d, y, b, m, h, e float64) float64 {
	if d <= 0 {
		return 0
	}
	num := (y - b) / (m - b)
	if num <= 0 || num >= 1 {
		return 0
	}
	// D(y) = e * (u/(1-u))^(1/h) with u the fractional effect.
	dy := e * math.Pow(num/(1-num), 1/h)
	return d / dy
}

func marginalOccupancy(d, h, e float64) float64 {
	if d <= 0 {
		return 0
	}
	dh := math.Pow(d, h)
	return dh / (dh + math.Pow(e, h))
}

// Surface evaluates the null model over the unique off-axis combinations of
// the dataset and standardizes the observed-minus-predicted deviations with
// the supplied per-group variances. Observations are compared on the latent
// scale of the model's transform.
func (e *Engine) Surface(model *dose.MarginalModel, variant dose.NullModelVariant, data *dose.Dataset, groupVariance func(dose.ReplicateGroup) float64) (*dose.ResponseSurface, error) {
	latent := model.Transform.ForwardAll(data)
	groups := latent.OffAxisGroups()
	if len(groups) == 0 {
		return nil, core.ErrNoOffAxisPoints
	}
	pairs := make([]dose.Pair, len(groups))
	for i, g := range groups {
		pairs[i] = g.Pair
	}
	preds, err := e.Predict(model, variant, pairs)
	if err != nil {
		return nil, err
	}

	surface := &dose.ResponseSurface{Variant: variant, Points: make([]dose.SurfacePoint, len(groups))}
	for i, g := range groups {
		mean := g.Mean()
		v := groupVariance(g)
		se := math.Sqrt(v / float64(len(g.Effects)))
		z := 0.0
		if se > 0 {
			z = (mean - preds[i].Response) / se
		}
		surface.Points[i] = dose.SurfacePoint{
			Pair:         g.Pair,
			Predicted:    preds[i].Response,
			ObservedMean: mean,
			Replicates:   len(g.Effects),
			ZScore:       z,
			Occupancy:    preds[i].Occupancy,
		}
	}
	return surface, nil
}
