// Package testkit generates deterministic synthetic dose-response datasets
// for tests: two log-logistic marginals plus an off-axis checkerboard built
// from a chosen null model, with optional deliberate deviations injected at
// named dose combinations.
package testkit

import (
	"math/rand"

	"synergy/adapters/stats/nullmodel"
	"synergy/domain/dose"
)

// SurfaceSpec describes one synthetic checkerboard experiment.
type SurfaceSpec struct {
	Coef       dose.Coefficients
	Doses1     []float64
	Doses2     []float64
	Replicates int
	Noise      float64
	Seed       int64
	NullModel  dose.NullModelVariant
	// Offsets shifts the generated mean at specific off-axis pairs, for
	// planting known synergy or antagonism.
	Offsets map[dose.Pair]float64
}

func (s SurfaceSpec) withDefaults() SurfaceSpec {
	if s.Replicates <= 0 {
		s.Replicates = 3
	}
	if s.NullModel == "" {
		s.NullModel = dose.GeneralizedLoewe
	}
	return s
}

// GenerateSurface builds the full observation table: baseline wells, both
// single-compound axes, and the off-axis grid centered on the null model.
func GenerateSurface(spec SurfaceSpec) *dose.Dataset {
	spec = spec.withDefaults()
	rng := rand.New(rand.NewSource(spec.Seed))
	engine := nullmodel.NewEngine()
	model := &dose.MarginalModel{Coef: spec.Coef}

	var obs []dose.Observation
	add := func(d1, d2, mean float64) {
		for r := 0; r < spec.Replicates; r++ {
			obs = append(obs, dose.Observation{
				D1:     d1,
				D2:     d2,
				Effect: mean + rng.NormFloat64()*spec.Noise,
			})
		}
	}

	add(0, 0, spec.Coef.B)
	for _, d := range spec.Doses1 {
		add(d, 0, spec.Coef.Response1(d))
	}
	for _, d := range spec.Doses2 {
		add(0, d, spec.Coef.Response2(d))
	}

	pairs := make([]dose.Pair, 0, len(spec.Doses1)*len(spec.Doses2))
	for _, d1 := range spec.Doses1 {
		for _, d2 := range spec.Doses2 {
			pairs = append(pairs, dose.Pair{D1: d1, D2: d2})
		}
	}
	preds, err := engine.Predict(model, spec.NullModel, pairs)
	if err != nil {
		panic("testkit: " + err.Error())
	}
	for _, p := range preds {
		mean := p.Response + spec.Offsets[p.Pair]
		add(p.Pair.D1, p.Pair.D2, mean)
	}

	ds, err := dose.NewDataset(obs)
	if err != nil {
		panic("testkit: " + err.Error())
	}
	return ds
}

// IncreasingCoef returns a well-behaved pair of increasing marginals with a
// shared asymptote, the workhorse fixture of the end-to-end tests.
func IncreasingCoef() dose.Coefficients {
	return dose.Coefficients{H1: 1.5, H2: 2, B: 0.1, M1: 1, M2: 1, E1: 0.5, E2: 1}
}

// DivergingCoef returns marginals with distinct asymptotes.
func DivergingCoef() dose.Coefficients {
	return dose.Coefficients{H1: 1.5, H2: 2, B: 0.1, M1: 1, M2: 0.7, E1: 0.5, E2: 1}
}

// OpposingCoef returns marginals moving in opposite directions, for
// monotonicity violation tests.
func OpposingCoef() dose.Coefficients {
	return dose.Coefficients{H1: 1.5, H2: 2, B: 0.5, M1: 1, M2: 0.1, E1: 0.5, E2: 1}
}
