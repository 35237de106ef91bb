package bootstrap

import (
	"context"
	"errors"
	"math"
	"testing"

	"synergy/adapters/stats/fit"
	"synergy/adapters/stats/nullmodel"
	"synergy/domain/dose"
	"synergy/internal/testkit"
)

func fittedModel(t *testing.T) (*dose.Dataset, *dose.MarginalModel) {
	t.Helper()
	data := testkit.GenerateSurface(testkit.SurfaceSpec{
		Coef:       testkit.IncreasingCoef(),
		Doses1:     []float64{0.25, 0.5, 1, 2},
		Doses2:     []float64{0.5, 1, 2, 4},
		Replicates: 3,
		Noise:      0.03,
		Seed:       101,
	})
	model, err := fit.NewFitter().Fit(fit.Request{Data: data})
	if err != nil {
		t.Fatal(err)
	}
	return data, model
}

func newTestEngine() *Engine {
	return NewEngine(fit.NewFitter(), nullmodel.NewEngine(), NewSeedAdapter())
}

func TestCovarianceMatrixShapeAndDeterminism(t *testing.T) {
	data, model := fittedModel(t)
	engine := newTestEngine()
	cfg := Config{Replicates: 40, Seed: 7, Workers: 4}

	cp, kept, err := engine.CovarianceMatrix(context.Background(), data, model, dose.GeneralizedLoewe, cfg)
	if err != nil {
		t.Fatal(err)
	}
	q := len(data.OffAxisGroups())
	if len(cp) != q {
		t.Fatalf("CP rows: got %d want %d", len(cp), q)
	}
	if kept < 2 || kept > cfg.Replicates {
		t.Fatalf("kept replicates out of range: %d", kept)
	}
	for i := 0; i < q; i++ {
		if len(cp[i]) != q {
			t.Fatalf("CP row %d width: got %d", i, len(cp[i]))
		}
		if cp[i][i] < 0 {
			t.Errorf("negative diagonal at %d: %v", i, cp[i][i])
		}
		for j := 0; j < q; j++ {
			if math.Abs(cp[i][j]-cp[j][i]) > 1e-12 {
				t.Errorf("asymmetry at (%d,%d): %v vs %v", i, j, cp[i][j], cp[j][i])
			}
		}
	}

	again, keptAgain, err := engine.CovarianceMatrix(context.Background(), data, model, dose.GeneralizedLoewe, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if kept != keptAgain {
		t.Fatalf("kept count differs across runs: %d vs %d", kept, keptAgain)
	}
	for i := 0; i < q; i++ {
		for j := 0; j < q; j++ {
			if cp[i][j] != again[i][j] {
				t.Fatalf("CP(%d,%d) differs across identical seeds", i, j)
			}
		}
	}
}

func TestNullDistributionDeterministicPerSeed(t *testing.T) {
	data, model := fittedModel(t)
	engine := newTestEngine()
	surface, err := nullmodel.NewEngine().Surface(model, dose.GeneralizedLoewe, data,
		func(dose.ReplicateGroup) float64 { return model.Sigma * model.Sigma })
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{Replicates: 25, Seed: 99, Workers: 4}

	run := func() *Result {
		res, err := engine.NullDistribution(context.Background(), data, model, surface,
			dose.GeneralizedLoewe, dose.VarianceEqual, "", 0.95, cfg)
		if err != nil {
			t.Fatal(err)
		}
		return res
	}
	a := run()
	b := run()

	if a.Nominal != cfg.Replicates {
		t.Errorf("nominal: got %d", a.Nominal)
	}
	if a.Effective == 0 || a.Effective > a.Nominal {
		t.Errorf("effective count out of range: %d of %d", a.Effective, a.Nominal)
	}
	if a.Effective != b.Effective {
		t.Fatalf("effective count differs across runs: %d vs %d", a.Effective, b.Effective)
	}
	for i := range a.MeanR {
		if a.MeanR[i] != b.MeanR[i] {
			t.Fatalf("meanR replicate %d differs across identical seeds", i)
		}
		if a.MaxAbs[i] != b.MaxAbs[i] {
			t.Fatalf("maxAbs replicate %d differs across identical seeds", i)
		}
	}

	q := len(surface.Points)
	for _, row := range a.PointEffects {
		if len(row) != q {
			t.Fatalf("effect row width: got %d want %d", len(row), q)
		}
	}
	for i, m := range a.MeanR {
		if m < 0 {
			t.Errorf("replicate %d: negative meanR %v", i, m)
		}
		if a.MaxAbs[i] < 0 {
			t.Errorf("replicate %d: negative maxAbs %v", i, a.MaxAbs[i])
		}
	}
}

func TestNullDistributionEffectsCarrySamplingNoise(t *testing.T) {
	// Replicate effects must scatter around the observed effect with at
	// least the observed mean's own sampling spread, not just the refit
	// prediction error, or percentile intervals understate the normal
	// approximation.
	data, model := fittedModel(t)
	engine := newTestEngine()
	surface, err := nullmodel.NewEngine().Surface(model, dose.GeneralizedLoewe, data,
		func(dose.ReplicateGroup) float64 { return model.Sigma * model.Sigma })
	if err != nil {
		t.Fatal(err)
	}
	res, err := engine.NullDistribution(context.Background(), data, model, surface,
		dose.GeneralizedLoewe, dose.VarianceEqual, "", 0.95, Config{Replicates: 40, Seed: 13})
	if err != nil {
		t.Fatal(err)
	}
	if res.Effective < 20 {
		t.Fatalf("too few surviving replicates: %d", res.Effective)
	}
	for k, pt := range surface.Points {
		observed := pt.ObservedMean - pt.Predicted
		mean, ss := 0.0, 0.0
		for _, row := range res.PointEffects {
			mean += row[k]
		}
		mean /= float64(res.Effective)
		for _, row := range res.PointEffects {
			ss += (row[k] - mean) * (row[k] - mean)
		}
		sd := math.Sqrt(ss / float64(res.Effective-1))

		if math.Abs(mean-observed) > 0.02 {
			t.Errorf("point %d: effects centered at %v, observed effect %v", k, mean, observed)
		}
		// The observed mean of 3 replicates alone contributes sigma/sqrt(3).
		if floor := 0.35 * model.Sigma; sd < floor {
			t.Errorf("point %d: effect spread %v below sampling floor %v", k, sd, floor)
		}
	}
}

func TestNullDistributionSeedChangesDraws(t *testing.T) {
	data, model := fittedModel(t)
	engine := newTestEngine()
	surface, err := nullmodel.NewEngine().Surface(model, dose.GeneralizedLoewe, data,
		func(dose.ReplicateGroup) float64 { return model.Sigma * model.Sigma })
	if err != nil {
		t.Fatal(err)
	}

	res1, err := engine.NullDistribution(context.Background(), data, model, surface,
		dose.GeneralizedLoewe, dose.VarianceEqual, "", 0.95, Config{Replicates: 10, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	res2, err := engine.NullDistribution(context.Background(), data, model, surface,
		dose.GeneralizedLoewe, dose.VarianceEqual, "", 0.95, Config{Replicates: 10, Seed: 2})
	if err != nil {
		t.Fatal(err)
	}
	same := len(res1.MeanR) == len(res2.MeanR)
	if same {
		for i := range res1.MeanR {
			if res1.MeanR[i] != res2.MeanR[i] {
				same = false
				break
			}
		}
	}
	if same {
		t.Error("different seeds produced identical null distributions")
	}
}

func TestNullDistributionCancellation(t *testing.T) {
	data, model := fittedModel(t)
	engine := newTestEngine()
	surface, err := nullmodel.NewEngine().Surface(model, dose.GeneralizedLoewe, data,
		func(dose.ReplicateGroup) float64 { return model.Sigma * model.Sigma })
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.NullDistribution(ctx, data, model, surface,
		dose.GeneralizedLoewe, dose.VarianceEqual, "", 0.95, Config{Replicates: 50, Seed: 1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDrawPolicies(t *testing.T) {
	engine := newTestEngine()
	model := &dose.MarginalModel{Sigma: 1, Residuals: []float64{2}}
	rng := NewSeedAdapter().SeededStream("draw-test", 1)

	for i := 0; i < 10; i++ {
		if r := engine.draw(model, rng, Config{Errors: ErrorsEmpirical}); r != 2 {
			t.Fatalf("empirical draw from a single-residual pool must be 2, got %v", r)
		}
	}
	sawNeg, sawPos := false, false
	for i := 0; i < 100; i++ {
		r := engine.draw(model, rng, Config{Errors: ErrorsEmpirical, Policy: PolicyWild})
		if r == 2 {
			sawPos = true
		} else if r == -2 {
			sawNeg = true
		} else {
			t.Fatalf("wild draw must be +/-2, got %v", r)
		}
	}
	if !sawNeg || !sawPos {
		t.Error("wild policy never flipped a sign in 100 draws")
	}

	empty := &dose.MarginalModel{Sigma: 0.5}
	r := engine.draw(empty, rng, Config{Errors: ErrorsEmpirical})
	if r == 2 || r == -2 {
		t.Error("empty residual pool must fall back to normal draws")
	}
}

func TestReplicateStreamsAreStableAndDistinct(t *testing.T) {
	a := NewSeedAdapter()
	r1 := a.ReplicateStream(42, 3).Float64()
	r2 := a.ReplicateStream(42, 3).Float64()
	if r1 != r2 {
		t.Error("same seed and replicate index must reproduce the stream")
	}
	r3 := a.ReplicateStream(42, 4).Float64()
	if r1 == r3 {
		t.Error("adjacent replicate indices share a stream")
	}
	r4 := a.SeededStream("max-null", 42).Float64()
	if r1 == r4 {
		t.Error("named stream collides with replicate stream")
	}
}
