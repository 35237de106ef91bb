package app

import (
	"context"
	"testing"

	"synergy/adapters/stats/bootstrap"
	"synergy/domain/dose"
	"synergy/internal/testkit"
)

func additiveSpec(seed int64) testkit.SurfaceSpec {
	return testkit.SurfaceSpec{
		Coef:       testkit.IncreasingCoef(),
		Doses1:     []float64{0.25, 0.5, 1, 2},
		Doses2:     []float64{0.5, 1, 2, 4},
		Replicates: 3,
		Noise:      0.02,
		Seed:       seed,
	}
}

func TestRunAdditiveDataFailsToReject(t *testing.T) {
	data := testkit.GenerateSurface(additiveSpec(2024))
	service := NewAnalysisService(bootstrap.NewSeedAdapter(), nil)

	result, err := service.Run(context.Background(), data, AnalysisConfig{Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	if result.Test == nil || result.Test.Global == nil {
		t.Fatal("expected both tests by default")
	}
	if result.Test.Global.Reference != dose.ReferenceF {
		t.Errorf("reference: got %v", result.Test.Global.Reference)
	}
	if p := result.Test.Global.PValue; p <= 0.05 {
		t.Errorf("additive data must not reject, p=%v", p)
	}
	additive := 0
	for _, pt := range result.Test.Points {
		if pt.Call == dose.CallAdditive {
			additive++
		}
	}
	if len(result.Test.Points) != 16 {
		t.Fatalf("expected 16 off-axis points, got %d", len(result.Test.Points))
	}
	if additive < 15 {
		t.Errorf("additive data flagged %d of 16 points", 16-additive)
	}
	if len(result.Pointwise) != 16 {
		t.Errorf("pointwise intervals: got %d", len(result.Pointwise))
	}
	if result.Overall == nil {
		t.Error("overall interval missing")
	}
	if result.ID == "" {
		t.Error("result must carry an analysis id")
	}
}

func TestRunPlantedSynergyIsLocalized(t *testing.T) {
	spec := additiveSpec(555)
	planted := dose.Pair{D1: 1, D2: 2}
	// Ten standard errors of the mean above the additive prediction.
	spec.Offsets = map[dose.Pair]float64{planted: 10 * spec.Noise / 1.7}
	data := testkit.GenerateSurface(spec)
	service := NewAnalysisService(bootstrap.NewSeedAdapter(), nil)

	result, err := service.Run(context.Background(), data, AnalysisConfig{Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	if p := result.Test.Global.PValue; p > 0.05 {
		t.Errorf("planted deviation must reject globally, p=%v", p)
	}
	others := 0
	foundPlanted := false
	for _, pt := range result.Test.Points {
		if pt.Pair == planted {
			foundPlanted = true
			if pt.Call != dose.CallSynergy {
				t.Errorf("planted pair called %v (t=%v, p=%v)", pt.Call, pt.Statistic, pt.PValue)
			}
			continue
		}
		if pt.Call != dose.CallAdditive {
			others++
		}
	}
	if !foundPlanted {
		t.Fatal("planted pair missing from point results")
	}
	if others > 1 {
		t.Errorf("%d unplanted points flagged", others)
	}
	// The strongest deviation is the planted one.
	if mp := result.Test.MaxPoint(); mp == nil || mp.Pair != planted {
		t.Errorf("max point: got %+v", mp)
	}
}

func TestRunPlantedAntagonismFlipsCall(t *testing.T) {
	spec := additiveSpec(777)
	planted := dose.Pair{D1: 0.5, D2: 1}
	spec.Offsets = map[dose.Pair]float64{planted: -10 * spec.Noise / 1.7}
	data := testkit.GenerateSurface(spec)
	service := NewAnalysisService(bootstrap.NewSeedAdapter(), nil)

	result, err := service.Run(context.Background(), data, AnalysisConfig{Seed: 3})
	if err != nil {
		t.Fatal(err)
	}
	for _, pt := range result.Test.Points {
		if pt.Pair == planted && pt.Call != dose.CallAntagonism {
			t.Errorf("planted pair called %v", pt.Call)
		}
	}
}

func TestRunBootstrapReferences(t *testing.T) {
	data := testkit.GenerateSurface(additiveSpec(31))
	service := NewAnalysisService(bootstrap.NewSeedAdapter(), nil)
	cfg := AnalysisConfig{
		Seed:                     17,
		BootstrapCovarianceCount: 30,
		BootstrapStatisticCount:  39,
	}

	result, err := service.Run(context.Background(), data, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if result.Test.Global.Reference != dose.ReferenceBootstrap {
		t.Errorf("global reference: got %v", result.Test.Global.Reference)
	}
	if result.BootstrapNominal != 39 {
		t.Errorf("nominal: got %d", result.BootstrapNominal)
	}
	if result.BootstrapEffective == 0 || result.BootstrapEffective > 39 {
		t.Errorf("effective: got %d", result.BootstrapEffective)
	}
	if result.Surface.CP == nil {
		t.Error("CP covariance missing")
	}
	// Empirical p-values from B surviving replicates live on the grid
	// (k+1)/(B+1).
	p := result.Test.Global.PValue
	b := float64(result.BootstrapEffective)
	if p < 1/(b+1)-1e-12 || p > 1 {
		t.Errorf("empirical p-value out of range: %v", p)
	}
	for _, ci := range result.Pointwise {
		if ci.Level != 0.95 {
			t.Errorf("interval level: got %v", ci.Level)
		}
		if ci.Lower > ci.Upper {
			t.Errorf("degenerate interval [%v, %v]", ci.Lower, ci.Upper)
		}
	}

	again, err := service.Run(context.Background(), data, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if again.Test.Global.PValue != result.Test.Global.PValue {
		t.Error("same seed must reproduce the bootstrap p-value")
	}
	if again.ID == result.ID {
		t.Error("each run gets a fresh analysis id")
	}
}

func TestRunStatisticSelection(t *testing.T) {
	data := testkit.GenerateSurface(additiveSpec(91))
	service := NewAnalysisService(bootstrap.NewSeedAdapter(), nil)

	res, err := service.Run(context.Background(), data, AnalysisConfig{Statistic: dose.StatisticNone})
	if err != nil {
		t.Fatal(err)
	}
	if res.Test != nil {
		t.Error("statistic none must skip the tests")
	}
	if res.Surface == nil || len(res.Pointwise) == 0 {
		t.Error("surface and intervals are still produced")
	}

	res, err = service.Run(context.Background(), data, AnalysisConfig{Statistic: dose.StatisticMeanR})
	if err != nil {
		t.Fatal(err)
	}
	if res.Test.Global == nil {
		t.Error("meanR requested but missing")
	}
	if res.Test.Points != nil {
		t.Error("maxR not requested but present")
	}
}

func TestRunSharedAsymptoteConstraint(t *testing.T) {
	data := testkit.GenerateSurface(additiveSpec(47))
	service := NewAnalysisService(bootstrap.NewSeedAdapter(), nil)
	cfg := AnalysisConfig{
		Constraints: dose.ConstraintSpec{
			A: [][]float64{{0, 0, 0, 1, -1, 0, 0}},
			C: []float64{0},
		},
	}
	result, err := service.Run(context.Background(), data, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Model.SharedAsymptote {
		t.Error("shared asymptote must be derived from the constraints")
	}
	if diff := result.Model.Coef.M1 - result.Model.Coef.M2; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("asymptotes differ: %v vs %v", result.Model.Coef.M1, result.Model.Coef.M2)
	}
}

func TestFitMarginalsRejectsNonConvergenceErrors(t *testing.T) {
	data := testkit.GenerateSurface(additiveSpec(5))
	service := NewAnalysisService(bootstrap.NewSeedAdapter(), nil)
	_, err := service.FitMarginals(data, AnalysisConfig{
		Fixed: map[string]float64{"bogus": 1},
	})
	if err == nil {
		t.Fatal("invalid fixed coefficient must fail without fallback")
	}
}
