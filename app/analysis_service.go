// Package app orchestrates the synergy analysis pipeline: marginal fit with
// solver fallback, null-model surface, variance estimation, deviation tests
// and confidence intervals. All policy lives here; the engines underneath
// perform exactly one attempt per call.
package app

import (
	"context"
	"errors"
	"math"

	"synergy/adapters/stats/bootstrap"
	"synergy/adapters/stats/confidence"
	"synergy/adapters/stats/fit"
	"synergy/adapters/stats/nullmodel"
	"synergy/adapters/stats/statistic"
	"synergy/adapters/stats/variance"
	"synergy/domain/core"
	"synergy/domain/dose"
	"synergy/internal"
	"synergy/ports"
)

// AnalysisConfig is the recognized configuration surface of one analysis.
type AnalysisConfig struct {
	Method            dose.SolverMethod
	NullModel         dose.NullModelVariant
	Statistic         dose.StatisticKind
	VarianceMethod    dose.VarianceMode
	VarianceTransform variance.Transform

	// BootstrapCovarianceCount is the number of resamples used to build
	// CP; zero skips the prediction-error covariance.
	BootstrapCovarianceCount int
	// BootstrapStatisticCount is the number of resamples for the
	// statistic null distribution; zero selects the normal approximation.
	BootstrapStatisticCount int

	Constraints dose.ConstraintSpec
	Fixed       map[string]float64
	Transform   dose.TransformSpec

	CompoundNames   [2]string
	Cutoff          float64
	ConfidenceLevel float64
	Seed            int64
	Workers         int

	ResamplingPolicy  bootstrap.Policy
	ErrorDistribution bootstrap.ErrorModel
}

func (c AnalysisConfig) withDefaults() AnalysisConfig {
	if c.Method == "" {
		c.Method = dose.SolverLevenbergMarquardt
	}
	if c.NullModel == "" {
		c.NullModel = dose.GeneralizedLoewe
	}
	if c.Statistic == "" {
		c.Statistic = dose.StatisticBoth
	}
	if c.VarianceMethod == "" {
		c.VarianceMethod = dose.VarianceEqual
	}
	if c.Cutoff == 0 {
		c.Cutoff = 0.95
	}
	if c.ConfidenceLevel == 0 {
		c.ConfidenceLevel = 0.95
	}
	return c
}

// AnalysisResult is the complete output contract consumed by plotting and
// reporting collaborators.
type AnalysisResult struct {
	ID        core.AnalysisID          `json:"id"`
	Compounds [2]string                `json:"compounds"`
	Model     *dose.MarginalModel      `json:"model"`
	Surface   *dose.ResponseSurface    `json:"surface"`
	Test      *dose.TestResult         `json:"test,omitempty"`
	Pointwise []dose.ConfidenceInterval `json:"pointwise,omitempty"`
	Overall   *dose.ConfidenceInterval `json:"overall,omitempty"`

	BootstrapNominal   int `json:"bootstrap_nominal,omitempty"`
	BootstrapEffective int `json:"bootstrap_effective,omitempty"`
}

// AnalysisService wires the pipeline components together.
type AnalysisService struct {
	fitter *fit.Fitter
	null   *nullmodel.Engine
	boot   *bootstrap.Engine
	ci     *confidence.Engine
	rng    ports.RNGPort
	log    *internal.Logger
}

// NewAnalysisService builds the service over a seeded RNG port.
func NewAnalysisService(rng ports.RNGPort, logger *internal.Logger) *AnalysisService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	fitter := fit.NewFitter()
	null := nullmodel.NewEngine()
	return &AnalysisService{
		fitter: fitter,
		null:   null,
		boot:   bootstrap.NewEngine(fitter, null, rng),
		ci:     confidence.NewEngine(),
		rng:    rng,
		log:    logger,
	}
}

// FitMarginals runs the configured solver and, when it reports a
// convergence failure, falls back to Nelder-Mead. The attempts are an
// ordered list evaluated until one succeeds; each engine call is a single
// attempt.
func (s *AnalysisService) FitMarginals(data *dose.Dataset, cfg AnalysisConfig) (*dose.MarginalModel, error) {
	cfg = cfg.withDefaults()
	attempts := []dose.SolverMethod{cfg.Method}
	if cfg.Method != dose.SolverNelderMead {
		attempts = append(attempts, dose.SolverNelderMead)
	}
	var lastErr error
	for _, method := range attempts {
		model, err := s.fitter.Fit(fit.Request{
			Data:        data,
			Transform:   cfg.Transform,
			Constraints: cfg.Constraints,
			Fixed:       cfg.Fixed,
			Method:      method,
		})
		if err == nil {
			return model, nil
		}
		lastErr = err
		if !errors.Is(err, core.ErrConvergence) {
			return nil, err
		}
		s.log.Warn("marginal fit with %s did not converge: %v", method, err)
	}
	return nil, lastErr
}

// Run executes the whole pipeline on one dataset.
func (s *AnalysisService) Run(ctx context.Context, data *dose.Dataset, cfg AnalysisConfig) (*AnalysisResult, error) {
	cfg = cfg.withDefaults()

	model, err := s.FitMarginals(data, cfg)
	if err != nil {
		return nil, err
	}
	s.log.Debug("marginal fit: sigma=%.4g df=%d shared_asymptote=%v",
		model.Sigma, model.DF, model.SharedAsymptote)

	latent := model.Transform.ForwardAll(data)
	varEst, err := variance.NewEstimator(cfg.VarianceMethod, cfg.VarianceTransform).Fit(latent)
	if err != nil {
		return nil, err
	}
	groupVariance := func(g dose.ReplicateGroup) float64 {
		if v := varEst.ForGroup(g); v > 0 {
			return v
		}
		return model.Sigma * model.Sigma
	}

	surface, err := s.null.Surface(model, cfg.NullModel, data, groupVariance)
	if err != nil {
		return nil, err
	}

	bootCfg := bootstrap.Config{
		Policy:  cfg.ResamplingPolicy,
		Errors:  cfg.ErrorDistribution,
		Seed:    cfg.Seed,
		Workers: cfg.Workers,
	}
	if cfg.BootstrapCovarianceCount > 0 {
		covCfg := bootCfg
		covCfg.Replicates = cfg.BootstrapCovarianceCount
		cp, kept, err := s.boot.CovarianceMatrix(ctx, data, model, cfg.NullModel, covCfg)
		if err != nil {
			return nil, err
		}
		surface.CP = cp
		s.log.Debug("CP covariance from %d/%d replicates", kept, cfg.BootstrapCovarianceCount)
	}

	ses := make([]float64, len(surface.Points))
	latentGroups := latent.OffAxisGroups()
	for i, g := range latentGroups {
		ses[i] = standardError(groupVariance(g), len(g.Effects))
	}

	result := &AnalysisResult{
		ID:        core.AnalysisID(core.NewID()),
		Compounds: cfg.CompoundNames,
		Model:     model,
		Surface:   surface,
	}

	in := statistic.Input{
		Surface:        surface,
		Model:          model,
		StandardErrors: ses,
		Cutoff:         cfg.Cutoff,
	}
	statEngine := statistic.NewEngine(s.rng.SeededStream("max-null", cfg.Seed))

	var bootRes *bootstrap.Result
	if cfg.BootstrapStatisticCount > 0 {
		statCfg := bootCfg
		statCfg.Replicates = cfg.BootstrapStatisticCount
		bootRes, err = s.boot.NullDistribution(ctx, data, model, surface, cfg.NullModel,
			cfg.VarianceMethod, cfg.VarianceTransform, cfg.Cutoff, statCfg)
		if err != nil {
			return nil, err
		}
		result.BootstrapNominal = bootRes.Nominal
		result.BootstrapEffective = bootRes.Effective
		s.log.Info("statistic bootstrap: %d/%d replicates usable", bootRes.Effective, bootRes.Nominal)
	}

	if cfg.Statistic != dose.StatisticNone {
		test := &dose.TestResult{Cutoff: cfg.Cutoff}
		if cfg.Statistic == dose.StatisticMeanR || cfg.Statistic == dose.StatisticBoth {
			global, err := statEngine.MeanR(in)
			if err != nil {
				return nil, err
			}
			if bootRes != nil {
				global.Reference = dose.ReferenceBootstrap
				global.PValue = statistic.TailProportion(bootRes.MeanR, global.Statistic)
			}
			test.Global = global
		}
		if cfg.Statistic == dose.StatisticMaxR || cfg.Statistic == dose.StatisticBoth {
			if bootRes != nil {
				points, err := statEngine.PointStatistics(in)
				if err != nil {
					return nil, err
				}
				test.Points = statistic.ClassifyPoints(in, points, bootRes.MaxAbs, dose.ReferenceBootstrap)
			} else {
				points, err := statEngine.MaxR(in)
				if err != nil {
					return nil, err
				}
				test.Points = points
			}
		}
		result.Test = test
	}

	if bootRes != nil {
		pointwise, err := s.ci.Bootstrap(surface, bootRes.PointEffects, cfg.ConfidenceLevel)
		if err != nil {
			return nil, err
		}
		overall, err := s.ci.BootstrapOverall(bootRes.PointEffects, cfg.ConfidenceLevel)
		if err != nil {
			return nil, err
		}
		result.Pointwise = pointwise
		result.Overall = &overall
	} else {
		result.Pointwise = s.ci.Normal(surface, model, ses, cfg.ConfidenceLevel)
		overall := s.ci.NormalOverall(surface, model, ses, cfg.ConfidenceLevel)
		result.Overall = &overall
	}
	return result, nil
}

func standardError(variance float64, n int) float64 {
	if n <= 0 || variance <= 0 {
		return 0
	}
	return math.Sqrt(variance / float64(n))
}
