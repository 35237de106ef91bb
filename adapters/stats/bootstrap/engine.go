// Package bootstrap resamples marginal-fit residuals and re-drives the
// fit, null-model surface and test statistics to build empirical null
// distributions, the CP prediction-error covariance, and percentile
// confidence intervals. Replicates run concurrently with deterministic
// per-replicate random streams; failed replicates are discarded, never
// substituted.
package bootstrap

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"synergy/adapters/stats/fit"
	"synergy/adapters/stats/nullmodel"
	"synergy/adapters/stats/statistic"
	"synergy/adapters/stats/variance"
	"synergy/domain/core"
	"synergy/domain/dose"
	"synergy/ports"
)

// Policy selects how residuals are resampled.
type Policy string

const (
	// PolicyResidual draws residuals from the pooled fit residuals with
	// replacement.
	PolicyResidual Policy = "residual"
	// PolicyWild multiplies each draw by a Rademacher sign, robust to
	// heteroskedastic errors.
	PolicyWild Policy = "wild"
)

// ErrorModel selects the error distribution for synthetic residuals.
type ErrorModel string

const (
	// ErrorsEmpirical reuses the observed fit residuals.
	ErrorsEmpirical ErrorModel = "empirical"
	// ErrorsNormal draws from N(0, sigma) instead.
	ErrorsNormal ErrorModel = "normal"
)

// Config parametrizes one bootstrap run.
type Config struct {
	Replicates int
	Policy     Policy
	Errors     ErrorModel
	Seed       int64
	Workers    int
}

func (c Config) withDefaults() Config {
	if c.Policy == "" {
		c.Policy = PolicyResidual
	}
	if c.Errors == "" {
		c.Errors = ErrorsEmpirical
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// Engine wraps the fit + surface + statistic chain as a repeatable unit.
type Engine struct {
	fitter *fit.Fitter
	null   *nullmodel.Engine
	rng    ports.RNGPort
}

// NewEngine creates a bootstrap engine over the shared pipeline components.
func NewEngine(fitter *fit.Fitter, null *nullmodel.Engine, rng ports.RNGPort) *Engine {
	return &Engine{fitter: fitter, null: null, rng: rng}
}

// Result aggregates the surviving replicates of a statistic bootstrap. The
// effective count is what quantile estimation must use; it is never padded
// back up to the nominal count.
type Result struct {
	Nominal      int
	Effective    int
	MeanR        []float64   // global statistic per surviving replicate
	MaxAbs       []float64   // max_k |T_k| per surviving replicate
	PointEffects [][]float64 // observed-minus-predicted per point, per replicate
}

type replicateOut struct {
	meanR   float64
	maxAbs  float64
	effects []float64
}

// CovarianceMatrix estimates CP, the covariance of the null-model
// predictions at the off-axis points induced by marginal-fit uncertainty,
// scaled by 1/sigma^2. It resamples on-axis residuals only.
func (e *Engine) CovarianceMatrix(ctx context.Context, data *dose.Dataset, model *dose.MarginalModel, variant dose.NullModelVariant, cfg Config) ([][]float64, int, error) {
	cfg = cfg.withDefaults()
	latent := model.Transform.ForwardAll(data)
	groups := latent.OffAxisGroups()
	if len(groups) == 0 {
		return nil, 0, core.ErrNoOffAxisPoints
	}
	pairs := make([]dose.Pair, len(groups))
	for i, g := range groups {
		pairs[i] = g.Pair
	}

	preds := make([][]float64, cfg.Replicates)
	err := e.forEachReplicate(ctx, cfg, func(b int, rng *rand.Rand) {
		resampled := e.resampleOnAxis(latent, model, rng, cfg)
		refit, ferr := e.fitter.Fit(fit.Request{
			Data:        resampled,
			Constraints: model.Constraints,
			Method:      model.Method,
		})
		if ferr != nil {
			return
		}
		out, perr := e.null.Predict(refit, variant, pairs)
		if perr != nil {
			return
		}
		row := make([]float64, len(out))
		for i, p := range out {
			row[i] = p.Response
		}
		preds[b] = row
	})
	if err != nil {
		return nil, 0, err
	}

	kept := preds[:0]
	for _, row := range preds {
		if row != nil {
			kept = append(kept, row)
		}
	}
	if len(kept) < 2 {
		return nil, len(kept), fmt.Errorf("%w: %d of %d covariance replicates converged",
			core.ErrConvergence, len(kept), cfg.Replicates)
	}

	q := len(pairs)
	mean := make([]float64, q)
	for _, row := range kept {
		for i, v := range row {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(kept))
	}
	sigma2 := model.Sigma * model.Sigma
	cp := make([][]float64, q)
	for i := range cp {
		cp[i] = make([]float64, q)
	}
	for _, row := range kept {
		for i := 0; i < q; i++ {
			for j := 0; j < q; j++ {
				cp[i][j] += (row[i] - mean[i]) * (row[j] - mean[j])
			}
		}
	}
	den := float64(len(kept)-1) * sigma2
	for i := 0; i < q; i++ {
		for j := 0; j < q; j++ {
			cp[i][j] /= den
		}
	}
	return cp, len(kept), nil
}

// NullDistribution re-runs the full pipeline on datasets generated under
// the fitted null model and collects the replicate statistics. The original
// CP is reused for every replicate so the statistics stay comparable.
func (e *Engine) NullDistribution(ctx context.Context, data *dose.Dataset, model *dose.MarginalModel, surface *dose.ResponseSurface, variant dose.NullModelVariant, varMode dose.VarianceMode, varTransform variance.Transform, cutoff float64, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	latent := model.Transform.ForwardAll(data)
	nullPred := make(map[dose.Pair]float64, len(surface.Points))
	obsMean := make(map[dose.Pair]float64, len(surface.Points))
	for _, p := range surface.Points {
		nullPred[p.Pair] = p.Predicted
		obsMean[p.Pair] = p.ObservedMean
	}

	slots := make([]*replicateOut, cfg.Replicates)
	err := e.forEachReplicate(ctx, cfg, func(b int, rng *rand.Rand) {
		slots[b] = e.runReplicate(latent, model, surface, variant, varMode, varTransform, cutoff, nullPred, obsMean, rng, cfg)
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Nominal: cfg.Replicates}
	for _, s := range slots {
		if s == nil {
			continue
		}
		res.Effective++
		res.MeanR = append(res.MeanR, s.meanR)
		res.MaxAbs = append(res.MaxAbs, s.maxAbs)
		res.PointEffects = append(res.PointEffects, s.effects)
	}
	if res.Effective == 0 {
		return nil, fmt.Errorf("%w: all %d bootstrap replicates failed", core.ErrConvergence, cfg.Replicates)
	}
	return res, nil
}

// runReplicate executes one resample-fit-surface-statistic pipeline.
// Any failure discards the replicate; the error is not propagated because a
// failed replicate must not poison the batch.
func (e *Engine) runReplicate(latent *dose.Dataset, model *dose.MarginalModel, surface *dose.ResponseSurface, variant dose.NullModelVariant, varMode dose.VarianceMode, varTransform variance.Transform, cutoff float64, nullPred, obsMean map[dose.Pair]float64, rng *rand.Rand, cfg Config) *replicateOut {
	obs := make([]dose.Observation, len(latent.Observations))
	for i, o := range latent.Observations {
		center := 0.0
		if o.OnAxis() {
			center = predictOnAxis(model.Coef, o)
		} else {
			center = nullPred[o.Pair()]
		}
		o.Effect = center + e.draw(model, rng, cfg)
		obs[i] = o
	}
	resampled := &dose.Dataset{Observations: obs}

	refit, err := e.fitter.Fit(fit.Request{
		Data:        resampled,
		Constraints: model.Constraints,
		Method:      model.Method,
	})
	if err != nil {
		return nil
	}
	est, err := variance.NewEstimator(varMode, varTransform).Fit(resampled)
	if err != nil {
		return nil
	}
	refitSurface, err := e.null.Surface(refit, variant, resampled, func(g dose.ReplicateGroup) float64 {
		if v := est.ForGroup(g); v > 0 {
			return v
		}
		return refit.Sigma * refit.Sigma
	})
	if err != nil {
		return nil
	}
	refitSurface.CP = surface.CP

	groups := resampled.OffAxisGroups()
	ses := make([]float64, len(groups))
	for i, g := range groups {
		v := est.ForGroup(g)
		if v <= 0 {
			v = refit.Sigma * refit.Sigma
		}
		ses[i] = sqrtOver(v, len(g.Effects))
	}
	in := statistic.Input{
		Surface:        refitSurface,
		Model:          refit,
		StandardErrors: ses,
		Cutoff:         cutoff,
	}
	eng := statistic.NewEngine(rng)
	global, err := eng.MeanR(in)
	if err != nil {
		return nil
	}
	points, err := eng.PointStatistics(in)
	if err != nil {
		return nil
	}
	maxAbs := 0.0
	for _, t := range points {
		if a := absFloat(t); a > maxAbs {
			maxAbs = a
		}
	}
	effects := make([]float64, len(refitSurface.Points))
	for i, p := range refitSurface.Points {
		// Observed effect plus the replicate's deviation, which carries
		// both the resampled observed-mean noise and the refit prediction
		// error, so percentile intervals cover the same components as the
		// normal approximation.
		effects[i] = obsMean[p.Pair] - nullPred[p.Pair] + p.ObservedMean - p.Predicted
	}
	return &replicateOut{meanR: global.Statistic, maxAbs: maxAbs, effects: effects}
}

// resampleOnAxis builds a dataset of on-axis points only, centered on the
// fitted marginals.
func (e *Engine) resampleOnAxis(latent *dose.Dataset, model *dose.MarginalModel, rng *rand.Rand, cfg Config) *dose.Dataset {
	onAxis := latent.OnAxis()
	obs := make([]dose.Observation, len(onAxis))
	for i, o := range onAxis {
		o.Effect = predictOnAxis(model.Coef, o) + e.draw(model, rng, cfg)
		obs[i] = o
	}
	return &dose.Dataset{Observations: obs}
}

// draw produces one synthetic residual under the configured policy.
func (e *Engine) draw(model *dose.MarginalModel, rng *rand.Rand, cfg Config) float64 {
	var r float64
	if cfg.Errors == ErrorsNormal || len(model.Residuals) == 0 {
		r = rng.NormFloat64() * model.Sigma
	} else {
		r = model.Residuals[rng.Intn(len(model.Residuals))]
	}
	if cfg.Policy == PolicyWild {
		if rng.Intn(2) == 0 {
			r = -r
		}
	}
	return r
}

// forEachReplicate fans the replicate indices out over a bounded worker
// group. Cancellation applies at replicate granularity: a context error
// abandons unstarted replicates but the work function itself never blocks
// the batch.
func (e *Engine) forEachReplicate(ctx context.Context, cfg Config, work func(b int, rng *rand.Rand)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for b := 0; b < cfg.Replicates; b++ {
		b := b
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			work(b, e.rng.ReplicateStream(cfg.Seed, b))
			return nil
		})
	}
	return g.Wait()
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

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func sqrtOver(v float64, n int) float64 {
	return math.Sqrt(v / float64(n))
}
