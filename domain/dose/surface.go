package dose

import "fmt"

// NullModelVariant is the closed set of non-interaction null models.
type NullModelVariant string

const (
	GeneralizedLoewe NullModelVariant = "generalized_loewe"
	ClassicalLoewe   NullModelVariant = "classical_loewe"
	HSA              NullModelVariant = "hsa"
	Bliss            NullModelVariant = "bliss"
	AlternativeLoewe NullModelVariant = "alternative_loewe"
)

// ParseNullModel validates a null model selector string.
func ParseNullModel(s string) (NullModelVariant, error) {
	switch NullModelVariant(s) {
	case GeneralizedLoewe, ClassicalLoewe, HSA, Bliss, AlternativeLoewe:
		return NullModelVariant(s), nil
	}
	return "", fmt.Errorf("unknown null model %q", s)
}

// LoeweFamily reports whether the variant solves the occupancy equation.
func (v NullModelVariant) LoeweFamily() bool {
	return v == GeneralizedLoewe || v == ClassicalLoewe || v == AlternativeLoewe
}

// RequiresMonotonicity reports whether the variant demands both marginal
// curves move in the same direction.
func (v NullModelVariant) RequiresMonotonicity() bool {
	return v == HSA || v == Bliss || v == AlternativeLoewe
}

// StatisticKind selects which deviation tests to run.
type StatisticKind string

const (
	StatisticNone  StatisticKind = "none"
	StatisticMeanR StatisticKind = "meanR"
	StatisticMaxR  StatisticKind = "maxR"
	StatisticBoth  StatisticKind = "both"
)

// ParseStatistic validates a statistic selector string.
func ParseStatistic(s string) (StatisticKind, error) {
	switch StatisticKind(s) {
	case StatisticNone, StatisticMeanR, StatisticMaxR, StatisticBoth:
		return StatisticKind(s), nil
	}
	return "", fmt.Errorf("unknown statistic %q", s)
}

// VarianceMode selects how residual variance is estimated.
type VarianceMode string

const (
	VarianceEqual   VarianceMode = "equal"
	VarianceUnequal VarianceMode = "unequal"
	VarianceModel   VarianceMode = "model"
)

// ParseVarianceMode validates a variance method selector string.
func ParseVarianceMode(s string) (VarianceMode, error) {
	switch VarianceMode(s) {
	case VarianceEqual, VarianceUnequal, VarianceModel:
		return VarianceMode(s), nil
	}
	return "", fmt.Errorf("unknown variance method %q", s)
}

// SurfacePoint is one dose combination on a predicted response surface.
type SurfacePoint struct {
	Pair         Pair    `json:"pair"`
	Predicted    float64 `json:"predicted"`
	ObservedMean float64 `json:"observed_mean"`
	Replicates   int     `json:"replicates"`
	ZScore       float64 `json:"z_score"`
	Occupancy    float64 `json:"occupancy,omitempty"`
}

// ResponseSurface is the null-model prediction over a set of dose
// combinations, with the standardized deviations of the observed means and
// their covariance. CP is stored row-major, one row per off-axis point.
type ResponseSurface struct {
	Variant NullModelVariant `json:"variant"`
	Points  []SurfacePoint   `json:"points"`
	CP      [][]float64      `json:"cp,omitempty"`
}

// ZScores returns the per-point Z-scores in point order.
func (s *ResponseSurface) ZScores() []float64 {
	z := make([]float64, len(s.Points))
	for i, p := range s.Points {
		z[i] = p.ZScore
	}
	return z
}

// Call is the ternary conclusion of the per-point test.
type Call string

const (
	CallSynergy    Call = "synergy"
	CallAntagonism Call = "antagonism"
	CallAdditive   Call = "additive"
)

// ReferenceKind names the distribution a p-value was computed against.
type ReferenceKind string

const (
	ReferenceF         ReferenceKind = "F"
	ReferenceBootstrap ReferenceKind = "bootstrap"
	ReferenceNormalMax ReferenceKind = "normal_max"
)

// GlobalResult is the meanR outcome: an F-type statistic over all off-axis
// combinations against its reference distribution.
type GlobalResult struct {
	Statistic float64       `json:"statistic"`
	DF1       int           `json:"df1"`
	DF2       int           `json:"df2"`
	Reference ReferenceKind `json:"reference"`
	PValue    float64       `json:"p_value"`
}

// PointResult is the maxR outcome at one off-axis dose combination.
type PointResult struct {
	Pair      Pair    `json:"pair"`
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
	Call      Call    `json:"call"`
}

// TestResult carries whichever of the two tests were requested. Both tests
// are computed from the same CP covariance so their conclusions agree on
// the same data.
type TestResult struct {
	Global *GlobalResult `json:"global,omitempty"`
	Points []PointResult `json:"points,omitempty"`
	Cutoff float64       `json:"cutoff"`
}

// MaxPoint returns the point result with the largest absolute statistic,
// or nil when no per-point test was run.
func (r *TestResult) MaxPoint() *PointResult {
	var best *PointResult
	for i := range r.Points {
		if best == nil || abs(r.Points[i].Statistic) > abs(best.Statistic) {
			best = &r.Points[i]
		}
	}
	return best
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// ConfidenceInterval is an effect-size estimate with bounds, either for one
// dose combination or aggregated over all off-axis combinations.
type ConfidenceInterval struct {
	Pair     *Pair   `json:"pair,omitempty"`
	Estimate float64 `json:"estimate"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
	Level    float64 `json:"level"`
}
