// Package dose holds the domain model for two-compound dose-response
// analysis: observation tables, marginal curve parameters, null-model
// predicted surfaces and the test results derived from them.
package dose

import (
	"math"
	"sort"

	"synergy/domain/core"
)

// Observation is a single measured response at a dose combination.
// On-axis observations have D1 == 0 or D2 == 0; the double-zero point
// carries the baseline.
type Observation struct {
	D1         float64            `json:"d1"`
	D2         float64            `json:"d2"`
	Effect     float64            `json:"effect"`
	Experiment core.ExperimentKey `json:"experiment,omitempty"`
}

// OnAxis reports whether the observation involves at most one compound.
func (o Observation) OnAxis() bool {
	return o.D1 == 0 || o.D2 == 0
}

// Pair returns the dose combination of the observation.
func (o Observation) Pair() Pair {
	return Pair{D1: o.D1, D2: o.D2}
}

// Pair is a unique dose combination (d1, d2).
type Pair struct {
	D1 float64 `json:"d1"`
	D2 float64 `json:"d2"`
}

// OffAxis reports whether both doses are strictly positive.
func (p Pair) OffAxis() bool {
	return p.D1 > 0 && p.D2 > 0
}

// Dataset is an observation table plus the index structures the engines
// need: on-axis/off-axis split and replicate groups keyed by dose pair.
type Dataset struct {
	Observations []Observation
}

// NewDataset validates the raw observation rows and wraps them.
func NewDataset(obs []Observation) (*Dataset, error) {
	if len(obs) == 0 {
		return nil, core.NewDatasetError("empty observation table")
	}
	for _, o := range obs {
		if o.D1 < 0 || o.D2 < 0 {
			return nil, core.NewDatasetError("negative dose")
		}
		if math.IsNaN(o.Effect) || math.IsInf(o.Effect, 0) {
			return nil, core.NewDatasetError("non-finite effect")
		}
	}
	return &Dataset{Observations: obs}, nil
}

// OnAxis returns the observations with at most one non-zero dose.
func (d *Dataset) OnAxis() []Observation {
	out := make([]Observation, 0, len(d.Observations))
	for _, o := range d.Observations {
		if o.OnAxis() {
			out = append(out, o)
		}
	}
	return out
}

// OffAxis returns the observations with both doses strictly positive.
func (d *Dataset) OffAxis() []Observation {
	out := make([]Observation, 0, len(d.Observations))
	for _, o := range d.Observations {
		if !o.OnAxis() {
			out = append(out, o)
		}
	}
	return out
}

// ReplicateGroup is the set of effects measured at one dose combination.
type ReplicateGroup struct {
	Pair    Pair
	Effects []float64
}

// Mean returns the average effect of the group.
func (g ReplicateGroup) Mean() float64 {
	sum := 0.0
	for _, e := range g.Effects {
		sum += e
	}
	return sum / float64(len(g.Effects))
}

// Variance returns the unbiased sample variance, or 0 for singletons.
func (g ReplicateGroup) Variance() float64 {
	n := len(g.Effects)
	if n < 2 {
		return 0
	}
	m := g.Mean()
	ss := 0.0
	for _, e := range g.Effects {
		ss += (e - m) * (e - m)
	}
	return ss / float64(n-1)
}

// Groups collapses the observations into replicate groups, one per unique
// dose combination, in deterministic (d1, d2) order.
func (d *Dataset) Groups() []ReplicateGroup {
	return groupBy(d.Observations)
}

// OffAxisGroups collapses only the off-axis observations.
func (d *Dataset) OffAxisGroups() []ReplicateGroup {
	return groupBy(d.OffAxis())
}

func groupBy(obs []Observation) []ReplicateGroup {
	idx := make(map[Pair]int)
	groups := make([]ReplicateGroup, 0)
	for _, o := range obs {
		p := o.Pair()
		i, ok := idx[p]
		if !ok {
			i = len(groups)
			idx[p] = i
			groups = append(groups, ReplicateGroup{Pair: p})
		}
		groups[i].Effects = append(groups[i].Effects, o.Effect)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Pair.D1 != groups[j].Pair.D1 {
			return groups[i].Pair.D1 < groups[j].Pair.D1
		}
		return groups[i].Pair.D2 < groups[j].Pair.D2
	})
	return groups
}

// MaxDose returns the largest observed dose of the given compound (1 or 2).
func (d *Dataset) MaxDose(compound int) float64 {
	max := 0.0
	for _, o := range d.Observations {
		dose := o.D1
		if compound == 2 {
			dose = o.D2
		}
		if dose > max {
			max = dose
		}
	}
	return max
}
