package dose

import (
	"synergy/domain/core"
)

// TransformFunc maps a response value under a fixed argument bundle.
type TransformFunc func(y float64, args map[string]float64) float64

// TransformPair is a matched forward/inverse transform. Both members must
// be supplied together; a half-specified pair is a configuration error.
type TransformPair struct {
	Forward TransformFunc
	Inverse TransformFunc
}

func (p TransformPair) empty() bool   { return p.Forward == nil && p.Inverse == nil }
func (p TransformPair) partial() bool { return (p.Forward == nil) != (p.Inverse == nil) }

// TransformSpec bundles the optional biological transform (latent growth or
// occupancy value to observed measurement and back) and the optional power
// variance-stabilizing transform, with the fixed arguments both evaluate
// against. The zero value is the identity transform.
type TransformSpec struct {
	Biological    TransformPair
	Power         TransformPair
	CompositeArgs map[string]float64
}

// Validate checks that each pair is either complete or absent.
func (t TransformSpec) Validate() error {
	if t.Biological.partial() {
		return core.ErrTransformPair
	}
	if t.Power.partial() {
		return core.ErrTransformPair
	}
	return nil
}

// Forward maps an observed effect onto the latent fitting scale by applying
// the biological forward transform followed by the power transform.
func (t TransformSpec) Forward(effect float64) float64 {
	y := effect
	if t.Biological.Forward != nil {
		y = t.Biological.Forward(y, t.CompositeArgs)
	}
	if t.Power.Forward != nil {
		y = t.Power.Forward(y, t.CompositeArgs)
	}
	return y
}

// Inverse maps a latent model prediction back onto the observation scale.
func (t TransformSpec) Inverse(latent float64) float64 {
	y := latent
	if t.Power.Inverse != nil {
		y = t.Power.Inverse(y, t.CompositeArgs)
	}
	if t.Biological.Inverse != nil {
		y = t.Biological.Inverse(y, t.CompositeArgs)
	}
	return y
}

// ForwardAll transforms a copy of the dataset onto the latent scale.
func (t TransformSpec) ForwardAll(d *Dataset) *Dataset {
	out := make([]Observation, len(d.Observations))
	for i, o := range d.Observations {
		o.Effect = t.Forward(o.Effect)
		out[i] = o
	}
	return &Dataset{Observations: out}
}
