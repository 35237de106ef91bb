package dose

import (
	"math"
	"testing"
)

func logisticPair() TransformPair {
	return TransformPair{
		Forward: func(y float64, args map[string]float64) float64 {
			n0 := args["N0"]
			return math.Log(y/n0) / math.Ln2
		},
		Inverse: func(z float64, args map[string]float64) float64 {
			n0 := args["N0"]
			return n0 * math.Exp(z*math.Ln2)
		},
	}
}

func powerPair() TransformPair {
	return TransformPair{
		Forward: func(y float64, args map[string]float64) float64 {
			return math.Pow(y, args["lambda"])
		},
		Inverse: func(z float64, args map[string]float64) float64 {
			return math.Pow(z, 1/args["lambda"])
		},
	}
}

func TestTransformRoundTrip(t *testing.T) {
	spec := TransformSpec{
		Biological:    logisticPair(),
		Power:         powerPair(),
		CompositeArgs: map[string]float64{"N0": 0.2, "lambda": 0.5},
	}
	for _, y := range []float64{0.25, 0.5, 1.0, 3.7, 12.0} {
		got := spec.Inverse(spec.Forward(y))
		if math.Abs(got-y) > 1e-9 {
			t.Errorf("round trip of %v gave %v", y, got)
		}
	}
}

func TestTransformIdentityWhenAbsent(t *testing.T) {
	var spec TransformSpec
	if err := spec.Validate(); err != nil {
		t.Fatalf("zero spec should validate: %v", err)
	}
	if spec.Forward(1.5) != 1.5 || spec.Inverse(1.5) != 1.5 {
		t.Error("absent transform must be the identity")
	}
}

func TestTransformHalfPairRejected(t *testing.T) {
	spec := TransformSpec{Biological: TransformPair{Forward: func(y float64, _ map[string]float64) float64 { return y }}}
	if err := spec.Validate(); err == nil {
		t.Error("forward without inverse must be a configuration error")
	}
	spec = TransformSpec{Power: TransformPair{Inverse: func(y float64, _ map[string]float64) float64 { return y }}}
	if err := spec.Validate(); err == nil {
		t.Error("inverse without forward must be a configuration error")
	}
}

func TestForwardAllKeepsDoses(t *testing.T) {
	spec := TransformSpec{
		Power:         powerPair(),
		CompositeArgs: map[string]float64{"lambda": 2},
	}
	ds := &Dataset{Observations: []Observation{{D1: 1, D2: 2, Effect: 3}}}
	out := spec.ForwardAll(ds)
	if out.Observations[0].D1 != 1 || out.Observations[0].D2 != 2 {
		t.Error("doses must be untouched")
	}
	if out.Observations[0].Effect != 9 {
		t.Errorf("expected transformed effect 9, got %v", out.Observations[0].Effect)
	}
	if ds.Observations[0].Effect != 3 {
		t.Error("original dataset must not be mutated")
	}
}
