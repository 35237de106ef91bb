package core

import (
	"errors"
	"strings"
	"testing"
)

func TestConvergenceErrorUnwraps(t *testing.T) {
	err := NewConvergenceError("levenberg_marquardt", 120, 0.42)
	if !errors.Is(err, ErrConvergence) {
		t.Fatal("convergence errors must match the sentinel")
	}
	var ce *ConvergenceError
	if !errors.As(err, &ce) {
		t.Fatal("typed convergence error lost")
	}
	if ce.Solver != "levenberg_marquardt" || ce.Iterations != 120 {
		t.Errorf("details lost: %+v", ce)
	}
	if !strings.Contains(err.Error(), "levenberg_marquardt") {
		t.Errorf("message should name the solver: %v", err)
	}
}

func TestConstructorsWrapSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{NewConstraintError("bad row"), ErrConstraintInfeasible},
		{NewMonotonicityError("hsa"), ErrMonotonicity},
		{NewSingularCovarianceError("meanR"), ErrSingularCovariance},
		{NewDatasetError("empty"), ErrInvalidDataset},
	}
	for _, tc := range cases {
		if !errors.Is(tc.err, tc.want) {
			t.Errorf("%v does not wrap %v", tc.err, tc.want)
		}
	}
}

func TestNewIDUniqueness(t *testing.T) {
	a, b := NewID(), NewID()
	if a.IsEmpty() || b.IsEmpty() {
		t.Fatal("generated IDs must not be empty")
	}
	if a == b {
		t.Error("consecutive IDs collided")
	}
}

func TestParseAnalysisID(t *testing.T) {
	if _, err := ParseAnalysisID("  "); err == nil {
		t.Error("blank analysis ID must be rejected")
	}
	id, err := ParseAnalysisID("run-7")
	if err != nil {
		t.Fatal(err)
	}
	if id.String() != "run-7" {
		t.Errorf("got %q", id)
	}
}
