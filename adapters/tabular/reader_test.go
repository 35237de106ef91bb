package tabular

import (
	"errors"
	"strings"
	"testing"

	"synergy/domain/core"
)

func TestReadObservationTable(t *testing.T) {
	in := strings.NewReader(`d1,d2,effect,experiment
0,0,0.11,plate-1
0.5,0,0.42,plate-1
0,1,0.56,plate-2
0.5,1,0.73,plate-2
`)
	ds, err := Read(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Observations) != 4 {
		t.Fatalf("expected 4 observations, got %d", len(ds.Observations))
	}
	o := ds.Observations[3]
	if o.D1 != 0.5 || o.D2 != 1 || o.Effect != 0.73 {
		t.Errorf("row mismatch: %+v", o)
	}
	if o.Experiment != core.ExperimentKey("plate-2") {
		t.Errorf("experiment: got %q", o.Experiment)
	}
	if len(ds.OffAxis()) != 1 {
		t.Errorf("off-axis count: got %d", len(ds.OffAxis()))
	}
}

func TestReadHeaderCaseInsensitive(t *testing.T) {
	in := strings.NewReader("D1, D2, Effect\n1,0,0.5\n")
	ds, err := Read(in)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Observations[0].Experiment != "" {
		t.Error("experiment column absent but populated")
	}
}

func TestReadRejectsMissingColumns(t *testing.T) {
	_, err := Read(strings.NewReader("d1,d2\n1,2\n"))
	if !errors.Is(err, core.ErrInvalidDataset) {
		t.Errorf("missing effect column: got %v", err)
	}
}

func TestReadRejectsBadNumbers(t *testing.T) {
	_, err := Read(strings.NewReader("d1,d2,effect\n1,2,high\n"))
	if !errors.Is(err, core.ErrInvalidDataset) {
		t.Errorf("non-numeric effect: got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error should name the line: %v", err)
	}
}

func TestReadPropagatesDatasetValidation(t *testing.T) {
	_, err := Read(strings.NewReader("d1,d2,effect\n-1,0,0.5\n"))
	if !errors.Is(err, core.ErrInvalidDataset) {
		t.Errorf("negative dose: got %v", err)
	}
}
