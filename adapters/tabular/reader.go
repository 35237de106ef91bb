// Package tabular reads observation tables from CSV files with columns
// d1, d2, effect and an optional experiment grouping column.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"synergy/domain/core"
	"synergy/domain/dose"
)

// ReadFile loads a CSV observation table from disk.
func ReadFile(path string) (*dose.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open observation table: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses an observation table. The header row must name d1, d2 and
// effect; an experiment column is picked up when present.
func Read(r io.Reader) (*dose.Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, core.NewDatasetError("missing header row")
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	d1, ok1 := col["d1"]
	d2, ok2 := col["d2"]
	eff, ok3 := col["effect"]
	if !ok1 || !ok2 || !ok3 {
		return nil, core.NewDatasetError("header must contain d1, d2, effect")
	}
	exp, hasExp := col["experiment"]

	var obs []dose.Observation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.NewDatasetError(fmt.Sprintf("line %d: %v", line, err))
		}
		o := dose.Observation{}
		if o.D1, err = strconv.ParseFloat(rec[d1], 64); err != nil {
			return nil, core.NewDatasetError(fmt.Sprintf("line %d: bad d1 %q", line, rec[d1]))
		}
		if o.D2, err = strconv.ParseFloat(rec[d2], 64); err != nil {
			return nil, core.NewDatasetError(fmt.Sprintf("line %d: bad d2 %q", line, rec[d2]))
		}
		if o.Effect, err = strconv.ParseFloat(rec[eff], 64); err != nil {
			return nil, core.NewDatasetError(fmt.Sprintf("line %d: bad effect %q", line, rec[eff]))
		}
		if hasExp && exp < len(rec) {
			o.Experiment = core.ExperimentKey(rec[exp])
		}
		obs = append(obs, o)
	}
	return dose.NewDataset(obs)
}
