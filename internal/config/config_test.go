package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Analysis.Seed != 1 {
		t.Errorf("seed default: got %d", cfg.Analysis.Seed)
	}
	if cfg.Analysis.Workers != 4 {
		t.Errorf("workers default: got %d", cfg.Analysis.Workers)
	}
	if cfg.Analysis.BootstrapCovarianceCount != 200 {
		t.Errorf("CP resamples default: got %d", cfg.Analysis.BootstrapCovarianceCount)
	}
	if cfg.Analysis.Cutoff != 0.95 {
		t.Errorf("cutoff default: got %v", cfg.Analysis.Cutoff)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SYNERGY_SEED", "99")
	t.Setenv("SYNERGY_WORKERS", "2")
	t.Setenv("SYNERGY_CUTOFF", "0.99")
	t.Setenv("SYNERGY_STAT_RESAMPLES", "not-a-number")

	cfg := Load()
	if cfg.Analysis.Seed != 99 {
		t.Errorf("seed: got %d", cfg.Analysis.Seed)
	}
	if cfg.Analysis.Workers != 2 {
		t.Errorf("workers: got %d", cfg.Analysis.Workers)
	}
	if cfg.Analysis.Cutoff != 0.99 {
		t.Errorf("cutoff: got %v", cfg.Analysis.Cutoff)
	}
	if cfg.Analysis.BootstrapStatisticCount != 0 {
		t.Errorf("malformed value must fall back to the default, got %d", cfg.Analysis.BootstrapStatisticCount)
	}
}
