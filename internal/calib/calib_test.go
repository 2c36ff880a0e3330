package calib

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tendaim/epifit/internal/epi"
	"github.com/tendaim/epifit/internal/study"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	base := epi.DefaultParams()
	base.PopSize = 500
	base.PopInfected = 10
	base.StartDay, _ = time.Parse(epi.DateLayout, "2020-02-01")
	base.EndDay, _ = time.Parse(epi.DateLayout, "2020-02-21")
	base.Seed = 3

	cfg := DefaultConfig()
	cfg.Name = filepath.Join(t.TempDir(), "test-calibration")
	cfg.Workers = 2
	cfg.TrialsPerWorker = 2
	cfg.DataFile = filepath.Join("testdata", "example_data.csv")
	cfg.Base = base
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty name", func(c *Config) { c.Name = "" }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"zero trials", func(c *Config) { c.TrialsPerWorker = 0 }},
		{"no bounds", func(c *Config) { c.Bounds = nil }},
		{"no datafile", func(c *Config) { c.DataFile = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.modify(&cfg)
			if err := cfg.validate(); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDBPath(t *testing.T) {
	cfg := Config{Name: "my-example-calibration"}
	if got := cfg.DBPath(); got != "my-example-calibration.db" {
		t.Errorf("expected my-example-calibration.db, got %s", got)
	}
}

func TestRunSimAppliesOverrides(t *testing.T) {
	cfg := testConfig(t)
	pars := map[string]float64{"beta": 0.010, "rel_death_prob": 2.0}

	sim, err := RunSim(context.Background(), cfg, pars, "check")
	if err != nil {
		t.Fatalf("run sim: %v", err)
	}
	if sim.Params.Beta != 0.010 {
		t.Errorf("expected beta 0.010, got %f", sim.Params.Beta)
	}
	if sim.Params.RelDeathProb != 2.0 {
		t.Errorf("expected rel_death_prob 2.0, got %f", sim.Params.RelDeathProb)
	}
	if sim.Label != "check" {
		t.Errorf("expected label check, got %s", sim.Label)
	}
	if sim.Result == nil {
		t.Fatal("expected sim to have been run")
	}
}

func TestMismatchPositive(t *testing.T) {
	cfg := testConfig(t)
	m, err := Mismatch(context.Background(), cfg, map[string]float64{"beta": 0.015, "rel_death_prob": 1.0})
	if err != nil {
		t.Fatalf("mismatch: %v", err)
	}
	if m <= 0 {
		t.Errorf("expected positive mismatch, got %f", m)
	}
}

func TestMakeStudyReplacesExisting(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	if err := MakeStudy(ctx, cfg); err != nil {
		t.Fatalf("first make: %v", err)
	}
	// A second make must succeed by deleting the old database.
	if err := MakeStudy(ctx, cfg); err != nil {
		t.Fatalf("second make: %v", err)
	}

	if _, err := os.Stat(cfg.DBPath()); err != nil {
		t.Fatalf("study db missing: %v", err)
	}
}

func TestCalibrate(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	outcome, err := Calibrate(ctx, cfg)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}

	want := cfg.Workers * cfg.TrialsPerWorker
	if outcome.Trials != want {
		t.Errorf("expected %d completed trials, got %d", want, outcome.Trials)
	}
	if outcome.BestValue <= 0 {
		t.Errorf("expected positive best mismatch, got %f", outcome.BestValue)
	}
	for _, name := range []string{"beta", "rel_death_prob"} {
		if _, ok := outcome.BestParams[name]; !ok {
			t.Errorf("best params missing %s", name)
		}
	}

	// Best value is reproducible from the study on disk.
	st, err := study.Load(ctx, cfg.DBPath(), cfg.Name)
	if err != nil {
		t.Fatalf("load study: %v", err)
	}
	defer st.Close()
	best, err := st.BestTrial(ctx)
	if err != nil {
		t.Fatalf("best: %v", err)
	}
	if best.Value != outcome.BestValue {
		t.Errorf("study best %f differs from outcome %f", best.Value, outcome.BestValue)
	}
}
