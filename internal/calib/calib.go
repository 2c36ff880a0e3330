// Package calib fits model parameters against an observed datafile by
// fanning workers out over a shared persisted study.
package calib

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/tendaim/epifit/internal/epi"
	"github.com/tendaim/epifit/internal/study"
)

type Config struct {
	Name            string
	Workers         int
	TrialsPerWorker int
	Bounds          []study.Bounds
	DataFile        string
	Base            epi.Params
	Seed            int64
}

func DefaultConfig() Config {
	return Config{
		Name:            "epifit-calibration",
		Workers:         4,
		TrialsPerWorker: 25,
		Bounds: []study.Bounds{
			{Name: "beta", Low: 0.005, High: 0.020},
			{Name: "rel_death_prob", Low: 0.5, High: 3.0},
		},
		Base: epi.DefaultParams(),
	}
}

// DBPath derives the study database filename from the study name.
func (c Config) DBPath() string { return c.Name + ".db" }

func (c Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("study name must not be empty")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.TrialsPerWorker <= 0 {
		return fmt.Errorf("trials per worker must be positive, got %d", c.TrialsPerWorker)
	}
	if len(c.Bounds) == 0 {
		return fmt.Errorf("no parameter bounds given")
	}
	if c.DataFile == "" {
		return fmt.Errorf("datafile must be set")
	}
	return nil
}

// RunSim builds a sim from the base params with the sampled overrides
// applied, attaches the datafile and a data-driven testing
// intervention, and runs it.
func RunSim(ctx context.Context, cfg Config, pars map[string]float64, label string) (*epi.Sim, error) {
	p := cfg.Base
	if v, ok := pars["beta"]; ok {
		p.Beta = v
	}
	if v, ok := pars["rel_death_prob"]; ok {
		p.RelDeathProb = v
	}
	p.Interventions = append([]epi.Intervention{}, p.Interventions...)
	p.Interventions = append(p.Interventions, &epi.TestNum{FromData: true})

	sim, err := epi.NewSim(p, label)
	if err != nil {
		return nil, err
	}
	if err := sim.LoadData(cfg.DataFile); err != nil {
		return nil, err
	}
	if _, err := sim.Run(ctx); err != nil {
		return nil, err
	}
	return sim, nil
}

// Mismatch runs a sim for the sampled parameters and returns its fit
// mismatch against the datafile.
func Mismatch(ctx context.Context, cfg Config, pars map[string]float64) (float64, error) {
	sim, err := RunSim(ctx, cfg, pars, "")
	if err != nil {
		return 0, err
	}
	fit, err := sim.ComputeFit()
	if err != nil {
		return 0, err
	}
	return fit.Mismatch, nil
}

// MakeStudy deletes any existing study database of the same name and
// creates a fresh one.
func MakeStudy(ctx context.Context, cfg Config) error {
	path := cfg.DBPath()
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove existing calibration %s: %w", path, err)
		}
		fmt.Printf("removed existing calibration %s\n", path)
	}
	st, err := study.Create(ctx, path, cfg.Name)
	if err != nil {
		return err
	}
	return st.Close()
}

// worker claims and evaluates trials until its share is done.
func worker(ctx context.Context, cfg Config, st *study.Study, rng *rand.Rand) error {
	for i := 0; i < cfg.TrialsPerWorker; i++ {
		trial, err := st.StartTrial(ctx, rng, cfg.Bounds)
		if err != nil {
			return err
		}
		fmt.Printf("trial %d: beta=%.5f rel_death_prob=%.3f\n",
			trial.Number, trial.Params["beta"], trial.Params["rel_death_prob"])

		mismatch, err := Mismatch(ctx, cfg, trial.Params)
		if err != nil {
			if ferr := st.FailTrial(ctx, trial, err); ferr != nil {
				return ferr
			}
			continue
		}
		if err := st.CompleteTrial(ctx, trial, mismatch); err != nil {
			return err
		}
	}
	return nil
}

// RunWorkers runs the configured number of workers concurrently against
// the shared study database. The first worker error wins.
func RunWorkers(ctx context.Context, cfg Config) error {
	st, err := study.Load(ctx, cfg.DBPath(), cfg.Name)
	if err != nil {
		return err
	}
	defer st.Close()

	errs := make([]error, cfg.Workers)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(cfg.Seed + int64(idx)))
			errs[idx] = worker(ctx, cfg, st, rng)
		}(w)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Outcome summarizes a finished calibration.
type Outcome struct {
	BestParams map[string]float64
	BestValue  float64
	Trials     int
	Elapsed    time.Duration
}

// Calibrate is the full sequence: fresh study, parallel workers, best
// parameters.
func Calibrate(ctx context.Context, cfg Config) (*Outcome, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	if err := MakeStudy(ctx, cfg); err != nil {
		return nil, err
	}
	if err := RunWorkers(ctx, cfg); err != nil {
		return nil, err
	}

	st, err := study.Load(ctx, cfg.DBPath(), cfg.Name)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	best, err := st.BestTrial(ctx)
	if err != nil {
		return nil, err
	}
	completed, err := st.CountCompleted(ctx)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		BestParams: best.Params,
		BestValue:  best.Value,
		Trials:     completed,
		Elapsed:    time.Since(start),
	}, nil
}
