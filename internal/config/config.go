package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tendaim/epifit/internal/calib"
	"github.com/tendaim/epifit/internal/epi"
	"github.com/tendaim/epifit/internal/scenario"
	"github.com/tendaim/epifit/internal/study"
)

type Config struct {
	Sim       SimConfig      `yaml:"sim"`
	Calibrate CalibConfig    `yaml:"calibrate"`
	Scenarios ScenarioConfig `yaml:"scenarios"`
}

type SimConfig struct {
	PopSize      int     `yaml:"pop_size"`
	PopInfected  int     `yaml:"pop_infected"`
	StartDay     string  `yaml:"start_day"`
	EndDay       string  `yaml:"end_day"`
	Beta         float64 `yaml:"beta"`
	RelDeathProb float64 `yaml:"rel_death_prob"`
	Seed         int64   `yaml:"seed"`
	Verbose      bool    `yaml:"verbose"`
}

type CalibConfig struct {
	Name            string       `yaml:"name"`
	Workers         int          `yaml:"workers"`
	TrialsPerWorker int          `yaml:"trials_per_worker"`
	DataFile        string       `yaml:"datafile"`
	Bounds          []BoundsSpec `yaml:"bounds"`
}

type BoundsSpec struct {
	Name string  `yaml:"name"`
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

type ScenarioConfig struct {
	Runs         int    `yaml:"runs"`
	EndDay       string `yaml:"end_day"`
	PeoplePerDay int    `yaml:"people_per_day"`
	DailyTests   int    `yaml:"daily_tests"`
}

func Default() *Config {
	c := calib.DefaultConfig()
	s := scenario.DefaultConfig()
	return &Config{
		Sim: SimConfig{
			PopSize:      epi.DefaultPopSize,
			PopInfected:  epi.DefaultPopInfected,
			StartDay:     "2020-02-01",
			EndDay:       "2020-04-11",
			Beta:         epi.DefaultBeta,
			RelDeathProb: epi.DefaultRelDeathProb,
		},
		Calibrate: CalibConfig{
			Name:            c.Name,
			Workers:         c.Workers,
			TrialsPerWorker: c.TrialsPerWorker,
			Bounds: []BoundsSpec{
				{Name: "beta", Low: 0.005, High: 0.020},
				{Name: "rel_death_prob", Low: 0.5, High: 3.0},
			},
		},
		Scenarios: ScenarioConfig{
			Runs:         s.Runs,
			EndDay:       s.EndDay.Format(epi.DateLayout),
			PeoplePerDay: s.PeoplePerDay,
			DailyTests:   s.DailyTests,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Params converts the sim section into model parameters.
func (c *Config) Params() (epi.Params, error) {
	p := epi.DefaultParams()
	p.PopSize = c.Sim.PopSize
	p.PopInfected = c.Sim.PopInfected
	p.Beta = c.Sim.Beta
	p.RelDeathProb = c.Sim.RelDeathProb
	p.Seed = c.Sim.Seed
	p.Verbose = c.Sim.Verbose

	var err error
	if c.Sim.StartDay != "" {
		p.StartDay, err = time.Parse(epi.DateLayout, c.Sim.StartDay)
		if err != nil {
			return p, fmt.Errorf("start_day: %w", err)
		}
	}
	if c.Sim.EndDay != "" {
		p.EndDay, err = time.Parse(epi.DateLayout, c.Sim.EndDay)
		if err != nil {
			return p, fmt.Errorf("end_day: %w", err)
		}
	}
	return p, nil
}

// CalibrationConfig assembles the calibration settings around the base
// sim parameters.
func (c *Config) CalibrationConfig() (calib.Config, error) {
	base, err := c.Params()
	if err != nil {
		return calib.Config{}, err
	}

	cfg := calib.DefaultConfig()
	cfg.Base = base
	cfg.Seed = c.Sim.Seed
	if c.Calibrate.Name != "" {
		cfg.Name = c.Calibrate.Name
	}
	if c.Calibrate.Workers > 0 {
		cfg.Workers = c.Calibrate.Workers
	}
	if c.Calibrate.TrialsPerWorker > 0 {
		cfg.TrialsPerWorker = c.Calibrate.TrialsPerWorker
	}
	cfg.DataFile = c.Calibrate.DataFile
	if len(c.Calibrate.Bounds) > 0 {
		cfg.Bounds = make([]study.Bounds, len(c.Calibrate.Bounds))
		for i, b := range c.Calibrate.Bounds {
			cfg.Bounds[i] = study.Bounds{Name: b.Name, Low: b.Low, High: b.High}
		}
	}
	return cfg, nil
}

// ScenarioSettings assembles the rollout comparison settings.
func (c *Config) ScenarioSettings() (scenario.Config, error) {
	cfg := scenario.DefaultConfig()
	cfg.PopSize = c.Sim.PopSize
	cfg.PopInfected = c.Sim.PopInfected
	cfg.Beta = c.Sim.Beta
	cfg.RelDeathProb = c.Sim.RelDeathProb
	cfg.Seed = c.Sim.Seed
	if c.Scenarios.Runs > 0 {
		cfg.Runs = c.Scenarios.Runs
	}
	if c.Scenarios.PeoplePerDay > 0 {
		cfg.PeoplePerDay = c.Scenarios.PeoplePerDay
	}
	if c.Scenarios.DailyTests > 0 {
		cfg.DailyTests = c.Scenarios.DailyTests
	}
	if c.Scenarios.EndDay != "" {
		end, err := time.Parse(epi.DateLayout, c.Scenarios.EndDay)
		if err != nil {
			return cfg, fmt.Errorf("scenarios end_day: %w", err)
		}
		cfg.EndDay = end
	}
	return cfg, nil
}
