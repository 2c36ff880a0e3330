// Package scenario compares vaccine rollout strategies for a country
// model: repeated seeded runs per strategy, reduced to medians.
package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/tendaim/epifit/internal/epi"
	"github.com/tendaim/epifit/internal/msim"
)

type Strategy string

const (
	Baseline     Strategy = "baseline"
	Vulnerable   Strategy = "vulnerable"
	HighContacts Strategy = "hcontacts"
)

// Strategies in display order.
var Strategies = []Strategy{Baseline, Vulnerable, HighContacts}

// Label is the human-readable name used on plots and exports.
func (s Strategy) Label() string {
	switch s {
	case Baseline:
		return "baseline vaccination"
	case Vulnerable:
		return "vulnerable"
	case HighContacts:
		return "high contacts"
	default:
		return string(s)
	}
}

// Sequence is the cohort priority order for a strategy. Baseline has
// none: no additional vaccination.
func Sequence(s Strategy) ([]epi.Cohort, error) {
	switch s {
	case Baseline:
		return nil, nil
	case Vulnerable:
		return []epi.Cohort{
			epi.Ages(75, 99),
			epi.Ages(65, 74),
			epi.Ages(60, 64),
			epi.UnderlyingIllness(),
			epi.KeyWorkers(),
			epi.DenseLivers(),
			epi.Ages(50, 59),
			epi.Ages(18, 49),
			epi.Ages(5, 17),
		}, nil
	case HighContacts:
		return []epi.Cohort{
			epi.KeyWorkers(),
			epi.Ages(18, 49),
			epi.DenseLivers(),
			epi.UnderlyingIllness(),
			epi.Ages(75, 99),
			epi.Ages(65, 74),
			epi.Ages(60, 64),
			epi.Ages(50, 59),
			epi.Ages(5, 17),
		}, nil
	default:
		return nil, fmt.Errorf("unknown strategy: %s", s)
	}
}

type Config struct {
	PopSize      int
	PopInfected  int
	StartDay     time.Time
	EndDay       time.Time
	Beta         float64
	RelDeathProb float64
	PeoplePerDay int
	DailyTests   int
	Runs         int
	Seed         int64
}

func DefaultConfig() Config {
	start, _ := time.Parse(epi.DateLayout, "2020-12-01")
	end, _ := time.Parse(epi.DateLayout, "2021-06-30")
	return Config{
		PopSize:      epi.DefaultPopSize,
		PopInfected:  epi.DefaultPopInfected,
		StartDay:     start,
		EndDay:       end,
		Beta:         epi.DefaultBeta,
		RelDeathProb: epi.DefaultRelDeathProb,
		PeoplePerDay: 10000,
		DailyTests:   500,
		Runs:         2,
		Seed:         1,
	}
}

// BuildSim configures one seeded sim for a strategy.
func BuildSim(strat Strategy, cfg Config, seed int64) (*epi.Sim, error) {
	seq, err := Sequence(strat)
	if err != nil {
		return nil, err
	}

	pars := epi.Params{
		PopSize:      cfg.PopSize,
		PopInfected:  cfg.PopInfected,
		StartDay:     cfg.StartDay,
		EndDay:       cfg.EndDay,
		Beta:         cfg.Beta,
		RelDeathProb: cfg.RelDeathProb,
		Seed:         seed,
		KeepPeople:   true,
	}
	if cfg.DailyTests > 0 {
		pars.Interventions = append(pars.Interventions, &epi.TestNum{DailyTests: cfg.DailyTests})
	}
	if seq != nil {
		pars.Interventions = append(pars.Interventions, &epi.VaccinateSequence{
			PeoplePerDay: cfg.PeoplePerDay,
			Sequence:     seq,
		})
	}

	return epi.NewSim(pars, strat.Label())
}

// Run executes every strategy as a multi-run over seeds and reduces
// each to its median.
func Run(ctx context.Context, cfg Config) ([]*msim.MultiSim, error) {
	if cfg.Runs <= 0 {
		return nil, fmt.Errorf("runs must be positive, got %d", cfg.Runs)
	}

	msims := make([]*msim.MultiSim, 0, len(Strategies))
	for _, strat := range Strategies {
		strat := strat
		ms, err := msim.RunParallel(ctx, strat.Label(), func(seed int64) (*epi.Sim, error) {
			return BuildSim(strat, cfg, seed)
		}, cfg.Runs, cfg.Seed)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", strat, err)
		}
		if _, err := ms.Median(); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", strat, err)
		}
		msims = append(msims, ms)
	}
	return msims, nil
}

// CoverageRow is vaccine coverage within one age band, per scenario.
type CoverageRow struct {
	Band       string
	Population int
	Vaccinated map[string]int
}

// coverageBands match the rollout age cohorts.
var coverageBands = []struct{ lo, hi int }{
	{0, 4}, {5, 17}, {18, 49}, {50, 59}, {60, 64}, {65, 74}, {75, 99},
}

// Coverage tabulates per-age-band vaccination counts for the first run
// of each container, which must have been run with KeepPeople.
func Coverage(msims []*msim.MultiSim) ([]CoverageRow, error) {
	if len(msims) == 0 {
		return nil, fmt.Errorf("no scenarios")
	}

	rows := make([]CoverageRow, len(coverageBands))
	for i, b := range coverageBands {
		rows[i] = CoverageRow{
			Band:       fmt.Sprintf("%d-%d", b.lo, b.hi),
			Vaccinated: make(map[string]int),
		}
		if b.hi >= 99 {
			rows[i].Band = fmt.Sprintf("%d+", b.lo)
		}
	}

	for mi, m := range msims {
		if len(m.Runs) == 0 {
			return nil, fmt.Errorf("scenario %s has no runs", m.Label)
		}
		people := m.Runs[0].People
		if people == nil {
			return nil, fmt.Errorf("scenario %s was run without keeping people", m.Label)
		}

		for i := 0; i < people.Len(); i++ {
			for bi, b := range coverageBands {
				if people.Age[i] < b.lo || people.Age[i] > b.hi {
					continue
				}
				if mi == 0 {
					rows[bi].Population++
				}
				if people.Vaccinated[i] {
					rows[bi].Vaccinated[m.Label]++
				}
				break
			}
		}
	}

	return rows, nil
}
