package epi

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

const (
	DefaultPopSize      = 20000
	DefaultPopInfected  = 20
	DefaultBeta         = 0.015
	DefaultRelDeathProb = 1.0
)

// Disease course constants, per-agent and per-day.
const (
	incubationDays  = 4
	infectiousDays  = 8
	contactsPerDay  = 20.0
	vaccineEffSus   = 0.7
	vaccineEffDeath = 0.9
)

type Params struct {
	PopSize       int
	PopInfected   int
	StartDay      time.Time
	EndDay        time.Time
	Beta          float64
	RelDeathProb  float64
	Seed          int64
	Verbose       bool
	KeepPeople    bool
	Interventions []Intervention
}

func DefaultParams() Params {
	start, _ := time.Parse(DateLayout, "2020-02-01")
	end, _ := time.Parse(DateLayout, "2020-04-11")
	return Params{
		PopSize:      DefaultPopSize,
		PopInfected:  DefaultPopInfected,
		StartDay:     start,
		EndDay:       end,
		Beta:         DefaultBeta,
		RelDeathProb: DefaultRelDeathProb,
	}
}

// Days returns the number of simulated days, excluding the start day
// itself.
func (p Params) Days() int {
	return int(p.EndDay.Sub(p.StartDay).Hours() / 24)
}

func (p Params) Validate() error {
	if p.PopSize <= 0 {
		return fmt.Errorf("pop_size must be positive, got %d", p.PopSize)
	}
	if p.PopInfected < 0 || p.PopInfected > p.PopSize {
		return fmt.Errorf("pop_infected must be in [0, pop_size], got %d", p.PopInfected)
	}
	if p.Beta <= 0 {
		return fmt.Errorf("beta must be positive, got %f", p.Beta)
	}
	if p.RelDeathProb < 0 {
		return fmt.Errorf("rel_death_prob must be non-negative, got %f", p.RelDeathProb)
	}
	if !p.EndDay.After(p.StartDay) {
		return fmt.Errorf("end_day %s must be after start_day %s",
			p.EndDay.Format(DateLayout), p.StartDay.Format(DateLayout))
	}
	return nil
}

// deathProb is the per-infection probability of death by age, before
// scaling by RelDeathProb.
func deathProb(age int) float64 {
	switch {
	case age < 30:
		return 0.0003
	case age < 50:
		return 0.001
	case age < 60:
		return 0.006
	case age < 70:
		return 0.02
	case age < 80:
		return 0.05
	default:
		return 0.1
	}
}
