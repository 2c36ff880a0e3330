package epi

import (
	"context"
	"fmt"
	"math/rand"
)

type Sim struct {
	Params Params
	Label  string
	People *People
	Data   *Data
	Result *Result

	rng *rand.Rand
	ran bool

	// Daily counters, reset at the start of each day. Interventions
	// add to tests/diagnoses/vaccinated.
	dayInfections int
	dayTests      int
	dayDiagnoses  int
	dayDeaths     int
	dayVaccinated int
}

func NewSim(pars Params, label string) (*Sim, error) {
	if err := pars.Validate(); err != nil {
		return nil, err
	}
	s := &Sim{
		Params: pars,
		Label:  label,
		rng:    rand.New(rand.NewSource(pars.Seed)),
	}
	s.People = newPeople(pars.PopSize, s.rng)

	// Seed initial infections as already infectious on day 0.
	for _, i := range s.rng.Perm(pars.PopSize)[:pars.PopInfected] {
		s.People.State[i] = Infectious
		s.People.dayInfectious[i] = 0
	}
	return s, nil
}

// LoadData attaches an observed datafile, used by data-driven
// interventions and by ComputeFit.
func (s *Sim) LoadData(path string) error {
	d, err := LoadData(path)
	if err != nil {
		return err
	}
	s.Data = d
	return nil
}

func (s *Sim) Run(ctx context.Context) (*Result, error) {
	if s.ran {
		return nil, fmt.Errorf("sim already run")
	}
	s.ran = true

	days := s.Params.Days()
	result := newResult(s.Label)

	// Seeded infections count towards cum_infections.
	cum := map[string]float64{"infections": float64(s.Params.PopInfected)}

	for day := 0; day < days; day++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		s.dayInfections = 0
		s.dayTests = 0
		s.dayDiagnoses = 0
		s.dayDeaths = 0
		s.dayVaccinated = 0

		for _, iv := range s.Params.Interventions {
			if err := iv.Apply(s, day); err != nil {
				return nil, fmt.Errorf("intervention %s on day %d: %w", iv.Name(), day, err)
			}
		}

		s.transmit(day)
		s.progress(day)
		s.record(result, cum, day)

		if s.Params.Verbose {
			fmt.Printf("day %3d: %4d new infections, %3d diagnoses, %2d deaths\n",
				day, s.dayInfections, s.dayDiagnoses, s.dayDeaths)
		}
	}

	if s.Params.KeepPeople {
		result.People = s.People
	}
	s.Result = result
	return result, nil
}

// transmit draws new exposures from the current prevalence.
func (s *Sim) transmit(day int) {
	p := s.People
	nInf := p.count(Infectious)
	if nInf == 0 {
		return
	}
	alive := 0
	for i := range p.State {
		if p.Alive(i) {
			alive++
		}
	}
	if alive == 0 {
		return
	}

	foi := s.Params.Beta * contactsPerDay * float64(nInf) / float64(alive)
	if foi > 1 {
		foi = 1
	}
	for i := range p.State {
		if p.State[i] != Susceptible {
			continue
		}
		prob := foi
		if p.Vaccinated[i] {
			prob *= 1 - vaccineEffSus
		}
		if s.rng.Float64() < prob {
			p.expose(i, day)
			s.dayInfections++
		}
	}
}

// progress advances exposed and infectious agents through the disease
// course.
func (s *Sim) progress(day int) {
	p := s.People
	for i := range p.State {
		switch p.State[i] {
		case Exposed:
			if day-p.dayExposed[i] >= incubationDays {
				p.State[i] = Infectious
				p.dayInfectious[i] = day
			}
		case Infectious:
			if day-p.dayInfectious[i] < infectiousDays {
				continue
			}
			prob := deathProb(p.Age[i]) * s.Params.RelDeathProb
			if p.Vaccinated[i] {
				prob *= 1 - vaccineEffDeath
			}
			if s.rng.Float64() < prob {
				p.State[i] = Dead
				s.dayDeaths++
			} else {
				p.State[i] = Recovered
			}
		}
	}
}

func (s *Sim) record(r *Result, cum map[string]float64, day int) {
	r.Dates = append(r.Dates, s.Params.StartDay.AddDate(0, 0, day+1))

	add := func(name string, v float64) {
		r.Series[name] = append(r.Series[name], v)
	}
	daily := func(name string, v float64) {
		add("new_"+name, v)
		cum[name] += v
		add("cum_"+name, cum[name])
	}

	daily("infections", float64(s.dayInfections))
	daily("tests", float64(s.dayTests))
	daily("diagnoses", float64(s.dayDiagnoses))
	daily("deaths", float64(s.dayDeaths))
	daily("vaccinated", float64(s.dayVaccinated))
	add("n_infectious", float64(s.People.count(Infectious)))
	add("n_susceptible", float64(s.People.count(Susceptible)))
}

// Step is a single-day advance for live views. It must not be mixed
// with Run on the same Sim.
func (s *Sim) Step(day int) error {
	s.dayInfections = 0
	s.dayTests = 0
	s.dayDiagnoses = 0
	s.dayDeaths = 0
	s.dayVaccinated = 0
	for _, iv := range s.Params.Interventions {
		if err := iv.Apply(s, day); err != nil {
			return err
		}
	}
	s.transmit(day)
	s.progress(day)
	return nil
}

// Infectious reports the current infectious count, for live views.
func (s *Sim) Infectious() int { return s.People.count(Infectious) }
