package epi

import (
	"fmt"
	"time"
)

// SeriesNames lists every per-day series a Result carries, in display
// order.
var SeriesNames = []string{
	"new_infections",
	"cum_infections",
	"new_tests",
	"cum_tests",
	"new_diagnoses",
	"cum_diagnoses",
	"new_deaths",
	"cum_deaths",
	"new_vaccinated",
	"cum_vaccinated",
	"n_infectious",
	"n_susceptible",
}

type Result struct {
	Label  string
	Dates  []time.Time
	Series map[string][]float64
	People *People
}

func newResult(label string) *Result {
	r := &Result{
		Label:  label,
		Series: make(map[string][]float64, len(SeriesNames)),
	}
	for _, name := range SeriesNames {
		r.Series[name] = make([]float64, 0)
	}
	return r
}

func (r *Result) Get(name string) ([]float64, error) {
	s, ok := r.Series[name]
	if !ok {
		return nil, fmt.Errorf("unknown series: %s", name)
	}
	return s, nil
}

func (r *Result) Days() int { return len(r.Dates) }

// Final returns the last value of a series, or 0 for an empty run.
func (r *Result) Final(name string) float64 {
	s := r.Series[name]
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

func (r *Result) Clone() *Result {
	c := &Result{
		Label:  r.Label,
		Dates:  append([]time.Time(nil), r.Dates...),
		Series: make(map[string][]float64, len(r.Series)),
		People: r.People,
	}
	for name, s := range r.Series {
		c.Series[name] = append([]float64(nil), s...)
	}
	return c
}
