// Package msim bundles repeated runs of the same sim under different
// seeds and reduces them to a median trajectory.
package msim

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tendaim/epifit/internal/epi"
)

// BuildFunc constructs a fresh sim for one seed.
type BuildFunc func(seed int64) (*epi.Sim, error)

type MultiSim struct {
	Label string
	Runs  []*epi.Result

	// Base is the reduced run, set by Median. Merge with base keeps
	// only this run from each container.
	Base *epi.Result
}

func New(label string, runs ...*epi.Result) *MultiSim {
	return &MultiSim{Label: label, Runs: runs}
}

// RunParallel builds and runs n sims concurrently, seeded seed0..seed0+n-1.
func RunParallel(ctx context.Context, label string, build BuildFunc, n int, seed0 int64) (*MultiSim, error) {
	if n <= 0 {
		return nil, fmt.Errorf("number of runs must be positive, got %d", n)
	}

	results := make([]*epi.Result, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sim, err := build(seed0 + int64(idx))
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx], errs[idx] = sim.Run(ctx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return &MultiSim{Label: label, Runs: results}, nil
}

// Median reduces the runs to a per-day median for every series and
// stores it as the base run, relabeled with the container label.
func (m *MultiSim) Median() (*epi.Result, error) {
	if len(m.Runs) == 0 {
		return nil, fmt.Errorf("no runs to reduce")
	}

	days := m.Runs[0].Days()
	for _, r := range m.Runs[1:] {
		if r.Days() != days {
			return nil, fmt.Errorf("runs have different lengths: %d vs %d", days, r.Days())
		}
	}

	base := m.Runs[0].Clone()
	base.Label = m.Label

	vals := make([]float64, len(m.Runs))
	for name := range base.Series {
		med := base.Series[name]
		for d := 0; d < days; d++ {
			for i, r := range m.Runs {
				vals[i] = r.Series[name][d]
			}
			med[d] = median(vals)
		}
	}

	m.Base = base
	return base, nil
}

// Merge flattens containers into one. With base=true only each
// container's base run is kept (computing it if needed); otherwise all
// runs are concatenated.
func Merge(base bool, msims ...*MultiSim) (*MultiSim, error) {
	if len(msims) == 0 {
		return nil, fmt.Errorf("nothing to merge")
	}

	merged := &MultiSim{Label: "merged"}
	for _, m := range msims {
		if base {
			if m.Base == nil {
				if _, err := m.Median(); err != nil {
					return nil, fmt.Errorf("merge %s: %w", m.Label, err)
				}
			}
			merged.Runs = append(merged.Runs, m.Base)
			continue
		}
		merged.Runs = append(merged.Runs, m.Runs...)
	}
	return merged, nil
}

func median(vals []float64) float64 {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
