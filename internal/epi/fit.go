package epi

import (
	"fmt"
	"math"
)

// DefaultFitWeights covers the series usually present in a datafile.
// Columns absent from either side are skipped.
var DefaultFitWeights = map[string]float64{
	"cum_tests":     0.5,
	"cum_diagnoses": 1.0,
	"cum_deaths":    1.0,
	"new_tests":     0.5,
	"new_diagnoses": 1.0,
	"new_deaths":    1.0,
}

type Fit struct {
	Mismatch   float64
	Components map[string]float64
}

// ComputeFit compares the sim's result series against its attached
// datafile. Each matched column contributes a normalized mean absolute
// error times its weight; Mismatch is the sum. Lower is better.
func (s *Sim) ComputeFit() (*Fit, error) {
	if s.Result == nil {
		return nil, fmt.Errorf("sim has not been run")
	}
	if s.Data == nil {
		return nil, fmt.Errorf("no datafile attached")
	}
	return ComputeFit(s.Result, s.Data, DefaultFitWeights)
}

func ComputeFit(r *Result, d *Data, weights map[string]float64) (*Fit, error) {
	fit := &Fit{Components: make(map[string]float64)}
	matched := 0

	for name, weight := range weights {
		obs, ok := d.Column(name)
		if !ok {
			continue
		}
		model, ok := r.Series[name]
		if !ok {
			continue
		}

		n := len(obs)
		if len(model) < n {
			n = len(model)
		}
		if n == 0 {
			continue
		}

		sumErr := 0.0
		sumObs := 0.0
		count := 0
		for i := 0; i < n; i++ {
			if math.IsNaN(obs[i]) {
				continue
			}
			sumErr += math.Abs(model[i] - obs[i])
			sumObs += math.Abs(obs[i])
			count++
		}
		if count == 0 {
			continue
		}

		scale := sumObs / float64(count)
		if scale < 1 {
			scale = 1
		}
		component := weight * sumErr / float64(count) / scale
		fit.Components[name] = component
		fit.Mismatch += component
		matched++
	}

	if matched == 0 {
		return nil, fmt.Errorf("no overlapping series between result and data")
	}
	return fit, nil
}
