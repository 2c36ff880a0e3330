package epi

import "fmt"

type Intervention interface {
	Name() string
	Apply(s *Sim, day int) error
}

// TestNum administers a fixed number of tests per day. With FromData
// the daily count comes from the attached datafile's new_tests column;
// days past the end of the data reuse the last observed value.
type TestNum struct {
	DailyTests int
	FromData   bool

	// SympBias is the odds multiplier for an infectious agent to be
	// among the tested. Zero means the default of 10.
	SympBias float64
}

func (t *TestNum) Name() string { return "test_num" }

func (t *TestNum) Apply(s *Sim, day int) error {
	tests := t.DailyTests
	if t.FromData {
		if s.Data == nil {
			return fmt.Errorf("test_num: from-data requested but no datafile attached")
		}
		col, ok := s.Data.Column("new_tests")
		if !ok {
			return fmt.Errorf("test_num: datafile has no new_tests column")
		}
		tests = lastObserved(col, day)
	}
	if tests <= 0 {
		return nil
	}

	bias := t.SympBias
	if bias == 0 {
		bias = 10
	}

	p := s.People
	undiagnosed := 0
	infUndiag := 0
	for i := range p.State {
		if !p.Alive(i) || p.Diagnosed[i] {
			continue
		}
		undiagnosed++
		if p.State[i] == Infectious {
			infUndiag++
		}
	}
	if undiagnosed == 0 {
		return nil
	}

	// Probability a given test lands on an undiagnosed infectious
	// agent, with symptomatic agents over-represented by the bias.
	weighted := float64(undiagnosed-infUndiag) + bias*float64(infUndiag)
	pPos := bias * float64(infUndiag) / weighted

	positives := 0
	for i := 0; i < tests && positives < infUndiag; i++ {
		if s.rng.Float64() < pPos {
			positives++
		}
	}

	// Mark that many infectious agents diagnosed.
	marked := 0
	for _, i := range s.rng.Perm(p.Len()) {
		if marked == positives {
			break
		}
		if p.State[i] == Infectious && !p.Diagnosed[i] {
			p.Diagnosed[i] = true
			marked++
		}
	}

	s.dayTests += tests
	s.dayDiagnoses += marked
	return nil
}

// lastObserved returns column[day], clamping to the last value and
// skipping trailing gaps.
func lastObserved(col []float64, day int) int {
	if len(col) == 0 {
		return 0
	}
	if day >= len(col) {
		day = len(col) - 1
	}
	for day > 0 && col[day] != col[day] { // NaN
		day--
	}
	if col[day] != col[day] {
		return 0
	}
	return int(col[day])
}

// VaccinateSequence hands out a fixed number of doses per day, walking
// the population in cohort priority order. Agents under 5 are never
// vaccinated.
type VaccinateSequence struct {
	PeoplePerDay int
	Sequence     []Cohort
	StartDay     int

	queue []int
	built bool
}

func (v *VaccinateSequence) Name() string { return "vaccinate_sequence" }

func (v *VaccinateSequence) Apply(s *Sim, day int) error {
	if v.PeoplePerDay <= 0 || day < v.StartDay {
		return nil
	}
	if !v.built {
		v.build(s)
	}

	doses := 0
	for len(v.queue) > 0 && doses < v.PeoplePerDay {
		i := v.queue[0]
		v.queue = v.queue[1:]
		p := s.People
		if !p.Alive(i) || p.Vaccinated[i] {
			continue
		}
		p.Vaccinated[i] = true
		doses++
	}
	s.dayVaccinated += doses
	return nil
}

// build orders the whole population by first matching cohort, shuffled
// within each cohort. Agents matching no cohort go last.
func (v *VaccinateSequence) build(s *Sim) {
	p := s.People
	assigned := make([]bool, p.Len())
	for _, c := range v.Sequence {
		members := make([]int, 0)
		for i := 0; i < p.Len(); i++ {
			if assigned[i] || p.Age[i] < 5 {
				continue
			}
			if c.Match(p, i) {
				assigned[i] = true
				members = append(members, i)
			}
		}
		s.rng.Shuffle(len(members), func(a, b int) {
			members[a], members[b] = members[b], members[a]
		})
		v.queue = append(v.queue, members...)
	}
	rest := make([]int, 0)
	for i := 0; i < p.Len(); i++ {
		if !assigned[i] && p.Age[i] >= 5 {
			rest = append(rest, i)
		}
	}
	s.rng.Shuffle(len(rest), func(a, b int) { rest[a], rest[b] = rest[b], rest[a] })
	v.queue = append(v.queue, rest...)
	v.built = true
}
