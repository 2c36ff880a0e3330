package epi

import (
	"context"
	"testing"
	"time"
)

func testParams(t *testing.T) Params {
	t.Helper()
	p := DefaultParams()
	p.PopSize = 2000
	p.PopInfected = 20
	p.Seed = 42
	return p
}

func TestParamsValidate(t *testing.T) {
	start, _ := time.Parse(DateLayout, "2020-02-01")
	end, _ := time.Parse(DateLayout, "2020-03-01")

	tests := []struct {
		name   string
		modify func(*Params)
	}{
		{"zero pop", func(p *Params) { p.PopSize = 0 }},
		{"negative infected", func(p *Params) { p.PopInfected = -1 }},
		{"infected above pop", func(p *Params) { p.PopInfected = p.PopSize + 1 }},
		{"zero beta", func(p *Params) { p.Beta = 0 }},
		{"negative beta", func(p *Params) { p.Beta = -0.01 }},
		{"negative rel_death_prob", func(p *Params) { p.RelDeathProb = -1 }},
		{"end before start", func(p *Params) { p.StartDay, p.EndDay = end, start }},
		{"end equals start", func(p *Params) { p.EndDay = p.StartDay }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			if err := p.Validate(); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	if err := DefaultParams().Validate(); err != nil {
		t.Errorf("default params should validate: %v", err)
	}
}

func TestSimDeterministic(t *testing.T) {
	run := func() *Result {
		sim, err := NewSim(testParams(t), "")
		if err != nil {
			t.Fatalf("new sim: %v", err)
		}
		r, err := sim.Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return r
	}

	a, b := run(), run()
	for _, name := range SeriesNames {
		for d := range a.Series[name] {
			if a.Series[name][d] != b.Series[name][d] {
				t.Fatalf("series %s diverges at day %d: %f vs %f",
					name, d, a.Series[name][d], b.Series[name][d])
			}
		}
	}
}

func TestSimEpidemicGrows(t *testing.T) {
	sim, err := NewSim(testParams(t), "")
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}
	r, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if r.Days() != sim.Params.Days() {
		t.Errorf("expected %d days, got %d", sim.Params.Days(), r.Days())
	}
	if r.Final("cum_infections") <= float64(sim.Params.PopInfected) {
		t.Error("expected transmission beyond the seeded infections")
	}

	// Cumulative series must be non-decreasing.
	for _, name := range []string{"cum_infections", "cum_deaths", "cum_diagnoses"} {
		s := r.Series[name]
		for d := 1; d < len(s); d++ {
			if s[d] < s[d-1] {
				t.Fatalf("%s decreases at day %d", name, d)
			}
		}
	}
}

func TestSimNoSusceptibles(t *testing.T) {
	p := testParams(t)
	p.PopSize = 50
	p.PopInfected = 50
	sim, err := NewSim(p, "")
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}
	r, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// cum_infections carries only the seeds; nobody new can be exposed.
	if r.Final("cum_infections") != float64(p.PopInfected) {
		t.Errorf("no susceptibles left, expected %d infections, got %f",
			p.PopInfected, r.Final("cum_infections"))
	}
	for _, v := range r.Series["new_infections"] {
		if v != 0 {
			t.Fatal("expected no new infections")
		}
	}
}

func TestSimRelDeathProbZero(t *testing.T) {
	p := testParams(t)
	p.RelDeathProb = 0
	sim, err := NewSim(p, "")
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}
	r, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.Final("cum_deaths") != 0 {
		t.Errorf("expected no deaths with rel_death_prob=0, got %f", r.Final("cum_deaths"))
	}
}

func TestSimRunTwice(t *testing.T) {
	sim, err := NewSim(testParams(t), "")
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}
	if _, err := sim.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := sim.Run(context.Background()); err == nil {
		t.Error("expected error on second run")
	}
}

func TestSimCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sim, err := NewSim(testParams(t), "")
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}
	if _, err := sim.Run(ctx); err == nil {
		t.Error("expected context error")
	}
}

func TestTestNumFixed(t *testing.T) {
	p := testParams(t)
	p.Interventions = []Intervention{&TestNum{DailyTests: 100}}
	sim, err := NewSim(p, "")
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}
	r, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	for d, v := range r.Series["new_tests"] {
		if v != 100 {
			t.Fatalf("day %d: expected 100 tests, got %f", d, v)
		}
		if r.Series["new_diagnoses"][d] > v {
			t.Fatalf("day %d: more diagnoses than tests", d)
		}
	}
	if r.Final("cum_diagnoses") == 0 {
		t.Error("expected some diagnoses with heavy testing")
	}
	if r.Final("cum_diagnoses") > r.Final("cum_infections") {
		t.Error("more diagnoses than infections")
	}
}

func TestTestNumFromDataWithoutData(t *testing.T) {
	p := testParams(t)
	p.Interventions = []Intervention{&TestNum{FromData: true}}
	sim, err := NewSim(p, "")
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}
	if _, err := sim.Run(context.Background()); err == nil {
		t.Error("expected error when no datafile attached")
	}
}

func TestVaccinateSequencePriority(t *testing.T) {
	p := testParams(t)
	p.KeepPeople = true
	p.Interventions = []Intervention{&VaccinateSequence{
		PeoplePerDay: 5,
		Sequence:     []Cohort{Ages(75, 99), Ages(65, 74)},
	}}

	sim, err := NewSim(p, "")
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}
	r, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if r.Final("cum_vaccinated") == 0 {
		t.Fatal("expected some vaccinations")
	}

	// Everyone 75+ should be covered before anyone under 65 gets a
	// dose, unless doses ran out inside the first cohort.
	people := r.People
	elderly, elderlyVax, youngVax := 0, 0, 0
	for i := 0; i < people.Len(); i++ {
		if !people.Alive(i) {
			continue
		}
		if people.Age[i] >= 75 {
			elderly++
			if people.Vaccinated[i] {
				elderlyVax++
			}
		} else if people.Age[i] < 65 && people.Vaccinated[i] {
			youngVax++
		}
	}
	if youngVax > 0 && elderlyVax < elderly {
		t.Errorf("younger agents vaccinated (%d) while %d/%d elderly uncovered",
			youngVax, elderly-elderlyVax, elderly)
	}
}

func TestVaccinationReducesDeaths(t *testing.T) {
	run := func(doses int) float64 {
		p := testParams(t)
		p.Beta = 0.03 // force a large outbreak
		var ivs []Intervention
		if doses > 0 {
			ivs = append(ivs, &VaccinateSequence{PeoplePerDay: doses})
		}
		p.Interventions = ivs
		sim, err := NewSim(p, "")
		if err != nil {
			t.Fatalf("new sim: %v", err)
		}
		r, err := sim.Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return r.Final("cum_deaths")
	}

	unvaxed := run(0)
	vaxed := run(2000) // whole population covered immediately
	if vaxed > unvaxed {
		t.Errorf("vaccination increased deaths: %f > %f", vaxed, unvaxed)
	}
}
