package epi

import (
	"math/rand"
	"strconv"
)

type AgentState int

const (
	Susceptible AgentState = iota
	Exposed
	Infectious
	Recovered
	Dead
)

// People is a struct-of-slices population. All slices have length
// PopSize and are indexed by agent id.
type People struct {
	Age         []int
	KeyWorker   []bool
	DenseLiving []bool
	Underlying  []bool
	State       []AgentState
	Diagnosed   []bool
	Vaccinated  []bool

	dayExposed    []int
	dayInfectious []int
}

// ageBands approximates a young-skewed national age pyramid. Weights
// are relative population shares.
var ageBands = []struct {
	lo, hi int
	weight float64
}{
	{0, 4, 14},
	{5, 17, 33},
	{18, 49, 40},
	{50, 59, 6},
	{60, 64, 3},
	{65, 74, 3},
	{75, 99, 1},
}

func newPeople(n int, rng *rand.Rand) *People {
	p := &People{
		Age:           make([]int, n),
		KeyWorker:     make([]bool, n),
		DenseLiving:   make([]bool, n),
		Underlying:    make([]bool, n),
		State:         make([]AgentState, n),
		Diagnosed:     make([]bool, n),
		Vaccinated:    make([]bool, n),
		dayExposed:    make([]int, n),
		dayInfectious: make([]int, n),
	}

	total := 0.0
	for _, b := range ageBands {
		total += b.weight
	}

	for i := 0; i < n; i++ {
		r := rng.Float64() * total
		for _, b := range ageBands {
			if r < b.weight {
				p.Age[i] = b.lo + rng.Intn(b.hi-b.lo+1)
				break
			}
			r -= b.weight
		}
		if p.Age[i] >= 18 && p.Age[i] < 65 && rng.Float64() < 0.05 {
			p.KeyWorker[i] = true
		}
		if rng.Float64() < 0.20 {
			p.DenseLiving[i] = true
		}
		if p.Age[i] >= 18 && rng.Float64() < 0.15 {
			p.Underlying[i] = true
		}
		p.dayExposed[i] = -1
		p.dayInfectious[i] = -1
	}

	return p
}

func (p *People) Len() int { return len(p.Age) }

func (p *People) Alive(i int) bool { return p.State[i] != Dead }

func (p *People) count(st AgentState) int {
	n := 0
	for _, s := range p.State {
		if s == st {
			n++
		}
	}
	return n
}

// expose seeds agent i as exposed on the given day.
func (p *People) expose(i, day int) {
	p.State[i] = Exposed
	p.dayExposed[i] = day
}

// Cohort names a subset of the population for vaccine prioritization.
type Cohort struct {
	Name  string
	Match func(p *People, i int) bool
}

func Ages(lo, hi int) Cohort {
	name := ageName(lo, hi)
	return Cohort{Name: name, Match: func(p *People, i int) bool {
		return p.Age[i] >= lo && p.Age[i] <= hi
	}}
}

func KeyWorkers() Cohort {
	return Cohort{Name: "key workers", Match: func(p *People, i int) bool {
		return p.KeyWorker[i]
	}}
}

func DenseLivers() Cohort {
	return Cohort{Name: "dense living", Match: func(p *People, i int) bool {
		return p.DenseLiving[i]
	}}
}

func UnderlyingIllness() Cohort {
	return Cohort{Name: "underlying illness", Match: func(p *People, i int) bool {
		return p.Underlying[i]
	}}
}

func ageName(lo, hi int) string {
	if hi >= 99 {
		return strconv.Itoa(lo) + "+"
	}
	return strconv.Itoa(lo) + "-" + strconv.Itoa(hi)
}
