package msim_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tendaim/epifit/internal/epi"
	"github.com/tendaim/epifit/internal/msim"
)

func fakeResult(label string, values ...float64) *epi.Result {
	start, _ := time.Parse(epi.DateLayout, "2020-02-01")
	r := &epi.Result{Label: label, Series: make(map[string][]float64)}
	for i := range values {
		r.Dates = append(r.Dates, start.AddDate(0, 0, i+1))
	}
	for _, name := range epi.SeriesNames {
		r.Series[name] = append([]float64(nil), values...)
	}
	return r
}

var _ = Describe("MultiSim", func() {
	Describe("Median", func() {
		It("computes the per-day median across runs and relabels", func() {
			m := msim.New("scenario a",
				fakeResult("seed0", 1, 10),
				fakeResult("seed1", 3, 30),
				fakeResult("seed2", 2, 50),
			)

			base, err := m.Median()
			Expect(err).NotTo(HaveOccurred())
			Expect(base.Label).To(Equal("scenario a"))
			Expect(base.Series["cum_deaths"]).To(Equal([]float64{2, 30}))
			Expect(m.Base).To(BeIdenticalTo(base))
		})

		It("averages the middle pair for an even number of runs", func() {
			m := msim.New("even",
				fakeResult("a", 1),
				fakeResult("b", 2),
				fakeResult("c", 3),
				fakeResult("d", 10),
			)

			base, err := m.Median()
			Expect(err).NotTo(HaveOccurred())
			Expect(base.Series["cum_infections"]).To(Equal([]float64{2.5}))
		})

		It("does not disturb the underlying runs", func() {
			first := fakeResult("a", 5, 6)
			m := msim.New("keep", first, fakeResult("b", 7, 8))

			_, err := m.Median()
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Series["cum_deaths"]).To(Equal([]float64{5, 6}))
			Expect(first.Label).To(Equal("a"))
		})

		It("rejects an empty container", func() {
			_, err := msim.New("empty").Median()
			Expect(err).To(HaveOccurred())
		})

		It("rejects runs of different lengths", func() {
			m := msim.New("ragged", fakeResult("a", 1, 2), fakeResult("b", 1))
			_, err := m.Median()
			Expect(err).To(MatchError(ContainSubstring("different lengths")))
		})
	})

	Describe("Merge", func() {
		It("keeps only base runs when base is set", func() {
			a := msim.New("a", fakeResult("a0", 1), fakeResult("a1", 3))
			b := msim.New("b", fakeResult("b0", 5), fakeResult("b1", 7))

			merged, err := msim.Merge(true, a, b)
			Expect(err).NotTo(HaveOccurred())
			Expect(merged.Runs).To(HaveLen(2))
			Expect(merged.Runs[0].Label).To(Equal("a"))
			Expect(merged.Runs[1].Label).To(Equal("b"))
			Expect(merged.Runs[0].Series["cum_deaths"]).To(Equal([]float64{2}))
		})

		It("concatenates every run without base", func() {
			a := msim.New("a", fakeResult("a0", 1), fakeResult("a1", 3))
			b := msim.New("b", fakeResult("b0", 5))

			merged, err := msim.Merge(false, a, b)
			Expect(err).NotTo(HaveOccurred())
			Expect(merged.Runs).To(HaveLen(3))
		})

		It("rejects merging nothing", func() {
			_, err := msim.Merge(true)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("RunParallel", func() {
		newSim := func(seed int64) (*epi.Sim, error) {
			p := epi.DefaultParams()
			p.PopSize = 300
			p.PopInfected = 10
			p.Seed = seed
			start, _ := time.Parse(epi.DateLayout, "2020-02-01")
			p.StartDay = start
			p.EndDay = start.AddDate(0, 0, 15)
			return epi.NewSim(p, fmt.Sprintf("seed %d", seed))
		}

		It("runs one sim per seed", func() {
			m, err := msim.RunParallel(context.Background(), "ensemble", newSim, 3, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Runs).To(HaveLen(3))
			for _, r := range m.Runs {
				Expect(r.Days()).To(Equal(15))
			}

			// Different seeds should give distinct trajectories.
			Expect(m.Runs[0].Series["cum_infections"]).NotTo(
				Equal(m.Runs[1].Series["cum_infections"]))
		})

		It("propagates build errors", func() {
			bad := func(seed int64) (*epi.Sim, error) {
				return nil, fmt.Errorf("no sim for seed %d", seed)
			}
			_, err := msim.RunParallel(context.Background(), "bad", bad, 2, 0)
			Expect(err).To(MatchError(ContainSubstring("no sim")))
		})

		It("rejects a non-positive run count", func() {
			_, err := msim.RunParallel(context.Background(), "none", newSim, 0, 0)
			Expect(err).To(HaveOccurred())
		})
	})
})
