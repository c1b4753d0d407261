package milp_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"placement/milp"
)

// assignmentModel builds one group of the given size choosing among houses
// with the given capacities and scores.
func assignmentModel(size float64, caps, scores []float64) (*milp.Model, []milp.Var) {
	m := milp.NewModel("assign")
	vars := make([]milp.Var, len(caps))
	terms := make([]milp.Term, len(caps))
	for i := range caps {
		vars[i] = m.NewBinary("x")
		m.SetObjective(vars[i], scores[i])
		terms[i] = milp.Term{Var: vars[i], Coef: 1}
		m.AddConstraint("cap", []milp.Term{{Var: vars[i], Coef: size}}, milp.LessEq, caps[i])
	}
	m.AddConstraint("total", terms, milp.Equal, 1)
	return m, vars
}

// knapsackModel has a fractional root relaxation (b = 2/3) and the integer
// optimum a = b = 1 with objective 9.
func knapsackModel() (m *milp.Model, a, b, c milp.Var) {
	m = milp.NewModel("knapsack")
	a, b, c = m.NewBinary("a"), m.NewBinary("b"), m.NewBinary("c")
	m.SetObjective(a, 5)
	m.SetObjective(b, 4)
	m.SetObjective(c, 3)
	m.AddConstraint("weight", []milp.Term{{Var: a, Coef: 2}, {Var: b, Coef: 3}, {Var: c, Coef: 1}}, milp.LessEq, 5)
	return m, a, b, c
}

var _ = Describe("BranchAndBound", func() {
	var (
		ctx context.Context
		bb  *milp.BranchAndBound
	)

	BeforeEach(func() {
		ctx = context.Background()
		bb = milp.NewBranchAndBound()
	})

	Context("with a single group", func() {
		It("should skip a house that is too small", func() {
			m, vars := assignmentModel(2, []float64{1, 5, 5}, []float64{100, 50, 3})
			sol := bb.Solve(ctx, m, time.Second)
			Expect(sol.Status).To(Equal(milp.Optimal))
			Expect(sol.Value(vars[0])).To(BeNumerically("~", 0, 1e-6))
			Expect(sol.Value(vars[1])).To(BeNumerically("~", 1, 1e-6))
			Expect(sol.Objective).To(BeNumerically("~", 50, 1e-6))
			Expect(m.Feasible(sol.Values, 1e-6)).To(BeTrue())
		})

		It("should take the top house when it fits", func() {
			m, vars := assignmentModel(2, []float64{2, 5}, []float64{100, 50})
			sol := bb.Solve(ctx, m, time.Second)
			Expect(sol.Status).To(Equal(milp.Optimal))
			Expect(sol.Value(vars[0])).To(BeNumerically("~", 1, 1e-6))
		})

		It("should report infeasible when no house fits", func() {
			m, _ := assignmentModel(4, []float64{1, 2}, []float64{100, 50})
			sol := bb.Solve(ctx, m, time.Second)
			Expect(sol.Status).To(Equal(milp.Infeasible))
			Expect(sol.OK()).To(BeFalse())
		})
	})

	Context("with competing groups", func() {
		It("should maximize the total score", func() {
			// two groups of size 1 both prefer house A (capacity 1)
			// group 0 scores A=100 B=10, group 1 scores A=100 B=90
			m := milp.NewModel("compete")
			a0, b0 := m.NewBinary("a0"), m.NewBinary("b0")
			a1, b1 := m.NewBinary("a1"), m.NewBinary("b1")
			m.SetObjective(a0, 100)
			m.SetObjective(b0, 10)
			m.SetObjective(a1, 100)
			m.SetObjective(b1, 90)
			m.AddConstraint("g0", []milp.Term{{Var: a0, Coef: 1}, {Var: b0, Coef: 1}}, milp.Equal, 1)
			m.AddConstraint("g1", []milp.Term{{Var: a1, Coef: 1}, {Var: b1, Coef: 1}}, milp.Equal, 1)
			m.AddConstraint("capA", []milp.Term{{Var: a0, Coef: 1}, {Var: a1, Coef: 1}}, milp.LessEq, 1)
			m.AddConstraint("capB", []milp.Term{{Var: b0, Coef: 1}, {Var: b1, Coef: 1}}, milp.LessEq, 1)

			sol := bb.Solve(ctx, m, time.Second)
			Expect(sol.Status).To(Equal(milp.Optimal))
			Expect(sol.Value(a0)).To(BeNumerically("~", 1, 1e-6))
			Expect(sol.Value(b1)).To(BeNumerically("~", 1, 1e-6))
			Expect(sol.Objective).To(BeNumerically("~", 190, 1e-6))
		})
	})

	Context("with an integer overflow variable", func() {
		It("should pay the penalty only when it is worth it", func() {
			m := milp.NewModel("overflow")
			x := m.NewBinary("x")
			y := m.NewBinary("y")
			o := m.NewInteger("o", 0, 2)
			m.SetObjective(x, 100)
			m.SetObjective(y, 5)
			m.SetObjective(o, -10)
			m.AddConstraint("g", []milp.Term{{Var: x, Coef: 1}, {Var: y, Coef: 1}}, milp.Equal, 1)
			m.AddConstraint("capX", []milp.Term{{Var: x, Coef: 3}, {Var: o, Coef: -1}}, milp.LessEq, 2)
			m.AddConstraint("capY", []milp.Term{{Var: y, Coef: 3}}, milp.LessEq, 3)

			sol := bb.Solve(ctx, m, time.Second)
			Expect(sol.Status).To(Equal(milp.Optimal))
			Expect(sol.Value(x)).To(BeNumerically("~", 1, 1e-6))
			Expect(sol.Value(o)).To(BeNumerically("~", 1, 1e-6))
			Expect(sol.Objective).To(BeNumerically("~", 90, 1e-6))
		})
	})

	Context("when the search is cut short", func() {
		It("should not report optimal after a cancelled context", func() {
			m, _ := assignmentModel(1, []float64{1, 1}, []float64{10, 5})
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			sol := bb.Solve(cctx, m, time.Second)
			Expect(sol.Status).To(Equal(milp.Error))
			Expect(sol.Err).To(HaveOccurred())
		})

		It("should return the incumbent when the node limit runs out", func() {
			m, _, _, c := knapsackModel()
			m.SetHint(c, 1)
			bb.NodeLimit = 1
			sol := bb.Solve(ctx, m, time.Second)
			Expect(sol.Status).To(Equal(milp.TimeLimitFeasible))
			Expect(sol.OK()).To(BeTrue())
			Expect(sol.Objective).To(BeNumerically("~", 3, 1e-6))
			Expect(sol.Value(c)).To(BeNumerically("~", 1, 1e-6))
		})

		It("should return the incumbent when the deadline has passed", func() {
			m, _, _, c := knapsackModel()
			m.SetHint(c, 1)
			cctx, cancel := context.WithTimeout(ctx, time.Nanosecond)
			defer cancel()
			<-cctx.Done()
			sol := bb.Solve(cctx, m, time.Second)
			Expect(sol.Status).To(Equal(milp.TimeLimitFeasible))
			Expect(sol.Values).To(Equal([]float64{0, 0, 1}))
		})
	})

	Context("with a hint", func() {
		It("should still improve on a feasible hint", func() {
			m, a, b, c := knapsackModel()
			m.SetHint(c, 1)
			sol := bb.Solve(ctx, m, time.Second)
			Expect(sol.Status).To(Equal(milp.Optimal))
			Expect(sol.Objective).To(BeNumerically("~", 9, 1e-6))
			Expect(sol.Value(a)).To(BeNumerically("~", 1, 1e-6))
			Expect(sol.Value(b)).To(BeNumerically("~", 1, 1e-6))
		})

		It("should ignore an infeasible hint", func() {
			m, a, b, c := knapsackModel()
			m.SetHint(a, 1)
			m.SetHint(b, 1)
			m.SetHint(c, 1)
			bb.NodeLimit = 1
			sol := bb.Solve(ctx, m, time.Second)
			Expect(sol.Status).To(Equal(milp.Error))
			Expect(sol.Values).To(BeNil())
		})
	})
})

var _ = Describe("Model", func() {
	It("should evaluate feasibility against bounds and constraints", func() {
		m, _ := assignmentModel(2, []float64{1, 5}, []float64{100, 50})
		Expect(m.Feasible([]float64{0, 1}, 1e-9)).To(BeTrue())
		Expect(m.Feasible([]float64{1, 0}, 1e-9)).To(BeFalse())
		Expect(m.Feasible([]float64{0.5, 0.5}, 1e-9)).To(BeFalse())
		Expect(m.Objective([]float64{0, 1})).To(Equal(50.0))
	})

	It("should start unhinted variables at their lower bound", func() {
		m := milp.NewModel("hint")
		x := m.NewBinary("x")
		Expect(m.Hint()).To(BeNil())
		o := m.NewInteger("o", 2, 5)
		m.SetHint(x, 1)
		y := m.NewBinary("y")
		Expect(m.Hint()).To(Equal([]float64{1, 2, 0}))
		Expect(m.VarName(o)).To(Equal("o"))
		Expect(m.VarName(y)).To(Equal("y"))
	})

	It("should name statuses", func() {
		Expect(milp.TimeLimitFeasible.String()).To(Equal("time_limit_feasible"))
		Expect(milp.Optimal.String()).To(Equal("optimal"))
	})
})
