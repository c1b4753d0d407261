package solver

import (
	"math"
	"time"

	"github.com/samber/lo"

	"placement/milp"
)

type pair struct {
	group string
	house string
}

// program is a 0/1 assignment model over a set of groups together with the
// bookkeeping needed to read placements back out of a solution.
type program struct {
	model    *milp.Model
	groups   []Group
	cands    map[string][]string
	vars     map[pair]milp.Var
	overflow map[string]milp.Var
}

// build creates one binary per (group, candidate house), a totality
// constraint per group and a capacity constraint per house. capacity
// returns the right-hand side for a house and how much integer overflow
// the model may buy for it. The model is hinted with a greedy placement.
func (s *run) build(name string, groups []Group, cands map[string][]string, points func(Group, string) int, capacity func(House) (int, int)) *program {
	m := milp.NewModel(name)
	pr := &program{model: m, groups: groups, cands: cands, vars: map[pair]milp.Var{}, overflow: map[string]milp.Var{}}
	usage := map[string][]milp.Term{}
	for _, g := range groups {
		terms := make([]milp.Term, 0, len(cands[g.ID]))
		for _, h := range cands[g.ID] {
			v := m.NewBinary("x_" + g.ID + "_" + h)
			m.SetObjective(v, float64(points(g, h)))
			pr.vars[pair{g.ID, h}] = v
			terms = append(terms, milp.Term{Var: v, Coef: 1})
			usage[h] = append(usage[h], milp.Term{Var: v, Coef: float64(g.Size)})
		}
		m.AddConstraint("assign_"+g.ID, terms, milp.Equal, 1)
	}
	hard, soft := map[string]int{}, map[string]int{}
	for _, h := range s.p.Houses {
		terms, ok := usage[h.ID]
		if !ok {
			continue
		}
		rhs, overflow := capacity(h)
		hard[h.ID], soft[h.ID] = rhs, rhs+overflow
		if overflow > 0 {
			o := m.NewInteger("overflow_"+h.ID, 0, float64(overflow))
			m.SetObjective(o, -s.opts.OverflowPenalty)
			terms = append(terms, milp.Term{Var: o, Coef: -1})
			pr.overflow[h.ID] = o
		}
		m.AddConstraint("capacity_"+h.ID, terms, milp.LessEq, float64(rhs))
	}
	pr.seed(hard, soft)
	return pr
}

// seed hints each group into its first candidate with hard room left, or
// failing that its first candidate with overflow room. A group with
// neither leaves the hint infeasible and the backend discards it.
func (pr *program) seed(hard, soft map[string]int) {
	used := map[string]int{}
	for _, g := range pr.groups {
		h, ok := lo.Find(pr.cands[g.ID], func(h string) bool { return used[h]+g.Size <= hard[h] })
		if !ok {
			h, ok = lo.Find(pr.cands[g.ID], func(h string) bool { return used[h]+g.Size <= soft[h] })
		}
		if !ok {
			continue
		}
		used[h] += g.Size
		pr.model.SetHint(pr.vars[pair{g.ID, h}], 1)
	}
	for h, o := range pr.overflow {
		if over := used[h] - hard[h]; over > 0 {
			pr.model.SetHint(o, float64(over))
		}
	}
}

func (s *run) solve(pr *program) (milp.Solution, bool) {
	start := time.Now()
	sol := s.opts.Backend.Solve(s.ctx, pr.model, s.opts.TimeLimit)
	elapsed := time.Since(start)
	s.opts.Recorder.Solved(sol.Status, elapsed)
	if !sol.OK() {
		s.logger.Info("Optimization produced no placements",
			"model", pr.model.Name,
			"status", sol.Status.String(),
			"error", sol.Err)
		return sol, false
	}
	s.logger.V(1).Info("Optimization solved",
		"model", pr.model.Name,
		"status", sol.Status.String(),
		"vars", pr.model.NumVars(),
		"constraints", pr.model.NumConstraints(),
		"objective", sol.Objective,
		"nodes", sol.Nodes,
		"elapsed", elapsed)
	return sol, true
}

// choice reads g's house from sol: the first candidate, in candidate order,
// whose value exceeds one half.
func (pr *program) choice(sol milp.Solution, g Group) (string, bool) {
	for _, h := range pr.cands[g.ID] {
		if sol.Value(pr.vars[pair{g.ID, h}]) > 0.5 {
			return h, true
		}
	}
	return "", false
}

// candidates lists the houses a group may be modeled into: ranked houses in
// rank order, then sub-preferences, then every other house in house order.
func (s *run) candidates(g Group, policy Candidates) []string {
	out := append([]string(nil), g.Ranked...)
	if policy == CandidatesRanked {
		return out
	}
	out = append(out, g.SubPref...)
	if policy != CandidatesAll {
		return out
	}
	for _, h := range s.p.Houses {
		if g.rank(h.ID) < 0 && !g.isSub(h.ID) {
			out = append(out, h.ID)
		}
	}
	return out
}

// fitting drops houses whose remaining room, overflow included, is below
// size. Such candidates could never be chosen.
func (s *run) fitting(houses []string, size int) []string {
	return lo.Filter(houses, func(id string, _ int) bool {
		h, _ := s.p.House(id)
		spare, overflow := s.capacity(h)
		return spare+overflow >= size
	})
}

func (s *run) overflowCap(h House) int {
	if !s.opts.Overflow {
		return 0
	}
	if h.HasOverflow {
		return h.Overflow
	}
	return s.opts.OverflowCap
}

// capacity is the capacity rule of the main program: the spare hard
// capacity, plus whatever overflow allowance earlier batches left unused.
func (s *run) capacity(h House) (int, int) {
	spare := h.Max - s.l.totals[h.ID]
	overflow := s.overflowCap(h)
	if spare < 0 {
		overflow += spare
		spare = 0
	}
	return spare, max(overflow, 0)
}

func (s *run) ceiling(house string) int {
	h, _ := s.p.House(house)
	return h.Max + s.overflowCap(h)
}

// optimize places deferred groups through the integer program and returns
// those it could not place, in input order.
func (s *run) optimize(groups []Group) []Group {
	if len(groups) == 0 {
		return nil
	}
	cands := map[string][]string{}
	var modeled []Group
	for _, g := range groups {
		s.l.advance(g.ID, OptimizationCandidate)
		c := s.fitting(s.candidates(g, s.opts.Candidates), g.Size)
		if len(c) == 0 {
			continue
		}
		cands[g.ID] = c
		modeled = append(modeled, g)
	}
	if len(modeled) == 0 {
		return groups
	}

	pr := s.build("preference_assignment", modeled, cands, s.opts.Scores.Points, s.capacity)
	sol, ok := s.solve(pr)
	if !ok {
		return groups
	}

	var remaining []Group
	placed := 0
	for _, g := range groups {
		if h, ok := pr.choice(sol, g); ok && s.l.totals[h]+g.Size <= s.ceiling(h) {
			s.l.commit(g, h, PhaseOptimal)
			placed++
			continue
		}
		remaining = append(remaining, g)
	}
	s.logOverflow(pr, sol)
	s.placed(PhaseOptimal, placed)
	s.logger.V(1).Info("Optimization phase done", "placed", placed, "remaining", len(remaining))
	return remaining
}

func (s *run) logOverflow(pr *program, sol milp.Solution) {
	for _, h := range s.p.Houses {
		o, ok := pr.overflow[h.ID]
		if !ok {
			continue
		}
		if v := sol.Value(o); v > 0.5 {
			s.logger.V(1).Info("Overflow used", "house", h.ID, "var", pr.model.VarName(o), "seats", int(math.Round(v)))
		}
	}
}
