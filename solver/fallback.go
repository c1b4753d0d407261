package solver

import (
	"github.com/samber/lo"
)

// fallback walks the groups the program left over, in input order, and
// commits each to the first house with spare hard capacity: ranked houses,
// then sub-preferences, then any house. With StrictFallback a penalized
// program over sub-preference and any-house candidates runs before the
// any-house step.
func (s *run) fallback(groups []Group) {
	var pending []Group
	placed := 0
	for _, g := range groups {
		s.l.advance(g.ID, FallbackCandidate)
		if h, ok := s.firstFit(g.Ranked, g.Size); ok {
			s.l.commit(g, h, PhaseFallback)
			placed++
			continue
		}
		if h, ok := s.firstFit(g.SubPref, g.Size); ok {
			s.l.commit(g, h, PhaseFallback)
			placed++
			continue
		}
		if s.opts.StrictFallback {
			pending = append(pending, g)
			continue
		}
		if h, ok := s.firstFit(s.p.HouseIDs(), g.Size); ok {
			s.l.commit(g, h, PhaseFallback)
			placed++
			continue
		}
		s.l.reject(g)
	}

	if s.opts.StrictFallback && len(pending) > 0 {
		for _, g := range s.finalOptimize(pending) {
			if h, ok := s.firstFit(s.p.HouseIDs(), g.Size); ok {
				s.l.commit(g, h, PhaseFallback)
				placed++
				continue
			}
			s.l.reject(g)
		}
	}
	s.placed(PhaseFallback, placed)
}

func (s *run) firstFit(houses []string, size int) (string, bool) {
	for _, h := range houses {
		if s.l.fits(h, size) {
			return h, true
		}
	}
	return "", false
}

// finalOptimize models the pending groups over their sub-preferences and
// every unranked house, scoring sub-preferences and penalizing the rest.
// Capacities are inflated when the real spare capacity cannot possibly hold
// the demand, so every decision is re-validated against the real capacity
// before it is committed. Rejected and unplaced groups are returned.
func (s *run) finalOptimize(groups []Group) []Group {
	cands := map[string][]string{}
	var modeled []Group
	demand, largest := 0, 0
	stranded := false
	for _, g := range groups {
		s.l.advance(g.ID, FinalOptimizationCandidate)
		var c []string
		for _, h := range s.candidates(g, CandidatesAll) {
			if g.rank(h) < 0 {
				c = append(c, h)
			}
		}
		if len(c) == 0 {
			continue
		}
		cands[g.ID] = c
		modeled = append(modeled, g)
		demand += g.Size
		largest = max(largest, g.Size)
		if _, ok := s.firstFit(c, g.Size); !ok {
			stranded = true
		}
	}

	supply := 0
	for _, h := range s.p.Houses {
		supply += max(s.l.spare(h.ID), 0)
	}
	inflate := 0
	if stranded || demand > supply {
		inflate = demand
		s.logger.V(1).Info("Inflating capacities for final optimization",
			"demand", demand, "supply", supply, "largest", largest)
	}

	points := func(g Group, h string) int {
		if g.isSub(h) {
			return s.opts.Scores.Sub
		}
		return s.opts.Scores.Penalty
	}
	capacity := func(h House) (int, int) {
		return max(s.l.spare(h.ID), 0) + inflate, 0
	}
	if inflate == 0 {
		for _, g := range modeled {
			cands[g.ID] = lo.Filter(cands[g.ID], func(h string, _ int) bool { return s.l.fits(h, g.Size) })
		}
	}

	if len(modeled) == 0 {
		return groups
	}
	pr := s.build("final_assignment", modeled, cands, points, capacity)
	sol, ok := s.solve(pr)
	if !ok {
		return groups
	}

	var rest []Group
	placed := 0
	for _, g := range groups {
		if h, ok := pr.choice(sol, g); ok && s.l.fits(h, g.Size) {
			s.l.commit(g, h, PhaseFinal)
			placed++
			continue
		}
		rest = append(rest, g)
	}
	s.placed(PhaseFinal, placed)
	s.logger.V(1).Info("Final optimization done", "placed", placed, "rejected", len(rest))
	return rest
}
