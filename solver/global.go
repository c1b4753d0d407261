package solver

// global solves one program over every group of the batch against the
// capacity left by earlier batches. There is no greedy phase and no
// fallback: whatever the program does not place stays unassigned.
func (s *run) global(groups []Group) {
	cands := map[string][]string{}
	var modeled []Group
	for _, g := range groups {
		s.l.advance(g.ID, OptimizationCandidate)
		c := s.fitting(s.candidates(g, s.opts.Candidates), g.Size)
		if len(c) == 0 {
			s.l.reject(g)
			continue
		}
		cands[g.ID] = c
		modeled = append(modeled, g)
	}
	if len(modeled) == 0 {
		return
	}

	pr := s.build("global_assignment", modeled, cands, s.opts.Scores.Points, s.capacity)
	sol, ok := s.solve(pr)
	placed := 0
	for _, g := range modeled {
		if ok {
			if h, found := pr.choice(sol, g); found && s.l.totals[h]+g.Size <= s.ceiling(h) {
				s.l.commit(g, h, PhaseGlobal)
				placed++
				continue
			}
		}
		s.l.reject(g)
	}
	if ok {
		s.logOverflow(pr, sol)
	}
	s.placed(PhaseGlobal, placed)
	s.logger.V(1).Info("Global batch done", "placed", placed, "modeled", len(modeled))
}
