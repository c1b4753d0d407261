package solver

// greedy commits each group to its top choice while the house stays within
// its greedy limit, and returns the groups it deferred in input order.
func (s *run) greedy(groups []Group) []Group {
	var deferred []Group
	placed := 0
	for _, g := range groups {
		s.l.advance(g.ID, GreedyAttempted)
		top, ok := g.top()
		if ok {
			h, _ := s.p.House(top)
			if s.l.totals[top]+g.Size <= h.GreedyLimit() {
				s.l.commit(g, top, PhaseGreedy)
				placed++
				continue
			}
		}
		deferred = append(deferred, g)
	}
	s.placed(PhaseGreedy, placed)
	s.logger.V(1).Info("Greedy phase done", "placed", placed, "deferred", len(deferred))
	return deferred
}
