package solver

// Baseline is the plain greedy reference: each group, in input order, takes
// its top choice if it fits under the hard capacity, otherwise the first
// house with room, otherwise nothing.
func Baseline(p *Problem) *Result {
	l := newLedger(p)
	for _, g := range p.Groups {
		if top, ok := g.top(); ok && l.fits(top, g.Size) {
			l.commit(g, top, PhaseGreedy)
			continue
		}
		placed := false
		for _, h := range p.Houses {
			if l.fits(h.ID, g.Size) {
				l.commit(g, h.ID, PhaseFallback)
				placed = true
				break
			}
		}
		if !placed {
			l.reject(g)
		}
	}
	return assemble(p, l)
}
