package solver

import (
	"fmt"
)

// State is the position of a group in the placement pipeline.
type State int

const (
	Unseen State = iota
	GreedyAttempted
	OptimizationCandidate
	FallbackCandidate
	FinalOptimizationCandidate
	Assigned
	Unassigned
)

func (s State) String() string {
	switch s {
	case Unseen:
		return "unseen"
	case GreedyAttempted:
		return "greedy_attempted"
	case OptimizationCandidate:
		return "optimization_candidate"
	case FallbackCandidate:
		return "fallback_candidate"
	case FinalOptimizationCandidate:
		return "final_optimization_candidate"
	case Assigned:
		return "assigned"
	case Unassigned:
		return "unassigned"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) terminal() bool {
	return s == Assigned || s == Unassigned
}

// Phase records which step committed a group.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseGreedy
	PhaseOptimal
	PhaseFallback
	PhaseFinal
	PhaseGlobal
)

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhaseGreedy:
		return "greedy"
	case PhaseOptimal:
		return "optimal"
	case PhaseFallback:
		return "fallback"
	case PhaseFinal:
		return "final"
	case PhaseGlobal:
		return "global"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ledger holds the mutable per-solve bookkeeping: committed member counts
// per house and the state of every group. Nothing in it outlives a Solve.
type ledger struct {
	problem *Problem
	totals  map[string]int
	state   map[string]State
	house   map[string]string
	phase   map[string]Phase
}

func newLedger(p *Problem) *ledger {
	l := &ledger{
		problem: p,
		totals:  make(map[string]int, len(p.Houses)),
		state:   make(map[string]State, len(p.Groups)),
		house:   make(map[string]string, len(p.Groups)),
		phase:   make(map[string]Phase, len(p.Groups)),
	}
	for _, h := range p.Houses {
		l.totals[h.ID] = 0
	}
	return l
}

// advance moves g forward. Backward moves and moves out of a terminal
// state are refused.
func (l *ledger) advance(g string, to State) bool {
	from := l.state[g]
	if from.terminal() || to <= from {
		return false
	}
	l.state[g] = to
	return true
}

func (l *ledger) spare(house string) int {
	h, ok := l.problem.House(house)
	if !ok {
		return 0
	}
	return h.Max - l.totals[house]
}

func (l *ledger) fits(house string, size int) bool {
	return l.spare(house) >= size
}

func (l *ledger) commit(g Group, house string, phase Phase) {
	if !l.advance(g.ID, Assigned) {
		panic(fmt.Sprintf("commit of %s in state %s", g, l.state[g.ID]))
	}
	l.totals[house] += g.Size
	l.house[g.ID] = house
	l.phase[g.ID] = phase
}

func (l *ledger) reject(g Group) {
	l.advance(g.ID, Unassigned)
}

func (l *ledger) assigned(g string) bool {
	return l.state[g] == Assigned
}
