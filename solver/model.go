package solver

import (
	"github.com/rotisserie/eris"
)

// MaxRanked is the number of ranked preferences a group may list.
const MaxRanked = 5

var ErrInvalidInput = eris.New("invalid input")

type Group struct {
	ID      string
	Size    int
	Ranked  []string
	SubPref []string
}

type House struct {
	ID  string
	Min int
	Max int
	// HasMin marks houses using the (min, max) capacity model.
	HasMin bool
	// Overflow replaces Options.OverflowCap for this house when
	// HasOverflow is set. The zero House inherits the option.
	Overflow    int
	HasOverflow bool
}

// GreedyLimit is the occupancy the greedy phase may fill up to.
func (h House) GreedyLimit() int {
	if h.HasMin {
		return h.Min
	}
	return h.Max
}

// Problem is the canonical, validated input of a solve.
type Problem struct {
	Groups []Group
	Houses []House

	houseIdx map[string]int
	numeric  map[string]bool
}

func (p *Problem) House(id string) (House, bool) {
	i, ok := p.houseIdx[id]
	if !ok {
		return House{}, false
	}
	return p.Houses[i], true
}

func (p *Problem) HouseIDs() []string {
	ids := make([]string, len(p.Houses))
	for i, h := range p.Houses {
		ids[i] = h.ID
	}
	return ids
}

// rank returns the preference rank of house for g, or -1.
func (g Group) rank(house string) int {
	for i, h := range g.Ranked {
		if h == house {
			return i
		}
	}
	return -1
}

func (g Group) isSub(house string) bool {
	for _, h := range g.SubPref {
		if h == house {
			return true
		}
	}
	return false
}

func (g Group) top() (string, bool) {
	if len(g.Ranked) == 0 {
		return "", false
	}
	return g.Ranked[0], true
}

type ScoreTable struct {
	Ranks   []int
	Sub     int
	Penalty int
}

var DefaultScores = ScoreTable{
	Ranks:   []int{100, 50, 30, 15, 5},
	Sub:     3,
	Penalty: -100,
}

func (t ScoreTable) Validate() error {
	if len(t.Ranks) == 0 {
		return eris.New("score table needs at least one rank value")
	}
	if len(t.Ranks) > MaxRanked {
		return eris.Errorf("score table has %d rank values, at most %d are used", len(t.Ranks), MaxRanked)
	}
	for i := 1; i < len(t.Ranks); i++ {
		if t.Ranks[i] >= t.Ranks[i-1] {
			return eris.Errorf("rank scores must be strictly decreasing, rank %d has %d after %d", i, t.Ranks[i], t.Ranks[i-1])
		}
	}
	if t.Sub >= t.Ranks[len(t.Ranks)-1] {
		return eris.Errorf("sub-preference score %d must be below the last rank score %d", t.Sub, t.Ranks[len(t.Ranks)-1])
	}
	if t.Penalty >= t.Sub {
		return eris.Errorf("penalty %d must be below the sub-preference score %d", t.Penalty, t.Sub)
	}
	return nil
}

// Points is the score g earns in house. Unlisted houses earn the penalty.
func (t ScoreTable) Points(g Group, house string) int {
	if r := g.rank(house); r >= 0 {
		if r < len(t.Ranks) {
			return t.Ranks[r]
		}
		return t.Ranks[len(t.Ranks)-1]
	}
	if g.isSub(house) {
		return t.Sub
	}
	return t.Penalty
}
