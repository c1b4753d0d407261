package solver

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
)

type Assignment struct {
	Group    string
	House    string
	Assigned bool
	Phase    Phase
}

// Result maps every group of a problem, in input order, to a house or to
// an explicit unassigned marker.
type Result struct {
	Assignments []Assignment

	index   map[string]int
	numeric map[string]bool
}

func assemble(p *Problem, l *ledger) *Result {
	r := &Result{
		Assignments: make([]Assignment, len(p.Groups)),
		index:       make(map[string]int, len(p.Groups)),
		numeric:     p.numeric,
	}
	for i, g := range p.Groups {
		a := Assignment{Group: g.ID}
		if l.assigned(g.ID) {
			a.House, a.Assigned, a.Phase = l.house[g.ID], true, l.phase[g.ID]
		}
		r.Assignments[i] = a
		r.index[g.ID] = i
	}
	return r
}

// Lookup returns the house of group. ok is false when the group is
// unassigned or unknown.
func (r *Result) Lookup(group string) (house string, ok bool) {
	i, found := r.index[group]
	if !found || !r.Assignments[i].Assigned {
		return "", false
	}
	return r.Assignments[i].House, true
}

func (r *Result) Unassigned() []string {
	var ids []string
	for _, a := range r.Assignments {
		if !a.Assigned {
			ids = append(ids, a.Group)
		}
	}
	return ids
}

// Map returns the assignment as group id → house id, nil for unassigned.
func (r *Result) Map() map[string]*string {
	m := make(map[string]*string, len(r.Assignments))
	for _, a := range r.Assignments {
		if a.Assigned {
			m[a.Group] = lo.ToPtr(a.House)
		} else {
			m[a.Group] = nil
		}
	}
	return m
}

// MarshalJSON encodes {"group": house | null, ...} in input order. Ids that
// arrived as JSON numbers are written back as numbers.
func (r *Result) MarshalJSON() ([]byte, error) {
	var buf strings.Builder
	buf.WriteByte('{')
	for i, a := range r.Assignments {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(a.Group)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		switch {
		case !a.Assigned:
			buf.WriteString("null")
		case r.numeric[a.House]:
			buf.WriteString(a.House)
		default:
			v, err := json.Marshal(a.House)
			if err != nil {
				return nil, err
			}
			buf.Write(v)
		}
	}
	buf.WriteByte('}')
	return []byte(buf.String()), nil
}

// HouseTotals sums the member count committed to every house of p.
func HouseTotals(p *Problem, r *Result) map[string]int {
	totals := make(map[string]int, len(p.Houses))
	for _, h := range p.Houses {
		totals[h.ID] = 0
	}
	for i, a := range r.Assignments {
		if a.Assigned {
			totals[a.House] += p.Groups[i].Size
		}
	}
	return totals
}

// Score is the preference satisfaction of r: rank points for ranked houses,
// sub points for sub-preferences, nothing for unlisted houses or
// unassigned groups.
func Score(p *Problem, r *Result, t ScoreTable) int {
	total := 0
	for i, a := range r.Assignments {
		if !a.Assigned {
			continue
		}
		if pts := t.Points(p.Groups[i], a.House); pts > 0 {
			total += pts
		}
	}
	return total
}

type Summary struct {
	Ranks      [MaxRanked]int `json:"ranks"`
	Sub        int            `json:"sub"`
	Unlisted   int            `json:"unlisted"`
	Unassigned int            `json:"unassigned"`
}

// Summarize counts how many groups landed on each preference rank.
func Summarize(p *Problem, r *Result) Summary {
	var s Summary
	for i, a := range r.Assignments {
		g := p.Groups[i]
		switch {
		case !a.Assigned:
			s.Unassigned++
		case g.rank(a.House) >= 0:
			s.Ranks[g.rank(a.House)]++
		case g.isSub(a.House):
			s.Sub++
		default:
			s.Unlisted++
		}
	}
	return s
}
