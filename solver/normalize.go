package solver

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/samber/lo"
)

// HouseRecord is a house as it arrives on the wire. Either Capacity or
// Max is the hard ceiling; Min is the optional soft threshold.
type HouseRecord struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Capacity *int            `json:"capacity,omitempty"`
	Min      *int            `json:"min,omitempty"`
	Max      *int            `json:"max,omitempty"`
	Overflow *int            `json:"overflow,omitempty"`
}

// GroupRecord accepts both preference shapes: explicit arrays, or the
// discrete house_rank_1..5 / house_rank_sub fields.
type GroupRecord struct {
	ID            json.RawMessage   `json:"id"`
	Size          *int              `json:"size,omitempty"`
	MemberCount   *int              `json:"member_count,omitempty"`
	Preference    []json.RawMessage `json:"preference,omitempty"`
	SubPreference []json.RawMessage `json:"subPreference,omitempty"`
	HouseRank1    json.RawMessage   `json:"house_rank_1,omitempty"`
	HouseRank2    json.RawMessage   `json:"house_rank_2,omitempty"`
	HouseRank3    json.RawMessage   `json:"house_rank_3,omitempty"`
	HouseRank4    json.RawMessage   `json:"house_rank_4,omitempty"`
	HouseRank5    json.RawMessage   `json:"house_rank_5,omitempty"`
	HouseRankSub  json.RawMessage   `json:"house_rank_sub,omitempty"`
}

type request struct {
	Groups []GroupRecord   `json:"groups"`
	Houses json.RawMessage `json:"houses"`
}

// ParseRequest decodes a {"groups": ..., "houses": ...} body into a Problem.
func ParseRequest(data []byte) (*Problem, error) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, eris.Wrapf(ErrInvalidInput, "decoding request: %v", err)
	}
	if req.Groups == nil {
		return nil, eris.Wrap(ErrInvalidInput, "groups is required")
	}

	numeric := map[string]bool{}
	houses, err := parseHouses(req.Houses, numeric)
	if err != nil {
		return nil, err
	}

	groups := make([]Group, 0, len(req.Groups))
	for i, rec := range req.Groups {
		g, err := rec.group(numeric)
		if err != nil {
			return nil, eris.Wrapf(err, "group %d", i)
		}
		groups = append(groups, g)
	}

	p, err := NewProblem(houses, groups)
	if err != nil {
		return nil, err
	}
	p.numeric = numeric
	return p, nil
}

func parseHouses(raw json.RawMessage, numeric map[string]bool) ([]House, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, eris.Wrap(ErrInvalidInput, "houses is required")
	}
	switch raw[0] {
	case '{':
		var byID map[string]HouseRecord
		if err := json.Unmarshal(raw, &byID); err != nil {
			return nil, eris.Wrapf(ErrInvalidInput, "decoding houses: %v", err)
		}
		houses := make([]House, 0, len(byID))
		for id, rec := range byID {
			if _, ok := canonicalInt(id); ok {
				numeric[id] = true
			}
			h, err := rec.house(id)
			if err != nil {
				return nil, err
			}
			houses = append(houses, h)
		}
		slices.SortFunc(houses, func(a, b House) int { return compareIDs(a.ID, b.ID) })
		return houses, nil
	case '[':
		var list []HouseRecord
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, eris.Wrapf(ErrInvalidInput, "decoding houses: %v", err)
		}
		houses := make([]House, 0, len(list))
		for i, rec := range list {
			id, isNum, ok := scalarID(rec.ID)
			if !ok {
				id, isNum = strconv.Itoa(i), true
			}
			if isNum {
				numeric[id] = true
			}
			h, err := rec.house(id)
			if err != nil {
				return nil, err
			}
			houses = append(houses, h)
		}
		return houses, nil
	default:
		return nil, eris.Wrap(ErrInvalidInput, "houses must be an object keyed by id or an array")
	}
}

func (rec HouseRecord) house(id string) (House, error) {
	h := House{ID: id}
	switch {
	case rec.Max != nil:
		h.Max = *rec.Max
	case rec.Capacity != nil:
		h.Max = *rec.Capacity
	case rec.Min != nil:
		h.Max = *rec.Min
	}
	if rec.Min != nil {
		h.Min, h.HasMin = *rec.Min, true
	}
	if rec.Overflow != nil {
		h.Overflow, h.HasOverflow = *rec.Overflow, true
	}
	return h, nil
}

func (rec GroupRecord) group(numeric map[string]bool) (Group, error) {
	id, isNum, ok := scalarID(rec.ID)
	if !ok {
		return Group{}, eris.Wrap(ErrInvalidInput, "id is required")
	}
	if isNum {
		numeric[id] = true
	}
	g := Group{ID: id}
	switch {
	case rec.Size != nil:
		g.Size = *rec.Size
	case rec.MemberCount != nil:
		g.Size = *rec.MemberCount
	}
	if (rec.Size != nil || rec.MemberCount != nil) && g.Size <= 0 {
		return Group{}, eris.Wrapf(ErrInvalidInput, "group %s has size %d", id, g.Size)
	}

	if rec.Preference != nil || rec.SubPreference != nil {
		g.Ranked = houseRefs(rec.Preference, numeric)
		g.SubPref = houseRefs(rec.SubPreference, numeric)
		return g, nil
	}
	g.Ranked = houseRefs([]json.RawMessage{rec.HouseRank1, rec.HouseRank2, rec.HouseRank3, rec.HouseRank4, rec.HouseRank5}, numeric)
	g.SubPref = houseRefs([]json.RawMessage{rec.HouseRankSub}, numeric)
	return g, nil
}

func houseRefs(raw []json.RawMessage, numeric map[string]bool) []string {
	var ids []string
	for _, r := range raw {
		id, isNum, ok := scalarID(r)
		if !ok {
			continue
		}
		if isNum {
			numeric[id] = true
		}
		ids = append(ids, id)
	}
	return ids
}

// scalarID reads a JSON string or integer. Null or absent values are not ok.
func scalarID(raw json.RawMessage) (id string, isNum bool, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", false, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", false, false
		}
		return s, false, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false, false
	}
	if _, err := n.Int64(); err != nil {
		return "", false, false
	}
	return n.String(), true, true
}

// NewProblem validates typed records and applies defaults: size 1, ranked
// lists truncated to MaxRanked, duplicates and unknown house references
// dropped, sub-preferences that are already ranked dropped.
func NewProblem(houses []House, groups []Group) (*Problem, error) {
	p := &Problem{
		Houses:   make([]House, 0, len(houses)),
		Groups:   make([]Group, 0, len(groups)),
		houseIdx: make(map[string]int, len(houses)),
		numeric:  map[string]bool{},
	}
	for _, h := range houses {
		if h.ID == "" {
			return nil, eris.Wrap(ErrInvalidInput, "house id is empty")
		}
		if _, dup := p.houseIdx[h.ID]; dup {
			return nil, eris.Wrapf(ErrInvalidInput, "duplicate house %s", h.ID)
		}
		if h.Max < 0 || h.Min < 0 {
			return nil, eris.Wrapf(ErrInvalidInput, "house %s has negative capacity", h.ID)
		}
		if h.HasOverflow && h.Overflow < 0 {
			return nil, eris.Wrapf(ErrInvalidInput, "house %s has negative overflow %d", h.ID, h.Overflow)
		}
		if h.HasMin && h.Min > h.Max {
			h.Min = h.Max
		}
		p.houseIdx[h.ID] = len(p.Houses)
		p.Houses = append(p.Houses, h)
	}

	seen := map[string]bool{}
	for _, g := range groups {
		if g.ID == "" {
			return nil, eris.Wrap(ErrInvalidInput, "group id is empty")
		}
		if seen[g.ID] {
			return nil, eris.Wrapf(ErrInvalidInput, "duplicate group %s", g.ID)
		}
		seen[g.ID] = true
		if g.Size == 0 {
			g.Size = 1
		}
		if g.Size < 0 {
			return nil, eris.Wrapf(ErrInvalidInput, "group %s has size %d", g.ID, g.Size)
		}
		known := func(id string, _ int) bool {
			_, ok := p.houseIdx[id]
			return ok
		}
		ranked := lo.Uniq(lo.Filter(g.Ranked, known))
		if len(ranked) > MaxRanked {
			ranked = ranked[:MaxRanked]
		}
		sub := lo.Uniq(lo.Filter(g.SubPref, known))
		sub = lo.Without(sub, ranked...)
		p.Groups = append(p.Groups, Group{ID: g.ID, Size: g.Size, Ranked: ranked, SubPref: sub})
	}
	return p, nil
}

// canonicalInt parses id only when it is the canonical spelling of an
// integer, so "010" and "+10" stay strings.
func canonicalInt(id string) (int, bool) {
	n, err := strconv.Atoi(id)
	if err != nil || strconv.Itoa(n) != id {
		return 0, false
	}
	return n, true
}

// compareIDs orders integer ids numerically and everything else lexically,
// integers first.
func compareIDs(a, b string) int {
	ai, aok := canonicalInt(a)
	bi, bok := canonicalInt(b)
	switch {
	case aok && bok:
		if c := cmp.Compare(ai, bi); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case aok:
		return -1
	case bok:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func (g Group) String() string {
	return fmt.Sprintf("group %s (size %d)", g.ID, g.Size)
}
