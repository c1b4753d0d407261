// Package gen builds reproducible sample placement problems: houses drawn
// from size classes with (min, max) capacities, and groups of one to three
// members with mostly full preference lists.
package gen

import (
	"math/rand"
	"slices"
	"strconv"

	"placement/solver"
)

type SizeClass struct {
	Name    string
	Low     int
	High    int
	Divisor int
	Count   int
}

var DefaultClasses = []SizeClass{
	{Name: "S", Low: 140, High: 160, Divisor: 3, Count: 10},
	{Name: "M", Low: 220, High: 260, Divisor: 3, Count: 3},
	{Name: "L", Low: 300, High: 360, Divisor: 3, Count: 4},
	{Name: "XL", Low: 500, High: 600, Divisor: 3, Count: 3},
	{Name: "2XL", Low: 900, High: 1100, Divisor: 4, Count: 2},
}

type Params struct {
	Groups   int
	Classes  []SizeClass
	MaxSize  int
	SubPrefs int
	// SubClasses are the size classes sub-preferences are drawn from.
	SubClasses []string
	// RankWeights[i] is the weight of listing i+1 ranked preferences.
	RankWeights []float64
}

var DefaultParams = Params{
	Groups:      2000,
	Classes:     DefaultClasses,
	MaxSize:     3,
	SubPrefs:    1,
	SubClasses:  []string{"XL", "2XL"},
	RankWeights: []float64{0.0125, 0.0125, 0.0125, 0.0125, 0.95},
}

type Sample struct {
	Problem *solver.Problem
	// Class maps house id to its size class name.
	Class map[string]string
}

type house struct {
	class    SizeClass
	min, max int
}

func Generate(rng *rand.Rand, params Params) (*Sample, error) {
	var raw []house
	for _, c := range params.Classes {
		for range c.Count {
			lo := divisible(rng, c.Low, c.High, c.Divisor)
			hi := divisible(rng, lo, c.High, c.Divisor)
			raw = append(raw, house{class: c, min: lo, max: hi})
		}
	}

	ids := make([]string, len(raw))
	var subPool []string
	for i, h := range raw {
		ids[i] = strconv.Itoa(i + 1)
		for _, name := range params.SubClasses {
			if h.class.Name == name {
				subPool = append(subPool, ids[i])
			}
		}
	}

	groups := make([]solver.Group, 0, params.Groups)
	members := 0
	for gid := 1; gid <= params.Groups; gid++ {
		size := rng.Intn(max(params.MaxSize, 1)) + 1
		members += size

		n := min(weightedCount(rng, params.RankWeights), len(ids))
		prefs := shuffled(rng, ids)[:n]

		var candidates []string
		for _, id := range subPool {
			if !slices.Contains(prefs, id) {
				candidates = append(candidates, id)
			}
		}
		subs := shuffled(rng, candidates)
		subs = subs[:min(params.SubPrefs, len(subs))]

		groups = append(groups, solver.Group{
			ID:      strconv.Itoa(gid),
			Size:    size,
			Ranked:  prefs,
			SubPref: subs,
		})
	}

	// grow maxima round-robin until every member has a seat
	totalMax := 0
	for _, h := range raw {
		totalMax += h.max
	}
	for i := 0; totalMax < members && i < len(raw)*20; i++ {
		h := &raw[i%len(raw)]
		if next := h.max + h.class.Divisor; next <= h.class.High {
			totalMax += h.class.Divisor
			h.max = next
			if h.min > h.max {
				h.min = h.max - h.class.Divisor
			}
		}
	}

	houses := make([]solver.House, len(raw))
	class := make(map[string]string, len(raw))
	for i, h := range raw {
		houses[i] = solver.House{ID: ids[i], Min: h.min, Max: h.max, HasMin: true}
		class[ids[i]] = h.class.Name
	}
	p, err := solver.NewProblem(houses, groups)
	if err != nil {
		return nil, err
	}
	return &Sample{Problem: p, Class: class}, nil
}

func divisible(rng *rand.Rand, lo, hi, divisor int) int {
	start := (lo + divisor - 1) / divisor
	end := hi / divisor
	if end < start {
		return divisor
	}
	return (start + rng.Intn(end-start+1)) * divisor
}

func weightedCount(rng *rand.Rand, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	r := rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i + 1
		}
	}
	return len(weights)
}

func shuffled(rng *rand.Rand, ids []string) []string {
	out := append([]string(nil), ids...)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
