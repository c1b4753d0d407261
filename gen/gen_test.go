package gen

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placement/solver"
)

func TestGenerate_Defaults(t *testing.T) {
	s, err := Generate(rand.New(rand.NewSource(1)), DefaultParams)
	require.NoError(t, err)
	p := s.Problem

	require.Len(t, p.Houses, 22)
	require.Len(t, p.Groups, DefaultParams.Groups)

	counts := map[string]int{}
	for _, name := range s.Class {
		counts[name]++
	}
	assert.Equal(t, map[string]int{"S": 10, "M": 3, "L": 4, "XL": 3, "2XL": 2}, counts)

	divisor := map[string]int{}
	for _, c := range DefaultClasses {
		divisor[c.Name] = c.Divisor
	}
	seats := 0
	for _, h := range p.Houses {
		assert.True(t, h.HasMin)
		assert.LessOrEqual(t, h.Min, h.Max, "house %s", h.ID)
		assert.Zero(t, h.Max%divisor[s.Class[h.ID]], "house %s", h.ID)
		seats += h.Max
	}

	members := 0
	for _, g := range p.Groups {
		assert.GreaterOrEqual(t, g.Size, 1)
		assert.LessOrEqual(t, g.Size, DefaultParams.MaxSize)
		assert.NotEmpty(t, g.Ranked)
		for _, sub := range g.SubPref {
			assert.Contains(t, []string{"XL", "2XL"}, s.Class[sub])
			assert.NotContains(t, g.Ranked, sub)
		}
		members += g.Size
	}
	assert.GreaterOrEqual(t, seats, members)
}

func TestGenerate_Reproducible(t *testing.T) {
	params := DefaultParams
	params.Groups = 50
	a, err := Generate(rand.New(rand.NewSource(7)), params)
	require.NoError(t, err)
	b, err := Generate(rand.New(rand.NewSource(7)), params)
	require.NoError(t, err)

	opts := cmp.Options{cmpopts.IgnoreUnexported(solver.Problem{}), cmpopts.EquateEmpty()}
	if diff := cmp.Diff(a.Problem, b.Problem, opts); diff != "" {
		t.Errorf("same seed produced different problems (-a +b):\n%s", diff)
	}
}

func TestGenerate_GrowsCapacity(t *testing.T) {
	params := Params{
		Groups:      40,
		Classes:     []SizeClass{{Name: "S", Low: 6, High: 60, Divisor: 3, Count: 2}},
		MaxSize:     3,
		RankWeights: []float64{1},
	}
	for seed := int64(1); seed <= 5; seed++ {
		s, err := Generate(rand.New(rand.NewSource(seed)), params)
		require.NoError(t, err)
		seats, members := 0, 0
		for _, h := range s.Problem.Houses {
			seats += h.Max
		}
		for _, g := range s.Problem.Groups {
			members += g.Size
		}
		assert.GreaterOrEqual(t, seats, members, "seed %d", seed)
	}
}
