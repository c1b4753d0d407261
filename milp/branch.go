package milp

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

type BranchAndBound struct {
	NodeLimit int
	Tol       float64
}

var DefaultBranchAndBound = BranchAndBound{
	NodeLimit: 20000,
	Tol:       1e-6,
}

func NewBranchAndBound() *BranchAndBound {
	b := DefaultBranchAndBound
	return &b
}

var errNodeInfeasible = errors.New("node infeasible")

type node struct {
	lower []float64
	upper []float64
}

// Solve runs a depth-first branch and bound. limit bounds the whole search,
// relaxations included. A feasible hint seeds the incumbent, so a search
// cut short by the limit still returns TimeLimitFeasible.
func (b *BranchAndBound) Solve(ctx context.Context, m *Model, limit time.Duration) Solution {
	nodeLimit := b.NodeLimit
	if nodeLimit <= 0 {
		nodeLimit = DefaultBranchAndBound.NodeLimit
	}
	tol := b.Tol
	if tol <= 0 {
		tol = DefaultBranchAndBound.Tol
	}
	if limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	root := node{
		lower: make([]float64, len(m.vars)),
		upper: make([]float64, len(m.vars)),
	}
	for i, v := range m.vars {
		root.lower[i] = v.lower
		root.upper[i] = v.upper
	}

	var (
		best      []float64
		bestObj   = math.Inf(-1)
		nodes     int
		truncated bool
		lastErr   error
	)
	if h := m.Hint(); h != nil && m.Feasible(h, tol) {
		best, bestObj = h, m.Objective(h)
	}

	stack := []node{root}
	for len(stack) > 0 {
		if nodes >= nodeLimit || ctx.Err() != nil {
			truncated = true
			break
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		obj, x, err := relax(ctx, m, n, tol)
		if err != nil {
			if ctx.Err() != nil {
				truncated = true
				break
			}
			if !errors.Is(err, errNodeInfeasible) {
				lastErr = err
			}
			continue
		}
		if obj <= bestObj+tol {
			continue
		}

		branchVar := -1
		bestFrac := 0.0
		for i, v := range m.vars {
			if !v.integer {
				continue
			}
			frac := math.Abs(x[i] - math.Round(x[i]))
			if frac > tol && frac > bestFrac {
				bestFrac = frac
				branchVar = i
			}
		}
		if branchVar < 0 {
			for i, v := range m.vars {
				if v.integer {
					x[i] = math.Round(x[i])
				}
			}
			best = x
			bestObj = m.Objective(x)
			continue
		}

		down := n.clone()
		down.upper[branchVar] = math.Floor(x[branchVar])
		up := n.clone()
		up.lower[branchVar] = math.Ceil(x[branchVar])
		// up is explored first
		stack = append(stack, down, up)
	}

	sol := Solution{Nodes: nodes}
	switch {
	case best == nil && truncated && ctx.Err() != nil:
		sol.Status = Error
		sol.Err = eris.Wrapf(ctx.Err(), "no feasible solution after %d nodes", nodes)
	case best == nil && truncated:
		sol.Status = Error
		sol.Err = eris.Errorf("no feasible solution within %d nodes", nodes)
	case best == nil && lastErr != nil:
		sol.Status = Error
		sol.Err = lastErr
	case best == nil:
		sol.Status = Infeasible
	case truncated:
		sol.Status = TimeLimitFeasible
	default:
		sol.Status = Optimal
	}
	if best != nil {
		sol.Values = best
		sol.Objective = bestObj
	}
	return sol
}

func (n node) clone() node {
	return node{
		lower: append([]float64(nil), n.lower...),
		upper: append([]float64(nil), n.upper...),
	}
}

// relax solves the LP relaxation of m restricted to the bounds of n.
// Variables are shifted by their lower bound and fixed variables are
// substituted out, so the standard form only holds free columns.
func relax(ctx context.Context, m *Model, n node, tol float64) (obj float64, x []float64, err error) {
	x = make([]float64, len(m.vars))
	free := make([]int, len(m.vars))
	var cols []int
	for i := range m.vars {
		if n.lower[i] > n.upper[i]+tol {
			return 0, nil, errNodeInfeasible
		}
		x[i] = n.lower[i]
		if n.upper[i]-n.lower[i] > tol {
			free[i] = len(cols)
			cols = append(cols, i)
		} else {
			free[i] = -1
		}
	}

	type row struct {
		coef  map[int]float64
		rhs   float64
		slack bool
	}
	var rows []row
	for _, c := range m.constraints {
		r := row{coef: map[int]float64{}, rhs: c.RHS, slack: c.Sense == LessEq}
		for _, t := range c.Terms {
			r.rhs -= t.Coef * n.lower[t.Var]
			if j := free[t.Var]; j >= 0 && t.Coef != 0 {
				r.coef[j] += t.Coef
			}
		}
		if len(r.coef) == 0 {
			if (r.slack && r.rhs < -tol) || (!r.slack && math.Abs(r.rhs) > tol) {
				return 0, nil, errNodeInfeasible
			}
			continue
		}
		rows = append(rows, r)
	}
	// A row with non-negative coefficients already caps each of its
	// columns at rhs/coef. Explicit bound rows are only added for columns
	// no such row caps tightly enough, which drops them for binaries under
	// an assignment row.
	implied := make([]float64, len(cols))
	for j := range implied {
		implied[j] = math.Inf(1)
	}
	for _, r := range rows {
		if !nonNegative(r.coef) {
			continue
		}
		for j, v := range r.coef {
			if v > 0 {
				implied[j] = min(implied[j], r.rhs/v)
			}
		}
	}
	for j, i := range cols {
		span := n.upper[i] - n.lower[i]
		if implied[j] <= span+tol {
			continue
		}
		rows = append(rows, row{coef: map[int]float64{j: 1}, rhs: span, slack: true})
	}

	if len(cols) == 0 {
		return m.Objective(x), x, nil
	}

	numSlack := 0
	for _, r := range rows {
		if r.slack {
			numSlack++
		}
	}
	width := len(cols) + numSlack
	a := mat.NewDense(len(rows), width, nil)
	b := make([]float64, len(rows))
	s := len(cols)
	for ri, r := range rows {
		sign := 1.0
		if r.rhs < 0 {
			sign = -1
		}
		for j, v := range r.coef {
			a.Set(ri, j, sign*v)
		}
		if r.slack {
			a.Set(ri, s, sign)
			s++
		}
		b[ri] = sign * r.rhs
	}
	c := make([]float64, width)
	for j, i := range cols {
		c[j] = -m.objective[i]
	}

	opt, err := simplex(ctx, c, a, b, tol)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return 0, nil, errNodeInfeasible
		}
		return 0, nil, eris.Wrapf(err, "lp relaxation of %s", m.Name)
	}
	for j, i := range cols {
		x[i] = n.lower[i] + opt[j]
	}
	return m.Objective(x), x, nil
}

func nonNegative(coef map[int]float64) bool {
	for _, v := range coef {
		if v < 0 {
			return false
		}
	}
	return true
}

type lpResult struct {
	x   []float64
	err error
}

// simplex runs lp.Simplex on its own goroutine so the caller can stop
// waiting at the deadline. An abandoned run finishes in the background and
// its result is dropped.
func simplex(ctx context.Context, c []float64, a *mat.Dense, b []float64, tol float64) ([]float64, error) {
	done := make(chan lpResult, 1)
	go func() {
		var r lpResult
		// gonum panics on shapes it cannot factor
		defer func() {
			if p := recover(); p != nil {
				r.err = eris.Errorf("simplex: %v", p)
			}
			done <- r
		}()
		_, r.x, r.err = lp.Simplex(c, a, b, tol*1e-3, nil)
	}()
	select {
	case r := <-done:
		return r.x, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
