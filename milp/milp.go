// Package milp describes small mixed-integer linear programs and the
// contract a solving backend has to satisfy.
package milp

import (
	"context"
	"fmt"
	"math"
	"time"
)

type Var int

type Sense int

const (
	LessEq Sense = iota
	Equal
)

type Term struct {
	Var  Var
	Coef float64
}

type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

type variable struct {
	name    string
	lower   float64
	upper   float64
	integer bool
}

// Model is always a maximization.
type Model struct {
	Name        string
	vars        []variable
	objective   []float64
	constraints []Constraint
}

func NewModel(name string) *Model {
	return &Model{Name: name}
}

func (m *Model) NewBinary(name string) Var {
	return m.NewInteger(name, 0, 1)
}

func (m *Model) NewInteger(name string, lower, upper float64) Var {
	m.vars = append(m.vars, variable{name: name, lower: lower, upper: upper, integer: true})
	m.objective = append(m.objective, 0)
	return Var(len(m.vars) - 1)
}

func (m *Model) SetObjective(v Var, coef float64) {
	m.objective[v] = coef
}

func (m *Model) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	m.constraints = append(m.constraints, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

func (m *Model) NumVars() int        { return len(m.vars) }
func (m *Model) NumConstraints() int { return len(m.constraints) }
func (m *Model) VarName(v Var) string {
	return m.vars[v].name
}

// Objective evaluates the objective at values.
func (m *Model) Objective(values []float64) float64 {
	var sum float64
	for i, c := range m.objective {
		sum += c * values[i]
	}
	return sum
}

// Feasible reports whether values satisfy every bound and constraint within tol.
func (m *Model) Feasible(values []float64, tol float64) bool {
	if len(values) != len(m.vars) {
		return false
	}
	for i, v := range m.vars {
		x := values[i]
		if x < v.lower-tol || x > v.upper+tol {
			return false
		}
		if v.integer && math.Abs(x-math.Round(x)) > tol {
			return false
		}
	}
	for _, c := range m.constraints {
		var lhs float64
		for _, t := range c.Terms {
			lhs += t.Coef * values[t.Var]
		}
		switch c.Sense {
		case LessEq:
			if lhs > c.RHS+tol {
				return false
			}
		case Equal:
			if math.Abs(lhs-c.RHS) > tol {
				return false
			}
		}
	}
	return true
}

type Status int

const (
	Optimal Status = iota
	TimeLimitFeasible
	Infeasible
	Error
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case TimeLimitFeasible:
		return "time_limit_feasible"
	case Infeasible:
		return "infeasible"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Nodes     int
	Err       error
}

// OK reports whether the solution carries usable values.
func (s Solution) OK() bool {
	return s.Status == Optimal || s.Status == TimeLimitFeasible
}

func (s Solution) Value(v Var) float64 {
	if int(v) >= len(s.Values) {
		return 0
	}
	return s.Values[v]
}

// Backend solves a model within limit. On timeout it must return the best
// feasible solution found so far with status TimeLimitFeasible.
type Backend interface {
	Solve(ctx context.Context, m *Model, limit time.Duration) Solution
}
