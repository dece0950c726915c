// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustsqp

import "math"

// CntType distinguishes equality from inequality constraints.
type CntType int

const (
	// EqCnt an equality constraint, residuals penalized as |r|.
	EqCnt CntType = iota
	// IneqCnt an inequality constraint, residuals penalized as max(r, 0).
	IneqCnt
)

// Cost is a nonlinear cost term of the problem. Convex must agree with the
// nonlinear value to first order at x; second-order behavior may differ.
// The returned model is valid in a neighborhood of x and is discarded at the
// end of the SQP iteration that requested it.
type Cost interface {
	Value(x []float64) float64
	Convex(x []float64, m Model) *ConvexObjective
	Name() string
}

// Constraint is a nonlinear constraint of the problem. Violation reports the
// L1 infeasibility ∑|eq residuals| + ∑ max(0, ineq residuals) ≥ 0.
type Constraint interface {
	Violation(x []float64) float64
	Convex(x []float64, m Model) *ConvexConstraints
	Name() string
	Type() CntType
}

// Problem is a box-bounded nonlinear program: decision variables with
// element-wise bounds, nonlinear costs and constraints over those variables,
// and the convex model the subproblems are solved on.
type Problem struct {
	model Model
	vars  []Var
	lb    []float64
	ub    []float64
	costs []Cost
	cnts  []Constraint
}

// NewProblem creates an empty problem on the given model.
func NewProblem(m Model) *Problem {
	return &Problem{model: m}
}

// AddVar appends one decision variable with the given bounds.
func (p *Problem) AddVar(name string, lb, ub float64) Var {
	return p.AddVars([]string{name}, []float64{lb}, []float64{ub})[0]
}

// AddVars appends decision variables with the given bounds.
// Decision variables must be created before any cost convexification adds
// auxiliaries, so that they occupy the leading model slots.
func (p *Problem) AddVars(names []string, lb, ub []float64) []Var {
	if len(names) != len(lb) || len(names) != len(ub) {
		panic("variable names and bounds dimension not match")
	}
	vars := p.model.AddVars(names, lb, ub)
	p.vars = append(p.vars, vars...)
	p.lb = append(p.lb, lb...)
	p.ub = append(p.ub, ub...)
	return vars
}

// AddCost appends a cost term.
func (p *Problem) AddCost(c Cost) {
	p.costs = append(p.costs, c)
}

// AddConstraint appends a constraint.
func (p *Problem) AddConstraint(c Constraint) {
	p.cnts = append(p.cnts, c)
}

// Vars lists the decision variables in creation order.
func (p *Problem) Vars() []Var { return p.vars }

// LowerBounds lists the element-wise lower bounds.
func (p *Problem) LowerBounds() []float64 { return p.lb }

// UpperBounds lists the element-wise upper bounds.
func (p *Problem) UpperBounds() []float64 { return p.ub }

// Costs lists the cost terms.
func (p *Problem) Costs() []Cost { return p.costs }

// Constraints lists the constraints.
func (p *Problem) Constraints() []Constraint { return p.cnts }

// Model returns the underlying convex model.
func (p *Problem) Model() Model { return p.model }

// ClosestFeasiblePoint projects x onto the linear bounds [l, u].
// Nonlinear constraints are left to the merit mechanism.
func (p *Problem) ClosestFeasiblePoint(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Min(math.Max(v, p.lb[i]), p.ub[i])
	}
	return out
}
