// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustsqp

import "math"

// ConvexObjective is a convex local model of a cost: an affine plus positive
// semi-definite quadratic expression, together with the auxiliary variables
// and linear constraints needed to express abs/hinge penalties.
//
// The objective owns its auxiliaries. They are installed with
// addConstraintsToModel before a solve and must be released with
// removeFromModel before the model is reused.
type ConvexObjective struct {
	model Model
	Quad  QuadExpr

	auxVars  []Var
	auxEqs   []AffExpr
	auxIneqs []AffExpr
	cnts     []Cnt
}

// NewConvexObjective creates an empty objective borrowing the given model.
func NewConvexObjective(m Model) *ConvexObjective {
	return &ConvexObjective{model: m}
}

// AddAff accumulates an affine term into the objective.
func (o *ConvexObjective) AddAff(e *AffExpr) {
	o.Quad.AddAff(e, one)
}

// AddQuad accumulates a quadratic term into the objective.
func (o *ConvexObjective) AddQuad(q *QuadExpr) {
	o.Quad.AddQuad(q)
}

// AddAbs adds 𝑠·|e| to the objective via the LP decomposition
// e = 𝑡⁺ - 𝑡⁻ with 𝑡⁺,𝑡⁻ ≥ 0 and contribution 𝑠(𝑡⁺+𝑡⁻).
func (o *ConvexObjective) AddAbs(e *AffExpr, s float64) {
	inf := math.Inf(1)
	vars := o.model.AddVars([]string{"abs_pos", "abs_neg"}, []float64{0, 0}, []float64{inf, inf})
	tp, tm := vars[0], vars[1]
	o.auxVars = append(o.auxVars, tp, tm)

	cnt := e.clone()
	cnt.AddTerm(tp, -one)
	cnt.AddTerm(tm, one)
	o.auxEqs = append(o.auxEqs, cnt)

	o.Quad.Affine.AddTerm(tp, s)
	o.Quad.Affine.AddTerm(tm, s)
}

// AddHinge adds 𝑠·max(e, 0) to the objective via the LP decomposition
// 𝑡 ≥ 0, e ≤ 𝑡 and contribution 𝑠·𝑡.
func (o *ConvexObjective) AddHinge(e *AffExpr, s float64) {
	vars := o.model.AddVars([]string{"hinge"}, []float64{0}, []float64{math.Inf(1)})
	t := vars[0]
	o.auxVars = append(o.auxVars, t)

	cnt := e.clone()
	cnt.AddTerm(t, -one)
	o.auxIneqs = append(o.auxIneqs, cnt)

	o.Quad.Affine.AddTerm(t, s)
}

// Value evaluates the objective on the extended (slot-indexed) value vector.
func (o *ConvexObjective) Value(x []float64) float64 {
	return o.Quad.Value(x)
}

// addConstraintsToModel installs the auxiliary constraints.
func (o *ConvexObjective) addConstraintsToModel() {
	for i := range o.auxEqs {
		o.cnts = append(o.cnts, o.model.AddEqCnt(&o.auxEqs[i], "aux_abs"))
	}
	for i := range o.auxIneqs {
		o.cnts = append(o.cnts, o.model.AddIneqCnt(&o.auxIneqs[i], "aux_hinge"))
	}
}

// removeFromModel releases the auxiliary constraints and variables.
func (o *ConvexObjective) removeFromModel() {
	o.model.RemoveCnts(o.cnts)
	o.model.RemoveVars(o.auxVars)
	o.cnts, o.auxVars = nil, nil
}

// ConvexConstraints is a convex local model of a constraint: affine
// expressions enforced as = 0 (Eqs) and ≤ 0 (Ineqs).
type ConvexConstraints struct {
	Eqs   []AffExpr
	Ineqs []AffExpr
}

// AddEq appends an equality expression e = 0.
func (c *ConvexConstraints) AddEq(e *AffExpr) {
	c.Eqs = append(c.Eqs, *e)
}

// AddIneq appends an inequality expression e ≤ 0.
func (c *ConvexConstraints) AddIneq(e *AffExpr) {
	c.Ineqs = append(c.Ineqs, *e)
}

// Violation is ∑|eqs(x)| + ∑ max(0, ineqs(x)) on the extended value vector.
func (c *ConvexConstraints) Violation(x []float64) float64 {
	vio := zero
	for i := range c.Eqs {
		vio += math.Abs(c.Eqs[i].Value(x))
	}
	for i := range c.Ineqs {
		vio += math.Max(c.Ineqs[i].Value(x), zero)
	}
	return vio
}

// penalizeConstraints folds convex constraint models into penalized convex
// objectives: |e| for each equality and max(e, 0) for each inequality,
// scaled by the penalty coefficient.
func penalizeConstraints(m Model, cnts []*ConvexConstraints, coeff float64) []*ConvexObjective {
	out := make([]*ConvexObjective, len(cnts))
	for i, cnt := range cnts {
		obj := NewConvexObjective(m)
		for j := range cnt.Eqs {
			obj.AddAbs(&cnt.Eqs[j], coeff)
		}
		for j := range cnt.Ineqs {
			obj.AddHinge(&cnt.Ineqs[j], coeff)
		}
		out[i] = obj
	}
	return out
}
