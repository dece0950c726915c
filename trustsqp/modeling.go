// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustsqp

import (
	"math"

	"github.com/curioloop/trustopt/numdiff"
)

// Concrete cost and constraint kinds. All of them are expressed over the
// problem's decision variables, which occupy the leading model slots, so
// their expressions evaluate both on the plain iterate and on the extended
// subproblem vector.

// QuadCost is a cost given directly as a convex quadratic expression.
// Its convex model is exact, so trust-region steps on a pure QuadCost
// problem are accepted with ratio ≈ 1.
type QuadCost struct {
	name string
	expr QuadExpr
}

// NewQuadCost wraps a positive semi-definite quadratic expression as a cost.
func NewQuadCost(name string, expr QuadExpr) *QuadCost {
	return &QuadCost{name: name, expr: expr}
}

func (c *QuadCost) Value(x []float64) float64 {
	return c.expr.Value(x)
}

func (c *QuadCost) Convex(_ []float64, m Model) *ConvexObjective {
	obj := NewConvexObjective(m)
	obj.AddQuad(&c.expr)
	return obj
}

func (c *QuadCost) Name() string { return c.name }

// AffCnt is an affine constraint expr = 0 or expr ≤ 0.
// Its convex model is itself.
type AffCnt struct {
	name string
	expr AffExpr
	typ  CntType
}

// NewAffCnt wraps an affine expression as a constraint of the given type.
func NewAffCnt(name string, expr AffExpr, typ CntType) *AffCnt {
	return &AffCnt{name: name, expr: expr, typ: typ}
}

func (c *AffCnt) Violation(x []float64) float64 {
	v := c.expr.Value(x)
	if c.typ == EqCnt {
		return math.Abs(v)
	}
	return math.Max(v, zero)
}

func (c *AffCnt) Convex(_ []float64, _ Model) *ConvexConstraints {
	cc := new(ConvexConstraints)
	if c.typ == EqCnt {
		cc.AddEq(&c.expr)
	} else {
		cc.AddIneq(&c.expr)
	}
	return cc
}

func (c *AffCnt) Name() string { return c.name }

func (c *AffCnt) Type() CntType { return c.typ }

// PenaltyType selects how an error vector is folded into a scalar cost.
type PenaltyType int

const (
	// AbsPenalty cost ∑ 𝑠|𝒇ᵢ(𝐱)|.
	AbsPenalty PenaltyType = iota
	// HingePenalty cost ∑ 𝑠·max(𝒇ᵢ(𝐱), 0).
	HingePenalty
	// SquaredPenalty cost ∑ 𝑠·𝒇ᵢ(𝐱)².
	SquaredPenalty
)

// ErrCost is a cost built from a vector error function 𝒇(𝐱) : ℝⁿ → ℝᵐ and a
// penalty. Its convex model linearizes 𝒇 by finite differences about the
// iterate; abs and hinge penalties decompose into auxiliary LP constructs,
// the squared penalty into an exact square of the linearization.
type ErrCost struct {
	name   string
	f      func(x []float64) []float64
	m      int
	vars   []Var
	coeff  float64
	pen    PenaltyType
	method numdiff.Method
}

// NewErrCost builds a penalized cost from an m-vector error function over
// the given decision variables.
func NewErrCost(name string, f func(x []float64) []float64, m int, vars []Var, coeff float64, pen PenaltyType) *ErrCost {
	return &ErrCost{name: name, f: f, m: m, vars: vars, coeff: coeff, pen: pen, method: numdiff.Central}
}

func (c *ErrCost) Value(x []float64) float64 {
	val := zero
	for _, y := range c.f(x) {
		switch c.pen {
		case AbsPenalty:
			val += c.coeff * math.Abs(y)
		case HingePenalty:
			val += c.coeff * math.Max(y, zero)
		default:
			val += c.coeff * y * y
		}
	}
	return val
}

func (c *ErrCost) Convex(x []float64, m Model) *ConvexObjective {
	obj := NewConvexObjective(m)
	for _, aff := range linearize(c.f, c.m, c.vars, c.method, x) {
		switch c.pen {
		case AbsPenalty:
			obj.AddAbs(&aff, c.coeff)
		case HingePenalty:
			obj.AddHinge(&aff, c.coeff)
		default:
			sq := SquareAff(&aff)
			sq.Scale(c.coeff)
			obj.AddQuad(&sq)
		}
	}
	return obj
}

func (c *ErrCost) Name() string { return c.name }

// ErrCnt is a constraint built from a vector error function: every component
// is enforced as = 0 (EqCnt) or ≤ 0 (IneqCnt). Its convex model linearizes
// the function by finite differences about the iterate.
type ErrCnt struct {
	name   string
	f      func(x []float64) []float64
	m      int
	vars   []Var
	typ    CntType
	method numdiff.Method
}

// NewErrCnt builds a constraint from an m-vector error function over the
// given decision variables.
func NewErrCnt(name string, f func(x []float64) []float64, m int, vars []Var, typ CntType) *ErrCnt {
	return &ErrCnt{name: name, f: f, m: m, vars: vars, typ: typ, method: numdiff.Central}
}

func (c *ErrCnt) Violation(x []float64) float64 {
	vio := zero
	for _, y := range c.f(x) {
		if c.typ == EqCnt {
			vio += math.Abs(y)
		} else {
			vio += math.Max(y, zero)
		}
	}
	return vio
}

func (c *ErrCnt) Convex(x []float64, _ Model) *ConvexConstraints {
	cc := new(ConvexConstraints)
	for _, aff := range linearize(c.f, c.m, c.vars, c.method, x) {
		if c.typ == EqCnt {
			cc.AddEq(&aff)
		} else {
			cc.AddIneq(&aff)
		}
	}
	return cc
}

func (c *ErrCnt) Name() string { return c.name }

func (c *ErrCnt) Type() CntType { return c.typ }

// linearize expands 𝒇 about x0 into one affine expression per component:
// 𝒇ᵢ(x0) + 𝜵𝒇ᵢ(x0)·(𝐱 - x0).
func linearize(f func(x []float64) []float64, m int, vars []Var, method numdiff.Method, x0 []float64) []AffExpr {
	n := len(x0)
	jac := make([]float64, m*n)
	j := numdiff.Jacobian{
		N: n, M: m,
		F: func(x, y []float64) {
			copy(y, f(x))
		},
		Method: method,
	}
	if err := j.Compute(x0, jac); err != nil {
		panic(err)
	}
	y0 := f(x0)

	out := make([]AffExpr, m)
	for i := 0; i < m; i++ {
		aff := AffExpr{Constant: y0[i]}
		for k, v := range vars {
			if g := jac[i*n+k]; g != zero {
				aff.Constant -= g * x0[k]
				aff.AddTerm(v, g)
			}
		}
		out[i] = aff
	}
	return out
}
