// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustsqp

// Var is a handle to a decision variable owned by a Model.
// The handle addresses a slot in the model's variable pool and stays valid
// until the variable is removed.
type Var struct {
	index int
}

// Index reports the variable's slot in the model pool. Value vectors
// produced by Model.VarValues are addressed by this index.
func (v Var) Index() int { return v.index }

// Cnt is a handle to a linear constraint owned by a Model.
type Cnt struct {
	index int
}

// AffExpr is an affine expression 𝑐 + ∑ᵢ 𝑎ᵢ𝐱ᵥᵢ over model variables.
type AffExpr struct {
	Constant float64
	Coeffs   []float64
	Vars     []Var
}

// NewAffExpr builds the single-term expression 𝑐 + 𝑎𝐱ᵥ.
func NewAffExpr(c float64, v Var, a float64) AffExpr {
	return AffExpr{Constant: c, Coeffs: []float64{a}, Vars: []Var{v}}
}

// AddTerm appends 𝑎𝐱ᵥ to the expression.
func (e *AffExpr) AddTerm(v Var, a float64) {
	e.Coeffs = append(e.Coeffs, a)
	e.Vars = append(e.Vars, v)
}

// Add accumulates 𝑠·𝑜 into e.
func (e *AffExpr) Add(o *AffExpr, s float64) {
	e.Constant += s * o.Constant
	for i, v := range o.Vars {
		e.AddTerm(v, s*o.Coeffs[i])
	}
}

// Value evaluates the expression on a slot-indexed value vector.
func (e *AffExpr) Value(x []float64) float64 {
	val := e.Constant
	for i, v := range e.Vars {
		val += e.Coeffs[i] * x[v.index]
	}
	return val
}

// clone returns a deep copy so callers may keep mutating e.
func (e *AffExpr) clone() AffExpr {
	c := AffExpr{Constant: e.Constant}
	c.Coeffs = append(c.Coeffs, e.Coeffs...)
	c.Vars = append(c.Vars, e.Vars...)
	return c
}

// QuadExpr is a quadratic expression ∑ₖ 𝑞ₖ𝐱ᵣₖ𝐱꜀ₖ + affine part.
// The quadratic part must be positive semi-definite when used as an
// objective contribution.
type QuadExpr struct {
	Affine AffExpr
	Coeffs []float64
	Rows   []Var
	Cols   []Var
}

// AddQuadTerm appends 𝑞𝐱ᵣ𝐱꜀ to the expression.
func (q *QuadExpr) AddQuadTerm(r, c Var, coeff float64) {
	q.Coeffs = append(q.Coeffs, coeff)
	q.Rows = append(q.Rows, r)
	q.Cols = append(q.Cols, c)
}

// AddAff accumulates 𝑠·𝑜 into the affine part.
func (q *QuadExpr) AddAff(o *AffExpr, s float64) {
	q.Affine.Add(o, s)
}

// AddQuad accumulates the whole of 𝑜 into q.
func (q *QuadExpr) AddQuad(o *QuadExpr) {
	q.Affine.Add(&o.Affine, one)
	q.Coeffs = append(q.Coeffs, o.Coeffs...)
	q.Rows = append(q.Rows, o.Rows...)
	q.Cols = append(q.Cols, o.Cols...)
}

// Scale multiplies the whole expression by 𝑠.
func (q *QuadExpr) Scale(s float64) {
	q.Affine.Constant *= s
	for i := range q.Affine.Coeffs {
		q.Affine.Coeffs[i] *= s
	}
	for i := range q.Coeffs {
		q.Coeffs[i] *= s
	}
}

// Value evaluates the expression on a slot-indexed value vector.
func (q *QuadExpr) Value(x []float64) float64 {
	val := q.Affine.Value(x)
	for k, c := range q.Coeffs {
		val += c * x[q.Rows[k].index] * x[q.Cols[k].index]
	}
	return val
}

// SquareAff expands (𝑐 + ∑𝑎ᵢ𝐱ᵢ)² into a quadratic expression.
// The result is positive semi-definite by construction.
func SquareAff(e *AffExpr) QuadExpr {
	var q QuadExpr
	q.Affine.Constant = e.Constant * e.Constant
	for i, v := range e.Vars {
		q.Affine.AddTerm(v, 2*e.Constant*e.Coeffs[i])
		for j := i; j < len(e.Vars); j++ {
			c := e.Coeffs[i] * e.Coeffs[j]
			if i != j {
				c *= 2
			}
			q.AddQuadTerm(v, e.Vars[j], c)
		}
	}
	return q
}
