// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustsqp

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// denseModel is a self-contained convex-QP model backed by an ADMM splitting.
//
// The subproblem collects the aggregate objective ½𝐳ᵀ𝐏𝐳 + 𝐪ᵀ𝐳 (𝐏 ⪰ 0), the
// installed linear constraints and the variable boxes into the standard form
//
//	minimize ½𝐳ᵀ𝐏𝐳 + 𝐪ᵀ𝐳 subject to 𝒍 ≤ 𝐀𝐳 ≤ 𝒖
//
// where 𝐀 stacks one row per linear constraint (equality rows have 𝒍 = 𝒖)
// and one identity row per variable box. The splitting iterates
//
//	𝐳̃ = (𝐏 + σ𝐈 + 𝐀ᵀ𝐑𝐀)⁻¹ (σ𝐳 - 𝐪 + 𝐀ᵀ(𝐑𝐰 - 𝐲))
//	𝐰 = 𝚌𝚕𝚊𝚖𝚙(α𝐀𝐳̃ + (1-α)𝐰 + 𝐑⁻¹𝐲, 𝒍, 𝒖)
//	𝐲 = 𝐲 + 𝐑(α𝐀𝐳̃ + (1-α)𝐰ᵒˡᵈ - 𝐰)
//
// with a diagonal step matrix 𝐑 (equality rows are weighted heavier) until
// the primal residual ‖𝐀𝐳 - 𝐰‖∞ and dual residual ‖𝐏𝐳 + 𝐪 + 𝐀ᵀ𝐲‖∞ are small.
// The normal matrix is factored once per solve with a Cholesky decomposition.
//
// Variable and constraint slots released by RemoveVars/RemoveCnts are pooled
// and reused LIFO, so the per-iteration abs/hinge auxiliaries of the SQP
// driver occupy the same slots on every iteration.
//
// Stellato, Banjac, Goulart, Bemporad, Boyd:
// "OSQP: an operator splitting solver for quadratic programs", 2020.
type denseModel struct {
	vars     []varRec
	values   []float64
	freeVars []int

	cnts     []cntRec
	freeCnts []int

	objective QuadExpr
}

type varRec struct {
	name   string
	lb, ub float64
	free   bool
}

type cntRec struct {
	name string
	expr AffExpr
	eq   bool
	free bool
}

const (
	admmSigma    = 1e-6
	admmRho      = 1e-1
	admmRhoEq    = 1e2 // multiplier on equality rows
	admmAlpha    = 1.6
	admmEpsAbs   = 1e-9
	admmEpsRel   = 1e-9
	admmMaxIter  = 200000
	admmCheckGap = 25
)

// NewDenseModel creates an empty in-process convex-QP model.
func NewDenseModel() Model {
	return &denseModel{}
}

func (m *denseModel) AddVars(names []string, lb, ub []float64) []Var {
	if len(names) != len(lb) || len(names) != len(ub) {
		panic("variable names and bounds dimension not match")
	}
	out := make([]Var, len(names))
	for i, name := range names {
		rec := varRec{name: name, lb: lb[i], ub: ub[i]}
		var slot int
		if k := len(m.freeVars); k > 0 {
			slot = m.freeVars[k-1]
			m.freeVars = m.freeVars[:k-1]
			m.vars[slot] = rec
			m.values[slot] = zero
		} else {
			slot = len(m.vars)
			m.vars = append(m.vars, rec)
			m.values = append(m.values, zero)
		}
		out[i] = Var{index: slot}
	}
	return out
}

func (m *denseModel) addCnt(expr *AffExpr, name string, eq bool) Cnt {
	rec := cntRec{name: name, expr: expr.clone(), eq: eq}
	if k := len(m.freeCnts); k > 0 {
		slot := m.freeCnts[k-1]
		m.freeCnts = m.freeCnts[:k-1]
		m.cnts[slot] = rec
		return Cnt{index: slot}
	}
	m.cnts = append(m.cnts, rec)
	return Cnt{index: len(m.cnts) - 1}
}

func (m *denseModel) AddEqCnt(expr *AffExpr, name string) Cnt {
	return m.addCnt(expr, name, true)
}

func (m *denseModel) AddIneqCnt(expr *AffExpr, name string) Cnt {
	return m.addCnt(expr, name, false)
}

func (m *denseModel) RemoveVars(vars []Var) {
	for _, v := range vars {
		if !m.vars[v.index].free {
			m.vars[v.index].free = true
			m.values[v.index] = zero
			m.freeVars = append(m.freeVars, v.index)
		}
	}
}

func (m *denseModel) RemoveCnts(cnts []Cnt) {
	for _, c := range cnts {
		if !m.cnts[c.index].free {
			m.cnts[c.index].free = true
			m.cnts[c.index].expr = AffExpr{}
			m.freeCnts = append(m.freeCnts, c.index)
		}
	}
}

func (m *denseModel) SetVarBounds(vars []Var, lb, ub []float64) {
	for i, v := range vars {
		m.vars[v.index].lb = lb[i]
		m.vars[v.index].ub = ub[i]
	}
}

func (m *denseModel) SetObjective(obj *QuadExpr) {
	m.objective = QuadExpr{Affine: obj.Affine.clone()}
	m.objective.Coeffs = append([]float64(nil), obj.Coeffs...)
	m.objective.Rows = append([]Var(nil), obj.Rows...)
	m.objective.Cols = append([]Var(nil), obj.Cols...)
}

// Update is a no-op: pool mutations are applied eagerly.
func (m *denseModel) Update() {}

func (m *denseModel) Vars() []Var {
	out := make([]Var, 0, len(m.vars))
	for i := range m.vars {
		if !m.vars[i].free {
			out = append(out, Var{index: i})
		}
	}
	return out
}

func (m *denseModel) VarValues() []float64 {
	return append([]float64(nil), m.values...)
}

func (m *denseModel) GetVarValues(vars []Var) []float64 {
	out := make([]float64, len(vars))
	for i, v := range vars {
		out[i] = m.values[v.index]
	}
	return out
}

// Optimize solves the current subproblem and stores the solution back into
// the variable pool, warm starting the next solve.
func (m *denseModel) Optimize() CvxStatus {

	// live slot → column
	cols := make([]int, len(m.vars))
	var slots []int
	for i := range m.vars {
		cols[i] = -1
		if !m.vars[i].free {
			cols[i] = len(slots)
			slots = append(slots, i)
		}
	}
	n := len(slots)
	if n == 0 {
		return CvxFailed
	}

	// assemble P and q from the aggregate objective
	p := mat.NewSymDense(n, nil)
	q := make([]float64, n)
	for k, c := range m.objective.Coeffs {
		r, s := cols[m.objective.Rows[k].index], cols[m.objective.Cols[k].index]
		if r < 0 || s < 0 {
			return CvxFailed
		}
		if r == s {
			p.SetSym(r, r, p.At(r, r)+2*c)
		} else {
			p.SetSym(r, s, p.At(r, s)+c)
		}
	}
	aff := &m.objective.Affine
	for k, v := range aff.Vars {
		c := cols[v.index]
		if c < 0 {
			return CvxFailed
		}
		q[c] += aff.Coeffs[k]
	}

	// normalize the objective so escalated penalty weights keep the dual
	// iterates at unit scale, the minimizer is unchanged
	scale := floats.Norm(q, math.Inf(1))
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			scale = math.Max(scale, math.Abs(p.At(i, j)))
		}
	}
	if scale > one {
		inv := one / scale
		floats.Scale(inv, q)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				p.SetSym(i, j, p.At(i, j)*inv)
			}
		}
	}

	// assemble A, l, u: constraint rows then box rows
	var rows []cntRec
	for i := range m.cnts {
		if !m.cnts[i].free {
			rows = append(rows, m.cnts[i])
		}
	}
	mc := len(rows)
	mr := mc + n
	a := mat.NewDense(mr, n, nil)
	l := make([]float64, mr)
	u := make([]float64, mr)
	rho := make([]float64, mr)
	for i, rec := range rows {
		for k, v := range rec.expr.Vars {
			c := cols[v.index]
			if c < 0 {
				return CvxFailed
			}
			a.Set(i, c, a.At(i, c)+rec.expr.Coeffs[k])
		}
		u[i] = -rec.expr.Constant
		rho[i] = admmRho
		if rec.eq {
			l[i] = -rec.expr.Constant
			rho[i] = admmRho * admmRhoEq
		} else {
			l[i] = math.Inf(-1)
		}
	}
	for j, slot := range slots {
		a.Set(mc+j, j, one)
		l[mc+j] = m.vars[slot].lb
		u[mc+j] = m.vars[slot].ub
		rho[mc+j] = admmRho
	}

	// K = P + σI + AᵀRA, factored once
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s := p.At(i, j)
			if i == j {
				s += admmSigma
			}
			for r := 0; r < mr; r++ {
				s += a.At(r, i) * rho[r] * a.At(r, j)
			}
			k.SetSym(i, j, s)
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(k) {
		return CvxFailed
	}

	// warm start from the current pool values
	x := make([]float64, n)
	for j, slot := range slots {
		x[j] = m.values[slot]
	}
	w := make([]float64, mr) // slack iterate
	y := make([]float64, mr) // dual iterate
	mulA(a, x, w)

	rhs := make([]float64, n)
	xt := make([]float64, n)
	at := make([]float64, mr)
	tmp := make([]float64, mr)
	rhsVec := mat.NewVecDense(n, rhs)
	xtVec := mat.NewVecDense(n, xt)

	solved := false
	for it := 0; it < admmMaxIter; it++ {

		// 𝐳̃-step
		for r := 0; r < mr; r++ {
			tmp[r] = rho[r]*w[r] - y[r]
		}
		mulAT(a, tmp, rhs)
		for j := 0; j < n; j++ {
			rhs[j] += admmSigma*x[j] - q[j]
		}
		if err := chol.SolveVecTo(xtVec, rhsVec); err != nil {
			return CvxFailed
		}
		mulA(a, xt, at)

		// relaxed 𝐰/𝐲-step
		for j := 0; j < n; j++ {
			x[j] = admmAlpha*xt[j] + (1-admmAlpha)*x[j]
		}
		for r := 0; r < mr; r++ {
			wr := admmAlpha*at[r] + (1-admmAlpha)*w[r]
			wc := math.Min(math.Max(wr+y[r]/rho[r], l[r]), u[r])
			y[r] += rho[r] * (wr - wc)
			w[r] = wc
		}

		if it%admmCheckGap != admmCheckGap-1 {
			continue
		}

		// residual check
		mulA(a, x, at)
		primal := zero
		primalScale := zero
		for r := 0; r < mr; r++ {
			primal = math.Max(primal, math.Abs(at[r]-w[r]))
			primalScale = math.Max(primalScale, math.Max(math.Abs(at[r]), math.Abs(w[r])))
		}
		mulAT(a, y, rhs)
		dual := zero
		dualScale := floats.Norm(q, math.Inf(1))
		for j := 0; j < n; j++ {
			px := zero
			for i := 0; i < n; i++ {
				px += p.At(j, i) * x[i]
			}
			dual = math.Max(dual, math.Abs(px+q[j]+rhs[j]))
			dualScale = math.Max(dualScale, math.Max(math.Abs(px), math.Abs(rhs[j])))
		}
		if math.IsNaN(primal) || math.IsNaN(dual) {
			return CvxFailed
		}
		if primal <= admmEpsAbs+admmEpsRel*primalScale &&
			dual <= admmEpsAbs+admmEpsRel*dualScale {
			solved = true
			break
		}
	}
	if !solved {
		return CvxFailed
	}

	for j, slot := range slots {
		m.values[slot] = x[j]
	}
	return CvxSolved
}

func mulA(a *mat.Dense, x, out []float64) {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		s := zero
		for j := 0; j < c; j++ {
			s += a.At(i, j) * x[j]
		}
		out[i] = s
	}
}

func mulAT(a *mat.Dense, x, out []float64) {
	r, c := a.Dims()
	for j := 0; j < c; j++ {
		s := zero
		for i := 0; i < r; i++ {
			s += a.At(i, j) * x[i]
		}
		out[j] = s
	}
}

// WriteToFile dumps the current subproblem in an LP-style text format.
func (m *denseModel) WriteToFile(path string) error {
	var b strings.Builder
	b.WriteString("Minimize\n obj:")
	aff := &m.objective.Affine
	for k, v := range aff.Vars {
		fmt.Fprintf(&b, " %+g x%d", aff.Coeffs[k], v.index)
	}
	if len(m.objective.Coeffs) > 0 {
		b.WriteString(" + [")
		for k := range m.objective.Coeffs {
			fmt.Fprintf(&b, " %+g x%d*x%d", 2*m.objective.Coeffs[k],
				m.objective.Rows[k].index, m.objective.Cols[k].index)
		}
		b.WriteString(" ]/2")
	}
	b.WriteString("\nSubject To\n")
	for i := range m.cnts {
		rec := &m.cnts[i]
		if rec.free {
			continue
		}
		fmt.Fprintf(&b, " %s%d:", rec.name, i)
		for k, v := range rec.expr.Vars {
			fmt.Fprintf(&b, " %+g x%d", rec.expr.Coeffs[k], v.index)
		}
		op := "<="
		if rec.eq {
			op = "="
		}
		fmt.Fprintf(&b, " %s %g\n", op, -rec.expr.Constant)
	}
	b.WriteString("Bounds\n")
	for i := range m.vars {
		if m.vars[i].free {
			continue
		}
		fmt.Fprintf(&b, " %g <= x%d <= %g\n", m.vars[i].lb, i, m.vars[i].ub)
	}
	b.WriteString("End\n")
	return os.WriteFile(path, []byte(b.String()), 0644)
}
