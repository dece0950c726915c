// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustsqp

import (
	"math"
	"testing"
)

func TestAffExprValue(t *testing.T) {

	a, b := Var{index: 0}, Var{index: 1}
	e := NewAffExpr(2, a, 3) // 2 + 3a
	e.AddTerm(b, -1)         // 2 + 3a - b

	x := []float64{1.5, 4}
	if v := e.Value(x); math.Abs(v-2.5) > 1e-15 {
		t.Fatalf("TestAffExprValue: Bad Value %v", v)
	}

	o := NewAffExpr(1, b, 2)
	e.Add(&o, 0.5) // 2.5 + 3a
	if v := e.Value(x); math.Abs(v-7) > 1e-15 {
		t.Fatalf("TestAffExprValue: Bad Accumulated Value %v", v)
	}
}

func TestSquareAff(t *testing.T) {

	a, b := Var{index: 0}, Var{index: 1}
	e := NewAffExpr(2, a, 3)
	e.AddTerm(b, -1)

	q := SquareAff(&e)
	for _, x := range [][]float64{{0, 0}, {1, 2}, {-0.5, 3}, {4, -4}} {
		want := e.Value(x) * e.Value(x)
		if got := q.Value(x); math.Abs(got-want) > 1e-12 {
			t.Fatalf("TestSquareAff: Mismatch At %v: %v != %v", x, got, want)
		}
	}

	q.Scale(2.5)
	x := []float64{1, 2}
	want := 2.5 * e.Value(x) * e.Value(x)
	if got := q.Value(x); math.Abs(got-want) > 1e-12 {
		t.Fatalf("TestSquareAff: Bad Scaled Value %v != %v", got, want)
	}
}

func TestQuadExprAccumulate(t *testing.T) {

	a := Var{index: 0}
	var q QuadExpr
	q.AddQuadTerm(a, a, 1)

	var sum QuadExpr
	sum.AddQuad(&q)
	sum.AddQuad(&q)
	aff := NewAffExpr(1, a, -2)
	sum.AddAff(&aff, 3)

	// 2a² - 6a + 3
	x := []float64{2}
	if got := sum.Value(x); math.Abs(got-(8-12+3)) > 1e-15 {
		t.Fatalf("TestQuadExprAccumulate: Bad Value %v", got)
	}
}

func TestConvexConstraintsViolation(t *testing.T) {

	a, b := Var{index: 0}, Var{index: 1}
	var cc ConvexConstraints
	eq := NewAffExpr(-1, a, 1) // a - 1 = 0
	cc.AddEq(&eq)
	ineq := NewAffExpr(-2, b, 1) // b - 2 ≤ 0
	cc.AddIneq(&ineq)

	switch {
	case math.Abs(cc.Violation([]float64{1, 2})-0) > 1e-15:
		t.Fatal("TestConvexConstraintsViolation: Feasible Point Violated")
	case math.Abs(cc.Violation([]float64{0, 3})-2) > 1e-15:
		t.Fatal("TestConvexConstraintsViolation: Bad Violation Sum")
	case math.Abs(cc.Violation([]float64{3, 0})-2) > 1e-15:
		t.Fatal("TestConvexConstraintsViolation: Inactive Hinge Counted")
	}
}

func TestAffCntViolation(t *testing.T) {

	v := Var{index: 0}
	eq := NewAffCnt("eq", NewAffExpr(-1, v, 1), EqCnt)
	ineq := NewAffCnt("ineq", NewAffExpr(-1, v, 1), IneqCnt)

	switch {
	case eq.Type() != EqCnt || ineq.Type() != IneqCnt:
		t.Fatal("TestAffCntViolation: Bad Type")
	case math.Abs(eq.Violation([]float64{0})-1) > 1e-15:
		t.Fatal("TestAffCntViolation: Bad Equality Violation")
	case ineq.Violation([]float64{0}) != 0:
		t.Fatal("TestAffCntViolation: Slack Inequality Violated")
	case math.Abs(ineq.Violation([]float64{3})-2) > 1e-15:
		t.Fatal("TestAffCntViolation: Bad Inequality Violation")
	}
}
