// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustsqp

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestModelBoundQuadratic(t *testing.T) {

	m := NewDenseModel()
	v := m.AddVars([]string{"v"}, []float64{-10}, []float64{10})[0]

	aff := NewAffExpr(-20, v, 1)
	obj := SquareAff(&aff)
	m.SetObjective(&obj)

	if s := m.Optimize(); s != CvxSolved {
		t.Fatalf("TestModelBoundQuadratic: Not Solved (%v)", s)
	}
	x := m.GetVarValues([]Var{v})
	if !almostEqual(x, []float64{10}, 1e-6) {
		t.Fatalf("TestModelBoundQuadratic: Bad Solution %v", x)
	}
}

func TestModelEquality(t *testing.T) {

	m := NewDenseModel()
	inf := math.Inf(1)
	vars := m.AddVars([]string{"a", "b"}, []float64{-inf, -inf}, []float64{inf, inf})

	var obj QuadExpr
	obj.AddQuadTerm(vars[0], vars[0], 1)
	obj.AddQuadTerm(vars[1], vars[1], 1)
	m.SetObjective(&obj)

	cnt := NewAffExpr(-1, vars[0], 1)
	cnt.AddTerm(vars[1], 1)
	m.AddEqCnt(&cnt, "sum")

	if s := m.Optimize(); s != CvxSolved {
		t.Fatalf("TestModelEquality: Not Solved (%v)", s)
	}
	x := m.GetVarValues(vars)
	if !almostEqual(x, []float64{0.5, 0.5}, 1e-6) {
		t.Fatalf("TestModelEquality: Bad Solution %v", x)
	}
}

func TestModelAbsPenalty(t *testing.T) {

	m := NewDenseModel()
	v := m.AddVars([]string{"v"}, []float64{-5}, []float64{5})[0]

	obj := NewConvexObjective(m)
	aff := NewAffExpr(-2, v, 1)
	obj.AddAbs(&aff, 1)
	obj.addConstraintsToModel()
	m.SetObjective(&obj.Quad)

	if s := m.Optimize(); s != CvxSolved {
		t.Fatalf("TestModelAbsPenalty: Not Solved (%v)", s)
	}
	x := m.GetVarValues([]Var{v})
	if !almostEqual(x, []float64{2}, 1e-5) {
		t.Fatalf("TestModelAbsPenalty: Bad Solution %v", x)
	}
	if val := obj.Value(m.VarValues()); math.Abs(val) > 1e-5 {
		t.Fatalf("TestModelAbsPenalty: Bad Objective Value %v", val)
	}

	obj.removeFromModel()
	if live := len(m.Vars()); live != 1 {
		t.Fatalf("TestModelAbsPenalty: Auxiliaries Leaked (%d live)", live)
	}
}

func TestModelHingePenalty(t *testing.T) {

	m := NewDenseModel()
	v := m.AddVars([]string{"v"}, []float64{-5}, []float64{5})[0]

	// 0.5(v-3)² pushes right, 5·max(v-2, 0) pushes left: kink at v = 2
	obj := NewConvexObjective(m)
	bowl := NewAffExpr(-3, v, 1)
	sq := SquareAff(&bowl)
	sq.Scale(0.5)
	obj.AddQuad(&sq)
	hinge := NewAffExpr(-2, v, 1)
	obj.AddHinge(&hinge, 5)
	obj.addConstraintsToModel()
	m.SetObjective(&obj.Quad)

	if s := m.Optimize(); s != CvxSolved {
		t.Fatalf("TestModelHingePenalty: Not Solved (%v)", s)
	}
	x := m.GetVarValues([]Var{v})
	if !almostEqual(x, []float64{2}, 1e-5) {
		t.Fatalf("TestModelHingePenalty: Bad Solution %v", x)
	}
}

func TestModelInconsistentEqualities(t *testing.T) {

	m := NewDenseModel()
	v := m.AddVars([]string{"v"}, []float64{-5}, []float64{5})[0]

	zeroCnt := NewAffExpr(0, v, 1)
	oneCnt := NewAffExpr(-1, v, 1)
	m.AddEqCnt(&zeroCnt, "zero")
	m.AddEqCnt(&oneCnt, "one")
	m.SetObjective(&QuadExpr{})

	if s := m.Optimize(); s == CvxSolved {
		t.Fatal("TestModelInconsistentEqualities: Should Not Solve")
	}
}

func TestModelSlotReuse(t *testing.T) {

	m := NewDenseModel()
	vars := m.AddVars([]string{"a", "b"}, []float64{0, 0}, []float64{1, 1})

	m.RemoveVars([]Var{vars[1]})
	again := m.AddVars([]string{"c"}, []float64{0}, []float64{1})[0]

	switch {
	case again.Index() != vars[1].Index():
		t.Fatalf("TestModelSlotReuse: Slot Not Reused (%d)", again.Index())
	case len(m.Vars()) != 2:
		t.Fatalf("TestModelSlotReuse: Bad Live Count %d", len(m.Vars()))
	case len(m.VarValues()) != 2:
		t.Fatalf("TestModelSlotReuse: Pool Grew %d", len(m.VarValues()))
	}

	cnt := NewAffExpr(0, vars[0], 1)
	c := m.AddEqCnt(&cnt, "pin")
	m.RemoveCnts([]Cnt{c})
	c2 := m.AddEqCnt(&cnt, "pin")
	if c2.index != c.index {
		t.Fatal("TestModelSlotReuse: Constraint Slot Not Reused")
	}
}

func TestModelWriteToFile(t *testing.T) {

	m := NewDenseModel()
	v := m.AddVars([]string{"v"}, []float64{-1}, []float64{1})[0]
	aff := NewAffExpr(-1, v, 1)
	obj := SquareAff(&aff)
	m.SetObjective(&obj)
	m.AddIneqCnt(&aff, "cap")

	path := filepath.Join(t.TempDir(), "fail.lp")
	if err := m.WriteToFile(path); err != nil {
		t.Fatalf("TestModelWriteToFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	dump := string(data)
	switch {
	case !strings.Contains(dump, "Minimize"):
		t.Fatal("TestModelWriteToFile: Missing Objective Section")
	case !strings.Contains(dump, "Subject To"):
		t.Fatal("TestModelWriteToFile: Missing Constraint Section")
	case !strings.Contains(dump, "Bounds"):
		t.Fatal("TestModelWriteToFile: Missing Bounds Section")
	}
}

func TestModelWarmStart(t *testing.T) {

	m := NewDenseModel()
	v := m.AddVars([]string{"v"}, []float64{-10}, []float64{10})[0]
	aff := NewAffExpr(-3, v, 1)
	obj := SquareAff(&aff)
	m.SetObjective(&obj)

	if s := m.Optimize(); s != CvxSolved {
		t.Fatal("TestModelWarmStart: First Solve Failed")
	}
	// re-solve from the optimum, the pool keeps the solution
	if s := m.Optimize(); s != CvxSolved {
		t.Fatal("TestModelWarmStart: Second Solve Failed")
	}
	x := m.GetVarValues([]Var{v})
	if !almostEqual(x, []float64{3}, 1e-6) {
		t.Fatalf("TestModelWarmStart: Bad Solution %v", x)
	}
}
