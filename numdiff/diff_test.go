// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package numdiff

import (
	"math"
	"testing"
)

func TestGradient(t *testing.T) {

	f := func(x []float64) float64 {
		return x[0]*x[0] + 3*x[1]
	}
	x0 := []float64{2, 1}
	want := []float64{4, 3}

	for _, method := range []Method{Forward, Central} {
		grad := make([]float64, 2)
		if err := Gradient(f, method, x0, grad); err != nil {
			t.Fatalf("TestGradient: %v", err)
		}
		for i := range grad {
			if math.Abs(grad[i]-want[i]) > 1e-6 {
				t.Fatalf("TestGradient: Method %d Bad Gradient %v", method, grad)
			}
		}
	}
}

func TestJacobianLinear(t *testing.T) {

	j := Jacobian{
		N: 2, M: 2,
		F: func(x, y []float64) {
			y[0] = 2*x[0] - x[1] + 5
			y[1] = x[0] + 4*x[1]
		},
		Method: Central,
	}
	jac := make([]float64, 4)
	if err := j.Compute([]float64{0.3, -0.7}, jac); err != nil {
		t.Fatalf("TestJacobianLinear: %v", err)
	}
	want := []float64{2, -1, 1, 4}
	for i := range jac {
		if math.Abs(jac[i]-want[i]) > 1e-8 {
			t.Fatalf("TestJacobianLinear: Bad Jacobian %v", jac)
		}
	}
}

func TestJacobianBoundedStep(t *testing.T) {

	// x0 sits on the upper bound, the forward step must flip backwards
	j := Jacobian{
		N: 1, M: 1,
		F: func(x, y []float64) {
			if x[0] > 1 {
				t.Fatal("TestJacobianBoundedStep: Evaluated Out Of Bounds")
			}
			y[0] = x[0] * x[0]
		},
		Method: Forward,
		Bounds: []Bound{{Lower: 0, Upper: 1}},
	}
	jac := make([]float64, 1)
	if err := j.Compute([]float64{1}, jac); err != nil {
		t.Fatalf("TestJacobianBoundedStep: %v", err)
	}
	if math.Abs(jac[0]-2) > 1e-6 {
		t.Fatalf("TestJacobianBoundedStep: Bad Derivative %v", jac[0])
	}
}

func TestJacobianCentralNearBound(t *testing.T) {

	// central steps cannot straddle the bound, falls back to one side
	j := Jacobian{
		N: 1, M: 1,
		F: func(x, y []float64) {
			if x[0] < 0 {
				t.Fatal("TestJacobianCentralNearBound: Evaluated Out Of Bounds")
			}
			y[0] = 3 * x[0]
		},
		Method: Central,
		Bounds: []Bound{{Lower: 0, Upper: 10}},
	}
	jac := make([]float64, 1)
	if err := j.Compute([]float64{0}, jac); err != nil {
		t.Fatalf("TestJacobianCentralNearBound: %v", err)
	}
	if math.Abs(jac[0]-3) > 1e-6 {
		t.Fatalf("TestJacobianCentralNearBound: Bad Derivative %v", jac[0])
	}
}

func TestJacobianArguments(t *testing.T) {

	f := func(x, y []float64) { y[0] = x[0] }
	cases := []Jacobian{
		{N: 0, M: 1, F: f},
		{N: 1, M: 1},
		{N: 1, M: 1, F: f, Method: Method(7)},
		{N: 1, M: 1, F: f, Step: -1},
		{N: 1, M: 1, F: f, Bounds: []Bound{{0, 1}, {0, 1}}},
	}
	for k := range cases {
		x0 := make([]float64, max(cases[k].N, 1))
		jac := make([]float64, max(cases[k].N*cases[k].M, 1))
		if cases[k].Compute(x0, jac) == nil {
			t.Fatalf("TestJacobianArguments: Case %d Accepted", k)
		}
	}
}
