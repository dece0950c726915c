// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numdiff estimates Jacobians of vector functions by finite
// differences. It backs the function-defined costs and constraints of the
// trust-region SQP package, which only need first-order local models.
package numdiff

import (
	"errors"
	"math"
)

var (
	sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
	cubeEps = math.Cbrt(math.Nextafter(1, 2) - 1)
)

// Method selects the finite difference scheme.
type Method int

const (
	// Forward use the first order accuracy forward difference,
	// one extra function evaluation per variable.
	Forward Method = iota
	// Central use the second order accuracy central difference,
	// two extra function evaluations per variable.
	Central
)

// Bound limits the evaluation range of one variable: perturbed points are
// kept inside [Lower, Upper] by flipping the step away from the boundary.
type Bound struct {
	Lower, Upper float64
}

// Jacobian estimates the m×n matrix 𝐉ᵢⱼ = ∂𝒇ᵢ/∂𝐱ⱼ of a function
// 𝒇(𝐱) : ℝⁿ → ℝᵐ.
//
//   - Forward step: 𝒉ⱼ = 𝚜𝚝𝚎𝚙 or √𝜀·max(1,|𝐱ⱼ|)
//   - Central step: 𝒉ⱼ = 𝚜𝚝𝚎𝚙 or ∛𝜀·max(1,|𝐱ⱼ|)
type Jacobian struct {
	N, M int
	// F evaluates 𝒇: x is an n-vector, the result is stored into the m-vector y.
	F func(x, y []float64)
	// Method selects the difference scheme.
	Method Method
	// Step is the absolute step size, 0 selects the automatic step above.
	Step float64
	// Bounds optionally limits the evaluation range per variable.
	Bounds []Bound
}

// Compute estimates the Jacobian at x0 into the row-major m×n matrix jac.
func (j *Jacobian) Compute(x0, jac []float64) error {

	switch {
	case j.N <= 0 || j.M <= 0:
		return errors.New("negative dimensions")
	case j.F == nil:
		return errors.New("object function is required")
	case j.Method != Forward && j.Method != Central:
		return errors.New("unknown method")
	case len(x0) != j.N:
		return errors.New("invalid x0 dimensions")
	case len(jac) != j.N*j.M:
		return errors.New("invalid jac dimensions")
	case j.Bounds != nil && len(j.Bounds) != j.N:
		return errors.New("invalid bound dimension")
	case j.Step < 0 || math.IsNaN(j.Step):
		return errors.New("invalid step size")
	}

	n, m := j.N, j.M
	x := make([]float64, n)
	y0 := make([]float64, m)
	y1 := make([]float64, m)
	y2 := make([]float64, m)
	copy(x, x0)

	j.F(x, y0)

	for c := 0; c < n; c++ {
		h := j.step(x0[c])
		lo, up := math.Inf(-1), math.Inf(1)
		if j.Bounds != nil {
			lo, up = j.Bounds[c].Lower, j.Bounds[c].Upper
		}

		if j.Method == Central && x0[c]+h <= up && x0[c]-h >= lo {
			x[c] = x0[c] + h
			j.F(x, y1)
			x[c] = x0[c] - h
			j.F(x, y2)
			x[c] = x0[c]
			for r := 0; r < m; r++ {
				jac[r*n+c] = (y1[r] - y2[r]) / (2 * h)
			}
			continue
		}

		// forward difference, flipped away from a near boundary
		if x0[c]+h > up {
			h = -h
		}
		if x0[c]+h < lo {
			return errors.New("step does not fit the bounds")
		}
		x[c] = x0[c] + h
		j.F(x, y1)
		x[c] = x0[c]
		for r := 0; r < m; r++ {
			jac[r*n+c] = (y1[r] - y0[r]) / h
		}
	}
	return nil
}

func (j *Jacobian) step(x float64) float64 {
	if j.Step > 0 {
		return j.Step
	}
	eps := sqrtEps
	if j.Method == Central {
		eps = cubeEps
	}
	return eps * math.Max(1, math.Abs(x))
}

// Gradient estimates the gradient of a scalar function 𝒇(𝐱) : ℝⁿ → ℝ at x0.
func Gradient(f func(x []float64) float64, method Method, x0, grad []float64) error {
	j := Jacobian{
		N: len(x0), M: 1,
		F: func(x, y []float64) {
			y[0] = f(x)
		},
		Method: method,
	}
	return j.Compute(x0, grad)
}
