// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustsqp

// Model is the mutable state of the convex subproblem solver: a pool of
// bounded variables, a set of linear constraints and one aggregate quadratic
// objective. The trust-region driver owns the model exclusively for the
// duration of a solve; convex objectives borrow it to install auxiliary
// variables and constraints, which the driver removes again before the next
// SQP iteration reuses the model.
type Model interface {
	// AddVars appends variables with the given names and bounds to the pool
	// and returns their handles.
	AddVars(names []string, lb, ub []float64) []Var
	// AddEqCnt installs the linear constraint expr = 0.
	AddEqCnt(expr *AffExpr, name string) Cnt
	// AddIneqCnt installs the linear constraint expr ≤ 0.
	AddIneqCnt(expr *AffExpr, name string) Cnt
	// RemoveVars releases variables back to the pool. Their handles and any
	// expression referencing them become invalid.
	RemoveVars(vars []Var)
	// RemoveCnts uninstalls linear constraints.
	RemoveCnts(cnts []Cnt)
	// SetVarBounds updates the bounds of the given variables in batch.
	SetVarBounds(vars []Var, lb, ub []float64)
	// SetObjective replaces the aggregate objective.
	SetObjective(obj *QuadExpr)
	// Update applies pending pool mutations before a solve.
	Update()
	// Optimize solves the current subproblem.
	Optimize() CvxStatus
	// Vars lists the live variables in slot order.
	Vars() []Var
	// VarValues returns the current slot-indexed value vector. Entries of
	// free slots are zero. The first len(Problem.Vars()) slots always hold
	// the original decision variables.
	VarValues() []float64
	// GetVarValues gathers the current values of the given variables.
	GetVarValues(vars []Var) []float64
	// WriteToFile dumps the current subproblem for offline diagnostics.
	WriteToFile(path string) error
}
