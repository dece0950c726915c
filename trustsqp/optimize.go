// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustsqp

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// LogLevel controls the verbosity of the solver.
type LogLevel int

const (
	// LogNoop no output is generated.
	LogNoop LogLevel = iota - 1
	// LogWarn print only warnings: numerical degeneracy and subproblem failures.
	LogWarn
	// LogDebug print also trust-region and penalty decisions per iteration.
	LogDebug
	// LogTrace print also the per-cost improvement table.
	LogTrace
)

// Logger handles logging output for the solver.
// The writer must be safe for use from the calling goroutine only.
type Logger struct {
	Level LogLevel
	Msg   io.Writer
}

func (l *Logger) enable(level LogLevel) bool {
	return l.Level >= level
}

func (l *Logger) log(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}

// Results is the observable outcome of a solve. After any accepted step
// CostVals[i] and CntViols[j] equal the nonlinear re-evaluation of cost i
// and constraint j at X.
type Results struct {
	X            []float64
	CostVals     []float64
	CntViols     []float64
	TotalCost    float64
	NumFuncEvals int
	NumQPSolves  int
	Status       OptStatus
}

func (r *Results) clear() {
	*r = Results{Status: OptInvalid}
}

func (r *Results) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "status: %v\n", r.Status)
	fmt.Fprintf(&b, "cost values: %v\n", r.CostVals)
	fmt.Fprintf(&b, "constraint violations: %v\n", r.CntViols)
	fmt.Fprintf(&b, "total cost: %v\n", r.TotalCost)
	fmt.Fprintf(&b, "n func evals: %d\n", r.NumFuncEvals)
	fmt.Fprintf(&b, "n qp solves: %d\n", r.NumQPSolves)
	return b.String()
}

// Callback observes the iterate at the start of every SQP iteration and once
// at cleanup. The slice is a copy; callbacks must not mutate the problem.
type Callback func(prob *Problem, x []float64)

// TrustRegionSQP approximately minimizes a nonlinear program by sequential
// convexification with an L1 merit function: constraint violations are folded
// into the objective as abs/hinge penalties weighted by μ, each convex
// subproblem is solved inside a trust box of half-width Δ, steps are accepted
// by comparing predicted against actual merit improvement, and μ is escalated
// while the accepted iterate stays infeasible.
type TrustRegionSQP struct {
	prob   *Problem
	model  Model
	params Parameters
	logger *Logger

	callbacks []Callback
	results   Results

	// controller state
	trustBoxSize float64
	meritCoeff   float64
}

// New creates a trust-region SQP solver for the problem. A nil params
// selects the defaults, a nil logger disables output.
func (p *Problem) New(params *Parameters, logger *Logger) (*TrustRegionSQP, error) {

	if params == nil {
		params = defaultParameters()
	}
	if logger == nil {
		logger = &Logger{Level: LogNoop}
	}
	if logger.Msg == nil {
		logger.Msg = os.Stderr
	}

	var err error
	switch {
	case p.model == nil:
		err = errors.New("problem has no model")
	case len(p.vars) == 0:
		err = errors.New("problem has no variables")
	case len(p.costs) == 0 && len(p.cnts) == 0:
		err = errors.New("problem has no costs or constraints")
	case params.ImproveRatioThreshold <= zero || params.ImproveRatioThreshold >= one:
		err = errors.New("improve ratio threshold must lie in (0,1)")
	case params.MinTrustBoxSize <= zero:
		err = errors.New("min trust box size must be positive")
	case params.MinApproxImprove < zero:
		err = errors.New("min approx improve must not be negative")
	case params.MaxIterations <= 0:
		err = errors.New("max iterations must be positive")
	case params.TrustShrinkRatio <= zero || params.TrustShrinkRatio >= one:
		err = errors.New("trust shrink ratio must lie in (0,1)")
	case params.TrustExpandRatio <= one:
		err = errors.New("trust expand ratio must be greater than 1")
	case params.CntTolerance <= zero:
		err = errors.New("constraint tolerance must be positive")
	case params.MaxMeritCoeffIncreases <= 0:
		err = errors.New("max merit coeff increases must be positive")
	case params.MeritCoeffIncreaseRatio <= one:
		err = errors.New("merit coeff increase ratio must be greater than 1")
	case params.MaxTime < 0:
		err = errors.New("max time must not be negative")
	case params.InitialMeritCoeff <= zero:
		err = errors.New("initial merit coeff must be positive")
	case params.InitialTrustBoxSize <= zero:
		err = errors.New("initial trust box size must be positive")
	}
	if err != nil {
		return nil, err
	}

	o := &TrustRegionSQP{
		prob:         p,
		model:        p.model,
		params:       *params,
		logger:       logger,
		trustBoxSize: params.InitialTrustBoxSize,
		meritCoeff:   params.InitialMeritCoeff,
	}
	o.results.clear()
	return o, nil
}

// Initialize sets the starting iterate. The previous results are discarded.
func (o *TrustRegionSQP) Initialize(x []float64) error {
	if len(x) != len(o.prob.vars) {
		return fmt.Errorf("initialization vector has wrong length: expected %d got %d",
			len(o.prob.vars), len(x))
	}
	o.results.clear()
	o.results.X = slices.Clone(x)
	return nil
}

// AddCallback registers an iteration observer.
func (o *TrustRegionSQP) AddCallback(cb Callback) {
	o.callbacks = append(o.callbacks, cb)
}

func (o *TrustRegionSQP) callCallbacks(x []float64) {
	if len(o.callbacks) == 0 {
		return
	}
	view := slices.Clone(x)
	for _, cb := range o.callbacks {
		cb(o.prob, view)
	}
}

// Results exposes the solve outcome. Partial results stay accessible after
// any terminal status.
func (o *TrustRegionSQP) Results() *Results {
	return &o.results
}

// TrustBoxSize reports the current trust box half-width Δ.
func (o *TrustRegionSQP) TrustBoxSize() float64 { return o.trustBoxSize }

// MeritCoeff reports the current penalty weight μ.
func (o *TrustRegionSQP) MeritCoeff() float64 { return o.meritCoeff }

// Optimize runs the solve to a terminal status. It panics when called before
// Initialize. The model is owned exclusively by the solver until it returns.
func (o *TrustRegionSQP) Optimize() OptStatus {
	if len(o.results.X) == 0 {
		panic("optimize called before initialize")
	}
	d := sqpDriver{opt: o}
	return d.run()
}

func (o *TrustRegionSQP) cleanup(status OptStatus) OptStatus {
	o.results.Status = status
	o.results.TotalCost = floats.Sum(o.results.CostVals)
	o.callCallbacks(o.results.X)
	return status
}
