// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trustsqp

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// sqpDriver runs one solve: an outer penalty-escalation loop around an inner
// SQP loop, with a trust-box loop inside each SQP iteration.
//
// minimize ∑ᵢ costᵢ(𝐱) subject to
//   - equality constraints: 𝒄ⱼ(𝐱) = 0
//   - inequality constraints: 𝒄ⱼ(𝐱) ≤ 0
//   - boundaries: 𝒍ᵢ ≤ 𝐱ᵢ ≤ 𝒖ᵢ
//
// Constraint violations are folded into the L1 merit function
//
//	merit(𝐱) = ∑ᵢ costᵢ(𝐱) + μ ∑ⱼ ‖𝒄ⱼ(𝐱)‖₁
//
// and each iteration minimizes a convex model of the merit inside the trust
// box |𝐱 - 𝐱ᵏ|∞ ≤ Δ. A candidate step is accepted when the actual merit
// reduction is at least ImproveRatioThreshold times the reduction predicted
// by the model; otherwise Δ shrinks and the subproblem is re-solved at the
// same iterate. When the accepted iterate still violates constraints, μ is
// multiplied and the SQP loop restarts.
type sqpDriver struct {
	opt   *TrustRegionSQP
	start time.Time

	// convex models of the current SQP iteration
	costModels    []*ConvexObjective
	cntModels     []*ConvexConstraints
	cntCostModels []*ConvexObjective
}

func evaluateCosts(costs []Cost, x []float64) []float64 {
	out := make([]float64, len(costs))
	for i, c := range costs {
		out[i] = c.Value(x)
	}
	return out
}

func evaluateViolations(cnts []Constraint, x []float64) []float64 {
	out := make([]float64, len(cnts))
	for i, c := range cnts {
		out[i] = c.Violation(x)
	}
	return out
}

func convexifyCosts(costs []Cost, x []float64, m Model) []*ConvexObjective {
	out := make([]*ConvexObjective, len(costs))
	for i, c := range costs {
		out[i] = c.Convex(x, m)
	}
	return out
}

func convexifyConstraints(cnts []Constraint, x []float64, m Model) []*ConvexConstraints {
	out := make([]*ConvexConstraints, len(cnts))
	for i, c := range cnts {
		out[i] = c.Convex(x, m)
	}
	return out
}

func evaluateModelCosts(objs []*ConvexObjective, x []float64) []float64 {
	out := make([]float64, len(objs))
	for i, o := range objs {
		out[i] = o.Value(x)
	}
	return out
}

func evaluateModelViolations(cnts []*ConvexConstraints, x []float64) []float64 {
	out := make([]float64, len(cnts))
	for i, c := range cnts {
		out[i] = c.Violation(x)
	}
	return out
}

// run drives the penalty-escalation loop.
func (d *sqpDriver) run() OptStatus {
	o := d.opt
	par := &o.params
	res := &o.results
	log := o.logger

	res.X = o.prob.ClosestFeasiblePoint(res.X)
	d.start = time.Now()

	for inc := 0; inc < par.MaxMeritCoeffIncreases; inc++ {
		status := d.sqpLoop()
		if status != OptConverged {
			return o.cleanup(status)
		}
		if len(res.CntViols) == 0 || floats.Max(res.CntViols) < par.CntTolerance {
			if len(res.CntViols) > 0 && log.enable(LogDebug) {
				log.log("constraints are satisfied (to tolerance %.2e)\n", par.CntTolerance)
			}
			return o.cleanup(OptConverged)
		}
		if log.enable(LogDebug) {
			log.log("not all constraints are satisfied, increasing penalties\n")
		}
		o.meritCoeff *= par.MeritCoeffIncreaseRatio
		// leave the box room to move after the restart
		o.trustBoxSize = math.Max(o.trustBoxSize, par.MinTrustBoxSize/par.TrustShrinkRatio*1.5)
	}
	if log.enable(LogDebug) {
		log.log("optimization couldn't satisfy all constraints\n")
	}
	return o.cleanup(OptPenaltyIterationLimit)
}

// sqpLoop runs SQP iterations until local convergence or a terminal failure.
func (d *sqpDriver) sqpLoop() OptStatus {
	o := d.opt
	par := &o.params
	res := &o.results

	for iter := 1; ; iter++ {
		o.callCallbacks(res.X)

		if res.NumFuncEvals == 0 {
			// only happens before the very first iteration
			res.CntViols = evaluateViolations(o.prob.cnts, res.X)
			res.CostVals = evaluateCosts(o.prob.costs, res.X)
			res.NumFuncEvals++
		}

		d.convexify(res.X)
		outcome, status := d.trustLoop()
		d.releaseModels()

		switch outcome {
		case stepFatal:
			return status
		case stepConverged, stepUnderflow:
			return OptConverged
		}

		if d.overTime() {
			return OptSCOIterationLimit
		}
		if iter >= par.MaxIterations {
			if o.logger.enable(LogDebug) {
				o.logger.log("iteration limit: iter %d\n", iter)
			}
			return OptSCOIterationLimit
		}
	}
}

// convexify builds the convex models about the current iterate, installs
// their auxiliary constraints and sets the aggregate objective.
func (d *sqpDriver) convexify(x []float64) {
	o := d.opt
	d.costModels = convexifyCosts(o.prob.costs, x, o.model)
	d.cntModels = convexifyConstraints(o.prob.cnts, x, o.model)
	d.cntCostModels = penalizeConstraints(o.model, d.cntModels, o.meritCoeff)
	o.model.Update()
	for _, c := range d.costModels {
		c.addConstraintsToModel()
	}
	for _, c := range d.cntCostModels {
		c.addConstraintsToModel()
	}
	o.model.Update()

	var objective QuadExpr
	for _, c := range d.costModels {
		objective.AddQuad(&c.Quad)
	}
	for _, c := range d.cntCostModels {
		objective.AddQuad(&c.Quad)
	}
	o.model.SetObjective(&objective)
}

// releaseModels removes this iteration's auxiliary variables and constraints
// from the model so the next iteration starts from a clean pool.
func (d *sqpDriver) releaseModels() {
	for _, c := range d.costModels {
		c.removeFromModel()
	}
	for _, c := range d.cntCostModels {
		c.removeFromModel()
	}
	d.costModels, d.cntModels, d.cntCostModels = nil, nil, nil
	d.opt.model.Update()
}

// trustLoop re-solves the subproblem under a shrinking trust box until a step
// is accepted, convergence is declared, or the box underflows. The convex
// models are reused across re-solves; only the variable bounds change.
func (d *sqpDriver) trustLoop() (stepOutcome, OptStatus) {
	o := d.opt
	par := &o.params
	res := &o.results
	log := o.logger

	for o.trustBoxSize >= par.MinTrustBoxSize {

		if d.overTime() {
			return stepFatal, OptSCOIterationLimit
		}

		d.setTrustBoxConstraints(res.X)
		status := o.model.Optimize()
		res.NumQPSolves++
		if status != CvxSolved {
			if log.enable(LogWarn) {
				log.log("convex solver failed (%v)\n", status)
			}
			if par.FailFile != "" {
				_ = o.model.WriteToFile(par.FailFile)
			}
			return stepFatal, OptFailed
		}

		// the decision variables occupy the leading model slots
		modelVals := o.model.VarValues()
		modelCostVals := evaluateModelCosts(d.costModels, modelVals)
		modelCntViols := evaluateModelViolations(d.cntModels, modelVals)

		newX := make([]float64, len(res.X))
		copy(newX, modelVals[:len(res.X)])

		newCostVals := evaluateCosts(o.prob.costs, newX)
		newCntViols := evaluateViolations(o.prob.cnts, newX)
		res.NumFuncEvals++

		oldMerit := floats.Sum(res.CostVals) + o.meritCoeff*floats.Sum(res.CntViols)
		modelMerit := floats.Sum(modelCostVals) + o.meritCoeff*floats.Sum(modelCntViols)
		newMerit := floats.Sum(newCostVals) + o.meritCoeff*floats.Sum(newCntViols)
		approxImprove := oldMerit - modelMerit
		exactImprove := oldMerit - newMerit
		improveRatio := exactImprove / approxImprove

		if log.enable(LogTrace) {
			d.printCostInfo(modelCostVals, newCostVals, modelCntViols, newCntViols)
			log.log("%15s | %10.3e | %10.3e | %10.3e | %10.3e\n",
				"TOTAL", oldMerit, approxImprove, exactImprove, improveRatio)
		}

		if approxImprove < -1e-5 && log.enable(LogWarn) {
			log.log("approximate merit function got worse (%.3e), convexification is probably wrong to zeroth order\n",
				approxImprove)
		}

		switch {
		case approxImprove < par.MinApproxImprove:
			if log.enable(LogDebug) {
				log.log("converged because improvement was small (%.3e < %.3e)\n",
					approxImprove, par.MinApproxImprove)
			}
			// keep the small-but-valid step
			d.accept(newX, newCostVals, newCntViols)
			return stepConverged, OptConverged
		case approxImprove/oldMerit < par.MinApproxImproveFrac:
			if log.enable(LogDebug) {
				log.log("converged because improvement ratio was small (%.3e < %.3e)\n",
					approxImprove/oldMerit, par.MinApproxImproveFrac)
			}
			d.accept(newX, newCostVals, newCntViols)
			return stepConverged, OptConverged
		case exactImprove < zero || improveRatio < par.ImproveRatioThreshold:
			o.trustBoxSize *= par.TrustShrinkRatio
			if log.enable(LogDebug) {
				log.log("shrunk trust region, new box size: %.4f\n", o.trustBoxSize)
			}
		default:
			d.accept(newX, newCostVals, newCntViols)
			o.trustBoxSize *= par.TrustExpandRatio
			if log.enable(LogDebug) {
				log.log("expanded trust region, new box size: %.4f\n", o.trustBoxSize)
			}
			return stepAccepted, OptInvalid
		}
	}

	if log.enable(LogDebug) {
		log.log("converged because trust region is tiny\n")
	}
	return stepUnderflow, OptConverged
}

func (d *sqpDriver) accept(x, costVals, cntViols []float64) {
	res := &d.opt.results
	res.X = x
	res.CostVals = costVals
	res.CntViols = cntViols
}

// setTrustBoxConstraints bounds each decision variable to the intersection
// of its box [𝒍ᵢ, 𝒖ᵢ] with the trust box [𝐱ᵢ - Δ, 𝐱ᵢ + Δ].
// Auxiliary variables keep their natural bounds.
func (d *sqpDriver) setTrustBoxConstraints(x []float64) {
	o := d.opt
	p := o.prob
	lb, ub := make([]float64, len(x)), make([]float64, len(x))
	for i, v := range x {
		lb[i] = math.Max(v-o.trustBoxSize, p.lb[i])
		ub[i] = math.Min(v+o.trustBoxSize, p.ub[i])
	}
	o.model.SetVarBounds(p.vars, lb, ub)
}

func (d *sqpDriver) overTime() bool {
	return d.opt.params.MaxTime > 0 && time.Since(d.start) >= d.opt.params.MaxTime
}

// printCostInfo logs the per-term merit improvement table.
func (d *sqpDriver) printCostInfo(modelCostVals, newCostVals, modelCntViols, newCntViols []float64) {
	o := d.opt
	res := &o.results
	log := o.logger
	log.log("%15s | %10s | %10s | %10s | %10s\n", "", "oldexact", "dapprox", "dexact", "ratio")
	for i, c := range o.prob.costs {
		approx := res.CostVals[i] - modelCostVals[i]
		exact := res.CostVals[i] - newCostVals[i]
		if math.Abs(approx) > 1e-8 {
			log.log("%15s | %10.3e | %10.3e | %10.3e | %10.3e\n",
				c.Name(), res.CostVals[i], approx, exact, exact/approx)
		} else {
			log.log("%15s | %10.3e | %10.3e | %10.3e | %10s\n",
				c.Name(), res.CostVals[i], approx, exact, "  ------  ")
		}
	}
	for j, c := range o.prob.cnts {
		approx := o.meritCoeff * (res.CntViols[j] - modelCntViols[j])
		exact := o.meritCoeff * (res.CntViols[j] - newCntViols[j])
		if math.Abs(approx) > 1e-8 {
			log.log("%15s | %10.3e | %10.3e | %10.3e | %10.3e\n",
				c.Name(), o.meritCoeff*res.CntViols[j], approx, exact, exact/approx)
		} else {
			log.log("%15s | %10.3e | %10.3e | %10.3e | %10s\n",
				c.Name(), o.meritCoeff*res.CntViols[j], approx, exact, "  ------  ")
		}
	}
}
