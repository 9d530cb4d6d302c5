// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package canary

import (
	"math"

	"vvtvcore/internal/model"
)

// GateEvaluation is the per-KPI outcome of one stage's statistical check.
type GateEvaluation struct {
	Gate   model.KPIGate
	Stat   Result
	Passed bool
	Reason string
}

// alpha is the significance level the control plane validates canary KPI
// improvements/regressions against.
const alpha = 0.05

// EvaluateGate runs the configured test for one KPI gate and classifies it
// into one of four reasons:
//
//   - insufficient_observations: not enough samples yet to test at all.
//   - violation: the effect is significant (p < alpha) AND worse in the
//     direction the gate cares about, grounds for an outright Reject.
//   - accept: the effect is significant, better in direction, and (if the
//     gate sets one) at least as large as the minimum-detectable-effect.
//   - inconclusive: neither a clear violation nor a clear pass yet (e.g.
//     not yet significant, or significant-but-below MDE): the canary
//     should keep collecting data, not reject outright.
func EvaluateGate(gate model.KPIGate, test Test, baseline, candidate []float64) GateEvaluation {
	if len(baseline) < gate.MinObservations || len(candidate) < gate.MinObservations {
		return GateEvaluation{Gate: gate, Reason: "insufficient_observations"}
	}

	stat := test.Run(baseline, candidate)
	mb, mc := mean(baseline), mean(candidate)

	improved := false
	switch gate.Direction {
	case model.DirectionHigherIsBetter:
		improved = mc >= mb
	case model.DirectionLowerIsBetter:
		improved = mc <= mb
	}

	significant := stat.PValue < alpha
	meetsEffect := gate.MinEffectSize <= 0 || math.Abs(stat.EffectSize) >= gate.MinEffectSize

	var reason string
	passed := false
	switch {
	case !improved && significant:
		reason = "violation"
	case improved && significant && meetsEffect:
		reason = "accept"
		passed = true
	default:
		reason = "inconclusive"
	}

	return GateEvaluation{Gate: gate, Stat: stat, Passed: passed, Reason: reason}
}

// Decide rolls a stage's full set of gate evaluations into a single
// CanaryDecision: Reject wins outright if any gate is a clear
// violation; otherwise Inconclusive if any gate is still unresolved
// (insufficient observations or not yet significant either way); Accept
// only when every gate passed.
func Decide(evaluations []GateEvaluation) model.CanaryDecision {
	unresolved := false
	for _, e := range evaluations {
		if e.Reason == "violation" {
			return model.DecisionReject
		}
		if !e.Passed {
			unresolved = true
		}
	}
	if unresolved {
		return model.DecisionInconclusive
	}
	return model.DecisionAccept
}
