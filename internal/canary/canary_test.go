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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vvtvcore/internal/model"
)

func repeat(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

// perturbed adds small jitter around value so a sample isn't perfectly
// constant (which degenerates every test variant's variance to zero).
func perturbed(value float64, n int) []float64 {
	out := repeat(value, n)
	for i := range out {
		out[i] += 0.01 * float64(i%5)
	}
	return out
}

// Baseline mean 10.0 (n=80) vs candidate mean 8.5 (n=20), gate direction
// higher_is_better, alpha 0.05 -> Reject, since the candidate moved the
// KPI down against a higher-is-better gate.
func TestEvaluateGate_Scenario5Reject(t *testing.T) {
	baseline := repeat(10.0, 80)
	candidate := repeat(8.5, 20)
	// perturb slightly so variance isn't exactly zero, which would make
	// every test variant degenerate.
	for i := range baseline {
		baseline[i] += 0.01 * float64(i%5)
	}
	for i := range candidate {
		candidate[i] += 0.01 * float64(i%5)
	}

	gate := model.KPIGate{Metric: "engagement", Direction: model.DirectionHigherIsBetter, MinObservations: 10}
	eval := EvaluateGate(gate, NewTest(TestWelchT, 1), baseline, candidate)

	assert.False(t, eval.Passed, "candidate dropping from 10.0 to 8.5 on a higher-is-better gate must reject")
	assert.Equal(t, "violation", eval.Reason)
}

func TestEvaluateGate_InsufficientObservations(t *testing.T) {
	gate := model.KPIGate{Metric: "engagement", Direction: model.DirectionHigherIsBetter, MinObservations: 50}
	eval := EvaluateGate(gate, NewTest(TestWelchT, 1), repeat(5, 10), repeat(6, 10))
	assert.Equal(t, "insufficient_observations", eval.Reason)
}

// A gate whose arms are statistically indistinguishable is neither a
// violation nor a pass: it must stay inconclusive so the
// canary keeps collecting data instead of rejecting on noise alone.
func TestEvaluateGate_IndistinguishableArmsAreInconclusive(t *testing.T) {
	baseline := repeat(10.0, 10)
	candidate := repeat(10.0, 10)
	for i := range baseline {
		baseline[i] += 0.01 * float64(i%3)
		candidate[i] += 0.01 * float64((i+1)%3)
	}
	gate := model.KPIGate{Metric: "engagement", Direction: model.DirectionHigherIsBetter, MinObservations: 5}
	eval := EvaluateGate(gate, NewTest(TestWelchT, 1), baseline, candidate)
	assert.False(t, eval.Passed)
	assert.Equal(t, "inconclusive", eval.Reason)
}

// A gate that clears significance and direction but not the configured
// minimum-detectable-effect must not accept.
func TestEvaluateGate_BelowMinEffectSizeIsInconclusive(t *testing.T) {
	baseline := repeat(10.0, 200)
	candidate := repeat(10.05, 200)
	for i := range baseline {
		baseline[i] += 0.1 * float64(i%7)
		candidate[i] += 0.1 * float64(i%7)
	}
	gate := model.KPIGate{Metric: "engagement", Direction: model.DirectionHigherIsBetter, MinObservations: 10, MinEffectSize: 5.0}
	eval := EvaluateGate(gate, NewTest(TestWelchT, 1), baseline, candidate)
	assert.False(t, eval.Passed)
	assert.Equal(t, "inconclusive", eval.Reason)
}

func TestDecide_AcceptRequiresAllGatesPass(t *testing.T) {
	passing := GateEvaluation{Passed: true, Reason: "accept"}
	unresolved := GateEvaluation{Passed: false, Reason: "inconclusive"}
	violating := GateEvaluation{Passed: false, Reason: "violation"}
	assert.Equal(t, model.DecisionAccept, Decide([]GateEvaluation{passing, passing}))
	assert.Equal(t, model.DecisionInconclusive, Decide([]GateEvaluation{passing, unresolved}))
	assert.Equal(t, model.DecisionReject, Decide([]GateEvaluation{passing, violating}))
	assert.Equal(t, model.DecisionReject, Decide([]GateEvaluation{violating, unresolved}))
}

func TestRouter_CanaryAssignmentsStableAcrossStageGrowth(t *testing.T) {
	r := NewRouter(5)
	ids := make([]string, 200)
	canaryAt5 := map[string]bool{}
	for i := range ids {
		ids[i] = "request-" + string(rune('a'+i%26)) + itoa(i)
		if r.Group(ids[i]) == GroupCanary {
			canaryAt5[ids[i]] = true
		}
	}

	r.Advance(25)
	for id := range canaryAt5 {
		assert.Equal(t, GroupCanary, r.Group(id), "requests assigned to canary must stay canary as traffic grows")
	}
}

func TestRequiredSampleSize(t *testing.T) {
	// The textbook figure: detecting d=0.5 at alpha=0.05 with 80% power
	// needs roughly 63-64 observations per group.
	n := RequiredSampleSize(0.5, 0.05, 0.80)
	assert.GreaterOrEqual(t, n, 60)
	assert.LessOrEqual(t, n, 68)
	assert.Equal(t, 0, RequiredSampleSize(0, 0.05, 0.80))
}

func TestController_RejectAborts(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stages := []model.CanaryStage{{TrafficPercent: 5, DwellTime: time.Hour}, {TrafficPercent: 25, DwellTime: time.Hour}}
	gates := []model.KPIGate{{Metric: "engagement", Direction: model.DirectionHigherIsBetter, MinObservations: 5}}

	c, err := NewDeployment("base-hash", "cand-hash", stages, gates, 24*time.Hour, TestWelchT, "", now)
	require.NoError(t, err)

	baseline := map[string][]float64{"engagement": perturbed(10, 20)}
	candidate := map[string][]float64{"engagement": perturbed(5, 20)}

	outcome, err := c.EvaluateStage(baseline, candidate, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionReject, outcome.Decision)
	assert.True(t, c.Aborted())
	assert.Equal(t, 0, c.Router().TrafficPercent())
}

func TestController_AcceptAdvancesThroughStages(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stages := []model.CanaryStage{{TrafficPercent: 5, DwellTime: time.Hour}, {TrafficPercent: 25, DwellTime: time.Hour}}
	gates := []model.KPIGate{{Metric: "engagement", Direction: model.DirectionHigherIsBetter, MinObservations: 5}}

	c, err := NewDeployment("base-hash", "cand-hash", stages, gates, 24*time.Hour, TestWelchT, "", now)
	require.NoError(t, err)

	baseline := map[string][]float64{"engagement": perturbed(5, 20)}
	candidate := map[string][]float64{"engagement": perturbed(10, 20)}

	outcome, err := c.EvaluateStage(baseline, candidate, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionAccept, outcome.Decision)
	assert.Equal(t, 25, c.Deployment().CurrentTrafficPct)
	assert.False(t, c.Accepted(), "should not be terminal until the final stage passes")

	outcome, err = c.EvaluateStage(baseline, candidate, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.DecisionAccept, outcome.Decision)
	assert.True(t, c.Accepted())
}
