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

package planner

import (
	"time"

	"vvtvcore/internal/businesslogic"
	"vvtvcore/internal/model"
)

// MetricsRecorder is the subset of the metrics store the selector needs to
// emit its entropy metric.
type MetricsRecorder interface {
	RecordMetric(kind string, value float64, context map[string]any, ts time.Time) error
}

// Config tunes planner behavior independent of the business-logic snapshot.
type Config struct {
	// TargetDurationSeconds anchors duration_fit scoring. Default 600s (10m).
	TargetDurationSeconds float64
}

// DefaultConfig returns the planner defaults.
func DefaultConfig() Config {
	return Config{TargetDurationSeconds: 600}
}

// Planner is the Plan Selector: synchronous, short-lived, and invoked once
// per playout slot.
type Planner struct {
	config  Config
	metrics MetricsRecorder
}

// New constructs a Planner. metrics may be nil to skip entropy recording
// (e.g. in unit tests that only assert selection order).
func New(config Config, metrics MetricsRecorder) *Planner {
	return &Planner{config: config, metrics: metrics}
}

// Result is the outcome of one Run invocation.
type Result struct {
	Decisions []model.SelectionDecision
	SlotSeed  model.SlotSeed
	Entropy   float64
}

// Run scores candidates, draws a diverse top-k batch via Gumbel-Top-k, and
// returns the resulting decisions. An empty candidate pool returns an idle
// (empty) result, never an error.
func (p *Planner) Run(candidates []model.Candidate, snapshot *businesslogic.Snapshot, now time.Time) Result {
	if len(candidates) == 0 {
		return Result{}
	}

	slotSeed := GenerateSlotSeed(now, snapshot.SlotDuration(), snapshot.WindowID(), snapshot.GlobalSeed())

	scoredCandidates := scoreCandidates(candidates, p.config.TargetDurationSeconds, now)

	bias := snapshot.PlanSelectionBias()
	temperature := snapshot.SelectionTemperature()
	finalScores := make([]float64, len(scoredCandidates))
	for i, sc := range scoredCandidates {
		finalScores[i] = finalScore(sc.base, bias, temperature)
	}

	topK := snapshot.SelectionTopK(len(candidates))
	if topK > len(candidates) {
		topK = len(candidates)
	}

	// Order the entire pool, not just the top k: diversity selection below
	// must be able to reach past a kind-homogeneous head of the ordering.
	orderedIdx := gumbelTopK(finalScores, len(scoredCandidates), uint64(slotSeed))

	ordered := make([]model.Candidate, len(orderedIdx))
	orderedDecisions := make([]model.SelectionDecision, len(orderedIdx))
	for i, idx := range orderedIdx {
		ordered[i] = scoredCandidates[idx].candidate
		orderedDecisions[i] = model.SelectionDecision{
			PlanID:    scoredCandidates[idx].candidate.PlanID,
			Score:     finalScores[idx],
			Rationale: scoredCandidates[idx].rationale,
		}
	}

	minDiverse := minDiverseCount(topK, snapshot.DiversityQuota())

	finalOrder := selectDiverse(ordered, topK, minDiverse)
	finalDecisions := reorderDecisions(orderedDecisions, finalOrder)

	entropy := selectionEntropy(finalOrder)
	if p.metrics != nil {
		_ = p.metrics.RecordMetric("selection_entropy", entropy, map[string]any{
			"slot_seed": uint64(slotSeed),
			"batch_size": len(finalOrder),
		}, now)
	}

	return Result{Decisions: finalDecisions, SlotSeed: slotSeed, Entropy: entropy}
}

// reorderDecisions re-maps decisions to match the candidate order produced
// by diversity enforcement, which permutes candidates but not their scores.
func reorderDecisions(decisions []model.SelectionDecision, order []model.Candidate) []model.SelectionDecision {
	byPlanID := make(map[string]model.SelectionDecision, len(decisions))
	for _, d := range decisions {
		byPlanID[d.PlanID] = d
	}
	out := make([]model.SelectionDecision, len(order))
	for i, c := range order {
		out[i] = byPlanID[c.PlanID]
	}
	return out
}
