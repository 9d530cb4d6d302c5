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

// Package planner implements the Plan Selector: a deterministic,
// reproducible ranker that scores candidates and picks a diverse playout
// batch per slot via Gumbel-Top-k sampling.
package planner

import (
	"fmt"
	"math"
	"time"

	"vvtvcore/internal/model"
)

// scored pairs a candidate with its computed base score and rationale,
// ahead of bias/temperature adjustment and Gumbel perturbation.
type scored struct {
	candidate model.Candidate
	base      float64
	rationale string
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// scoreCandidates computes base_score for every candidate.
// targetDurationSec anchors duration_fit; now anchors recency_bonus.
func scoreCandidates(candidates []model.Candidate, targetDurationSec float64, now time.Time) []scored {
	kindCounts := make(map[string]int, len(candidates))
	for _, c := range candidates {
		kindCounts[c.Kind]++
	}

	out := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		diversityBonus := 1.0 / (1.0 + float64(kindCounts[c.Kind]))

		durationFit := 0.0
		if c.HasDuration && targetDurationSec > 0 {
			durationFit = clip(1-math.Abs(c.DurationSec-targetDurationSec)/targetDurationSec, 0, 1)
		}

		recencyBonus := clip(c.AgeHours(now)/24.0, 0, 1)

		hdPenalty := 0.0
		if !c.HDAvailable {
			hdPenalty = 0.25
		}

		base := c.Curation*0.4 + c.Trending*0.3 + diversityBonus*0.2 + durationFit*0.2 + recencyBonus*0.1 - hdPenalty

		rationale := fmt.Sprintf("base=%.2f trending=%.2f diversity=%.2f duration=%.2f recency=%.2f hd_penalty=%.2f",
			c.Curation*0.4, c.Trending*0.3, diversityBonus*0.2, durationFit*0.2, recencyBonus*0.1, hdPenalty)

		out = append(out, scored{candidate: c, base: base, rationale: rationale})
	}
	return out
}

// finalScore applies the global bias and temperature.
func finalScore(base, bias, temperature float64) float64 {
	t := temperature
	if t < 1e-3 {
		t = 1e-3
	}
	return (base + bias) / t
}

// selectionEntropy computes Shannon entropy (base 2) over the kind
// distribution of the selected batch.
func selectionEntropy(selected []model.Candidate) float64 {
	if len(selected) == 0 {
		return 0
	}
	counts := make(map[string]int, len(selected))
	for _, c := range selected {
		counts[c.Kind]++
	}
	n := float64(len(selected))
	var h float64
	for _, count := range counts {
		p := float64(count) / n
		h -= p * math.Log2(p)
	}
	return h
}
