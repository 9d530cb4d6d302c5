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
	"math"

	"vvtvcore/internal/model"
)

// minDiverseCount computes max(1, ceil(top_k * diversity_quota)).
func minDiverseCount(topK int, diversityQuota float64) int {
	v := int(math.Ceil(float64(topK) * diversityQuota))
	if v < 1 {
		v = 1
	}
	return v
}

// selectDiverse walks the full Gumbel ordering of the pool and picks the
// top_k batch: the first pass admits at most one candidate per kind until
// minDiverse distinct kinds are filled, the second pass fills the
// remaining slots in (Gumbel) order. Walking the whole ordering, not a
// pre-truncated batch, is what guarantees the batch reaches minDiverse
// distinct kinds whenever the pool has that many, even when the top-k
// scores happen to be kind-homogeneous.
func selectDiverse(ordered []model.Candidate, topK, minDiverse int) []model.Candidate {
	if len(ordered) == 0 || topK <= 0 {
		return nil
	}
	if topK > len(ordered) {
		topK = len(ordered)
	}
	seenKinds := make(map[string]bool)
	admitted := make([]bool, len(ordered))
	out := make([]model.Candidate, 0, topK)

	for i, c := range ordered {
		if len(out) >= minDiverse || len(out) >= topK {
			break
		}
		if seenKinds[c.Kind] {
			continue
		}
		seenKinds[c.Kind] = true
		admitted[i] = true
		out = append(out, c)
	}

	for i, c := range ordered {
		if len(out) >= topK {
			break
		}
		if admitted[i] {
			continue
		}
		out = append(out, c)
	}
	return out
}
