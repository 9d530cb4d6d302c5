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

import "math"

// gumbelTopK perturbs each of finalScores by an i.i.d. Gumbel draw
// (-log(-log(u))) seeded from the slot seed, and returns the indices of the
// top k perturbed scores in descending order, breaking ties by input order.
// This reproduces softmax sampling-without-replacement in
// distribution while staying deterministic and cheap under seeding.
func gumbelTopK(finalScores []float64, k int, seed uint64) []int {
	n := len(finalScores)
	if k > n {
		k = n
	}
	rng := newSplitMix64(seed)

	type perturbed struct {
		idx   int
		value float64
	}
	perturbedScores := make([]perturbed, n)
	for i, s := range finalScores {
		u := rng.uniformOpen01()
		noise := -math.Log(-math.Log(u))
		perturbedScores[i] = perturbed{idx: i, value: s + noise}
	}

	// Stable sort descending by perturbed value; ties keep input order
	// because the comparator only swaps on strict improvement.
	for i := 1; i < n; i++ {
		for j := i; j > 0 && perturbedScores[j].value > perturbedScores[j-1].value; j-- {
			perturbedScores[j], perturbedScores[j-1] = perturbedScores[j-1], perturbedScores[j]
		}
	}

	indices := make([]int, k)
	for i := 0; i < k; i++ {
		indices[i] = perturbedScores[i].idx
	}
	return indices
}
