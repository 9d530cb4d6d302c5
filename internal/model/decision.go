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

package model

// SelectionDecision is emitted per slot by the Plan Selector, and may be
// reordered (never removed) by the Curator Vigilante.
type SelectionDecision struct {
	PlanID    string
	Score     float64
	Rationale string
}

// AppendRationaleTag appends a " | tag" segment to the rationale string, the
// format later stages (e.g. the curator) use to annotate a decision without
// discarding the scoring breakdown that produced it.
func (d *SelectionDecision) AppendRationaleTag(tag string) {
	d.Rationale = d.Rationale + " | " + tag
}

// SlotSeed is the 64-bit deterministic seed derived from
// (epoch_index, window_id, global_seed) for a given slot.
type SlotSeed uint64
