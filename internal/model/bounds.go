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

import "time"

// KnobBounds is a hard floor/ceiling (absolute safety envelope) paired with
// a soft floor/ceiling (current operating envelope) for one controllable
// knob. Soft bounds may only move within [HardFloor, HardCeiling].
type KnobBounds struct {
	Parameter    string
	HardFloor    float64
	HardCeiling  float64
	SoftFloor    float64
	SoftCeiling  float64
}

// IsWithinSoft reports whether value lies within the current soft bounds.
func (b KnobBounds) IsWithinSoft(value float64) bool {
	return value >= b.SoftFloor && value <= b.SoftCeiling
}

// IsWithinHard reports whether value lies within the hard bounds.
func (b KnobBounds) IsWithinHard(value float64) bool {
	return value >= b.HardFloor && value <= b.HardCeiling
}

// SoftWithinHard reports the bounds-monotonicity invariant: soft ⊆ hard.
func (b KnobBounds) SoftWithinHard() bool {
	return b.SoftFloor >= b.HardFloor && b.SoftCeiling <= b.HardCeiling
}

// BoundsChangeRecord is one append-only entry in a knob's bounds-history log.
type BoundsChangeRecord struct {
	Parameter string     `json:"parameter"`
	OldBounds KnobBounds `json:"old_bounds"`
	NewBounds KnobBounds `json:"new_bounds"`
	Reason    string     `json:"reason"`
	Timestamp time.Time  `json:"timestamp"`
}

// AdjustmentDecision is the outcome of Sliding Bounds' propose_adjustment.
type AdjustmentDecision string

const (
	AdjustmentExpand   AdjustmentDecision = "expand"
	AdjustmentContract AdjustmentDecision = "contract"
	AdjustmentHold     AdjustmentDecision = "hold"
)
