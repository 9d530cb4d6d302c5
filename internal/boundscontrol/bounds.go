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

// Package boundscontrol implements Sliding Bounds: the dynamic safety
// envelope the Autopilot Cycle Engine validates proposals against. The
// expand/contract/hold policy follows the vegas-limiter congestion-control
// shape, generalized from a single concurrency limit to a per-knob
// soft/hard bounds pair.
package boundscontrol

import (
	"time"

	"vvtvcore/internal/errs"
	"vvtvcore/internal/logging"
	"vvtvcore/internal/model"
)

// StabilityMetrics are the inputs to propose_adjustment for one knob.
type StabilityMetrics struct {
	PinnedToEdgeFraction float64 // fraction of recent changes pinned to a soft edge
	RollbackRate         float64
	OscillationCount     int // direction-flip count in the recent window
	DriftRiskHigh        bool
}

// Config tunes the expansion/contraction policy.
type Config struct {
	HistoryPath            string
	PinnedFractionThreshold float64 // expand when pinned fraction >= this
	RollbackRateThreshold   float64 // contract when rollback rate exceeds this
	OscillationThreshold    int     // contract when flip count >= this
	ExpansionFactor         float64 // multiplicative expansion, e.g. 1.20
}

// DefaultConfig returns the documented policy defaults. The numeric
// thresholds are per-deployment tuning knobs, not universal constants.
func DefaultConfig(historyPath string) Config {
	return Config{
		HistoryPath:             historyPath,
		PinnedFractionThreshold: 0.80,
		RollbackRateThreshold:   0.10,
		OscillationThreshold:    3,
		ExpansionFactor:         1.20,
	}
}

// Controller owns the hard/soft bounds pair for every controllable knob.
type Controller struct {
	config  Config
	bounds  map[string]model.KnobBounds
	log     *logging.JSONLAppender
}

// New constructs a Controller seeded with hard bounds per knob. A knob whose
// soft floor and soft ceiling are both zero starts with soft bounds equal to
// its hard bounds; any other soft bounds passed in are kept as given.
func New(config Config, hard map[string]model.KnobBounds) (*Controller, error) {
	var appender *logging.JSONLAppender
	var err error
	if config.HistoryPath != "" {
		appender, err = logging.NewJSONLAppender(config.HistoryPath)
		if err != nil {
			return nil, err
		}
	}
	bounds := make(map[string]model.KnobBounds, len(hard))
	for name, b := range hard {
		if b.SoftFloor == 0 && b.SoftCeiling == 0 {
			b.SoftFloor = b.HardFloor
			b.SoftCeiling = b.HardCeiling
		}
		bounds[name] = b
	}
	return &Controller{config: config, bounds: bounds, log: appender}, nil
}

// Bounds returns the current bounds for a knob.
func (c *Controller) Bounds(parameter string) (model.KnobBounds, bool) {
	b, ok := c.bounds[parameter]
	return b, ok
}

// IsWithinSoft reports whether value lies within the knob's current soft
// bounds.
func (c *Controller) IsWithinSoft(parameter string, value float64) bool {
	b, ok := c.bounds[parameter]
	if !ok {
		return false
	}
	return b.IsWithinSoft(value)
}

// ProposeAdjustment decides Expand/Contract/Hold for one knob.
func ProposeAdjustment(config Config, metrics StabilityMetrics) model.AdjustmentDecision {
	if metrics.RollbackRate > config.RollbackRateThreshold ||
		metrics.OscillationCount >= config.OscillationThreshold ||
		metrics.DriftRiskHigh {
		return model.AdjustmentContract
	}
	if metrics.PinnedToEdgeFraction >= config.PinnedFractionThreshold {
		return model.AdjustmentExpand
	}
	return model.AdjustmentHold
}

// Adjust applies an Expand/Contract/Hold decision to parameter's soft bounds
// and appends a bounds-history record. Expansion is multiplicative and
// capped so the new soft range stays inside the hard range; contraction
// shrinks the range back toward its midpoint. Soft bounds can never exit
// hard bounds: the clamp enforces it, and a violation surfaces as
// invalid_adjustment.
func (c *Controller) Adjust(parameter string, decision model.AdjustmentDecision, reason string, now time.Time) error {
	old, ok := c.bounds[parameter]
	if !ok {
		return errs.New(errs.KindConfiguration, "unknown knob parameter "+parameter)
	}

	updated := old
	switch decision {
	case model.AdjustmentExpand:
		mid := (old.SoftFloor + old.SoftCeiling) / 2
		halfRange := (old.SoftCeiling - old.SoftFloor) / 2 * c.config.ExpansionFactor
		updated.SoftFloor = clamp(mid-halfRange, old.HardFloor, old.HardCeiling)
		updated.SoftCeiling = clamp(mid+halfRange, old.HardFloor, old.HardCeiling)
	case model.AdjustmentContract:
		mid := (old.SoftFloor + old.SoftCeiling) / 2
		halfRange := (old.SoftCeiling - old.SoftFloor) / 2 / c.config.ExpansionFactor
		updated.SoftFloor = clamp(mid-halfRange, old.HardFloor, old.HardCeiling)
		updated.SoftCeiling = clamp(mid+halfRange, old.HardFloor, old.HardCeiling)
	case model.AdjustmentHold:
		return nil
	}

	if !updated.SoftWithinHard() {
		return errs.New(errs.KindValidationFailed, "invalid_adjustment: soft bounds would exit hard bounds")
	}

	c.bounds[parameter] = updated
	if c.log != nil {
		return c.log.Append(model.BoundsChangeRecord{
			Parameter: parameter,
			OldBounds: old,
			NewBounds: updated,
			Reason:    reason,
			Timestamp: now,
		})
	}
	return nil
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Close releases the bounds-history log file handle.
func (c *Controller) Close() error {
	if c.log != nil {
		return c.log.Close()
	}
	return nil
}
