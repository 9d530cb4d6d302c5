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

// PredictionErrorRecord captures the divergence between a knob change's
// predicted and actually observed impact.
type PredictionErrorRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	Parameter      string    `json:"parameter"`
	PredictedDelta float64   `json:"predicted_delta"`
	ActualDelta    float64   `json:"actual_delta"`
	DeploymentID   string    `json:"deployment_id"`
	WasRolledBack  bool      `json:"was_rolled_back"`
}

// PredictionError returns |predicted - actual| / max(|predicted|, epsilon).
func (r PredictionErrorRecord) PredictionError(epsilon float64) float64 {
	denom := abs(r.PredictedDelta)
	if denom < epsilon {
		denom = epsilon
	}
	return abs(r.PredictedDelta-r.ActualDelta) / denom
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// PauseState marks a period during which the autopilot refuses to mutate
// the deployed snapshot.
type PauseState struct {
	PausedAt             time.Time `json:"paused_at"`
	ResumeAt             time.Time `json:"resume_at"`
	Reason               string    `json:"reason"`
	PauseCount           int       `json:"pause_count"`
	CanAutoResume        bool      `json:"can_resume_automatically"`
}

// DriftRiskLevel is the autopilot's self-assessed confidence in its own
// predictions, derived from recent prediction accuracy.
type DriftRiskLevel string

const (
	RiskLow      DriftRiskLevel = "low"
	RiskMedium   DriftRiskLevel = "medium"
	RiskHigh     DriftRiskLevel = "high"
	RiskCritical DriftRiskLevel = "critical"
)
