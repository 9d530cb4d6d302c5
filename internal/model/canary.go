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

// TrafficDirection states whether a KPI gate wants a metric to rise or fall.
type TrafficDirection string

const (
	DirectionHigherIsBetter TrafficDirection = "higher_is_better"
	DirectionLowerIsBetter  TrafficDirection = "lower_is_better"
)

// KPIGate names a metric, a threshold, a direction, and a minimum
// observation count required before the gate can be evaluated.
// MinEffectSize is the minimum-detectable-effect: an improving,
// significant gate still falls short of Accept until the observed effect
// size reaches it. Zero disables the check.
type KPIGate struct {
	Metric          string
	Threshold       float64
	Direction       TrafficDirection
	MinObservations int
	MinEffectSize   float64
}

// CanaryStage is one step of a traffic-split progression, e.g. 5, 25, 50, 100.
type CanaryStage struct {
	TrafficPercent int
	DwellTime      time.Duration
}

// CanaryDecision is the terminal outcome of a canary evaluation.
type CanaryDecision string

const (
	DecisionAccept       CanaryDecision = "accept"
	DecisionReject       CanaryDecision = "reject"
	DecisionInconclusive CanaryDecision = "inconclusive"
)

// CanaryDeployment is a time-boxed traffic split between a baseline
// (control) and a candidate snapshot, validated through a stage
// progression with KPI gates.
type CanaryDeployment struct {
	ID                string
	BaselineHash      string
	CandidateHash     string
	Stages            []CanaryStage
	Gates             []KPIGate
	TimeBudget        time.Duration
	StartedAt         time.Time
	CurrentStageIndex int
	CurrentTrafficPct int
}
