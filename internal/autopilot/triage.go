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

package autopilot

import "time"

// FailureCategory classifies a recurring autopilot failure for triage.
type FailureCategory string

const (
	FailurePerformanceDegradation FailureCategory = "performance_degradation"
	FailureStabilityIssues        FailureCategory = "stability_issues"
	FailureValidationFailures     FailureCategory = "validation_failures"
	FailureCanaryRollbacks        FailureCategory = "canary_rollbacks"
	FailureDriftDetection         FailureCategory = "drift_detection"
)

// TriageReport is a weekly summary of autopilot failures.
type TriageReport struct {
	ReportID          string
	PeriodStart       time.Time
	PeriodEnd         time.Time
	FailureCategories []FailureCategory
}

// TriageConfig tunes IncidentTriage's weekly analysis.
type TriageConfig struct {
	AnalysisWindowDays       int
	FailureThresholdForPatch int
}

// DefaultTriageConfig returns the documented defaults.
func DefaultTriageConfig() TriageConfig {
	return TriageConfig{AnalysisWindowDays: 7, FailureThresholdForPatch: 3}
}

// IncidentTriage is an unimplemented weekly failure-pattern analyzer, a
// stub like ParameterHistory: its final contract is unspecified, so it
// does not attempt to guess a patch-suggestion algorithm.
type IncidentTriage struct {
	config TriageConfig
}

// NewIncidentTriage constructs a stub IncidentTriage.
func NewIncidentTriage(config TriageConfig) *IncidentTriage {
	return &IncidentTriage{config: config}
}

// RunWeeklyTriage returns an empty report rather than inventing an
// unspecified analysis.
func (t *IncidentTriage) RunWeeklyTriage(now time.Time) (TriageReport, error) {
	return TriageReport{
		ReportID:    "triage_" + now.Format("20060102"),
		PeriodStart: now.AddDate(0, 0, -t.config.AnalysisWindowDays),
		PeriodEnd:   now,
	}, nil
}
