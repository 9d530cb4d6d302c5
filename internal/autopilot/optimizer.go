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

// ProposedChange is one knob's candidate adjustment for the current cycle.
type ProposedChange struct {
	Parameter      string
	OldValue       float64
	NewValue       float64
	Delta          float64
	ExpectedImpact float64
}

// AnalysisResult is the Analyze step's output: a data-quality gate plus a
// trend estimate for the configured primary KPI.
type AnalysisResult struct {
	DataQuality   DataQuality
	TrendDelta    float64 // recent-half average minus earlier-half average
	SampleCount   int
}

// DataQuality gates whether Propose may run at all.
type DataQuality string

const (
	DataQualitySufficient   DataQuality = "sufficient"
	DataQualityInsufficient DataQuality = "insufficient"
)

// proposeDelta computes one knob's bounded daily delta from the observed KPI
// trend: the knob moves toward whichever direction the primary KPI has
// recently been trending, magnitude capped at maxDailyVariation. A flat
// trend (|trendDelta| below the noise floor) proposes no change at all,
// matching the "no strong signal, no action" posture the sliding-bounds
// policy already takes for Hold decisions.
func proposeDelta(trendDelta, maxDailyVariation float64) float64 {
	const noiseFloor = 1e-6
	if maxDailyVariation <= 0 {
		return 0
	}
	switch {
	case trendDelta > noiseFloor:
		return maxDailyVariation
	case trendDelta < -noiseFloor:
		return -maxDailyVariation
	default:
		return 0
	}
}

// halfSplitTrend compares the mean of the second half of samples against
// the mean of the first half, the same shape internal/driftmonitor's Trend
// uses for prediction-accuracy trend (half-split comparison over a window).
func halfSplitTrend(samples []float64) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}
	half := n / 2
	earlier := samples[:half]
	recent := samples[n-half:]
	return mean(recent) - mean(earlier)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
