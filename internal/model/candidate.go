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

// Package model holds the data types shared across every control-plane
// engine: Candidate, SelectionDecision, SlotSeed, KnobBounds,
// CanaryDeployment, PredictionErrorRecord and PauseState.
package model

import "time"

// Candidate is a scorable media item fetched from the candidate feed.
type Candidate struct {
	PlanID        string
	Kind          string // e.g. "music", "video"; finite tag set, caller-defined
	Curation      float64
	Trending      float64
	Engagement    float64
	DurationSec   float64 // meaningful only when HasDuration is set
	HasDuration   bool
	CreatedAt     time.Time
	HasCreatedAt  bool
	Tags          []string
	HDAvailable   bool
	DesireVector  []float64 // optional palette embedding; nil if absent
	Status        string
}

// TagSet returns the candidate's tags as a set for Jaccard-style comparisons.
func (c Candidate) TagSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Tags))
	for _, t := range c.Tags {
		set[t] = struct{}{}
	}
	return set
}

// AgeHours returns the candidate's age in hours relative to now. Candidates
// without a creation timestamp are treated as age 0 (neither penalized nor
// favored by recency scoring).
func (c Candidate) AgeHours(now time.Time) float64 {
	if !c.HasCreatedAt {
		return 0
	}
	return now.Sub(c.CreatedAt).Hours()
}
