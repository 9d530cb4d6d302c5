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
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"vvtvcore/internal/businesslogic"
	"vvtvcore/internal/model"
)

func defaultSnapshot(t *testing.T) *businesslogic.Snapshot {
	t.Helper()
	s := &businesslogic.Snapshot{}
	s.Selection.Method = businesslogic.SelectionGumbelTopK
	s.Selection.Temperature = 0.85
	s.Scheduling.SlotDurationMinutes = 15
	return s
}

func candidate(id, kind string, curation, trending float64) model.Candidate {
	return model.Candidate{
		PlanID:      id,
		Kind:        kind,
		Curation:    curation,
		Trending:    trending,
		HDAvailable: true,
	}
}

// Three candidates, default knobs, seed derived from now; every decision's
// score must equal (base_score + 0.0)/0.85.
func TestRun_BasicSelection(t *testing.T) {
	snapshot := defaultSnapshot(t)
	candidates := []model.Candidate{
		candidate("p1", "music", 0.9, 0.8),
		candidate("p2", "video", 0.8, 0.9),
		candidate("p3", "music", 0.7, 0.6),
	}
	p := New(DefaultConfig(), nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	result := p.Run(candidates, snapshot, now)
	if len(result.Decisions) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(result.Decisions))
	}

	scoredCandidates := scoreCandidates(candidates, DefaultConfig().TargetDurationSeconds, now)
	byID := make(map[string]scored, 3)
	for _, sc := range scoredCandidates {
		byID[sc.candidate.PlanID] = sc
	}
	for _, d := range result.Decisions {
		want := (byID[d.PlanID].base + 0.0) / 0.85
		if math.Abs(d.Score-want) > 1e-6 {
			t.Errorf("plan %s: score %.6f want %.6f", d.PlanID, d.Score, want)
		}
	}
}

// Two music + one video, top_k=3, diversity_quota=0.5 → the lone video
// appears in position <= 1, first-pass distinct-kind count >= 2.
func TestRun_DiversityEnforcement(t *testing.T) {
	snapshot := defaultSnapshot(t)
	snapshot.Selection.DiversityQuota = 0.5
	candidates := []model.Candidate{
		candidate("music_1", "music", 0.9, 0.9),
		candidate("video_1", "video", 0.1, 0.1),
		candidate("music_2", "music", 0.85, 0.85),
	}
	p := New(DefaultConfig(), nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	result := p.Run(candidates, snapshot, now)
	videoPos := -1
	for i, d := range result.Decisions {
		if d.PlanID == "video_1" {
			videoPos = i
		}
	}
	if videoPos == -1 {
		t.Fatalf("video_1 missing from result")
	}
	if videoPos > 1 {
		t.Errorf("video_1 at position %d, want <= 1", videoPos)
	}
}

// Two candidates with identical scalars, fixed seed -> deterministic order
// across repeated runs.
func TestRun_TiedScoresDeterministic(t *testing.T) {
	snapshot := defaultSnapshot(t)
	seed := uint64(123)
	snapshot.Scheduling.GlobalSeed = &seed
	candidates := []model.Candidate{
		candidate("tie_1", "music", 0.5, 0.5),
		candidate("tie_2", "music", 0.5, 0.5),
	}
	p := New(DefaultConfig(), nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var firstOrder []string
	for i := 0; i < 100; i++ {
		result := p.Run(candidates, snapshot, now)
		order := make([]string, len(result.Decisions))
		for j, d := range result.Decisions {
			order[j] = d.PlanID
		}
		if i == 0 {
			firstOrder = order
			continue
		}
		for j := range order {
			if order[j] != firstOrder[j] {
				t.Fatalf("run %d: order %v diverged from run 0 order %v", i, order, firstOrder)
			}
		}
	}
}

// Property sweep over randomized (candidates, knobs, seed) triples:
// repeated runs are bit-identical, the batch never exceeds top_k, the
// distinct-kind count meets the diversity quota whenever the pool allows,
// every score stays inside the bounds the bias/temperature knobs imply,
// and entropy is 0 exactly when the whole batch shares one kind.
func TestRun_RandomizedProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	kinds := []string{"music", "video", "clip", "live"}
	p := New(DefaultConfig(), nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(12)
		candidates := make([]model.Candidate, n)
		kindOf := make(map[string]string, n)
		poolKinds := make(map[string]bool)
		for i := range candidates {
			kind := kinds[rng.Intn(len(kinds))]
			poolKinds[kind] = true
			c := model.Candidate{
				PlanID:      fmt.Sprintf("plan-%d-%d", trial, i),
				Kind:        kind,
				Curation:    rng.Float64(),
				Trending:    rng.Float64(),
				Engagement:  rng.Float64(),
				HDAvailable: rng.Intn(2) == 0,
			}
			if rng.Intn(2) == 0 {
				c.HasDuration = true
				c.DurationSec = 30 + rng.Float64()*1200
			}
			if rng.Intn(2) == 0 {
				c.HasCreatedAt = true
				c.CreatedAt = now.Add(-time.Duration(rng.Intn(72)) * time.Hour)
			}
			candidates[i] = c
			kindOf[c.PlanID] = kind
		}

		snapshot := defaultSnapshot(t)
		snapshot.Selection.Temperature = 0.2 + rng.Float64()*1.8
		snapshot.Knobs.PlanSelectionBias = -0.2 + rng.Float64()*0.4
		topK := 1 + rng.Intn(15)
		snapshot.Selection.TopK = &topK
		snapshot.Selection.DiversityQuota = rng.Float64()
		seed := rng.Uint64()
		snapshot.Scheduling.GlobalSeed = &seed

		first := p.Run(candidates, snapshot, now)
		second := p.Run(candidates, snapshot, now)

		// Determinism: identical decision lists, bit for bit.
		if len(first.Decisions) != len(second.Decisions) {
			t.Fatalf("trial %d: decision count diverged: %d vs %d", trial, len(first.Decisions), len(second.Decisions))
		}
		for i := range first.Decisions {
			if first.Decisions[i] != second.Decisions[i] {
				t.Fatalf("trial %d: nondeterministic decision at %d: %+v vs %+v", trial, i, first.Decisions[i], second.Decisions[i])
			}
		}

		topKEff := topK
		if topKEff > n {
			topKEff = n
		}
		if len(first.Decisions) != topKEff {
			t.Fatalf("trial %d: batch size %d, want %d", trial, len(first.Decisions), topKEff)
		}

		// Score bounds: base lies in [-0.25, 1.1], so every final score
		// must lie in [(base_min+bias)/t, (base_max+bias)/t].
		temp := snapshot.Selection.Temperature
		lo := (-0.25 + snapshot.Knobs.PlanSelectionBias) / temp
		hi := (1.1 + snapshot.Knobs.PlanSelectionBias) / temp
		for _, d := range first.Decisions {
			if d.Score < lo-1e-9 || d.Score > hi+1e-9 {
				t.Fatalf("trial %d: score %.6f outside [%.6f, %.6f]", trial, d.Score, lo, hi)
			}
		}

		// Diversity: at least min(ceil(top_k*quota), kinds-in-pool)
		// distinct kinds in the batch.
		selectedKinds := make(map[string]bool)
		for _, d := range first.Decisions {
			selectedKinds[kindOf[d.PlanID]] = true
		}
		wantKinds := minDiverseCount(topKEff, snapshot.Selection.DiversityQuota)
		if len(poolKinds) < wantKinds {
			wantKinds = len(poolKinds)
		}
		if len(selectedKinds) < wantKinds {
			t.Fatalf("trial %d: %d distinct kinds in batch, want >= %d (pool has %d, quota %.2f, top_k %d)",
				trial, len(selectedKinds), wantKinds, len(poolKinds), snapshot.Selection.DiversityQuota, topKEff)
		}

		// Entropy is 0 iff the batch is single-kind.
		if len(selectedKinds) == 1 && first.Entropy != 0 {
			t.Fatalf("trial %d: single-kind batch with entropy %.6f", trial, first.Entropy)
		}
		if len(selectedKinds) > 1 && first.Entropy <= 0 {
			t.Fatalf("trial %d: %d-kind batch with entropy %.6f", trial, len(selectedKinds), first.Entropy)
		}
	}
}

func TestRun_EmptyCandidates(t *testing.T) {
	p := New(DefaultConfig(), nil)
	result := p.Run(nil, defaultSnapshot(t), time.Now())
	if len(result.Decisions) != 0 {
		t.Errorf("expected idle result for empty input, got %d decisions", len(result.Decisions))
	}
}
