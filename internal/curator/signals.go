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

// Package curator implements the Curator Vigilante: an advisory
// safety layer that detects pathological selections and, under a
// rate-limited token budget, is permitted to reorder the batch.
package curator

import (
	"math"
	"time"

	"vvtvcore/internal/model"
)

// SignalResult is one named signal's value and whether it triggered.
type SignalResult struct {
	Name      string
	Value     float64
	Triggered bool
}

const (
	thresholdPaletteSimilarity = 0.92
	thresholdTagDuplication    = 0.70
	thresholdDurationStreak    = 4.0
	thresholdBucketImbalance   = 0.55
	thresholdNoveltyKLD        = 0.25
	thresholdCadenceVariation  = 0.05 // triggers when <= this (flat cadence)
)

var noveltyReferenceDistribution = [3]float64{0.45, 0.35, 0.20}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func jaccardIndex(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// paletteSimilarity is the mean pairwise cosine similarity between adjacent
// items' desire vectors. Requires >= 2 candidates; pairs missing a desire
// vector on either side contribute 0.
func paletteSimilarity(items []model.Candidate) SignalResult {
	if len(items) < 2 {
		return SignalResult{Name: "palette_similarity"}
	}
	var sum float64
	pairs := len(items) - 1
	for i := 0; i < pairs; i++ {
		sum += cosineSimilarity(items[i].DesireVector, items[i+1].DesireVector)
	}
	value := sum / float64(pairs)
	return SignalResult{Name: "palette_similarity", Value: value, Triggered: value >= thresholdPaletteSimilarity}
}

// tagDuplication is the mean pairwise Jaccard index over adjacent items' tags.
func tagDuplication(items []model.Candidate) SignalResult {
	if len(items) < 2 {
		return SignalResult{Name: "tag_duplication"}
	}
	var sum float64
	pairs := len(items) - 1
	for i := 0; i < pairs; i++ {
		sum += jaccardIndex(items[i].TagSet(), items[i+1].TagSet())
	}
	value := sum / float64(pairs)
	return SignalResult{Name: "tag_duplication", Value: value, Triggered: value >= thresholdTagDuplication}
}

// durationStreak is the longest run of consecutive items whose durations
// differ by <= 20 seconds.
func durationStreak(items []model.Candidate) SignalResult {
	longest := 0
	current := 0
	for i, c := range items {
		if i == 0 || !c.HasDuration || !items[i-1].HasDuration {
			current = 1
		} else if math.Abs(c.DurationSec-items[i-1].DurationSec) <= 20 {
			current++
		} else {
			current = 1
		}
		if current > longest {
			longest = current
		}
	}
	value := float64(longest)
	return SignalResult{Name: "duration_streak", Value: value, Triggered: value >= thresholdDurationStreak}
}

// bucketImbalance is (max_count - min_count) / (max_count + min_count)
// across kinds in the batch.
func bucketImbalance(items []model.Candidate) SignalResult {
	if len(items) == 0 {
		return SignalResult{Name: "bucket_imbalance"}
	}
	counts := make(map[string]int)
	for _, c := range items {
		counts[c.Kind]++
	}
	maxCount, minCount := 0, math.MaxInt
	for _, n := range counts {
		if n > maxCount {
			maxCount = n
		}
		if n < minCount {
			minCount = n
		}
	}
	if maxCount+minCount == 0 {
		return SignalResult{Name: "bucket_imbalance"}
	}
	value := float64(maxCount-minCount) / float64(maxCount+minCount)
	return SignalResult{Name: "bucket_imbalance", Value: value, Triggered: value >= thresholdBucketImbalance}
}

func ageBucketIndex(ageHours float64) int {
	switch {
	case ageHours <= 12:
		return 0
	case ageHours <= 24:
		return 1
	default:
		return 2
	}
}

// noveltyTemporalKLD is the KL divergence of the selected items' age-bucket
// distribution against the reference distribution {0.45, 0.35, 0.20}.
func noveltyTemporalKLD(items []model.Candidate, now time.Time) SignalResult {
	if len(items) == 0 {
		return SignalResult{Name: "novelty_temporal_kld"}
	}
	var counts [3]float64
	for _, c := range items {
		counts[ageBucketIndex(c.AgeHours(now))]++
	}
	n := float64(len(items))
	var kld float64
	for i, count := range counts {
		p := count / n
		if p == 0 {
			continue
		}
		ref := noveltyReferenceDistribution[i]
		if ref < 1e-6 {
			ref = 1e-6
		}
		kld += p * math.Log(p/ref)
	}
	return SignalResult{Name: "novelty_temporal_kld", Value: kld, Triggered: kld >= thresholdNoveltyKLD}
}

// cadenceVariation is the stddev of engagement scores. Triggers when flat
// (<= threshold), unlike the other five signals which trigger on excess.
func cadenceVariation(items []model.Candidate) SignalResult {
	if len(items) == 0 {
		return SignalResult{Name: "cadence_variation"}
	}
	n := float64(len(items))
	var mean float64
	for _, c := range items {
		mean += c.Engagement
	}
	mean /= n
	var variance float64
	for _, c := range items {
		d := c.Engagement - mean
		variance += d * d
	}
	variance /= n
	stddev := math.Sqrt(variance)
	return SignalResult{Name: "cadence_variation", Value: stddev, Triggered: stddev <= thresholdCadenceVariation}
}

// EvaluateSignals runs all six signals over the current selection.
func EvaluateSignals(items []model.Candidate, now time.Time) []SignalResult {
	return []SignalResult{
		paletteSimilarity(items),
		tagDuplication(items),
		durationStreak(items),
		bucketImbalance(items),
		noveltyTemporalKLD(items, now),
		cadenceVariation(items),
	}
}

// Confidence returns triggered_count / total_signals.
func Confidence(signals []SignalResult) float64 {
	if len(signals) == 0 {
		return 0
	}
	triggered := 0
	for _, s := range signals {
		if s.Triggered {
			triggered++
		}
	}
	return float64(triggered) / float64(len(signals))
}
