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

package curator

import (
	"time"

	"vvtvcore/internal/model"
)

// noveltyScore weights recency and tag-uniqueness equally:
// recency = clip(age_hours/72, 0, 1);
// uniqueness = mean(1 - jaccard(tags, other.tags)) over the rest of items.
func noveltyScore(item model.Candidate, items []model.Candidate, now time.Time) float64 {
	recency := item.AgeHours(now) / 72.0
	if recency < 0 {
		recency = 0
	}
	if recency > 1 {
		recency = 1
	}

	othersCount := 0
	var uniquenessSum float64
	itemTags := item.TagSet()
	for _, other := range items {
		if other.PlanID == item.PlanID {
			continue
		}
		uniquenessSum += 1 - jaccardIndex(itemTags, other.TagSet())
		othersCount++
	}
	uniqueness := 1.0
	if othersCount > 0 {
		uniqueness = uniquenessSum / float64(othersCount)
	}

	return recency*0.5 + uniqueness*0.5
}

// DefaultMaxReorderDistance is the default cap on how far the reorder rule
// may move the highest-novelty item toward the front of the batch.
const DefaultMaxReorderDistance = 4

// reorder finds the item with the highest novelty score and moves it
// toward index 0 by at most maxDistance positions.
func reorder(items []model.Candidate, now time.Time, maxDistance int) []model.Candidate {
	if len(items) < 2 {
		return items
	}

	bestIdx := 0
	bestScore := noveltyScore(items[0], items, now)
	for i := 1; i < len(items); i++ {
		s := noveltyScore(items[i], items, now)
		if s > bestScore {
			bestScore = s
			bestIdx = i
		}
	}

	target := bestIdx - maxDistance
	if target < 0 {
		target = 0
	}
	if target == bestIdx {
		return items
	}

	out := make([]model.Candidate, 0, len(items))
	out = append(out, items[:target]...)
	out = append(out, items[bestIdx])
	out = append(out, items[target:bestIdx]...)
	out = append(out, items[bestIdx+1:]...)
	return out
}
