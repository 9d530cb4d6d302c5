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
	"encoding/binary"
	"hash/fnv"
	"time"

	"vvtvcore/internal/model"
)

// GenerateSlotSeed derives the deterministic 64-bit slot seed from
// (epoch_index, window_id, global_seed). Reproducibility is only required
// within one running system, so FNV-1a over the three values'
// little-endian bytes is sufficient.
func GenerateSlotSeed(now time.Time, slotDuration time.Duration, windowID, globalSeed uint64) model.SlotSeed {
	slotSeconds := int64(slotDuration.Seconds())
	if slotSeconds < 60 {
		slotSeconds = 60
	}
	epochIndex := now.Unix() / slotSeconds

	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(epochIndex))
	binary.LittleEndian.PutUint64(buf[8:16], windowID)
	binary.LittleEndian.PutUint64(buf[16:24], globalSeed)

	h := fnv.New64a()
	h.Write(buf[:])
	return model.SlotSeed(h.Sum64())
}

// splitMix64 is a small, fast, deterministic PRNG used to expand a 64-bit
// slot seed into a stream of uniform draws for Gumbel perturbation. It is a
// standard public-domain construction (Vigna); any seeded stream-expander
// would do.
type splitMix64 struct{ state uint64 }

func newSplitMix64(seed uint64) *splitMix64 { return &splitMix64{state: seed} }

func (s *splitMix64) next() uint64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// uniformOpen01 draws u in (0, 1).
func (s *splitMix64) uniformOpen01() float64 {
	for {
		// 53 bits of mantissa precision, shifted into [0, 1).
		v := float64(s.next()>>11) / (1 << 53)
		if v > 0 {
			return v
		}
		// v == 0 would make -log(-log(u)) undefined; redraw (probability ~0).
	}
}
