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
	"sync"
	"time"

	"vvtvcore/pkg/vsa"
)

// TokenBucket rate-limits "apply" decisions: default capacity 6 tokens,
// refilling 6/hour, one token spent per apply. The pkg/vsa accumulator is
// its ledger: scalar holds the current token capacity, and spends are
// modeled as TryConsume/Commit on the volatile vector. Refill is computed
// lazily on every Take call rather than by a background ticker, since
// curator reviews are infrequent and a ticker would be wasted work.
type TokenBucket struct {
	mu            sync.Mutex
	capacity      float64
	refillPerHour float64
	tokens        float64
	lastRefill    time.Time
	ledger        *vsa.VSA
}

// NewTokenBucket creates a token bucket starting full.
func NewTokenBucket(capacity, refillPerHour float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:      capacity,
		refillPerHour: refillPerHour,
		tokens:        capacity,
		lastRefill:    now,
		ledger:        vsa.New(int64(capacity * 1000)), // milli-token fixed point scalar
	}
}

// Take attempts to spend amount tokens, refilling first based on elapsed
// time. Returns whether the spend succeeded.
func (b *TokenBucket) Take(amount float64, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	if b.tokens < amount {
		return false
	}

	// Route the spend through the VSA ledger so the bucket's accounting is
	// the same consume-then-commit shape used across the control plane's
	// other rate-limited resources, not a bespoke float decrement.
	milliAmount := int64(amount * 1000)
	if !b.ledger.TryConsume(milliAmount) {
		return false
	}
	b.ledger.Commit(milliAmount)
	b.tokens -= amount
	return true
}

// refill applies elapsed*refillPerHour/3600 tokens, capped at capacity.
func (b *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * (b.refillPerHour / 3600.0)
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
	// Re-scale the ledger's scalar so Available() stays consistent with
	// the float token count (the ledger tracks spend accounting; the
	// refillable ceiling moves with wall-clock time).
	b.ledger = vsa.New(int64(b.tokens * 1000))
}

// Tokens returns the current token count (after lazily refilling).
func (b *TokenBucket) Tokens(now time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	return b.tokens
}

// UsedFraction returns the fraction of capacity currently consumed, for the
// curator_apply_budget_used_pct metric.
func (b *TokenBucket) UsedFraction(now time.Time) float64 {
	if b.capacity <= 0 {
		return 0
	}
	return 1 - (b.Tokens(now) / b.capacity)
}
