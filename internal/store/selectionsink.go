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

// Package store implements the external interfaces the core consumes and
// produces: candidate feed, selection sink, and snapshot store.
package store

import (
	"context"
	"fmt"
	"strconv"

	redis "github.com/redis/go-redis/v9"

	"vvtvcore/internal/model"
)

// selectionMarkerScript marks a (plan_id, slot_seed) pair selected exactly
// once: SETNX the idempotency marker, and only on first success does it
// add the plan to the selected set (SETNX marker -> guarded mutation ->
// EXPIRE). A retried publish of the same slot is a no-op.
const selectionMarkerScript = `
local markerKey = KEYS[1]
local setKey = KEYS[2]
local planID = ARGV[1]
local ttlSeconds = tonumber(ARGV[2])
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('SADD', setKey, planID)
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', markerKey, ttlSeconds)
  end
  return 1
else
  return 0
end
`

// RedisEvaler abstracts the minimal surface the sink needs from a Redis
// client, matching the shape of github.com/redis/go-redis/v9's Cmdable.Eval.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// GoRedisEvaler wraps a real go-redis client.
type GoRedisEvaler struct{ client *redis.Client }

// NewGoRedisEvaler connects to addr and returns an evaler backed by it.
func NewGoRedisEvaler(addr string) *GoRedisEvaler {
	return &GoRedisEvaler{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.client.Eval(ctx, script, keys, args...).Result()
}

// LoggingRedisEvaler is a Redis-less stand-in that just logs the Lua
// evaluation and pretends it applied, so vvtvctl can run without a live
// Redis for local development. Not for production use.
type LoggingRedisEvaler struct{}

func (LoggingRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	fmt.Printf("[selection-sink-demo] EVAL KEYS=%v ARGS=%v\n", keys, args)
	return int64(1), nil
}

// SelectionSink publishes SelectionDecisions and marks their source plans
// selected, idempotently per (plan_id, slot_seed).
type SelectionSink struct {
	client   RedisEvaler
	setKey   string
	markerTTLSeconds int
}

// NewSelectionSink constructs a sink. setKey names the Redis set collecting
// selected plan IDs (e.g. "vvtv:selected_plans"); markerTTLSeconds bounds
// idempotency-marker growth.
func NewSelectionSink(client RedisEvaler, setKey string, markerTTLSeconds int) *SelectionSink {
	if setKey == "" {
		setKey = "vvtv:selected_plans"
	}
	if markerTTLSeconds <= 0 {
		markerTTLSeconds = 24 * 3600
	}
	return &SelectionSink{client: client, setKey: setKey, markerTTLSeconds: markerTTLSeconds}
}

func selectionMarkerKey(planID string, slotSeed model.SlotSeed) string {
	return fmt.Sprintf("vvtv:selected_marker:%s:%s", planID, strconv.FormatUint(uint64(slotSeed), 10))
}

// PublishDecisions marks the decisions' plans selected, one atomic script
// call per decision; an error part-way through leaves the earlier
// decisions marked. Calling this twice with the same (plan_id, slot_seed)
// pairs is a no-op the second time.
func (s *SelectionSink) PublishDecisions(ctx context.Context, decisions []model.SelectionDecision, slotSeed model.SlotSeed) error {
	for _, d := range decisions {
		keys := []string{selectionMarkerKey(d.PlanID, slotSeed), s.setKey}
		args := []interface{}{d.PlanID, s.markerTTLSeconds}
		if _, err := s.client.Eval(ctx, selectionMarkerScript, keys, args...); err != nil {
			return fmt.Errorf("publish decision plan=%s slot=%d: %w", d.PlanID, slotSeed, err)
		}
	}
	return nil
}
