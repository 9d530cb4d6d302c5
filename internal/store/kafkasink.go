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

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"vvtvcore/internal/model"
)

// KafkaProducer is a minimal abstraction over a Kafka client.
// Implementations should enable idempotent production so broker-side dedup
// on the message key preserves the sink's exactly-once-per-(plan, slot)
// contract across producer retries.
//
// Requirements:
//   - Idempotent producer ON (enable.idempotence=true)
//   - Use the decision key (plan_id:slot_seed) as the Kafka message key so
//     broker dedup + per-key ordering are preserved
//   - Acks=all is recommended
//
// Note: We intentionally avoid importing a specific Kafka library.
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// DecisionMessage is the serialized payload sent to Kafka, one per
// SelectionDecision. Message key: "plan_id:slot_seed"; downstream playout
// consumers must track the last applied key per plan and ignore duplicates.
type DecisionMessage struct {
	PlanID    string  `json:"plan_id"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
	SlotSeed  uint64  `json:"slot_seed"`
	TsUnixMs  int64   `json:"ts_unix_ms"`
}

// KafkaSelectionSink publishes selection decisions as Kafka messages, an
// alternative transport to the Redis-backed SelectionSink for topologies
// where the playout queue consumes a broker instead of polling a set.
// Idempotency per (plan_id, slot_seed) comes from:
//   - Producer retries are deduplicated by the broker when idempotence is
//     enabled (the message key is the (plan, slot) pair)
//   - Consumers must ignore keys they have already applied
//
// This sink does not mark plans selected locally; it delegates that to
// downstream consumers.
type KafkaSelectionSink struct {
	producer       KafkaProducer
	topic          string
	defaultTimeout time.Duration
}

// NewKafkaSelectionSink wraps an injected producer and topic.
func NewKafkaSelectionSink(p KafkaProducer, topic string) *KafkaSelectionSink {
	return &KafkaSelectionSink{producer: p, topic: topic, defaultTimeout: 10 * time.Second}
}

func decisionKey(planID string, slotSeed model.SlotSeed) []byte {
	return []byte(planID + ":" + strconv.FormatUint(uint64(slotSeed), 10))
}

// PublishDecisions produces one message per decision. An empty batch is a
// no-op.
func (k *KafkaSelectionSink) PublishDecisions(ctx context.Context, decisions []model.SelectionDecision, slotSeed model.SlotSeed) error {
	if len(decisions) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && k.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.defaultTimeout)
		defer cancel()
	}
	nowMs := time.Now().UnixMilli()
	for _, d := range decisions {
		msg := DecisionMessage{
			PlanID:    d.PlanID,
			Score:     d.Score,
			Rationale: d.Rationale,
			SlotSeed:  uint64(slotSeed),
			TsUnixMs:  nowMs,
		}
		b, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal kafka decision message: %w", err)
		}
		headers := map[string]string{"content-type": "application/json"}
		if err := k.producer.Produce(ctx, k.topic, decisionKey(d.PlanID, slotSeed), b, headers); err != nil {
			return fmt.Errorf("kafka produce plan=%s slot=%d: %w", d.PlanID, slotSeed, err)
		}
	}
	return nil
}

// LoggingKafkaProducer is a broker-less stand-in that logs each produce and
// pretends it applied, the same demo shape as LoggingRedisEvaler. Not for
// production use.
type LoggingKafkaProducer struct{}

func (LoggingKafkaProducer) Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fmt.Printf("[kafka-sink-demo] PRODUCE topic=%s key=%s value=%s\n", topic, string(key), string(value))
	return nil
}
