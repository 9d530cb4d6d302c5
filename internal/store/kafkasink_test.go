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
	"errors"
	"testing"

	"vvtvcore/internal/model"
)

type fakeKafkaProducer struct {
	calls []struct {
		topic   string
		key     []byte
		value   []byte
		headers map[string]string
	}
	returnErr error
}

func (f *fakeKafkaProducer) Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	if f.returnErr != nil {
		return f.returnErr
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	cp := struct {
		topic   string
		key     []byte
		value   []byte
		headers map[string]string
	}{
		topic:   topic,
		key:     append([]byte(nil), key...),
		value:   append([]byte(nil), value...),
		headers: headers,
	}
	f.calls = append(f.calls, cp)
	return nil
}

func TestKafkaSelectionSink_Success(t *testing.T) {
	fk := &fakeKafkaProducer{}
	k := NewKafkaSelectionSink(fk, "vvtv-decisions")
	decisions := []model.SelectionDecision{{PlanID: "p1", Score: 0.78, Rationale: "base=0.36"}}
	if err := k.PublishDecisions(context.Background(), decisions, model.SlotSeed(42)); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if len(fk.calls) != 1 {
		t.Fatalf("expected 1 produce, got %d", len(fk.calls))
	}
	c := fk.calls[0]
	if c.topic != "vvtv-decisions" {
		t.Fatalf("topic mismatch: %s", c.topic)
	}
	if string(c.key) != "p1:42" {
		t.Fatalf("key mismatch: %s", string(c.key))
	}
	var msg DecisionMessage
	if err := json.Unmarshal(c.value, &msg); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if msg.PlanID != "p1" || msg.SlotSeed != 42 {
		t.Fatalf("msg mismatch: %+v", msg)
	}
	if c.headers["content-type"] != "application/json" {
		t.Fatalf("missing/ct header: %v", c.headers)
	}
}

func TestKafkaSelectionSink_Empty(t *testing.T) {
	fk := &fakeKafkaProducer{}
	k := NewKafkaSelectionSink(fk, "t")
	if err := k.PublishDecisions(context.Background(), nil, model.SlotSeed(1)); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestKafkaSelectionSink_ProduceError(t *testing.T) {
	fk := &fakeKafkaProducer{returnErr: errors.New("broker down")}
	k := NewKafkaSelectionSink(fk, "t")
	err := k.PublishDecisions(context.Background(), []model.SelectionDecision{{PlanID: "p1"}}, model.SlotSeed(1))
	if err == nil {
		t.Fatal("expected produce error to propagate")
	}
}
