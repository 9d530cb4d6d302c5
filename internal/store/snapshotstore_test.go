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
	"testing"

	"vvtvcore/internal/businesslogic"
)

func storedSnapshot() businesslogic.Snapshot {
	s := businesslogic.Snapshot{PolicyVersion: "v7", Env: "test"}
	s.Scheduling.SlotDurationMinutes = 15
	s.Selection.Method = businesslogic.SelectionGumbelTopK
	s.Selection.Temperature = 0.85
	topK := 12
	s.Selection.TopK = &topK
	s.Selection.DiversityQuota = 0.3
	s.Knobs.PlanSelectionBias = 0.05
	return s
}

// Round-trip property: publish_snapshot(s) then load_snapshot(hash(s))
// yields a snapshot with the same content hash and fields.
func TestInMemorySnapshotStore_RoundTrip(t *testing.T) {
	s := NewInMemorySnapshotStore()
	snap := storedSnapshot()

	hash, err := s.PublishSnapshot(context.Background(), snap, "", "initial deploy")
	if err != nil {
		t.Fatalf("PublishSnapshot: %v", err)
	}
	wantHash, err := snap.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash != wantHash {
		t.Fatalf("published hash %s, want content hash %s", hash, wantHash)
	}

	loaded, err := s.LoadSnapshot(context.Background(), hash)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	loadedHash, err := loaded.Hash()
	if err != nil {
		t.Fatalf("Hash (loaded): %v", err)
	}
	if loadedHash != hash {
		t.Fatalf("loaded snapshot hashes to %s, want %s", loadedHash, hash)
	}
	if loaded.PolicyVersion != snap.PolicyVersion ||
		loaded.Selection.Temperature != snap.Selection.Temperature ||
		loaded.Knobs.PlanSelectionBias != snap.Knobs.PlanSelectionBias {
		t.Fatalf("loaded snapshot fields diverged: %+v", loaded)
	}
	if loaded.Rationale != "initial deploy" {
		t.Fatalf("rationale = %q, want %q", loaded.Rationale, "initial deploy")
	}
}

// Republishing an identical snapshot is a no-op, the in-memory analogue of
// the Postgres store's ON CONFLICT (hash) DO NOTHING: same hash back, one
// stored entry, and the first publish's metadata wins.
func TestInMemorySnapshotStore_RepublishIsIdempotent(t *testing.T) {
	s := NewInMemorySnapshotStore()
	snap := storedSnapshot()

	hash1, err := s.PublishSnapshot(context.Background(), snap, "", "first")
	if err != nil {
		t.Fatalf("PublishSnapshot: %v", err)
	}
	hash2, err := s.PublishSnapshot(context.Background(), snap, "parent-x", "retry")
	if err != nil {
		t.Fatalf("PublishSnapshot (retry): %v", err)
	}
	if hash1 != hash2 {
		t.Fatalf("republish changed the hash: %s vs %s", hash1, hash2)
	}
	if len(s.byID) != 1 {
		t.Fatalf("store holds %d snapshots, want 1", len(s.byID))
	}
	loaded, err := s.LoadSnapshot(context.Background(), hash1)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if loaded.Rationale != "first" || loaded.ParentHash != "" {
		t.Fatalf("republish overwrote the original publish metadata: %+v", loaded)
	}
}

func TestInMemorySnapshotStore_UnknownHash(t *testing.T) {
	s := NewInMemorySnapshotStore()
	if _, err := s.LoadSnapshot(context.Background(), "no-such-hash"); err == nil {
		t.Fatal("expected error for unknown snapshot hash")
	}
}
