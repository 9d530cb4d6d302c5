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
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"vvtvcore/internal/businesslogic"
	"vvtvcore/internal/errs"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS snapshots (
//   hash TEXT PRIMARY KEY,
//   parent_hash TEXT,
//   rationale TEXT NOT NULL,
//   body JSONB NOT NULL,
//   deployed_at TIMESTAMPTZ NOT NULL DEFAULT now()
// );
// CREATE INDEX IF NOT EXISTS idx_snapshots_deployed_at ON snapshots(deployed_at);

// SnapshotStore implements publish_snapshot/load_snapshot against a
// Postgres database (database/sql + github.com/lib/pq, ON CONFLICT DO
// NOTHING idempotent inserts). Snapshots are immutable once published, so
// there is no update path, only insert and read.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore wraps an already-opened *sql.DB (driver "postgres").
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Open dials a Postgres connection string via the lib/pq driver.
func Open(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, "open postgres connection", err)
	}
	return db, nil
}

// PublishSnapshot inserts a new immutable snapshot and returns its hash.
// Re-publishing an identical snapshot (same content hash) is a no-op.
func (s *SnapshotStore) PublishSnapshot(ctx context.Context, snapshot businesslogic.Snapshot, parentHash, rationale string) (string, error) {
	hash, err := snapshot.Hash()
	if err != nil {
		return "", errs.Wrap(errs.KindConfiguration, "compute snapshot hash", err)
	}
	body, err := snapshot.MarshalJSON()
	if err != nil {
		return "", errs.Wrap(errs.KindIO, "marshal snapshot body", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots(hash, parent_hash, rationale, body, deployed_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (hash) DO NOTHING`,
		hash, nullIfEmpty(parentHash), rationale, body, snapshot.DeployedAt)
	if err != nil {
		return "", errs.Wrap(errs.KindIO, fmt.Sprintf("insert snapshot %s", hash), err)
	}
	return hash, nil
}

// LoadSnapshot retrieves a previously published snapshot by hash.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, hash string) (businesslogic.Snapshot, error) {
	var body []byte
	var deployedAt time.Time
	row := s.db.QueryRowContext(ctx, `SELECT body, deployed_at FROM snapshots WHERE hash = $1`, hash)
	if err := row.Scan(&body, &deployedAt); err != nil {
		if err == sql.ErrNoRows {
			return businesslogic.Snapshot{}, errs.New(errs.KindConfiguration, "no snapshot with hash "+hash)
		}
		return businesslogic.Snapshot{}, errs.Wrap(errs.KindIO, "load snapshot "+hash, err)
	}
	snap, err := businesslogic.UnmarshalJSON(body)
	if err != nil {
		return businesslogic.Snapshot{}, errs.Wrap(errs.KindIO, "unmarshal snapshot "+hash, err)
	}
	snap.DeployedAt = deployedAt
	return snap, nil
}

// InMemorySnapshotStore is a Postgres-less stand-in: keeps published
// snapshots in a map instead of a real database, for local development
// and tests.
type InMemorySnapshotStore struct {
	mu   sync.RWMutex
	byID map[string]businesslogic.Snapshot
}

// NewInMemorySnapshotStore constructs an empty in-memory snapshot store.
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{byID: make(map[string]businesslogic.Snapshot)}
}

func (s *InMemorySnapshotStore) PublishSnapshot(ctx context.Context, snapshot businesslogic.Snapshot, parentHash, rationale string) (string, error) {
	hash, err := snapshot.Hash()
	if err != nil {
		return "", errs.Wrap(errs.KindConfiguration, "compute snapshot hash", err)
	}
	snapshot.ParentHash = parentHash
	snapshot.Rationale = rationale
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[hash]; !exists {
		s.byID[hash] = snapshot
		fmt.Printf("[snapshot-store-demo] published %s (parent=%s): %s\n", hash, parentHash, rationale)
	}
	return hash, nil
}

func (s *InMemorySnapshotStore) LoadSnapshot(ctx context.Context, hash string) (businesslogic.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byID[hash]
	if !ok {
		return businesslogic.Snapshot{}, errs.New(errs.KindConfiguration, "no snapshot with hash "+hash)
	}
	return snap, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
