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
	"time"

	"github.com/lib/pq"

	"vvtvcore/internal/errs"
	"vvtvcore/internal/model"
)

// CandidateFeed implements fetch_candidates: sorted oldest-first
// by creation timestamp, at most limit items, all with status == "planned".
type CandidateFeed interface {
	FetchCandidates(ctx context.Context, limit int) ([]model.Candidate, error)
}

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS candidates (
//   plan_id TEXT PRIMARY KEY,
//   kind TEXT NOT NULL,
//   curation DOUBLE PRECISION NOT NULL,
//   trending DOUBLE PRECISION NOT NULL,
//   engagement DOUBLE PRECISION NOT NULL,
//   duration_sec DOUBLE PRECISION,
//   created_at TIMESTAMPTZ,
//   tags TEXT[] NOT NULL DEFAULT '{}',
//   hd_available BOOLEAN NOT NULL DEFAULT false,
//   desire_vector DOUBLE PRECISION[] NOT NULL DEFAULT '{}',
//   status TEXT NOT NULL DEFAULT 'planned'
// );
// CREATE INDEX IF NOT EXISTS idx_candidates_status_created ON candidates(status, created_at);

// PostgresCandidateFeed reads Candidates from the same Postgres database
// the snapshot store uses, via database/sql + github.com/lib/pq.
type PostgresCandidateFeed struct {
	db *sql.DB
}

// NewPostgresCandidateFeed wraps an already-opened *sql.DB.
func NewPostgresCandidateFeed(db *sql.DB) *PostgresCandidateFeed {
	return &PostgresCandidateFeed{db: db}
}

func (f *PostgresCandidateFeed) FetchCandidates(ctx context.Context, limit int) ([]model.Candidate, error) {
	rows, err := f.db.QueryContext(ctx, `
		SELECT plan_id, kind, curation, trending, engagement, duration_sec,
		       created_at, tags, hd_available, desire_vector
		FROM candidates
		WHERE status = 'planned'
		ORDER BY created_at ASC NULLS LAST
		LIMIT $1`, limit)
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, "query candidates", err)
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		var durationSec sql.NullFloat64
		var createdAt sql.NullTime
		var tags pq.StringArray
		var desireVector pq.Float64Array
		if err := rows.Scan(&c.PlanID, &c.Kind, &c.Curation, &c.Trending, &c.Engagement,
			&durationSec, &createdAt, &tags, &c.HDAvailable, &desireVector); err != nil {
			return nil, errs.Wrap(errs.KindIO, "scan candidate row", err)
		}
		c.HasDuration = durationSec.Valid
		c.DurationSec = durationSec.Float64
		c.HasCreatedAt = createdAt.Valid
		c.CreatedAt = createdAt.Time
		c.Tags = []string(tags)
		c.DesireVector = []float64(desireVector)
		c.Status = "planned"
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindIO, "iterate candidate rows", err)
	}
	return out, nil
}

// StaticCandidateFeed serves the "planned" entries of a fixed in-memory
// slice, oldest-first, for tests and local development without a database.
type StaticCandidateFeed struct {
	Candidates []model.Candidate
}

func (f StaticCandidateFeed) FetchCandidates(ctx context.Context, limit int) ([]model.Candidate, error) {
	var sorted []model.Candidate
	for _, c := range f.Candidates {
		if c.Status == "planned" {
			sorted = append(sorted, c)
		}
	}
	sortByCreatedAt(sorted)
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

func sortByCreatedAt(cs []model.Candidate) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && less(cs[j], cs[j-1]); j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

func less(a, b model.Candidate) bool {
	at, bt := effectiveTime(a), effectiveTime(b)
	return at.Before(bt)
}

func effectiveTime(c model.Candidate) time.Time {
	if c.HasCreatedAt {
		return c.CreatedAt
	}
	return time.Unix(0, 0)
}
