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

package driftmonitor

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vvtvcore/internal/model"
)

func recordWithError(predictionError float64, ts time.Time, deploymentID string) model.PredictionErrorRecord {
	// PredictionError() = |predicted - actual| / max(|predicted|, eps); pin
	// predicted=1.0 so actual = 1 - predictionError reproduces it exactly.
	return model.PredictionErrorRecord{
		Timestamp:      ts,
		Parameter:      "selection_temperature",
		PredictedDelta: 1.0,
		ActualDelta:    1.0 - predictionError,
		DeploymentID:   deploymentID,
	}
}

// p50 prediction error 0.40 (accuracy 0.60, above the
// 0.3 max_prediction_error_threshold) sustained for 3 consecutive failing
// records trips a 48h pause; a second consecutive-failure episode doubles
// it to 96h per the backoff multiplier.
func TestRecordPredictionError_PauseAndBackoff(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig("")
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Every record in the window holds prediction_error=0.40, so p50 stays
	// pinned at 0.40 throughout: the first min_samples_for_analysis records
	// bring the window up to the analysis threshold (the last of them is
	// the first failing evaluation), and the next two keep evaluating at
	// the same p50: three consecutive failures in a row.
	for i := 0; i < cfg.MinSamplesForAnalysis+2; i++ {
		ts := now.Add(time.Duration(i) * time.Hour)
		_ = m.RecordPredictionError(recordWithError(0.40, ts, "dep-bad"), ts)
	}

	if m.PauseState() == nil {
		t.Fatalf("expected pause after 3 consecutive failures, accuracy=%.2f risk=%v", m.accuracy, m.riskLevel)
	}
	gotHours := m.PauseState().ResumeAt.Sub(m.PauseState().PausedAt).Hours()
	if gotHours < 47.9 || gotHours > 48.1 {
		t.Errorf("first pause duration = %.2fh, want ~48h", gotHours)
	}

	// Resume and trip the pause a second time; backoff must double. The
	// window already holds >= min_samples failing records, so three more
	// failing records reach three fresh consecutive failures immediately.
	m.Resume()
	for i := 0; i < 3; i++ {
		ts := now.Add(time.Duration(cfg.MinSamplesForAnalysis+2+i) * time.Hour)
		m.RecordPredictionError(recordWithError(0.40, ts, "dep-bad-2"), ts)
	}
	if m.PauseState() == nil {
		t.Fatal("expected second pause")
	}
	gotHours = m.PauseState().ResumeAt.Sub(m.PauseState().PausedAt).Hours()
	if gotHours < 95.9 || gotHours > 96.1 {
		t.Errorf("second pause duration = %.2fh, want ~96h", gotHours)
	}
}

func TestRiskLevel_TopDownLadder(t *testing.T) {
	cases := []struct {
		accuracy            float64
		consecutiveFailures int
		targetMissed        bool
		want                model.DriftRiskLevel
	}{
		{0.4, 0, false, model.RiskCritical},
		{0.55, 0, false, model.RiskHigh},
		{0.9, 2, false, model.RiskHigh},
		{0.65, 0, false, model.RiskMedium},
		{0.9, 0, true, model.RiskMedium},
		{0.9, 0, false, model.RiskLow},
	}
	for _, tc := range cases {
		got := riskLevel(tc.accuracy, tc.consecutiveFailures, tc.targetMissed)
		if got != tc.want {
			t.Errorf("riskLevel(%.2f, %d, %v) = %v, want %v", tc.accuracy, tc.consecutiveFailures, tc.targetMissed, got, tc.want)
		}
	}
}

// Pause idempotence: concurrent attempts to pause must collapse to exactly
// one PauseState with a single pause_count and one resume_at.
func TestPause_ConcurrentAttemptsAreIdempotent(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := New(DefaultConfig(""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.EmergencyPause("overlapping emergency", now)
		}()
	}
	// Interleave prediction-error appends with the emergency pauses: they
	// contend on the same mutex, but the fresh monitor holds fewer than
	// min_samples_for_analysis records, so none of them evaluates or pauses.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ts := now.Add(time.Duration(i) * time.Minute)
			_ = m.RecordPredictionError(recordWithError(0.40, ts, "dep-race"), ts)
		}(i)
	}
	wg.Wait()

	p := m.PauseState()
	if p == nil {
		t.Fatal("expected exactly one pause, got none")
	}
	if p.PauseCount != 1 {
		t.Fatalf("pause_count = %d, want 1 (pause entered more than once)", p.PauseCount)
	}
	want := now.Add(48 * time.Hour)
	if !p.ResumeAt.Equal(want) {
		t.Fatalf("resume_at = %v, want %v", p.ResumeAt, want)
	}
}

// The prediction-error window must survive a restart: records land in the
// JSONL file as they arrive and are reloaded by a fresh Monitor.
func TestPredictionErrors_PersistAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := DefaultConfig(filepath.Join(dir, "drift_state.json"))

	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 4; i++ {
		ts := now.Add(time.Duration(i) * time.Hour)
		_ = m.RecordPredictionError(recordWithError(0.2, ts, "dep-1"), ts)
	}

	reloaded, err := New(cfg)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	if got := len(reloaded.predictionErrors); got != 4 {
		t.Fatalf("reloaded %d prediction-error records, want 4", got)
	}
	if reloaded.predictionErrors[0].Parameter != "selection_temperature" {
		t.Fatalf("reloaded record lost its fields: %+v", reloaded.predictionErrors[0])
	}
}

func TestIsPaused_AutoResumesAfterResumeAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &Monitor{config: DefaultConfig(""), pause: &model.PauseState{
		PausedAt: now, ResumeAt: now.Add(time.Hour), CanAutoResume: true, PauseCount: 1,
	}}
	if !m.IsPaused(now) {
		t.Error("expected paused before resume_at")
	}
	if m.IsPaused(now.Add(2 * time.Hour)) {
		t.Error("expected auto-resume after resume_at")
	}
}
