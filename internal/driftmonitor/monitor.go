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

// Package driftmonitor implements the Anti-Drift Monitor: a
// gate that guards the autopilot against its own prediction errors via an
// exponential-backoff pause.
package driftmonitor

import (
	"encoding/json"
	"math"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"vvtvcore/internal/errs"
	"vvtvcore/internal/logging"
	"vvtvcore/internal/model"
)

// Config holds the recognized control-plane drift options.
type Config struct {
	StatePath                  string
	ErrorsPath                 string
	AnalysisWindowDays         int
	RollbackWindowDays         int
	MinSamplesForAnalysis      int
	ConsecutiveFailureThreshold int
	TargetPredictionAccuracyP50 float64
	MaxPredictionErrorThreshold float64
	TargetRollbackRate          float64
	MaxRollbackRateThreshold    float64
	InitialPauseDurationHours   float64
	MaxPauseDurationHours       float64
	PauseBackoffMultiplier      float64
	EnableAutomaticPause        bool
	EnablePredictionTracking    bool
	EnableRollbackMonitoring    bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig(statePath string) Config {
	cfg := Config{
		StatePath:                   statePath,
		AnalysisWindowDays:          14,
		RollbackWindowDays:          7,
		MinSamplesForAnalysis:       10,
		ConsecutiveFailureThreshold: 3,
		TargetPredictionAccuracyP50: 0.8,
		MaxPredictionErrorThreshold: 0.3,
		TargetRollbackRate:          0.05,
		MaxRollbackRateThreshold:    0.1,
		InitialPauseDurationHours:   48,
		MaxPauseDurationHours:       168,
		PauseBackoffMultiplier:      2.0,
		EnableAutomaticPause:        true,
		EnablePredictionTracking:    true,
		EnableRollbackMonitoring:    true,
	}
	if statePath != "" {
		cfg.ErrorsPath = filepath.Join(filepath.Dir(statePath), "prediction_errors.jsonl")
	}
	return cfg
}

// minTrendSamples is how many records a half-split trend comparison needs
// before it is trusted, distinct from MinSamplesForAnalysis which gates
// whether percentile/risk analysis runs at all.
const minTrendSamples = 5

// Trend is the direction of recent prediction accuracy relative to earlier
// history.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDegrading Trend = "degrading"
	TrendStable    Trend = "stable"
)

// state is the persisted drift-state document. Operator tooling reads this
// file directly, so the field layout is load-bearing.
type state struct {
	IsPaused                bool              `json:"is_paused"`
	ConsecutiveFailures     int               `json:"consecutive_failures"`
	CurrentPredictionAccuracy float64         `json:"current_prediction_accuracy"`
	CurrentRollbackRate     float64           `json:"current_rollback_rate"`
	DriftRiskLevel          model.DriftRiskLevel `json:"drift_risk_level"`
	LastDriftDetection      *time.Time        `json:"last_drift_detection,omitempty"`
	PauseState              *model.PauseState `json:"pause_state,omitempty"`
}

// Monitor is the Anti-Drift Monitor. All state behind mu: concurrent
// pause attempts (a failing analysis racing an emergency pause) must
// collapse to exactly one PauseState with one resume_at.
type Monitor struct {
	config Config
	mu     sync.Mutex

	predictionErrors []model.PredictionErrorRecord
	rollbacks        []time.Time

	consecutiveFailures int
	accuracy            float64
	riskLevel           model.DriftRiskLevel
	lastDetection       *time.Time
	pause               *model.PauseState
	lastPauseCount      int // survives pause expiry/Resume, so backoff keeps growing
}

// New constructs a Monitor, loading persisted state and the retained
// prediction-error window from disk if present.
func New(config Config) (*Monitor, error) {
	m := &Monitor{config: config, riskLevel: model.RiskLow}
	if config.ErrorsPath != "" {
		_ = logging.ReadJSONLines(config.ErrorsPath, func(line []byte) error {
			var rec model.PredictionErrorRecord
			if err := json.Unmarshal(line, &rec); err == nil {
				m.predictionErrors = append(m.predictionErrors, rec)
			}
			return nil
		})
	}
	if config.StatePath == "" {
		return m, nil
	}
	var s state
	if err := logging.ReadJSON(config.StatePath, &s); err != nil {
		return m, nil // no prior state is not an error
	}
	m.consecutiveFailures = s.ConsecutiveFailures
	m.accuracy = s.CurrentPredictionAccuracy
	m.riskLevel = s.DriftRiskLevel
	m.lastDetection = s.LastDriftDetection
	m.pause = s.PauseState
	if m.pause != nil {
		m.lastPauseCount = m.pause.PauseCount
	}
	return m, nil
}

// persistErrors rewrites the prediction-error JSONL file to exactly the
// in-window record set: appending and window compaction happen in the
// same atomic write.
func (m *Monitor) persistErrors() error {
	if m.config.ErrorsPath == "" {
		return nil
	}
	records := make([]any, len(m.predictionErrors))
	for i, r := range m.predictionErrors {
		records[i] = r
	}
	return logging.WriteAtomicJSONL(m.config.ErrorsPath, records)
}

func (m *Monitor) persist() error {
	if m.config.StatePath == "" {
		return nil
	}
	rollbackRate := m.rollbackRate(time.Now())
	return logging.WriteAtomicJSON(m.config.StatePath, state{
		IsPaused:                  m.pause != nil,
		ConsecutiveFailures:       m.consecutiveFailures,
		CurrentPredictionAccuracy: m.accuracy,
		CurrentRollbackRate:       rollbackRate,
		DriftRiskLevel:            m.riskLevel,
		LastDriftDetection:        m.lastDetection,
		PauseState:                m.pause,
	})
}

// IsPaused reports whether the autopilot is currently gated, auto-clearing
// an expired pause whose CanAutoResume is set.
func (m *Monitor) IsPaused(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pause == nil {
		return false
	}
	if m.pause.CanAutoResume && !now.Before(m.pause.ResumeAt) {
		m.pause = nil
		return false
	}
	return true
}

// RiskLevel returns the monitor's last-computed self-distrust level.
func (m *Monitor) RiskLevel() model.DriftRiskLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.riskLevel
}

// PauseState returns the current pause, if any.
func (m *Monitor) PauseState() *model.PauseState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pause
}

func (m *Monitor) trimPredictionErrors(now time.Time) {
	cutoff := now.AddDate(0, 0, -m.config.AnalysisWindowDays)
	kept := m.predictionErrors[:0]
	for _, r := range m.predictionErrors {
		if !r.Timestamp.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	m.predictionErrors = kept
}

func (m *Monitor) trimRollbacks(now time.Time) {
	cutoff := now.AddDate(0, 0, -m.config.RollbackWindowDays)
	kept := m.rollbacks[:0]
	for _, ts := range m.rollbacks {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	m.rollbacks = kept
}

func (m *Monitor) rollbackRate(now time.Time) float64 {
	m.trimRollbacks(now)
	windowHours := float64(m.config.RollbackWindowDays) * 24
	if windowHours == 0 {
		return 0
	}
	return float64(len(m.rollbacks)) / (windowHours / 24)
}

// RecordRollback logs a deployment rollback for the rollback-rate window.
func (m *Monitor) RecordRollback(now time.Time) error {
	if !m.config.EnableRollbackMonitoring {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacks = append(m.rollbacks, now)
	m.trimRollbacks(now)
	return m.persist()
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// RecordPredictionError is the monitor's main entry point: appends the
// record, recomputes accuracy/trend/risk, and applies the pause policy.
// Returns errs.KindInsufficientData (non-fatal to the caller)
// when fewer than MinSamplesForAnalysis records exist, in which case the
// prior state is left unchanged.
func (m *Monitor) RecordPredictionError(rec model.PredictionErrorRecord, now time.Time) error {
	if !m.config.EnablePredictionTracking {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionErrors = append(m.predictionErrors, rec)
	m.trimPredictionErrors(now)
	if err := m.persistErrors(); err != nil {
		return err
	}

	if len(m.predictionErrors) < m.config.MinSamplesForAnalysis {
		return errs.New(errs.KindInsufficientData, "fewer than min_samples_for_analysis prediction-error records")
	}

	errors := make([]float64, len(m.predictionErrors))
	for i, r := range m.predictionErrors {
		errors[i] = r.PredictionError(1e-6)
	}
	sorted := append([]float64(nil), errors...)
	sort.Float64s(sorted)
	p50 := percentile(sorted, 0.5)

	m.accuracy = 1 - p50
	trend := m.trendLocked()

	targetMet := m.accuracy >= m.config.TargetPredictionAccuracyP50
	if p50 > m.config.MaxPredictionErrorThreshold {
		m.consecutiveFailures++
	} else if targetMet {
		m.consecutiveFailures = 0
	}

	m.riskLevel = riskLevel(m.accuracy, m.consecutiveFailures, !targetMet)
	t := now
	m.lastDetection = &t
	_ = trend // trend is informational; exposed via Trend() for callers/telemetry

	if m.consecutiveFailures >= m.config.ConsecutiveFailureThreshold && m.config.EnableAutomaticPause && m.pause == nil {
		m.enterPause(rec.DeploymentID, now)
	}

	return m.persist()
}

// Trend reports the half-split accuracy trend over the current window.
func (m *Monitor) Trend() Trend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trendLocked()
}

func (m *Monitor) trendLocked() Trend {
	n := len(m.predictionErrors)
	if n < minTrendSamples {
		return TrendStable
	}
	half := n / 2
	earlier := m.predictionErrors[:half]
	recent := m.predictionErrors[n-half:]

	accuracyOf := func(rs []model.PredictionErrorRecord) float64 {
		sum := 0.0
		for _, r := range rs {
			sum += 1 - r.PredictionError(1e-6)
		}
		return sum / float64(len(rs))
	}

	delta := accuracyOf(recent) - accuracyOf(earlier)
	switch {
	case delta >= 0.05:
		return TrendImproving
	case delta <= -0.05:
		return TrendDegrading
	default:
		return TrendStable
	}
}


// riskLevel evaluates the top-down ladder; the first matching
// rung wins, so Critical beats every other condition.
func riskLevel(accuracy float64, consecutiveFailures int, targetMissed bool) model.DriftRiskLevel {
	switch {
	case accuracy < 0.5:
		return model.RiskCritical
	case accuracy < 0.6 || consecutiveFailures >= 2:
		return model.RiskHigh
	case accuracy < 0.7 || targetMissed:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

func (m *Monitor) enterPause(deploymentID string, now time.Time) {
	pauseCount := m.lastPauseCount + 1
	m.lastPauseCount = pauseCount
	hours := m.config.InitialPauseDurationHours * math.Pow(m.config.PauseBackoffMultiplier, float64(pauseCount-1))
	if hours > m.config.MaxPauseDurationHours {
		hours = m.config.MaxPauseDurationHours
	}
	m.pause = &model.PauseState{
		PausedAt:      now,
		ResumeAt:      now.Add(time.Duration(hours * float64(time.Hour))),
		Reason:        "consecutive_prediction_failures: " + deploymentID,
		PauseCount:    pauseCount,
		CanAutoResume: true,
	}
}

// Resume manually clears the current pause regardless of ResumeAt.
func (m *Monitor) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pause = nil
	m.consecutiveFailures = 0
}

// EmergencyPause unconditionally enters a pause regardless of the
// consecutive-failure count, for the autopilot's deploy-failure-with-a-
// partially-applied-snapshot case, which is not itself a prediction-
// accuracy failure but still must gate further cycles the same way one
// does.
func (m *Monitor) EmergencyPause(reason string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pause != nil {
		return
	}
	pauseCount := m.lastPauseCount + 1
	m.lastPauseCount = pauseCount
	hours := m.config.InitialPauseDurationHours * math.Pow(m.config.PauseBackoffMultiplier, float64(pauseCount-1))
	if hours > m.config.MaxPauseDurationHours {
		hours = m.config.MaxPauseDurationHours
	}
	m.pause = &model.PauseState{
		PausedAt:      now,
		ResumeAt:      now.Add(time.Duration(hours * float64(time.Hour))),
		Reason:        reason,
		PauseCount:    pauseCount,
		CanAutoResume: true,
	}
	_ = m.persist()
}
