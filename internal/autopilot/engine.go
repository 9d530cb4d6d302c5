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

// Package autopilot implements the Autopilot Cycle Engine: a daily
// closed-loop optimizer that analyzes recent KPI trends, proposes bounded
// knob deltas, validates them against Sliding Bounds and a per-knob rate
// limit, canary-validates the candidate snapshot, and deploys it, guarded
// throughout by the Anti-Drift Monitor. All the engines it composes
// (internal/boundscontrol, internal/canary, internal/driftmonitor,
// internal/businesslogic, internal/telemetry, internal/store) live as
// fields on one controller value rather than as globals.
package autopilot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vvtvcore/internal/boundscontrol"
	"vvtvcore/internal/businesslogic"
	"vvtvcore/internal/canary"
	"vvtvcore/internal/curator"
	"vvtvcore/internal/driftmonitor"
	"vvtvcore/internal/errs"
	"vvtvcore/internal/logging"
	"vvtvcore/internal/model"
	"vvtvcore/internal/telemetry"
)

// CycleState names one step of the protocol's state machine.
type CycleState string

const (
	StateStarted    CycleState = "started"
	StateAnalyzing  CycleState = "analyzing"
	StateProposing  CycleState = "proposing"
	StateValidating CycleState = "validating"
	StateDeploying  CycleState = "deploying"
	StateMonitoring CycleState = "monitoring"
	StateCompleted  CycleState = "completed"
	StateFailed     CycleState = "failed"
	StateRolledBack CycleState = "rolled_back"
)

// CycleResult is what one RunCycle invocation produced.
type CycleResult struct {
	State        CycleState
	Reason       string
	Changes      []ProposedChange
	DeployedHash string
	DeploymentID string
	StartedAt    time.Time
	Duration     time.Duration
}

type cycleCompletedEvent struct {
	Timestamp    time.Time  `json:"timestamp"`
	State        CycleState `json:"state"`
	Reason       string     `json:"reason"`
	Changes      int        `json:"changes_proposed"`
	DeployedHash string     `json:"deployed_hash,omitempty"`
	DeploymentID string     `json:"deployment_id,omitempty"`
	DurationMs   int64      `json:"duration_ms"`
}

// SnapshotPublisher is the subset of internal/store.SnapshotStore the
// engine needs, kept as an interface so tests can supply a fake in place
// of a live Postgres connection.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snapshot businesslogic.Snapshot, parentHash, rationale string) (string, error)
}

// CanarySampler supplies per-metric baseline/candidate observation samples
// for one canary stage evaluation.
type CanarySampler interface {
	Sample(gates []model.KPIGate, now time.Time) (baseline, candidate map[string][]float64, err error)
}

// TelemetryCanarySampler splits a metrics store's recent observations into
// baseline and candidate groups using the "group" key each observation's
// Context carries (written by the caller recording request-level metrics
// tagged with the canary.Router's routing decision).
type TelemetryCanarySampler struct {
	Store  *telemetry.Store
	Window time.Duration
}

func (s TelemetryCanarySampler) Sample(gates []model.KPIGate, now time.Time) (map[string][]float64, map[string][]float64, error) {
	baseline := make(map[string][]float64, len(gates))
	candidate := make(map[string][]float64, len(gates))
	start := now.Add(-s.Window)
	for _, g := range gates {
		obs, err := s.Store.QueryMetric(g.Metric, start, now)
		if err != nil {
			return nil, nil, err
		}
		for _, o := range obs {
			group, _ := o.Context["group"].(string)
			if group == "canary" {
				candidate[g.Metric] = append(candidate[g.Metric], o.Value)
			} else {
				baseline[g.Metric] = append(baseline[g.Metric], o.Value)
			}
		}
	}
	return baseline, candidate, nil
}

// StaticCanarySampler returns a fixed pair of sample maps, for tests and
// single-cycle scenarios seeded with literal inputs.
type StaticCanarySampler struct {
	Baseline, Candidate map[string][]float64
}

func (s StaticCanarySampler) Sample(gates []model.KPIGate, now time.Time) (map[string][]float64, map[string][]float64, error) {
	return s.Baseline, s.Candidate, nil
}

// Config tunes one Engine instance.
type Config struct {
	LogPath                string
	ControllableKnobs      []string
	PrimaryKPI             string
	AnalysisWindow         time.Duration
	MinSamplesForAnalysis  int
	MaxCycleDelta          float64
	KnobChangeLimit        float64       // max changes per knob per KnobChangeWindow
	KnobChangeWindow       time.Duration // default 24h
	CanaryStages           []model.CanaryStage
	CanaryGates            []model.KPIGate
	CanaryTimeBudget       time.Duration
	CanaryTest             canary.TestKind
	CanaryLogPath          string
	MeasurementWindow      time.Duration // default 24h
}

// DefaultConfig fills in the documented defaults and reasonable operating
// values for the remainder.
func DefaultConfig(logPath string) Config {
	return Config{
		LogPath:               logPath,
		ControllableKnobs:     []string{"selection_temperature", "plan_selection_bias"},
		PrimaryKPI:            telemetry.KindSelectionEntropy,
		AnalysisWindow:        24 * time.Hour,
		MinSamplesForAnalysis: 10,
		MaxCycleDelta:         0.10,
		KnobChangeLimit:       1,
		KnobChangeWindow:      24 * time.Hour,
		CanaryTimeBudget:      2 * time.Hour,
		CanaryTest:            canary.TestWelchT,
		MeasurementWindow:     24 * time.Hour,
	}
}

// Engine is the Autopilot Cycle Engine: a controller value composing the
// bounds controller, the anti-drift monitor, the metrics store, the
// snapshot publisher and a canary sampler.
type Engine struct {
	config Config

	bounds   *boundscontrol.Controller
	drift    *driftmonitor.Monitor
	metrics  *telemetry.Store
	snapshot SnapshotPublisher
	sampler  CanarySampler

	current  businesslogic.Snapshot
	limiters map[string]*curator.TokenBucket

	// pending holds deployed cycles still inside their post-deployment
	// measurement window; ProcessMeasurementWindows drains it.
	pending []pendingMeasurement

	log *logging.JSONLAppender
}

// pendingMeasurement is one deployed change set awaiting enough
// post-deployment KPI data before its real prediction-error records can
// be filed.
type pendingMeasurement struct {
	DeploymentID string
	Changes      []ProposedChange
	DeployedAt   time.Time
}

// NewEngine constructs an Engine around its already-constructed
// dependencies and the currently deployed snapshot.
func NewEngine(config Config, bounds *boundscontrol.Controller, drift *driftmonitor.Monitor, metrics *telemetry.Store, snapshot SnapshotPublisher, sampler CanarySampler, current businesslogic.Snapshot, now time.Time) (*Engine, error) {
	var appender *logging.JSONLAppender
	var err error
	if config.LogPath != "" {
		appender, err = logging.NewJSONLAppender(config.LogPath)
		if err != nil {
			return nil, err
		}
	}
	window := config.KnobChangeWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	limiters := make(map[string]*curator.TokenBucket, len(config.ControllableKnobs))
	refillPerHour := config.KnobChangeLimit / window.Hours()
	for _, knob := range config.ControllableKnobs {
		limiters[knob] = curator.NewTokenBucket(config.KnobChangeLimit, refillPerHour, now)
	}
	return &Engine{
		config:   config,
		bounds:   bounds,
		drift:    drift,
		metrics:  metrics,
		snapshot: snapshot,
		sampler:  sampler,
		current:  current,
		limiters: limiters,
		log:      appender,
	}, nil
}

// Current returns the engine's currently deployed snapshot.
func (e *Engine) Current() businesslogic.Snapshot { return e.current }

func (e *Engine) complete(result CycleResult, now time.Time) CycleResult {
	result.Duration = now.Sub(result.StartedAt)
	if e.log != nil {
		_ = e.log.Append(cycleCompletedEvent{
			Timestamp:    now,
			State:        result.State,
			Reason:       result.Reason,
			Changes:      len(result.Changes),
			DeployedHash: result.DeployedHash,
			DeploymentID: result.DeploymentID,
			DurationMs:   result.Duration.Milliseconds(),
		})
	}
	return result
}

// RunCycle executes the seven-step cycle protocol once.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) (CycleResult, error) {
	// Close out any elapsed measurement windows first: filing the real
	// prediction-error records for past deploys reads reality, it does not
	// mutate the deployed snapshot, so it runs even when the gate below
	// short-circuits this cycle.
	e.ProcessMeasurementWindows(now)

	// 1. Gate check.
	if e.drift.IsPaused(now) {
		return e.complete(CycleResult{State: StateFailed, Reason: "system_paused", StartedAt: now}, now),
			errs.New(errs.KindSystemPaused, "autopilot cycle short-circuited: anti-drift monitor is paused")
	}
	if !e.current.Autopilot.Enabled {
		return e.complete(CycleResult{State: StateCompleted, Reason: "autopilot_disabled", StartedAt: now}, now), nil
	}

	// 2. Analyze.
	analysis, err := e.analyze(now)
	if err != nil {
		return e.complete(CycleResult{State: StateFailed, Reason: err.Error(), StartedAt: now}, now), err
	}
	if analysis.DataQuality == DataQualityInsufficient {
		return e.complete(CycleResult{State: StateCompleted, Reason: "insufficient_data", StartedAt: now}, now),
			errs.New(errs.KindInsufficientData, "autopilot analysis window lacks enough KPI samples")
	}

	// 3. Propose.
	changes := e.propose(analysis)
	if len(changes) == 0 {
		return e.complete(CycleResult{State: StateCompleted, Reason: "no_proposal", StartedAt: now}, now), nil
	}

	// 4. Validate.
	if reason, ok := e.validate(changes, now); !ok {
		return e.complete(CycleResult{State: StateCompleted, Reason: reason, Changes: changes, StartedAt: now}, now),
			errs.New(errs.KindValidationFailed, reason)
	}

	candidate := e.current
	for _, c := range changes {
		candidate = candidate.WithKnob(c.Parameter, c.NewValue)
	}
	candidateHash, err := candidate.Hash()
	if err != nil {
		return e.complete(CycleResult{State: StateFailed, Reason: "hash_candidate: " + err.Error(), StartedAt: now}, now), err
	}
	baselineHash, err := e.current.Hash()
	if err != nil {
		return e.complete(CycleResult{State: StateFailed, Reason: "hash_baseline: " + err.Error(), StartedAt: now}, now), err
	}

	// 5. Canary.
	stages := e.config.CanaryStages
	if len(stages) == 0 {
		stages = canary.DefaultStages(model.CanaryStage{TrafficPercent: 5, DwellTime: time.Hour})
	}
	deployment, err := canary.NewDeployment(baselineHash, candidateHash, stages, e.config.CanaryGates, e.config.CanaryTimeBudget, e.config.CanaryTest, e.config.CanaryLogPath, now)
	if err != nil {
		return e.complete(CycleResult{State: StateFailed, Reason: "start_canary: " + err.Error(), StartedAt: now}, now), err
	}
	defer deployment.Close()

	baselineSamples, candidateSamples, err := e.sampler.Sample(e.config.CanaryGates, now)
	if err != nil {
		return e.complete(CycleResult{State: StateFailed, Reason: "canary_samples: " + err.Error(), StartedAt: now}, now), err
	}

	var outcome canary.Outcome
	for i := 0; i < len(stages); i++ {
		outcome, err = deployment.EvaluateStage(baselineSamples, candidateSamples, now)
		if err != nil {
			return e.complete(CycleResult{State: StateFailed, Reason: "evaluate_canary: " + err.Error(), StartedAt: now}, now), err
		}
		if outcome.Decision != model.DecisionAccept || deployment.Accepted() {
			break
		}
	}

	if outcome.Decision != model.DecisionAccept || !deployment.Accepted() {
		_ = e.drift.RecordRollback(now)
		for _, c := range changes {
			_ = e.drift.RecordPredictionError(model.PredictionErrorRecord{
				Timestamp:      now,
				Parameter:      c.Parameter,
				PredictedDelta: c.ExpectedImpact,
				ActualDelta:    0,
				DeploymentID:   deployment.Deployment().ID,
				WasRolledBack:  true,
			}, now)
		}
		return e.complete(CycleResult{
			State: StateRolledBack, Reason: "canary_rejected", Changes: changes,
			DeploymentID: deployment.Deployment().ID, StartedAt: now,
		}, now), errs.New(errs.KindCanaryRejected, "canary gates rejected the proposed snapshot")
	}

	// 6. Deploy.
	candidate.Rationale = e.rationale(changes)
	candidate.DeployedAt = now
	deployedHash, err := e.snapshot.PublishSnapshot(ctx, candidate, baselineHash, candidate.Rationale)
	if err != nil {
		e.drift.EmergencyPause("deploy_failed: "+deployment.Deployment().ID, now)
		return e.complete(CycleResult{
			State: StateFailed, Reason: "deploy_failed", Changes: changes,
			DeploymentID: deployment.Deployment().ID, StartedAt: now,
		}, now), errs.Wrap(errs.KindIO, "publish candidate snapshot", err)
	}

	for _, c := range changes {
		if b, ok := e.limiters[c.Parameter]; ok {
			b.Take(1, now)
		}
	}
	e.current = candidate
	e.pending = append(e.pending, pendingMeasurement{
		DeploymentID: deployment.Deployment().ID,
		Changes:      changes,
		DeployedAt:   now,
	})

	// 7. Complete.
	return e.complete(CycleResult{
		State: StateCompleted, Reason: "deployed", Changes: changes,
		DeployedHash: deployedHash, DeploymentID: deployment.Deployment().ID, StartedAt: now,
	}, now), nil
}

// ProcessMeasurementWindows files the real prediction-error records for
// every deployment whose measurement window (default 24h) has elapsed,
// using the observed primary-KPI trend over the window as the actual
// delta per modified knob. It runs at the start of every cycle tick, so
// a deploy's accuracy lands roughly one cycle after it ships.
func (e *Engine) ProcessMeasurementWindows(now time.Time) {
	window := e.config.MeasurementWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	kept := e.pending[:0]
	for _, p := range e.pending {
		if now.Sub(p.DeployedAt) < window {
			kept = append(kept, p)
			continue
		}
		actual := 0.0
		if samples, err := e.metrics.Values(e.config.PrimaryKPI, p.DeployedAt, now); err == nil {
			actual = halfSplitTrend(samples)
		}
		deltas := make(map[string]float64, len(p.Changes))
		for _, c := range p.Changes {
			deltas[c.Parameter] = actual
		}
		if err := e.RecordMeasurementWindow(p.DeploymentID, p.Changes, deltas, now); err != nil {
			logging.Errorf("record measurement window for %s: %v", p.DeploymentID, err)
		}
	}
	e.pending = kept
}

// RecordMeasurementWindow closes the loop on the cycle protocol's
// asynchronous prediction-accuracy measurement: once the post-deployment
// measurement window has elapsed, the caller supplies the actually
// observed delta per modified knob and the engine files the real
// prediction-error record (with WasRolledBack=false, since the deployment
// was never rolled back if this is being called).
func (e *Engine) RecordMeasurementWindow(deploymentID string, changes []ProposedChange, actualDeltas map[string]float64, now time.Time) error {
	for _, c := range changes {
		actual, ok := actualDeltas[c.Parameter]
		if !ok {
			continue
		}
		if err := e.drift.RecordPredictionError(model.PredictionErrorRecord{
			Timestamp:      now,
			Parameter:      c.Parameter,
			PredictedDelta: c.ExpectedImpact,
			ActualDelta:    actual,
			DeploymentID:   deploymentID,
			WasRolledBack:  false,
		}, now); err != nil && !errs.Is(err, errs.KindInsufficientData) {
			return err
		}
	}
	return nil
}

func (e *Engine) analyze(now time.Time) (AnalysisResult, error) {
	window := e.config.AnalysisWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	samples, err := e.metrics.Values(e.config.PrimaryKPI, now.Add(-window), now)
	if err != nil {
		return AnalysisResult{}, errs.Wrap(errs.KindIO, "query primary KPI", err)
	}
	if len(samples) < e.config.MinSamplesForAnalysis {
		return AnalysisResult{DataQuality: DataQualityInsufficient, SampleCount: len(samples)}, nil
	}
	return AnalysisResult{
		DataQuality: DataQualitySufficient,
		TrendDelta:  halfSplitTrend(samples),
		SampleCount: len(samples),
	}, nil
}

func (e *Engine) propose(analysis AnalysisResult) []ProposedChange {
	maxDaily := 0.0
	if e.current.Autopilot.MaxDailyVariation != nil {
		maxDaily = *e.current.Autopilot.MaxDailyVariation
	}
	if maxDaily <= 0 {
		return nil
	}
	changes := make([]ProposedChange, 0, len(e.config.ControllableKnobs))
	for _, knob := range e.config.ControllableKnobs {
		old, ok := e.current.Knob(knob)
		if !ok {
			continue
		}
		delta := proposeDelta(analysis.TrendDelta, maxDaily)
		if delta == 0 {
			continue
		}
		changes = append(changes, ProposedChange{
			Parameter:      knob,
			OldValue:       old,
			NewValue:       old + delta,
			Delta:          delta,
			ExpectedImpact: delta,
		})
	}
	return changes
}

func (e *Engine) validate(changes []ProposedChange, now time.Time) (string, bool) {
	cumulative := 0.0
	for _, c := range changes {
		cumulative += abs(c.Delta)
	}
	if e.config.MaxCycleDelta > 0 && cumulative > e.config.MaxCycleDelta {
		return "cumulative_delta_exceeds_policy", false
	}
	for _, c := range changes {
		bounds, ok := e.bounds.Bounds(c.Parameter)
		if !ok || !bounds.IsWithinSoft(c.NewValue) {
			return "outside_soft_bounds: " + c.Parameter, false
		}
		limiter, ok := e.limiters[c.Parameter]
		if !ok || limiter.Tokens(now) < 1 {
			return "rate_limited: " + c.Parameter, false
		}
	}
	return "", true
}

func (e *Engine) rationale(changes []ProposedChange) string {
	if len(changes) == 1 {
		return fmt.Sprintf("autopilot cycle %s: %s %+.4f", uuid.NewString()[:8], changes[0].Parameter, changes[0].Delta)
	}
	return fmt.Sprintf("autopilot cycle %s: %d knob(s) adjusted", uuid.NewString()[:8], len(changes))
}

// Close releases the cycle-event log file handle.
func (e *Engine) Close() error {
	if e.log != nil {
		return e.log.Close()
	}
	return nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
