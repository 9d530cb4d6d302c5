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

// Package main provides the entry point for vvtvctl, the autonomous
// programming control plane: it wires the Plan Selector, Curator
// Vigilante, Autopilot Cycle Engine, Sliding Bounds and Anti-Drift Monitor
// around a candidate feed, a selection sink, a snapshot store and a
// metrics store, then runs two long-lived loops (one playout-slot tick
// per business-logic slot duration, one autopilot scheduler tick per
// minute) until an OS signal asks it to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vvtvcore/internal/autopilot"
	"vvtvcore/internal/boundscontrol"
	"vvtvcore/internal/businesslogic"
	"vvtvcore/internal/curator"
	"vvtvcore/internal/driftmonitor"
	"vvtvcore/internal/model"
	"vvtvcore/internal/planner"
	"vvtvcore/internal/store"
	"vvtvcore/internal/telemetry"
)

func main() {
	// --- Process-level configuration flags ---
	stateDir := flag.String("state_dir", "./vvtv-state", "Directory for append-only control-plane state: drift state, bounds history, curator/autopilot/bounds JSONL logs")
	httpAddr := flag.String("http_addr", ":8080", "HTTP listen address for the /metrics endpoint")
	scheduleUTC := flag.String("schedule_utc", "03:00", "UTC HH:MM at which the autopilot's daily cycle runs")
	businessLogicFile := flag.String("business_logic_file", "", "Path to a BusinessLogicSnapshot YAML document; if empty, compiled-in defaults are used")
	candidateLimit := flag.Int("candidate_limit", 200, "Max candidates fetched from the feed per playout slot")
	candidateDSN := flag.String("candidate_dsn", "", "Postgres connection string for the candidate feed; empty uses an in-memory demo feed")
	snapshotDSN := flag.String("snapshot_dsn", "", "Postgres connection string for the snapshot store; empty uses an in-memory demo store")
	redisAddr := flag.String("redis_addr", "", "Redis address for the selection sink; empty uses a logging demo sink")
	kafkaTopic := flag.String("kafka_topic", "", "Kafka topic for the selection sink; takes precedence over redis_addr, uses a logging demo producer (no broker client is linked)")
	timeoutMinutes := flag.Int("timeout_minutes", 10, "Autopilot cycle timeout")
	maxRetries := flag.Int("max_retries", 3, "Autopilot cycle retry count before the scheduler self-pauses for 24h")
	flag.Parse()

	if err := os.MkdirAll(*stateDir, 0o755); err != nil {
		log.Fatalf("create state dir %s: %v", *stateDir, err)
	}

	// --- Business logic snapshot ---
	var snapshot *businesslogic.Snapshot
	if *businessLogicFile != "" {
		s, err := businesslogic.LoadFromFile(*businessLogicFile)
		if err != nil {
			log.Fatalf("load business logic snapshot: %v", err) // configuration errors are fatal at startup
		}
		snapshot = s
	} else {
		snapshot = defaultSnapshot()
	}

	// --- Metrics store ---
	metrics := telemetry.NewStore()

	// --- External interfaces: candidate feed, selection sink, snapshot store ---
	candidateFeed := newCandidateFeed(*candidateDSN)
	selectionSink := newSelectionSink(*redisAddr, *kafkaTopic)
	snapshotStore := newSnapshotStore(*snapshotDSN)

	// --- Plan Selector and Curator Vigilante ---
	plan := planner.New(planner.DefaultConfig(), metrics)
	now := time.Now().UTC()
	vigilante, err := curator.New(curator.DefaultConfig(filePath(*stateDir, "curator_reviews.jsonl")), metrics, now)
	if err != nil {
		log.Fatalf("construct curator vigilante: %v", err)
	}

	// --- Sliding Bounds ---
	bounds, err := boundscontrol.New(boundscontrol.DefaultConfig(filePath(*stateDir, "bounds_history.jsonl")), defaultHardBounds())
	if err != nil {
		log.Fatalf("construct sliding bounds controller: %v", err)
	}

	// --- Anti-Drift Monitor ---
	drift, err := driftmonitor.New(driftmonitor.DefaultConfig(filePath(*stateDir, "drift_state.json")))
	if err != nil {
		log.Fatalf("construct anti-drift monitor: %v", err)
	}

	// --- Autopilot Cycle Engine, composing the above ---
	autopilotConfig := autopilot.DefaultConfig(filePath(*stateDir, "autopilot_cycles.jsonl"))
	autopilotConfig.CanaryGates = []model.KPIGate{
		{Metric: telemetry.KindSelectionEntropy, Threshold: 0, Direction: model.DirectionHigherIsBetter, MinObservations: 20},
	}
	autopilotConfig.CanaryLogPath = filePath(*stateDir, "canary_deployments.jsonl")
	engine, err := autopilot.NewEngine(autopilotConfig, bounds, drift, metrics, snapshotStore, autopilot.TelemetryCanarySampler{Store: metrics, Window: autopilotConfig.AnalysisWindow}, *snapshot, now)
	if err != nil {
		log.Fatalf("construct autopilot engine: %v", err)
	}
	defer func() { _ = engine.Close() }()

	scheduler, err := autopilot.NewScheduler(autopilot.SchedulerConfig{
		ScheduleUTC:       *scheduleUTC,
		TimeoutMinutes:    *timeoutMinutes,
		MaxRetries:        *maxRetries,
		RetryDelayMinutes: 30,
	})
	if err != nil {
		log.Fatalf("construct autopilot scheduler: %v", err)
	}

	// --- HTTP: Prometheus /metrics ---
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	httpServer := &http.Server{Addr: *httpAddr, Handler: mux}
	go func() {
		fmt.Printf("vvtvctl metrics server listening on %s\n", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server: %v", err)
		}
	}()

	// --- Background loops ---
	ctx, cancel := context.WithCancel(context.Background())

	slotDone := make(chan struct{})
	go runSlotLoop(ctx, slotDone, snapshot, candidateFeed, plan, vigilante, selectionSink, *candidateLimit)

	scheduler.Run(ctx, func() time.Time { return time.Now().UTC() }, func(cctx context.Context, t time.Time) (autopilot.CycleResult, error) {
		fmt.Printf("autopilot cycle starting at %s\n", t.Format(time.RFC3339))
		result, err := engine.RunCycle(cctx, t)
		fmt.Printf("autopilot cycle %s: %s (reason=%s)\n", result.State, result.DeployedHash, result.Reason)
		return result, err
	})

	// --- Graceful shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nvvtvctl shutting down...")
	cancel()
	scheduler.Stop()
	<-slotDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("metrics server shutdown failed: %v", err)
	}
	_ = bounds.Close()
	fmt.Println("vvtvctl stopped.")
}

// runSlotLoop ticks once per configured slot duration: fetch candidates,
// run the Plan Selector, pass the result through the Curator Vigilante
// (advisory or apply), and publish the resulting decisions to the
// selection sink. This orchestration lives at the process boundary rather
// than inside any one engine, since it is the glue between the candidate
// feed and selection sink interfaces and does not itself carry
// control-plane decision logic.
func runSlotLoop(ctx context.Context, done chan<- struct{}, snapshot *businesslogic.Snapshot, feed store.CandidateFeed, plan *planner.Planner, vigilante *curator.Vigilante, sink interface {
	PublishDecisions(ctx context.Context, decisions []model.SelectionDecision, slotSeed model.SlotSeed) error
}, limit int) {
	defer close(done)
	ticker := time.NewTicker(snapshot.SlotDuration())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runSlot(ctx, snapshot, feed, plan, vigilante, sink, limit)
		}
	}
}

func runSlot(ctx context.Context, snapshot *businesslogic.Snapshot, feed store.CandidateFeed, plan *planner.Planner, vigilante *curator.Vigilante, sink interface {
	PublishDecisions(ctx context.Context, decisions []model.SelectionDecision, slotSeed model.SlotSeed) error
}, limit int) {
	now := time.Now().UTC()
	candidates, err := feed.FetchCandidates(ctx, limit)
	if err != nil {
		fmt.Printf("ERROR: fetch_candidates: %v\n", err)
		return
	}
	result := plan.Run(candidates, snapshot, now)
	if len(result.Decisions) == 0 {
		return
	}

	byID := make(map[string]model.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.PlanID] = c
	}
	ordered := make([]model.Candidate, 0, len(result.Decisions))
	for _, d := range result.Decisions {
		if c, ok := byID[d.PlanID]; ok {
			ordered = append(ordered, c)
		}
	}

	review := vigilante.Review(ordered, snapshot.CuratorLocked(), now)
	decisions := result.Decisions
	if review.Decision == curator.DecisionApply {
		scoreByID := make(map[string]model.SelectionDecision, len(result.Decisions))
		for _, d := range result.Decisions {
			scoreByID[d.PlanID] = d
		}
		reordered := make([]model.SelectionDecision, 0, len(review.Items))
		for _, c := range review.Items {
			d := scoreByID[c.PlanID]
			d.AppendRationaleTag("curator=apply")
			reordered = append(reordered, d)
		}
		decisions = reordered
	}

	if err := sink.PublishDecisions(ctx, decisions, result.SlotSeed); err != nil {
		fmt.Printf("ERROR: publish_decisions: %v\n", err)
	}
}

func defaultSnapshot() *businesslogic.Snapshot {
	s := &businesslogic.Snapshot{PolicyVersion: "bootstrap", Env: "dev"}
	s.Scheduling.SlotDurationMinutes = 15
	s.Selection.Method = businesslogic.SelectionGumbelTopK
	s.Selection.Temperature = 0.85
	topK := 12
	s.Selection.TopK = &topK
	s.Selection.DiversityQuota = 0.3
	s.Autopilot.Enabled = true
	maxDaily := 0.05
	s.Autopilot.MaxDailyVariation = &maxDaily
	return s
}

func defaultHardBounds() map[string]model.KnobBounds {
	return map[string]model.KnobBounds{
		"selection_temperature": {Parameter: "selection_temperature", HardFloor: 0.2, HardCeiling: 2.0, SoftFloor: 0.5, SoftCeiling: 1.5},
		"plan_selection_bias":   {Parameter: "plan_selection_bias", HardFloor: -0.20, HardCeiling: 0.20, SoftFloor: -0.10, SoftCeiling: 0.10},
	}
}

func newCandidateFeed(dsn string) store.CandidateFeed {
	if dsn == "" {
		fmt.Println("[candidate-feed-demo] no candidate_dsn set, using in-memory demo feed")
		return store.StaticCandidateFeed{Candidates: demoCandidates()}
	}
	db, err := store.Open(dsn)
	if err != nil {
		log.Fatalf("open candidate feed database: %v", err)
	}
	return store.NewPostgresCandidateFeed(db)
}

func newSnapshotStore(dsn string) autopilot.SnapshotPublisher {
	if dsn == "" {
		fmt.Println("[snapshot-store-demo] no snapshot_dsn set, using in-memory demo store")
		return store.NewInMemorySnapshotStore()
	}
	db, err := store.Open(dsn)
	if err != nil {
		log.Fatalf("open snapshot store database: %v", err)
	}
	return store.NewSnapshotStore(db)
}

type decisionPublisher interface {
	PublishDecisions(ctx context.Context, decisions []model.SelectionDecision, slotSeed model.SlotSeed) error
}

func newSelectionSink(redisAddr, kafkaTopic string) decisionPublisher {
	if kafkaTopic != "" {
		fmt.Printf("[kafka-sink-demo] publishing decisions to topic %s via logging producer\n", kafkaTopic)
		return store.NewKafkaSelectionSink(store.LoggingKafkaProducer{}, kafkaTopic)
	}
	if redisAddr == "" {
		fmt.Println("[selection-sink-demo] no redis_addr set, using logging demo sink")
		return store.NewSelectionSink(store.LoggingRedisEvaler{}, "", 0)
	}
	return store.NewSelectionSink(store.NewGoRedisEvaler(redisAddr), "", 0)
}

// demoCandidates seeds the in-memory feed with three sample candidates, so
// a dsn-less vvtvctl has something to select from out of the box.
func demoCandidates() []model.Candidate {
	now := time.Now().UTC()
	return []model.Candidate{
		{PlanID: "p1", Kind: "music", Curation: 0.9, Trending: 0.8, Engagement: 0.7, HDAvailable: true, CreatedAt: now.Add(-2 * time.Hour), HasCreatedAt: true, Status: "planned"},
		{PlanID: "p2", Kind: "video", Curation: 0.8, Trending: 0.9, Engagement: 0.6, HDAvailable: true, CreatedAt: now.Add(-3 * time.Hour), HasCreatedAt: true, Status: "planned"},
		{PlanID: "p3", Kind: "music", Curation: 0.7, Trending: 0.6, Engagement: 0.5, HDAvailable: true, CreatedAt: now.Add(-1 * time.Hour), HasCreatedAt: true, Status: "planned"},
	}
}

func filePath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + string(os.PathSeparator) + name
}
