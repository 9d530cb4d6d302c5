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

// Package telemetry is the control plane's metrics store:
// record_metric/query_metric over a closed set of recognized kinds, backed
// by in-process Prometheus gauges for live export via a dedicated /metrics
// HTTP handler.
package telemetry

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vvtvcore/internal/errs"
)

// Recognized metric kinds (closed set).
const (
	KindSelectionEntropy        = "selection_entropy"
	KindCuratorApplyBudgetUsed  = "curator_apply_budget_used_pct"
	KindNoveltyTemporalKLD      = "novelty_temporal_kld"
	KindAutopilotPredVsReal     = "autopilot_pred_vs_real_error"
	KindHDDetectionSlowRate     = "hd_detection_slow_rate"
)

var recognizedKinds = map[string]bool{
	KindSelectionEntropy:       true,
	KindCuratorApplyBudgetUsed: true,
	KindNoveltyTemporalKLD:     true,
	KindAutopilotPredVsReal:    true,
	KindHDDetectionSlowRate:    true,
}

// Observation is one recorded sample of a metric kind.
type Observation struct {
	Value     float64
	Context   map[string]any
	Timestamp time.Time
}

// Store is the in-process metrics store. A new Store registers its own
// Prometheus gauges against a private registry, so multiple Stores (e.g.
// across tests) never collide on global collector state.
type Store struct {
	mu           sync.RWMutex
	observations map[string][]Observation
	gauges       map[string]prometheus.Gauge
	registry     *prometheus.Registry
}

// NewStore constructs a Store with its own Prometheus registry holding one
// gauge per recognized kind.
func NewStore() *Store {
	registry := prometheus.NewRegistry()
	gauges := make(map[string]prometheus.Gauge, len(recognizedKinds))
	for kind := range recognizedKinds {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vvtv_" + kind,
			Help: "Latest observed value of " + kind,
		})
		registry.MustRegister(g)
		gauges[kind] = g
	}
	return &Store{
		observations: make(map[string][]Observation),
		gauges:       gauges,
		registry:     registry,
	}
}

// RecordMetric appends an observation for kind and updates its live gauge.
// Unrecognized kinds are rejected (the set is closed).
func (s *Store) RecordMetric(kind string, value float64, context map[string]any, ts time.Time) error {
	if !recognizedKinds[kind] {
		return errs.New(errs.KindValidationFailed, "unrecognized metric kind: "+kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations[kind] = append(s.observations[kind], Observation{Value: value, Context: context, Timestamp: ts})
	s.gauges[kind].Set(value)
	return nil
}

// QueryMetric returns observations of kind within [start, end], ascending
// by timestamp.
func (s *Store) QueryMetric(kind string, start, end time.Time) ([]Observation, error) {
	if !recognizedKinds[kind] {
		return nil, errs.New(errs.KindValidationFailed, "unrecognized metric kind: "+kind)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.observations[kind]
	out := make([]Observation, 0, len(all))
	for _, o := range all {
		if !o.Timestamp.Before(start) && !o.Timestamp.After(end) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Values extracts the bare values for a kind within a range, the shape
// internal/canary's gate evaluation consumes directly.
func (s *Store) Values(kind string, start, end time.Time) ([]float64, error) {
	obs, err := s.QueryMetric(kind, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Value
	}
	return out, nil
}

// Handler returns the promhttp handler for this Store's private registry,
// suitable for mounting at /metrics.
func (s *Store) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
