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

package curator

import (
	"time"

	"vvtvcore/internal/logging"
	"vvtvcore/internal/model"
)

// Decision is the Curator's advisory outcome.
type Decision string

const (
	DecisionAdvice Decision = "advice"
	DecisionApply  Decision = "apply"
)

const (
	defaultConfidenceThreshold   = 0.62
	defaultTokenBucketCapacity   = 6.0
	defaultTokenBucketRefillHour = 6.0
)

// MetricsRecorder is the subset of the metrics store the curator needs.
type MetricsRecorder interface {
	RecordMetric(kind string, value float64, context map[string]any, ts time.Time) error
}

// Config tunes the Curator Vigilante.
type Config struct {
	LogPath               string
	ConfidenceThreshold   float64
	MaxReorderDistance    int
	TokenBucketCapacity   float64
	TokenBucketRefillHour float64
}

// DefaultConfig returns the documented curator defaults.
func DefaultConfig(logPath string) Config {
	return Config{
		LogPath:               logPath,
		ConfidenceThreshold:   defaultConfidenceThreshold,
		MaxReorderDistance:    DefaultMaxReorderDistance,
		TokenBucketCapacity:   defaultTokenBucketCapacity,
		TokenBucketRefillHour: defaultTokenBucketRefillHour,
	}
}

// Vigilante is the Curator Vigilante.
type Vigilante struct {
	config  Config
	bucket  *TokenBucket
	log     *logging.JSONLAppender
	metrics MetricsRecorder
}

// New constructs a Vigilante. now seeds the token bucket's initial fill time.
func New(config Config, metrics MetricsRecorder, now time.Time) (*Vigilante, error) {
	var appender *logging.JSONLAppender
	var err error
	if config.LogPath != "" {
		appender, err = logging.NewJSONLAppender(config.LogPath)
		if err != nil {
			return nil, err
		}
	}
	return &Vigilante{
		config:  config,
		bucket:  NewTokenBucket(config.TokenBucketCapacity, config.TokenBucketRefillHour, now),
		log:     appender,
		metrics: metrics,
	}, nil
}

// logEntry is the JSONL review-log record shape.
type logEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Decision   Decision  `json:"decision"`
	Confidence float64   `json:"confidence"`
	Signals    []SignalResult `json:"signals"`
	Order      []string  `json:"order"`
}

// ReviewResult is the outcome of one Review call.
type ReviewResult struct {
	Decision   Decision
	Confidence float64
	Signals    []SignalResult
	Items      []model.Candidate // input order under Advice, reordered under Apply
}

// TokenBucket exposes the Vigilante's rate limiter for callers that need to
// observe remaining budget (telemetry, tests) without consuming it.
func (v *Vigilante) TokenBucket() *TokenBucket {
	return v.bucket
}

// Review evaluates the current selection and, under Apply, returns a
// reordered permutation. Items are never removed.
func (v *Vigilante) Review(items []model.Candidate, curatorLocked bool, now time.Time) ReviewResult {
	signals := EvaluateSignals(items, now)
	confidence := Confidence(signals)

	decision := DecisionAdvice
	outItems := items

	canApply := confidence >= v.config.ConfidenceThreshold && !curatorLocked
	if canApply && v.bucket.Take(1.0, now) {
		decision = DecisionApply
		outItems = reorder(items, now, v.config.MaxReorderDistance)
	}

	order := make([]string, len(outItems))
	for i, c := range outItems {
		order[i] = c.PlanID
	}

	if v.log != nil {
		_ = v.log.Append(logEntry{
			Timestamp:  now,
			Decision:   decision,
			Confidence: confidence,
			Signals:    signals,
			Order:      order,
		})
	}

	if v.metrics != nil {
		_ = v.metrics.RecordMetric("curator_apply_budget_used_pct", v.bucket.UsedFraction(now), nil, now)
		for _, s := range signals {
			if s.Name == "novelty_temporal_kld" {
				_ = v.metrics.RecordMetric("novelty_temporal_kld", s.Value, nil, now)
			}
		}
	}

	return ReviewResult{Decision: decision, Confidence: confidence, Signals: signals, Items: outItems}
}

// Close releases the JSONL log file handle.
func (v *Vigilante) Close() error {
	if v.log != nil {
		return v.log.Close()
	}
	return nil
}
