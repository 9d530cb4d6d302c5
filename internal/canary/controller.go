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

package canary

import (
	"time"

	"github.com/google/uuid"

	"vvtvcore/internal/errs"
	"vvtvcore/internal/logging"
	"vvtvcore/internal/model"
)

// Outcome records what a stage evaluation decided and why.
type Outcome struct {
	Decision    model.CanaryDecision
	Evaluations []GateEvaluation
	TimedOut    bool
}

// Controller drives one CanaryDeployment through its stage progression,
// evaluating KPI gates at each dwell-time boundary and aborting (rerouting
// 100% of traffic back to control) on the first rejection. A stage that is
// still inconclusive after the time budget has run out counts as a
// rejection; an overrun stage that accepts still advances.
type Controller struct {
	deployment model.CanaryDeployment
	router     *Router
	test       Test
	log        *logging.JSONLAppender
	aborted    bool
	accepted   bool
}

// NewDeployment starts a canary deployment comparing baselineHash (the
// currently deployed BusinessLogicSnapshot) against candidateHash (the
// autopilot's proposal), over the given stages and KPI gates.
func NewDeployment(baselineHash, candidateHash string, stages []model.CanaryStage, gates []model.KPIGate, timeBudget time.Duration, testKind TestKind, logPath string, now time.Time) (*Controller, error) {
	if len(stages) == 0 {
		return nil, errs.New(errs.KindConfiguration, "canary deployment requires at least one stage")
	}
	var appender *logging.JSONLAppender
	var err error
	if logPath != "" {
		appender, err = logging.NewJSONLAppender(logPath)
		if err != nil {
			return nil, err
		}
	}
	deployment := model.CanaryDeployment{
		ID:                uuid.NewString(),
		BaselineHash:      baselineHash,
		CandidateHash:     candidateHash,
		Stages:            stages,
		Gates:             gates,
		TimeBudget:        timeBudget,
		StartedAt:         now,
		CurrentStageIndex: 0,
		CurrentTrafficPct: stages[0].TrafficPercent,
	}
	c := &Controller{
		deployment: deployment,
		router:     NewRouter(stages[0].TrafficPercent),
		test:       NewTest(testKind, deploymentSeed(deployment.ID)),
		log:        appender,
	}
	// Power check: gates with a minimum-detectable-effect whose configured
	// observation floor cannot reach 80% power get a warning up front; the
	// deployment still proceeds.
	for _, g := range gates {
		if g.MinEffectSize <= 0 {
			continue
		}
		required := RequiredSampleSize(g.MinEffectSize, alpha, 0.80)
		if g.MinObservations > 0 && g.MinObservations < required {
			logging.Infof("canary %s: gate %s is underpowered (min_observations=%d, need ~%d per group for mde=%.2f)",
				deployment.ID, g.Metric, g.MinObservations, required, g.MinEffectSize)
			if appender != nil {
				_ = appender.Append(map[string]any{
					"timestamp":        now,
					"event":            "power_warning",
					"metric":           g.Metric,
					"min_observations": g.MinObservations,
					"required_n":       required,
				})
			}
		}
	}
	return c, nil
}

func deploymentSeed(id string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(id); i++ {
		h ^= uint64(id[i])
		h *= 1099511628211
	}
	return h
}

// Deployment returns a copy of the current deployment state.
func (c *Controller) Deployment() model.CanaryDeployment { return c.deployment }

// Router exposes the live traffic router for request-level routing decisions.
func (c *Controller) Router() *Router { return c.router }

type stageEvent struct {
	Timestamp  time.Time              `json:"timestamp"`
	StageIndex int                    `json:"stage_index"`
	Traffic    int                    `json:"traffic_percent"`
	Decision   model.CanaryDecision   `json:"decision"`
	Reasons    []string               `json:"reasons"`
}

// EvaluateStage runs the current stage's KPI gates against collected
// per-metric samples (metric name -> observations) and decides whether to
// advance, hold (inconclusive, stay at this stage and collect more data),
// accept (this was the final stage and it passed), or reject/abort.
//
// now is compared against the deployment's StartedAt and TimeBudget; a
// budget overrun while still inconclusive is treated as a rejection, since
// an inconclusive result than cannot resolve within budget must not block
// the control plane indefinitely.
func (c *Controller) EvaluateStage(baseline, candidate map[string][]float64, now time.Time) (Outcome, error) {
	if c.aborted || c.accepted {
		return Outcome{}, errs.New(errs.KindConfiguration, "deployment already terminal")
	}

	timedOut := c.deployment.TimeBudget > 0 && now.Sub(c.deployment.StartedAt) > c.deployment.TimeBudget

	evaluations := make([]GateEvaluation, 0, len(c.deployment.Gates))
	for _, gate := range c.deployment.Gates {
		evaluations = append(evaluations, EvaluateGate(gate, c.test, baseline[gate.Metric], candidate[gate.Metric]))
	}
	decision := Decide(evaluations)
	if timedOut && decision == model.DecisionInconclusive {
		decision = model.DecisionReject
	}

	reasons := make([]string, len(evaluations))
	for i, e := range evaluations {
		reasons[i] = e.Reason
	}
	if c.log != nil {
		_ = c.log.Append(stageEvent{
			Timestamp:  now,
			StageIndex: c.deployment.CurrentStageIndex,
			Traffic:    c.deployment.CurrentTrafficPct,
			Decision:   decision,
			Reasons:    reasons,
		})
	}

	switch decision {
	case model.DecisionReject:
		c.Abort()
	case model.DecisionAccept:
		if c.deployment.CurrentStageIndex == len(c.deployment.Stages)-1 {
			c.accepted = true
		} else {
			c.advance()
		}
	case model.DecisionInconclusive:
		// stay at the current stage, caller collects more samples
	}

	return Outcome{Decision: decision, Evaluations: evaluations, TimedOut: timedOut}, nil
}

func (c *Controller) advance() {
	c.deployment.CurrentStageIndex++
	c.deployment.CurrentTrafficPct = c.deployment.Stages[c.deployment.CurrentStageIndex].TrafficPercent
	c.router.Advance(c.deployment.CurrentTrafficPct)
}

// Abort immediately reroutes all traffic to control and marks the
// deployment aborted. Idempotent.
func (c *Controller) Abort() {
	c.aborted = true
	c.router.RouteToControl()
	c.deployment.CurrentTrafficPct = 0
}

// Accepted reports whether the deployment reached its final stage and
// passed that stage's gates, whatever traffic percentage the stage carries.
func (c *Controller) Accepted() bool { return c.accepted }

// Aborted reports whether the deployment was rejected or timed out.
func (c *Controller) Aborted() bool { return c.aborted }

// Close releases the stage-event log file handle.
func (c *Controller) Close() error {
	if c.log != nil {
		return c.log.Close()
	}
	return nil
}
