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

// Package businesslogic loads and validates the versioned
// BusinessLogicSnapshot that carries the selector knobs, from a YAML
// document via gopkg.in/yaml.v3.
package businesslogic

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"vvtvcore/internal/errs"
)

// SelectionMethod enumerates recognized selection strategies. Only
// GumbelTopK is implemented; the others are accepted as forward-compatible
// configuration values but rejected at validation time (see Validate).
type SelectionMethod string

const (
	SelectionGumbelTopK     SelectionMethod = "gumbel_top_k"
	SelectionSoftmax        SelectionMethod = "softmax"
	SelectionGreedy         SelectionMethod = "greedy"
	SelectionEpsilonGreedy  SelectionMethod = "epsilon_greedy"
)

// SeedStrategy enumerates how the slot seed is derived.
type SeedStrategy string

const (
	SeedStrategySlotHash SeedStrategy = "slot_hash"
	SeedStrategyGlobal   SeedStrategy = "global"
	SeedStrategyWindow   SeedStrategy = "window"
)

// Knobs carries the deterministic selector knobs an operator sets per policy
// version.
type Knobs struct {
	BoostBucket        string   `yaml:"boost_bucket"`
	MusicMoodFocus     []string `yaml:"music_mood_focus"`
	InterstitialsRatio float64  `yaml:"interstitials_ratio"`
	PlanSelectionBias  float64  `yaml:"plan_selection_bias"`
}

// Scheduling controls slot timing and curator overrides.
type Scheduling struct {
	SlotDurationMinutes uint32 `yaml:"slot_duration_minutes"`
	WindowID            *uint64 `yaml:"window_id"`
	GlobalSeed          *uint64 `yaml:"global_seed"`
	LockCuratorApplies  bool    `yaml:"lock_curator_applies"`
}

// Selection controls the Plan Selector's scoring and sampling behavior.
type Selection struct {
	Method         SelectionMethod `yaml:"method"`
	Temperature    float64         `yaml:"temperature"`
	TopK           *int            `yaml:"top_k"`
	SeedStrategy   SeedStrategy    `yaml:"seed_strategy"`
	DiversityQuota float64         `yaml:"diversity_quota"`
}

// Exploration controls epsilon-greedy-style exploration (not implemented by
// the selector itself, but validated so config stays forward-compatible).
type Exploration struct {
	Epsilon    float64 `yaml:"epsilon"`
	MaxRetries *uint32 `yaml:"max_retries"`
}

// Autopilot controls whether the daily optimizer is enabled and how far it
// may move knobs in a single cycle.
type Autopilot struct {
	Enabled           bool     `yaml:"enabled"`
	MaxDailyVariation *float64 `yaml:"max_daily_variation"`
}

// Kpis names the business KPIs the autopilot optimizes for.
type Kpis struct {
	Primary   []string `yaml:"primary"`
	Secondary []string `yaml:"secondary"`
}

// Snapshot is an immutable, versioned BusinessLogicSnapshot. Every published
// snapshot carries a content-hash identifier computed from its fields.
type Snapshot struct {
	PolicyVersion string      `yaml:"policy_version"`
	Env           string      `yaml:"env"`
	Knobs         Knobs       `yaml:"knobs"`
	Scheduling    Scheduling  `yaml:"scheduling"`
	Selection     Selection   `yaml:"selection"`
	Exploration   Exploration `yaml:"exploration"`
	Autopilot     Autopilot   `yaml:"autopilot"`
	Kpis          Kpis        `yaml:"kpis"`

	ParentHash string    `yaml:"-"`
	Rationale  string    `yaml:"-"`
	DeployedAt time.Time `yaml:"-"`
}

func defaultScheduling() Scheduling { return Scheduling{SlotDurationMinutes: 15} }
func defaultSelection() Selection   { return Selection{Method: SelectionGumbelTopK, Temperature: 0.85, SeedStrategy: SeedStrategySlotHash} }
func defaultExploration() Exploration { return Exploration{Epsilon: 0.1} }

// LoadFromFile reads a Snapshot from a YAML document and validates it.
// A configuration error here is fatal at startup.
func LoadFromFile(path string) (*Snapshot, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, "read business logic file", err)
	}
	s := &Snapshot{
		Scheduling:  defaultScheduling(),
		Selection:   defaultSelection(),
		Exploration: defaultExploration(),
	}
	if err := yaml.Unmarshal(content, s); err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "parse business logic yaml", err)
	}
	if s.Scheduling.SlotDurationMinutes == 0 {
		s.Scheduling = defaultScheduling()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate enforces the knob range invariants.
func (s *Snapshot) Validate() error {
	if s.Knobs.PlanSelectionBias < -0.20 || s.Knobs.PlanSelectionBias > 0.20 {
		return errs.New(errs.KindConfiguration, "plan_selection_bias must be within [-0.20, 0.20]")
	}
	if s.Selection.Temperature <= 0 {
		return errs.New(errs.KindConfiguration, "selection.temperature must be > 0")
	}
	if s.Selection.TopK != nil && *s.Selection.TopK <= 0 {
		return errs.New(errs.KindConfiguration, "selection.top_k must be greater than zero")
	}
	if s.Exploration.Epsilon < 0 || s.Exploration.Epsilon > 1 {
		return errs.New(errs.KindConfiguration, "exploration.epsilon must be within [0, 1]")
	}
	if s.Selection.DiversityQuota < 0 || s.Selection.DiversityQuota > 1 {
		return errs.New(errs.KindConfiguration, "selection.diversity_quota must be within [0, 1]")
	}
	if s.Autopilot.MaxDailyVariation != nil && *s.Autopilot.MaxDailyVariation < 0 {
		return errs.New(errs.KindConfiguration, "autopilot.max_daily_variation must be >= 0")
	}
	if s.Scheduling.SlotDurationMinutes == 0 {
		return errs.New(errs.KindConfiguration, "scheduling.slot_duration_minutes must be >= 1")
	}
	switch s.Selection.Method {
	case SelectionGumbelTopK:
		// implemented
	case SelectionSoftmax, SelectionGreedy, SelectionEpsilonGreedy, "":
		if s.Selection.Method != "" && s.Selection.Method != SelectionGumbelTopK {
			return errs.New(errs.KindConfiguration, fmt.Sprintf("selection method %q is recognized but not implemented by this build", s.Selection.Method))
		}
	default:
		return errs.New(errs.KindConfiguration, fmt.Sprintf("unknown selection method %q", s.Selection.Method))
	}
	return nil
}

// SelectionTemperature returns the configured selection temperature.
func (s *Snapshot) SelectionTemperature() float64 { return s.Selection.Temperature }

// SelectionTopK returns the number of items to sample, falling back to
// defaultValue when unset, clamped to a minimum of 1.
func (s *Snapshot) SelectionTopK(defaultValue int) int {
	if s.Selection.TopK == nil {
		return max(defaultValue, 1)
	}
	return max(*s.Selection.TopK, 1)
}

// PlanSelectionBias returns the additive global score offset.
func (s *Snapshot) PlanSelectionBias() float64 { return s.Knobs.PlanSelectionBias }

// SlotDuration returns the configured slot duration.
func (s *Snapshot) SlotDuration() time.Duration {
	return time.Duration(s.Scheduling.SlotDurationMinutes) * time.Minute
}

// GlobalSeed returns the configured global seed, defaulting to 42.
func (s *Snapshot) GlobalSeed() uint64 {
	if s.Scheduling.GlobalSeed == nil {
		return 42
	}
	return *s.Scheduling.GlobalSeed
}

// WindowID returns the configured window identifier, defaulting to 0.
func (s *Snapshot) WindowID() uint64 {
	if s.Scheduling.WindowID == nil {
		return 0
	}
	return *s.Scheduling.WindowID
}

// CuratorLocked reports whether curator applies are globally locked.
func (s *Snapshot) CuratorLocked() bool { return s.Scheduling.LockCuratorApplies }

// DiversityQuota returns the minimum distinct-kind fraction required in a
// selected batch.
func (s *Snapshot) DiversityQuota() float64 { return s.Selection.DiversityQuota }

// Hash computes the snapshot's content-hash identifier over its
// policy-relevant fields (excludes ParentHash/Rationale/DeployedAt, which
// are metadata about the publish event rather than the content itself).
func (s *Snapshot) Hash() (string, error) {
	b, err := yaml.Marshal(struct {
		PolicyVersion string
		Env           string
		Knobs         Knobs
		Scheduling    Scheduling
		Selection     Selection
		Exploration   Exploration
		Autopilot     Autopilot
		Kpis          Kpis
	}{s.PolicyVersion, s.Env, s.Knobs, s.Scheduling, s.Selection, s.Exploration, s.Autopilot, s.Kpis})
	if err != nil {
		return "", fmt.Errorf("businesslogic: hash snapshot: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// WithKnob returns a copy of the snapshot with one selector knob set,
// used by the autopilot to build a candidate snapshot from proposed deltas.
func (s Snapshot) WithKnob(parameter string, value float64) Snapshot {
	out := s
	switch parameter {
	case "selection_temperature":
		out.Selection.Temperature = value
	case "plan_selection_bias":
		out.Knobs.PlanSelectionBias = value
	case "selection_top_k":
		k := int(value)
		out.Selection.TopK = &k
	}
	return out
}

// Knob returns the current value of a named controllable knob.
func (s Snapshot) Knob(parameter string) (float64, bool) {
	switch parameter {
	case "selection_temperature":
		return s.Selection.Temperature, true
	case "plan_selection_bias":
		return s.Knobs.PlanSelectionBias, true
	case "selection_top_k":
		if s.Selection.TopK != nil {
			return float64(*s.Selection.TopK), true
		}
		return 0, false
	}
	return 0, false
}

// MarshalJSON renders every field as JSON, including the ParentHash,
// Rationale and DeployedAt publish metadata that YAML omits, the storage
// format the Postgres-backed snapshot store persists in its JSONB body
// column.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot
	return json.Marshal(alias(s))
}

// UnmarshalJSON parses the JSON body a snapshot store read back, then
// revalidates it the same way LoadFromFile does.
func UnmarshalJSON(body []byte) (Snapshot, error) {
	type alias Snapshot
	var a alias
	if err := json.Unmarshal(body, &a); err != nil {
		return Snapshot{}, errs.Wrap(errs.KindIO, "unmarshal snapshot json", err)
	}
	s := Snapshot(a)
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
