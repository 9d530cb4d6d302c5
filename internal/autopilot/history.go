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

package autopilot

import (
	"time"

	"vvtvcore/internal/errs"
)

// ParameterHistory and IncidentTriage are explicit stubs: both contracts
// are still unsettled. ParameterVersion/TriageReport keep their intended
// field shape so a future implementation has somewhere to land without a
// breaking rename.

// ParameterVersion is a versioned record of one deployed snapshot change.
type ParameterVersion struct {
	VersionID  string
	Timestamp  time.Time
	Changes    []ProposedChange
	Rationale  string
	FinalHash  string
}

// ParameterHistory is an unimplemented versioning/rollback store for
// deployed snapshots, distinct from internal/store.SnapshotStore (which
// only supports publish/load by hash, not rollback-by-version-id).
type ParameterHistory struct {
	historyDir string
}

// NewParameterHistory constructs a stub ParameterHistory rooted at dir.
func NewParameterHistory(dir string) *ParameterHistory {
	return &ParameterHistory{historyDir: dir}
}

// StoreVersion is unimplemented.
func (h *ParameterHistory) StoreVersion(changes []ProposedChange, rationale string, now time.Time) (ParameterVersion, error) {
	return ParameterVersion{}, errs.Wrap(errs.KindConfiguration, "parameter_history.store_version", errs.ErrNotImplemented)
}

// RollbackToVersion is unimplemented.
func (h *ParameterHistory) RollbackToVersion(versionID string) error {
	return errs.Wrap(errs.KindConfiguration, "parameter_history.rollback_to_version", errs.ErrNotImplemented)
}
