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

// Package canary implements the Canary Controller: traffic-split
// validation of a candidate BusinessLogicSnapshot against a baseline, via
// a stage progression and statistical KPI gates.
package canary

import (
	"hash/fnv"

	"github.com/dgryski/go-rendezvous"

	"vvtvcore/internal/model"
)

// Group names the two disjoint traffic groups.
type Group string

const (
	GroupControl Group = "control"
	GroupCanary  Group = "canary"
)

// rendezvousHash satisfies rendezvous.Hasher (func(string) uint64).
func rendezvousHash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// totalVirtualNodes controls split granularity: at 100 virtual nodes, one
// percentage point of traffic corresponds to one canary virtual node.
const totalVirtualNodes = 100

// Router routes a stable request identifier into control/canary using
// rendezvous (highest-random-weight) hashing over virtual nodes, so that
// any request already routed to canary stays in canary as the traffic
// percentage advances through stages: growing the canary node set only
// ever steals assignments away from control, never flips an existing
// canary assignment back.
type Router struct {
	trafficPercent int
	rv             *rendezvous.Rendezvous
}

// NewRouter builds a router at the given traffic percentage (0-100).
func NewRouter(trafficPercent int) *Router {
	r := &Router{trafficPercent: clampPercent(trafficPercent)}
	r.rebuild()
	return r
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func (r *Router) rebuild() {
	nodes := make([]string, 0, totalVirtualNodes)
	for i := 0; i < totalVirtualNodes-r.trafficPercent; i++ {
		nodes = append(nodes, controlNodeName(i))
	}
	for i := 0; i < r.trafficPercent; i++ {
		nodes = append(nodes, canaryNodeName(i))
	}
	r.rv = rendezvous.New(nodes, rendezvousHash)
}

func controlNodeName(i int) string { return "control-" + itoa(i) }
func canaryNodeName(i int) string  { return "canary-" + itoa(i) }

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

// Advance moves the router to a new traffic percentage as the stage
// progression (e.g. 5 -> 25 -> 50 -> 100) proceeds.
func (r *Router) Advance(trafficPercent int) {
	r.trafficPercent = clampPercent(trafficPercent)
	r.rebuild()
}

// RouteToControl forces all traffic to control immediately, used on
// emergency abort.
func (r *Router) RouteToControl() { r.Advance(0) }

// Group returns which group a stable request identifier routes to.
func (r *Router) Group(requestID string) Group {
	node := r.rv.Lookup(requestID)
	if len(node) >= 7 && node[:7] == "canary-" {
		return GroupCanary
	}
	return GroupControl
}

// TrafficPercent returns the router's current canary traffic percentage.
func (r *Router) TrafficPercent() int { return r.trafficPercent }

// DefaultStages returns the standard progression: 5 -> 25 -> 50 -> 100.
func DefaultStages(dwell model.CanaryStage) []model.CanaryStage {
	stages := make([]model.CanaryStage, 4)
	for i, pct := range []int{5, 25, 50, 100} {
		stages[i] = model.CanaryStage{TrafficPercent: pct, DwellTime: dwell.DwellTime}
	}
	return stages
}
