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
	"context"
	"errors"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := NewScheduler(DefaultSchedulerConfig())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s
}

func TestParseSchedule(t *testing.T) {
	cases := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{"03:00", 3, 0, false},
		{"23:59", 23, 59, false},
		{"24:00", 0, 0, true},
		{"03:60", 0, 0, true},
		{"0300", 0, 0, true},
		{"aa:bb", 0, 0, true},
	}
	for _, tc := range cases {
		h, m, err := ParseSchedule(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseSchedule(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSchedule(%q): %v", tc.in, err)
			continue
		}
		if h != tc.hour || m != tc.minute {
			t.Errorf("ParseSchedule(%q) = (%d, %d), want (%d, %d)", tc.in, h, m, tc.hour, tc.minute)
		}
	}
}

// The execution window spans five minutes either side of the scheduled
// minute, including the trailing half after the minute has passed.
func TestShouldExecuteNow_Window(t *testing.T) {
	s := newTestScheduler(t) // 03:00 UTC
	day := func(h, m int) time.Time { return time.Date(2026, 1, 1, h, m, 0, 0, time.UTC) }

	cases := []struct {
		now  time.Time
		want bool
	}{
		{day(2, 54), false},
		{day(2, 55), true},
		{day(3, 0), true},
		{day(3, 4), true},
		{day(3, 5), true},
		{day(3, 6), false},
		{day(15, 0), false},
	}
	for _, tc := range cases {
		if got := s.ShouldExecuteNow(tc.now); got != tc.want {
			t.Errorf("ShouldExecuteNow(%s) = %v, want %v", tc.now.Format("15:04"), got, tc.want)
		}
	}
}

func TestTick_RunsOncePerDay(t *testing.T) {
	s := newTestScheduler(t)
	now := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)

	runs := 0
	run := func(ctx context.Context, t time.Time) (CycleResult, error) {
		runs++
		return CycleResult{State: StateCompleted}, nil
	}

	ran, _, err := s.Tick(context.Background(), now, run)
	if err != nil || !ran {
		t.Fatalf("first tick: ran=%v err=%v", ran, err)
	}
	ran, _, err = s.Tick(context.Background(), now.Add(time.Minute), run)
	if err != nil || ran {
		t.Fatalf("second tick same day: ran=%v err=%v", ran, err)
	}
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}

	ran, _, err = s.Tick(context.Background(), now.AddDate(0, 0, 1), run)
	if err != nil || !ran {
		t.Fatalf("next-day tick: ran=%v err=%v", ran, err)
	}
	if runs != 2 {
		t.Fatalf("runs = %d, want 2", runs)
	}
}

func TestTick_RetriesThenPauses(t *testing.T) {
	s := newTestScheduler(t) // max_retries 3, retry delay 30m
	now := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)

	failing := func(ctx context.Context, t time.Time) (CycleResult, error) {
		return CycleResult{State: StateFailed}, errors.New("boom")
	}

	ran, _, err := s.Tick(context.Background(), now, failing)
	if !ran || err == nil {
		t.Fatalf("initial failing tick: ran=%v err=%v", ran, err)
	}

	// Three retries at 30 minute spacing, then the scheduler self-pauses.
	at := now
	for i := 0; i < 3; i++ {
		at = at.Add(30 * time.Minute)
		ran, _, err = s.Tick(context.Background(), at, failing)
		if !ran || err == nil {
			t.Fatalf("retry %d: ran=%v err=%v", i+1, ran, err)
		}
	}

	at = at.Add(30 * time.Minute)
	ran, _, _ = s.Tick(context.Background(), at, failing)
	if ran {
		t.Fatal("expected no run once the scheduler has paused")
	}
	if !s.IsPaused(at) {
		t.Fatal("expected scheduler pause after retry exhaustion")
	}
	if s.IsPaused(at.Add(25 * time.Hour)) {
		t.Fatal("expected pause to lift after 24h")
	}
}
