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
	"strconv"
	"strings"
	"sync"
	"time"

	"vvtvcore/internal/errs"
)

// Scheduler wakes once a minute and triggers a cycle when the wall clock
// enters a 5-minute window either side of a configured UTC time on a day
// that hasn't already run one. A failed cycle is retried up to max_retries
// times; when the last retry also fails it self-pauses for 24h.
type Scheduler struct {
	mu sync.Mutex

	hour, minute int
	timeout      time.Duration
	maxRetries   int
	retryDelay   time.Duration

	lastExecution *time.Time
	lastSuccess   *time.Time

	consecutiveFailures int
	nextRetryAt         *time.Time
	pauseUntil          *time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// SchedulerConfig tunes the daily cycle trigger.
type SchedulerConfig struct {
	ScheduleUTC       string // "HH:MM", e.g. "03:00"
	TimeoutMinutes    int
	MaxRetries        int
	RetryDelayMinutes int
}

// DefaultSchedulerConfig returns the documented defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{ScheduleUTC: "03:00", TimeoutMinutes: 10, MaxRetries: 3, RetryDelayMinutes: 30}
}

// NewScheduler constructs a Scheduler from a "HH:MM" UTC schedule string.
func NewScheduler(config SchedulerConfig) (*Scheduler, error) {
	hour, minute, err := ParseSchedule(config.ScheduleUTC)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		hour:       hour,
		minute:     minute,
		timeout:    time.Duration(config.TimeoutMinutes) * time.Minute,
		maxRetries: config.MaxRetries,
		retryDelay: time.Duration(config.RetryDelayMinutes) * time.Minute,
	}, nil
}

// ParseSchedule parses a "HH:MM" UTC schedule string.
func ParseSchedule(schedule string) (hour, minute int, err error) {
	parts := strings.Split(schedule, ":")
	if len(parts) != 2 {
		return 0, 0, errs.New(errs.KindConfiguration, "schedule must be in HH:MM format")
	}
	hour, herr := strconv.Atoi(parts[0])
	minute, merr := strconv.Atoi(parts[1])
	if herr != nil || merr != nil {
		return 0, 0, errs.New(errs.KindConfiguration, "schedule must contain numeric HH:MM")
	}
	if hour < 0 || hour > 23 {
		return 0, 0, errs.New(errs.KindConfiguration, "schedule hour must be 0-23")
	}
	if minute < 0 || minute > 59 {
		return 0, 0, errs.New(errs.KindConfiguration, "schedule minute must be 0-59")
	}
	return hour, minute, nil
}

// NextExecutionTime returns today's scheduled time if it hasn't passed yet,
// else tomorrow's.
func (s *Scheduler) NextExecutionTime(now time.Time) time.Time {
	today := s.scheduledToday(now)
	if now.Before(today) {
		return today
	}
	return today.AddDate(0, 0, 1)
}

func (s *Scheduler) scheduledToday(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), s.hour, s.minute, 0, 0, time.UTC)
}

// ShouldExecuteNow reports whether now falls within the ±5 minute execution
// window and no cycle has already run today. The window anchors on today's
// scheduled time (not NextExecutionTime, which has already rolled to
// tomorrow once the minute passes) so the trailing half still fires.
func (s *Scheduler) ShouldExecuteNow(now time.Time) bool {
	scheduled := s.scheduledToday(now)
	windowStart := scheduled.Add(-5 * time.Minute)
	windowEnd := scheduled.Add(5 * time.Minute)
	inWindow := !now.Before(windowStart) && !now.After(windowEnd)

	notExecutedToday := true
	if s.lastExecution != nil {
		notExecutedToday = !sameUTCDate(*s.lastExecution, now)
	}
	return inWindow && notExecutedToday
}

// IsPaused reports whether the scheduler itself (distinct from the
// anti-drift monitor's pause) is sitting out a post-retry-exhaustion pause.
func (s *Scheduler) IsPaused(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseUntil != nil && now.Before(*s.pauseUntil)
}

// Tick evaluates, at time now, whether a cycle should run, runs it under
// the configured timeout if so, and applies the retry/pause policy to the
// outcome. It returns whether a cycle ran.
func (s *Scheduler) Tick(ctx context.Context, now time.Time, run func(context.Context, time.Time) (CycleResult, error)) (bool, CycleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pauseUntil != nil {
		if now.Before(*s.pauseUntil) {
			return false, CycleResult{}, nil
		}
		s.pauseUntil = nil
		s.consecutiveFailures = 0
	}

	retryDue := s.nextRetryAt != nil && !now.Before(*s.nextRetryAt)
	if !s.ShouldExecuteNow(now) && !retryDue {
		return false, CycleResult{}, nil
	}

	cycleCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, err := run(cycleCtx, now)

	t := now
	s.lastExecution = &t
	if err == nil {
		s.lastSuccess = &t
		s.consecutiveFailures = 0
		s.nextRetryAt = nil
		return true, result, nil
	}

	s.consecutiveFailures++
	if s.consecutiveFailures <= s.maxRetries {
		next := now.Add(s.retryDelay)
		s.nextRetryAt = &next
	} else {
		pauseUntil := now.Add(24 * time.Hour)
		s.pauseUntil = &pauseUntil
		s.nextRetryAt = nil
	}
	return true, result, err
}

// Run starts the minute-granularity background loop until Stop is called or
// ctx is cancelled. clock lets tests inject a deterministic time source.
func (s *Scheduler) Run(ctx context.Context, clock func() time.Time, run func(context.Context, time.Time) (CycleResult, error)) {
	s.stopChan = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_, _, _ = s.Tick(ctx, clock(), run)
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop shuts the background loop down.
func (s *Scheduler) Stop() {
	if s.stopChan != nil {
		close(s.stopChan)
	}
	s.wg.Wait()
}

func sameUTCDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
