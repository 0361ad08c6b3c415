// Copyright 2025 Microsoft Corporation
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

package sqlfailover

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/Azure/azure-sql-bulk-failover/internal/engineerror"
)

// DefaultPollInterval is the sleep between poll sweeps when the caller
// doesn't override it.
const DefaultPollInterval = 15 * time.Second

// PreFlightChecker is satisfied by anything that can gate a run on an
// active maintenance notification. It is invoked once, before Discovery.
type PreFlightChecker interface {
	Check(ctx context.Context, subscriptionID string) error
}

// Orchestrator runs the single synchronous reconcile loop: discover
// targets, then alternate initiate and poll sweeps until every target is
// terminal.
type Orchestrator struct {
	discoverer   *Discoverer
	tracker      *Tracker
	preFlight    PreFlightChecker
	pollInterval time.Duration
	metrics      *Metrics
	logger       logr.Logger

	// now and sleep are the clock and the inter-sweep wait;
	// NewOrchestrator sets them to time.Now and contextSleep.
	now   func() time.Time
	sleep func(context.Context, time.Duration)
}

// NewOrchestrator builds an Orchestrator. preFlight may be nil, meaning
// the pre-flight check is skipped entirely.
func NewOrchestrator(discoverer *Discoverer, tracker *Tracker, preFlight PreFlightChecker, pollInterval time.Duration, metrics *Metrics, logger logr.Logger) *Orchestrator {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Orchestrator{
		discoverer:   discoverer,
		tracker:      tracker,
		preFlight:    preFlight,
		pollInterval: pollInterval,
		metrics:      metrics,
		logger:       logger,
		now:          time.Now,
		sleep:        contextSleep,
	}
}

func contextSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Summary is the outcome of one Run: terminal counts, elapsed time, and
// (when any target failed) a line telling the operator what to do next.
type Summary struct {
	Succeeded     int
	Skipped       int
	Failed        int
	Elapsed       time.Duration
	RetryGuidance string
}

// Total is the count of targets the run produced, regardless of outcome.
func (s Summary) Total() int {
	return s.Succeeded + s.Skipped + s.Failed
}

// Run discovers every eligible database and elastic pool under
// subscriptionID, narrowed by resourceGroupFilter and serverFilter, and
// drives each to a terminal state. It blocks until every target is
// terminal or ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, subscriptionID, resourceGroupFilter, serverFilter string) (Summary, error) {
	start := o.now()

	if o.preFlight != nil {
		if err := o.preFlight.Check(ctx, subscriptionID); err != nil {
			return Summary{}, engineerror.New(engineerror.ClassPreFlight, err)
		}
	}

	targets, err := o.discoverer.Discover(ctx, subscriptionID, resourceGroupFilter, serverFilter)
	if err != nil {
		return Summary{}, engineerror.New(engineerror.ClassDiscovery, err)
	}
	o.logger.Info("discovered targets", "count", len(targets))

	discoveredAt := o.now()
	for _, target := range targets {
		target.StartedAt = discoveredAt
	}

	for !allTerminal(targets) {
		if ctx.Err() != nil {
			o.cancelRemaining(targets)
			break
		}

		o.initiatePending(ctx, targets)
		if ctx.Err() != nil {
			o.cancelRemaining(targets)
			break
		}

		if anyInProgress(targets) {
			o.sleep(ctx, o.pollInterval)
		}

		if ctx.Err() != nil {
			o.cancelRemaining(targets)
			break
		}

		o.pollInProgress(ctx, targets)
		o.metrics.observeSweep()
	}

	summary := summarize(targets, o.now().Sub(start))
	o.metrics.observeRunComplete(o.now())
	if ctx.Err() != nil {
		return summary, engineerror.New(engineerror.ClassCancelled, ctx.Err())
	}
	return summary, nil
}

func (o *Orchestrator) initiatePending(ctx context.Context, targets []*Target) {
	for _, target := range targets {
		if target.Status != StatusPending {
			continue
		}
		if err := o.tracker.Initiate(ctx, target); err != nil {
			o.logger.Error(err, "initiate failed", "resourceId", target.ResourceID)
			target.Status = StatusFailed
			target.Message = err.Error()
		}
		if target.Status.IsTerminal() {
			o.logger.Info("target reached terminal state", "resourceId", target.ResourceID, "status", target.Status)
			o.metrics.observeTerminal(target.Status, o.now().Sub(target.StartedAt))
		} else {
			o.logger.V(1).Info("target initiated", "resourceId", target.ResourceID, "status", target.Status)
		}
	}
}

func (o *Orchestrator) pollInProgress(ctx context.Context, targets []*Target) {
	for _, target := range targets {
		if target.Status != StatusInProgress {
			continue
		}
		if err := o.tracker.Poll(ctx, target); err != nil {
			o.logger.Error(err, "poll failed", "resourceId", target.ResourceID)
			target.Status = StatusFailed
			target.Message = err.Error()
		}
		if target.Status.IsTerminal() {
			o.logger.Info("target reached terminal state", "resourceId", target.ResourceID, "status", target.Status)
			o.metrics.observeTerminal(target.Status, o.now().Sub(target.StartedAt))
		} else {
			o.logger.V(1).Info("polled target still in progress", "resourceId", target.ResourceID)
		}
	}
}

func (o *Orchestrator) cancelRemaining(targets []*Target) {
	for _, target := range targets {
		if target.Status.IsTerminal() {
			continue
		}
		o.tracker.Cancel(target)
		o.metrics.observeTerminal(target.Status, o.now().Sub(target.StartedAt))
	}
}

func allTerminal(targets []*Target) bool {
	for _, target := range targets {
		if !target.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func anyInProgress(targets []*Target) bool {
	for _, target := range targets {
		if target.Status == StatusInProgress {
			return true
		}
	}
	return false
}

func summarize(targets []*Target, elapsed time.Duration) Summary {
	var s Summary
	s.Elapsed = elapsed
	for _, target := range targets {
		switch target.Status {
		case StatusSucceeded:
			s.Succeeded++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	if s.Failed > 0 {
		s.RetryGuidance = fmt.Sprintf(
			"%d target(s) failed; re-run against the affected servers once the underlying issue is resolved, or escalate if it persists",
			s.Failed,
		)
	}
	return s
}
