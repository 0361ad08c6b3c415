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
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sql-bulk-failover/internal/restclient"
)

const ineligibleMessage = "not eligible (hyperscale) or not active (offline)"

// notInStateToFailoverCode is the poll-reported error code that indicates the
// database didn't need a failover (e.g. serverless and offline), not
// that the failover attempt itself failed.
const notInStateToFailoverCode = "DatabaseNotInStateToFailover"

// Tracker drives a single target's LRO state machine by issuing the
// initiating POST and subsequent status polls against the management
// plane. It performs no transport-level retry; the Orchestrator's sweep
// pacing is its only timing control.
type Tracker struct {
	client *restclient.Client
}

// NewTracker returns a Tracker that talks to the management plane
// through client.
func NewTracker(client *restclient.Client) *Tracker {
	return &Tracker{client: client}
}

// Initiate transitions a Pending target forward. Ineligible targets move
// straight to Skipped; eligible targets issue the failover POST and move
// to InProgress or Failed depending on the response.
func (t *Tracker) Initiate(ctx context.Context, target *Target) error {
	if target.Status != StatusPending {
		return fmt.Errorf("initiate called on target %s in status %s, want Pending", target.ResourceID, target.Status)
	}

	if !target.ShouldFailover {
		target.Status = StatusSkipped
		target.Message = ineligibleMessage
		return nil
	}

	resp, err := t.client.Do(ctx, http.MethodPost, target.FailoverPath())
	if err != nil {
		return fmt.Errorf("initiate failover for %s: %w", target.ResourceID, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		target.Status = StatusFailed
		target.Message = string(resp.Body)
		return nil
	}

	asyncOpURL := resp.Headers.Get("Azure-AsyncOperation")
	target.StatusPath = restclient.StripManagementBase(asyncOpURL)
	target.Status = StatusInProgress
	return nil
}

// lroStatusBody is the subset of an LRO status payload the tracker needs
// to decide the next transition.
type lroStatusBody struct {
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Poll advances a single InProgress target by querying its status
// endpoint once. It is a no-op error if called on a target that isn't
// InProgress.
func (t *Tracker) Poll(ctx context.Context, target *Target) error {
	if target.Status != StatusInProgress {
		return fmt.Errorf("poll called on target %s in status %s, want InProgress", target.ResourceID, target.Status)
	}

	resp, err := t.client.Do(ctx, http.MethodGet, target.StatusPath)
	if err != nil {
		return fmt.Errorf("poll status for %s: %w", target.ResourceID, err)
	}

	if resp.StatusCode != http.StatusOK {
		target.Status = StatusFailed
		target.Message = string(resp.Body)
		return nil
	}

	var body lroStatusBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return fmt.Errorf("decode LRO status for %s: %w", target.ResourceID, err)
	}

	switch body.Status {
	case "Succeeded":
		target.Status = StatusSucceeded
	case "Failed":
		if body.Error != nil && body.Error.Code == notInStateToFailoverCode {
			target.Status = StatusSkipped
			target.Message = "serverless/offline, no failover needed"
		} else {
			target.Status = StatusFailed
			if body.Error != nil {
				target.Message = body.Error.Message
			}
		}
	default:
		// InProgress, Running, or any other non-terminal status reported
		// by the management plane: stay InProgress.
	}

	return nil
}

// Cancel marks a non-terminal target as Failed with a cancellation
// message. It is a no-op on targets already terminal.
func (t *Tracker) Cancel(target *Target) {
	if target.Status.IsTerminal() {
		return
	}
	target.Status = StatusFailed
	target.Message = "cancelled"
}
