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

// Package sqlfailover implements the bulk failover engine: discovery of
// eligible Azure SQL databases and elastic pools under a subscription,
// and the per-target long-running-operation state machine that drives
// each one to a terminal state.
package sqlfailover

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	azcorearm "github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
)

// APIVersion is the Azure SQL management API version this engine speaks.
const APIVersion = "2021-02-01-preview"

// sqlServerResourceType is the ARM resource type of an Azure SQL logical
// server, used to validate Server descriptors parsed from a listing
// entry's resource id.
var sqlServerResourceType = mustParseResourceType("Microsoft.Sql/servers")

func mustParseResourceType(s string) azcorearm.ResourceType {
	rt, err := azcorearm.ParseResourceType(s)
	if err != nil {
		panic(err) // coding error: s is a compile-time constant
	}
	return rt
}

// Server is the immutable (subscriptionId, resourceGroupName, name)
// triple identifying a logical SQL server, derived by positional parsing
// of a management resource id.
type Server struct {
	SubscriptionID    string
	ResourceGroupName string
	Name              string
}

// ParseServerID parses a logical server's management resource id of the
// form /subscriptions/<s>/resourcegroups/<rg>/.../servers/<name>.
func ParseServerID(rawResourceID string) (*Server, error) {
	res, err := azcorearm.ParseResourceID(rawResourceID)
	if err != nil {
		return nil, fmt.Errorf("'%s' is not a valid Azure resource id: %w", rawResourceID, err)
	}
	if !strings.EqualFold(res.ResourceType.String(), sqlServerResourceType.String()) {
		return nil, fmt.Errorf("'%s' is not a '%s' resource id", rawResourceID, sqlServerResourceType)
	}
	if res.SubscriptionID == "" || res.ResourceGroupName == "" || res.Name == "" {
		return nil, fmt.Errorf("'%s' is missing subscription, resource group or name", rawResourceID)
	}
	return &Server{
		SubscriptionID:    res.SubscriptionID,
		ResourceGroupName: res.ResourceGroupName,
		Name:              res.Name,
	}, nil
}

// Kind distinguishes a failover target's underlying resource type.
type Kind string

const (
	KindDatabase    Kind = "database"
	KindElasticPool Kind = "elasticPool"
)

// Status is a target's position in the LRO state machine.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "InProgress"
	StatusSucceeded  Status = "Succeeded"
	StatusSkipped    Status = "Skipped"
	StatusFailed     Status = "Failed"
)

// IsTerminal reports whether s is one of the three terminal states.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusSkipped, StatusFailed:
		return true
	default:
		return false
	}
}

// Statuses returns an iterator over every recognized Status value, for
// initializing per-status metric label values.
func Statuses() iter.Seq[Status] {
	return slices.Values([]Status{
		StatusPending, StatusInProgress, StatusSucceeded, StatusSkipped, StatusFailed,
	})
}

// Target is one failover unit: a standalone database or an elastic pool.
// ShouldFailover is evaluated exactly once at construction time from the
// initial listing payload and never recomputed.
type Target struct {
	Server *Server
	Kind   Kind
	Name   string

	// ResourceID is the full management path to the failover unit: the
	// database path for KindDatabase, the synthesized pool path for
	// KindElasticPool.
	ResourceID string

	ShouldFailover bool

	Status     Status
	StatusPath string
	Message    string

	// StartedAt is when the orchestrator began tracking this target,
	// set once at discovery time and used to compute its time-to-terminal.
	StartedAt time.Time
}

// FailoverPath is the management-relative path this target's failover is
// initiated against.
func (t *Target) FailoverPath() string {
	return fmt.Sprintf("%s/failover?api-version=%s", t.ResourceID, APIVersion)
}

// databaseListEntry is the subset of a database listing entry's payload
// the engine needs to classify eligibility and pool membership.
type databaseListEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Properties struct {
		CurrentSku struct {
			Tier string `json:"tier"`
		} `json:"currentSku"`
		Status        string  `json:"status"`
		ElasticPoolID *string `json:"elasticPoolId"`
	} `json:"properties"`
}

// inElasticPool reports whether this database entry belongs to an
// elastic pool, and so should be skipped in favor of a single pool
// target.
func (e databaseListEntry) inElasticPool() bool {
	return e.Properties.ElasticPoolID != nil && *e.Properties.ElasticPoolID != ""
}

// NewDatabaseTarget builds a database Target from a listing entry.
// shouldFailover is true iff the current SKU tier is not Hyperscale and
// the reported status is Online.
func NewDatabaseTarget(server *Server, entry databaseListEntry) *Target {
	eligible := !strings.EqualFold(entry.Properties.CurrentSku.Tier, "Hyperscale") &&
		strings.EqualFold(entry.Properties.Status, "Online")

	return &Target{
		Server:         server,
		Kind:           KindDatabase,
		Name:           entry.Name,
		ResourceID:     entry.ID,
		ShouldFailover: eligible,
		Status:         StatusPending,
	}
}

// NewElasticPoolTarget builds an elastic-pool Target, which is always
// eligible for failover regardless of its member databases.
func NewElasticPoolTarget(server *Server, poolName string) *Target {
	resourceID := fmt.Sprintf(
		"/subscriptions/%s/resourcegroups/%s/providers/Microsoft.Sql/servers/%s/elasticpools/%s",
		server.SubscriptionID, server.ResourceGroupName, server.Name, poolName,
	)
	return &Target{
		Server:         server,
		Kind:           KindElasticPool,
		Name:           poolName,
		ResourceID:     resourceID,
		ShouldFailover: true,
		Status:         StatusPending,
	}
}
