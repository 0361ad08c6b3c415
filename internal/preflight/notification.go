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

// Package preflight gates a run on the existence of an active self-service
// planned-maintenance notification for the target subscription, queried
// through Azure Resource Graph.
package preflight

import (
	"context"
	"fmt"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resourcegraph/armresourcegraph"
	"github.com/go-logr/logr"
	"github.com/go-viper/mapstructure/v2"
)

// selfServiceMaintenanceToken is the substring a service-health event's
// summary must contain to count as the self-service maintenance window
// this engine is meant to run during.
const selfServiceMaintenanceToken = "azsqlcmwselfservicemaint"

const query = `
ServiceHealthResources
| where type =~ "Microsoft.ResourceHealth/events"
| where properties.EventType =~ "PlannedMaintenance"
| where properties.Status =~ "Active"
| where properties.Summary contains "` + selfServiceMaintenanceToken + `"
| project trackingId = properties.TrackingId, lastUpdateTime = properties.LastUpdateTime
`

type notificationRow struct {
	TrackingID     string `mapstructure:"trackingId"`
	LastUpdateTime string `mapstructure:"lastUpdateTime"`
}

// NotFoundError is returned by Check when no active notification matches.
type NotFoundError struct {
	SubscriptionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no active self-service planned-maintenance notification found for subscription %s", e.SubscriptionID)
}

// Checker queries Azure Resource Graph for an active self-service
// planned-maintenance notification.
type Checker struct {
	client *armresourcegraph.Client
	logger logr.Logger
}

// NewChecker builds a Checker backed by cred. Matches found by Check are
// logged through logger.
func NewChecker(cred azcore.TokenCredential, logger logr.Logger) (*Checker, error) {
	client, err := armresourcegraph.NewClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create resource graph client: %w", err)
	}
	return &Checker{client: client, logger: logger}, nil
}

// matchingRows queries resource graph for every active self-service
// planned-maintenance notification scoped to subscriptionID.
func (c *Checker) matchingRows(ctx context.Context, subscriptionID string) ([]notificationRow, error) {
	q := query
	result, err := c.client.Resources(ctx, armresourcegraph.QueryRequest{
		Query:         &q,
		Subscriptions: []*string{&subscriptionID},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("query resource graph for subscription %s: %w", subscriptionID, err)
	}

	var rows []notificationRow
	if err := mapstructure.Decode(result.Data, &rows); err != nil {
		return nil, fmt.Errorf("decode resource graph result: %w", err)
	}
	return rows, nil
}

// Check returns nil if an active self-service planned-maintenance
// notification exists for subscriptionID, and a *NotFoundError otherwise.
// On success it logs the tracking id of the most recently updated match.
func (c *Checker) Check(ctx context.Context, subscriptionID string) error {
	rows, err := c.matchingRows(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return &NotFoundError{SubscriptionID: subscriptionID}
	}

	c.logger.Info("active self-service maintenance notification found",
		"subscriptionId", subscriptionID, "trackingId", latestTrackingID(rows))
	return nil
}

// LatestTrackingID returns the tracking id of the most recent matching
// notification, or "" if none exists.
func (c *Checker) LatestTrackingID(ctx context.Context, subscriptionID string) (string, error) {
	rows, err := c.matchingRows(ctx, subscriptionID)
	if err != nil {
		return "", err
	}
	return latestTrackingID(rows), nil
}

// latestTrackingID returns the tracking id of the row with the greatest
// LastUpdateTime, or "" if rows is empty.
func latestTrackingID(rows []notificationRow) string {
	if len(rows) == 0 {
		return ""
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].LastUpdateTime > rows[j].LastUpdateTime
	})
	return rows[0].TrackingID
}
