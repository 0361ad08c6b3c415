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

package cmd

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/Azure/azure-sql-bulk-failover/internal/engineerror"
	"github.com/Azure/azure-sql-bulk-failover/internal/preflight"
	"github.com/Azure/azure-sql-bulk-failover/internal/restclient"
	"github.com/Azure/azure-sql-bulk-failover/internal/sqlfailover"
)

const DefaultPollInterval = sqlfailover.DefaultPollInterval

var supportedLogLevels = []string{"Minimal", "Info", "Verbose"}

type RawOptions struct {
	SubscriptionID                string
	ResourceGroupFilter           string
	ServerFilter                  string
	PollInterval                  time.Duration
	LogLevel                      string
	CheckMaintenanceNotification  bool
}

func DefaultOptions() *RawOptions {
	return &RawOptions{
		ResourceGroupFilter:          "*",
		ServerFilter:                 "*",
		PollInterval:                 DefaultPollInterval,
		LogLevel:                     "Info",
		CheckMaintenanceNotification: false,
	}
}

type ValidatedOptions struct {
	SubscriptionID               string
	ResourceGroupFilter          string
	ServerFilter                 string
	PollInterval                 time.Duration
	LogLevel                     string
	CheckMaintenanceNotification bool
}

type CompletedOptions struct {
	SubscriptionID      string
	ResourceGroupFilter string
	ServerFilter        string
	Orchestrator        *sqlfailover.Orchestrator
	Registry            *prometheus.Registry
}

func (o *RawOptions) Validate(ctx context.Context) (*ValidatedOptions, error) {
	if o.SubscriptionID == "" {
		return nil, engineerror.New(engineerror.ClassConfiguration, fmt.Errorf("subscription ID is required"))
	}
	if o.PollInterval <= 0 {
		return nil, engineerror.New(engineerror.ClassConfiguration, fmt.Errorf("poll interval must be positive"))
	}
	if !slices.Contains(supportedLogLevels, o.LogLevel) {
		return nil, engineerror.New(engineerror.ClassConfiguration, fmt.Errorf("invalid log level %q, want one of %s", o.LogLevel, strings.Join(supportedLogLevels, ", ")))
	}

	return &ValidatedOptions{
		SubscriptionID:                o.SubscriptionID,
		ResourceGroupFilter:           o.ResourceGroupFilter,
		ServerFilter:                  o.ServerFilter,
		PollInterval:                  o.PollInterval,
		LogLevel:                      o.LogLevel,
		CheckMaintenanceNotification: o.CheckMaintenanceNotification,
	}, nil
}

// Complete constructs the Azure credential and clients the orchestrator
// needs, and registers its metrics against a fresh registry.
func (o *ValidatedOptions) Complete(ctx context.Context) (*CompletedOptions, error) {
	logger := logr.FromContextOrDiscard(ctx)

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure credential: %w", err)
	}

	client := restclient.New(cred)
	discoverer := sqlfailover.NewDiscoverer(client)
	tracker := sqlfailover.NewTracker(client)

	var checker sqlfailover.PreFlightChecker
	if o.CheckMaintenanceNotification {
		c, err := preflight.NewChecker(cred, logger)
		if err != nil {
			return nil, fmt.Errorf("create pre-flight checker: %w", err)
		}
		checker = c
	}

	registry := prometheus.NewRegistry()
	metrics := sqlfailover.NewMetrics(registry)

	orchestrator := sqlfailover.NewOrchestrator(discoverer, tracker, checker, o.PollInterval, metrics, logger)

	return &CompletedOptions{
		SubscriptionID:      o.SubscriptionID,
		ResourceGroupFilter: o.ResourceGroupFilter,
		ServerFilter:        o.ServerFilter,
		Orchestrator:        orchestrator,
		Registry:            registry,
	}, nil
}

func BindOptions(opts *RawOptions, cmd *cobra.Command) error {
	cmd.Flags().StringVar(&opts.SubscriptionID, "subscription-id", opts.SubscriptionID, "Azure subscription ID")
	cmd.Flags().StringVar(&opts.ResourceGroupFilter, "resource-group", opts.ResourceGroupFilter, "Resource group name, or * for every resource group")
	cmd.Flags().StringVar(&opts.ServerFilter, "server", opts.ServerFilter, "Comma-separated logical server names, or * for every server")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll-interval", opts.PollInterval, fmt.Sprintf("Sleep between poll sweeps (default: %s)", DefaultPollInterval))
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", opts.LogLevel, fmt.Sprintf("Log level, one of %s", strings.Join(supportedLogLevels, ", ")))
	cmd.Flags().BoolVar(&opts.CheckMaintenanceNotification, "check-maintenance-notification", opts.CheckMaintenanceNotification, "Require an active self-service planned-maintenance notification before running")

	return cmd.MarkFlagRequired("subscription-id")
}

func (o *RawOptions) Run(ctx context.Context) error {
	validated, err := o.Validate(ctx)
	if err != nil {
		return err
	}

	completed, err := validated.Complete(ctx)
	if err != nil {
		return err
	}

	return completed.Run(ctx)
}
