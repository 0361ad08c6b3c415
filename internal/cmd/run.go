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

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command, which discovers eligible Azure
// SQL databases and elastic pools and drives each through failover.
func NewRunCommand() (*cobra.Command, error) {
	opts := DefaultOptions()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fail over eligible Azure SQL databases and elastic pools",
		Long: `run discovers every Azure SQL database and elastic pool under the given
subscription, resource group and server filters, and drives each one through
failover to a terminal state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.Run(cmd.Context())
		},
	}

	if err := BindOptions(opts, cmd); err != nil {
		return nil, fmt.Errorf("bind options: %w", err)
	}

	return cmd, nil
}

// Run executes the reconcile loop to completion and logs the resulting
// summary.
func (o *CompletedOptions) Run(ctx context.Context) error {
	logger := logr.FromContextOrDiscard(ctx)

	summary, err := o.Orchestrator.Run(ctx, o.SubscriptionID, o.ResourceGroupFilter, o.ServerFilter)
	if err != nil {
		return err
	}

	logger.Info("run complete",
		"succeeded", summary.Succeeded,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"elapsed", summary.Elapsed.String(),
	)
	if summary.RetryGuidance != "" {
		logger.Info(summary.RetryGuidance)
	}

	return nil
}
