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

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dusted-go/logging/prettylog"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/Azure/azure-sql-bulk-failover/internal/cmd"
)

func main() {
	logger := createLogger("Info")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "azure-sql-bulk-failover",
		Short: "Bulk failover engine for Azure SQL databases and elastic pools",
		Long: `azure-sql-bulk-failover discovers eligible Azure SQL databases and elastic
pools under a subscription and drives each through failover, tracking the
resulting long-running operation to completion.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel, _ := cmd.Flags().GetString("log-level")
			ctx = logr.NewContext(ctx, createLogger(logLevel))
			cmd.SetContext(ctx)
		},
		SilenceUsage:     true,
		SilenceErrors:    true,
		TraverseChildren: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	runCmd, err := cmd.NewRunCommand()
	if err != nil {
		logger.Error(err, "failed to create run command")
		os.Exit(1)
	}
	rootCmd.AddCommand(runCmd)

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error(err, "command failed")
		os.Exit(1)
	}
}

// createLogger maps the engine's three-tier log level to a slog verbosity
// and wraps it with the pretty console handler.
func createLogger(logLevel string) logr.Logger {
	var level slog.Level
	switch logLevel {
	case "Minimal":
		level = slog.LevelWarn
	case "Verbose":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}

	prettyHandler := prettylog.NewHandler(&slog.HandlerOptions{
		Level:       level,
		AddSource:   false,
		ReplaceAttr: nil,
	})
	return logr.FromSlogHandler(prettyHandler)
}
