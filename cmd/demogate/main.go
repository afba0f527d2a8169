// Package main provides the CLI entry point for demogate, the Slack bot that
// gates demo/removal work behind a photo-verified approval.
//
// # Basic Usage
//
// Start the bot:
//
//	demogate serve --config demogate.yaml
//
// # Environment Variables
//
// Configuration can be provided via environment variables:
//
//   - DEMOGATE_CONFIG: Path to configuration file
//   - SLACK_BOT_TOKEN: Slack bot OAuth token (xoxb-)
//   - SLACK_APP_TOKEN: Slack app-level token for Socket Mode (xapp-)
//   - OPENAI_API_KEY: OpenAI API key for the policy QA relay
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/demogate/internal/approval"
	"github.com/haasonsaas/demogate/internal/config"
	"github.com/haasonsaas/demogate/internal/observability"
	"github.com/haasonsaas/demogate/internal/qa"
	"github.com/haasonsaas/demogate/internal/scope"
	"github.com/haasonsaas/demogate/internal/slackbot"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "demogate",
		Short: "demogate - Slack demo-approval bot for restoration field crews",
		Long: `demogate mediates demo/removal requests from field crews over Slack.

A crew mentions the bot with a removal request, uploads photos to the
thread, and requests approval. The bot verifies the photo evidence, posts
an approval card to the approval channel, and relays the decision back to
the crew. An optional QA relay answers program-policy questions against an
OpenAI file-search knowledge base.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildVersionCmd(),
	)

	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bot and process Slack events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("DEMOGATE_CONFIG")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (YAML or JSON5)")
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "demogate %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

func serve(cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := observability.Serve(cfg.Metrics.Addr, prometheus.DefaultGatherer); err != nil {
				logger.Error(ctx, "metrics listener failed", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
	}

	relay := qa.New(qa.Config{
		APIKey:        cfg.QA.APIKey,
		VectorStoreID: cfg.QA.VectorStoreID,
		Carrier:       cfg.QA.Carrier,
		PollInterval:  cfg.QA.PollInterval,
		Timeout:       cfg.QA.Timeout,
	}, logger, metrics)

	registry := approval.NewMemoryRegistry()

	bot := slackbot.New(cfg.Slack.BotToken, cfg.Slack.AppToken, slackbot.Config{
		CrewName:        cfg.Workflow.CrewName,
		ApprovalChannel: cfg.Workflow.ApprovalChannel,
		Approvers:       cfg.Workflow.Approvers,
		Scope:           scope.New(cfg.Workflow.AllowedChannels, cfg.Workflow.TestChannel),
	}, registry, relay, logger, metrics)

	if cfg.Workflow.ReminderSchedule != "" {
		sweeper := approval.NewSweeper(registry, bot.PostThreaded, cfg.Workflow.ReminderAge, logger)
		runner := cron.New()
		if err := sweeper.Schedule(runner, cfg.Workflow.ReminderSchedule); err != nil {
			return fmt.Errorf("scheduling reminder sweep: %w", err)
		}
		runner.Start()
		defer runner.Stop()
	}

	logger.Info(ctx, "starting demogate",
		"version", version,
		"qa_enabled", cfg.QA.Enabled(),
		"approval_channel", cfg.Workflow.ApprovalChannel,
	)

	if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info(ctx, "shutdown complete")
	return nil
}
