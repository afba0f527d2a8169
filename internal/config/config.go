// Package config loads and validates the demogate configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the main configuration structure for demogate.
type Config struct {
	Slack    SlackConfig    `yaml:"slack"`
	QA       QAConfig       `yaml:"qa"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// SlackConfig holds the platform credentials.
type SlackConfig struct {
	BotToken      string `yaml:"bot_token"`      // xoxb- token for API calls
	AppToken      string `yaml:"app_token"`      // xapp- token for Socket Mode
	SigningSecret string `yaml:"signing_secret"` // request signing secret
}

// QAConfig configures the policy question relay. Both APIKey and
// VectorStoreID must be set for the relay to be enabled; when either is
// missing the bot answers policy questions with a "not configured" notice.
type QAConfig struct {
	APIKey        string        `yaml:"api_key"`
	VectorStoreID string        `yaml:"vector_store_id"`
	Carrier       string        `yaml:"carrier"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Enabled reports whether the relay has the credentials it needs.
func (q QAConfig) Enabled() bool {
	return q.APIKey != "" && q.VectorStoreID != ""
}

// WorkflowConfig configures the approval workflow.
type WorkflowConfig struct {
	// CrewName is the display name used on approval cards.
	CrewName string `yaml:"crew_name"`

	// ApprovalChannel is the central channel approval cards are posted to.
	// When empty, cards are posted to the origin channel.
	ApprovalChannel string `yaml:"approval_channel"`

	// AllowedChannels restricts the bot to an explicit channel list.
	// Takes precedence over TestChannel.
	AllowedChannels []string `yaml:"allowed_channels"`

	// TestChannel restricts the bot to a single channel when no allow-list
	// is configured.
	TestChannel string `yaml:"test_channel"`

	// Approvers restricts the approve/decline buttons to specific user IDs.
	// Empty means anyone can decide.
	Approvers []string `yaml:"approvers"`

	// ReminderSchedule is a cron expression for the pending-approval sweep
	// (e.g. "@every 1h"). Empty disables reminders.
	ReminderSchedule string `yaml:"reminder_schedule"`

	// ReminderAge is how long a card must sit undecided before a reminder
	// is posted.
	ReminderAge time.Duration `yaml:"reminder_age"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a config populated with defaults and credential fallbacks
// from the environment.
func Default() *Config {
	return &Config{
		Slack: SlackConfig{
			BotToken:      os.Getenv("SLACK_BOT_TOKEN"),
			AppToken:      os.Getenv("SLACK_APP_TOKEN"),
			SigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		},
		QA: QAConfig{
			APIKey:       os.Getenv("OPENAI_API_KEY"),
			Carrier:      "Contractor Connection",
			PollInterval: 800 * time.Millisecond,
			Timeout:      90 * time.Second,
		},
		Workflow: WorkflowConfig{
			CrewName:    "Field Crew",
			ReminderAge: 4 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for startup-blocking problems.
func (c *Config) Validate() error {
	var problems []string

	if c.Slack.BotToken == "" {
		problems = append(problems, "slack.bot_token is required")
	}
	if c.Slack.AppToken == "" {
		problems = append(problems, "slack.app_token is required")
	}
	if c.QA.APIKey != "" && c.QA.VectorStoreID == "" {
		problems = append(problems, "qa.vector_store_id is required when qa.api_key is set")
	}
	if c.QA.PollInterval <= 0 {
		problems = append(problems, "qa.poll_interval must be positive")
	}
	if c.QA.Timeout <= c.QA.PollInterval {
		problems = append(problems, "qa.timeout must exceed qa.poll_interval")
	}
	if c.Workflow.ReminderSchedule != "" && c.Workflow.ReminderAge <= 0 {
		problems = append(problems, "workflow.reminder_age must be positive when reminders are enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
