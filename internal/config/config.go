// Package config provides configuration loading for dbtflow.
//
// Configuration is read from a YAML file and overridden by DBTFLOW_* environment
// variables. Sections owned by other packages (logging, telemetry) are decoded
// on demand through Config.Section so this package stays import-free of them.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/knadh/koanf/v2"
)

// Sink kinds.
const (
	SinkNone = "none"
	SinkNATS = "nats"
	SinkS3   = "s3"
)

// Alert notifier kinds. AlertNone must be the only entry of its list.
const (
	AlertNone    = "none"
	AlertLog     = "log"
	AlertWebhook = "webhook"
	AlertNATS    = "nats"
	AlertGitHub  = "github"
)

// DefaultTaskQueue is the task queue shared with the polyglot dbt workers.
const DefaultTaskQueue = "dbt-update-operations"

// Config holds the complete dbtflow configuration.
type Config struct {
	Temporal TemporalConfig `koanf:"temporal"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Dbt      DbtConfig      `koanf:"dbt"`
	Sink     SinkConfig     `koanf:"sink"`
	Alerts   AlertsConfig   `koanf:"alerts"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Schedule ScheduleConfig `koanf:"schedule"`

	raw *koanf.Koanf
}

// TemporalConfig holds Temporal client settings.
type TemporalConfig struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// PipelineConfig is the configuration surface of a pipeline definition.
type PipelineConfig struct {
	MaxAttempts   int      `koanf:"max_attempts"`
	StepTimeout   Duration `koanf:"step_timeout"`
	PreventWrites bool     `koanf:"prevent_writes"`
	UseSession    bool     `koanf:"use_session"`
	Steps         []string `koanf:"steps"`
	Finalizer     string   `koanf:"finalizer"`
}

// DbtConfig configures the external dbt executable.
type DbtConfig struct {
	Binary string            `koanf:"binary"`
	Env    map[string]string `koanf:"env"`
}

// SinkConfig selects where captured artifacts are published.
type SinkConfig struct {
	Kind string     `koanf:"kind"`
	NATS NATSConfig `koanf:"nats"`
	S3   S3Config   `koanf:"s3"`
}

// NATSConfig holds a NATS connection and subject prefix. Bucket names the
// JetStream object store and is only read by the artifact sink.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
	Bucket        string `koanf:"bucket"`
}

// S3Config holds an S3-compatible object store target.
type S3Config struct {
	Endpoint  string `koanf:"endpoint"`
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	Prefix    string `koanf:"prefix"`
	AccessKey Secret `koanf:"access_key"`
	SecretKey Secret `koanf:"secret_key"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// AlertsConfig configures the success and failure notifiers.
type AlertsConfig struct {
	Success []string      `koanf:"success"`
	Failure []string      `koanf:"failure"`
	Webhook WebhookConfig `koanf:"webhook"`
	NATS    NATSConfig    `koanf:"nats"`
	GitHub  GitHubConfig  `koanf:"github"`
}

// WebhookConfig configures the HTTP alert notifier.
type WebhookConfig struct {
	URL           string   `koanf:"url"`
	Token         Secret   `koanf:"token"`
	Timeout       Duration `koanf:"timeout"`
	RatePerMinute int      `koanf:"rate_per_minute"`
}

// GitHubConfig configures the issue-comment alert notifier.
type GitHubConfig struct {
	Owner string `koanf:"owner"`
	Repo  string `koanf:"repo"`
	Issue int    `koanf:"issue"`
	Token Secret `koanf:"token"`
}

// MetricsConfig configures the worker's HTTP metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// ScheduleConfig lists targets refreshed periodically by the schedule command.
type ScheduleConfig struct {
	Targets []ScheduledTarget `koanf:"targets"`
}

// ScheduledTarget is one periodically refreshed dbt project.
type ScheduledTarget struct {
	Env             string   `koanf:"env"`
	ProjectLocation string   `koanf:"project_location"`
	ProfileLocation string   `koanf:"profile_location"`
	Every           Duration `koanf:"every"`
}

// Validation errors.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Section decodes a raw configuration section into out. Missing sections leave
// out untouched, so callers pass a pre-filled default.
func (c *Config) Section(key string, out any) error {
	if c.raw == nil || !c.raw.Exists(key) {
		return nil
	}
	if err := c.raw.Unmarshal(key, out); err != nil {
		return fmt.Errorf("decoding %s section: %w", key, err)
	}
	return nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Temporal.HostPort == "" {
		cfg.Temporal.HostPort = "localhost:7233"
	}
	if cfg.Temporal.Namespace == "" {
		cfg.Temporal.Namespace = "default"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = DefaultTaskQueue
	}

	if cfg.Pipeline.MaxAttempts == 0 {
		cfg.Pipeline.MaxAttempts = 3
	}
	if cfg.Pipeline.StepTimeout == 0 {
		cfg.Pipeline.StepTimeout = Duration(10 * time.Minute)
	}
	if len(cfg.Pipeline.Steps) == 0 {
		cfg.Pipeline.Steps = []string{"deps", "debug", "test-sources", "run", "test"}
	}
	if cfg.Pipeline.Finalizer == "" {
		cfg.Pipeline.Finalizer = "clean"
	}

	if cfg.Dbt.Binary == "" {
		cfg.Dbt.Binary = "dbt"
	}

	if cfg.Sink.Kind == "" {
		cfg.Sink.Kind = SinkNone
	}
	if cfg.Sink.NATS.SubjectPrefix == "" {
		cfg.Sink.NATS.SubjectPrefix = "dbtflow.artifacts"
	}
	if cfg.Sink.NATS.Bucket == "" {
		cfg.Sink.NATS.Bucket = "dbt-artifacts"
	}
	if cfg.Sink.S3.Prefix == "" {
		cfg.Sink.S3.Prefix = "dbt-artifacts"
	}

	if len(cfg.Alerts.Success) == 0 {
		cfg.Alerts.Success = []string{AlertLog}
	}
	if len(cfg.Alerts.Failure) == 0 {
		cfg.Alerts.Failure = []string{AlertLog}
	}
	if cfg.Alerts.Webhook.Timeout == 0 {
		cfg.Alerts.Webhook.Timeout = Duration(10 * time.Second)
	}
	if cfg.Alerts.Webhook.RatePerMinute == 0 {
		cfg.Alerts.Webhook.RatePerMinute = 30
	}
	if cfg.Alerts.NATS.SubjectPrefix == "" {
		cfg.Alerts.NATS.SubjectPrefix = "dbtflow.alerts"
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9464"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Temporal.TaskQueue == "" {
		return fmt.Errorf("%w: temporal.task_queue is required", ErrInvalidConfig)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("%w: pipeline.max_attempts must be >= 1, got %d", ErrInvalidConfig, c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.StepTimeout.Duration() <= 0 {
		return fmt.Errorf("%w: pipeline.step_timeout must be positive", ErrInvalidConfig)
	}

	switch c.Sink.Kind {
	case SinkNone:
	case SinkNATS:
		if c.Sink.NATS.URL == "" {
			return fmt.Errorf("%w: sink.nats.url is required for the nats sink", ErrInvalidConfig)
		}
	case SinkS3:
		if c.Sink.S3.Endpoint == "" || c.Sink.S3.Bucket == "" {
			return fmt.Errorf("%w: sink.s3.endpoint and sink.s3.bucket are required for the s3 sink", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown sink kind %q", ErrInvalidConfig, c.Sink.Kind)
	}

	for key, kinds := range map[string][]string{"alerts.success": c.Alerts.Success, "alerts.failure": c.Alerts.Failure} {
		if len(kinds) > 1 && slices.Contains(kinds, AlertNone) {
			return fmt.Errorf("%w: %s cannot combine %q with other notifiers", ErrInvalidConfig, key, AlertNone)
		}
		for _, kind := range kinds {
			if err := c.Alerts.validateKind(kind); err != nil {
				return err
			}
		}
	}

	for i, t := range c.Schedule.Targets {
		if t.Env == "" || t.ProjectLocation == "" {
			return fmt.Errorf("%w: schedule.targets[%d] needs env and project_location", ErrInvalidConfig, i)
		}
		if t.Every.Duration() <= 0 {
			return fmt.Errorf("%w: schedule.targets[%d].every must be positive", ErrInvalidConfig, i)
		}
	}

	return nil
}

// Disabled reports whether kinds turns an alert off.
func Disabled(kinds []string) bool {
	return len(kinds) == 1 && kinds[0] == AlertNone
}

func (a *AlertsConfig) validateKind(kind string) error {
	switch kind {
	case AlertNone, AlertLog:
	case AlertWebhook:
		if a.Webhook.URL == "" {
			return fmt.Errorf("%w: alerts.webhook.url is required for webhook alerts", ErrInvalidConfig)
		}
	case AlertNATS:
		if a.NATS.URL == "" {
			return fmt.Errorf("%w: alerts.nats.url is required for nats alerts", ErrInvalidConfig)
		}
	case AlertGitHub:
		if a.GitHub.Owner == "" || a.GitHub.Repo == "" || a.GitHub.Issue <= 0 {
			return fmt.Errorf("%w: alerts.github needs owner, repo and issue", ErrInvalidConfig)
		}
		if !a.GitHub.Token.IsSet() {
			return fmt.Errorf("%w: alerts.github.token is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown alert kind %q", ErrInvalidConfig, kind)
	}
	return nil
}
