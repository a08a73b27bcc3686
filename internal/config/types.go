// Package config loads the service configuration from defaults, an optional
// YAML file, a .env file and PAGEBOT_* environment variables.
package config

import "time"

// Config holds all application configuration sections.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Retention RetentionConfig `mapstructure:"retention"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig defines logging behavior.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig defines the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// WebhookConfig defines the inbound webhook endpoint.
type WebhookConfig struct {
	ListenAddr   string        `mapstructure:"listen_addr"   validate:"required"`
	Path         string        `mapstructure:"path"          validate:"required,startswith=/"`
	VerifyToken  string        `mapstructure:"verify_token"  validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  validate:"min=1s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=1s"`
}

// GraphConfig defines how the platform Graph API is reached.
type GraphConfig struct {
	BaseURL    string        `mapstructure:"base_url"    validate:"required,url"`
	APIVersion string        `mapstructure:"api_version" validate:"required"`
	Timeout    time.Duration `mapstructure:"timeout"     validate:"min=1s,max=2m"`
}

// RetentionConfig bounds the persisted processed-event set and history.
type RetentionConfig struct {
	ProcessedEvents int `mapstructure:"processed_events" validate:"min=1"`
	History         int `mapstructure:"history"          validate:"min=1"`
}

// SchedulerConfig maps task names to their schedule.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig configures a single scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}
