package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultLogLevel = "info"

	DefaultDBPath = "pagebot.db"

	DefaultListenAddr   = ":5000"
	DefaultWebhookPath  = "/webhook"
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 30 * time.Second

	DefaultGraphBaseURL    = "https://graph.facebook.com"
	DefaultGraphAPIVersion = "v19.0"
	DefaultGraphTimeout    = 10 * time.Second

	DefaultProcessedEventsRetention = 500
	DefaultHistoryRetention         = 1000
)

// DefaultTasks lists the scheduled tasks; all are off until enabled.
var DefaultTasks = map[string]any{
	"sql_maintenance": map[string]any{"enabled": false, "schedule": "0 0 4 * * *"},
	"daily_summary":   map[string]any{"enabled": false, "schedule": "0 55 23 * * *"},
}

// setDefaults sets default values for optional configuration parameters
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("webhook.listen_addr", DefaultListenAddr)
	v.SetDefault("webhook.path", DefaultWebhookPath)
	v.SetDefault("webhook.read_timeout", DefaultReadTimeout)
	v.SetDefault("webhook.write_timeout", DefaultWriteTimeout)

	v.SetDefault("graph.base_url", DefaultGraphBaseURL)
	v.SetDefault("graph.api_version", DefaultGraphAPIVersion)
	v.SetDefault("graph.timeout", DefaultGraphTimeout)

	v.SetDefault("retention.processed_events", DefaultProcessedEventsRetention)
	v.SetDefault("retention.history", DefaultHistoryRetention)

	v.SetDefault("scheduler.tasks", DefaultTasks)
}
