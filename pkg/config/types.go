// Package config loads, merges and validates the gateway configuration:
// defaults < file < environment, with secrets read from the environment only.
package config

import "time"

// Environment variable names. Secrets are read exclusively from these.
const (
	EnvToken            = "ALPHASTREAM_TOKEN"
	EnvActorURL         = "ALPHASTREAM_ACTOR_URL"
	EnvChannels         = "ALPHASTREAM_CHANNELS"
	EnvUsers            = "ALPHASTREAM_USERS"
	EnvKeywords         = "ALPHASTREAM_KEYWORDS"
	EnvDedupTTLSeconds  = "ALPHASTREAM_DEDUP_TTL_SECONDS"
	EnvBroadcastPort    = "ALPHASTREAM_BROADCAST_PORT"
	EnvHealthPort       = "ALPHASTREAM_HEALTH_PORT"
	EnvDebug            = "ALPHASTREAM_DEBUG"
	EnvTelegramBotToken = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID   = "TELEGRAM_CHAT_ID"
	EnvDiscordWebhook   = "DISCORD_WEBHOOK_URL"
	EnvWebhookURL       = "ALPHASTREAM_WEBHOOK_URL"
)

// Config is the complete gateway configuration.
type Config struct {
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Filters   FiltersConfig   `yaml:"filters"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	CLI       CLIConfig       `yaml:"cli"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Health    HealthConfig    `yaml:"health"`
	Logging   LoggingConfig   `yaml:"logging"`

	path string // config file this was loaded from; used by Reload
}

// UpstreamConfig selects the crawler endpoint and initial subscription.
// Token is environment-only; a token found in the file is stripped with a
// warning.
type UpstreamConfig struct {
	Token    string   `yaml:"token"`
	ActorURL string   `yaml:"actor_url"`
	Channels []string `yaml:"channels"`
	Users    []string `yaml:"users"`
}

// FiltersConfig is the subscriber-declared interest.
type FiltersConfig struct {
	Users    []string `yaml:"users"`
	Keywords []string `yaml:"keywords"`
	Kinds    []string `yaml:"kinds"`
}

// DedupConfig bounds the duplicate-suppression window. TTLSeconds is a
// pointer so an explicit 0 in the file (dedup disabled) survives merging.
type DedupConfig struct {
	TTLSeconds *int `yaml:"ttl_seconds"` // 0–300; 0 disables dedup
}

// Seconds returns the dedup window in seconds, defaulting to 60.
func (d DedupConfig) Seconds() int {
	if d.TTLSeconds == nil {
		return 60
	}
	return *d.TTLSeconds
}

// TTL returns the dedup window as a duration.
func (d DedupConfig) TTL() time.Duration { return time.Duration(d.Seconds()) * time.Second }

// ReconnectConfig is the upstream backoff policy. Delays are duration
// strings ("1s", "30s").
type ReconnectConfig struct {
	InitialDelay string  `yaml:"initial_delay"`
	MaxDelay     string  `yaml:"max_delay"`
	Multiplier   float64 `yaml:"multiplier"`
	MaxAttempts  int     `yaml:"max_attempts"`
}

// CLIConfig controls the terminal sink.
type CLIConfig struct {
	Enabled       *bool  `yaml:"enabled"`
	StatsInterval string `yaml:"stats_interval"`
}

// BroadcastConfig controls the dashboard broadcast server.
type BroadcastConfig struct {
	Enabled           *bool  `yaml:"enabled"`
	Port              int    `yaml:"port"`
	DashboardDir      string `yaml:"dashboard_dir"`
	RecentSize        int    `yaml:"recent_size"`
	ActiveUserRefresh string `yaml:"active_user_refresh"`
}

// AlertsConfig controls the push-notification sinks and their shared rate
// limit policy.
type AlertsConfig struct {
	RateMax    int            `yaml:"rate_max"`
	RateWindow string         `yaml:"rate_window"`
	Telegram   TelegramConfig `yaml:"telegram"`
	Discord    DiscordConfig  `yaml:"discord"`
	Webhook    WebhookConfig  `yaml:"webhook"`
}

// TelegramConfig configures the Telegram bot sink. BotToken is
// environment-only.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	APIBase  string `yaml:"api_base"`
}

// DiscordConfig configures the Discord incoming-webhook sink. The webhook
// URL embeds a secret and is environment-only.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig configures the generic HTTP webhook sink.
type WebhookConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
}

// HealthConfig controls the health/readiness endpoint.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig controls log verbosity and optional file logging.
type LoggingConfig struct {
	Debug       bool   `yaml:"debug"`
	FileEnabled bool   `yaml:"file_enabled"`
	FilePath    string `yaml:"file_path"`
}

func intPtr(n int) *int { return &n }

// Defaults returns the built-in configuration every load starts from.
func Defaults() *Config {
	enabled := true
	return &Config{
		Upstream: UpstreamConfig{
			Channels: []string{"all"},
		},
		Dedup: DedupConfig{TTLSeconds: intPtr(60)},
		Reconnect: ReconnectConfig{
			InitialDelay: "1s",
			MaxDelay:     "30s",
			Multiplier:   2,
			MaxAttempts:  10,
		},
		CLI: CLIConfig{
			Enabled:       &enabled,
			StatsInterval: "60s",
		},
		Broadcast: BroadcastConfig{
			Enabled:           &enabled,
			Port:              3000,
			RecentSize:        100,
			ActiveUserRefresh: "30s",
		},
		Alerts: AlertsConfig{
			RateMax:    10,
			RateWindow: "60s",
			Webhook:    WebhookConfig{Method: "POST"},
		},
		Health: HealthConfig{Port: 3001},
		Logging: LoggingConfig{
			FilePath: "alphastream.log",
		},
	}
}
