package config

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/muhammetakkurtt/alpha-stream/pkg/stream"
)

// minTokenLength is the shortest credential accepted as real.
const minTokenLength = 10

// placeholderSubstrings and placeholderExact flag credentials that were never
// filled in. The former match as substrings, the latter exactly.
var (
	placeholderSubstrings = []string{"your", "placeholder"}
	placeholderExact      = []string{"example_token", "test_token"}
)

// validate checks the merged configuration. Failures here are fatal at
// startup (exit code 1).
func validate(cfg *Config) error {
	if err := validateUpstream(&cfg.Upstream); err != nil {
		return err
	}
	if err := validateRanges(cfg); err != nil {
		return err
	}
	if err := validateDurations(cfg); err != nil {
		return err
	}
	if err := validateSinks(cfg); err != nil {
		return err
	}
	return nil
}

func validateUpstream(up *UpstreamConfig) error {
	if up.Token == "" {
		return NewValidationError("upstream.token", ErrMissingToken)
	}
	if len(up.Token) < minTokenLength {
		return NewValidationError("upstream.token",
			fmt.Errorf("%w: shorter than %d characters", ErrInvalidValue, minTokenLength))
	}
	if isPlaceholder(up.Token) {
		return NewValidationError("upstream.token", ErrPlaceholderValue)
	}

	if up.ActorURL == "" {
		return NewValidationError("upstream.actor_url",
			fmt.Errorf("%w: required", ErrInvalidValue))
	}
	parsed, err := url.Parse(up.ActorURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return NewValidationError("upstream.actor_url",
			fmt.Errorf("%w: must be an http(s) URL", ErrInvalidValue))
	}
	if isPlaceholder(up.ActorURL) {
		return NewValidationError("upstream.actor_url", ErrPlaceholderValue)
	}

	for _, ch := range up.Channels {
		if !stream.IsKnownChannel(strings.ToLower(strings.TrimSpace(ch))) {
			return NewValidationError("upstream.channels",
				fmt.Errorf("%w: unknown channel %q", ErrInvalidValue, ch))
		}
	}
	return nil
}

func validateRanges(cfg *Config) error {
	if cfg.Dedup.Seconds() < 0 || cfg.Dedup.Seconds() > 300 {
		return NewValidationError("dedup.ttl_seconds",
			fmt.Errorf("%w: must be within 0-300", ErrInvalidValue))
	}
	if cfg.Reconnect.Multiplier < 1 {
		return NewValidationError("reconnect.multiplier",
			fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if cfg.Reconnect.MaxAttempts < 1 {
		return NewValidationError("reconnect.max_attempts",
			fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if cfg.Alerts.RateMax < 1 {
		return NewValidationError("alerts.rate_max",
			fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	for field, port := range map[string]int{
		"broadcast.port": cfg.Broadcast.Port,
		"health.port":    cfg.Health.Port,
	} {
		if port < 1 || port > 65535 {
			return NewValidationError(field,
				fmt.Errorf("%w: port out of range", ErrInvalidValue))
		}
	}
	if cfg.Broadcast.RecentSize < 1 {
		return NewValidationError("broadcast.recent_size",
			fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	return nil
}

func validateDurations(cfg *Config) error {
	for field, value := range map[string]string{
		"reconnect.initial_delay":       cfg.Reconnect.InitialDelay,
		"reconnect.max_delay":           cfg.Reconnect.MaxDelay,
		"cli.stats_interval":            cfg.CLI.StatsInterval,
		"alerts.rate_window":            cfg.Alerts.RateWindow,
		"broadcast.active_user_refresh": cfg.Broadcast.ActiveUserRefresh,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return NewValidationError(field,
				fmt.Errorf("%w: %q is not a duration", ErrInvalidValue, value))
		}
		if d < time.Second {
			return NewValidationError(field,
				fmt.Errorf("%w: must be >= 1s", ErrInvalidValue))
		}
	}
	return nil
}

// validateSinks rejects a gateway with nowhere to deliver and alert sinks
// that are enabled but unusable.
func validateSinks(cfg *Config) error {
	cliEnabled := cfg.CLI.Enabled != nil && *cfg.CLI.Enabled
	broadcastEnabled := cfg.Broadcast.Enabled != nil && *cfg.Broadcast.Enabled
	alertEnabled := cfg.Alerts.Telegram.Enabled || cfg.Alerts.Discord.Enabled || cfg.Alerts.Webhook.Enabled
	if !cliEnabled && !broadcastEnabled && !alertEnabled {
		return ErrNoSinkEnabled
	}

	if cfg.Alerts.Telegram.Enabled {
		if cfg.Alerts.Telegram.BotToken == "" {
			return NewValidationError("alerts.telegram.bot_token",
				fmt.Errorf("%w: sink enabled but %s unset", ErrInvalidValue, EnvTelegramBotToken))
		}
		if isPlaceholder(cfg.Alerts.Telegram.BotToken) {
			return NewValidationError("alerts.telegram.bot_token", ErrPlaceholderValue)
		}
		if cfg.Alerts.Telegram.ChatID == "" {
			return NewValidationError("alerts.telegram.chat_id",
				fmt.Errorf("%w: required when the sink is enabled", ErrInvalidValue))
		}
	}
	if cfg.Alerts.Discord.Enabled {
		if err := validateHTTPURL(cfg.Alerts.Discord.WebhookURL); err != nil {
			return NewValidationError("alerts.discord.webhook_url", err)
		}
	}
	if cfg.Alerts.Webhook.Enabled {
		if err := validateHTTPURL(cfg.Alerts.Webhook.URL); err != nil {
			return NewValidationError("alerts.webhook.url", err)
		}
		method := strings.ToUpper(cfg.Alerts.Webhook.Method)
		if method != http.MethodPost && method != http.MethodPut {
			return NewValidationError("alerts.webhook.method",
				fmt.Errorf("%w: must be POST or PUT", ErrInvalidValue))
		}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: required when the sink is enabled", ErrInvalidValue)
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%w: must be an http(s) URL", ErrInvalidValue)
	}
	if isPlaceholder(raw) {
		return ErrPlaceholderValue
	}
	return nil
}

func isPlaceholder(value string) bool {
	lower := strings.ToLower(value)
	for _, word := range placeholderSubstrings {
		if strings.Contains(lower, word) {
			return true
		}
	}
	for _, exact := range placeholderExact {
		if lower == exact {
			return true
		}
	}
	return false
}
