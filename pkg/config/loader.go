package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/muhammetakkurtt/alpha-stream/pkg/sanitize"
)

// Load reads, merges and validates configuration. Precedence, lowest first:
// built-in defaults, the YAML file at path (optional; "" skips it), then the
// environment. Secrets are taken from the environment only and registered
// with the log sanitizer.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	cfg.path = path

	if path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		stripFileSecrets(fileCfg, path)
		if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("merge: %w", err))
		}
		// mergo treats a dereferenced false/0 as empty; explicit pointers
		// from the file are carried over by hand so "enabled: false" and
		// "ttl_seconds: 0" take effect.
		if fileCfg.CLI.Enabled != nil {
			cfg.CLI.Enabled = fileCfg.CLI.Enabled
		}
		if fileCfg.Broadcast.Enabled != nil {
			cfg.Broadcast.Enabled = fileCfg.Broadcast.Enabled
		}
		if fileCfg.Dedup.TTLSeconds != nil {
			cfg.Dedup.TTLSeconds = fileCfg.Dedup.TTLSeconds
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	registerSecrets(cfg)
	return cfg, nil
}

// Reload re-reads the configuration this Config was loaded from and replaces
// the receiver's contents on success. On failure the receiver is unchanged.
func (c *Config) Reload() error {
	fresh, err := Load(c.path)
	if err != nil {
		return err
	}
	*c = *fresh
	return nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(path, ErrConfigNotFound)
		}
		return nil, NewLoadError(path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return &cfg, nil
}

// stripFileSecrets removes secrets that must never live in the file. They
// are replaced from the environment in applyEnv.
func stripFileSecrets(cfg *Config, path string) {
	if cfg.Upstream.Token != "" {
		slog.Warn("Ignoring upstream token found in config file; set it via environment",
			"file", path, "env", EnvToken)
		cfg.Upstream.Token = ""
	}
	if cfg.Alerts.Telegram.BotToken != "" {
		slog.Warn("Ignoring Telegram bot token found in config file; set it via environment",
			"file", path, "env", EnvTelegramBotToken)
		cfg.Alerts.Telegram.BotToken = ""
	}
	if cfg.Alerts.Discord.WebhookURL != "" {
		slog.Warn("Ignoring Discord webhook URL found in config file; set it via environment",
			"file", path, "env", EnvDiscordWebhook)
		cfg.Alerts.Discord.WebhookURL = ""
	}
}

// applyEnv overlays environment variables, the highest-precedence source.
func applyEnv(cfg *Config) {
	cfg.Upstream.Token = os.Getenv(EnvToken)
	cfg.Alerts.Telegram.BotToken = os.Getenv(EnvTelegramBotToken)
	cfg.Alerts.Discord.WebhookURL = os.Getenv(EnvDiscordWebhook)

	if v := os.Getenv(EnvActorURL); v != "" {
		cfg.Upstream.ActorURL = v
	}
	if v := os.Getenv(EnvChannels); v != "" {
		cfg.Upstream.Channels = splitList(v)
	}
	if v := os.Getenv(EnvUsers); v != "" {
		cfg.Upstream.Users = splitList(v)
		cfg.Filters.Users = splitList(v)
	}
	if v := os.Getenv(EnvKeywords); v != "" {
		cfg.Filters.Keywords = splitList(v)
	}
	if v := os.Getenv(EnvDedupTTLSeconds); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dedup.TTLSeconds = &n
		} else {
			slog.Warn("Ignoring non-numeric environment override", "env", EnvDedupTTLSeconds, "value", v)
		}
	}
	if v := os.Getenv(EnvBroadcastPort); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Broadcast.Port = n
		} else {
			slog.Warn("Ignoring non-numeric environment override", "env", EnvBroadcastPort, "value", v)
		}
	}
	if v := os.Getenv(EnvHealthPort); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Health.Port = n
		} else {
			slog.Warn("Ignoring non-numeric environment override", "env", EnvHealthPort, "value", v)
		}
	}
	if v := os.Getenv(EnvDebug); v != "" {
		cfg.Logging.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv(EnvTelegramChatID); v != "" {
		cfg.Alerts.Telegram.ChatID = v
	}
	if v := os.Getenv(EnvWebhookURL); v != "" {
		cfg.Alerts.Webhook.URL = v
	}
}

// registerSecrets hands every sensitive string to the log sanitizer so it
// can never appear in log output.
func registerSecrets(cfg *Config) {
	sanitize.RegisterSecret(cfg.Upstream.Token)
	sanitize.RegisterSecret(cfg.Alerts.Telegram.BotToken)
	sanitize.RegisterSecret(cfg.Alerts.Discord.WebhookURL)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
