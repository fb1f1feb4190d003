// Alpha-stream gateway - ingests the crawler event stream and fans it out to
// the terminal, the alert channels and the dashboard broadcast server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/muhammetakkurtt/alpha-stream/pkg/bus"
	"github.com/muhammetakkurtt/alpha-stream/pkg/config"
	"github.com/muhammetakkurtt/alpha-stream/pkg/core"
	"github.com/muhammetakkurtt/alpha-stream/pkg/dedup"
	"github.com/muhammetakkurtt/alpha-stream/pkg/filter"
	"github.com/muhammetakkurtt/alpha-stream/pkg/health"
	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
	"github.com/muhammetakkurtt/alpha-stream/pkg/normalize"
	"github.com/muhammetakkurtt/alpha-stream/pkg/sanitize"
	"github.com/muhammetakkurtt/alpha-stream/pkg/server"
	"github.com/muhammetakkurtt/alpha-stream/pkg/sinks"
	"github.com/muhammetakkurtt/alpha-stream/pkg/stream"
	"github.com/muhammetakkurtt/alpha-stream/pkg/version"
)

// shutdownGrace bounds graceful HTTP shutdown at exit.
const shutdownGrace = 5 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config",
		getEnv("ALPHASTREAM_CONFIG", "alphastream.yaml"),
		"Path to the configuration file")
	flag.Parse()

	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}

	// The sanitizer wraps the default logger before any secret can be
	// logged; config loading registers the secrets.
	sanitize.WrapLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Configuration failed", "error", err)
		return 1
	}

	setupLogging(cfg)
	slog.Info("Starting alpha-stream gateway",
		"version", version.Full(), "config", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	stats := core.NewStats(registry)

	client := stream.NewClient(stream.Config{
		BaseURL:  cfg.Upstream.ActorURL,
		Token:    cfg.Upstream.Token,
		Channels: core.NormalizeChannels(cfg.Upstream.Channels),
		Users:    core.NormalizeUsers(cfg.Upstream.Users),
		Reconnect: stream.ReconnectConfig{
			InitialDelay: cfg.Reconnect.InitialDelayDuration(),
			MaxDelay:     cfg.Reconnect.MaxDelayDuration(),
			Multiplier:   cfg.Reconnect.Multiplier,
			MaxAttempts:  cfg.Reconnect.MaxAttempts,
		},
	})

	eventBus := bus.New()
	subs := core.NewSubscriptionManager(client, cfg.Upstream.Channels, cfg.Upstream.Users)

	pipelineFilters := filter.NewPipeline(buildPredicates(cfg)...)

	cliEnabled := cfg.CLI.Enabled != nil && *cfg.CLI.Enabled
	broadcastEnabled := cfg.Broadcast.Enabled != nil && *cfg.Broadcast.Enabled

	var topics []string
	var cliSink *sinks.CLISink
	if cliEnabled {
		topics = append(topics, bus.TopicCLI)
		cliSink = sinks.NewCLISink(os.Stdout, cfg.CLI.StatsIntervalDuration())
	}
	notifiers := buildNotifiers(cfg)
	if len(notifiers) > 0 {
		topics = append(topics, bus.TopicAlerts)
	}
	if broadcastEnabled {
		topics = append(topics, bus.TopicDashboard)
	}

	var broadcast *server.Server
	streamCore := core.New(core.Options{
		Upstream:   client,
		Normalizer: normalize.New(),
		Filters:    pipelineFilters,
		Dedup:      dedup.NewCache(cfg.Dedup.TTL()),
		Bus:        eventBus,
		Stats:      stats,
		Subs:       subs,
		DedupTTL:   cfg.Dedup.TTL(),
		Topics:     topics,
		OnDedup: func() {
			if cliSink != nil {
				cliSink.IncrementDeduped()
			}
		},
		// broadcast is assigned below, before the pipeline starts.
		OnStateChange: func(s stream.State) {
			if broadcast != nil {
				broadcast.SetConnectionState(string(s))
			}
		},
	})

	var refresher *server.UserRefresher
	if broadcastEnabled {
		broadcast = server.NewServer(server.Config{
			DashboardDir: cfg.Broadcast.DashboardDir,
			RecentSize:   cfg.Broadcast.RecentSize,
			Filters: server.FiltersDocument{
				Users:    cfg.Filters.Users,
				Keywords: cfg.Filters.Keywords,
				Kinds:    cfg.Filters.Kinds,
			},
		}, streamCore)
		refresher = server.NewUserRefresher(broadcast, cfg.Broadcast.ActiveUserRefreshDuration())
	}

	// Wire the sinks onto their topics.
	if cliSink != nil {
		eventBus.Subscribe(bus.TopicCLI, cliSink.HandleEvent)
		cliSink.Start(ctx)
		defer cliSink.Stop()
	}
	if len(notifiers) > 0 {
		dispatcher := sinks.NewDispatcher(cfg.Alerts.RateMax, cfg.Alerts.RateWindowDuration(), notifiers...)
		eventBus.Subscribe(bus.TopicAlerts, dispatcher.HandleEvent)
	}
	if broadcast != nil {
		eventBus.Subscribe(bus.TopicDashboard, broadcast.HandleEvent)
		refresher.Start(ctx)
		defer refresher.Stop()
	}

	healthServer := health.NewServer(registry, func() string {
		return string(client.CurrentState())
	})

	client.Start(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return streamCore.Run(groupCtx)
	})
	if broadcast != nil {
		group.Go(func() error {
			addr := fmt.Sprintf(":%d", cfg.Broadcast.Port)
			slog.Info("Broadcast server listening", "addr", addr)
			return broadcast.Start(addr)
		})
	}
	group.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Health.Port)
		slog.Info("Health endpoint listening", "addr", addr)
		return healthServer.Start(addr)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if broadcast != nil {
			if err := broadcast.Shutdown(shutdownCtx); err != nil {
				slog.Warn("Broadcast server shutdown failed", "error", err)
			}
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	healthServer.SetReady(true)

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Gateway failed", "error", err)
		return 1
	}
	slog.Info("Gateway stopped cleanly")
	return 0
}

// setupLogging configures the default slog handler from the logging config,
// preserving the sanitizer wrap.
func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.Logging.Debug {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	if cfg.Logging.FileEnabled {
		f, err := os.OpenFile(cfg.Logging.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.Warn("File logging requested but file could not be opened",
				"path", cfg.Logging.FilePath, "error", err)
		} else {
			slog.Warn("File logging enabled; log output is written to disk",
				"path", cfg.Logging.FilePath)
			out = io.MultiWriter(os.Stderr, f)
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
	// Re-wrap: SetDefault replaced the sanitizing handler.
	sanitize.WrapLogger()
}

// buildPredicates assembles the filter pipeline from configuration. Empty
// axes contribute no predicate.
func buildPredicates(cfg *config.Config) []filter.Predicate {
	var preds []filter.Predicate
	if len(cfg.Filters.Users) > 0 {
		// Usernames are matched case-sensitively against the event's
		// username, which is never lowercased. Only the subscription state
		// lowercases its user set — ALPHASTREAM_USERS feeds both, so
		// routing the filter list through core.NormalizeUsers would break
		// the allowlist for any mixed-case handle. NewUserFilter trims.
		preds = append(preds, filter.NewUserFilter(cfg.Filters.Users))
	}
	if len(cfg.Filters.Keywords) > 0 {
		preds = append(preds, filter.NewKeywordFilter(cfg.Filters.Keywords))
	}
	if len(cfg.Filters.Kinds) > 0 {
		kinds := make([]models.EventKind, 0, len(cfg.Filters.Kinds))
		for _, k := range cfg.Filters.Kinds {
			kinds = append(kinds, models.EventKind(strings.ToLower(strings.TrimSpace(k))))
		}
		preds = append(preds, filter.NewKindFilter(kinds))
	}
	return preds
}

// buildNotifiers assembles the enabled alert sinks.
func buildNotifiers(cfg *config.Config) []sinks.Notifier {
	var notifiers []sinks.Notifier
	if cfg.Alerts.Telegram.Enabled {
		notifiers = append(notifiers, sinks.NewTelegramSink(sinks.TelegramConfig{
			Enabled:  true,
			BotToken: cfg.Alerts.Telegram.BotToken,
			ChatID:   cfg.Alerts.Telegram.ChatID,
			APIBase:  cfg.Alerts.Telegram.APIBase,
		}))
	}
	if cfg.Alerts.Discord.Enabled {
		notifiers = append(notifiers, sinks.NewDiscordSink(sinks.DiscordConfig{
			Enabled:    true,
			WebhookURL: cfg.Alerts.Discord.WebhookURL,
		}))
	}
	if cfg.Alerts.Webhook.Enabled {
		notifiers = append(notifiers, sinks.NewWebhookSink(sinks.WebhookConfig{
			Enabled: true,
			URL:     cfg.Alerts.Webhook.URL,
			Method:  strings.ToUpper(cfg.Alerts.Webhook.Method),
			Headers: cfg.Alerts.Webhook.Headers,
		}))
	}
	return notifiers
}
