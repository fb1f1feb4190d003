package sinks

import (
	"context"
	"net/http"
)

// WebhookConfig holds the parameters needed to construct a WebhookSink.
type WebhookConfig struct {
	Enabled bool
	URL     string
	Method  string // POST or PUT
	Headers map[string]string
}

// WebhookSink delivers the raw AlertMessage JSON to a configured endpoint.
type WebhookSink struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhookSink creates the generic webhook alert sink.
func NewWebhookSink(cfg WebhookConfig) *WebhookSink {
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	return &WebhookSink{cfg: cfg, client: &http.Client{}}
}

func (s *WebhookSink) Name() string  { return "webhook" }
func (s *WebhookSink) Enabled() bool { return s.cfg.Enabled }

// Send posts the message as-is with the configured method and headers.
func (s *WebhookSink) Send(ctx context.Context, msg AlertMessage) error {
	return postJSON(ctx, s.client, s.cfg.Method, s.cfg.URL, s.cfg.Headers, msg)
}
