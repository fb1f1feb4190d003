package sinks

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
)

// DefaultTelegramAPIBase is the public Bot API endpoint.
const DefaultTelegramAPIBase = "https://api.telegram.org"

// telegramCaptionLimit is the Bot API's caption/message cap.
const telegramCaptionLimit = 1024

// TelegramConfig holds the parameters needed to construct a TelegramSink.
type TelegramConfig struct {
	Enabled  bool
	BotToken string
	ChatID   string

	// APIBase overrides the Bot API endpoint; used by tests.
	APIBase string
}

// TelegramSink posts alerts through the Telegram Bot API, using sendPhoto
// when the event carries at least one image and sendMessage otherwise.
type TelegramSink struct {
	cfg    TelegramConfig
	client *http.Client
}

// NewTelegramSink creates the Telegram alert sink.
func NewTelegramSink(cfg TelegramConfig) *TelegramSink {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultTelegramAPIBase
	}
	return &TelegramSink{cfg: cfg, client: &http.Client{}}
}

func (s *TelegramSink) Name() string  { return "telegram" }
func (s *TelegramSink) Enabled() bool { return s.cfg.Enabled }

// inlineButton is one button of an inline keyboard row.
type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

// Send posts one alert. Non-2xx responses are errors; the dispatcher logs
// and moves on.
func (s *TelegramSink) Send(ctx context.Context, msg AlertMessage) error {
	caption := s.buildCaption(msg)
	markup := s.buildButtons(msg)

	if len(msg.Images) > 0 {
		payload := map[string]any{
			"chat_id":    s.cfg.ChatID,
			"photo":      msg.Images[0],
			"caption":    caption,
			"parse_mode": "HTML",
		}
		if markup != nil {
			payload["reply_markup"] = markup
		}
		return postJSON(ctx, s.client, http.MethodPost, s.methodURL("sendPhoto"), nil, payload)
	}

	payload := map[string]any{
		"chat_id":    s.cfg.ChatID,
		"text":       caption,
		"parse_mode": "HTML",
	}
	if markup != nil {
		payload["reply_markup"] = markup
	}
	return postJSON(ctx, s.client, http.MethodPost, s.methodURL("sendMessage"), nil, payload)
}

func (s *TelegramSink) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimSuffix(s.cfg.APIBase, "/"), s.cfg.BotToken, method)
}

// buildCaption renders the alert with Telegram's lightweight HTML tag set,
// truncated to the Bot API caption limit.
func (s *TelegramSink) buildCaption(msg AlertMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> — @%s\n", html.EscapeString(kindLabel(msg.EventType)), html.EscapeString(msg.Username))
	if msg.Text != "" {
		b.WriteString(html.EscapeString(msg.Text))
		b.WriteString("\n")
	}
	if n := len(msg.Videos); n > 0 {
		fmt.Fprintf(&b, "Video(s): %d\n", n)
	}
	fmt.Fprintf(&b, "<i>%s</i>", html.EscapeString(msg.Timestamp))
	return truncate(b.String(), telegramCaptionLimit)
}

func (s *TelegramSink) buildButtons(msg AlertMessage) *inlineKeyboard {
	var row []inlineButton
	if msg.PostURL != "" {
		row = append(row, inlineButton{Text: "View Post", URL: msg.PostURL})
	}
	row = append(row, inlineButton{Text: "View Profile", URL: "https://x.com/" + msg.Username})
	return &inlineKeyboard{InlineKeyboard: [][]inlineButton{row}}
}

// kindLabel renders an event kind for display ("post_created" → "Post
// Created").
func kindLabel(kind string) string {
	words := strings.Split(kind, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
