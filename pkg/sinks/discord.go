package sinks

import (
	"context"
	"fmt"
	"net/http"
)

// discordDescriptionLimit caps the embed description.
const discordDescriptionLimit = 300

// Embed colors per event kind.
var discordColors = map[string]int{
	"post_created":    0x1d9bf0, // blue
	"post_updated":    0x8ecdf8, // light blue
	"follow_created":  0x00ba7c, // green
	"follow_updated":  0x7fdcbd, // light green
	"user_updated":    0xffd400, // yellow
	"profile_updated": 0xf91880, // pink
	"profile_pinned":  0x7856ff, // purple
}

// discordDefaultColor is used for kinds missing from the palette.
const discordDefaultColor = 0x536471

// DiscordConfig holds the parameters needed to construct a DiscordSink.
type DiscordConfig struct {
	Enabled    bool
	WebhookURL string
}

// DiscordSink posts alerts to a Discord incoming webhook as a rich embed.
type DiscordSink struct {
	cfg    DiscordConfig
	client *http.Client
}

// NewDiscordSink creates the Discord webhook alert sink.
func NewDiscordSink(cfg DiscordConfig) *DiscordSink {
	return &DiscordSink{cfg: cfg, client: &http.Client{}}
}

func (s *DiscordSink) Name() string  { return "discord" }
func (s *DiscordSink) Enabled() bool { return s.cfg.Enabled }

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Image       *discordImage  `json:"image,omitempty"`
	Thumbnail   *discordImage  `json:"thumbnail,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordImage struct {
	URL string `json:"url"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordWebhookPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// Send posts one alert as an embed document.
func (s *DiscordSink) Send(ctx context.Context, msg AlertMessage) error {
	color, ok := discordColors[msg.EventType]
	if !ok {
		color = discordDefaultColor
	}

	embed := discordEmbed{
		Title:       fmt.Sprintf("%s — @%s", kindLabel(msg.EventType), msg.Username),
		Description: truncate(msg.Text, discordDescriptionLimit),
		Color:       color,
		Footer:      &discordFooter{Text: msg.Timestamp},
	}
	if len(msg.Images) > 0 {
		embed.Image = &discordImage{URL: msg.Images[0]}
	}
	if msg.AvatarURL != "" {
		embed.Thumbnail = &discordImage{URL: msg.AvatarURL}
	}
	if msg.PostURL != "" {
		embed.Fields = append(embed.Fields, discordField{
			Name:  "View Post",
			Value: msg.PostURL,
		})
	}
	if n := len(msg.Videos); n > 0 {
		embed.Fields = append(embed.Fields, discordField{
			Name:   "Video(s)",
			Value:  fmt.Sprintf("%d", n),
			Inline: true,
		})
	}

	payload := discordWebhookPayload{Embeds: []discordEmbed{embed}}
	return postJSON(ctx, s.client, http.MethodPost, s.cfg.WebhookURL, nil, payload)
}
