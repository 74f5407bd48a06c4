package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	discordChannel = "discord"

	// Discord limits each webhook to 5 requests per 2 seconds.
	discordBurst    = 5
	discordInterval = 400 * time.Millisecond

	// Embed limits enforced by Discord.
	maxEmbedTitle       = 256
	maxEmbedDescription = 4096
	maxEmbedFields      = 25
	maxFieldName        = 256
	maxFieldValue       = 1024
)

// Discord posts messages to a Discord webhook as embeds.
type Discord struct {
	webhookURL string
	username   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// NewDiscord creates a webhook sender.
func NewDiscord(webhookURL, username string, timeout time.Duration) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		username:   username,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(discordInterval), discordBurst),
	}
}

func (d *Discord) Name() string {
	return discordChannel
}

// Send posts msg to the webhook. Any non-2xx answer is a *NotifyError.
func (d *Discord) Send(ctx context.Context, msg Message) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return &NotifyError{Channel: discordChannel, Err: err}
	}

	body, err := json.Marshal(d.payload(msg))
	if err != nil {
		return &NotifyError{Channel: discordChannel, Err: fmt.Errorf("failed to encode payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return &NotifyError{Channel: discordChannel, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return &NotifyError{Channel: discordChannel, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &NotifyError{Channel: discordChannel, Status: resp.StatusCode, Body: string(respBody)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (d *Discord) payload(msg Message) discordPayload {
	embed := discordEmbed{
		Title:       clip(msg.Title, maxEmbedTitle),
		Description: clip(msg.Description, maxEmbedDescription),
		URL:         msg.URL,
		Color:       msg.Color,
		Footer:      &discordFooter{Text: "claimwatch"},
	}
	if !msg.Timestamp.IsZero() {
		embed.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
	}
	for i, f := range msg.Fields {
		if i == maxEmbedFields {
			break
		}
		embed.Fields = append(embed.Fields, discordField{
			Name:   clip(f.Name, maxFieldName),
			Value:  clip(f.Value, maxFieldValue),
			Inline: f.Inline,
		})
	}
	return discordPayload{Username: d.username, Embeds: []discordEmbed{embed}}
}

// clip truncates s to at most n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
