// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/claimwatch/internal/logger"
	"github.com/rewired-gh/claimwatch/internal/notify"
	"github.com/rewired-gh/claimwatch/internal/storage"
)

const recentLimit = 5

// ClaimHistory reads journaled claims for the /recent and /status commands.
type ClaimHistory interface {
	RecentClaims(k int) ([]storage.ClaimRecord, error)
	CountClaims() (int, error)
}

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration

	history ClaimHistory
	status  func() string
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	return NewClientWithEndpoint(botToken, chatID, tgbotapi.APIEndpoint, maxRetries, retryDelayBase)
}

// NewClientWithEndpoint is NewClient against a custom Bot API endpoint, a
// fmt pattern taking the token and the method name.
func NewClientWithEndpoint(botToken, chatID, endpoint string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SetHistory enables the /recent command.
func (c *Client) SetHistory(h ClaimHistory) {
	c.history = h
}

// SetStatus enables the /status command. fn must be safe to call from
// the command goroutine.
func (c *Client) SetStatus(fn func() string) {
	c.status = fn
}

func (c *Client) Name() string {
	return "telegram"
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	var text string
	switch msg.Command() {
	case "ping":
		text = "Pong"
	case "recent":
		text = c.recentText()
	case "status":
		text = c.statusText()
		if text == "" {
			return
		}
	default:
		return
	}
	if _, err := c.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, text)); err != nil {
		logger.Warn("Failed to answer /%s: %v", msg.Command(), err)
	}
}

func (c *Client) statusText() string {
	var parts []string
	if c.status != nil {
		parts = append(parts, c.status())
	}
	if c.history != nil {
		n, err := c.history.CountClaims()
		if err != nil {
			parts = append(parts, "Journaled claims: unavailable ("+err.Error()+")")
		} else {
			parts = append(parts, "Journaled claims: "+humanize.Comma(int64(n)))
		}
	}
	return strings.Join(parts, "\n")
}

func (c *Client) recentText() string {
	if c.history == nil {
		return "Claim journal is disabled"
	}
	claims, err := c.history.RecentClaims(recentLimit)
	if err != nil {
		return "Failed to load recent claims: " + err.Error()
	}
	if len(claims) == 0 {
		return "No claims recorded yet"
	}
	return formatRecent(claims, time.Now())
}

func formatRecent(claims []storage.ClaimRecord, now time.Time) string {
	var b strings.Builder
	b.WriteString("Recent claims:\n")
	for i, r := range claims {
		fmt.Fprintf(&b, "%d. %s claimed %s from %s (%s)\n",
			i+1, r.CreatorName, notify.FormatSOL(r.Delta), r.TokenSymbol,
			humanize.RelTime(r.DetectedAt, now, "ago", "from now"))
	}
	return b.String()
}

// Send delivers a rendered message as MarkdownV2 with linear-backoff retry.
func (c *Client) Send(ctx context.Context, msg notify.Message) error {
	return c.sendMarkdownV2(ctx, formatMessage(msg))
}

func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return &notify.NotifyError{Channel: c.Name(), Err: ctx.Err()}
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return &notify.NotifyError{
		Channel: c.Name(),
		Err:     fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr),
	}
}

// formatMessage formats a message into Telegram MarkdownV2.
func formatMessage(msg notify.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", escapeMarkdownV2(msg.Title))
	if msg.Description != "" {
		fmt.Fprintf(&b, "%s\n", escapeMarkdownV2(msg.Description))
	}
	if len(msg.Fields) > 0 {
		b.WriteString("\n")
		for _, f := range msg.Fields {
			fmt.Fprintf(&b, "*%s:* %s\n", escapeMarkdownV2(f.Name), escapeMarkdownV2(f.Value))
		}
	}
	if msg.URL != "" {
		fmt.Fprintf(&b, "\n[View token](%s)\n", escapeLinkURL(msg.URL))
	}
	if !msg.Timestamp.IsZero() {
		dateStr := escapeMarkdownV2(msg.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
		fmt.Fprintf(&b, "\n📅 %s", dateStr)
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// escapeLinkURL escapes the characters MarkdownV2 reserves inside (...) of a link.
func escapeLinkURL(u string) string {
	r := strings.NewReplacer(`\`, `\\`, `)`, `\)`)
	return r.Replace(u)
}
