package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rewired-gh/claimwatch/internal/notify"
	"github.com/rewired-gh/claimwatch/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{`back\slash`, `back\\slash`},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, escapeMarkdownV2(tt.input))
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// Chat ID is parsed before any Bot API call, so no network is needed.
	_, err := NewClient("", "not-a-number", 3, time.Second)
	assert.Error(t, err)
}

func TestFormatMessage(t *testing.T) {
	msg := notify.Message{
		Title:       "💰 Fee Claim Detected",
		Description: "alice claimed 2.5 SOL from ONE",
		URL:         "https://solscan.io/token/mint(1)",
		Fields: []notify.Field{
			{Name: "Claimed", Value: "2.5 SOL"},
		},
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	got := formatMessage(msg)

	for _, want := range []string{
		"*💰 Fee Claim Detected*\n",
		"alice claimed 2\\.5 SOL from ONE\n",
		"*Claimed:* 2\\.5 SOL\n",
		"[View token](https://solscan.io/token/mint(1\\))",
		"📅 2024\\-05\\-01 12:00:00 UTC",
	} {
		assert.Contains(t, got, want)
	}
}

func TestFormatRecent(t *testing.T) {
	now := time.Now()
	claims := []storage.ClaimRecord{
		{CreatorName: "alice", TokenSymbol: "ONE", Delta: decimal.RequireFromString("2.5"), DetectedAt: now.Add(-3 * time.Minute)},
		{CreatorName: "bob", TokenSymbol: "TWO", Delta: decimal.RequireFromString("0.1"), DetectedAt: now.Add(-2 * time.Hour)},
	}

	got := formatRecent(claims, now)

	assert.Contains(t, got, "1. alice claimed 2.5 SOL from ONE (3 minutes ago)")
	assert.Contains(t, got, "2. bob claimed 0.1 SOL from TWO (2 hours ago)")
}

type fakeHistory struct {
	count    int
	countErr error
}

func (h *fakeHistory) RecentClaims(k int) ([]storage.ClaimRecord, error) {
	return nil, nil
}

func (h *fakeHistory) CountClaims() (int, error) {
	return h.count, h.countErr
}

func TestStatusText(t *testing.T) {
	c := &Client{}
	assert.Empty(t, c.statusText(), "no status sources configured")

	c.SetStatus(func() string { return "Phase: active" })
	assert.Equal(t, "Phase: active", c.statusText())

	c.SetHistory(&fakeHistory{count: 12345})
	assert.Equal(t, "Phase: active\nJournaled claims: 12,345", c.statusText())

	c.SetHistory(&fakeHistory{countErr: errors.New("database is locked")})
	assert.Contains(t, c.statusText(), "Journaled claims: unavailable (database is locked)")
}

func TestRecentText_NoClaims(t *testing.T) {
	c := &Client{}
	assert.Equal(t, "Claim journal is disabled", c.recentText())

	c.SetHistory(&fakeHistory{})
	assert.Equal(t, "No claims recorded yet", c.recentText())
}

// fakeBotAPI emulates the Bot API methods the client calls.
type fakeBotAPI struct {
	mu         sync.Mutex
	failSends  int
	sends      int
	lastFields map[string]string
}

func (f *fakeBotAPI) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"claimwatch","username":"claimwatch_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		_ = r.ParseForm()
		f.mu.Lock()
		defer f.mu.Unlock()
		f.sends++
		f.lastFields = map[string]string{
			"chat_id":    r.FormValue("chat_id"),
			"parse_mode": r.FormValue("parse_mode"),
			"text":       r.FormValue("text"),
		}
		if f.sends <= f.failSends {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeBotAPI) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

func newFakeClient(t *testing.T, api *fakeBotAPI, maxRetries int) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	t.Cleanup(srv.Close)

	c, err := NewClientWithEndpoint("test-token", "42", srv.URL+"/bot%s/%s", maxRetries, time.Millisecond)
	require.NoError(t, err)
	return c
}

func TestSend_DeliversMarkdownV2(t *testing.T) {
	api := &fakeBotAPI{}
	c := newFakeClient(t, api, 3)

	require.NoError(t, c.Send(context.Background(), notify.Message{Title: "Hello", Description: "world."}))

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, 1, api.sends)
	assert.Equal(t, "42", api.lastFields["chat_id"])
	assert.Equal(t, "MarkdownV2", api.lastFields["parse_mode"])
	assert.Contains(t, api.lastFields["text"], "world\\.")
}

func TestSend_RetriesThenSucceeds(t *testing.T) {
	api := &fakeBotAPI{failSends: 2}
	c := newFakeClient(t, api, 3)

	require.NoError(t, c.Send(context.Background(), notify.Message{Title: "retry"}))
	assert.Equal(t, 3, api.sendCount())
}

func TestSend_ExhaustsRetries(t *testing.T) {
	api := &fakeBotAPI{failSends: 10}
	c := newFakeClient(t, api, 2)

	err := c.Send(context.Background(), notify.Message{Title: "fail"})

	var ne *notify.NotifyError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, "telegram", ne.Channel)
	assert.Equal(t, 2, api.sendCount())
}
