package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/claimwatch/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleClaim(previous, current string) models.ClaimEvent {
	prev := decimal.RequireFromString(previous)
	cur := decimal.RequireFromString(current)
	return models.ClaimEvent{
		ID: "claim-1",
		Token: models.TokenRecord{
			Mint:         "MintAddress1111111111111111111111111111111",
			Symbol:       "ONE",
			MarketCap:    420000,
			PriceUSD:     0.0042,
			LifetimeFees: decimal.RequireFromString("12.5"),
		},
		Creator: models.CreatorRecord{
			Wallet:       "Wallet11111111111111111111111111111111111",
			Username:     "alice",
			RoyaltyBps:   250,
			TotalClaimed: cur,
		},
		Previous:   prev,
		Current:    cur,
		Delta:      cur.Sub(prev),
		DetectedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func fieldValue(msg Message, name string) (string, bool) {
	for _, f := range msg.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func TestRenderer_Claim(t *testing.T) {
	r := Renderer{TokenURLFormat: "https://solscan.io/token/%s"}

	msg := r.Claim(sampleClaim("1", "3.5"))

	assert.Equal(t, "💰 Fee Claim Detected", msg.Title)
	assert.Equal(t, ColorClaim, msg.Color)
	assert.Equal(t, "alice claimed 2.5 SOL from ONE", msg.Description)
	assert.Equal(t, "https://solscan.io/token/MintAddress1111111111111111111111111111111", msg.URL)

	v, ok := fieldValue(msg, "Total Claimed")
	require.True(t, ok)
	assert.Equal(t, "3.5 SOL", v)
	v, ok = fieldValue(msg, "Royalty")
	require.True(t, ok)
	assert.Equal(t, "2.5%", v)
	v, ok = fieldValue(msg, "Market Cap")
	require.True(t, ok)
	assert.Equal(t, "$420,000", v)
	_, ok = fieldValue(msg, "Volume 24h")
	assert.False(t, ok, "zero volume is omitted")
}

func TestRenderer_FirstClaim(t *testing.T) {
	msg := Renderer{}.Claim(sampleClaim("0", "0.75"))

	assert.Equal(t, "🎉 First Fee Claim", msg.Title)
	assert.Equal(t, ColorFirstClaim, msg.Color)
	assert.Empty(t, msg.URL)
}

func TestRenderer_Idle(t *testing.T) {
	now := time.Date(2024, 5, 1, 13, 30, 0, 0, time.UTC)
	msg := Renderer{}.Idle(models.IdleEvent{
		LastClaimAt:    now.Add(-90 * time.Minute),
		SilentFor:      90 * time.Minute,
		TrackedEntries: 1234,
		DetectedAt:     now,
	})

	assert.Equal(t, "No fee claims for 1h 30m", msg.Description)
	assert.Equal(t, ColorIdle, msg.Color)
	v, _ := fieldValue(msg, "Tracked Creators")
	assert.Equal(t, "1,234", v)
	v, _ = fieldValue(msg, "Quiet Since")
	assert.Equal(t, "2024-05-01 12:00:00 UTC", v)
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "0.000001 SOL", FormatSOL(decimal.RequireFromString("0.0000012")))
	assert.Equal(t, "2 SOL", FormatSOL(decimal.RequireFromString("2.000")))
	assert.Equal(t, "$1,234.5", FormatUSD(1234.5))
	assert.Equal(t, "45m", FormatDuration(45*time.Minute))
	assert.Equal(t, "2h", FormatDuration(2*time.Hour))
	assert.Equal(t, "100%", formatBps(10000))
}

func TestDiscord_Send(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, "claimwatch", 5*time.Second)
	msg := Renderer{}.Claim(sampleClaim("0", "2.5"))

	require.NoError(t, d.Send(context.Background(), msg))

	assert.Equal(t, "claimwatch", got.Username)
	require.Len(t, got.Embeds, 1)
	embed := got.Embeds[0]
	assert.Equal(t, msg.Title, embed.Title)
	assert.Equal(t, ColorFirstClaim, embed.Color)
	assert.Equal(t, "2024-05-01T12:00:00Z", embed.Timestamp)
	assert.Len(t, embed.Fields, len(msg.Fields))
}

func TestDiscord_SendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Invalid Webhook Token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, "", 5*time.Second)
	err := d.Send(context.Background(), Message{Title: "x"})

	var ne *NotifyError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, "discord", ne.Channel)
	assert.Equal(t, http.StatusUnauthorized, ne.Status)
	assert.Contains(t, ne.Body, "Invalid Webhook Token")
}

func TestDiscord_PayloadLimits(t *testing.T) {
	d := NewDiscord("http://unused", "", time.Second)
	msg := Message{Title: strings.Repeat("t", 300)}
	for i := 0; i < 30; i++ {
		msg.Fields = append(msg.Fields, Field{Name: "n", Value: strings.Repeat("v", 2000)})
	}

	p := d.payload(msg)

	require.Len(t, p.Embeds, 1)
	assert.Len(t, []rune(p.Embeds[0].Title), maxEmbedTitle)
	assert.Len(t, p.Embeds[0].Fields, maxEmbedFields)
	assert.Len(t, []rune(p.Embeds[0].Fields[0].Value), maxFieldValue)
	assert.Empty(t, p.Embeds[0].Timestamp)
}

type recordingSender struct {
	name string
	err  error
	msgs []Message
}

func (s *recordingSender) Name() string { return s.name }

func (s *recordingSender) Send(ctx context.Context, msg Message) error {
	s.msgs = append(s.msgs, msg)
	return s.err
}

func TestDispatcher_FansOutAndJoinsErrors(t *testing.T) {
	failing := &recordingSender{name: "a", err: &NotifyError{Channel: "a", Status: 500}}
	ok := &recordingSender{name: "b"}
	d := NewDispatcher(Renderer{}, failing, ok)

	err := d.NotifyClaim(context.Background(), sampleClaim("0", "1"))

	require.Error(t, err)
	var ne *NotifyError
	assert.True(t, errors.As(err, &ne))
	assert.Len(t, failing.msgs, 1)
	assert.Len(t, ok.msgs, 1, "later senders still run after a failure")
	assert.Equal(t, []string{"a", "b"}, d.Senders())
}

func TestDispatcher_NoSenders(t *testing.T) {
	d := NewDispatcher(Renderer{})
	assert.NoError(t, d.NotifyIdle(context.Background(), models.IdleEvent{}))
	assert.NoError(t, d.NotifyError(context.Background(), errors.New("boom")))
	assert.NoError(t, d.NotifyRecovery(context.Background(), 3))
}

func TestDispatcher_ErrorAndRecovery(t *testing.T) {
	s := &recordingSender{name: "x"}
	d := NewDispatcher(Renderer{}, s)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	require.NoError(t, d.NotifyError(context.Background(), errors.New("fetch fees: status 503")))
	require.NoError(t, d.NotifyRecovery(context.Background(), 4))

	require.Len(t, s.msgs, 2)
	assert.Equal(t, ColorError, s.msgs[0].Color)
	assert.Equal(t, "fetch fees: status 503", s.msgs[0].Description)
	assert.Equal(t, fixed, s.msgs[0].Timestamp)
	assert.Equal(t, "Recovered after 4 consecutive failure(s)", s.msgs[1].Description)
}
