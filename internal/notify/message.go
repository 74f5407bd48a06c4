package notify

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rewired-gh/claimwatch/internal/models"
	"github.com/shopspring/decimal"
)

const (
	ColorClaim      = 0x2ECC71
	ColorFirstClaim = 0xF1C40F
	ColorIdle       = 0x95A5A6
	ColorError      = 0xE74C3C
	ColorRecovery   = 0x3498DB
)

// Field is a labelled value inside a Message.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is a rendered notification, independent of the delivery channel.
type Message struct {
	Title       string
	Description string
	Color       int
	URL         string
	Fields      []Field
	Timestamp   time.Time
}

// Renderer turns events into messages.
type Renderer struct {
	// TokenURLFormat is a fmt pattern taking the token mint, e.g.
	// "https://solscan.io/token/%s". Empty disables links.
	TokenURLFormat string
}

func (r Renderer) tokenURL(mint string) string {
	if r.TokenURLFormat == "" || mint == "" {
		return ""
	}
	return fmt.Sprintf(r.TokenURLFormat, mint)
}

// Claim renders a claim event.
func (r Renderer) Claim(ev models.ClaimEvent) Message {
	title := "💰 Fee Claim Detected"
	color := ColorClaim
	if ev.FirstClaim() {
		title = "🎉 First Fee Claim"
		color = ColorFirstClaim
	}

	fields := []Field{
		{Name: "Token", Value: fmt.Sprintf("%s (%s)", ev.Token.Label(), ev.Token.Mint)},
		{Name: "Creator", Value: fmt.Sprintf("%s (%s)", ev.Creator.DisplayName(), ev.Creator.Wallet)},
		{Name: "Claimed", Value: FormatSOL(ev.Delta), Inline: true},
		{Name: "Total Claimed", Value: FormatSOL(ev.Current), Inline: true},
		{Name: "Lifetime Fees", Value: FormatSOL(ev.Token.LifetimeFees), Inline: true},
	}
	if ev.Creator.HasRoyalty() {
		fields = append(fields, Field{Name: "Royalty", Value: formatBps(ev.Creator.RoyaltyBps), Inline: true})
	}
	if ev.Token.MarketCap > 0 {
		fields = append(fields, Field{Name: "Market Cap", Value: FormatUSD(ev.Token.MarketCap), Inline: true})
	}
	if ev.Token.PriceUSD > 0 {
		fields = append(fields, Field{Name: "Price", Value: fmt.Sprintf("$%s", humanize.FtoaWithDigits(ev.Token.PriceUSD, 8)), Inline: true})
	}
	if ev.Token.Volume24h > 0 {
		fields = append(fields, Field{Name: "Volume 24h", Value: FormatUSD(ev.Token.Volume24h), Inline: true})
	}

	return Message{
		Title:       title,
		Description: fmt.Sprintf("%s claimed %s from %s", ev.Creator.DisplayName(), FormatSOL(ev.Delta), ev.Token.Label()),
		Color:       color,
		URL:         r.tokenURL(ev.Token.Mint),
		Fields:      fields,
		Timestamp:   ev.DetectedAt,
	}
}

// Idle renders an idle event.
func (r Renderer) Idle(ev models.IdleEvent) Message {
	lastClaim := "never"
	if !ev.LastClaimAt.IsZero() {
		lastClaim = ev.LastClaimAt.UTC().Format("2006-01-02 15:04:05 UTC")
	}
	return Message{
		Title:       "😴 No Claims Detected",
		Description: fmt.Sprintf("No fee claims for %s", FormatDuration(ev.SilentFor)),
		Color:       ColorIdle,
		Fields: []Field{
			{Name: "Quiet Since", Value: lastClaim, Inline: true},
			{Name: "Tracked Creators", Value: humanize.Comma(int64(ev.TrackedEntries)), Inline: true},
		},
		Timestamp: ev.DetectedAt,
	}
}

// Error renders a monitoring failure.
func (r Renderer) Error(cycleErr error, at time.Time) Message {
	return Message{
		Title:       "⚠️ Monitoring Error",
		Description: cycleErr.Error(),
		Color:       ColorError,
		Timestamp:   at,
	}
}

// Recovery renders a recovery after consecutive failures.
func (r Renderer) Recovery(failures int, at time.Time) Message {
	return Message{
		Title:       "✅ Monitoring Recovered",
		Description: fmt.Sprintf("Recovered after %d consecutive failure(s)", failures),
		Color:       ColorRecovery,
		Timestamp:   at,
	}
}

// FormatSOL renders an amount with at most 6 decimals.
func FormatSOL(d decimal.Decimal) string {
	return d.Round(6).String() + " SOL"
}

// FormatUSD renders a dollar amount with thousands separators.
func FormatUSD(v float64) string {
	return "$" + humanize.CommafWithDigits(v, 2)
}

// FormatDuration renders a duration rounded to the minute.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}

func formatBps(bps int) string {
	pct := decimal.NewFromInt(int64(bps)).Shift(-2)
	return pct.String() + "%"
}
