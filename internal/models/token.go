// Package models defines the core domain entities: tokens, creators, and claim alerts.
package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownName is the display fallback for tokens and creators without a name.
const UnknownName = "Unknown"

// TokenRecord is one token as seen in a single poll cycle, merged from the
// fee dataset and the trading stats dataset. Amounts are in SOL.
type TokenRecord struct {
	Mint         string          `json:"mint"`
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	PriceUSD     float64         `json:"price_usd"`
	MarketCap    float64         `json:"market_cap"`
	Volume24h    float64         `json:"volume_24h"`
	Liquidity    float64         `json:"liquidity"`
	LifetimeFees decimal.Decimal `json:"lifetime_fees"`
	Creators     []CreatorRecord `json:"creators"`
}

// CreatorRecord is a fee recipient of a token. TotalClaimed is cumulative
// and authoritative for the cycle it was fetched in.
type CreatorRecord struct {
	Wallet       string          `json:"wallet"`
	Username     string          `json:"username"`
	RoyaltyBps   int             `json:"royalty_bps"`
	IsCreator    bool            `json:"is_creator"`
	TotalClaimed decimal.Decimal `json:"total_claimed"`
}

// HasRoyalty reports whether the creator receives a share of trading fees.
func (c CreatorRecord) HasRoyalty() bool {
	return c.RoyaltyBps > 0
}

// DisplayName returns the username, or a shortened wallet when unnamed.
func (c CreatorRecord) DisplayName() string {
	if c.Username != "" && c.Username != UnknownName {
		return c.Username
	}
	return ShortAddress(c.Wallet)
}

// Label returns the symbol, falling back to the name and then the mint.
func (t TokenRecord) Label() string {
	switch {
	case t.Symbol != "" && t.Symbol != UnknownName:
		return t.Symbol
	case t.Name != "" && t.Name != UnknownName:
		return t.Name
	default:
		return ShortAddress(t.Mint)
	}
}

// Validate checks token field constraints.
func (t *TokenRecord) Validate() error {
	if t.Mint == "" {
		return errors.New("token mint must not be empty")
	}
	if t.LifetimeFees.IsNegative() {
		return errors.New("lifetime fees must not be negative")
	}
	for _, c := range t.Creators {
		if c.Wallet == "" {
			return errors.New("creator wallet must not be empty")
		}
		if c.TotalClaimed.IsNegative() {
			return errors.New("claimed amount must not be negative")
		}
	}
	return nil
}

// ShortAddress abbreviates a base58 address as "AbCd…WxYz".
func ShortAddress(addr string) string {
	r := []rune(addr)
	if len(r) <= 10 {
		return addr
	}
	return string(r[:4]) + "…" + string(r[len(r)-4:])
}

// ClaimEvent is a detected increase of a creator's cumulative claimed amount.
type ClaimEvent struct {
	ID         string
	Token      TokenRecord
	Creator    CreatorRecord
	Previous   decimal.Decimal
	Current    decimal.Decimal
	Delta      decimal.Decimal
	DetectedAt time.Time
	Notified   bool
}

// FirstClaim reports whether this is the creator's first observed claim.
func (e ClaimEvent) FirstClaim() bool {
	return e.Previous.IsZero()
}

// IdleEvent is emitted when no claim has been detected for a full idle window.
type IdleEvent struct {
	ID             string
	LastClaimAt    time.Time
	SilentFor      time.Duration
	TrackedEntries int
	DetectedAt     time.Time
}
