// Package tracker detects increases of creators' cumulative claimed fees
// between poll cycles.
package tracker

import (
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/claimwatch/internal/models"
	"github.com/shopspring/decimal"
)

// Key identifies one creator of one token.
type Key struct {
	Mint   string
	Wallet string
}

// Filter decides which creators produce claim events. Creators that fail
// the filter are still tracked.
type Filter struct {
	// TokenMint restricts monitoring to one token. Empty means all tokens.
	TokenMint string
	// RequireRoyalty only reports creators with a nonzero royalty share.
	RequireRoyalty bool
	// FirstClaimOnly only reports claims by creators with no prior claim.
	FirstClaimOnly bool
	// MinClaim is the smallest delta, in SOL, that is reported.
	MinClaim decimal.Decimal
}

func (f Filter) matchesToken(mint string) bool {
	return f.TokenMint == "" || f.TokenMint == mint
}

func (f Filter) includes(c models.CreatorRecord) bool {
	return !f.RequireRoyalty || c.HasRoyalty()
}

// Anomaly records a cumulative claimed amount that went down.
type Anomaly struct {
	Key      Key
	Previous decimal.Decimal
	Current  decimal.Decimal
}

// Result is the outcome of one detection pass.
type Result struct {
	Events    []models.ClaimEvent
	Anomalies []Anomaly
	Seen      int
}

// Tracker holds the last observed claimed amount per (token, creator).
// It is not safe for concurrent use; the monitor loop owns it.
type Tracker struct {
	claimed map[Key]decimal.Decimal
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{claimed: make(map[Key]decimal.Decimal)}
}

// NewFromMap creates a tracker over an existing map, which it takes ownership of.
func NewFromMap(m map[Key]decimal.Decimal) *Tracker {
	if m == nil {
		m = make(map[Key]decimal.Decimal)
	}
	return &Tracker{claimed: m}
}

// Len returns the number of tracked entries.
func (t *Tracker) Len() int {
	return len(t.claimed)
}

// Get returns the last observed amount for key, zero when unseen.
func (t *Tracker) Get(key Key) decimal.Decimal {
	return t.claimed[key]
}

// Snapshot returns a copy of the tracked amounts.
func (t *Tracker) Snapshot() map[Key]decimal.Decimal {
	out := make(map[Key]decimal.Decimal, len(t.claimed))
	for k, v := range t.claimed {
		out[k] = v
	}
	return out
}

// Baseline records the current amounts without reporting anything.
func (t *Tracker) Baseline(tokens []models.TokenRecord, filter Filter) int {
	seen := 0
	for _, token := range tokens {
		if !filter.matchesToken(token.Mint) {
			continue
		}
		for _, c := range token.Creators {
			t.observe(Key{Mint: token.Mint, Wallet: c.Wallet}, c.TotalClaimed)
			seen++
		}
	}
	return seen
}

// Detect compares the current amounts against the tracked ones, reports
// increases that pass the filter, and records every current amount.
func (t *Tracker) Detect(tokens []models.TokenRecord, filter Filter, now time.Time) Result {
	var res Result

	for _, token := range tokens {
		if !filter.matchesToken(token.Mint) {
			continue
		}
		for _, c := range token.Creators {
			key := Key{Mint: token.Mint, Wallet: c.Wallet}
			prev := t.claimed[key]
			current := c.TotalClaimed
			delta := current.Sub(prev)
			res.Seen++

			if delta.IsNegative() {
				res.Anomalies = append(res.Anomalies, Anomaly{Key: key, Previous: prev, Current: current})
			} else if t.reportable(filter, c, prev, delta) {
				res.Events = append(res.Events, models.ClaimEvent{
					ID:         uuid.NewString(),
					Token:      token,
					Creator:    c,
					Previous:   prev,
					Current:    current,
					Delta:      delta,
					DetectedAt: now,
				})
			}

			t.observe(key, current)
		}
	}

	return res
}

func (t *Tracker) reportable(filter Filter, c models.CreatorRecord, prev, delta decimal.Decimal) bool {
	if !delta.IsPositive() {
		return false
	}
	if !filter.includes(c) {
		return false
	}
	if delta.LessThan(filter.MinClaim) {
		return false
	}
	if filter.FirstClaimOnly && !prev.IsZero() {
		return false
	}
	return true
}

// observe stores amount for key. Absent and zero are equivalent, so an
// unseen key with a zero amount is not stored.
func (t *Tracker) observe(key Key, amount decimal.Decimal) {
	if _, exists := t.claimed[key]; !exists && amount.IsZero() {
		return
	}
	t.claimed[key] = amount
}
