// Package merger joins the fee and trading stats datasets into normalized
// token records.
package merger

import (
	"strings"

	"github.com/rewired-gh/claimwatch/internal/fetcher"
	"github.com/rewired-gh/claimwatch/internal/logger"
	"github.com/rewired-gh/claimwatch/internal/models"
	"github.com/shopspring/decimal"
)

// LamportsPerSOLExp is the decimal exponent of one SOL in lamports (10^9).
const LamportsPerSOLExp = 9

// LamportsToSOL converts an amount of lamports into SOL.
func LamportsToSOL(lamports decimal.Decimal) decimal.Decimal {
	return lamports.Shift(-LamportsPerSOLExp)
}

// Merge produces one TokenRecord per fee dataset entry, in fee dataset order.
// The fee dataset decides which tokens exist; stats only enrich them.
// Records that fail TokenRecord.Validate are dropped.
func Merge(fees []fetcher.FeeToken, stats []fetcher.StatsToken) []models.TokenRecord {
	byMint := make(map[string]fetcher.StatsToken, len(stats))
	for _, s := range stats {
		id := strings.TrimSpace(s.Identifier())
		if id == "" {
			continue
		}
		if _, exists := byMint[id]; !exists {
			byMint[id] = s
		}
	}

	records := make([]models.TokenRecord, 0, len(fees))
	for _, f := range fees {
		mint := strings.TrimSpace(f.Identifier())
		if mint == "" {
			continue
		}
		var stat *fetcher.StatsToken
		if s, ok := byMint[mint]; ok {
			stat = &s
		}
		rec := normalize(mint, f, stat)
		if err := rec.Validate(); err != nil {
			logger.Warn("Dropping token %s: %v", mint, err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

// normalize builds a fully defaulted record. All tolerance of missing
// upstream fields lives here.
func normalize(mint string, f fetcher.FeeToken, stat *fetcher.StatsToken) models.TokenRecord {
	rec := models.TokenRecord{
		Mint:         mint,
		Symbol:       firstNonEmpty(f.Symbol),
		Name:         firstNonEmpty(f.Name),
		LifetimeFees: nonNegative(LamportsToSOL(f.LifetimeFees)),
		Creators:     normalizeCreators(f.Creators),
	}

	if stat != nil {
		rec.Symbol = firstNonEmpty(f.Symbol, stat.Symbol)
		rec.Name = firstNonEmpty(f.Name, stat.Name)
		rec.PriceUSD = nonNegativeFloat(float64(stat.PriceUSD))
		rec.MarketCap = nonNegativeFloat(float64(stat.MarketCap))
		rec.Volume24h = nonNegativeFloat(float64(stat.Volume24h))
		rec.Liquidity = nonNegativeFloat(float64(stat.Liquidity))
	}

	return rec
}

// normalizeCreators drops entries without a wallet and collapses duplicate
// wallets, keeping the highest claimed amount.
func normalizeCreators(in []fetcher.FeeCreator) []models.CreatorRecord {
	out := make([]models.CreatorRecord, 0, len(in))
	index := make(map[string]int, len(in))

	for _, c := range in {
		wallet := strings.TrimSpace(c.Wallet)
		if wallet == "" {
			continue
		}
		rec := models.CreatorRecord{
			Wallet:       wallet,
			Username:     firstNonEmpty(c.Username, c.ProviderUsername),
			RoyaltyBps:   c.RoyaltyBps,
			IsCreator:    c.IsCreator,
			TotalClaimed: nonNegative(LamportsToSOL(c.TotalClaimed)),
		}
		if rec.RoyaltyBps < 0 {
			rec.RoyaltyBps = 0
		}

		if i, dup := index[wallet]; dup {
			if rec.TotalClaimed.GreaterThan(out[i].TotalClaimed) {
				out[i].TotalClaimed = rec.TotalClaimed
			}
			if rec.RoyaltyBps > out[i].RoyaltyBps {
				out[i].RoyaltyBps = rec.RoyaltyBps
			}
			continue
		}
		index[wallet] = len(out)
		out = append(out, rec)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return models.UnknownName
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func nonNegativeFloat(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}
