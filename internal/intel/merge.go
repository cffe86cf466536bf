package intel

import (
	"time"

	"github.com/ggonzalez94/token-intel/internal/model"
)

// Merge builds the canonical record. Every field the primary defines wins;
// the secondary fills only what the primary left empty.
func Merge(primary, secondary *model.ProviderRecord) model.CanonicalTokenRecord {
	p, s := orEmpty(primary), orEmpty(secondary)
	out := model.CanonicalTokenRecord{
		Name:      model.FirstString(p.Name, s.Name),
		Symbol:    model.FirstString(p.Symbol, s.Symbol),
		PriceUSD:  model.FirstFloat(p.PriceUSD, s.PriceUSD),
		MarketCap: model.FirstFloat(p.MarketCap, p.FDV, s.MarketCap),
		FDV:       model.FirstFloat(p.FDV, s.FDV),
		Liquidity: model.FirstFloat(p.ReportedLiquidity(), s.ReportedLiquidity()),
		Volume: model.Windows{
			H24: model.FirstFloat(p.Volume.H24, s.Volume.H24),
			H6:  model.FirstFloat(p.Volume.H6, s.Volume.H6),
			H1:  model.FirstFloat(p.Volume.H1, s.Volume.H1),
			M5:  model.FirstFloat(p.Volume.M5, s.Volume.M5),
		},
		PriceChange: model.Windows{
			H24: model.FirstFloat(p.PriceChange.H24, s.PriceChange.H24),
			H6:  model.FirstFloat(p.PriceChange.H6, s.PriceChange.H6),
			H1:  model.FirstFloat(p.PriceChange.H1, s.PriceChange.H1),
			M5:  model.FirstFloat(p.PriceChange.M5, s.PriceChange.M5),
		},
		Trades24h:   model.FirstInt(p.Trades24h, s.Trades24h),
		Txns24h:     model.FirstInt(p.Txns.H24.Total(), s.Txns.H24.Total()),
		Buyers24h:   model.FirstInt(p.Buyers24h, s.Buyers24h),
		Sellers24h:  model.FirstInt(p.Sellers24h, s.Sellers24h),
		PairCreated: model.FirstTime(p.PairCreatedAt, s.PairCreatedAt),
		CreatedAt:   earliest(p.CreatedAt, s.CreatedAt),
		Social:      p.Social.Or(s.Social),
		Primary:     p.Source,
		Secondary:   s.Source,
	}
	out.BondingProgress = model.FirstFloat(p.Progress, s.Progress)
	out.Completed = p.Completed || s.Completed
	for _, src := range []string{p.Source, s.Source} {
		if src != "" {
			out.Available = append(out.Available, src)
		}
	}
	return out
}

// AgeMinutes prefers pair creation, then the earliest creation event, and
// stays nil when neither is known.
func AgeMinutes(rec model.CanonicalTokenRecord, now time.Time) *int64 {
	origin := model.FirstTime(rec.PairCreated, rec.CreatedAt)
	if origin == nil {
		return nil
	}
	minutes := int64(now.Sub(*origin) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	return &minutes
}

func earliest(values ...*time.Time) *time.Time {
	var out *time.Time
	for _, v := range values {
		if v != nil && (out == nil || v.Before(*out)) {
			out = v
		}
	}
	return out
}

func orEmpty(r *model.ProviderRecord) *model.ProviderRecord {
	if r == nil {
		return &model.ProviderRecord{}
	}
	return r
}
