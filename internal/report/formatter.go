// Package report shapes an analysis into the external token response.
package report

import (
	"math"
	"time"

	"github.com/ggonzalez94/token-intel/internal/holders"
	"github.com/ggonzalez94/token-intel/internal/model"
)

// Scorer produces the risk figures for a success response.
type Scorer interface {
	Assess(rec model.CanonicalTokenRecord, h *model.HolderAnalysis) model.RiskAssessment
}

type Formatter struct {
	Scorer Scorer
	Now    func() time.Time
}

func New(scorer Scorer) Formatter {
	return Formatter{Scorer: scorer, Now: time.Now}
}

func (f Formatter) analyzedAt() string {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// Format picks exactly one response variant. A pre-bond record returns
// identity only and is never scored.
func (f Formatter) Format(a model.Analysis) model.Response {
	if a.NotFound {
		return model.Response{NotFound: &model.NotFoundReport{
			Error:     model.NotFoundMessage,
			TokenName: model.UnknownTokenName,
			Symbol:    model.UnknownTokenSymbol,
			Contract:  a.Contract,
			Chain:     a.Chain,
		}}
	}
	rec := a.Record
	if IsPrebond(rec) {
		return model.Response{Prebond: &model.PrebondReport{
			IsPrebond:     true,
			PrebondReason: model.PrebondReason,
			TokenName:     model.FirstString(rec.Name, model.UnknownTokenName),
			Symbol:        model.FirstString(rec.Symbol, model.UnknownTokenSymbol),
			Contract:      a.Contract,
			Chain:         a.Chain,
			AnalyzedAt:    f.analyzedAt(),
		}}
	}

	risk := f.Scorer.Assess(rec, a.Holders)
	report := &model.TokenReport{
		TokenName:            rec.Name,
		Symbol:               rec.Symbol,
		Contract:             a.Contract,
		Chain:                a.Chain,
		TokenType:            TokenType(rec),
		MigrationStatus:      MigrationStatus(rec),
		BondingCurveProgress: rec.BondingProgress,
		MarketCap:            rec.MarketCap,
		Liquidity:            rec.Liquidity,
		Volume24h:            rec.Volume.H24,
		Price:                rec.PriceUSD,
		PriceChange24h:       rec.PriceChange.H24,
		PriceChange6h:        rec.PriceChange.H6,
		PriceChange1h:        rec.PriceChange.H1,
		Trades24h:            rec.Trades24h,
		Txns24h:              rec.Txns24h,
		Buyers24h:            rec.Buyers24h,
		Sellers24h:           rec.Sellers24h,
		VolLiqRatio:          volLiqRatio(rec),
		TokenAgeMinutes:      rec.AgeMinutes,
		Social:               rec.Social,
		Holders:              holderReport(a.Holders, risk),
		SafetyScore:          risk.SafetyScore,
		BundlersPct:          risk.BundlersPct,
		Honeypot:             false,
		RugRiskPct:           risk.RugRiskPct,
		DataSources:          dataSources(rec),
		AnalyzedAt:           f.analyzedAt(),
	}
	return model.Response{Success: report}
}

// IsPrebond reports a record with no liquidity, no market cap and either no
// price or no activity.
func IsPrebond(rec model.CanonicalTokenRecord) bool {
	return zeroish(rec.Liquidity) && zeroish(rec.MarketCap) &&
		(zeroish(rec.PriceUSD) || rec.Txns24h == nil || *rec.Txns24h == 0)
}

func zeroish(v *float64) bool {
	return v == nil || *v == 0
}

func TokenType(rec model.CanonicalTokenRecord) string {
	switch rec.State {
	case model.StatePrelaunchBonding:
		return model.TokenTypePrelaunchBonding
	case model.StateGraduatedOrRegular:
		if rec.Ecosystem != "" {
			return model.TokenTypeGraduated
		}
		return model.TokenTypeRegular
	default:
		return model.TokenTypeUnknown
	}
}

func MigrationStatus(rec model.CanonicalTokenRecord) string {
	switch {
	case rec.Ecosystem == "":
		return model.MigrationNA
	case rec.Migrated():
		return model.MigrationCompleted
	default:
		return model.MigrationPre
	}
}

func volLiqRatio(rec model.CanonicalTokenRecord) *int64 {
	if rec.Volume.H24 == nil || rec.Liquidity == nil || *rec.Liquidity <= 0 {
		return nil
	}
	ratio := int64(math.Round(*rec.Volume.H24 / *rec.Liquidity * 100))
	return &ratio
}

func holderReport(h *model.HolderAnalysis, risk model.RiskAssessment) model.HolderReport {
	out := model.HolderReport{
		TopHolders:   []model.Holder{},
		Distribution: risk.Distribution,
		RiskLevel:    risk.RiskLevel,
		DataQuality:  model.QualityError,
	}
	if h == nil {
		return out
	}
	out.DataQuality = h.DataQuality
	out.IsEstimated = h.IsEstimated
	out.DataSource = h.Source
	if !h.Usable() {
		return out
	}
	total, top3, top10, dev := h.Total, h.Top3Pct, h.Top10Pct, h.DevWallets
	out.Total = &total
	out.Top3Pct = &top3
	out.Top10Pct = &top10
	out.DevWalletCount = &dev
	list := h.TopHolders
	if len(list) > holders.MaxTopHolders {
		list = list[:holders.MaxTopHolders]
	}
	out.TopHolders = append(out.TopHolders, list...)
	return out
}

func dataSources(rec model.CanonicalTokenRecord) model.DataSources {
	out := model.DataSources{Primary: rec.Primary, Available: []string{}}
	if rec.Secondary != "" {
		secondary := rec.Secondary
		out.Secondary = &secondary
	}
	out.Available = append(out.Available, rec.Available...)
	return out
}
