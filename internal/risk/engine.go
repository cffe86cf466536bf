// Package risk derives safety, rug-risk, bundler and distribution figures
// from a canonical record and its holder analysis. Everything here is a
// pure function of its inputs.
package risk

import (
	"math"

	"github.com/ggonzalez94/token-intel/internal/holders"
	"github.com/ggonzalez94/token-intel/internal/model"
)

const (
	baseSafetyScore = 50
	Unknown         = "Unknown"
)

type tier struct {
	above  float64
	points int
}

var (
	liquidityTiers = []tier{{100_000, 15}, {50_000, 12}, {10_000, 8}, {5_000, 4}}
	volumeTiers    = []tier{{500_000, 15}, {100_000, 12}, {10_000, 8}, {1_000, 4}}
	holderTiers    = []tier{{10_000, 20}, {5_000, 18}, {2_000, 15}, {1_000, 12}, {500, 8}, {200, 5}, {100, 3}}
	top10RugTiers  = []tier{{80, 40}, {60, 30}, {40, 20}, {25, 10}, {15, 5}}
)

func points(v *float64, tiers []tier) int {
	if v == nil {
		return 0
	}
	for _, t := range tiers {
		if *v > t.above {
			return t.points
		}
	}
	return 0
}

type Engine struct{}

func NewEngine() Engine {
	return Engine{}
}

// Assess scores a token. Holder-derived figures stay nil or Unknown when
// the holder analysis is missing, errored or counted zero holders.
func (Engine) Assess(rec model.CanonicalTokenRecord, h *model.HolderAnalysis) model.RiskAssessment {
	out := model.RiskAssessment{
		SafetyScore:  SafetyScore(rec, h),
		Distribution: Unknown,
		RiskLevel:    Unknown,
	}
	if !h.Usable() {
		return out
	}
	rug := RugRisk(h)
	bundlers := Bundlers(h)
	out.RugRiskPct = &rug
	out.BundlersPct = &bundlers
	out.Distribution = Distribution(h)
	out.RiskLevel = Level(rug)
	return out
}

func SafetyScore(rec model.CanonicalTokenRecord, h *model.HolderAnalysis) int {
	score := baseSafetyScore
	score += points(rec.Liquidity, liquidityTiers)
	score += points(rec.Volume.H24, volumeTiers)
	if rec.Social.Any() {
		score += 8
	}
	if rec.AgeMinutes != nil {
		switch {
		case *rec.AgeMinutes > 2880:
			score += 12
		case *rec.AgeMinutes > 1440:
			score += 8
		}
	}

	if h.Usable() {
		total := float64(h.Total)
		score += points(&total, holderTiers)
		if h.ConcentrationKnown() {
			switch top10 := h.Top10Pct; {
			case top10 < 10:
				score += 20
			case top10 < 20:
				score += 15
			case top10 < 30:
				score += 10
			case top10 < 50:
				score += 5
			case top10 > 80:
				score -= 25
			case top10 > 60:
				score -= 15
			}
		}
	}

	if rec.Ecosystem != "" {
		if rec.BondingProgress != nil && *rec.BondingProgress > 50 {
			score += 5
		}
		if rec.Migrated() {
			score += 10
		}
	}
	return clamp(score)
}

// RugRisk is the 0..100 concentration score.
func RugRisk(h *model.HolderAnalysis) int {
	if !h.Usable() {
		return 0
	}
	score := 0
	switch ratio := float64(h.DevWallets) / float64(h.Total); {
	case ratio > 0.1:
		score += 25
	case ratio > 0.05:
		score += 15
	case ratio > 0.02:
		score += 10
	}
	if h.ConcentrationKnown() {
		top10 := h.Top10Pct
		score += points(&top10, top10RugTiers)
	}
	switch {
	case h.Total < 50:
		score += 25
	case h.Total < 200:
		score += 15
	case h.Total < 500:
		score += 10
	case h.Total < 1000:
		score += 5
	}
	if len(h.TopHolders) > 0 && !h.TopHolders[0].IsEstimated {
		switch top := h.TopHolders[0].Percentage; {
		case top > 50:
			score += 10
		case top > 25:
			score += 5
		}
	}
	return clamp(score)
}

// Bundlers estimates the bundled-supply percentage from the dev-wallet
// ratio. Each bracket is capped before the large-holder bump.
func Bundlers(h *model.HolderAnalysis) int {
	if !h.Usable() {
		return 0
	}
	ratio := float64(h.DevWallets) / float64(h.Total) * 100
	var estimate float64
	switch {
	case ratio > 15:
		estimate = math.Min(60, ratio*2.5)
	case ratio > 10:
		estimate = math.Min(40, ratio*2)
	case ratio > 5:
		estimate = math.Min(25, ratio*1.5)
	default:
		estimate = math.Max(0, ratio)
	}
	if holders.CountAbove(h.TopHolders, 1) > 10 {
		estimate += 5
	}
	return int(math.Round(math.Min(100, estimate)))
}

func Distribution(h *model.HolderAnalysis) string {
	if !h.Usable() {
		return Unknown
	}
	total := h.Total
	top10 := h.Top10Pct
	if !h.ConcentrationKnown() {
		top10 = 0
	}
	switch {
	case total < 50:
		return "Very Concentrated"
	case total < 200 || top10 > 70:
		return "Concentrated"
	case total < 500 || top10 > 50:
		return "Moderately Concentrated"
	case total < 1500 || top10 > 30:
		return "Moderate"
	case total < 5000 || top10 > 20:
		return "Fairly Distributed"
	case top10 > 10:
		return "Well Distributed"
	default:
		return "Highly Distributed"
	}
}

// Level labels a rug-risk score.
func Level(score int) string {
	switch {
	case score >= 80:
		return "Very High"
	case score >= 60:
		return "High"
	case score >= 40:
		return "Medium"
	case score >= 20:
		return "Low"
	default:
		return "Very Low"
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
