// Package holders holds the provider-agnostic holder math shared by every
// holder adapter: balance scaling, percent-of-supply, combined concentration
// and the estimators used when a provider cannot count holders.
package holders

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/token-intel/internal/model"
)

// MaxTopHolders bounds the holder list carried in an analysis.
const MaxTopHolders = 20

var hundred = decimal.NewFromInt(100)

// ParseAmount parses a raw integer or decimal amount. Empty or malformed
// input yields false.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

// Scale converts a raw base-unit amount into whole tokens, two decimals.
func Scale(raw decimal.Decimal, decimals int) string {
	return raw.Shift(-int32(decimals)).StringFixed(2)
}

// Percent returns amount/supply*100 rounded to two decimals. A non-positive
// supply yields 0.
func Percent(amount, supply decimal.Decimal) float64 {
	if !supply.IsPositive() {
		return 0
	}
	pct, _ := amount.Mul(hundred).Div(supply).Round(2).Float64()
	return pct
}

// Combined sums the percentages of the first n holders whose balances are
// real, rounded to two decimals.
func Combined(list []model.Holder, n int) float64 {
	sum := 0.0
	count := 0
	for _, h := range list {
		if count >= n {
			break
		}
		if h.IsEstimated {
			continue
		}
		sum += h.Percentage
		count++
	}
	return math.Round(sum*100) / 100
}

// CountAbove counts real holders whose share exceeds pct.
func CountAbove(list []model.Holder, pct float64) int {
	n := 0
	for _, h := range list {
		if !h.IsEstimated && h.Percentage > pct {
			n++
		}
	}
	return n
}

// EstimateFromTopShare infers a holder count from the largest holder's share.
// It is a weak estimator kept for parity with existing reports: small top
// shares imply implausibly large populations.
func EstimateFromTopShare(topPct float64) int64 {
	if topPct <= 0 || math.IsNaN(topPct) || math.IsInf(topPct, 0) {
		return 0
	}
	base := math.Floor(100 / topPct)
	switch {
	case topPct > 50:
		return int64(base * 10)
	case topPct > 20:
		return int64(base * 50)
	default:
		return int64(base * 100)
	}
}

// Finalize computes the combined concentration figures and trims the
// holder list. When every balance is estimated the percentages stay 0 and
// the analysis is flagged as estimated.
func Finalize(a *model.HolderAnalysis) {
	if a == nil {
		return
	}
	known := 0
	for _, h := range a.TopHolders {
		if !h.IsEstimated {
			known++
		}
	}
	if len(a.TopHolders) > 0 && known == 0 {
		a.IsEstimated = true
	}
	a.Top3Pct = Combined(a.TopHolders, 3)
	a.Top10Pct = Combined(a.TopHolders, 10)
	a.Top20Pct = Combined(a.TopHolders, 20)
	if len(a.TopHolders) > MaxTopHolders {
		a.TopHolders = a.TopHolders[:MaxTopHolders]
	}
}

// Degraded builds an analysis that carries no holder data.
func Degraded(source string, quality model.DataQuality, note string) *model.HolderAnalysis {
	return &model.HolderAnalysis{
		Source:      source,
		TopHolders:  []model.Holder{},
		DataQuality: quality,
		Note:        note,
	}
}
