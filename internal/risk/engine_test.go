package risk

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/token-intel/internal/model"
)

func holdersOf(total int64, top10 float64, dev int, pcts ...float64) *model.HolderAnalysis {
	h := &model.HolderAnalysis{Source: "test", Total: total, Top10Pct: top10, DevWallets: dev, DataQuality: model.QualityHigh}
	for _, p := range pcts {
		h.TopHolders = append(h.TopHolders, model.Holder{Percentage: p})
	}
	return h
}

func TestScenarioClampsToHundred(t *testing.T) {
	age := int64(4000)
	rec := model.CanonicalTokenRecord{
		Liquidity:  model.FloatPtr(250_000),
		Volume:     model.Windows{H24: model.FloatPtr(600_000)},
		AgeMinutes: &age,
		Social:     model.SocialLinks{X: "https://x.com/token"},
	}
	got := NewEngine().Assess(rec, holdersOf(12_000, 8, 0))
	assert.Equal(t, 100, got.SafetyScore)
	require.NotNil(t, got.RugRiskPct)
	assert.Equal(t, 0, *got.RugRiskPct)
	assert.Equal(t, "Highly Distributed", got.Distribution)
	assert.Equal(t, "Very Low", got.RiskLevel)
}

func TestSafetyScoreWithoutHolders(t *testing.T) {
	rec := model.CanonicalTokenRecord{Liquidity: model.FloatPtr(60_000), Volume: model.Windows{H24: model.FloatPtr(2_000)}}
	for _, h := range []*model.HolderAnalysis{
		nil,
		{DataQuality: model.QualityError, Total: 500},
		{DataQuality: model.QualityHigh, Total: 0},
	} {
		got := NewEngine().Assess(rec, h)
		assert.Equal(t, 50+12+4, got.SafetyScore)
		assert.Nil(t, got.RugRiskPct)
		assert.Nil(t, got.BundlersPct)
		assert.Equal(t, Unknown, got.Distribution)
		assert.Equal(t, Unknown, got.RiskLevel)
	}
}

func TestSafetyScoreHolderTiers(t *testing.T) {
	tests := []struct {
		total int64
		want  int
	}{
		{10_001, 20}, {5_001, 18}, {2_001, 15}, {1_001, 12}, {501, 8}, {201, 5}, {101, 3}, {100, 0},
	}
	for _, tc := range tests {
		// top10 of 55 adds nothing
		got := SafetyScore(model.CanonicalTokenRecord{}, holdersOf(tc.total, 55, 0))
		assert.Equal(t, 50+tc.want, got, "total %d", tc.total)
	}
}

func TestSafetyScoreConcentrationPenalty(t *testing.T) {
	assert.Equal(t, 50+3-25, SafetyScore(model.CanonicalTokenRecord{}, holdersOf(150, 85, 0)))
	assert.Equal(t, 50+3-15, SafetyScore(model.CanonicalTokenRecord{}, holdersOf(150, 65, 0)))
}

func TestSafetyScoreSkipsEstimatedConcentration(t *testing.T) {
	h := holdersOf(150, 0, 0)
	h.TopHolders = []model.Holder{{Address: "a", IsEstimated: true}}
	assert.Equal(t, 50+3, SafetyScore(model.CanonicalTokenRecord{}, h))
}

func TestLifecycleBonus(t *testing.T) {
	bonding := model.CanonicalTokenRecord{Ecosystem: "pumpfun", State: model.StatePrelaunchBonding, BondingProgress: model.FloatPtr(60)}
	assert.Equal(t, 55, SafetyScore(bonding, nil))

	migrated := model.CanonicalTokenRecord{Ecosystem: "pumpfun", State: model.StateGraduatedOrRegular, Completed: true, BondingProgress: model.FloatPtr(100)}
	assert.Equal(t, 65, SafetyScore(migrated, nil))

	regular := model.CanonicalTokenRecord{State: model.StateGraduatedOrRegular, BondingProgress: model.FloatPtr(100)}
	assert.Equal(t, 50, SafetyScore(regular, nil))
}

func TestRugRisk(t *testing.T) {
	// dev ratio 0.2 (+25), top10 90 (+40), 40 holders (+25), top holder 60 (+10)
	assert.Equal(t, 100, RugRisk(holdersOf(40, 90, 8, 60)))
	// dev ratio 0.03 (+10), top10 30 (+10), 600 holders (+5), top holder 30 (+5)
	assert.Equal(t, 30, RugRisk(holdersOf(600, 30, 18, 30)))
	assert.Equal(t, 0, RugRisk(holdersOf(5000, 10, 0, 2)))
}

func TestBundlers(t *testing.T) {
	assert.Equal(t, 50, Bundlers(holdersOf(100, 0, 20)))
	assert.Equal(t, 60, Bundlers(holdersOf(100, 0, 40)))
	assert.Equal(t, 24, Bundlers(holdersOf(100, 0, 12)))
	assert.Equal(t, 40, Bundlers(holdersOf(100, 0, 16)))
	assert.Equal(t, 12, Bundlers(holdersOf(100, 0, 8)))
	assert.Equal(t, 3, Bundlers(holdersOf(100, 0, 3)))

	many := holdersOf(100, 0, 40, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2)
	assert.Equal(t, 65, Bundlers(many))
}

func TestDistribution(t *testing.T) {
	tests := []struct {
		total int64
		top10 float64
		want  string
	}{
		{49, 5, "Very Concentrated"},
		{150, 5, "Concentrated"},
		{10_000, 75, "Concentrated"},
		{400, 5, "Moderately Concentrated"},
		{10_000, 55, "Moderately Concentrated"},
		{1_000, 5, "Moderate"},
		{3_000, 5, "Fairly Distributed"},
		{10_000, 25, "Fairly Distributed"},
		{10_000, 15, "Well Distributed"},
		{10_000, 5, "Highly Distributed"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Distribution(holdersOf(tc.total, tc.top10, 0)), "total=%d top10=%v", tc.total, tc.top10)
	}
}

func TestLevel(t *testing.T) {
	assert.Equal(t, "Very High", Level(80))
	assert.Equal(t, "High", Level(60))
	assert.Equal(t, "Medium", Level(40))
	assert.Equal(t, "Low", Level(20))
	assert.Equal(t, "Very Low", Level(19))
}

func TestScoresStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		age := rng.Int63n(10_000)
		rec := model.CanonicalTokenRecord{
			Liquidity:       model.FloatPtr(rng.Float64() * 1e6),
			Volume:          model.Windows{H24: model.FloatPtr(rng.Float64() * 1e6)},
			AgeMinutes:      &age,
			Ecosystem:       "pumpfun",
			BondingProgress: model.FloatPtr(rng.Float64() * 100),
		}
		total := rng.Int63n(20_000) + 1
		h := holdersOf(total, rng.Float64()*100, rng.Intn(int(total)+1), rng.Float64()*100)
		got := NewEngine().Assess(rec, h)
		assert.GreaterOrEqual(t, got.SafetyScore, 0)
		assert.LessOrEqual(t, got.SafetyScore, 100)
		require.NotNil(t, got.RugRiskPct)
		assert.GreaterOrEqual(t, *got.RugRiskPct, 0)
		assert.LessOrEqual(t, *got.RugRiskPct, 100)
		assert.LessOrEqual(t, *got.BundlersPct, 100)
	}
}
