package holders

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/token-intel/internal/model"
)

func TestPercentAndScale(t *testing.T) {
	supply, ok := ParseAmount("1000000000000000")
	require.True(t, ok)
	amount, ok := ParseAmount("123456789000000")
	require.True(t, ok)
	assert.Equal(t, 12.35, Percent(amount, supply))
	assert.Equal(t, 0.0, Percent(amount, decimal.Zero))
	assert.Equal(t, "123456.79", Scale(amount, 9))

	_, ok = ParseAmount("n/a")
	assert.False(t, ok)
}

func TestEstimateFromTopShare(t *testing.T) {
	assert.Equal(t, int64(10), EstimateFromTopShare(60))
	assert.Equal(t, int64(200), EstimateFromTopShare(25))
	assert.Equal(t, int64(1000), EstimateFromTopShare(10))
	assert.Equal(t, int64(0), EstimateFromTopShare(0))
}

func TestFinalizeSkipsEstimatedBalances(t *testing.T) {
	a := &model.HolderAnalysis{TopHolders: []model.Holder{
		{Address: "a", Percentage: 40},
		{Address: "b", IsEstimated: true},
		{Address: "c", Percentage: 10},
		{Address: "d", Percentage: 5},
		{Address: "e", Percentage: 1},
	}}
	Finalize(a)
	assert.Equal(t, 55.0, a.Top3Pct)
	assert.Equal(t, 56.0, a.Top10Pct)
	assert.False(t, a.IsEstimated)
	assert.Equal(t, 3, CountAbove(a.TopHolders, 1))
}

func TestFinalizeAllEstimated(t *testing.T) {
	a := &model.HolderAnalysis{TopHolders: []model.Holder{
		{Address: "a", IsEstimated: true},
		{Address: "b", IsEstimated: true},
	}}
	Finalize(a)
	assert.True(t, a.IsEstimated)
	assert.Equal(t, 0.0, a.Top10Pct)
}

func TestFinalizeTrimsList(t *testing.T) {
	list := make([]model.Holder, 30)
	for i := range list {
		list[i] = model.Holder{Address: "x", Percentage: 1}
	}
	a := &model.HolderAnalysis{TopHolders: list}
	Finalize(a)
	assert.Len(t, a.TopHolders, MaxTopHolders)
	assert.Equal(t, 20.0, a.Top20Pct)
}
