package fourmeme

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/ggonzalez94/token-intel/internal/errors"
	"github.com/ggonzalez94/token-intel/internal/httpx"
	"github.com/ggonzalez94/token-intel/internal/id"
	"github.com/ggonzalez94/token-intel/internal/intel"
	"github.com/ggonzalez94/token-intel/internal/model"
	"github.com/ggonzalez94/token-intel/internal/providers"
)

const testToken = "0x2222222222222222222222222222222222222222"

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func newTestClient(t *testing.T, answer func(req gqlRequest) string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var req gqlRequest
		require.NoError(t, json.Unmarshal(body, &req))
		_, _ = w.Write([]byte(answer(req)))
	}))
	t.Cleanup(srv.Close)
	c := New(httpx.New(2*time.Second, 0), "test-key")
	c.baseURL = srv.URL
	c.now = func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) }
	return c
}

func bscToken(t *testing.T) id.TokenAddress {
	t.Helper()
	token, err := id.Parse("bsc", testToken)
	require.NoError(t, err)
	return token
}

func TestProgressFormula(t *testing.T) {
	assert.Equal(t, 0.0, Progress(decimal.NewFromInt(1_000_000_000)))
	assert.Equal(t, 100.0, Progress(decimal.NewFromInt(200_000_000)))
	assert.Equal(t, 50.0, Progress(decimal.NewFromInt(600_000_000)))
	assert.Equal(t, 100.0, Progress(decimal.NewFromInt(1)))
	assert.Equal(t, 0.0, Progress(decimal.NewFromInt(5_000_000_000)))
}

func TestBondingProgressCombinesQueries(t *testing.T) {
	c := newTestClient(t, func(req gqlRequest) string {
		switch {
		case strings.Contains(req.Query, "LiquidityAdded"):
			assert.Equal(t, "0x5c952063c7fc8610ffdb798152d69f0b9550762b", req.Variables["proxyAddress"])
			// 600M tokens remain on the curve.
			return `{"data":{"EVM":{"Events":[{"Block":{"Time":"2025-01-01T12:00:00Z"},
				"Arguments":[{"Name":"token1","Value":{}},{"Name":"amount1","Value":{"bigInteger":"600000000000000000000000000"}}]}]}}}`
		case strings.Contains(req.Query, "DEXTradeByTokens"):
			assert.Equal(t, "2025-01-01T00:00:00Z", req.Variables["time_24hr_ago"])
			return `{"data":{"EVM":{"DEXTradeByTokens":[{"Trade":{"Currency":{"Name":"Meme","Symbol":"MEME"}},
				"volume_24hr":"1234.5","volume_1hr":"10","volume_5min":"1","trades_24hr":"42","trades_1hr":"3","trades_5min":"1"}]}}}`
		default:
			return `{"data":{"EVM":{"Transfers":[{"Currency":{"Name":"Meme Token","Symbol":"MEME","Decimals":18},"Block":{"Time":"2024-12-31T00:00:00Z"}}]}}}`
		}
	})

	rec, err := c.BondingProgress(context.Background(), bscToken(t))
	require.NoError(t, err)
	require.NotNil(t, rec.Progress)
	assert.Equal(t, 50.0, *rec.Progress)
	assert.False(t, rec.Completed)
	assert.Equal(t, "Meme", rec.Name)
	require.NotNil(t, rec.Volume.H24)
	assert.Equal(t, 1234.5, *rec.Volume.H24)
	require.NotNil(t, rec.Trades24h)
	assert.Equal(t, int64(42), *rec.Trades24h)
	require.NotNil(t, rec.CreatedAt)
	assert.Equal(t, 2024, rec.CreatedAt.Year())
	assert.Nil(t, rec.Liquidity)
	require.NotNil(t, rec.LiquidityHint)
	assert.Equal(t, 600_000_000.0, *rec.LiquidityHint)
}

func TestBondingProgressDrainedCurveTripsOverride(t *testing.T) {
	c := newTestClient(t, func(req gqlRequest) string {
		if strings.Contains(req.Query, "LiquidityAdded") {
			// 40k tokens left: the formula clamps to 100.
			return `{"data":{"EVM":{"Events":[{"Block":{"Time":"2025-01-01T12:00:00Z"},
				"Arguments":[{"Name":"amount1","Value":{"bigInteger":"40000000000000000000000"}}]}]}}}`
		}
		return `{"data":{"EVM":{"DEXTradeByTokens":[],"Transfers":[]}}}`
	})

	rec, err := c.BondingProgress(context.Background(), bscToken(t))
	require.NoError(t, err)
	require.NotNil(t, rec.Progress)
	assert.Equal(t, 100.0, *rec.Progress)
	require.NotNil(t, rec.LiquidityHint)
	assert.Equal(t, 40_000.0, *rec.LiquidityHint)

	got := intel.Classify(intel.BondingProbe{Record: rec})
	assert.True(t, got.OverrideApplied)
	assert.Equal(t, model.StatePrelaunchBonding, got.State)
	assert.True(t, got.BondingPrimary)
}

func TestBondingProgressPartialQueriesAreAbsorbed(t *testing.T) {
	c := newTestClient(t, func(req gqlRequest) string {
		if strings.Contains(req.Query, "Transfers") {
			return `{"data":{"EVM":{"Transfers":[{"Currency":{"Name":"Only Info","Symbol":"OI"},"Block":{"Time":"2024-12-31T00:00:00Z"}}]}}}`
		}
		return `{"errors":[{"message":"quota exceeded"}]}`
	})
	rec, err := c.BondingProgress(context.Background(), bscToken(t))
	require.NoError(t, err)
	assert.Equal(t, "Only Info", rec.Name)
	assert.Nil(t, rec.Progress)
}

func TestBondingProgressNoDataIsNotAvailable(t *testing.T) {
	c := newTestClient(t, func(req gqlRequest) string {
		return `{"data":{"EVM":{"Events":[],"DEXTradeByTokens":[],"Transfers":[]}}}`
	})
	_, err := c.BondingProgress(context.Background(), bscToken(t))
	assert.True(t, providers.IsNotAvailable(err))
}

func TestBondingProgressAllErrorsIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(req gqlRequest) string {
		return `{"errors":[{"message":"boom"}]}`
	})
	_, err := c.BondingProgress(context.Background(), bscToken(t))
	assert.Equal(t, clierr.CodeUnavailable, clierr.CodeOf(err))
}

func TestBondingProgressRequiresKey(t *testing.T) {
	c := New(httpx.New(time.Second, 0), "")
	assert.False(t, c.Info().Configured)
	_, err := c.BondingProgress(context.Background(), bscToken(t))
	assert.Equal(t, clierr.CodeAuth, clierr.CodeOf(err))
}
