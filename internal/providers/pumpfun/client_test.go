package pumpfun

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/token-intel/internal/httpx"
	"github.com/ggonzalez94/token-intel/internal/id"
	"github.com/ggonzalez94/token-intel/internal/providers"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(httpx.New(2*time.Second, 0))
	c.baseURL = srv.URL
	return c
}

func solToken(t *testing.T) id.TokenAddress {
	t.Helper()
	token, err := id.Parse("solana", testMint)
	require.NoError(t, err)
	return token
}

func TestBondingProgressInFlight(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/"+testMint, r.URL.Path)
		_, _ = w.Write([]byte(`{
			"mint":"` + testMint + `","name":"Pumpy","symbol":"PMP","progress":42.5,"complete":false,"raydium_pool":null,
			"market_cap":30,"usd_market_cap":4500,"virtual_sol_reserves":32000000000,
			"created_timestamp":1700000000000,"twitter":"https://x.com/pumpy"
		}`))
	})
	rec, err := c.BondingProgress(context.Background(), solToken(t))
	require.NoError(t, err)
	assert.False(t, rec.Completed)
	require.NotNil(t, rec.Progress)
	assert.Equal(t, 42.5, *rec.Progress)
	require.NotNil(t, rec.MarketCap)
	assert.Equal(t, 4500.0, *rec.MarketCap)
	require.NotNil(t, rec.LiquidityHint)
	// 32 SOL at 150 USD/SOL.
	assert.InDelta(t, 4800.0, *rec.LiquidityHint, 1e-6)
	require.NotNil(t, rec.CreatedAt)
	assert.Equal(t, int64(1700000000000), rec.CreatedAt.UnixMilli())
	assert.Equal(t, "https://x.com/pumpy", rec.Social.X)
}

func TestBondingProgressGraduatedWithoutProgressField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"mint":"` + testMint + `","name":"Grad","symbol":"GRD","raydium_pool":"pool123","usd_market_cap":900000}`))
	})
	rec, err := c.BondingProgress(context.Background(), solToken(t))
	require.NoError(t, err)
	assert.True(t, rec.Completed)
	require.NotNil(t, rec.Progress)
	assert.Equal(t, 100.0, *rec.Progress)
	assert.Nil(t, rec.LiquidityHint)
}

func TestBondingProgressNotAvailable(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"404": func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
		"empty body": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
		"null": func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`null`)) },
		"no mint": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"name":"x"}`))
		},
	}
	for name, handler := range cases {
		c := newTestClient(t, handler)
		_, err := c.BondingProgress(context.Background(), solToken(t))
		assert.True(t, providers.IsNotAvailable(err), name)
	}
}

func TestBondingProgressSkipsEVM(t *testing.T) {
	c := New(httpx.New(time.Second, 0))
	token, err := id.Parse("bsc", "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	_, err = c.BondingProgress(context.Background(), token)
	assert.True(t, providers.IsNotAvailable(err))
}
