package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/token-intel/internal/cache"
	clierr "github.com/ggonzalez94/token-intel/internal/errors"
	"github.com/ggonzalez94/token-intel/internal/model"
	"github.com/ggonzalez94/token-intel/internal/report"
	"github.com/ggonzalez94/token-intel/internal/risk"
)

const (
	bscToken    = "0x1111111111111111111111111111111111111111"
	solanaToken = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

type stubAnalyzer struct {
	calls     atomic.Int32
	lastChain string
	analysis  model.Analysis
	err       error
	panics    bool
}

func (s *stubAnalyzer) Analyze(_ context.Context, chain, address string) (model.Analysis, error) {
	s.calls.Add(1)
	s.lastChain = chain
	if s.panics {
		panic("boom")
	}
	if s.err != nil {
		return model.Analysis{}, s.err
	}
	a := s.analysis
	a.Contract = address
	return a, nil
}

func liveAnalysis() model.Analysis {
	return model.Analysis{
		Chain: "BNB",
		Record: model.CanonicalTokenRecord{
			Name:      "Pepe Coin",
			Symbol:    "PEPE",
			State:     model.StateGraduatedOrRegular,
			PriceUSD:  model.FloatPtr(0.01),
			MarketCap: model.FloatPtr(1_000_000),
			Liquidity: model.FloatPtr(120_000),
			Primary:   "dexscreener",
			Available: []string{"dexscreener"},
		},
		Holders: &model.HolderAnalysis{Source: "moralis", Total: 1500, TopHolders: []model.Holder{}, DataQuality: model.QualityHigh},
	}
}

func newTestServer(t *testing.T, analyzer Analyzer, backend cache.Backend, cfg Config) http.Handler {
	t.Helper()
	f := report.New(risk.NewEngine())
	f.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return New(analyzer, f, backend, cfg).Handler()
}

func postJSON(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, analyzePath, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAnalyzeInvalidAddressMakesNoCalls(t *testing.T) {
	stub := &stubAnalyzer{analysis: liveAnalysis()}
	h := newTestServer(t, stub, nil, Config{})

	rec := postJSON(t, h, `{"tokenAddress":"0x111111111111111111111111111111111111111","chain":"bsc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "invalid")
	assert.Equal(t, "0x111111111111111111111111111111111111111", body["contract"])
	assert.Equal(t, "BNB", body["chain"])
	assert.Zero(t, stub.calls.Load())
}

func TestAnalyzeSuccess(t *testing.T) {
	stub := &stubAnalyzer{analysis: liveAnalysis()}
	h := newTestServer(t, stub, nil, Config{})

	rec := postJSON(t, h, `{"tokenAddress":"`+bscToken+`","chain":"bsc"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "Pepe Coin", data["tokenName"])
	assert.Equal(t, "regular", data["tokenType"])
	assert.Equal(t, false, data["honeypot"])
	assert.Contains(t, data, "safetyScore")
	assert.Equal(t, "bsc", stub.lastChain)
}

func TestAnalyzeDefaultsToSolana(t *testing.T) {
	stub := &stubAnalyzer{analysis: liveAnalysis()}
	h := newTestServer(t, stub, nil, Config{})

	rec := postJSON(t, h, `{"tokenAddress":"`+solanaToken+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "solana", stub.lastChain)
}

func TestAnalyzeQueryRoute(t *testing.T) {
	stub := &stubAnalyzer{analysis: liveAnalysis()}
	h := newTestServer(t, stub, nil, Config{})

	req := httptest.NewRequest(http.MethodGet, analyzePath+"?address="+bscToken+"&chain=bsc", nil)
	req.Header.Set(requestIDHeader, "caller-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "caller-id", rec.Header().Get(requestIDHeader))
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	stub := &stubAnalyzer{analysis: liveAnalysis()}
	h := newTestServer(t, stub, nil, Config{})

	missing := postJSON(t, h, `{"chain":"bsc"}`)
	assert.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Equal(t, "tokenAddress is required", decode(t, missing)["error"])

	badChain := postJSON(t, h, `{"tokenAddress":"`+bscToken+`","chain":"tron"}`)
	assert.Equal(t, http.StatusBadRequest, badChain.Code)
	badChainBody := decode(t, badChain)
	assert.Equal(t, "unsupported chain: tron", badChainBody["error"])
	assert.Equal(t, bscToken, badChainBody["contract"])
	assert.Equal(t, "tron", badChainBody["chain"])

	garbage := postJSON(t, h, `{`)
	assert.Equal(t, http.StatusBadRequest, garbage.Code)
	assert.Zero(t, stub.calls.Load())
}

func TestAnalyzeNotFoundIsOK(t *testing.T) {
	stub := &stubAnalyzer{analysis: model.Analysis{Chain: "BNB", NotFound: true}}
	h := newTestServer(t, stub, nil, Config{})

	rec := postJSON(t, h, `{"tokenAddress":"`+bscToken+`","chain":"bsc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, model.NotFoundMessage, data["error"])
	assert.Equal(t, model.UnknownTokenName, data["tokenName"])
	assert.NotContains(t, data, "marketCap")
}

func TestAnalyzeInternalErrorHidesDetail(t *testing.T) {
	stub := &stubAnalyzer{err: clierr.New(clierr.CodeInternal, "secret detail")}
	h := newTestServer(t, stub, nil, Config{})

	rec := postJSON(t, h, `{"tokenAddress":"`+bscToken+`","chain":"bsc"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "internal error", body["error"])
	assert.Equal(t, bscToken, body["contract"])
	assert.Equal(t, "BNB", body["chain"])
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestAnalyzeFailureDefaultsChainToSolana(t *testing.T) {
	h := newTestServer(t, &stubAnalyzer{}, nil, Config{})

	rec := postJSON(t, h, `{"tokenAddress":"not-a-mint"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "not-a-mint", body["contract"])
	assert.Equal(t, "Solana", body["chain"])
}

func TestAnalyzePanicRecovered(t *testing.T) {
	h := newTestServer(t, &stubAnalyzer{panics: true}, nil, Config{})

	rec := postJSON(t, h, `{"tokenAddress":"`+bscToken+`","chain":"bsc"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode(t, rec)["error"])
}

func TestAnalyzeChainCheck(t *testing.T) {
	stub := &stubAnalyzer{analysis: liveAnalysis()}
	cfg := Config{ChainCheck: func(chain string) error {
		return clierr.New(clierr.CodeUsage, "missing key")
	}}
	h := newTestServer(t, stub, nil, cfg)

	rec := postJSON(t, h, `{"tokenAddress":"`+bscToken+`","chain":"bsc"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, bscToken, body["contract"])
	assert.Equal(t, "BNB", body["chain"])
	assert.Zero(t, stub.calls.Load())
}

func TestAnalyzeUsesCache(t *testing.T) {
	tmp := t.TempDir()
	store, err := cache.Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	stub := &stubAnalyzer{analysis: liveAnalysis()}
	h := newTestServer(t, stub, store, Config{CacheTTL: time.Minute, MaxStale: time.Minute})

	first := postJSON(t, h, `{"tokenAddress":"`+bscToken+`","chain":"bsc"}`)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "miss", first.Header().Get("X-Cache"))

	second := postJSON(t, h, `{"tokenAddress":"`+bscToken+`","chain":"bsc"}`)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "hit", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.EqualValues(t, 1, stub.calls.Load())
}

func TestAnalyzeServesStaleOnTransientFailure(t *testing.T) {
	tmp := t.TempDir()
	store, err := cache.Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	stub := &stubAnalyzer{analysis: liveAnalysis()}
	h := newTestServer(t, stub, store, Config{CacheTTL: 50 * time.Millisecond, MaxStale: time.Minute})

	first := postJSON(t, h, `{"tokenAddress":"`+bscToken+`","chain":"bsc"}`)
	require.Equal(t, http.StatusOK, first.Code)
	time.Sleep(120 * time.Millisecond)

	stub.err = clierr.New(clierr.CodeUnavailable, "upstream down")
	second := postJSON(t, h, `{"tokenAddress":"`+bscToken+`","chain":"bsc"}`)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "stale", second.Header().Get("X-Cache"))
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &stubAnalyzer{}, nil, Config{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}
