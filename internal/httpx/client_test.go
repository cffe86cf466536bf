package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/token-intel/internal/errors"
)

func TestDoJSONRetriesServerError(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&count, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"x"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(2*time.Second, 1)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	var out map[string]any
	if _, err := client.DoJSON(context.Background(), req, &out); err != nil {
		t.Fatalf("DoJSON failed: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("unexpected response: %#v", out)
	}
}

func TestDoJSONMapsStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   clierr.Code
	}{
		{http.StatusNotFound, clierr.CodeNotFound},
		{http.StatusUnauthorized, clierr.CodeAuth},
		{http.StatusBadRequest, clierr.CodeUnsupported},
		{http.StatusTooManyRequests, clierr.CodeRateLimited},
		{http.StatusBadGateway, clierr.CodeUnavailable},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		var out map[string]any
		err := GetJSON(context.Background(), New(time.Second, 0), srv.URL, nil, &out)
		srv.Close()
		if got := clierr.CodeOf(err); got != tc.want {
			t.Fatalf("status %d: expected code %d, got %d (%v)", tc.status, tc.want, got, err)
		}
	}
}

func TestDoJSONTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	var out map[string]any
	err := GetJSON(context.Background(), New(50*time.Millisecond, 0), srv.URL, nil, &out)
	if clierr.CodeOf(err) != clierr.CodeUnavailable {
		t.Fatalf("expected unavailable on timeout, got %v", err)
	}
}

func TestRedactURLDropsQuery(t *testing.T) {
	u, _ := url.Parse("https://mainnet.helius-rpc.com/?api-key=secret")
	if got := RedactURL(u); got != "https://mainnet.helius-rpc.com/" {
		t.Fatalf("unexpected redacted url %q", got)
	}
}
