package dexscreener

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	clierr "github.com/ggonzalez94/token-intel/internal/errors"
	"github.com/ggonzalez94/token-intel/internal/httpx"
	"github.com/ggonzalez94/token-intel/internal/id"
	"github.com/ggonzalez94/token-intel/internal/model"
	"github.com/ggonzalez94/token-intel/internal/providers"
	"github.com/ggonzalez94/token-intel/internal/providers/numutil"
	"github.com/ggonzalez94/token-intel/internal/registry"
)

const Name = "dexscreener"

type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: registry.DexScreenerBaseURL}
}

// WithBaseURL points the client at another deployment of the same API.
func (c *Client) WithBaseURL(base string) *Client {
	if strings.TrimSpace(base) != "" {
		c.baseURL = strings.TrimSuffix(base, "/")
	}
	return c
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         Name,
		Type:         "market",
		Chains:       []string{"bsc", "solana"},
		Configured:   true,
		RequiresKey:  false,
		Capabilities: []string{"token.market", "token.search"},
	}
}

type pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD    any                  `json:"priceUsd"`
	Txns        map[string]txnCounts `json:"txns"`
	Volume      map[string]any       `json:"volume"`
	PriceChange map[string]any       `json:"priceChange"`
	Liquidity   *struct {
		USD any `json:"usd"`
	} `json:"liquidity"`
	FDV           any   `json:"fdv"`
	MarketCap     any   `json:"marketCap"`
	PairCreatedAt int64 `json:"pairCreatedAt"`
	Info          *struct {
		ImageURL string `json:"imageUrl"`
		Websites []struct {
			Label string `json:"label"`
			URL   string `json:"url"`
		} `json:"websites"`
		Socials []social `json:"socials"`
	} `json:"info"`
}

type txnCounts struct {
	Buys  any `json:"buys"`
	Sells any `json:"sells"`
}

// social arrives as either {platform, handle} or {type, url}.
type social struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
	Type     string `json:"type"`
	URL      string `json:"url"`
}

func (c *Client) TokenMarket(ctx context.Context, token id.TokenAddress) (*model.ProviderRecord, error) {
	ctx, cancel := c.http.CallContext(ctx)
	defer cancel()

	endpoint := c.baseURL + "/tokens/v1/" + token.Chain.DexScreenerID + "/" + url.PathEscape(token.Address)
	var raw json.RawMessage
	if err := httpx.GetJSON(ctx, c.http, endpoint, nil, &raw); err != nil {
		return nil, err
	}
	pairs, err := decodePairs(raw)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		log.Debug().Str("provider", Name).Str("token", token.Address).Str("chain", token.Chain.Slug).Msg("no pairs")
		return nil, providers.ErrNotAvailable
	}
	best := selectPair(pairs)
	rec := normalize(pairs[best])
	if pairRaw, err := json.Marshal(pairs[best]); err == nil {
		rec.Raw = pairRaw
	}
	log.Debug().Str("provider", Name).Str("token", token.Address).Str("chain", token.Chain.Slug).
		Int("pairs", len(pairs)).Str("pair", rec.PairAddress).Msg("selected pair")
	return rec, nil
}

func (c *Client) Search(ctx context.Context, query string) ([]model.ProviderRecord, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, clierr.New(clierr.CodeUsage, "search query is required")
	}
	ctx, cancel := c.http.CallContext(ctx)
	defer cancel()

	var resp struct {
		Pairs []pair `json:"pairs"`
	}
	endpoint := c.baseURL + "/latest/dex/search?q=" + url.QueryEscape(q)
	if err := httpx.GetJSON(ctx, c.http, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.ProviderRecord, 0, len(resp.Pairs))
	for _, p := range resp.Pairs {
		out = append(out, *normalize(p))
	}
	return out, nil
}

// decodePairs accepts the bare array of /tokens/v1 and the {"pairs": [...]}
// object of the older endpoints.
func decodePairs(raw json.RawMessage) ([]pair, error) {
	var pairs []pair
	if err := json.Unmarshal(raw, &pairs); err == nil {
		return pairs, nil
	}
	var wrapped struct {
		Pairs []pair `json:"pairs"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode dexscreener pairs", err)
	}
	return wrapped.Pairs, nil
}

// selectPair returns the index of the pair with the most USD liquidity. Ties
// and missing liquidity resolve to the earliest pair.
func selectPair(pairs []pair) int {
	best := 0
	var bestLiq *float64
	for i, p := range pairs {
		liq := liquidityUSD(p)
		if liq == nil {
			continue
		}
		if bestLiq == nil || *liq > *bestLiq {
			best = i
			bestLiq = liq
		}
	}
	return best
}

func liquidityUSD(p pair) *float64 {
	if p.Liquidity == nil {
		return nil
	}
	return numutil.Float(p.Liquidity.USD)
}

func normalize(p pair) *model.ProviderRecord {
	rec := &model.ProviderRecord{
		Source:      Name,
		Chain:       p.ChainID,
		Name:        strings.TrimSpace(p.BaseToken.Name),
		Symbol:      strings.TrimSpace(p.BaseToken.Symbol),
		Address:     p.BaseToken.Address,
		PriceUSD:    numutil.Float(p.PriceUSD),
		MarketCap:   numutil.Float(p.MarketCap),
		FDV:         numutil.Float(p.FDV),
		Liquidity:   liquidityUSD(p),
		PairAddress: p.PairAddress,
		DexID:       p.DexID,
		Volume:      windows(p.Volume),
		PriceChange: windows(p.PriceChange),
		Txns: model.TxnWindows{
			H24: counts(p.Txns["h24"]),
			H6:  counts(p.Txns["h6"]),
			H1:  counts(p.Txns["h1"]),
		},
	}
	if p.PairCreatedAt > 0 {
		created := time.UnixMilli(p.PairCreatedAt).UTC()
		rec.PairCreatedAt = &created
	}
	if p.Info != nil {
		rec.ImageURL = p.Info.ImageURL
		rec.Social = socialLinks(p.Info.Socials)
		for _, w := range p.Info.Websites {
			if strings.TrimSpace(w.URL) != "" {
				rec.Social.Website = strings.TrimSpace(w.URL)
				break
			}
		}
	}
	return rec
}

func windows(m map[string]any) model.Windows {
	if m == nil {
		return model.Windows{}
	}
	return model.Windows{
		H24: numutil.Float(m["h24"]),
		H6:  numutil.Float(m["h6"]),
		H1:  numutil.Float(m["h1"]),
		M5:  numutil.Float(m["m5"]),
	}
}

func counts(t txnCounts) model.TxnCount {
	return model.TxnCount{Buys: numutil.Int(t.Buys), Sells: numutil.Int(t.Sells)}
}

func socialLinks(items []social) model.SocialLinks {
	var out model.SocialLinks
	for _, s := range items {
		kind := strings.ToLower(strings.TrimSpace(firstNonEmpty(s.Platform, s.Type)))
		switch kind {
		case "twitter", "x":
			if out.X == "" {
				out.X = linkFor(s, "https://x.com/")
			}
		case "telegram", "tg":
			if out.Telegram == "" {
				out.Telegram = linkFor(s, "https://t.me/")
			}
		case "website", "web":
			if out.Website == "" {
				out.Website = linkFor(s, "")
			}
		}
	}
	return out
}

func linkFor(s social, prefix string) string {
	if u := strings.TrimSpace(s.URL); u != "" {
		return u
	}
	handle := strings.TrimPrefix(strings.TrimSpace(s.Handle), "@")
	if handle == "" {
		return ""
	}
	if strings.HasPrefix(handle, "http://") || strings.HasPrefix(handle, "https://") {
		return handle
	}
	return prefix + handle
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
