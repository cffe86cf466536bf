// Package etherscan reads holder data from the Etherscan v2 multichain API.
//
// Holder lists are fetched through a tiered chain: topholders, then
// tokenholderlist, then a transfer scan. A tier advances only on a
// definitive "status 0" answer. Network, 5xx and 429 failures end the chain.
package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	clierr "github.com/ggonzalez94/token-intel/internal/errors"
	"github.com/ggonzalez94/token-intel/internal/holders"
	"github.com/ggonzalez94/token-intel/internal/httpx"
	"github.com/ggonzalez94/token-intel/internal/id"
	"github.com/ggonzalez94/token-intel/internal/model"
	"github.com/ggonzalez94/token-intel/internal/providers"
	"github.com/ggonzalez94/token-intel/internal/registry"
)

const (
	Name      = "etherscan"
	KeyEnvVar = "TOKENINTEL_ETHERSCAN_API_KEY"

	listOffset    = 50
	transferLimit = 100
	// Estimated holders from the transfer scan are capped.
	maxTransferHolders = 10
)

// errDefinitive marks an explorer "status 0" answer.
var errDefinitive = clierr.New(clierr.CodeUnsupported, "explorer endpoint unsupported for this key")

type Client struct {
	http     *httpx.Client
	baseURL  string
	apiKey   string
	fallback providers.SupplyProvider
}

func New(httpClient *httpx.Client, apiKey string) *Client {
	return &Client{http: httpClient, baseURL: registry.EtherscanV2BaseURL, apiKey: strings.TrimSpace(apiKey)}
}

func (c *Client) WithBaseURL(base string) *Client {
	if strings.TrimSpace(base) != "" {
		c.baseURL = strings.TrimSuffix(base, "/")
	}
	return c
}

// WithSupplyFallback sets the source consulted when tokensupply fails.
func (c *Client) WithSupplyFallback(p providers.SupplyProvider) *Client {
	c.fallback = p
	return c
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          Name,
		Type:          "holders",
		Chains:        []string{"bsc"},
		Configured:    c.apiKey != "",
		RequiresKey:   true,
		Capabilities:  []string{"token.holders", "token.supply"},
		KeyEnvVarName: KeyEnvVar,
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type holderRow struct {
	TokenHolderAddress  string `json:"TokenHolderAddress"`
	Address             string `json:"address"`
	TokenHolderQuantity string `json:"TokenHolderQuantity"`
	Balance             string `json:"balance"`
	Value               string `json:"value"`
}

type transferRow struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (c *Client) call(ctx context.Context, token id.TokenAddress, module, action string, extra url.Values) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("chainid", strconv.FormatInt(token.Chain.EVMChainID, 10))
	q.Set("module", module)
	q.Set("action", action)
	q.Set("contractaddress", token.Address)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("apikey", c.apiKey)

	var env envelope
	if err := httpx.GetJSON(ctx, c.http, c.baseURL+"?"+q.Encode(), nil, &env); err != nil {
		return nil, err
	}
	if env.Status != "1" {
		text := resultText(env.Result)
		if strings.Contains(strings.ToLower(text), "rate limit") {
			return nil, clierr.New(clierr.CodeRateLimited, fmt.Sprintf("%s rate limited %s", Name, action))
		}
		log.Debug().Str("provider", Name).Str("action", action).Str("message", env.Message).Str("result", text).Msg("explorer status 0")
		return nil, errDefinitive
	}
	return env.Result, nil
}

func resultText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func (c *Client) holderCount(ctx context.Context, token id.TokenAddress) (*int64, error) {
	raw, err := c.call(ctx, token, "token", "tokenholdercount", nil)
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(resultText(raw)), 10, 64)
	if err != nil {
		return nil, errDefinitive
	}
	return &n, nil
}

func (c *Client) holderList(ctx context.Context, token id.TokenAddress) ([]model.Holder, error) {
	tiers := []struct {
		action string
		extra  url.Values
	}{
		{"topholders", url.Values{"offset": {strconv.Itoa(listOffset)}}},
		{"tokenholderlist", url.Values{"page": {"1"}, "offset": {strconv.Itoa(listOffset)}}},
	}
	for _, tier := range tiers {
		raw, err := c.call(ctx, token, "token", tier.action, tier.extra)
		if err != nil {
			if providers.AdvancesFallback(err) {
				continue
			}
			return nil, err
		}
		var rows []holderRow
		if err := json.Unmarshal(raw, &rows); err != nil {
			continue
		}
		out := make([]model.Holder, 0, len(rows))
		for _, row := range rows {
			out = append(out, model.Holder{
				Address: model.FirstString(row.TokenHolderAddress, row.Address),
				Balance: model.FirstString(row.TokenHolderQuantity, row.Balance, row.Value),
			})
		}
		return out, nil
	}
	return c.holdersFromTransfers(ctx, token)
}

func (c *Client) holdersFromTransfers(ctx context.Context, token id.TokenAddress) ([]model.Holder, error) {
	raw, err := c.call(ctx, token, "account", "tokentx", url.Values{
		"page":   {"1"},
		"offset": {strconv.Itoa(transferLimit)},
		"sort":   {"desc"},
	})
	if err != nil {
		if providers.AdvancesFallback(err) {
			return nil, nil
		}
		return nil, err
	}
	var rows []transferRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, nil
	}
	seen := map[string]bool{}
	out := []model.Holder{}
	add := func(addr string) {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" || registry.IsBurnAddress(addr) || seen[addr] || len(out) >= maxTransferHolders {
			return
		}
		seen[addr] = true
		out = append(out, model.Holder{Address: addr, Balance: "0", IsEstimated: true})
	}
	for _, tx := range rows {
		add(tx.To)
		add(tx.From)
	}
	return out, nil
}

// TokenSupply returns the raw total supply. Decimals are unknown to the
// explorer and reported as 0 unless the fallback answers.
func (c *Client) TokenSupply(ctx context.Context, token id.TokenAddress) (providers.Supply, error) {
	if !token.Chain.IsEVM() {
		return providers.Supply{}, providers.ErrNotAvailable
	}
	raw, err := c.call(ctx, token, "stats", "tokensupply", nil)
	if err == nil {
		if amount, ok := holders.ParseAmount(resultText(raw)); ok {
			return providers.Supply{Amount: amount.String()}, nil
		}
		err = errDefinitive
	}
	if c.fallback != nil {
		log.Debug().Str("provider", Name).Str("token", token.Address).Err(err).Msg("tokensupply failed, using fallback")
		return c.fallback.TokenSupply(ctx, token)
	}
	return providers.Supply{}, err
}

func (c *Client) Holders(ctx context.Context, token id.TokenAddress) (*model.HolderAnalysis, error) {
	if c.apiKey == "" {
		return nil, clierr.New(clierr.CodeAuth, fmt.Sprintf("%s requires %s", Name, KeyEnvVar))
	}
	if !token.Chain.IsEVM() {
		return nil, providers.ErrNotAvailable
	}
	ctx, cancel := c.http.CallContext(ctx)
	defer cancel()

	var (
		count   *int64
		list    []model.Holder
		supply  *decimal.Decimal
		listErr error
		g       errgroup.Group
	)
	g.Go(func() error {
		// A missing count is expected on free keys.
		count, _ = c.holderCount(ctx, token)
		return nil
	})
	g.Go(func() error {
		list, listErr = c.holderList(ctx, token)
		return nil
	})
	g.Go(func() error {
		s, err := c.TokenSupply(ctx, token)
		if err != nil {
			return nil
		}
		if amount, ok := holders.ParseAmount(s.Amount); ok && amount.IsPositive() {
			supply = &amount
		}
		return nil
	})
	_ = g.Wait()

	if listErr != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "explorer holder lookup failed", listErr)
	}
	return analyze(count, list, supply), nil
}

func analyze(count *int64, list []model.Holder, supply *decimal.Decimal) *model.HolderAnalysis {
	known := 0
	anyEstimated := false
	dev := 0
	for i := range list {
		h := &list[i]
		if h.IsEstimated {
			anyEstimated = true
			continue
		}
		balance, ok := holders.ParseAmount(h.Balance)
		if !ok || balance.IsZero() {
			// Zero balances carry no share.
			h.IsEstimated = true
			anyEstimated = true
			continue
		}
		if supply != nil {
			h.Percentage = holders.Percent(balance, *supply)
			if known < 5 || h.Percentage > 1 {
				dev++
			}
		}
		known++
	}

	total := int64(0)
	if count != nil {
		total = *count
	} else {
		total = int64(len(list)) * 10
	}

	quality := model.QualityLimited
	switch {
	case count != nil && known > 0:
		quality = model.QualityHigh
	case len(list) > 0:
		quality = model.QualityPartial
	}
	out := &model.HolderAnalysis{
		Source:      Name,
		Total:       total,
		IsEstimated: count == nil || anyEstimated,
		TopHolders:  list,
		DevWallets:  dev,
		DataQuality: quality,
	}
	if count == nil {
		out.Note = "Holder count requires an explorer Pro subscription"
	}
	if supply == nil {
		for i := range out.TopHolders {
			out.TopHolders[i].IsEstimated = true
		}
	}
	holders.Finalize(out)
	return out
}
