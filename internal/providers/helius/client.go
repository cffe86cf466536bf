package helius

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
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
	Name      = "helius"
	KeyEnvVar = "TOKENINTEL_HELIUS_API_KEY"
)

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
}

func New(httpClient *httpx.Client, apiKey string) *Client {
	return &Client{http: httpClient, baseURL: registry.HeliusRPCURL, apiKey: strings.TrimSpace(apiKey)}
}

func (c *Client) WithBaseURL(base string) *Client {
	if strings.TrimSpace(base) != "" {
		c.baseURL = strings.TrimSuffix(base, "/")
	}
	return c
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          Name,
		Type:          "holders",
		Chains:        []string{"solana"},
		Configured:    c.apiKey != "",
		RequiresKey:   true,
		Capabilities:  []string{"token.holders", "token.supply"},
		KeyEnvVarName: KeyEnvVar,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type supplyResponse struct {
	Result *struct {
		Value *struct {
			Amount   string `json:"amount"`
			Decimals int    `json:"decimals"`
		} `json:"value"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

type largestResponse struct {
	Result *struct {
		Value []struct {
			Address  string `json:"address"`
			Amount   string `json:"amount"`
			Decimals int    `json:"decimals"`
		} `json:"value"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

func (c *Client) rpcURL() string {
	return c.baseURL + "/?api-key=" + url.QueryEscape(c.apiKey)
}

func (c *Client) call(ctx context.Context, id, method string, params []any, out any) error {
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	return httpx.PostJSON(ctx, c.http, c.rpcURL(), req, nil, out)
}

func mapRPCError(method string, e *rpcError) error {
	if e == nil {
		return nil
	}
	// -32602 is an invalid param, which for a mint means it does not exist.
	if e.Code == -32602 {
		return providers.ErrNotAvailable
	}
	return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("helius %s error %d: %s", method, e.Code, e.Message))
}

func (c *Client) TokenSupply(ctx context.Context, token id.TokenAddress) (providers.Supply, error) {
	if c.apiKey == "" {
		return providers.Supply{}, clierr.New(clierr.CodeAuth, fmt.Sprintf("%s requires %s", Name, KeyEnvVar))
	}
	if !token.Chain.IsSolana() {
		return providers.Supply{}, providers.ErrNotAvailable
	}
	ctx, cancel := c.http.CallContext(ctx)
	defer cancel()
	return c.supply(ctx, token.Address)
}

func (c *Client) supply(ctx context.Context, mint string) (providers.Supply, error) {
	var resp supplyResponse
	if err := c.call(ctx, "get-supply", "getTokenSupply", []any{mint}, &resp); err != nil {
		return providers.Supply{}, err
	}
	if err := mapRPCError("getTokenSupply", resp.Error); err != nil {
		return providers.Supply{}, err
	}
	if resp.Result == nil || resp.Result.Value == nil || resp.Result.Value.Amount == "" {
		return providers.Supply{}, providers.ErrNotAvailable
	}
	return providers.Supply{Amount: resp.Result.Value.Amount, Decimals: resp.Result.Value.Decimals}, nil
}

type account struct {
	Address string
	Amount  string
}

func (c *Client) largest(ctx context.Context, mint string) ([]account, error) {
	var resp largestResponse
	params := []any{mint, map[string]string{"commitment": "finalized"}}
	if err := c.call(ctx, "get-largest-accounts", "getTokenLargestAccounts", params, &resp); err != nil {
		return nil, err
	}
	if err := mapRPCError("getTokenLargestAccounts", resp.Error); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, nil
	}
	out := make([]account, 0, len(resp.Result.Value))
	for _, v := range resp.Result.Value {
		out = append(out, account{Address: v.Address, Amount: v.Amount})
	}
	return out, nil
}

// Holders runs supply and largest-account lookups concurrently. Supply and
// account failures degrade the analysis instead of failing the call.
func (c *Client) Holders(ctx context.Context, token id.TokenAddress) (*model.HolderAnalysis, error) {
	if c.apiKey == "" {
		return nil, clierr.New(clierr.CodeAuth, fmt.Sprintf("%s requires %s", Name, KeyEnvVar))
	}
	if !token.Chain.IsSolana() {
		return nil, providers.ErrNotAvailable
	}
	ctx, cancel := c.http.CallContext(ctx)
	defer cancel()

	var (
		supply   providers.Supply
		accounts []account
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := c.supply(gctx, token.Address)
		if err != nil {
			return err
		}
		supply = s
		return nil
	})
	g.Go(func() error {
		a, err := c.largest(gctx, token.Address)
		if err != nil {
			return err
		}
		accounts = a
		return nil
	})
	if err := g.Wait(); err != nil {
		if providers.IsNotAvailable(err) {
			return holders.Degraded(Name, model.QualityLimited, "Insufficient holder data from Helius"), nil
		}
		log.Debug().Str("provider", Name).Str("token", token.Address).Err(err).Msg("holder lookup failed")
		return holders.Degraded(Name, model.QualityError, err.Error()), nil
	}
	if len(accounts) == 0 {
		return holders.Degraded(Name, model.QualityLimited, "Insufficient holder data from Helius"), nil
	}
	return analyze(supply, accounts), nil
}

func analyze(supply providers.Supply, accounts []account) *model.HolderAnalysis {
	total, ok := holders.ParseAmount(supply.Amount)
	if !ok || !total.IsPositive() {
		return holders.Degraded(Name, model.QualityLimited, "Insufficient holder data from Helius")
	}
	list := make([]model.Holder, 0, len(accounts))
	for _, a := range accounts {
		amount, ok := holders.ParseAmount(a.Amount)
		if !ok {
			continue
		}
		list = append(list, model.Holder{
			Address:    a.Address,
			Balance:    holders.Scale(amount, supply.Decimals),
			Percentage: holders.Percent(amount, total),
		})
	}
	out := &model.HolderAnalysis{
		Source:      Name,
		TopHolders:  list,
		DevWallets:  holders.CountAbove(list, 1) / 2,
		DataQuality: model.QualityHigh,
		IsEstimated: true,
	}
	if len(list) > 0 {
		out.Total = holders.EstimateFromTopShare(list[0].Percentage)
	}
	holders.Finalize(out)
	return out
}
