package moralis

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
	"github.com/ggonzalez94/token-intel/internal/providers/numutil"
	"github.com/ggonzalez94/token-intel/internal/registry"
)

const (
	Name      = "moralis"
	KeyEnvVar = "TOKENINTEL_MORALIS_API_KEY"

	ownersLimit = 100
)

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
}

func New(httpClient *httpx.Client, apiKey string) *Client {
	return &Client{http: httpClient, baseURL: registry.MoralisBaseURL, apiKey: strings.TrimSpace(apiKey)}
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
		Chains:        []string{"bsc", "solana"},
		Configured:    c.apiKey != "",
		RequiresKey:   true,
		Capabilities:  []string{"token.holders"},
		KeyEnvVarName: KeyEnvVar,
	}
}

// ownerRow tolerates the EVM and Solana owner shapes.
type ownerRow struct {
	OwnerAddress       string `json:"owner_address"`
	Owner              string `json:"owner"`
	Address            string `json:"address"`
	PercentageOfSupply any    `json:"percentage_relative_to_total_supply"`
	Percentage         any    `json:"percentage"`
	Share              any    `json:"share"`
	BalanceFormatted   any    `json:"balance_formatted"`
	AmountFormatted    any    `json:"amount_formatted"`
	Balance            any    `json:"balance"`
	Amount             any    `json:"amount"`
	IsContract         bool   `json:"is_contract"`
	OwnerAddressLabel  string `json:"owner_address_label"`
}

type ownersResponse struct {
	Result []ownerRow `json:"result"`
}

type statsResponse struct {
	TotalHolders any    `json:"totalHolders"`
	Holders      any    `json:"holders"`
	HolderCount  any    `json:"holderCount"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
}

func (c *Client) headers() map[string]string {
	return map[string]string{"X-API-Key": c.apiKey}
}

func (c *Client) ownersURL(token id.TokenAddress) string {
	addr := url.PathEscape(token.Address)
	if token.Chain.IsSolana() {
		return fmt.Sprintf("%s/api/v2/token/%s/%s/owners?limit=%d", c.baseURL, token.Chain.MoralisID, addr, ownersLimit)
	}
	q := url.Values{}
	q.Set("chain", token.Chain.MoralisID)
	q.Set("order", "DESC")
	q.Set("limit", fmt.Sprint(ownersLimit))
	return fmt.Sprintf("%s/api/v2.2/erc20/%s/owners?%s", c.baseURL, addr, q.Encode())
}

func (c *Client) statsURL(token id.TokenAddress) string {
	addr := url.PathEscape(token.Address)
	if token.Chain.IsSolana() {
		return fmt.Sprintf("%s/api/v2/token/%s/%s/metadata", c.baseURL, token.Chain.MoralisID, addr)
	}
	return fmt.Sprintf("%s/api/v2.2/erc20/%s/holders?chain=%s", c.baseURL, addr, url.QueryEscape(token.Chain.MoralisID))
}

func (c *Client) Holders(ctx context.Context, token id.TokenAddress) (*model.HolderAnalysis, error) {
	if c.apiKey == "" {
		return nil, clierr.New(clierr.CodeAuth, fmt.Sprintf("%s requires %s", Name, KeyEnvVar))
	}
	ctx, cancel := c.http.CallContext(ctx)
	defer cancel()

	var (
		owners              *ownersResponse
		stats               *statsResponse
		ownersErr, statsErr error
	)
	// Both lookups settle independently.
	var g errgroup.Group
	g.Go(func() error {
		var resp ownersResponse
		if ownersErr = httpx.GetJSON(ctx, c.http, c.ownersURL(token), c.headers(), &resp); ownersErr == nil {
			owners = &resp
		}
		return nil
	})
	g.Go(func() error {
		var resp statsResponse
		if statsErr = httpx.GetJSON(ctx, c.http, c.statsURL(token), c.headers(), &resp); statsErr == nil {
			stats = &resp
		}
		return nil
	})
	_ = g.Wait()

	if owners == nil && stats == nil {
		log.Debug().Str("provider", Name).Str("token", token.Address).AnErr("owners", ownersErr).AnErr("stats", statsErr).Msg("no holder data")
		if providers.AdvancesFallback(ownersErr) && providers.AdvancesFallback(statsErr) {
			return nil, providers.ErrNotAvailable
		}
		return holders.Degraded(Name, model.QualityError, "No holder data available from Moralis"), nil
	}
	return analyze(token.Chain, owners, stats), nil
}

func analyze(chain id.Chain, owners *ownersResponse, stats *statsResponse) *model.HolderAnalysis {
	var rows []ownerRow
	if owners != nil {
		rows = owners.Result
	}
	list := make([]model.Holder, 0, len(rows))
	for _, row := range rows {
		list = append(list, normalizeRow(row))
	}

	var count int64
	if stats != nil {
		if n := numutil.Int(model.FirstFloat(numutil.Float(stats.TotalHolders), numutil.Float(stats.Holders), numutil.Float(stats.HolderCount))); n != nil {
			count = *n
		}
	}
	if count <= 0 {
		count = int64(len(rows))
	}

	large := holders.CountAbove(list, 1)
	dev := 0
	if chain.IsSolana() {
		dev = large * 4 / 10
	} else {
		contracts := 0
		for _, h := range list {
			if h.IsContract {
				contracts++
			}
		}
		dev = contracts + large*6/10
	}

	quality := model.QualityLimited
	switch {
	case count > 0 && len(list) > 0:
		quality = model.QualityHigh
	case count > 0:
		quality = model.QualityPartial
	}
	out := &model.HolderAnalysis{
		Source:      Name,
		Total:       count,
		TopHolders:  list,
		DevWallets:  dev,
		DataQuality: quality,
	}
	holders.Finalize(out)
	return out
}

func normalizeRow(row ownerRow) model.Holder {
	pct := numutil.First(row.PercentageOfSupply, row.Percentage, row.Share)
	h := model.Holder{
		Address:    numutil.FirstString(row.OwnerAddress, row.Owner, row.Address),
		Balance:    numutil.FirstString(row.BalanceFormatted, row.AmountFormatted, row.Balance, row.Amount),
		IsContract: row.IsContract || strings.Contains(strings.ToLower(row.OwnerAddressLabel), "contract"),
	}
	if pct != nil {
		h.Percentage = numutil.Round2(*pct)
	}
	return h
}
