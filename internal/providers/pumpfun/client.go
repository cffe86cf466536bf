package pumpfun

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ggonzalez94/token-intel/internal/httpx"
	"github.com/ggonzalez94/token-intel/internal/id"
	"github.com/ggonzalez94/token-intel/internal/model"
	"github.com/ggonzalez94/token-intel/internal/providers"
	"github.com/ggonzalez94/token-intel/internal/providers/numutil"
	"github.com/ggonzalez94/token-intel/internal/registry"
)

const Name = "pumpfun"

const lamportsPerSOL = 1e9

type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client) *Client {
	return &Client{http: httpClient, baseURL: registry.PumpFunBaseURL}
}

func (c *Client) WithBaseURL(base string) *Client {
	if strings.TrimSpace(base) != "" {
		c.baseURL = strings.TrimSuffix(base, "/")
	}
	return c
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         Name,
		Type:         "bonding",
		Chains:       []string{"solana"},
		Configured:   true,
		RequiresKey:  false,
		Capabilities: []string{"token.bonding"},
	}
}

type coin struct {
	Mint               string  `json:"mint"`
	Name               string  `json:"name"`
	Symbol             string  `json:"symbol"`
	Progress           any     `json:"progress"`
	Complete           bool    `json:"complete"`
	RaydiumPool        *string `json:"raydium_pool"`
	MarketCap          any     `json:"market_cap"`
	USDMarketCap       any     `json:"usd_market_cap"`
	VirtualSOLReserves any     `json:"virtual_sol_reserves"`
	PricePerToken      any     `json:"price_per_token"`
	Volume24h          any     `json:"volume_24h"`
	TxnCount24h        any     `json:"txn_count_24h"`
	BuyerCount24h      any     `json:"buyer_count_24h"`
	SellerCount24h     any     `json:"seller_count_24h"`
	CreatedTimestamp   any     `json:"created_timestamp"`
	LastTradeTimestamp any     `json:"last_trade_timestamp"`
	Twitter            string  `json:"twitter"`
	Telegram           string  `json:"telegram"`
	Website            string  `json:"website"`
	ImageURI           string  `json:"image_uri"`
}

func (c *Client) BondingProgress(ctx context.Context, token id.TokenAddress) (*model.ProviderRecord, error) {
	if !token.Chain.IsSolana() {
		return nil, providers.ErrNotAvailable
	}
	ctx, cancel := c.http.CallContext(ctx)
	defer cancel()

	var raw json.RawMessage
	err := httpx.GetJSON(ctx, c.http, c.baseURL+"/coins/"+url.PathEscape(token.Address), nil, &raw)
	if errors.Is(err, httpx.ErrEmptyBody) || providers.IsNotAvailable(err) {
		log.Debug().Str("provider", Name).Str("token", token.Address).Msg("coin not found")
		return nil, providers.ErrNotAvailable
	}
	if err != nil {
		return nil, err
	}
	var data *coin
	if err := json.Unmarshal(raw, &data); err != nil || data == nil || strings.TrimSpace(data.Mint) == "" {
		return nil, providers.ErrNotAvailable
	}
	rec := normalize(*data)
	rec.Raw = raw
	return rec, nil
}

func normalize(data coin) *model.ProviderRecord {
	completed := data.RaydiumPool != nil || data.Complete
	progress := numutil.Float(data.Progress)
	if progress == nil && completed {
		progress = model.FloatPtr(100)
	}
	if progress != nil {
		progress = model.FloatPtr(numutil.Clamp(*progress, 0, 100))
	}

	usdCap := numutil.Positive(numutil.Float(data.USDMarketCap))
	solCap := numutil.Positive(numutil.Float(data.MarketCap))
	rec := &model.ProviderRecord{
		Source:     Name,
		Chain:      "solana",
		Name:       strings.TrimSpace(data.Name),
		Symbol:     strings.TrimSpace(data.Symbol),
		Address:    data.Mint,
		MarketCap:  model.FirstFloat(usdCap, numutil.Float(data.MarketCap)),
		PriceUSD:   numutil.Float(data.PricePerToken),
		Volume:     model.Windows{H24: numutil.Float(data.Volume24h)},
		Trades24h:  numutil.Int(data.TxnCount24h),
		Buyers24h:  numutil.Int(data.BuyerCount24h),
		Sellers24h: numutil.Int(data.SellerCount24h),
		Progress:   progress,
		Completed:  completed,
		Social: model.SocialLinks{
			X:        strings.TrimSpace(data.Twitter),
			Telegram: strings.TrimSpace(data.Telegram),
			Website:  strings.TrimSpace(data.Website),
		},
		ImageURL: data.ImageURI,
	}
	reserves := numutil.Positive(numutil.Float(data.VirtualSOLReserves))
	if reserves != nil && usdCap != nil && solCap != nil {
		solPrice := *usdCap / *solCap
		rec.LiquidityHint = model.FloatPtr(*reserves / lamportsPerSOL * solPrice)
	}
	rec.CreatedAt = millis(data.CreatedTimestamp)
	rec.LastEventTime = millis(data.LastTradeTimestamp)
	return rec
}

func millis(v any) *time.Time {
	ms := numutil.Int(v)
	if ms == nil || *ms <= 0 {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}
