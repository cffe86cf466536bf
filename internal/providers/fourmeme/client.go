package fourmeme

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	clierr "github.com/ggonzalez94/token-intel/internal/errors"
	"github.com/ggonzalez94/token-intel/internal/httpx"
	"github.com/ggonzalez94/token-intel/internal/id"
	"github.com/ggonzalez94/token-intel/internal/model"
	"github.com/ggonzalez94/token-intel/internal/providers"
	"github.com/ggonzalez94/token-intel/internal/providers/numutil"
	"github.com/ggonzalez94/token-intel/internal/registry"
)

const (
	Name      = "fourmeme"
	KeyEnvVar = "TOKENINTEL_BITQUERY_API_KEY"
)

// Curve constants: 800M tokens are sold along the curve and 200M remain at
// graduation.
var (
	curveFloor    = decimal.NewFromInt(200_000_000)
	curveSpan     = decimal.NewFromInt(800_000_000)
	tokenDecimals = int32(18)
)

type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	now     func() time.Time
}

func New(httpClient *httpx.Client, apiKey string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: registry.BitqueryGraphQLURL,
		apiKey:  strings.TrimSpace(apiKey),
		now:     time.Now,
	}
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
		Type:          "bonding",
		Chains:        []string{"bsc"},
		Configured:    c.apiKey != "",
		RequiresKey:   true,
		Capabilities:  []string{"token.bonding"},
		KeyEnvVarName: KeyEnvVar,
		CapabilityAuth: []model.ProviderCapabilityAuth{
			{Capability: "token.bonding", KeyEnvVar: KeyEnvVar, Description: "Bitquery GraphQL access for four.meme curve events"},
		},
	}
}

type curveState struct {
	Balance       decimal.Decimal
	Progress      float64
	LastEventTime *time.Time
}

type tradeMetrics struct {
	Volume24h, Volume1h, Volume5m *float64
	Trades24h, Trades1h, Trades5m *int64
	Name, Symbol                  string
}

type tokenInfo struct {
	Name, Symbol string
	Decimals     *int64
	CreatedAt    *time.Time
}

func (c *Client) BondingProgress(ctx context.Context, token id.TokenAddress) (*model.ProviderRecord, error) {
	if !token.Chain.IsEVM() {
		return nil, providers.ErrNotAvailable
	}
	if c.apiKey == "" {
		return nil, clierr.New(clierr.CodeAuth, fmt.Sprintf("%s requires %s", Name, KeyEnvVar))
	}
	proxy, ok := registry.FourMemeProxy(token.Chain.EVMChainID)
	if !ok {
		return nil, providers.ErrNotAvailable
	}
	ctx, cancel := c.http.CallContext(ctx)
	defer cancel()

	address := strings.ToLower(token.Address)
	var (
		curve   *curveState
		metrics *tradeMetrics
		info    *tokenInfo
		mu      sync.Mutex
		errs    []error
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	// Each query's failure is absorbed; the record is built from whatever settled.
	var g errgroup.Group
	g.Go(func() error {
		v, err := c.curve(ctx, address, proxy)
		if err != nil {
			record(err)
			return nil
		}
		curve = v
		return nil
	})
	g.Go(func() error {
		v, err := c.tradeMetrics(ctx, address)
		if err != nil {
			record(err)
			return nil
		}
		metrics = v
		return nil
	})
	g.Go(func() error {
		v, err := c.tokenInfo(ctx, address)
		if err != nil {
			record(err)
			return nil
		}
		info = v
		return nil
	})
	_ = g.Wait()

	if curve == nil && metrics == nil && info == nil {
		if len(errs) == 3 {
			return nil, errs[0]
		}
		log.Debug().Str("provider", Name).Str("token", token.Address).Msg("no curve, trade or transfer data")
		return nil, providers.ErrNotAvailable
	}
	for _, err := range errs {
		log.Debug().Str("provider", Name).Str("token", token.Address).Err(err).Msg("sub-query failed")
	}
	return buildRecord(token.Address, curve, metrics, info), nil
}

func buildRecord(address string, curve *curveState, metrics *tradeMetrics, info *tokenInfo) *model.ProviderRecord {
	rec := &model.ProviderRecord{Source: Name, Chain: "bsc", Address: address}
	if metrics != nil {
		rec.Name, rec.Symbol = metrics.Name, metrics.Symbol
		rec.Volume = model.Windows{H24: metrics.Volume24h, H1: metrics.Volume1h, M5: metrics.Volume5m}
		rec.Trades24h = metrics.Trades24h
	}
	if info != nil {
		rec.Name = model.FirstString(rec.Name, info.Name)
		rec.Symbol = model.FirstString(rec.Symbol, info.Symbol)
		rec.CreatedAt = info.CreatedAt
	}
	if curve != nil {
		rec.Progress = model.FloatPtr(curve.Progress)
		rec.Completed = curve.Progress >= 100
		rec.LastEventTime = curve.LastEventTime
		// Remaining curve balance in whole tokens, reported as liquidity.
		hint, _ := curve.Balance.Float64()
		rec.LiquidityHint = model.FloatPtr(hint)
		raw, _ := json.Marshal(map[string]any{"curve_balance": curve.Balance.String()})
		rec.Raw = raw
	}
	return rec
}

// Progress converts the remaining curve balance (in whole tokens) to percent.
func Progress(balance decimal.Decimal) float64 {
	remaining := balance.Sub(curveFloor).Mul(decimal.NewFromInt(100)).Div(curveSpan)
	p, _ := decimal.NewFromInt(100).Sub(remaining).Float64()
	return numutil.Clamp(p, 0, 100)
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	var resp graphQLResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	payload := map[string]any{"query": query, "variables": variables}
	if err := httpx.PostJSON(ctx, c.http, c.baseURL, payload, headers, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return clierr.New(clierr.CodeUnavailable, "bitquery graphql error: "+resp.Errors[0].Message)
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "decode bitquery data", err)
	}
	return nil
}

const curveQuery = `query($token: String!, $proxyAddress: String!) {
  EVM(dataset: realtime, network: bsc) {
    Events(
      limit: {count: 1}
      orderBy: {descending: Block_Number}
      where: {
        LogHeader: {Address: {is: $proxyAddress}}
        Log: {Signature: {Name: {is: "LiquidityAdded"}}}
        Arguments: {includes: {Name: {is: "token1"}, Value: {Address: {is: $token}}}}
      }
    ) {
      Block { Time Number }
      Arguments {
        Name
        Value {
          ... on EVM_ABI_Integer_Value_Arg { integer }
          ... on EVM_ABI_BigInt_Value_Arg { bigInteger }
        }
      }
    }
  }
}`

func (c *Client) curve(ctx context.Context, address, proxy string) (*curveState, error) {
	var data struct {
		EVM struct {
			Events []struct {
				Block struct {
					Time string `json:"Time"`
				} `json:"Block"`
				Arguments []struct {
					Name  string `json:"Name"`
					Value struct {
						Integer    any    `json:"integer"`
						BigInteger string `json:"bigInteger"`
					} `json:"Value"`
				} `json:"Arguments"`
			} `json:"Events"`
		} `json:"EVM"`
	}
	if err := c.query(ctx, curveQuery, map[string]any{"token": address, "proxyAddress": proxy}, &data); err != nil {
		return nil, err
	}
	if len(data.EVM.Events) == 0 {
		return nil, nil
	}
	event := data.EVM.Events[0]
	raw := decimal.Zero
	for _, arg := range event.Arguments {
		if arg.Name != "amount1" && arg.Name != "tokenAmount" {
			continue
		}
		text := numutil.FirstString(arg.Value.BigInteger, arg.Value.Integer)
		if v, err := decimal.NewFromString(text); err == nil {
			raw = v
		}
	}
	balance := raw.Shift(-tokenDecimals)
	state := &curveState{Balance: balance, Progress: Progress(balance)}
	if t, err := time.Parse(time.RFC3339, event.Block.Time); err == nil {
		t = t.UTC()
		state.LastEventTime = &t
	}
	return state, nil
}

const tradeQuery = `query($currency: String!, $time_24hr_ago: DateTime!, $time_1hr_ago: DateTime!, $time_5min_ago: DateTime!) {
  EVM(network: bsc) {
    DEXTradeByTokens(
      where: {
        Trade: {Currency: {SmartContract: {is: $currency}}, Success: true}
        Block: {Time: {since: $time_24hr_ago}}
      }
    ) {
      Trade { Currency { Name Symbol SmartContract } }
      volume_24hr: sum(of: Trade_Side_AmountInUSD)
      volume_1hr: sum(of: Trade_Side_AmountInUSD, if: {Block: {Time: {since: $time_1hr_ago}}})
      volume_5min: sum(of: Trade_Side_AmountInUSD, if: {Block: {Time: {since: $time_5min_ago}}})
      trades_24hr: count
      trades_1hr: count(if: {Block: {Time: {since: $time_1hr_ago}}})
      trades_5min: count(if: {Block: {Time: {since: $time_5min_ago}}})
    }
  }
}`

func (c *Client) tradeMetrics(ctx context.Context, address string) (*tradeMetrics, error) {
	now := c.now().UTC()
	vars := map[string]any{
		"currency":      address,
		"time_24hr_ago": now.Add(-24 * time.Hour).Format(time.RFC3339),
		"time_1hr_ago":  now.Add(-time.Hour).Format(time.RFC3339),
		"time_5min_ago": now.Add(-5 * time.Minute).Format(time.RFC3339),
	}
	var data struct {
		EVM struct {
			DEXTradeByTokens []struct {
				Trade struct {
					Currency struct {
						Name   string `json:"Name"`
						Symbol string `json:"Symbol"`
					} `json:"Currency"`
				} `json:"Trade"`
				Volume24h any `json:"volume_24hr"`
				Volume1h  any `json:"volume_1hr"`
				Volume5m  any `json:"volume_5min"`
				Trades24h any `json:"trades_24hr"`
				Trades1h  any `json:"trades_1hr"`
				Trades5m  any `json:"trades_5min"`
			} `json:"DEXTradeByTokens"`
		} `json:"EVM"`
	}
	if err := c.query(ctx, tradeQuery, vars, &data); err != nil {
		return nil, err
	}
	if len(data.EVM.DEXTradeByTokens) == 0 {
		return nil, nil
	}
	row := data.EVM.DEXTradeByTokens[0]
	return &tradeMetrics{
		Volume24h: numutil.Float(row.Volume24h),
		Volume1h:  numutil.Float(row.Volume1h),
		Volume5m:  numutil.Float(row.Volume5m),
		Trades24h: numutil.Int(row.Trades24h),
		Trades1h:  numutil.Int(row.Trades1h),
		Trades5m:  numutil.Int(row.Trades5m),
		Name:      strings.TrimSpace(row.Trade.Currency.Name),
		Symbol:    strings.TrimSpace(row.Trade.Currency.Symbol),
	}, nil
}

const tokenInfoQuery = `query($token: String!) {
  EVM(network: bsc) {
    Transfers(
      where: {Transfer: {Currency: {SmartContract: {is: $token}}}}
      orderBy: {ascending: Block_Time}
      limit: {count: 1}
    ) {
      Currency { SmartContract Name Symbol Decimals }
      Block { Time }
    }
  }
}`

func (c *Client) tokenInfo(ctx context.Context, address string) (*tokenInfo, error) {
	var data struct {
		EVM struct {
			Transfers []struct {
				Currency struct {
					Name     string `json:"Name"`
					Symbol   string `json:"Symbol"`
					Decimals any    `json:"Decimals"`
				} `json:"Currency"`
				Block struct {
					Time string `json:"Time"`
				} `json:"Block"`
			} `json:"Transfers"`
		} `json:"EVM"`
	}
	if err := c.query(ctx, tokenInfoQuery, map[string]any{"token": address}, &data); err != nil {
		return nil, err
	}
	if len(data.EVM.Transfers) == 0 {
		return nil, nil
	}
	row := data.EVM.Transfers[0]
	info := &tokenInfo{
		Name:     strings.TrimSpace(row.Currency.Name),
		Symbol:   strings.TrimSpace(row.Currency.Symbol),
		Decimals: numutil.Int(row.Currency.Decimals),
	}
	if t, err := time.Parse(time.RFC3339, row.Block.Time); err == nil {
		t = t.UTC()
		info.CreatedAt = &t
	}
	return info, nil
}
