package providers

import (
	"context"
	"errors"

	clierr "github.com/ggonzalez94/token-intel/internal/errors"
	"github.com/ggonzalez94/token-intel/internal/id"
	"github.com/ggonzalez94/token-intel/internal/model"
)

type Provider interface {
	Info() model.ProviderInfo
}

// ErrNotAvailable is returned when a provider authoritatively has no data for
// a token. It is distinct from transient failures, which keep their own codes.
var ErrNotAvailable = clierr.New(clierr.CodeNotFound, "provider has no data for token")

func IsNotAvailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotAvailable) {
		return true
	}
	return clierr.CodeOf(err) == clierr.CodeNotFound
}

// AdvancesFallback reports whether a tiered adapter may try its next tier
// after err. Only definitive signals advance; transient failures stop the chain.
func AdvancesFallback(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch clierr.CodeOf(err) {
	case clierr.CodeUnsupported, clierr.CodeAuth, clierr.CodeNotFound:
		return true
	default:
		return false
	}
}

// MarketDataProvider serves DEX pool/pair data.
type MarketDataProvider interface {
	Provider
	TokenMarket(ctx context.Context, token id.TokenAddress) (*model.ProviderRecord, error)
}

// SearchProvider resolves free-text queries to pairs.
type SearchProvider interface {
	Provider
	Search(ctx context.Context, query string) ([]model.ProviderRecord, error)
}

// BondingCurveProvider reports launchpad bonding-curve progress.
type BondingCurveProvider interface {
	Provider
	BondingProgress(ctx context.Context, token id.TokenAddress) (*model.ProviderRecord, error)
}

// HolderProvider produces a holder analysis. Degraded answers are returned
// with a Limited or Error data quality rather than an error.
type HolderProvider interface {
	Provider
	Holders(ctx context.Context, token id.TokenAddress) (*model.HolderAnalysis, error)
}

// Supply is a raw on-chain supply with its decimals.
type Supply struct {
	Amount   string `json:"amount"`
	Decimals int    `json:"decimals"`
}

type SupplyProvider interface {
	Provider
	TokenSupply(ctx context.Context, token id.TokenAddress) (Supply, error)
}

type TokenMetadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type MetadataProvider interface {
	Provider
	TokenMetadata(ctx context.Context, token id.TokenAddress) (TokenMetadata, error)
}
