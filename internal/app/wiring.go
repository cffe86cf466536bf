package app

import (
	"time"

	"github.com/ggonzalez94/token-intel/internal/config"
	clierr "github.com/ggonzalez94/token-intel/internal/errors"
	"github.com/ggonzalez94/token-intel/internal/httpx"
	"github.com/ggonzalez94/token-intel/internal/intel"
	"github.com/ggonzalez94/token-intel/internal/model"
	"github.com/ggonzalez94/token-intel/internal/providers"
	"github.com/ggonzalez94/token-intel/internal/providers/dexscreener"
	"github.com/ggonzalez94/token-intel/internal/providers/etherscan"
	"github.com/ggonzalez94/token-intel/internal/providers/evmrpc"
	"github.com/ggonzalez94/token-intel/internal/providers/fourmeme"
	"github.com/ggonzalez94/token-intel/internal/providers/helius"
	"github.com/ggonzalez94/token-intel/internal/providers/moralis"
	"github.com/ggonzalez94/token-intel/internal/providers/pumpfun"
	"github.com/ggonzalez94/token-intel/internal/registry"
)

// wiring is everything a command needs from the provider layer.
type wiring struct {
	chains map[string]intel.ChainProviders
	search providers.SearchProvider
	infos  []model.ProviderInfo
}

type wireFn func(settings config.Settings) (*wiring, error)

// endpointFor returns the validated base URL override for a provider, or ""
// to keep the adapter default.
func endpointFor(settings config.Settings, name string) (string, error) {
	override := settings.Endpoints[name]
	if override == "" {
		return "", nil
	}
	endpoint, err := registry.ResolveEndpoint(name, override)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "invalid provider endpoint", err)
	}
	return endpoint, nil
}

// buildWiring constructs every adapter from settings. Keyed adapters are
// listed even when unconfigured but only wired into a chain when their key
// is present.
func buildWiring(settings config.Settings) (*wiring, error) {
	httpClient := httpx.New(settings.Timeout, settings.Retries)

	dex := dexscreener.New(httpClient)
	pump := pumpfun.New(httpClient)
	four := fourmeme.New(httpClient, settings.BitqueryAPIKey)
	hel := helius.New(httpClient, settings.HeliusAPIKey)
	mor := moralis.New(httpClient, settings.MoralisAPIKey)
	rpc := evmrpc.New(settings.RPC)
	scan := etherscan.New(httpClient, settings.EtherscanAPIKey).WithSupplyFallback(rpc)

	endpoints := map[string]string{}
	for _, name := range []string{dexscreener.Name, pumpfun.Name, fourmeme.Name, "bitquery", helius.Name, moralis.Name, etherscan.Name} {
		endpoint, err := endpointFor(settings, name)
		if err != nil {
			return nil, err
		}
		endpoints[name] = endpoint
	}
	dex.WithBaseURL(endpoints[dexscreener.Name])
	pump.WithBaseURL(endpoints[pumpfun.Name])
	four.WithBaseURL(model.FirstString(endpoints[fourmeme.Name], endpoints["bitquery"]))
	hel.WithBaseURL(endpoints[helius.Name])
	mor.WithBaseURL(endpoints[moralis.Name])
	scan.WithBaseURL(endpoints[etherscan.Name])

	bsc := intel.ChainProviders{Market: dex, Metadata: rpc}
	if settings.BitqueryAPIKey != "" {
		bsc.Bonding = four
	}
	if settings.MoralisAPIKey != "" {
		bsc.Holders = append(bsc.Holders, mor)
	}
	if settings.EtherscanAPIKey != "" {
		bsc.Holders = append(bsc.Holders, scan)
	}

	solana := intel.ChainProviders{Market: dex, Bonding: pump}
	if settings.HeliusAPIKey != "" {
		solana.Holders = append(solana.Holders, hel)
	}
	if settings.MoralisAPIKey != "" {
		solana.Holders = append(solana.Holders, mor)
	}

	return &wiring{
		chains: map[string]intel.ChainProviders{"bsc": bsc, "solana": solana},
		search: dex,
		infos: []model.ProviderInfo{
			dex.Info(),
			pump.Info(),
			four.Info(),
			hel.Info(),
			mor.Info(),
			scan.Info(),
			rpc.Info(),
		},
	}, nil
}

func (w *wiring) service(timeout time.Duration) *intel.Service {
	return intel.NewService(w.chains, timeout)
}
