package registry

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	DexScreenerBaseURL = "https://api.dexscreener.com"
	PumpFunBaseURL     = "https://frontend-api.pump.fun"
	BitqueryGraphQLURL = "https://graphql.bitquery.io"
	HeliusRPCURL       = "https://mainnet.helius-rpc.com"
	MoralisBaseURL     = "https://deep-index.moralis.io"
	EtherscanV2BaseURL = "https://api.etherscan.io/v2/api"
)

var defaultEndpoints = map[string]string{
	"dexscreener": DexScreenerBaseURL,
	"pumpfun":     PumpFunBaseURL,
	"fourmeme":    BitqueryGraphQLURL,
	"bitquery":    BitqueryGraphQLURL,
	"helius":      HeliusRPCURL,
	"moralis":     MoralisBaseURL,
	"etherscan":   EtherscanV2BaseURL,
}

func DefaultEndpoint(provider string) (string, bool) {
	value, ok := defaultEndpoints[strings.ToLower(strings.TrimSpace(provider))]
	return value, ok
}

// ResolveEndpoint returns override when it is an acceptable endpoint and the
// provider default otherwise. Overrides must use https unless they point at a
// loopback host.
func ResolveEndpoint(provider, override string) (string, error) {
	raw := strings.TrimSpace(override)
	if raw == "" {
		value, ok := DefaultEndpoint(provider)
		if !ok {
			return "", fmt.Errorf("no default endpoint for provider %s", provider)
		}
		return value, nil
	}
	if !IsAllowedEndpoint(raw) {
		return "", fmt.Errorf("endpoint override for %s must be https or loopback: %s", provider, raw)
	}
	return normalizedURL(raw), nil
}

func IsAllowedEndpoint(endpoint string) bool {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	return scheme == "https"
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

func normalizedURL(raw string) string {
	return strings.TrimSuffix(strings.TrimSpace(raw), "/")
}
