// Package evmrpc reads ERC-20 supply and identity straight from an EVM node.
package evmrpc

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"

	clierr "github.com/ggonzalez94/token-intel/internal/errors"
	"github.com/ggonzalez94/token-intel/internal/id"
	"github.com/ggonzalez94/token-intel/internal/model"
	"github.com/ggonzalez94/token-intel/internal/providers"
	"github.com/ggonzalez94/token-intel/internal/registry"
)

const (
	Name = "evmrpc"

	defaultDecimals = 18
)

var erc20ABI = mustABI(registry.ERC20MinimalABI)

type Client struct {
	// rpcOverrides maps chain slug to an RPC URL.
	rpcOverrides map[string]string
}

func New(rpcOverrides map[string]string) *Client {
	overrides := map[string]string{}
	for k, v := range rpcOverrides {
		overrides[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return &Client{rpcOverrides: overrides}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         Name,
		Type:         "chain",
		Chains:       []string{"bsc"},
		Configured:   true,
		RequiresKey:  false,
		Capabilities: []string{"token.supply", "token.metadata"},
	}
}

func (c *Client) dial(ctx context.Context, chain id.Chain) (*ethclient.Client, error) {
	if !chain.IsEVM() {
		return nil, providers.ErrNotAvailable
	}
	rpcURL, err := registry.ResolveRPCURL(c.rpcOverrides[chain.Slug], chain.EVMChainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnsupported, "resolve rpc url", err)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("connect %s rpc", chain.Slug), err)
	}
	return client, nil
}

func (c *Client) TokenSupply(ctx context.Context, token id.TokenAddress) (providers.Supply, error) {
	client, err := c.dial(ctx, token.Chain)
	if err != nil {
		return providers.Supply{}, err
	}
	defer client.Close()

	contract := common.HexToAddress(token.Address)
	out, err := call(ctx, client, contract, "totalSupply")
	if err != nil {
		return providers.Supply{}, err
	}
	supply, ok := out.(*big.Int)
	if !ok || supply == nil {
		return providers.Supply{}, providers.ErrNotAvailable
	}
	decimals := defaultDecimals
	if out, err := call(ctx, client, contract, "decimals"); err == nil {
		if d, ok := out.(uint8); ok {
			decimals = int(d)
		}
	} else {
		log.Debug().Str("provider", Name).Str("token", token.Address).Err(err).Msg("decimals unavailable, assuming 18")
	}
	return providers.Supply{Amount: supply.String(), Decimals: decimals}, nil
}

// TokenMetadata reads name, symbol and decimals. Each field is optional; a
// contract answering none of them is reported as not available.
func (c *Client) TokenMetadata(ctx context.Context, token id.TokenAddress) (providers.TokenMetadata, error) {
	client, err := c.dial(ctx, token.Chain)
	if err != nil {
		return providers.TokenMetadata{}, err
	}
	defer client.Close()

	contract := common.HexToAddress(token.Address)
	meta := providers.TokenMetadata{Decimals: defaultDecimals}
	var lastErr error
	if out, err := call(ctx, client, contract, "name"); err == nil {
		meta.Name, _ = out.(string)
	} else {
		lastErr = err
	}
	if out, err := call(ctx, client, contract, "symbol"); err == nil {
		meta.Symbol, _ = out.(string)
	} else {
		lastErr = err
	}
	if out, err := call(ctx, client, contract, "decimals"); err == nil {
		if d, ok := out.(uint8); ok {
			meta.Decimals = int(d)
		}
	}
	meta.Name = strings.TrimSpace(meta.Name)
	meta.Symbol = strings.TrimSpace(meta.Symbol)
	if meta.Name == "" && meta.Symbol == "" {
		if lastErr != nil && !providers.IsNotAvailable(lastErr) {
			return providers.TokenMetadata{}, lastErr
		}
		return providers.TokenMetadata{}, providers.ErrNotAvailable
	}
	return meta, nil
}

// call packs a no-argument view call and unpacks its single return value.
// Empty return data means the address is not an ERC-20 contract.
func call(ctx context.Context, client *ethclient.Client, contract common.Address, method string) (any, error) {
	data, err := erc20ABI.Pack(method)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack "+method+" calldata", err)
	}
	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, method+" call failed", err)
	}
	if len(raw) == 0 {
		return nil, providers.ErrNotAvailable
	}
	decoded, err := erc20ABI.Unpack(method, raw)
	if err != nil || len(decoded) == 0 {
		return nil, providers.ErrNotAvailable
	}
	return decoded[0], nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
