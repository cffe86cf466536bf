package id

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"

	clierr "github.com/ggonzalez94/token-intel/internal/errors"
)

var (
	evmAddressPattern      = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	solanaTokenMintPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// Family is the address grammar a chain uses.
type Family string

const (
	FamilyEVM    Family = "evm"
	FamilySolana Family = "solana"
)

type Chain struct {
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Family     Family `json:"family"`
	CAIP2      string `json:"caip2"`
	EVMChainID int64  `json:"evm_chain_id,omitempty"`
	// DexScreenerID is the chain segment of DexScreener token URLs.
	DexScreenerID string `json:"dexscreener_id"`
	// MoralisID selects the Moralis chain parameter or Solana network.
	MoralisID string `json:"moralis_id"`
	// Display is the chain label used in responses.
	Display string `json:"display"`
}

func (c Chain) IsEVM() bool {
	return c.Family == FamilyEVM
}

func (c Chain) IsSolana() bool {
	return c.Family == FamilySolana
}

var (
	bsc = Chain{
		Name:          "BNB Smart Chain",
		Slug:          "bsc",
		Family:        FamilyEVM,
		CAIP2:         "eip155:56",
		EVMChainID:    56,
		DexScreenerID: "bsc",
		MoralisID:     "0x38",
		Display:       "BNB",
	}
	solana = Chain{
		Name:          "Solana",
		Slug:          "solana",
		Family:        FamilySolana,
		CAIP2:         "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp",
		DexScreenerID: "solana",
		MoralisID:     "mainnet",
		Display:       "Solana",
	}
)

var chainBySlug = map[string]Chain{
	"bsc":            bsc,
	"bnb":            bsc,
	"binance":        bsc,
	"56":             bsc,
	"eip155:56":      bsc,
	"evm":            bsc,
	"solana":         solana,
	"sol":            solana,
	"solana-mainnet": solana,
	"mainnet-beta":   solana,
	"chain-native":   solana,
	solana.CAIP2:     solana,
}

func ParseChain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	if chain, ok := chainBySlug[strings.ToLower(raw)]; ok {
		return chain, nil
	}
	if chain, ok := chainBySlug[raw]; ok {
		return chain, nil
	}
	return Chain{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported chain input: %s", input))
}

// Chains lists each supported chain once, ordered by slug.
func Chains() []Chain {
	seen := map[string]bool{}
	out := []Chain{}
	for _, c := range chainBySlug {
		if seen[c.Slug] {
			continue
		}
		seen[c.Slug] = true
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// TokenAddress is a chain-qualified token identifier whose grammar has been
// checked. Construct it only through ParseTokenAddress.
type TokenAddress struct {
	Chain   Chain
	Address string
}

func (t TokenAddress) String() string {
	return t.Chain.Slug + ":" + t.Address
}

// ParseTokenAddress validates raw against the chain's address grammar. No
// network access happens here.
func ParseTokenAddress(chain Chain, raw string) (TokenAddress, error) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return TokenAddress{}, clierr.New(clierr.CodeInvalidAddress, "token address is required")
	}
	switch chain.Family {
	case FamilyEVM:
		if !evmAddressPattern.MatchString(addr) {
			return TokenAddress{}, clierr.New(clierr.CodeInvalidAddress, fmt.Sprintf("invalid %s token address format", chain.Display))
		}
		// Lowercase before checksumming: mixed-case input with a wrong checksum is still a valid address.
		return TokenAddress{Chain: chain, Address: common.HexToAddress(strings.ToLower(addr)).Hex()}, nil
	case FamilySolana:
		if !solanaTokenMintPattern.MatchString(addr) {
			return TokenAddress{}, clierr.New(clierr.CodeInvalidAddress, fmt.Sprintf("invalid %s token address format", chain.Display))
		}
		decoded, err := base58.Decode(addr)
		if err != nil || len(decoded) != 32 {
			return TokenAddress{}, clierr.New(clierr.CodeInvalidAddress, fmt.Sprintf("invalid %s token address: base58 mint must decode to exactly 32 bytes", chain.Display))
		}
		return TokenAddress{Chain: chain, Address: addr}, nil
	default:
		return TokenAddress{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("unsupported chain family: %s", chain.Family))
	}
}

// Parse resolves a chain input and validates the address in one step.
func Parse(chainInput, address string) (TokenAddress, error) {
	chain, err := ParseChain(chainInput)
	if err != nil {
		return TokenAddress{}, err
	}
	return ParseTokenAddress(chain, address)
}
