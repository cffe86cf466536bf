package id

import (
	"strings"
	"testing"

	clierr "github.com/ggonzalez94/token-intel/internal/errors"
)

func TestParseChainVariants(t *testing.T) {
	chain, err := ParseChain("BSC")
	if err != nil {
		t.Fatalf("ParseChain(BSC) failed: %v", err)
	}
	if chain.CAIP2 != "eip155:56" || !chain.IsEVM() {
		t.Fatalf("unexpected chain: %+v", chain)
	}

	chain, err = ParseChain("56")
	if err != nil {
		t.Fatalf("ParseChain(56) failed: %v", err)
	}
	if chain.Slug != "bsc" {
		t.Fatalf("unexpected slug: %s", chain.Slug)
	}

	chain, err = ParseChain("sol")
	if err != nil {
		t.Fatalf("ParseChain(sol) failed: %v", err)
	}
	if !chain.IsSolana() {
		t.Fatalf("expected solana family, got %s", chain.Family)
	}

	if _, err := ParseChain("ethereum"); clierr.CodeOf(err) != clierr.CodeUnsupported {
		t.Fatalf("expected unsupported chain error, got %v", err)
	}
}

func TestChainsListsEachChainOnce(t *testing.T) {
	chains := Chains()
	if len(chains) != 2 || chains[0].Slug != "bsc" || chains[1].Slug != "solana" {
		t.Fatalf("unexpected chains: %+v", chains)
	}
}

func TestParseTokenAddressEVM(t *testing.T) {
	chain, _ := ParseChain("bsc")
	addr, err := ParseTokenAddress(chain, "0xABCDEF0123456789ABCDEF0123456789ABCDEF01")
	if err != nil {
		t.Fatalf("expected valid evm address, got %v", err)
	}
	if !strings.EqualFold(addr.Address, "0xabcdef0123456789abcdef0123456789abcdef01") {
		t.Fatalf("unexpected normalized address %s", addr.Address)
	}

	_, err = ParseTokenAddress(chain, "0x"+strings.Repeat("a", 39))
	if clierr.CodeOf(err) != clierr.CodeInvalidAddress {
		t.Fatalf("expected invalid address for 39 hex chars, got %v", err)
	}
	_, err = ParseTokenAddress(chain, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	if clierr.CodeOf(err) != clierr.CodeInvalidAddress {
		t.Fatalf("expected solana mint to be rejected on bsc, got %v", err)
	}
}

func TestParseTokenAddressSolana(t *testing.T) {
	chain, _ := ParseChain("solana")
	addr, err := ParseTokenAddress(chain, " EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v ")
	if err != nil {
		t.Fatalf("expected valid mint, got %v", err)
	}
	if addr.Address != "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v" {
		t.Fatalf("unexpected address %q", addr.Address)
	}
	if addr.String() != "solana:EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v" {
		t.Fatalf("unexpected string form %q", addr.String())
	}

	// 44 'z' characters decode to more than 32 bytes.
	_, err = ParseTokenAddress(chain, strings.Repeat("z", 44))
	if clierr.CodeOf(err) != clierr.CodeInvalidAddress {
		t.Fatalf("expected oversize mint to be rejected, got %v", err)
	}
	// Within the 32-44 character range but decodes to 23 bytes.
	_, err = ParseTokenAddress(chain, "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5")
	if clierr.CodeOf(err) != clierr.CodeInvalidAddress {
		t.Fatalf("expected short mint to be rejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "decode to exactly 32 bytes") {
		t.Fatalf("expected the decode rule in the message, got %q", err.Error())
	}
	_, err = ParseTokenAddress(chain, "0OIl"+strings.Repeat("1", 40))
	if clierr.CodeOf(err) != clierr.CodeInvalidAddress {
		t.Fatalf("expected non-base58 input to be rejected, got %v", err)
	}
	_, err = ParseTokenAddress(chain, "")
	if clierr.CodeOf(err) != clierr.CodeInvalidAddress {
		t.Fatalf("expected empty address to be rejected, got %v", err)
	}
}
