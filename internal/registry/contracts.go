package registry

import "strings"

// four.meme launchpad proxy per EVM chain ID. Bonding-curve liquidity events
// are emitted by this contract.
var fourMemeProxyByChainID = map[int64]string{
	56: "0x5c952063c7fc8610ffdb798152d69f0b9550762b",
}

func FourMemeProxy(chainID int64) (string, bool) {
	value, ok := fourMemeProxyByChainID[chainID]
	return value, ok
}

// Well-known non-holder addresses excluded from holder lists.
var burnAddresses = map[string]bool{
	"0x0000000000000000000000000000000000000000": true,
	"0x000000000000000000000000000000000000dead": true,
}

func IsBurnAddress(address string) bool {
	return burnAddresses[strings.ToLower(strings.TrimSpace(address))]
}
