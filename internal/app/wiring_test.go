package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/token-intel/internal/config"
	clierr "github.com/ggonzalez94/token-intel/internal/errors"
)

func TestBuildWiringHonorsKeys(t *testing.T) {
	w, err := buildWiring(config.Settings{Timeout: time.Second, BitqueryAPIKey: "bq", EtherscanAPIKey: "es"})
	require.NoError(t, err)

	bsc := w.chains["bsc"]
	require.NotNil(t, bsc.Bonding)
	assert.Equal(t, "fourmeme", bsc.Bonding.Info().Name)
	require.Len(t, bsc.Holders, 1)
	assert.Equal(t, "etherscan", bsc.Holders[0].Info().Name)
	require.NotNil(t, bsc.Metadata)
	assert.Equal(t, "evmrpc", bsc.Metadata.Info().Name)

	solana := w.chains["solana"]
	assert.Equal(t, "pumpfun", solana.Bonding.Info().Name)
	assert.Empty(t, solana.Holders)
	assert.Nil(t, solana.Metadata)
}

func TestBuildWiringHolderOrder(t *testing.T) {
	w, err := buildWiring(config.Settings{Timeout: time.Second, HeliusAPIKey: "h", MoralisAPIKey: "m", EtherscanAPIKey: "e"})
	require.NoError(t, err)

	assert.Nil(t, w.chains["bsc"].Bonding)
	bsc := w.chains["bsc"].Holders
	require.Len(t, bsc, 2)
	assert.Equal(t, "moralis", bsc[0].Info().Name)
	assert.Equal(t, "etherscan", bsc[1].Info().Name)

	sol := w.chains["solana"].Holders
	require.Len(t, sol, 2)
	assert.Equal(t, "helius", sol[0].Info().Name)
	assert.Equal(t, "moralis", sol[1].Info().Name)

	for _, info := range w.infos {
		if info.RequiresKey && info.Name != "fourmeme" {
			assert.True(t, info.Configured, info.Name)
		}
	}
}

func TestBuildWiringRejectsInsecureEndpoint(t *testing.T) {
	_, err := buildWiring(config.Settings{Endpoints: map[string]string{"moralis": "http://example.com"}})
	require.Error(t, err)
	assert.Equal(t, clierr.CodeUsage, clierr.CodeOf(err))
}
