package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/ggonzalez94/token-intel/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	for _, name := range []string{EnvBitqueryAPIKey, EnvHeliusAPIKey, EnvMoralisAPIKey, EnvEtherscanAPIKey, "TOKENINTEL_OUTPUT", "TOKENINTEL_TIMEOUT", "TOKENINTEL_RETRIES"} {
		t.Setenv(name, "")
	}
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	isolate(t)
	configPath := writeConfig(t, "output: plain\nretries: 1\ntimeout: 3s\n")

	t.Setenv("TOKENINTEL_OUTPUT", "json")
	t.Setenv("TOKENINTEL_TIMEOUT", "4s")
	settings, err := Load(GlobalFlags{ConfigPath: configPath, Plain: true, Retries: 5})
	require.NoError(t, err)
	assert.Equal(t, "plain", settings.OutputMode)
	assert.Equal(t, 5, settings.Retries)
	assert.Equal(t, 4*time.Second, settings.Timeout)
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), Retries: -1})
	require.NoError(t, err)
	assert.Equal(t, 8*time.Second, settings.Timeout)
	assert.Equal(t, 20*time.Second, settings.AnalyzeTimeout)
	assert.Equal(t, 1, settings.Retries)
	assert.Equal(t, 30*time.Second, settings.CacheTTL)
	assert.Equal(t, ":8080", settings.ServerAddr)
	assert.True(t, settings.CacheEnabled)
	assert.NoError(t, settings.Validate())
}

func TestLoadProviderKeys(t *testing.T) {
	isolate(t)
	t.Setenv("MY_HELIUS", "from-env-ref")
	t.Setenv(EnvMoralisAPIKey, "moralis-env")
	configPath := writeConfig(t, `
providers:
  helius:
    api_key_env: MY_HELIUS
  moralis:
    api_key: moralis-file
  dexscreener:
    endpoint: http://127.0.0.1:9000
rpc:
  BSC: https://rpc.example.org
cache:
  redis_url: redis://localhost:6379/0
`)
	settings, err := Load(GlobalFlags{ConfigPath: configPath, Retries: -1})
	require.NoError(t, err)
	assert.Equal(t, "from-env-ref", settings.HeliusAPIKey)
	assert.Equal(t, "moralis-env", settings.MoralisAPIKey)
	assert.Equal(t, "http://127.0.0.1:9000", settings.Endpoints["dexscreener"])
	assert.Equal(t, "https://rpc.example.org", settings.RPC["bsc"])
	assert.Equal(t, "redis://localhost:6379/0", settings.RedisURL)
	assert.NoError(t, settings.Validate())
}

func TestValidateRejectsPlainHTTPEndpoint(t *testing.T) {
	isolate(t)
	configPath := writeConfig(t, "providers:\n  moralis:\n    endpoint: http://moralis.example.com\n")
	settings, err := Load(GlobalFlags{ConfigPath: configPath, Retries: -1})
	require.NoError(t, err)
	err = settings.Validate()
	require.Error(t, err)
	assert.Equal(t, clierr.CodeUsage, clierr.CodeOf(err))
}

func TestRequireChainKeys(t *testing.T) {
	var s Settings
	err := s.RequireChainKeys("solana")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvHeliusAPIKey)
	assert.Equal(t, clierr.CodeUsage, clierr.CodeOf(err))

	s.MoralisAPIKey = "k"
	assert.NoError(t, s.RequireChainKeys("solana"))

	err = s.RequireChainKeys("bsc")
	assert.Contains(t, err.Error(), EnvBitqueryAPIKey)
	s.BitqueryAPIKey = "k"
	assert.NoError(t, s.RequireChainKeys("bsc"))
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	_, err := Load(GlobalFlags{JSON: true, Plain: true})
	require.Error(t, err)
}
