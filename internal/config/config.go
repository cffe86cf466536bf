package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	clierr "github.com/ggonzalez94/token-intel/internal/errors"
	"github.com/ggonzalez94/token-intel/internal/registry"
)

const appDir = "tokenintel"

// Env var names for provider credentials.
const (
	EnvBitqueryAPIKey  = "TOKENINTEL_BITQUERY_API_KEY"
	EnvHeliusAPIKey    = "TOKENINTEL_HELIUS_API_KEY"
	EnvMoralisAPIKey   = "TOKENINTEL_MORALIS_API_KEY"
	EnvEtherscanAPIKey = "TOKENINTEL_ETHERSCAN_API_KEY"
)

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Strict         bool
	Timeout        string
	Retries        int
	CacheTTL       string
	MaxStale       string
	NoStale        bool
	NoCache        bool
	LogLevel       string
	LogFormat      string
}

type Settings struct {
	OutputMode        string
	SelectFields      []string
	ResultsOnly       bool
	EnableCommands    []string
	Strict            bool
	Timeout           time.Duration
	AnalyzeTimeout    time.Duration
	Retries           int
	CacheTTL          time.Duration
	MaxStale          time.Duration
	NoStale           bool
	CacheEnabled      bool
	CachePath         string
	CacheLockPath     string
	RedisURL          string
	ServerAddr        string
	ReadHeaderTimeout time.Duration
	LogLevel          string
	LogFormat         string
	BitqueryAPIKey    string
	HeliusAPIKey      string
	MoralisAPIKey     string
	EtherscanAPIKey   string
	// RPC maps chain slug to an RPC URL override.
	RPC map[string]string
	// Endpoints maps provider name to a base URL override.
	Endpoints map[string]string
}

type providerConfig struct {
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
	Endpoint  string `yaml:"endpoint"`
}

type fileConfig struct {
	Output         string `yaml:"output"`
	Strict         *bool  `yaml:"strict"`
	Timeout        string `yaml:"timeout"`
	AnalyzeTimeout string `yaml:"analyze_timeout"`
	Retries        *int   `yaml:"retries"`
	Log            struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		TTL      string `yaml:"ttl"`
		MaxStale string `yaml:"max_stale"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		RedisURL string `yaml:"redis_url"`
	} `yaml:"cache"`
	Server struct {
		Addr              string `yaml:"addr"`
		ReadHeaderTimeout string `yaml:"read_header_timeout"`
	} `yaml:"server"`
	RPC       map[string]string         `yaml:"rpc"`
	Providers map[string]providerConfig `yaml:"providers"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 8 * time.Second
	}
	if settings.AnalyzeTimeout <= 0 {
		settings.AnalyzeTimeout = 20 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.CacheTTL <= 0 {
		settings.CacheTTL = 30 * time.Second
	}
	if settings.MaxStale < 0 {
		settings.MaxStale = 5 * time.Minute
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:        "json",
		Timeout:           8 * time.Second,
		AnalyzeTimeout:    20 * time.Second,
		Retries:           1,
		CacheTTL:          30 * time.Second,
		MaxStale:          5 * time.Minute,
		CacheEnabled:      true,
		CachePath:         cachePath,
		CacheLockPath:     lockPath,
		ServerAddr:        ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		LogLevel:          "warn",
		LogFormat:         "json",
		RPC:               map[string]string{},
		Endpoints:         map[string]string{},
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appDir, "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, appDir)
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
}

func parseDuration(field, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config %s: %w", field, err)
	}
	*dst = d
	return nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Strict != nil {
		settings.Strict = *cfg.Strict
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	durations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"timeout", cfg.Timeout, &settings.Timeout},
		{"analyze_timeout", cfg.AnalyzeTimeout, &settings.AnalyzeTimeout},
		{"cache.ttl", cfg.Cache.TTL, &settings.CacheTTL},
		{"cache.max_stale", cfg.Cache.MaxStale, &settings.MaxStale},
		{"server.read_header_timeout", cfg.Server.ReadHeaderTimeout, &settings.ReadHeaderTimeout},
	}
	for _, d := range durations {
		if err := parseDuration(d.field, d.raw, d.dst); err != nil {
			return err
		}
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = cfg.Log.Format
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Cache.RedisURL != "" {
		settings.RedisURL = cfg.Cache.RedisURL
	}
	if cfg.Server.Addr != "" {
		settings.ServerAddr = cfg.Server.Addr
	}
	for chain, url := range cfg.RPC {
		if strings.TrimSpace(url) != "" {
			settings.RPC[strings.ToLower(chain)] = strings.TrimSpace(url)
		}
	}

	keys := map[string]*string{
		"bitquery":  &settings.BitqueryAPIKey,
		"helius":    &settings.HeliusAPIKey,
		"moralis":   &settings.MoralisAPIKey,
		"etherscan": &settings.EtherscanAPIKey,
	}
	for name, p := range cfg.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		if dst, ok := keys[name]; ok {
			if p.APIKey != "" {
				*dst = p.APIKey
			}
			if p.APIKeyEnv != "" {
				*dst = os.Getenv(p.APIKeyEnv)
			}
		}
		if p.Endpoint != "" {
			settings.Endpoints[name] = p.Endpoint
		}
	}
	return nil
}

func envBool(name string, apply func(bool)) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			apply(b)
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("TOKENINTEL_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	envBool("TOKENINTEL_STRICT", func(b bool) { settings.Strict = b })
	envBool("TOKENINTEL_NO_STALE", func(b bool) { settings.NoStale = b })
	envBool("TOKENINTEL_NO_CACHE", func(b bool) { settings.CacheEnabled = !b })
	envDuration("TOKENINTEL_TIMEOUT", &settings.Timeout)
	envDuration("TOKENINTEL_ANALYZE_TIMEOUT", &settings.AnalyzeTimeout)
	envDuration("TOKENINTEL_CACHE_TTL", &settings.CacheTTL)
	envDuration("TOKENINTEL_MAX_STALE", &settings.MaxStale)
	if v := os.Getenv("TOKENINTEL_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	envString("TOKENINTEL_CACHE_PATH", &settings.CachePath)
	envString("TOKENINTEL_CACHE_LOCK_PATH", &settings.CacheLockPath)
	envString("TOKENINTEL_REDIS_URL", &settings.RedisURL)
	envString("TOKENINTEL_SERVER_ADDR", &settings.ServerAddr)
	envString("TOKENINTEL_LOG_LEVEL", &settings.LogLevel)
	envString("TOKENINTEL_LOG_FORMAT", &settings.LogFormat)
	envString(EnvBitqueryAPIKey, &settings.BitqueryAPIKey)
	envString(EnvHeliusAPIKey, &settings.HeliusAPIKey)
	envString(EnvMoralisAPIKey, &settings.MoralisAPIKey)
	envString(EnvEtherscanAPIKey, &settings.EtherscanAPIKey)
	if v := os.Getenv("TOKENINTEL_BSC_RPC_URL"); v != "" {
		settings.RPC["bsc"] = v
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly
	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}

	if flags.Strict {
		settings.Strict = true
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.CacheTTL != "" {
		d, err := time.ParseDuration(flags.CacheTTL)
		if err != nil {
			return fmt.Errorf("parse --cache-ttl: %w", err)
		}
		settings.CacheTTL = d
	}
	if flags.MaxStale != "" {
		d, err := time.ParseDuration(flags.MaxStale)
		if err != nil {
			return fmt.Errorf("parse --max-stale: %w", err)
		}
		settings.MaxStale = d
	}
	if flags.NoStale {
		settings.NoStale = true
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if flags.LogLevel != "" {
		settings.LogLevel = flags.LogLevel
	}
	if flags.LogFormat != "" {
		settings.LogFormat = flags.LogFormat
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}

// Validate checks settings that can be verified without knowing which
// chain will be analysed.
func (s Settings) Validate() error {
	for name, endpoint := range s.Endpoints {
		if _, err := registry.ResolveEndpoint(name, endpoint); err != nil {
			return clierr.Wrap(clierr.CodeUsage, "invalid provider endpoint", err)
		}
	}
	if s.LogFormat != "json" && s.LogFormat != "console" {
		return clierr.New(clierr.CodeUsage, "log format must be json or console")
	}
	return nil
}

// RequireChainKeys reports the credentials a chain cannot be analysed
// without. Optional providers are simply left unwired.
func (s Settings) RequireChainKeys(chain string) error {
	switch strings.ToLower(chain) {
	case "solana":
		if s.HeliusAPIKey == "" && s.MoralisAPIKey == "" {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("solana holder analysis requires %s or %s", EnvHeliusAPIKey, EnvMoralisAPIKey))
		}
	case "bsc":
		if s.BitqueryAPIKey == "" {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("bsc bonding-curve lookups require %s", EnvBitqueryAPIKey))
		}
	}
	return nil
}
