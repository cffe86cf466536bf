package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/token-intel/internal/cache"
	"github.com/ggonzalez94/token-intel/internal/config"
	clierr "github.com/ggonzalez94/token-intel/internal/errors"
	"github.com/ggonzalez94/token-intel/internal/id"
	"github.com/ggonzalez94/token-intel/internal/intel"
	"github.com/ggonzalez94/token-intel/internal/logging"
	"github.com/ggonzalez94/token-intel/internal/model"
	"github.com/ggonzalez94/token-intel/internal/out"
	"github.com/ggonzalez94/token-intel/internal/policy"
	"github.com/ggonzalez94/token-intel/internal/report"
	"github.com/ggonzalez94/token-intel/internal/risk"
	"github.com/ggonzalez94/token-intel/internal/schema"
	"github.com/ggonzalez94/token-intel/internal/server"
	"github.com/ggonzalez94/token-intel/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	logOut io.Writer
	now    func() time.Time
	wire   wireFn
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		logOut: stderr,
		now:    time.Now,
		wire:   buildWiring,
	}
}

type runtimeState struct {
	runner        *Runner
	flags         config.GlobalFlags
	settings      config.Settings
	cache         *cache.Store
	root          *cobra.Command
	lastCommand   string
	lastWarnings  []string
	lastProviders []model.ProviderStatus
	lastPartial   bool

	wiring    *wiring
	service   *intel.Service
	formatter report.Formatter
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	state.resetCommandDiagnostics()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if state.cache != nil {
		defer state.cache.Close()
	}
	if err == nil {
		return 0
	}

	state.renderError("", err, state.lastWarnings, state.lastProviders, state.lastPartial)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Token intelligence and risk reports for BSC and Solana tokens",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			if err := settings.Validate(); err != nil {
				return err
			}
			s.settings = settings
			if err := logging.SetupWriter(s.runner.logOut, settings.LogLevel, settings.LogFormat); err != nil {
				return err
			}

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}

			if s.wiring == nil {
				w, err := s.runner.wire(settings)
				if err != nil {
					return err
				}
				s.wiring = w
				s.service = w.service(settings.AnalyzeTimeout).WithClock(s.runner.now)
				s.formatter = report.New(risk.NewEngine())
				s.formatter.Now = s.runner.now
			}

			if settings.CacheEnabled && shouldOpenCache(path) && s.cache == nil {
				cacheStore, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open cache", err)
				}
				s.cache = cacheStore
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.Strict, "strict", false, "Fail on partial results")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Provider request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per provider request")
	cmd.PersistentFlags().StringVar(&s.flags.CacheTTL, "cache-ttl", "", "Cache lifetime of a token report")
	cmd.PersistentFlags().StringVar(&s.flags.MaxStale, "max-stale", "", "Maximum stale fallback window after TTL expiry")
	cmd.PersistentFlags().BoolVar(&s.flags.NoStale, "no-stale", false, "Reject stale cache entries")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&s.flags.LogFormat, "log-format", "", "Log format (json or console)")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(s.newChainsCommand())
	cmd.AddCommand(s.newTokenCommand())
	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = strings.Join(args, " ")
			}
			data, err := schema.Build(s.root, path)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), nil, false)
		},
	}
	return cmd
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{Use: "providers", Short: "Provider commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List data providers and API key metadata (no keys required)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.wiring.infos, nil, cacheMetaBypass(), nil, false)
		},
	}
	root.AddCommand(list)
	return root
}

type chainInfo struct {
	id.Chain
	Market     string   `json:"market_provider"`
	Bonding    string   `json:"bonding_provider,omitempty"`
	Holders    []string `json:"holder_providers"`
	Configured bool     `json:"configured"`
	MissingKey string   `json:"missing_key,omitempty"`
}

func (s *runtimeState) newChainsCommand() *cobra.Command {
	root := &cobra.Command{Use: "chains", Short: "Chain commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List supported chains and the providers wired for each",
		RunE: func(cmd *cobra.Command, args []string) error {
			items := []chainInfo{}
			for _, chain := range id.Chains() {
				cp := s.wiring.chains[chain.Slug]
				item := chainInfo{Chain: chain, Holders: []string{}, Configured: true}
				if cp.Market != nil {
					item.Market = cp.Market.Info().Name
				}
				if cp.Bonding != nil {
					item.Bonding = cp.Bonding.Info().Name
				}
				for _, h := range cp.Holders {
					item.Holders = append(item.Holders, h.Info().Name)
				}
				if err := s.settings.RequireChainKeys(chain.Slug); err != nil {
					item.Configured = false
					if cErr, ok := clierr.As(err); ok {
						item.MissingKey = cErr.Message
					}
				}
				items = append(items, item)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, cacheMetaBypass(), nil, false)
		},
	}
	root.AddCommand(list)
	return root
}

func chainSlugs() []string {
	chains := id.Chains()
	slugs := make([]string, 0, len(chains))
	for _, chain := range chains {
		slugs = append(slugs, chain.Slug)
	}
	return slugs
}

func (s *runtimeState) newTokenCommand() *cobra.Command {
	root := &cobra.Command{Use: "token", Short: "Token intelligence"}

	var chainArg string
	analyzeCmd := &cobra.Command{
		Use:   "analyze <address>",
		Short: "Build a risk and market report for one token",
		Example: `  tokenintel token analyze EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v
  tokenintel token analyze 0x55d398326f99059fF775485246999027B3197955 --chain bsc`,
		Annotations: map[string]string{"chains": strings.Join(chainSlugs(), ",")},
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := trimRootPath(cmd.CommandPath())
			chain, err := id.ParseChain(chainArg)
			if err != nil {
				return err
			}
			token, err := id.ParseTokenAddress(chain, args[0])
			if err != nil {
				return err
			}
			if err := s.settings.RequireChainKeys(chain.Slug); err != nil {
				return err
			}
			key := cache.Key(path, chain.Slug, token.Address)
			return s.runCachedCommand(path, key, s.settings.CacheTTL, func(ctx context.Context) (any, []model.ProviderStatus, []string, bool, error) {
				analysis, err := s.service.Analyze(ctx, chain.Slug, token.Address)
				if err != nil {
					return nil, analysis.Providers, analysis.Warnings, false, err
				}
				resp := s.formatter.Format(analysis)
				partial := resp.Kind() == model.KindSuccess && analysis.Partial()
				return resp, analysis.Providers, analysis.Warnings, partial, nil
			})
		},
	}
	analyzeCmd.Flags().StringVar(&chainArg, "chain", "solana", "Chain of the token (bsc or solana)")
	root.AddCommand(analyzeCmd)

	var limit int
	searchCmd := &cobra.Command{
		Use:     "search <query>",
		Short:   "Search DEX pairs by name, symbol or address",
		Example: "  tokenintel token search pepe --limit 5",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := trimRootPath(cmd.CommandPath())
			query := strings.Join(args, " ")
			key := cache.Key(path, fmt.Sprint(limit), query)
			return s.runCachedCommand(path, key, s.settings.CacheTTL, func(ctx context.Context) (any, []model.ProviderStatus, []string, bool, error) {
				start := time.Now()
				data, err := s.wiring.search.Search(ctx, query)
				status := []model.ProviderStatus{{Name: s.wiring.search.Info().Name, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
				if err != nil {
					return nil, status, nil, false, err
				}
				if limit > 0 && len(data) > limit {
					data = data[:limit]
				}
				return data, status, nil, false, nil
			})
		},
	}
	searchCmd.Flags().IntVar(&limit, "limit", 10, "Maximum pairs to return")
	root.AddCommand(searchCmd)

	return root
}

func (s *runtimeState) newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve token analysis over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := s.settings
			if strings.TrimSpace(addr) != "" {
				settings.ServerAddr = strings.TrimSpace(addr)
			}
			for _, chain := range id.Chains() {
				if err := settings.RequireChainKeys(chain.Slug); err != nil {
					log.Warn().Err(err).Str("chain", chain.Slug).Msg("chain disabled until its key is configured")
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			backend, closeBackend := s.serverCache(ctx)
			defer closeBackend()

			srv := server.New(s.service, s.formatter, backend, server.Config{
				Addr:              settings.ServerAddr,
				ReadHeaderTimeout: settings.ReadHeaderTimeout,
				CacheTTL:          settings.CacheTTL,
				MaxStale:          settings.MaxStale,
				ChainCheck:        settings.RequireChainKeys,
			})
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	return cmd
}

// serverCache prefers redis when configured and falls back to the sqlite
// store when redis cannot be reached.
func (s *runtimeState) serverCache(ctx context.Context) (cache.Backend, func()) {
	noop := func() {}
	if !s.settings.CacheEnabled {
		return nil, noop
	}
	if s.settings.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		store, err := cache.OpenRedis(pingCtx, s.settings.RedisURL, s.settings.MaxStale)
		if err == nil {
			return store, func() { _ = store.Close() }
		}
		log.Warn().Err(err).Msg("redis unavailable, using sqlite cache")
	}
	if s.cache == nil {
		return nil, noop
	}
	return s.cache, noop
}

type fetchFn func(ctx context.Context) (data any, providerStatus []model.ProviderStatus, warnings []string, partial bool, err error)

// staleEntry is an expired cache entry kept as a fallback for transient
// provider failures.
type staleEntry struct {
	data     any
	status   model.CacheStatus
	age      time.Duration
	observed time.Time
}

func (e *staleEntry) currentAge() time.Duration {
	return e.age + time.Since(e.observed)
}

// lookup returns a fresh cached payload, or records an expired one as the
// stale fallback.
func (s *runtimeState) lookup(key string) (any, model.CacheStatus, *staleEntry, bool) {
	if !s.settings.CacheEnabled || s.cache == nil {
		return nil, cacheMetaMiss(), nil, false
	}
	cached, err := s.cache.Get(context.Background(), key, s.settings.MaxStale)
	if err != nil {
		log.Debug().Err(err).Msg("cache read skipped")
		return nil, cacheMetaMiss(), nil, false
	}
	if !cached.Hit {
		return nil, cacheMetaMiss(), nil, false
	}
	var data any
	if err := json.Unmarshal(cached.Value, &data); err != nil {
		return nil, cacheMetaMiss(), nil, false
	}
	status := model.CacheStatus{Status: "hit", AgeMS: cached.Age.Milliseconds(), Stale: cached.Stale}
	if !cached.Stale {
		return data, status, nil, true
	}
	return nil, cacheMetaMiss(), &staleEntry{data: data, status: status, age: cached.Age, observed: time.Now()}, false
}

func (s *runtimeState) runCachedCommand(commandPath, key string, ttl time.Duration, fetch fetchFn) error {
	s.resetCommandDiagnostics()
	cachedData, cachedStatus, stale, fresh := s.lookup(key)
	if fresh {
		return s.emitSuccess(commandPath, cachedData, nil, cachedStatus, nil, false)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.settings.AnalyzeTimeout)
	defer cancel()
	data, providerStatus, warnings, partial, err := fetch(ctx)
	s.captureCommandDiagnostics(warnings, providerStatus, partial)
	if err != nil {
		if stale == nil || !staleFallbackAllowed(err) {
			return err
		}
		age := stale.currentAge()
		if s.settings.NoStale {
			return clierr.Wrap(clierr.CodeStale, "fresh provider fetch failed and stale fallback is disabled (--no-stale)", err)
		}
		if staleExceedsBudget(age, ttl, s.settings.MaxStale) {
			return clierr.Wrap(clierr.CodeStale, "fresh provider fetch failed and cached data exceeded stale budget", err)
		}
		warnings = append(warnings, "provider fetch failed; serving stale data within max-stale budget")
		s.captureCommandDiagnostics(warnings, providerStatus, false)
		status := stale.status
		status.AgeMS = age.Milliseconds()
		return s.emitSuccess(commandPath, stale.data, warnings, status, providerStatus, false)
	}

	if partial && s.settings.Strict {
		return clierr.New(clierr.CodePartialStrict, "partial results returned in strict mode")
	}

	cacheStatus := cacheMetaMiss()
	if s.settings.CacheEnabled && s.cache != nil {
		if payload, err := json.Marshal(data); err == nil {
			if err := s.cache.Set(context.Background(), key, payload, ttl); err != nil {
				log.Debug().Err(err).Msg("cache write skipped")
			} else {
				cacheStatus = model.CacheStatus{Status: "write"}
			}
		}
	}
	return s.emitSuccess(commandPath, data, warnings, cacheStatus, providerStatus, partial)
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus, providers []model.ProviderStatus, partial bool) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: uuid.NewString(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
			Cache:     cacheStatus,
			Partial:   partial,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string, providers []model.ProviderStatus, partial bool) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    clierr.TypeName(clierr.CodeOf(err)),
			Message: message,
		},
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: uuid.NewString(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
			Cache:     cacheMetaBypass(),
			Partial:   partial,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func statusFromErr(err error) string {
	if err == nil {
		return model.StatusOK
	}
	switch clierr.CodeOf(err) {
	case clierr.CodeNotFound:
		return model.StatusNotFound
	case clierr.CodeUnavailable, clierr.CodeRateLimited:
		return model.StatusUnavailable
	default:
		return model.StatusError
	}
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass", AgeMS: 0, Stale: false}
}

func cacheMetaMiss() model.CacheStatus {
	return model.CacheStatus{Status: "miss", AgeMS: 0, Stale: false}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func staleExceedsBudget(age, ttl, maxStale time.Duration) bool {
	if age <= ttl {
		return false
	}
	if maxStale < 0 {
		return false
	}
	return age > ttl+maxStale
}

func staleFallbackAllowed(err error) bool {
	switch clierr.CodeOf(err) {
	case clierr.CodeUnavailable, clierr.CodeRateLimited:
		return true
	default:
		return false
	}
}

func shouldOpenCache(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "", "version", "schema", "providers", "providers list", "chains", "chains list":
		return false
	default:
		return true
	}
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}

func (s *runtimeState) resetCommandDiagnostics() {
	s.lastWarnings = nil
	s.lastProviders = nil
	s.lastPartial = false
}

func (s *runtimeState) captureCommandDiagnostics(warnings []string, providers []model.ProviderStatus, partial bool) {
	if len(warnings) == 0 {
		s.lastWarnings = nil
	} else {
		s.lastWarnings = append([]string(nil), warnings...)
	}
	if len(providers) == 0 {
		s.lastProviders = nil
	} else {
		s.lastProviders = append([]model.ProviderStatus(nil), providers...)
	}
	s.lastPartial = partial
}
