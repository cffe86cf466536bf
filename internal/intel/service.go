// Package intel classifies a token, fans out to its providers and merges
// their answers into one canonical record.
package intel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	clierr "github.com/ggonzalez94/token-intel/internal/errors"
	"github.com/ggonzalez94/token-intel/internal/id"
	"github.com/ggonzalez94/token-intel/internal/model"
	"github.com/ggonzalez94/token-intel/internal/providers"
)

// Provider roles reported in statuses.
const (
	RolePrimary   = "primary"
	RoleSecondary = "secondary"
	RoleDiscarded = "discarded"
	RoleHolders   = "holders"
	RoleMetadata  = "metadata"
)

// ChainProviders is the provider wiring for one chain. Bonding and Metadata
// may be nil.
type ChainProviders struct {
	Market   providers.MarketDataProvider
	Bonding  providers.BondingCurveProvider
	Holders  []providers.HolderProvider
	Metadata providers.MetadataProvider
}

type Service struct {
	chains  map[string]ChainProviders
	now     func() time.Time
	timeout time.Duration
}

func NewService(chains map[string]ChainProviders, timeout time.Duration) *Service {
	return &Service{chains: chains, now: time.Now, timeout: timeout}
}

// WithClock replaces the clock used for token age.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

type statusLog struct {
	mu       sync.Mutex
	statuses []model.ProviderStatus
	warnings []string
}

func (l *statusLog) record(name, role string, started time.Time, err error) {
	status := model.StatusOK
	switch {
	case err == nil:
	case providers.IsNotAvailable(err):
		status = model.StatusNotFound
	case clierr.CodeOf(err) == clierr.CodeUnavailable || clierr.CodeOf(err) == clierr.CodeRateLimited:
		status = model.StatusUnavailable
	default:
		status = model.StatusError
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, model.ProviderStatus{
		Name:      name,
		Role:      role,
		Status:    status,
		LatencyMS: time.Since(started).Milliseconds(),
	})
	if err != nil && !providers.IsNotAvailable(err) {
		log.Warn().Str("provider", name).Str("role", role).Err(err).Msg("provider call failed")
		l.warnings = append(l.warnings, fmt.Sprintf("%s: %s", name, errMessage(err)))
	}
}

func (l *statusLog) setRole(name, role string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.statuses {
		if l.statuses[i].Name == name && l.statuses[i].Role != RoleHolders {
			l.statuses[i].Role = role
		}
	}
}

var roleOrder = map[string]int{RolePrimary: 0, RoleSecondary: 1, RoleDiscarded: 2, RoleHolders: 3, RoleMetadata: 4}

// snapshot returns statuses in a stable order.
func (l *statusLog) snapshot() ([]model.ProviderStatus, []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]model.ProviderStatus(nil), l.statuses...)
	sort.SliceStable(out, func(i, j int) bool {
		if roleOrder[out[i].Role] != roleOrder[out[j].Role] {
			return roleOrder[out[i].Role] < roleOrder[out[j].Role]
		}
		return out[i].Name < out[j].Name
	})
	warnings := append([]string(nil), l.warnings...)
	sort.Strings(warnings)
	return out, warnings
}

func errMessage(err error) string {
	if cErr, ok := clierr.As(err); ok {
		return cErr.Message
	}
	return err.Error()
}

// Analyze validates the address, then runs the bonding probe, the market
// lookup and the holder analysis concurrently. The address is checked
// before any provider is touched.
func (s *Service) Analyze(ctx context.Context, chainInput, address string) (model.Analysis, error) {
	token, err := id.Parse(chainInput, address)
	if err != nil {
		return model.Analysis{}, err
	}
	cp, ok := s.chains[token.Chain.Slug]
	if !ok || cp.Market == nil {
		return model.Analysis{}, clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no providers configured for chain %s", token.Chain.Slug))
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	logger := log.With().Str("chain", token.Chain.Slug).Str("token", token.Address).Logger()

	var (
		statuses  statusLog
		probe     BondingProbe
		market    *model.ProviderRecord
		marketErr error
		holderRes *model.HolderAnalysis
		holderErr error
		g         errgroup.Group
	)
	if cp.Bonding != nil {
		g.Go(func() error {
			started := time.Now()
			probe.Record, probe.Err = cp.Bonding.BondingProgress(ctx, token)
			statuses.record(cp.Bonding.Info().Name, RoleSecondary, started, probe.Err)
			return nil
		})
	}
	// The market lookup runs speculatively and is discarded when the bonding
	// curve turns out to be authoritative.
	g.Go(func() error {
		started := time.Now()
		market, marketErr = cp.Market.TokenMarket(ctx, token)
		statuses.record(cp.Market.Info().Name, RolePrimary, started, marketErr)
		return nil
	})
	g.Go(func() error {
		holderRes, holderErr = s.analyzeHolders(ctx, cp.Holders, token, &statuses)
		return nil
	})
	_ = g.Wait()

	cls := Classify(probe)
	logger.Debug().Str("state", string(cls.State)).Bool("bonding_primary", cls.BondingPrimary).Bool("override", cls.OverrideApplied).Msg("classified")

	analysis := model.Analysis{
		Contract:  token.Address,
		Chain:     token.Chain.Display,
		Holders:   holderRes,
		HolderErr: holderErr,
	}

	var primary, secondary *model.ProviderRecord
	if cls.BondingPrimary {
		primary = cls.Record
		statuses.setRole(cp.Bonding.Info().Name, RolePrimary)
		statuses.setRole(cp.Market.Info().Name, RoleDiscarded)
	} else {
		if marketErr != nil || market == nil {
			analysis.NotFound = true
			analysis.Providers, analysis.Warnings = statuses.snapshot()
			return analysis, nil
		}
		primary, secondary = market, cls.Record
	}

	rec := Merge(primary, secondary)
	rec.Contract = token.Address
	rec.Chain = token.Chain.Display
	rec.State = cls.State
	rec.OverrideApplied = cls.OverrideApplied
	if cls.Record != nil {
		rec.Ecosystem = cls.Record.Source
		rec.BondingProgress = cls.Record.Progress
		rec.Completed = cls.Record.Completed
	}
	rec.AgeMinutes = AgeMinutes(rec, s.now())

	if (rec.Name == "" || rec.Symbol == "") && cp.Metadata != nil {
		started := time.Now()
		meta, err := cp.Metadata.TokenMetadata(ctx, token)
		statuses.record(cp.Metadata.Info().Name, RoleMetadata, started, err)
		if err == nil {
			rec.Name = model.FirstString(rec.Name, meta.Name)
			rec.Symbol = model.FirstString(rec.Symbol, meta.Symbol)
		}
	}
	rec.Name = model.FirstString(strings.TrimSpace(rec.Name), model.UnknownTokenName)
	rec.Symbol = model.FirstString(strings.TrimSpace(rec.Symbol), model.UnknownTokenSymbol)

	analysis.Record = rec
	analysis.Providers, analysis.Warnings = statuses.snapshot()
	return analysis, nil
}

// analyzeHolders walks the holder providers in order. It advances past
// degraded answers and definitive errors, and stops on a transient error.
// The best degraded answer is kept when no provider does better.
func (s *Service) analyzeHolders(ctx context.Context, list []providers.HolderProvider, token id.TokenAddress, statuses *statusLog) (*model.HolderAnalysis, error) {
	var (
		best    *model.HolderAnalysis
		lastErr error
	)
	for _, p := range list {
		started := time.Now()
		res, err := p.Holders(ctx, token)
		statuses.record(p.Info().Name, RoleHolders, started, err)
		if err != nil {
			lastErr = err
			if providers.AdvancesFallback(err) {
				continue
			}
			break
		}
		if res == nil {
			continue
		}
		if res.DataQuality != model.QualityError && res.DataQuality != model.QualityLimited {
			return res, nil
		}
		if best == nil || (best.DataQuality == model.QualityError && res.DataQuality == model.QualityLimited) {
			best = res
		}
	}
	if best != nil {
		return best, nil
	}
	if lastErr == nil {
		lastErr = providers.ErrNotAvailable
	}
	return nil, lastErr
}
