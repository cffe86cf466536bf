// Package server exposes token analysis over HTTP. Responses use the same
// shapes as the CLI data payload, wrapped in {success, data}.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/ggonzalez94/token-intel/internal/cache"
	clierr "github.com/ggonzalez94/token-intel/internal/errors"
	"github.com/ggonzalez94/token-intel/internal/id"
	"github.com/ggonzalez94/token-intel/internal/model"
	"github.com/ggonzalez94/token-intel/internal/report"
	"github.com/ggonzalez94/token-intel/internal/version"
)

const (
	analyzePath     = "/api/token-intel"
	defaultChain    = "solana"
	cacheCommand    = "token analyze"
	internalMessage = "internal error"
	shutdownTimeout = 10 * time.Second
)

// Analyzer runs one token analysis.
type Analyzer interface {
	Analyze(ctx context.Context, chain, address string) (model.Analysis, error)
}

type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	CacheTTL          time.Duration
	MaxStale          time.Duration
	// ChainCheck rejects chains whose required credentials are missing.
	ChainCheck func(chain string) error
}

type Server struct {
	analyzer  Analyzer
	formatter report.Formatter
	cache     cache.Backend
	cfg       Config
	engine    *gin.Engine
}

type analyzeRequest struct {
	TokenAddress string `json:"tokenAddress" form:"address" binding:"required"`
	Chain        string `json:"chain" form:"chain" binding:"omitempty,chain"`
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// errorBody always names the token the request was about, even when the
// address failed validation.
type errorBody struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Contract string `json:"contract"`
	Chain    string `json:"chain"`
}

var registerOnce sync.Once

func registerValidations() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("chain", func(fl validator.FieldLevel) bool {
			_, err := id.ParseChain(fl.Field().String())
			return err == nil
		})
	})
}

// New builds the router. backend may be nil to disable caching.
func New(analyzer Analyzer, formatter report.Formatter, backend cache.Backend, cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	registerValidations()
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}

	s := &Server{analyzer: analyzer, formatter: formatter, cache: backend, cfg: cfg}
	engine := gin.New()
	engine.Use(requestID(), requestLogger(), gin.CustomRecovery(recoverInternal))
	engine.GET("/healthz", s.health)
	engine.POST(analyzePath, s.analyzeJSON)
	engine.GET(analyzePath, s.analyzeQuery)
	s.engine = engine
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return clierr.Wrap(clierr.CodeInternal, "start http server", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return clierr.Wrap(clierr.CodeInternal, "shutdown http server", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.CLIVersion})
}

func (s *Server) analyzeJSON(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, req.errorBody(bindMessage(err)))
		return
	}
	s.analyze(c, req)
}

func (s *Server) analyzeQuery(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, req.errorBody(bindMessage(err)))
		return
	}
	s.analyze(c, req)
}

func (s *Server) analyze(c *gin.Context, req analyzeRequest) {
	token, err := id.Parse(req.chain(), req.TokenAddress)
	if err != nil {
		s.fail(c, err, req.errorBody(""))
		return
	}
	failed := errorBody{Contract: token.Address, Chain: token.Chain.Display}
	if s.cfg.ChainCheck != nil {
		if err := s.cfg.ChainCheck(token.Chain.Slug); err != nil {
			log.Warn().Err(err).Str("chain", token.Chain.Slug).Msg("chain not configured")
			failed.Error = "chain " + token.Chain.Slug + " is not configured"
			c.JSON(http.StatusServiceUnavailable, failed)
			return
		}
	}

	ctx := c.Request.Context()
	key := cache.Key(cacheCommand, token.Chain.Slug, token.Address)
	var stale *cache.Result
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key, s.cfg.MaxStale)
		if err != nil {
			log.Warn().Err(err).Msg("cache read failed")
		} else if cached.Hit && !cached.Stale {
			c.Header("X-Cache", "hit")
			c.JSON(http.StatusOK, envelope{Success: true, Data: json.RawMessage(cached.Value)})
			return
		} else if cached.Hit && !cached.TooStale {
			stale = &cached
		}
	}

	analysis, err := s.analyzer.Analyze(ctx, token.Chain.Slug, token.Address)
	if err != nil {
		if stale != nil && staleAllowed(err) {
			c.Header("X-Cache", "stale")
			c.JSON(http.StatusOK, envelope{Success: true, Data: json.RawMessage(stale.Value)})
			return
		}
		s.fail(c, err, failed)
		return
	}

	resp := s.formatter.Format(analysis)
	payload, err := json.Marshal(resp)
	if err != nil {
		s.fail(c, clierr.Wrap(clierr.CodeInternal, "encode response", err), failed)
		return
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, payload, s.cfg.CacheTTL); err != nil {
			log.Warn().Err(err).Msg("cache write failed")
		}
	}
	c.Header("X-Cache", "miss")
	c.JSON(http.StatusOK, envelope{Success: true, Data: json.RawMessage(payload)})
}

// fail writes an error body. Internal errors never leak their detail.
func (s *Server) fail(c *gin.Context, err error, body errorBody) {
	status := clierr.HTTPStatus(err)
	body.Error = internalMessage
	if status != http.StatusInternalServerError {
		if cErr, ok := clierr.As(err); ok {
			body.Error = cErr.Message
		}
	} else {
		log.Error().Err(err).Str("request_id", c.GetString(requestIDKey)).Msg("analyze failed")
	}
	c.JSON(status, body)
}

func (r analyzeRequest) chain() string {
	if chain := strings.TrimSpace(r.Chain); chain != "" {
		return chain
	}
	return defaultChain
}

// errorBody echoes the request as given, using the chain's display label
// when the chain itself is known.
func (r analyzeRequest) errorBody(message string) errorBody {
	body := errorBody{Error: message, Contract: strings.TrimSpace(r.TokenAddress), Chain: r.chain()}
	if chain, err := id.ParseChain(body.Chain); err == nil {
		body.Chain = chain.Display
	}
	return body
}

func staleAllowed(err error) bool {
	switch clierr.CodeOf(err) {
	case clierr.CodeUnavailable, clierr.CodeRateLimited:
		return true
	default:
		return false
	}
}

func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return "tokenAddress is required"
		case "chain":
			return "unsupported chain: " + fe.Value().(string)
		}
	}
	return "invalid request body"
}
