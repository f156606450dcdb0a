package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lpstaking/crypto"
	"lpstaking/native/lpstake"
	"lpstaking/observability"
	"lpstaking/services/lpstake/indexer"
)

// Backend is the ledger the API drives. *lpstake.Processor satisfies it.
type Backend interface {
	Execute(ctx context.Context, ins lpstake.Instruction) (*lpstake.Receipt, error)
	Pool(addr crypto.Address) (*lpstake.PoolState, error)
	Pools() ([]*lpstake.PoolState, error)
	Rewards(pool crypto.Address) (*lpstake.RewardConfig, error)
	Position(owner, pool crypto.Address) (*lpstake.UserPosition, error)
	Positions(pool crypto.Address) ([]*lpstake.UserPosition, error)
	Vault(pool crypto.Address) (*lpstake.VaultState, error)
	Decimals(asset string) (uint8, error)
}

// History serves indexed events.
type History interface {
	List(ctx context.Context, f indexer.Filter) ([]indexer.EventRecord, error)
}

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	CertFile      string
	KeyFile       string
	Accounts      []Account
	RateLimit     RateLimit

	// ShutdownTimeout bounds graceful shutdown. Zero means five seconds.
	ShutdownTimeout time.Duration
}

// Server exposes the pool ledger over HTTP.
type Server struct {
	cfg     Config
	backend Backend
	history History
	stream  http.Handler
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
	handler http.Handler
}

// Option customises a Server.
type Option func(*Server)

// WithHistory enables the events endpoint.
func WithHistory(h History) Option { return func(s *Server) { s.history = h } }

// WithStream mounts a websocket handler at /v1/stream.
func WithStream(h http.Handler) Option { return func(s *Server) { s.stream = h } }

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs the server and its router.
func New(cfg Config, backend Backend, opts ...Option) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	auth, err := NewAuthenticator(cfg.Accounts)
	if err != nil {
		return nil, fmt.Errorf("configure auth: %w", err)
	}
	srv := &Server{
		cfg:     cfg,
		backend: backend,
		auth:    auth,
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	srv.handler = otelhttp.NewHandler(srv.routes(), "lpstake.api")
	return srv, nil
}

// Handler exposes the configured HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		if s.stream != nil {
			v1.Handle("/stream", s.stream)
		}
		v1.Group(func(api chi.Router) {
			api.Use(s.auth.Middleware)
			api.Use(s.limiter.Middleware)

			api.Get("/pools", s.handleListPools)
			api.Post("/pools", s.handleInitialize)
			api.Route("/pools/{pool}", func(pool chi.Router) {
				pool.Get("/", s.handleGetPool)
				pool.Get("/vault", s.handleGetVault)
				pool.Get("/positions", s.handleListPositions)
				pool.Get("/positions/{owner}", s.handleGetPosition)
				pool.Get("/events", s.handleListEvents)

				pool.Post("/deposit", s.amountInstruction(lpstake.KindDeposit))
				pool.Post("/withdraw", s.amountInstruction(lpstake.KindWithdraw))
				pool.Post("/stake", s.amountInstruction(lpstake.KindStake))
				pool.Post("/unstake", s.amountInstruction(lpstake.KindUnstake))
				pool.Post("/fund", s.amountInstruction(lpstake.KindFundVault))
				pool.Post("/claim", s.handleClaim)
				pool.Post("/emission", s.handleUpdateEmission)
				pool.Post("/pause", s.handleSetPaused)
			})
		})
	})
	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", slog.String("addr", s.cfg.ListenAddress))
	var err error
	if strings.TrimSpace(s.cfg.CertFile) != "" {
		err = srv.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

// requestID assigns a UUID request ID unless the client supplied one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(chimw.RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(chimw.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), chimw.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.ModuleMetrics().Observe(route, r.Method, status, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
