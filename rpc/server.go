package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nhbvault/core/types"
	"nhbvault/crypto"
	"nhbvault/indexer"
	"nhbvault/native/vault"
	"nhbvault/observability"
)

const (
	maxRequestBytes = 1 << 20
	requestIDHeader = "X-Request-ID"
	checksumHeader  = "X-Checksum-SHA256"
	shutdownTimeout = 10 * time.Second
)

// EventQuerier answers history queries against the event journal.
type EventQuerier interface {
	Recent(ctx context.Context, q indexer.Query) ([]indexer.Record, error)
}

// DevBank is the faucet surface of the in-memory custody bank.
type DevBank interface {
	Mint(kind types.AssetKind, to crypto.Address, amount *uint256.Int) error
	Approve(owner crypto.Address, amount *uint256.Int) error
	BalanceOf(kind types.AssetKind, owner crypto.Address) *uint256.Int
	Allowance(owner crypto.Address) *uint256.Int
}

// Config wires the server to its collaborators. Only Engine is required.
type Config struct {
	Engine      *vault.Engine
	Journal     EventQuerier
	DevBank     DevBank
	Nonces      *NonceBook
	Auth        *Authenticator
	RateLimiter *RateLimiter
	Hub         *Hub
	Logger      *slog.Logger
	ServiceName string
	// OriginPatterns is passed to the websocket handshake. Empty restricts
	// the stream to same-origin clients.
	OriginPatterns []string
}

// Server exposes the vault over HTTP. Calls execute one at a time.
type Server struct {
	cfg    Config
	engine *vault.Engine
	nonces *NonceBook
	hub    *Hub
	logger *slog.Logger

	execMu sync.Mutex
	router http.Handler
}

// NewServer builds the router.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("rpc: engine required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "vaultd"
	}
	if cfg.Nonces == nil {
		cfg.Nonces = NewNonceBook(nil)
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(cfg.Logger)
	}
	srv := &Server{
		cfg:    cfg,
		engine: cfg.Engine,
		nonces: cfg.Nonces,
		hub:    cfg.Hub,
		logger: cfg.Logger.With("component", "rpc"),
	}
	srv.router = otelhttp.NewHandler(srv.buildRouter(), cfg.ServiceName)
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub so it can be registered as an event emitter.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe serves on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", "addr", addr)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.cfg.RateLimiter.Middleware)
		api.Group(func(write chi.Router) {
			write.Use(s.cfg.Auth.Middleware(ScopeWrite))
			write.Post("/call", s.handleCall)
			if s.cfg.DevBank != nil {
				write.Post("/dev/mint", s.handleDevMint)
				write.Post("/dev/approve", s.handleDevApprove)
			}
		})
		api.Group(func(read chi.Router) {
			read.Use(s.cfg.Auth.Middleware(ScopeRead))
			read.Get("/accounts/{address}", s.handleAccount)
			read.Get("/totals", s.handleTotals)
			read.Get("/events", s.handleEvents)
			read.Get("/events/export", s.handleEventsExport)
			read.Get("/nonces/{address}", s.handleNonce)
			read.Get("/stream", s.handleStream)
		})
	})
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
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
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		observability.API().Observe(r.Method+" "+route, status, elapsed)
		s.logger.Debug("request served",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
			"request_id", chimw.GetReqID(r.Context()))
	})
}
