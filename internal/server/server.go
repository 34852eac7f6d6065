// Package server exposes the marketplace over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/server/handler"
	"github.com/alanyoungcy/nftmarket/internal/server/middleware"
	"github.com/alanyoungcy/nftmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables client auth
	OperatorKey string // empty leaves escrow deposits unrouted
	RateLimit   int    // requests per minute per client, 0 disables
	Identity    middleware.IdentityConfig
}

// Handlers aggregates the route handlers. Archives and Escrow may be nil.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Collections *handler.CollectionHandler
	Listings    *handler.ListingHandler
	Offers      *handler.OfferHandler
	Sales       *handler.SaleHandler
	Tokens      *handler.TokenHandler
	Escrow      *handler.EscrowHandler
	Archives    *handler.ArchiveHandler
}

// Guards are the shared stores behind rate limiting and request dedup.
type Guards struct {
	RateLimiter domain.RateLimiter
	Idempotency domain.Deduper
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain:
// CORS, logging, operator auth, wallet identity, rate limit, idempotency.
func NewServer(cfg Config, h Handlers, guards Guards, hub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	Routes(mux, h, hub, cfg.OperatorKey)

	var root http.Handler = mux
	root = middleware.Idempotency(guards.Idempotency, logger)(root)
	root = middleware.RateLimit(guards.RateLimiter, cfg.RateLimit, time.Minute, logger)(root)
	if cfg.Identity.Logger == nil {
		cfg.Identity.Logger = logger
	}
	root = middleware.Identity(cfg.Identity)(root)
	root = middleware.Auth(cfg.APIKey)(root)
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      root,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Routes registers the API on mux. Deposits mint escrow balance, so they are
// routed only behind operatorKey.
func Routes(mux *http.ServeMux, h Handlers, hub *ws.Hub, operatorKey string) {
	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)

	mux.HandleFunc("POST /api/collections", h.Collections.Create)
	mux.HandleFunc("GET /api/collections", h.Collections.List)
	mux.HandleFunc("GET /api/collections/{id}", h.Collections.Get)

	mux.HandleFunc("POST /api/listings", h.Listings.Create)
	mux.HandleFunc("GET /api/listings", h.Listings.List)
	mux.HandleFunc("GET /api/listings/{id}", h.Listings.Get)
	mux.HandleFunc("POST /api/listings/{id}/price", h.Listings.SetPrice)
	mux.HandleFunc("DELETE /api/listings/{id}/price", h.Listings.Delist)
	mux.HandleFunc("POST /api/listings/{id}/buy", h.Listings.Buy)
	mux.HandleFunc("POST /api/listings/{id}/offers", h.Listings.MakeOffer)
	mux.HandleFunc("GET /api/listings/{id}/offers", h.Listings.ListOffers)

	mux.HandleFunc("GET /api/offers/{id}", h.Offers.Get)
	mux.HandleFunc("POST /api/offers/{id}/fill", h.Offers.Fill)
	mux.HandleFunc("POST /api/offers/{id}/cancel", h.Offers.Cancel)

	mux.HandleFunc("GET /api/sales", h.Sales.List)

	mux.HandleFunc("GET /api/tokens/{id}", h.Tokens.Get)
	mux.HandleFunc("POST /api/tokens/{id}/approve", h.Tokens.Approve)
	mux.HandleFunc("POST /api/tokens/approve-all", h.Tokens.ApproveAll)

	if h.Escrow != nil {
		if operatorKey != "" {
			mux.Handle("POST /api/escrow/deposit", middleware.Operator(operatorKey)(http.HandlerFunc(h.Escrow.Deposit)))
		}
		mux.HandleFunc("POST /api/escrow/withdraw", h.Escrow.Withdraw)
		mux.HandleFunc("GET /api/escrow/balances/{address}", h.Escrow.Balance)
	}
	if h.Archives != nil {
		mux.HandleFunc("GET /api/archives", h.Archives.List)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
