// Package api provides the HTTP REST API and WebSocket server for Hearth Core.
//
// It exposes thermostat snapshots and control operations to user interfaces
// (wall panels, mobile apps) and pushes live dispatch events over WebSocket.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hearthctl/hearth-core/internal/audit"
	"github.com/hearthctl/hearth-core/internal/auth"
	"github.com/hearthctl/hearth-core/internal/dispatch"
	"github.com/hearthctl/hearth-core/internal/infrastructure/config"
	"github.com/hearthctl/hearth-core/internal/infrastructure/logging"
	"github.com/hearthctl/hearth-core/internal/thermostat"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Repo     thermostat.Repository
	Users    auth.UserRepository
	Engine   *dispatch.Engine
	Audit    audit.Repository // optional: audit list endpoint disabled when nil

	// Hysteresis is the dead band the dispatch engine runs with; the room
	// controller here shares it so forced and automatic decisions agree.
	Hysteresis float64

	// ForceDuration is the default length of a manual room override when the
	// PATCH request does not specify one.
	ForceDuration time.Duration

	// RequestTimeout bounds the dispatch cycle a request triggers. Shorter
	// than the background ticker's timeout since a caller is waiting.
	RequestTimeout time.Duration

	ExternalHub *Hub // if set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for Hearth Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	repo      thermostat.Repository
	users     auth.UserRepository
	engine    *dispatch.Engine
	auditRepo audit.Repository

	// controller enforces room-override rules for PATCH requests.
	controller *thermostat.Controller

	forceDuration  time.Duration
	requestTimeout time.Duration

	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	tickets     *ticketStore       // pending WebSocket authentication tickets
	cancel      context.CancelFunc // cancels background goroutines on Close()
	version     string
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Repo == nil {
		return nil, fmt.Errorf("thermostat repository is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("dispatch engine is required")
	}

	forceDuration := deps.ForceDuration
	if forceDuration <= 0 {
		forceDuration = 30 * time.Minute
	}
	requestTimeout := deps.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}

	s := &Server{
		cfg:            deps.Config,
		wsCfg:          deps.WS,
		secCfg:         deps.Security,
		logger:         deps.Logger,
		repo:           deps.Repo,
		users:          deps.Users,
		engine:         deps.Engine,
		auditRepo:      deps.Audit,
		controller:     thermostat.NewController(deps.Hysteresis),
		forceDuration:  forceDuration,
		requestTimeout: requestTimeout,
		tickets:        newTicketStore(),
		version:        deps.Version,
	}

	// Use an externally-provided hub if available (needed when the dispatch
	// engine also requires the hub for WebSocket broadcasting).
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and ticket cleanup, and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Create WebSocket hub (unless one was injected externally)
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	// Periodic ticket cleanup
	go s.tickets.cleanLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// Hub returns the server's WebSocket hub (nil before Start unless injected).
func (s *Server) Hub() *Hub {
	return s.hub
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
