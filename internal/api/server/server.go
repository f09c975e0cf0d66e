package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/feral-file/ff-collection-bridge/internal/api/middleware"
	"github.com/feral-file/ff-collection-bridge/internal/api/rest"
	"github.com/feral-file/ff-collection-bridge/internal/devnet"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
	"github.com/feral-file/ff-collection-bridge/internal/relay"
	"github.com/feral-file/ff-collection-bridge/internal/store"
)

// Config holds the server configuration
type Config struct {
	Debug          bool
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	Auth           middleware.AuthConfig
	RedeliverLimit int
}

// Server serves the REST API of a devnet
type Server struct {
	config     Config
	network    *devnet.Network
	store      store.Store
	relay      relay.Relay
	httpServer *http.Server
}

func New(cfg Config, network *devnet.Network, st store.Store, r relay.Relay) *Server {
	return &Server{
		config:  cfg,
		network: network,
		store:   st,
		relay:   r,
	}
}

// Router builds the gin engine: request ids, panic recovery, access logs and
// CORS on every route, auth on the routes that send transactions
func (s *Server) Router() (*gin.Engine, error) {
	mode := gin.ReleaseMode
	if s.config.Debug {
		mode = gin.DebugMode
	}
	gin.SetMode(mode)

	authenticator, err := middleware.NewAuthenticator(s.config.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.SetupCORS(),
	)
	rest.SetupRoutes(router, rest.NewHandler(s.network, s.store, s.relay, s.config.RedeliverLimit), authenticator.Auth())

	return router, nil
}

// Start serves the API until Shutdown is called
func (s *Server) Start() error {
	router, err := s.Router()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port)),
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	logger.Info("Serving API", zap.String("address", s.httpServer.Addr))

	err = s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("failed to start server: %w", err)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	logger.Info("Shutting down API server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
