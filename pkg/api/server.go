package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paystream-hq/paystreamer/pkg/engine"
	"github.com/paystream-hq/paystreamer/pkg/indexer"
	"github.com/paystream-hq/paystreamer/pkg/keeper"
	"github.com/paystream-hq/paystreamer/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the API server settings.
type Config struct {
	Port          string
	MetricsAPIKey string
	// OwnerAPIKey guards the owner-only routes (create and cancel). Empty
	// leaves them open; real caller authentication belongs to whatever
	// fronts this service, this is only the seam for it. The keeper trigger
	// routes stay unguarded: they are permissionless by design.
	OwnerAPIKey string
}

// Server exposes the scheduler over HTTP: the wallet-facing intent
// operations, the keeper trigger surface, history queries and operational
// endpoints.
type Server struct {
	engine  *engine.Engine
	keeper  *keeper.Service
	indexer *indexer.Indexer
	config  Config
	logger  logger.Logger
	httpSrv *http.Server
	started time.Time
}

// NewServer wires the HTTP surface. The indexer may be nil; history
// endpoints then return 503.
func NewServer(eng *engine.Engine, kp *keeper.Service, ix *indexer.Indexer, cfg Config, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Server{
		engine:  eng,
		keeper:  kp,
		indexer: ix,
		config:  cfg,
		logger:  log,
	}
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	router := s.buildRouter()

	s.started = time.Now()
	s.httpSrv = &http.Server{
		Addr:              ":" + s.config.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoWith(logger.API, "API server listening on port %s", s.config.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.GET("/ready", s.handleReady)
	router.GET("/status", s.handleStatus)
	router.GET("/metrics", s.metricsAuth(), gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/intents", s.ownerAuth(), s.handleCreateIntent)
		v1.GET("/intents", s.handleListIntents)
		v1.GET("/intents/:id", s.handleGetIntent)
		v1.DELETE("/intents/:id", s.ownerAuth(), s.handleCancelIntent)
		v1.GET("/intents/:id/executions", s.handleExecutions)
		v1.GET("/check", s.handleCheck)
		v1.POST("/perform", s.handlePerform)
		v1.GET("/wallets/:address/committed", s.handleCommitted)
	}

	return router
}

// ownerAuth guards the owner-only routes with a bearer token when one is
// configured.
func (s *Server) ownerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.config.OwnerAPIKey == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+s.config.OwnerAPIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// metricsAuth guards /metrics with a bearer token when one is configured.
func (s *Server) metricsAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.config.MetricsAPIKey == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+s.config.MetricsAPIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleStatus(c *gin.Context) {
	breakers := gin.H{}
	if s.keeper != nil {
		for wallet, cb := range s.keeper.Breakers() {
			failureCount, lastFailure, window, threshold := cb.GetState()
			breakers[wallet.Hex()] = gin.H{
				"open":          cb.IsOpen(),
				"failure_count": failureCount,
				"last_failure":  lastFailure,
				"window":        window.String(),
				"threshold":     threshold,
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"uptime":             time.Since(s.started).String(),
		"registered_wallets": s.engine.Registry().Count(),
		"active_intents":     s.engine.Store().ActiveCount(),
		"circuit_breakers":   breakers,
	})
}
