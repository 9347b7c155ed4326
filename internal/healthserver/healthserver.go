// Package healthserver exposes the engine's own liveness/readiness HTTP
// surface (§6): GET /, /ready, /live. Built on github.com/gin-gonic/gin,
// grounded on the teacher's internal/server package (gin.New, gin.Logger,
// gin.Recovery, http.Server wrapping) and on its health_handlers.go for the
// aggregate-dependency-check shape, adapted from a raw net/http handler to
// gin's Context and from database/storage checks to repository/progress
// store checks.
package healthserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Pinger is satisfied by any dependency the readiness check needs to reach.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps the health-check HTTP surface.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	repo       Pinger
	progress   Pinger
	logger     *logrus.Logger
}

// Status is the JSON body returned by every endpoint.
type Status struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// New constructs a Server bound to addr, checking repo and progress for
// readiness.
func New(addr string, repo, progress Pinger, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{repo: repo, progress: progress, logger: logger, engine: engine}
	engine.GET("/", s.handleRoot)
	engine.GET("/live", s.handleLive)
	engine.GET("/ready", s.handleReady)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("healthserver: listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, Status{Status: "ok", Timestamp: time.Now()})
}

// handleLive reports process liveness only — it never touches a dependency,
// so it stays up even while the repository or progress store is unreachable.
func (s *Server) handleLive(c *gin.Context) {
	c.JSON(http.StatusOK, Status{Status: "alive", Timestamp: time.Now()})
}

// handleReady aggregates repository and progress-store reachability, the
// same way the teacher's handleHealthCheck aggregates database/storage
// health.
func (s *Server) handleReady(c *gin.Context) {
	checks := make(map[string]string, 2)
	status := "ready"

	if err := s.repo.Ping(c.Request.Context()); err != nil {
		checks["repository"] = err.Error()
		status = "not_ready"
	} else {
		checks["repository"] = "ok"
	}

	if err := s.progress.Ping(c.Request.Context()); err != nil {
		checks["progress"] = err.Error()
		status = "not_ready"
	} else {
		checks["progress"] = "ok"
	}

	body := Status{Status: status, Timestamp: time.Now(), Checks: checks}
	if status != "ready" {
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
