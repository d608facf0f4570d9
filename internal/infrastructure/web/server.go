// Package web exposes generation and projects over HTTP: a JSON API, a
// websocket that streams session updates, and an HTML preview endpoint.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/doeshing/oncomn/internal/domain"
	"github.com/doeshing/oncomn/internal/ports"
	"github.com/doeshing/oncomn/internal/session"
)

const shutdownTimeout = 10 * time.Second

// Generator runs generations on behalf of a consumer.
type Generator interface {
	Run(req domain.GenerationRequest, subscribers ...session.Subscriber) (domain.GenerationResponse, error)
	Claim(consumer string) uint64
	Cancel(consumer string) bool
	Forget(consumer string)
	CancelAll()
}

// Server wires the HTTP handlers.
type Server struct {
	generator Generator
	projects  ports.ProjectRepository
	logger    ports.Logger
	newID     func() string
	origins   []string
}

// NewServer creates the HTTP adapter.
func NewServer(generator Generator, projects ports.ProjectRepository, logger ports.Logger) *Server {
	return &Server{
		generator: generator,
		projects:  projects,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// SetAllowedOrigins lists the browser origins, besides the server's own
// host, that may open the websocket. "*" allows any origin. Call it before
// Router or Serve.
func (s *Server) SetAllowedOrigins(origins []string) {
	s.origins = append([]string(nil), origins...)
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.loggingMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api")
	api.POST("/generate", s.generate)
	api.GET("/ws/generate", s.streamGenerate)

	api.GET("/projects", s.listProjects)
	api.POST("/projects", s.createProject)
	api.GET("/projects/:id", s.getProject)
	api.DELETE("/projects/:id", s.deleteProject)
	api.GET("/projects/:id/preview", s.previewProject)

	return router
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully
// after cancelling every live generation.
func (s *Server) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", map[string]interface{}{"addr": addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server", nil)
	s.generator.CancelAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// loggingMiddleware writes one structured line per request.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Warn("request failed", fields)
			return
		}
		s.logger.Debug("request served", fields)
	}
}
