// Package server exposes projected Odoo records over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ilcreatore32/odoograph"
	"github.com/ilcreatore32/odoograph/projector"
)

// Backend is the part of *odoograph.Client the server calls.
type Backend interface {
	SearchRead(ctx context.Context, model odoograph.Model, domain odoograph.Domain, fields odoograph.Fields, options ...*odoograph.Options) ([]map[string]any, error)
	SearchCount(ctx context.Context, model odoograph.Model, domain odoograph.Domain, options ...*odoograph.Options) (int64, error)
	Call(ctx context.Context, model odoograph.Model, method string, args []any, kwargs map[string]any) (any, error)
}

// Server serves the records API.
type Server struct {
	backend      Backend
	projector    *projector.Projector
	defaultDepth int
	maxDepth     int
	projections  map[string]projector.Projection
	logger       *zap.Logger
	engine       *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithDepth sets the depth used when a request names none and the highest
// depth a request may ask for.
func WithDepth(defaultDepth, maxDepth int) Option {
	return func(s *Server) {
		s.defaultDepth = defaultDepth
		s.maxDepth = maxDepth
	}
}

// WithDefaultProjections sets per-model projections used when a request
// does not pass fields.
func WithDefaultProjections(p map[string]projector.Projection) Option {
	return func(s *Server) {
		s.projections = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New builds the router.
func New(backend Backend, p *projector.Projector, opts ...Option) *Server {
	s := &Server{
		backend:      backend,
		projector:    p,
		defaultDepth: 1,
		maxDepth:     4,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger(), metricsMiddleware())
	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/api/v1")
	{
		records := v1.Group("/records")
		{
			records.GET("/:model", s.handleList)
			records.GET("/:model/:id", s.handleDetail)
		}
		v1.POST("/call", s.handleCall)
	}
	s.engine = engine
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then drains in-flight requests for
// up to ten seconds.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Error("HTTP request failed", fields...)
			return
		}
		s.logger.Debug("HTTP request served", fields...)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
