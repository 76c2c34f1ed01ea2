// Package server exposes the voice-clone service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/preset"
	"github.com/book-expert/voice-clone-service/internal/profile"
	"github.com/book-expert/voice-clone-service/internal/synth"
)

const (
	corsMaxAge              = 12 * time.Hour
	readHeaderTimeout       = 10 * time.Second
	shutdownGracePeriod     = 10 * time.Second
	maxUploadBytes    int64 = 100 << 20
)

// Synthesizer runs one synthesis job to completion.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synth.Request) (*synth.Result, error)
}

// Transcoder converts uploaded media into canonical reference audio.
type Transcoder interface {
	Normalize(ctx context.Context, inputPath, outputPath string, start, duration float64) error
}

// ModelStatus reports the generative model's load state for health checks.
type ModelStatus interface {
	Loaded() bool
	Device() string
	MemoryUsedGB() float64
}

// Gin mode is process-global; set it exactly once even when tests build
// several servers concurrently.
var setReleaseModeOnce sync.Once

// Server wires the HTTP routes to the domain services.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	log         *logger.Logger
	cfg         config.HTTPConfig
	synthesizer Synthesizer
	transcoder  Transcoder
	status      ModelStatus
	profiles    *profile.Store
	pipeline    *preset.Pipeline
	presets     *preset.Cache
}

// New creates a fully routed server.
func New(
	cfg config.HTTPConfig,
	synthesizer Synthesizer,
	transcoder Transcoder,
	status ModelStatus,
	profiles *profile.Store,
	pipeline *preset.Pipeline,
	presets *preset.Cache,
	log *logger.Logger,
) *Server {
	setReleaseModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	srv := &Server{
		router:      gin.New(),
		httpServer:  nil,
		log:         log,
		cfg:         cfg,
		synthesizer: synthesizer,
		transcoder:  transcoder,
		status:      status,
		profiles:    profiles,
		pipeline:    pipeline,
		presets:     presets,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

// Handler exposes the routed engine, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until the context is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		serveErr := s.httpServer.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}

		close(errCh)
	}()

	s.log.Info("HTTP server listening on port %d", s.cfg.Port)

	select {
	case serveErr := <-errCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}

		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	shutdownErr := s.httpServer.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		return fmt.Errorf("http server shutdown failed: %w", shutdownErr)
	}

	return nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.log.Error("Panic recovered: %v", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "internal server error",
		})
	}))

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.allowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           corsMaxAge,
	}))

	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.MaxMultipartMemory = maxUploadBytes
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}

	return s.cfg.AllowedOrigins
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set("requestID", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.log.Info("| %3d | %13v | %15s | %s | %s |",
			c.Writer.Status(),
			time.Since(start),
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// respondError writes the uniform error body.
func (s *Server) respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// mapError classifies a domain error to an HTTP status.
func mapError(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, profile.ErrEmptyName):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, profile.ErrNameCollision):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
