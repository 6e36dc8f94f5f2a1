// Package server exposes the reconciliation operations over HTTP
package server

import (
	"context"
	"net/http"
	"time"

	"statement-reconciliation/internal/reconciler"
	apperrors "statement-reconciliation/pkg/errors"
	"statement-reconciliation/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Server wraps a gin engine around the reconciliation service
type Server struct {
	service *reconciler.Service
	logger  logger.Logger
	engine  *gin.Engine
}

// New creates a server for the given service
func New(service *reconciler.Service, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		service: service,
		logger:  log.WithComponent("http"),
		engine:  engine,
	}
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the context is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api/v1")
	{
		api.POST("/statements/:id/recompute", s.recompute)
		api.GET("/statements/:id/variance", s.variance)
		api.GET("/statements/:id/export", s.export)
		api.POST("/statements/:id/signoff", s.signOff)

		api.POST("/matches", s.createManualMatch)
		api.POST("/matches/:id/confirm", s.confirmMatch)
		api.POST("/matches/:id/reject", s.rejectMatch)

		api.POST("/issues/:id/resolve", s.resolveIssue)
		api.POST("/lines/:id/dispute", s.disputeLine)
	}
}

// respondError maps the error taxonomy to HTTP status codes. Conflicts get
// 409 so clients know a retry of the whole read-decide-write cycle may
// succeed; gate failures get 422 since retrying verbatim never will.
func (s *Server) respondError(c *gin.Context, err error) {
	recErr, ok := apperrors.AsReconcilerError(err)
	if !ok {
		s.logger.WithError(err).Error("Unclassified error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	var status int
	switch recErr.Category {
	case apperrors.CategoryValidation:
		status = http.StatusBadRequest
	case apperrors.CategoryNotFound:
		status = http.StatusNotFound
	case apperrors.CategoryPrecondition, apperrors.CategoryConflict:
		status = http.StatusConflict
	case apperrors.CategoryGate:
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		s.logger.WithError(err).Error("Request failed")
	}

	c.JSON(status, gin.H{
		"error":   recErr.Message,
		"code":    recErr.Code,
		"context": recErr.Context,
	})
}
