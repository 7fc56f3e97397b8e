// Package api exposes the statement intelligence service over HTTP.
package api

import (
	"context"

	"statement-intel-service/internal/service"
	"statement-intel-service/pkg/errors"
	"statement-intel-service/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Addr is the listen address, host:port.
	Addr string `json:"addr"`

	// JWTSecret signs and verifies bearer tokens. When empty, authentication
	// is disabled; intended only for local development.
	JWTSecret string `json:"-"`

	// MaxUploadBytes caps the total multipart upload size per request.
	MaxUploadBytes int `json:"max_upload_bytes"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:           ":8080",
		MaxUploadBytes: 64 << 20,
	}
}

// Validate checks if the server configuration is valid.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.ConfigurationError("addr", c.Addr, nil)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.ConfigurationError("max_upload_bytes", c.MaxUploadBytes, nil)
	}
	return nil
}

// Server is the HTTP front end for the analysis service.
type Server struct {
	config  *Config
	app     *fiber.App
	service *service.AnalysisService
	logger  logger.Logger
}

// NewServer builds the fiber application and registers all routes.
func NewServer(config *Config, svc *service.AnalysisService) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Server{
		config:  config,
		service: svc,
		logger:  logger.GetGlobalLogger().WithComponent("api"),
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "statement-intel-service",
		BodyLimit:    config.MaxUploadBytes,
		ErrorHandler: s.errorHandler,
	})

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Use(s.requestLogger())

	s.app.Get("/healthz", s.handleHealth)

	v1 := s.app.Group("/v1")
	if s.config.JWTSecret != "" {
		v1.Use(s.requireBearerToken())
	}

	v1.Post("/opportunities/:opportunityID/statements", s.handleIngestStatements)
	v1.Post("/opportunities/:opportunityID/patterns/detect", s.handleDetectPatterns)
	v1.Get("/opportunities/:opportunityID/analysis", s.handleGetAnalysis)
	v1.Get("/opportunities/:opportunityID/transactions", s.handleListTransactions)
	v1.Get("/opportunities/:opportunityID/patterns", s.handleListPatterns)
	v1.Patch("/patterns/:patternID", s.handleUpdatePattern)
}

// Listen starts serving on the configured address and blocks.
func (s *Server) Listen() error {
	s.logger.WithField("addr", s.config.Addr).Info("http server listening")
	return s.app.Listen(s.config.Addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// errorResponse is the JSON error body returned for every failure.
type errorResponse struct {
	Category   errors.Category `json:"category"`
	Code       errors.Code     `json:"code"`
	Message    string          `json:"message"`
	Suggestion string          `json:"suggestion,omitempty"`
}

// errorHandler maps application error categories onto HTTP status codes.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	if fiberErr, ok := err.(*fiber.Error); ok {
		return c.Status(fiberErr.Code).JSON(errorResponse{
			Category: errors.CategoryProcessing,
			Code:     errors.CodeUnexpected,
			Message:  fiberErr.Message,
		})
	}

	appErr, ok := errors.AsError(err)
	if !ok {
		appErr = errors.Wrap(err, errors.CategoryProcessing, errors.CodeUnexpected, "internal error")
	}

	status := fiber.StatusInternalServerError
	switch appErr.Category {
	case errors.CategoryValidation:
		status = fiber.StatusBadRequest
	case errors.CategoryExtraction:
		status = fiber.StatusUnprocessableEntity
	case errors.CategoryPrecondition:
		status = fiber.StatusConflict
	case errors.CategoryConflict:
		status = fiber.StatusConflict
	case errors.CategoryStore:
		if appErr.Code == errors.CodeRecordMissing {
			status = fiber.StatusNotFound
		}
	}

	if status >= fiber.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Path()).Error("request failed")
	}

	return c.Status(status).JSON(errorResponse{
		Category:   appErr.Category,
		Code:       appErr.Code,
		Message:    appErr.Message,
		Suggestion: appErr.Suggestion,
	})
}
