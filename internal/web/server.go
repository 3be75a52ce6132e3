package web

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/dericksozo/telegram-whale-tracker/internal/handler"
	"github.com/dericksozo/telegram-whale-tracker/internal/logger"
	"github.com/dericksozo/telegram-whale-tracker/pkg/models"
)

// Server represents the HTTP server
type Server struct {
	app  *fiber.App
	svc  *handler.Service
	log  logger.Logger
	port int
}

// Config holds server configuration
type Config struct {
	Port          int
	WebhookSecret string
}

// NewServer creates a new HTTP server exposing the webhook intake routes
// and a health check.
func NewServer(cfg Config, svc *handler.Service, log logger.Logger) *Server {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Error("HTTP error", logger.F("error", err), logger.F("code", code))

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} ${latency}\n",
	}))

	server := &Server{
		app:  app,
		svc:  svc,
		log:  log.With(logger.F("component", "web-server")),
		port: cfg.Port,
	}

	webhook := app.Group("/webhook", server.requireSecret(cfg.WebhookSecret))
	webhook.Post("/activities", server.handleActivities)
	webhook.Post("/transactions", server.handleTransactions)
	webhook.Post("/balance-changes", server.handleBalanceChanges)

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
		})
	})

	return server
}

// requireSecret rejects webhook calls whose ?secret= query does not match
// the configured value. An empty configured secret disables the check.
func (s *Server) requireSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}
		if c.Query("secret") != secret {
			s.log.Warn("unauthorized webhook attempt",
				logger.F("path", c.Path()),
				logger.F("ip", c.IP()),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}
		return c.Next()
	}
}

func (s *Server) handleActivities(c *fiber.Ctx) error {
	summary, err := s.svc.HandleActivities(c.UserContext(), c.Path(), headerMap(c), c.Body())
	return s.respond(c, summary, err)
}

func (s *Server) handleTransactions(c *fiber.Ctx) error {
	summary, err := s.svc.HandleTransactions(c.UserContext(), c.Path(), headerMap(c), c.Body())
	return s.respond(c, summary, err)
}

func (s *Server) handleBalanceChanges(c *fiber.Ctx) error {
	summary, err := s.svc.HandleBalanceChanges(c.UserContext(), c.Path(), headerMap(c), c.Body())
	return s.respond(c, summary, err)
}

// respond maps pipeline outcomes to HTTP: malformed payloads are the
// caller's fault, anything else succeeded by the time the payload parsed.
func (s *Server) respond(c *fiber.Ctx, summary *handler.Summary, err error) error {
	if err != nil {
		var malformed *models.ErrMalformedPayload
		if errors.As(err, &malformed) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": malformed.Error(),
			})
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"received": summary.Received,
		"counts":   summary.Counts,
	})
}

// headerMap flattens the request headers for the raw-delivery record.
func headerMap(c *fiber.Ctx) map[string]string {
	headers := make(map[string]string)
	for key, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	return headers
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("starting web server", logger.F("port", s.port))
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	return s.app.ShutdownWithContext(ctx)
}
