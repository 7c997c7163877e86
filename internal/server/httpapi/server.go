// Package httpapi exposes the token lifecycle over HTTP: login, refresh,
// logout, session listing, and a health probe. Authentication of the user
// itself happens upstream; login trusts identity headers set by the fronting
// proxy, everything else is authenticated by the tokens this service issued.
package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/dmitrijs2005/tokenvault/internal/logging"
	"github.com/dmitrijs2005/tokenvault/internal/server/config"
	"github.com/dmitrijs2005/tokenvault/internal/server/services"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	address  string
	app      *fiber.App
	logger   logging.Logger
	issuer   *services.IssuerService
	rotation *services.RotationService
	sessions *services.SessionService
	secret   []byte
}

func NewServer(cfg *config.Config, l logging.Logger, issuer *services.IssuerService, rotation *services.RotationService, sessions *services.SessionService) *Server {
	s := &Server{
		address:  cfg.EndpointAddrHTTP,
		logger:   l.With("module", "http_server"),
		issuer:   issuer,
		rotation: rotation,
		sessions: sessions,
		secret:   []byte(cfg.SecretKey),
	}

	app := fiber.New(fiber.Config{
		AppName:               "tokenvault",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	app.Get("/health", s.health)

	auth := app.Group("/auth")
	auth.Post("/login", s.login)
	auth.Post("/refresh", s.refresh)
	auth.Post("/logout", s.logout)
	auth.Get("/sessions", s.listSessions)

	s.app = app
	return s
}

// App exposes the underlying fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown error", "error", err.Error())
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	return s.app.Listen(s.address)
}
