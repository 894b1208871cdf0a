// Package httpapi exposes a small status and control surface over HTTP.
package httpapi

import (
	"log/slog"

	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/fiber/v2"
)

// Watch is the part of the watcher the API drives.
type Watch interface {
	Running() bool
	ChangeMailbox(name string) error
}

// Server wraps the fiber app serving the status endpoints.
type Server struct {
	app    *fiber.App
	watch  Watch
	logger *slog.Logger
}

// New builds the HTTP API around a running watch.
func New(watch Watch, logger *slog.Logger) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		watch:  watch,
		logger: logger,
	}

	s.app.Use(otelfiber.Middleware())
	s.app.Get("/", s.status)
	s.app.Get("/change-mailbox", s.changeMailbox)

	return s
}

// Listen serves the API until Shutdown is called.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) status(c *fiber.Ctx) error {
	msg := "Receiver not running."
	if s.watch.Running() {
		msg = "Receiver running."
	}
	return c.JSON(fiber.Map{"message": msg})
}

func (s *Server) changeMailbox(c *fiber.Ctx) error {
	name := c.Query("mailbox")
	if name == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"message": "mailbox query parameter is required",
		})
	}

	if err := s.watch.ChangeMailbox(name); err != nil {
		s.logger.Error("change mailbox", "mailbox", name, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": err.Error(),
		})
	}

	s.logger.Info("mailbox switch requested", "mailbox", name)
	return c.JSON(fiber.Map{"message": "OK"})
}
