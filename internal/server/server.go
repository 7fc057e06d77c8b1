// Package server exposes the sync trigger and the transaction listing over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/finduo/finduo-sync/pkg/api"
	"github.com/finduo/finduo-sync/pkg/writer"
)

// Syncer runs one ingestion for an owner and never fails past its result.
type Syncer interface {
	Sync(ctx context.Context, owner api.Owner) api.SyncResult
}

// Config holds configuration for the HTTP server.
type Config struct {
	// Owner is the user every sync runs for.
	Owner api.Owner
	// Location renders date_time in GET /transactions. Defaults to UTC.
	Location *time.Location
}

// Server serves POST /sync-email, GET /transactions and GET /health.
type Server struct {
	app    *fiber.App
	syncer Syncer
	store  api.Store
	cfg    Config
	logger *slog.Logger

	// mu serializes sync runs.
	mu sync.Mutex
}

// New creates a server and registers its routes.
func New(syncer Syncer, store api.Store, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "finduo-sync",
			DisableStartupMessage: true,
		}),
		syncer: syncer,
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "server"),
	}

	s.app.Get("/health", s.handleHealth)
	s.app.Post("/sync-email", s.handleSync)
	s.app.Get("/transactions", s.handleTransactions)
	return s
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves HTTP on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	if err := s.app.Listen(addr); err != nil {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleSync always answers 200; failures are reported in the error field.
func (s *Server) handleSync(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.syncer.Sync(c.UserContext(), s.cfg.Owner)
	s.logger.Info("sync requested", "imported", result.Imported, "error", result.Error)
	return c.JSON(result)
}

func (s *Server) handleTransactions(c *fiber.Ctx) error {
	ctx := c.UserContext()

	userID, err := s.store.EnsureUser(ctx, s.cfg.Owner.Email, s.cfg.Owner.Name)
	if err != nil {
		s.logger.Error("resolving owner", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "resolving owner"})
	}

	txns, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		s.logger.Error("listing transactions", "user_id", userID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "listing transactions"})
	}

	records := make([]writer.Record, 0, len(txns))
	for _, t := range txns {
		records = append(records, writer.NewRecord(t, s.cfg.Location))
	}
	return c.JSON(records)
}
