// Package postgres provides a PostgreSQL transaction store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finduo/finduo-sync/pkg/api"
)

//go:embed 001_create_transactions.sql
var migrationSQL string

// Config holds the PostgreSQL store configuration.
type Config struct {
	// URL is a postgres:// connection string.
	URL string
	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
	// ConnectTimeout bounds the initial ping. Defaults to 5 seconds.
	ConnectTimeout time.Duration
}

// Store persists users and transactions in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects, pings and migrates the database.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"port", poolConfig.ConnConfig.Port,
		"database", poolConfig.ConnConfig.Database,
	)

	s := &Store{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	s.logger.Debug("running database migrations")
	if _, err := s.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

// EnsureUser implements api.Store.
func (s *Store) EnsureUser(ctx context.Context, email, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("looking up user: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO users (email, name) VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id
	`, email, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating user: %w", err)
	}
	s.logger.Info("created user", "user_id", id, "email", email)
	return id, nil
}

// HasTransaction implements api.Store.
func (s *Store) HasTransaction(ctx context.Context, key api.DedupKey) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE user_id = $1 AND type = $2 AND amount = $3
			  AND description = $4 AND date_time = $5
		)
	`, key.UserID, key.Kind.String(), key.Amount, key.Description, key.OccurredAt).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking transaction: %w", err)
	}
	return exists, nil
}

// InsertTransactions implements api.Store. All rows are written in one
// database transaction; on error none are.
func (s *Store) InsertTransactions(ctx context.Context, txns []api.PersistedTransaction) error {
	if len(txns) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range txns {
		batch.Queue(`
			INSERT INTO transactions (user_id, duo_room_id, type, description, amount, currency, date_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, t.UserID, t.RoomID, t.Kind.String(), t.Description, t.Amount, t.Currency, t.OccurredAt.UTC())
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting transactions: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Info("wrote transactions", "count", len(txns))
	return nil
}

// ListTransactions implements api.Store.
func (s *Store) ListTransactions(ctx context.Context, userID int64) ([]api.PersistedTransaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, duo_room_id, type, description, amount, currency, date_time
		FROM transactions
		WHERE user_id = $1
		ORDER BY date_time DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var out []api.PersistedTransaction
	for rows.Next() {
		var (
			t    api.PersistedTransaction
			kind string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.RoomID, &kind, &t.Description, &t.Amount, &t.Currency, &t.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		if err := t.Kind.UnmarshalText([]byte(kind)); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", t.ID, err)
		}
		t.OccurredAt = t.OccurredAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}
	return out, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("closed PostgreSQL connection pool")
	}
	return nil
}
