// Package sqlite provides a single-file SQLite transaction store, the default
// for local runs. Timestamps are stored as UTC RFC 3339 text.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/finduo/finduo-sync/pkg/api"
)

//go:embed schema.sql
var schemaSQL string

// Config holds the SQLite store configuration.
type Config struct {
	// Path is the database file, or ":memory:". Defaults to gastos.db.
	Path string
}

// Store persists users and transactions in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the database file and ensures the schema exists.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = "gastos.db"
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("opened SQLite database", "path", cfg.Path)
	return &Store{db: db, logger: logger}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// EnsureUser implements api.Store.
func (s *Store) EnsureUser(ctx context.Context, email, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE email = ?`, email).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("looking up user: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO users (email, name) VALUES (?, ?)`, email, name)
	if err != nil {
		return 0, fmt.Errorf("creating user: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading user id: %w", err)
	}
	s.logger.Info("created user", "user_id", id, "email", email)
	return id, nil
}

// HasTransaction implements api.Store.
func (s *Store) HasTransaction(ctx context.Context, key api.DedupKey) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE user_id = ? AND type = ? AND amount = ? AND description = ? AND date_time = ?
		)
	`, key.UserID, key.Kind.String(), key.Amount, key.Description, formatTime(key.OccurredAt)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking transaction: %w", err)
	}
	return exists, nil
}

// InsertTransactions implements api.Store.
func (s *Store) InsertTransactions(ctx context.Context, txns []api.PersistedTransaction) error {
	if len(txns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (user_id, duo_room_id, type, description, amount, currency, date_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range txns {
		var room sql.NullInt64
		if t.RoomID != nil {
			room = sql.NullInt64{Int64: *t.RoomID, Valid: true}
		}
		_, err := stmt.ExecContext(ctx, t.UserID, room, t.Kind.String(), t.Description, t.Amount, t.Currency, formatTime(t.OccurredAt))
		if err != nil {
			return fmt.Errorf("inserting transaction %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Info("wrote transactions", "count", len(txns))
	return nil
}

// ListTransactions implements api.Store.
func (s *Store) ListTransactions(ctx context.Context, userID int64) ([]api.PersistedTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, duo_room_id, type, description, amount, currency, date_time
		FROM transactions
		WHERE user_id = ?
		ORDER BY date_time DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var out []api.PersistedTransaction
	for rows.Next() {
		var (
			t          api.PersistedTransaction
			room       sql.NullInt64
			kind, when string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &room, &kind, &t.Description, &t.Amount, &t.Currency, &when); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		if room.Valid {
			t.RoomID = &room.Int64
		}
		if err := t.Kind.UnmarshalText([]byte(kind)); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", t.ID, err)
		}
		if t.OccurredAt, err = time.Parse(time.RFC3339, when); err != nil {
			return nil, fmt.Errorf("transaction %d: parsing date_time: %w", t.ID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
