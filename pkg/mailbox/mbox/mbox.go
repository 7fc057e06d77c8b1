// Package mbox implements an offline mailbox backend over a directory of mbox
// files, one file per location. "[Gmail]/All Mail" is read from
// "<dir>/[Gmail]/All Mail.mbox". Message IDs are 1-based positions in the file.
package mbox

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	gombox "github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/finduo/finduo-sync/pkg/api"
	"github.com/finduo/finduo-sync/pkg/mailbox"
)

// Extension is the file extension of location files.
const Extension = ".mbox"

// Config holds configuration for the mbox backend.
type Config struct {
	// Dir is the directory holding the location files. Defaults to data/mbox.
	Dir string
}

// Dialer opens sessions over a directory of mbox files.
type Dialer struct {
	dir    string
	logger *slog.Logger
}

// New creates a new mbox dialer.
func New(cfg Config, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		cfg.Dir = "data/mbox"
	}
	return &Dialer{
		dir:    cfg.Dir,
		logger: logger.With("component", "mbox"),
	}
}

// Dial checks that the mailbox directory exists.
func (d *Dialer) Dial(ctx context.Context) (mailbox.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", mailbox.ErrConnection, err)
	}

	info, err := os.Stat(d.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: opening mbox directory: %w", mailbox.ErrConnection, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", mailbox.ErrConnection, d.dir)
	}
	return &session{dir: d.dir, logger: d.logger}, nil
}

// Path returns the file that stores location under dir.
func Path(dir, location string) (string, error) {
	rel := filepath.FromSlash(location) + Extension
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid location %q", location)
	}
	return filepath.Join(dir, rel), nil
}

type session struct {
	dir      string
	logger   *slog.Logger
	messages [][]byte
}

func (s *session) Select(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := Path(s.dir, location)
	if err != nil {
		return fmt.Errorf("%w: %w", mailbox.ErrLocationNotFound, err)
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", mailbox.ErrLocationNotFound, location)
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	messages, err := ReadAll(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	s.messages = messages
	s.logger.Debug("loaded mbox location", "location", location, "messages", len(messages))
	return nil
}

// Search matches sender case-insensitively against the From header, like an
// IMAP FROM search.
func (s *session) Search(ctx context.Context, sender string) ([]api.MessageID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sender = strings.ToLower(sender)
	var ids []api.MessageID
	for i, raw := range s.messages {
		header, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
		if err != nil && header.Len() == 0 {
			s.logger.Debug("skipping message without header", "message_id", i+1, "error", err)
			continue
		}
		if strings.Contains(strings.ToLower(header.Get("From")), sender) {
			ids = append(ids, api.MessageID(i+1))
		}
	}
	return ids, nil
}

func (s *session) Fetch(ctx context.Context, id api.MessageID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == 0 || id > api.MessageID(len(s.messages)) {
		return nil, fmt.Errorf("message %d not found", id)
	}
	return s.messages[id-1], nil
}

func (s *session) Close() error {
	s.messages = nil
	return nil
}

// ReadAll reads every message of an mbox stream.
func ReadAll(r io.Reader) ([][]byte, error) {
	var messages [][]byte
	mr := gombox.NewReader(r)
	for {
		msg, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			return messages, nil
		}
		if err != nil {
			return messages, fmt.Errorf("reading message %d: %w", len(messages)+1, err)
		}

		raw, err := io.ReadAll(msg)
		if err != nil {
			return messages, fmt.Errorf("reading message %d: %w", len(messages)+1, err)
		}
		messages = append(messages, raw)
	}
}

// WriteAll writes raw messages as an mbox stream. The envelope sender and
// date of each "From " line come from the message header when available.
func WriteAll(w io.Writer, messages [][]byte) error {
	mw := gombox.NewWriter(w)
	for i, raw := range messages {
		from, date := envelope(raw)

		dst, err := mw.CreateMessage(from, date)
		if err != nil {
			return fmt.Errorf("creating message %d: %w", i+1, err)
		}
		if _, err := dst.Write(raw); err != nil {
			return fmt.Errorf("writing message %d: %w", i+1, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing mbox writer: %w", err)
	}
	return nil
}

func envelope(raw []byte) (string, time.Time) {
	from, date := "MAILER-DAEMON", time.Unix(0, 0).UTC()

	header, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil && header.Len() == 0 {
		return from, date
	}

	h := mail.Header{Header: message.Header{Header: header}}
	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 {
		from = addrs[0].Address
	}
	if d, err := h.Date(); err == nil && !d.IsZero() {
		date = d
	}
	return from, date
}
