// Package imap implements a mailbox backend over IMAP4rev1 with TLS.
package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/finduo/finduo-sync/pkg/api"
	"github.com/finduo/finduo-sync/pkg/mailbox"
)

// Config holds configuration for the IMAP backend.
type Config struct {
	// Host is the IMAP server. Defaults to imap.gmail.com.
	Host string
	// Port is the implicit-TLS port. Defaults to 993.
	Port int
	// Username and Password authenticate the session. Both are required.
	Username string
	Password string
	// CommandTimeout bounds each IMAP command. Defaults to 30 seconds.
	CommandTimeout time.Duration
	// DialAttempts is the number of connection attempts. Defaults to 3.
	DialAttempts uint
	// TLSConfig overrides the default TLS configuration.
	TLSConfig *tls.Config
}

// Dialer opens authenticated IMAP sessions.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a new IMAP dialer.
func New(cfg Config, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = "imap.gmail.com"
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	if cfg.DialAttempts == 0 {
		cfg.DialAttempts = 3
	}

	return &Dialer{
		cfg:    cfg,
		logger: logger.With("component", "imap"),
	}
}

// Dial connects and logs in. The connection is torn down when ctx is done.
func (d *Dialer) Dial(ctx context.Context) (mailbox.Session, error) {
	if d.cfg.Username == "" || d.cfg.Password == "" {
		return nil, fmt.Errorf("%w: missing IMAP credentials", mailbox.ErrConnection)
	}

	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
	dialer := &net.Dialer{Timeout: d.cfg.CommandTimeout}

	var c *client.Client
	err := retry.Do(
		func() error {
			var err error
			c, err = client.DialWithDialerTLS(dialer, addr, d.cfg.TLSConfig)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(d.cfg.DialAttempts),
		retry.Delay(time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			d.logger.Warn("retrying IMAP connection", "addr", addr, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %w", mailbox.ErrConnection, addr, err)
	}

	c.Timeout = d.cfg.CommandTimeout
	stop := context.AfterFunc(ctx, func() {
		_ = c.Terminate()
	})

	if err := c.Login(d.cfg.Username, d.cfg.Password); err != nil {
		stop()
		_ = c.Terminate()
		return nil, fmt.Errorf("%w: logging in as %s: %w", mailbox.ErrConnection, d.cfg.Username, err)
	}

	d.logger.Debug("connected to IMAP server", "addr", addr, "user", d.cfg.Username)
	return &session{client: c, stop: stop, logger: d.logger}, nil
}

type session struct {
	client *client.Client
	stop   func() bool
	logger *slog.Logger
}

func (s *session) Select(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client.Select(location, true); err != nil {
		return fmt.Errorf("%w: selecting %q: %w", mailbox.ErrLocationNotFound, location, err)
	}
	return nil
}

func (s *session) Search(ctx context.Context, sender string) ([]api.MessageID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := goimap.NewSearchCriteria()
	criteria.Header.Add("From", sender)

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("searching from %s: %w", sender, err)
	}

	ids := make([]api.MessageID, len(uids))
	for i, uid := range uids {
		ids[i] = api.MessageID(uid)
	}
	return ids, nil
}

var errMessageNotFound = errors.New("message not found")

func (s *session) Fetch(ctx context.Context, id api.MessageID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id > api.MessageID(^uint32(0)) {
		return nil, fmt.Errorf("message id %d out of UID range", id)
	}

	seqset := new(goimap.SeqSet)
	seqset.AddNum(uint32(id))

	section := &goimap.BodySectionName{Peek: true}
	items := []goimap.FetchItem{section.FetchItem()}

	messages := make(chan *goimap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqset, items, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, readErr = io.ReadAll(body)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetching uid %d: %w", id, err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("reading uid %d: %w", id, readErr)
	}
	if raw == nil {
		return nil, fmt.Errorf("uid %d: %w", id, errMessageNotFound)
	}
	return raw, nil
}

func (s *session) Close() error {
	defer s.stop()
	if err := s.client.Logout(); err != nil && !errors.Is(err, client.ErrAlreadyLoggedOut) {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}
