// Package gmail implements a mailbox backend over the Gmail API. Labels act as
// locations and an "All Mail" location searches without a label filter.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/finduo/finduo-sync/pkg/api"
	"github.com/finduo/finduo-sync/pkg/mailbox"
)

// Scope is the OAuth scope the backend needs.
const Scope = gmail.GmailReadonlyScope

const allMailSuffix = "All Mail"

// Config holds configuration for the Gmail backend.
type Config struct {
	// User is the mailbox owner. Defaults to "me".
	User string
	// Attempts is the number of tries for rate-limited or failed API calls. Defaults to 3.
	Attempts uint
	// RetryDelay is the initial backoff between tries. Defaults to 1 second.
	RetryDelay time.Duration
	// Options are passed to the Gmail service, after the HTTP client.
	Options []option.ClientOption
}

// Dialer opens Gmail API sessions.
type Dialer struct {
	service *gmail.Service
	cfg     Config
	logger  *slog.Logger
}

// New creates a new Gmail dialer using an OAuth-authorized HTTP client.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Dialer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.User == "" {
		cfg.User = "me"
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, cfg.Options...)
	service, err := gmail.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return &Dialer{
		service: service,
		cfg:     cfg,
		logger:  logger.With("component", "gmail"),
	}, nil
}

// Dial verifies the credentials by reading the mailbox profile.
func (d *Dialer) Dial(ctx context.Context) (mailbox.Session, error) {
	var profile *gmail.Profile
	err := d.retry(ctx, func() error {
		var err error
		profile, err = d.service.Users.GetProfile(d.cfg.User).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading gmail profile: %w", mailbox.ErrConnection, err)
	}

	d.logger.Debug("connected to gmail", "email", profile.EmailAddress, "messages", profile.MessagesTotal)
	return &session{dialer: d, ids: make(map[api.MessageID]string)}, nil
}

// retry runs fn, retrying rate limits and server errors.
func (d *Dialer) retry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(d.cfg.Attempts),
		retry.Delay(d.cfg.RetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			d.logger.Warn("retrying gmail request", "attempt", n+1, "error", err)
		}),
	)
}

func isRetryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return false
}

type session struct {
	dialer *Dialer
	// labels maps label names and IDs to label IDs; loaded on first Select.
	labels map[string]string
	// label is the selected label ID; empty searches all mail.
	label string
	// ids maps parsed message IDs back to Gmail's hex IDs.
	ids map[api.MessageID]string
}

func (s *session) Select(ctx context.Context, location string) error {
	if strings.HasSuffix(location, allMailSuffix) {
		s.label = ""
		return nil
	}

	if s.labels == nil {
		if err := s.loadLabels(ctx); err != nil {
			return err
		}
	}

	id, ok := s.labels[location]
	if !ok {
		return fmt.Errorf("%w: label %q", mailbox.ErrLocationNotFound, location)
	}
	s.label = id
	return nil
}

func (s *session) loadLabels(ctx context.Context) error {
	d := s.dialer

	var resp *gmail.ListLabelsResponse
	err := d.retry(ctx, func() error {
		var err error
		resp, err = d.service.Users.Labels.List(d.cfg.User).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("listing labels: %w", err)
	}

	s.labels = make(map[string]string, 2*len(resp.Labels))
	for _, label := range resp.Labels {
		s.labels[label.Id] = label.Id
		s.labels[label.Name] = label.Id
	}
	return nil
}

func (s *session) Search(ctx context.Context, sender string) ([]api.MessageID, error) {
	d := s.dialer

	call := d.service.Users.Messages.List(d.cfg.User).Q("from:" + sender)
	if s.label != "" {
		call = call.LabelIds(s.label)
	}

	var ids []api.MessageID
	err := call.Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, msg := range resp.Messages {
			id, err := strconv.ParseUint(msg.Id, 16, 64)
			if err != nil {
				d.logger.Warn("skipping message with unexpected id", "message_id", msg.Id, "error", err)
				continue
			}
			s.ids[api.MessageID(id)] = msg.Id
			ids = append(ids, api.MessageID(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing messages from %s: %w", sender, err)
	}
	return ids, nil
}

func (s *session) Fetch(ctx context.Context, id api.MessageID) ([]byte, error) {
	d := s.dialer

	gmailID, ok := s.ids[id]
	if !ok {
		gmailID = strconv.FormatUint(uint64(id), 16)
	}

	var msg *gmail.Message
	err := d.retry(ctx, func() error {
		var err error
		msg, err = d.service.Users.Messages.Get(d.cfg.User, gmailID).Format("raw").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting message %s: %w", gmailID, err)
	}

	raw, err := decodeRaw(msg.Raw)
	if err != nil {
		return nil, fmt.Errorf("decoding message %s: %w", gmailID, err)
	}
	return raw, nil
}

// MailboxWideIDs reports that Gmail message IDs are the same under every label.
func (s *session) MailboxWideIDs() bool {
	return true
}

func (s *session) Close() error {
	return nil
}

// decodeRaw decodes Gmail's base64url raw payload, padded or not.
func decodeRaw(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}
