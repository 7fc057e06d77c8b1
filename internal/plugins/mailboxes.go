package plugins

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/finduo/finduo-sync/pkg/client"
	"github.com/finduo/finduo-sync/pkg/config"
	"github.com/finduo/finduo-sync/pkg/mailbox"
	"github.com/finduo/finduo-sync/pkg/mailbox/gmail"
	"github.com/finduo/finduo-sync/pkg/mailbox/imap"
	"github.com/finduo/finduo-sync/pkg/mailbox/mbox"
)

// IMAP is the IMAP over TLS mailbox plugin.
type IMAP struct{}

// Name returns the plugin name.
func (p *IMAP) Name() string { return config.BackendIMAP }

// Description returns a human-readable description.
func (p *IMAP) Description() string {
	return "Read bank alerts over IMAP with an app password (EMAIL_USER, EMAIL_PASSWORD)"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *IMAP) RequiredScopes() []string { return nil }

// NewDialer creates an IMAP dialer.
func (p *IMAP) NewDialer(_ context.Context, cfg config.Config, logger *slog.Logger) (mailbox.Dialer, error) {
	return imap.New(imap.Config{
		Host:     cfg.IMAPHost,
		Port:     cfg.IMAPPort,
		Username: cfg.EmailUser,
		Password: cfg.EmailPassword,
	}, logger), nil
}

// Gmail is the Gmail API mailbox plugin.
type Gmail struct{}

// Name returns the plugin name.
func (p *Gmail) Name() string { return config.BackendGmail }

// Description returns a human-readable description.
func (p *Gmail) Description() string {
	return "Read bank alerts through the Gmail API with OAuth (run `finduo setup` first)"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Gmail) RequiredScopes() []string { return []string{gmail.Scope} }

// NewDialer creates a Gmail API dialer from the saved OAuth token.
// Missing or unreadable credentials are connection failures.
func (p *Gmail) NewDialer(ctx context.Context, cfg config.Config, logger *slog.Logger) (mailbox.Dialer, error) {
	httpClient, err := client.New(ctx, client.Config{
		SecretFile: cfg.GmailClientSecret,
		TokenFile:  cfg.GmailToken,
		Scopes:     p.RequiredScopes(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mailbox.ErrConnection, err)
	}
	d, err := gmail.New(httpClient, gmail.Config{}, logger)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Mbox is the offline mbox directory plugin.
type Mbox struct{}

// Name returns the plugin name.
func (p *Mbox) Name() string { return config.BackendMbox }

// Description returns a human-readable description.
func (p *Mbox) Description() string {
	return "Read bank alerts from <location>.mbox files under MBOX_DIR"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Mbox) RequiredScopes() []string { return nil }

// NewDialer creates an mbox dialer.
func (p *Mbox) NewDialer(_ context.Context, cfg config.Config, logger *slog.Logger) (mailbox.Dialer, error) {
	return mbox.New(mbox.Config{Dir: cfg.MboxDir}, logger), nil
}
