// Package config loads finduo-sync settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on hosts without zoneinfo

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/finduo/finduo-sync/pkg/api"
)

// Mailbox backends.
const (
	BackendIMAP  = "imap"
	BackendGmail = "gmail"
	BackendMbox  = "mbox"
)

// listKeys are comma-separated environment variables decoded as string slices.
var listKeys = map[string]bool{
	"MAIL_SENDERS":   true,
	"MAIL_LOCATIONS": true,
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// MailboxBackend selects the mailbox implementation: imap, gmail or mbox.
	// Environment variable: MAILBOX_BACKEND
	MailboxBackend string `koanf:"MAILBOX_BACKEND"`

	// EmailUser and EmailPassword are the IMAP credentials.
	// Environment variables: EMAIL_USER, EMAIL_PASSWORD
	EmailUser     string `koanf:"EMAIL_USER"`
	EmailPassword string `koanf:"EMAIL_PASSWORD"`

	// IMAPHost and IMAPPort address the IMAP server.
	// Environment variables: IMAP_HOST, IMAP_PORT
	IMAPHost string `koanf:"IMAP_HOST"`
	IMAPPort int    `koanf:"IMAP_PORT"`

	// Senders is the comma-separated sender allow-list.
	// Environment variable: MAIL_SENDERS
	Senders []string `koanf:"MAIL_SENDERS"`

	// Locations are the comma-separated folders or labels to search, in order.
	// Environment variable: MAIL_LOCATIONS
	Locations []string `koanf:"MAIL_LOCATIONS"`

	// BatchLimit caps the messages fetched per run.
	// Environment variable: MAIL_BATCH_LIMIT
	BatchLimit int `koanf:"MAIL_BATCH_LIMIT"`

	// ScanTimeout bounds the mailbox phase of a run.
	// Environment variable: SCAN_TIMEOUT
	ScanTimeout time.Duration `koanf:"SCAN_TIMEOUT"`

	// MboxDir holds one .mbox file per location for the mbox backend.
	// Environment variable: MBOX_DIR
	MboxDir string `koanf:"MBOX_DIR"`

	// GmailClientSecret and GmailToken are the OAuth files of the gmail backend.
	// Environment variables: GMAIL_CLIENT_SECRET, GMAIL_TOKEN
	GmailClientSecret string `koanf:"GMAIL_CLIENT_SECRET"`
	GmailToken        string `koanf:"GMAIL_TOKEN"`

	// DatabaseURL selects the store: postgres://, sqlite:// or memory://.
	// Environment variable: DATABASE_URL
	DatabaseURL string `koanf:"DATABASE_URL"`

	// OwnerEmail and OwnerName identify the user transactions are imported for.
	// OwnerEmail defaults to EmailUser.
	// Environment variables: OWNER_EMAIL, OWNER_NAME
	OwnerEmail string `koanf:"OWNER_EMAIL"`
	OwnerName  string `koanf:"OWNER_NAME"`

	// OwnerRoomID attaches imported transactions to a shared room when non-zero.
	// Environment variable: OWNER_ROOM_ID
	OwnerRoomID int64 `koanf:"OWNER_ROOM_ID"`

	// Currency is the 3-letter code stamped on every transaction.
	// Environment variable: CURRENCY
	Currency string `koanf:"CURRENCY"`

	// Timezone is the IANA zone alert timestamps are written in.
	// Environment variable: TIMEZONE
	Timezone string `koanf:"TIMEZONE"`

	// HTTPAddr is the listen address of the serve command.
	// Environment variable: HTTP_ADDR
	HTTPAddr string `koanf:"HTTP_ADDR"`
}

// Default returns the configuration used for unset variables.
func Default() Config {
	return Config{
		MailboxBackend:    BackendIMAP,
		IMAPHost:          "imap.gmail.com",
		IMAPPort:          993,
		Senders:           []string{"enviodigital@bancochile.cl", "serviciodetransferencias@bancochile.cl"},
		Locations:         []string{"INBOX", "[Gmail]/All Mail"},
		BatchLimit:        30,
		ScanTimeout:       2 * time.Minute,
		MboxDir:           "data/mbox",
		GmailClientSecret: "data/client_secret.json",
		GmailToken:        "data/token.json",
		DatabaseURL:       "sqlite://gastos.db",
		OwnerName:         "Usuario FinDuo",
		Currency:          "CLP",
		Timezone:          "America/Santiago",
		HTTPAddr:          ":8080",
	}
}

// Load reads the configuration from the environment on top of Default and
// validates it.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(env.ProviderWithValue("", ".", splitLists), nil); err != nil {
		return Config{}, fmt.Errorf("loading config from environment: %w", err)
	}

	defaults := Default()
	cfg := defaults
	// The decoder overwrites slices element-wise, so list defaults go in afterwards.
	cfg.Senders, cfg.Locations = nil, nil
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Senders) == 0 {
		cfg.Senders = defaults.Senders
	}
	if len(cfg.Locations) == 0 {
		cfg.Locations = defaults.Locations
	}

	if cfg.OwnerEmail == "" {
		cfg.OwnerEmail = cfg.EmailUser
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func splitLists(key, value string) (string, interface{}) {
	if !listKeys[key] {
		return key, value
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error

	switch c.MailboxBackend {
	case BackendIMAP, BackendGmail, BackendMbox:
	default:
		errs = append(errs, fmt.Errorf("MAILBOX_BACKEND must be one of imap, gmail, mbox; got %q", c.MailboxBackend))
	}
	if len(c.Senders) == 0 {
		errs = append(errs, errors.New("MAIL_SENDERS must list at least one sender"))
	}
	if len(c.Locations) == 0 {
		errs = append(errs, errors.New("MAIL_LOCATIONS must list at least one location"))
	}
	if c.BatchLimit <= 0 {
		errs = append(errs, fmt.Errorf("MAIL_BATCH_LIMIT must be positive; got %d", c.BatchLimit))
	}
	if c.ScanTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SCAN_TIMEOUT must be positive; got %v", c.ScanTimeout))
	}
	if len(c.Currency) != 3 {
		errs = append(errs, fmt.Errorf("CURRENCY must be a 3-letter code; got %q", c.Currency))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}

	return errors.Join(errs...)
}

// Location returns the time zone alert timestamps are interpreted in.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Owner returns the user a run imports transactions for.
func (c Config) Owner() api.Owner {
	owner := api.Owner{Email: c.OwnerEmail, Name: c.OwnerName}
	if c.OwnerRoomID != 0 {
		room := c.OwnerRoomID
		owner.RoomID = &room
	}
	return owner
}
