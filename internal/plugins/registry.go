// Package plugins provides a registry of mailbox backends keyed by name.
package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/finduo/finduo-sync/pkg/config"
	"github.com/finduo/finduo-sync/pkg/mailbox"
)

// MailboxPlugin defines the interface for mailbox backend plugins.
type MailboxPlugin interface {
	// Name returns the plugin name matched against MAILBOX_BACKEND.
	Name() string
	// Description returns a human-readable description.
	Description() string
	// RequiredScopes returns the OAuth scopes needed by this plugin.
	RequiredScopes() []string
	// NewDialer creates a dialer from the application configuration.
	NewDialer(ctx context.Context, cfg config.Config, logger *slog.Logger) (mailbox.Dialer, error)
}

// Registry manages available mailbox plugins.
type Registry struct {
	mailboxes map[string]MailboxPlugin
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{mailboxes: make(map[string]MailboxPlugin)}
}

// Register registers a mailbox plugin.
func (r *Registry) Register(plugin MailboxPlugin) error {
	name := plugin.Name()
	if _, exists := r.mailboxes[name]; exists {
		return fmt.Errorf("mailbox plugin %q already registered", name)
	}
	r.mailboxes[name] = plugin
	return nil
}

// Get returns a mailbox plugin by name.
func (r *Registry) Get(name string) (MailboxPlugin, error) {
	plugin, exists := r.mailboxes[name]
	if !exists {
		return nil, fmt.Errorf("mailbox plugin %q not found (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	return plugin, nil
}

// Names returns the registered plugin names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.mailboxes))
	for name := range r.mailboxes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// List returns all registered plugins sorted by name.
func (r *Registry) List() []MailboxPlugin {
	plugins := make([]MailboxPlugin, 0, len(r.mailboxes))
	for _, name := range r.Names() {
		plugins = append(plugins, r.mailboxes[name])
	}
	return plugins
}

// CreateDialer creates the dialer of the plugin named by cfg.MailboxBackend.
func (r *Registry) CreateDialer(ctx context.Context, cfg config.Config, logger *slog.Logger) (mailbox.Dialer, error) {
	plugin, err := r.Get(cfg.MailboxBackend)
	if err != nil {
		return nil, err
	}
	return plugin.NewDialer(ctx, cfg, logger)
}

// Default returns a registry with every built-in mailbox backend.
func Default() *Registry {
	r := NewRegistry()
	for _, p := range []MailboxPlugin{&IMAP{}, &Gmail{}, &Mbox{}} {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}
