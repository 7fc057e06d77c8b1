package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/finduo/finduo-sync/internal/plugins"
	"github.com/finduo/finduo-sync/pkg/client"
	"github.com/finduo/finduo-sync/pkg/config"
	"github.com/finduo/finduo-sync/pkg/store"
)

const statusTimeout = 15 * time.Second

// runStatus checks configuration, storage and mailbox connectivity.
func runStatus(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	fmt.Println("=== FinDuo Status ===")
	fmt.Println()

	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	allGood := true

	printConfig(cfg)
	checkStore(ctx, cfg, logger, &allGood)
	if cfg.MailboxBackend == config.BackendGmail {
		checkCredentials(cfg, &allGood)
	}
	checkMailbox(ctx, cfg, logger, &allGood)

	printFinalStatus(allGood)
	return nil
}

func printConfig(cfg config.Config) {
	fmt.Println("Configuration:")
	fmt.Printf("  Owner: %s\n", cfg.OwnerEmail)
	fmt.Printf("  Senders: %s\n", strings.Join(cfg.Senders, ", "))
	fmt.Printf("  Locations: %s\n", strings.Join(cfg.Locations, ", "))
	fmt.Printf("  Batch limit: %d\n", cfg.BatchLimit)
	fmt.Printf("  Timezone: %s\n", cfg.Timezone)
	fmt.Println()

	fmt.Println("Mailbox backends:")
	for _, p := range plugins.Default().List() {
		marker := " "
		if p.Name() == cfg.MailboxBackend {
			marker = "*"
		}
		fmt.Printf("  %s %-6s %s\n", marker, p.Name(), p.Description())
	}
	fmt.Println()
}

func checkStore(ctx context.Context, cfg config.Config, logger *slog.Logger, allGood *bool) {
	fmt.Printf("Store (%s): ", redactURL(cfg.DatabaseURL))
	st, err := store.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	defer st.Close()
	fmt.Println("✓ Connected")
}

func checkCredentials(cfg config.Config, allGood *bool) {
	fmt.Printf("Credentials file (%s): ", cfg.GmailClientSecret)
	if _, err := os.Stat(cfg.GmailClientSecret); os.IsNotExist(err) {
		fmt.Println("✗ Not found")
		*allGood = false
	} else {
		fmt.Println("✓ Found")
	}

	fmt.Printf("OAuth token (%s): ", cfg.GmailToken)
	token, err := client.TokenFromFile(cfg.GmailToken)
	switch {
	case os.IsNotExist(err):
		fmt.Println("✗ Not found (run 'finduo setup')")
		*allGood = false
	case err != nil:
		fmt.Printf("✗ %v\n", err)
		*allGood = false
	case token.Expiry.Before(time.Now()):
		fmt.Println("⚠ Expired (will refresh on next run)")
	default:
		fmt.Printf("✓ Valid (expires: %s)\n", token.Expiry.Format(time.RFC3339))
	}
}

func checkMailbox(ctx context.Context, cfg config.Config, logger *slog.Logger, allGood *bool) {
	fmt.Printf("Mailbox (%s): ", cfg.MailboxBackend)
	dialer, err := plugins.Default().CreateDialer(ctx, cfg, logger)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}

	sess, err := dialer.Dial(ctx)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	defer sess.Close()

	var available []string
	for _, loc := range cfg.Locations {
		if err := sess.Select(ctx, loc); err == nil {
			available = append(available, loc)
		}
	}
	fmt.Printf("✓ Connected (%d of %d locations available)\n", len(available), len(cfg.Locations))
}

func printFinalStatus(allGood bool) {
	fmt.Println()
	if allGood {
		fmt.Println("Status: ✓ Ready to run")
		fmt.Println()
		fmt.Println("Run 'finduo sync' to import transactions.")
	} else {
		fmt.Println("Status: ✗ Configuration issues detected")
		fmt.Println()
		fmt.Println("Fix the issues above, then run 'finduo status' again.")
	}
}

// redactURL hides the password of a database URL.
func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return raw
	}
	if user, _, hasPass := strings.Cut(userinfo, ":"); hasPass {
		return scheme + "://" + user + ":***@" + host
	}
	return raw
}
