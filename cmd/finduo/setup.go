package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/finduo/finduo-sync/internal/plugins"
	"github.com/finduo/finduo-sync/pkg/client"
	"github.com/finduo/finduo-sync/pkg/config"
)

// runSetup handles the OAuth setup flow of the gmail backend.
func runSetup(ctx context.Context, cfg config.Config, force bool, logger *slog.Logger) error {
	fmt.Println("=== FinDuo Setup ===")
	fmt.Println()

	secretsPath, tokenPath := cfg.GmailClientSecret, cfg.GmailToken
	if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
		return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
			"1. Go to https://console.cloud.google.com/apis/credentials\n"+
			"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
			"3. Download the JSON file and save it as '%s' (or set GMAIL_CLIENT_SECRET)", secretsPath, secretsPath)
	}

	if !force {
		if _, err := os.Stat(tokenPath); err == nil {
			fmt.Printf("Already authenticated! Token file exists: %s\n", tokenPath)
			fmt.Println()
			fmt.Println("To re-authenticate, run: finduo setup --force")
			return nil
		}
	}

	if force {
		if err := os.Remove(tokenPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove existing token", "error", err)
		}
		fmt.Println("Forcing re-authentication...")
		fmt.Println()
	}

	gmailPlugin, err := plugins.Default().Get(config.BackendGmail)
	if err != nil {
		return err
	}

	fmt.Println("Required permissions:")
	fmt.Println("  - Gmail: read-only access to find Banco de Chile alerts")
	fmt.Println()
	fmt.Println("Starting authentication...")
	fmt.Println()

	_, err = client.New(ctx, client.Config{
		SecretFile:  secretsPath,
		TokenFile:   tokenPath,
		Interactive: true,
		Scopes:      gmailPlugin.RequiredScopes(),
	}, logger.With("component", "oauth"))
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Setup Complete ===")
	fmt.Println()
	fmt.Printf("Token saved to: %s\n", tokenPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Set MAILBOX_BACKEND=gmail")
	fmt.Println("  2. Run 'finduo sync' to import transactions")
	fmt.Println()

	return nil
}
