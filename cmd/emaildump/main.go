// Command emaildump fetches bank alerts from the configured mailbox and dumps
// them as mbox fixtures, one file per location. The output directory can be
// used directly as MBOX_DIR for the mbox backend and for unit test samples.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/finduo/finduo-sync/internal/plugins"
	"github.com/finduo/finduo-sync/pkg/api"
	"github.com/finduo/finduo-sync/pkg/config"
	"github.com/finduo/finduo-sync/pkg/logging"
	"github.com/finduo/finduo-sync/pkg/mailbox"
	"github.com/finduo/finduo-sync/pkg/mailbox/mbox"
	"github.com/finduo/finduo-sync/pkg/normalize"
)

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\s]`)
	underscores = regexp.MustCompile(`_+`)
)

func main() {
	logger := logging.Setup(logging.FromEnv())

	dumpDir := pflag.String("dir", "tests/data/mbox", "output directory")
	limit := pflag.Int("limit", 0, "maximum messages to dump (default MAIL_BATCH_LIMIT)")
	bodies := pflag.Bool("bodies", false, "also write normalized bodies as .txt files")
	pflag.Parse()

	if err := run(*dumpDir, *limit, *bodies, logger); err != nil {
		logger.Error("email dump failed", "error", err)
		os.Exit(1)
	}
}

func run(dumpDir string, limit int, bodies bool, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.MailboxBackend == config.BackendMbox && filepath.Clean(cfg.MboxDir) == filepath.Clean(dumpDir) {
		return fmt.Errorf("refusing to dump %s onto itself", dumpDir)
	}
	if limit <= 0 {
		limit = cfg.BatchLimit
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer, err := plugins.Default().CreateDialer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating %s mailbox: %w", cfg.MailboxBackend, err)
	}

	msgs, err := mailbox.NewScanner(dialer, logger).Scan(ctx, cfg.Senders, cfg.Locations, limit)
	if err != nil {
		return fmt.Errorf("scanning mailbox: %w", err)
	}

	byLocation := make(map[string][]api.RawMessage)
	var order []string
	for _, msg := range msgs {
		if _, ok := byLocation[msg.Location]; !ok {
			order = append(order, msg.Location)
		}
		byLocation[msg.Location] = append(byLocation[msg.Location], msg)
	}

	for _, location := range order {
		if err := dumpLocation(dumpDir, location, byLocation[location], bodies, logger); err != nil {
			return err
		}
	}

	logger.Info("email dump complete", "total_dumped", len(msgs), "directory", dumpDir)
	return nil
}

func dumpLocation(dumpDir, location string, msgs []api.RawMessage, bodies bool, logger *slog.Logger) error {
	path, err := mbox.Path(dumpDir, location)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating dump directory: %w", err)
	}

	raws := make([][]byte, 0, len(msgs))
	for _, msg := range msgs {
		raws = append(raws, msg.Raw)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := mbox.WriteAll(f, raws); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	logger.Info("dumped location", "location", location, "file", path, "count", len(msgs))

	if !bodies {
		return nil
	}
	for _, msg := range msgs {
		body, ok := normalize.Body(msg.Raw)
		if !ok {
			logger.Warn("message has no text body", "location", location, "message_id", msg.ID)
			continue
		}
		name := sanitizeFilename(fmt.Sprintf("%s_%d.txt", location, msg.ID))
		if err := os.WriteFile(filepath.Join(dumpDir, name), []byte(body), 0o644); err != nil {
			return fmt.Errorf("writing body: %w", err)
		}
	}
	return nil
}

func sanitizeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = underscores.ReplaceAllString(name, "_")

	name = strings.Trim(name, "_")
	if len(name) > 200 {
		name = name[:200]
	}
	return name
}
