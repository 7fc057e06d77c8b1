package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/finduo/finduo-sync/pkg/logging"
	"github.com/finduo/finduo-sync/pkg/mailbox/mbox"
)

const purchaseAlert = "From: Banco de Chile <enviodigital@bancochile.cl>\r\n" +
	"Date: Fri, 14 Mar 2025 15:31:00 -0300\r\n" +
	"Subject: Cargo en Cuenta\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Te informamos que se ha realizado una compra por $12.990 con cargo a Cuenta ****1234 en SUPERMERCADO LIDER el 14/03/2025 15:30\r\n"

func setEnv(t *testing.T, mboxDir string) {
	t.Helper()
	t.Setenv("MAILBOX_BACKEND", "mbox")
	t.Setenv("MBOX_DIR", mboxDir)
	t.Setenv("MAIL_LOCATIONS", "INBOX")
	t.Setenv("MAIL_SENDERS", "enviodigital@bancochile.cl")
	t.Setenv("DATABASE_URL", "memory://")
	t.Setenv("OWNER_EMAIL", "ana@example.com")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(logging.Discard())
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd(logging.Discard())
	for _, name := range []string{"sync", "serve", "export", "status", "setup"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestSync_DryRun(t *testing.T) {
	dir := t.TempDir()
	setEnv(t, dir)

	f, err := os.Create(filepath.Join(dir, "INBOX"+mbox.Extension))
	if err != nil {
		t.Fatalf("create mbox: %v", err)
	}
	if err := mbox.WriteAll(f, [][]byte{[]byte(purchaseAlert)}); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close mbox: %v", err)
	}

	out, err := execute(t, "sync", "--dry-run")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got, want := strings.TrimSpace(out), `{"imported":1}`; got != want {
		t.Errorf("output: got %s, want %s", got, want)
	}
}

func TestSync_ConnectionFailure(t *testing.T) {
	setEnv(t, filepath.Join(t.TempDir(), "missing"))

	out, err := execute(t, "sync", "--dry-run")
	if err == nil {
		t.Fatal("expected error for a missing mailbox, got nil")
	}
	if !strings.Contains(out, `"imported":0`) || !strings.Contains(out, `"error"`) {
		t.Errorf("output: got %s, want imported 0 with an error", out)
	}
}

func TestExport(t *testing.T) {
	setEnv(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "out.json")

	if _, err := execute(t, "export", "--format", "json", "-o", path); err != nil {
		t.Fatalf("export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "[]" {
		t.Errorf("export: got %s, want []", got)
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	setEnv(t, t.TempDir())

	if _, err := execute(t, "export", "--format", "xml"); err == nil {
		t.Error("expected error for an unknown format, got nil")
	}
}

func TestInvalidConfig(t *testing.T) {
	setEnv(t, t.TempDir())
	t.Setenv("MAILBOX_BACKEND", "pop3")

	if _, err := execute(t, "sync", "--dry-run"); err == nil {
		t.Error("expected error for an invalid backend, got nil")
	}
}
