package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/finduo/finduo-sync/pkg/api"
	"github.com/finduo/finduo-sync/pkg/logging"
	"github.com/finduo/finduo-sync/pkg/mailbox/mbox"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"INBOX_12.txt", "INBOX_12.txt"},
		{"[Gmail]/All Mail_7.txt", "[Gmail]_All_Mail_7.txt"},
		{"a::b??c.txt", "a_b_c.txt"},
	}

	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDumpLocation(t *testing.T) {
	dir := t.TempDir()
	raw := []byte("From: Banco de Chile <enviodigital@bancochile.cl>\r\n" +
		"Date: Fri, 14 Mar 2025 15:30:00 -0300\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"compra por $12.990 con cargo a Cuenta ****1234 en SUPERMERCADO LIDER el 14/03/2025 15:30\r\n")

	msgs := []api.RawMessage{{ID: 7, Location: "[Gmail]/All Mail", Raw: raw}}
	if err := dumpLocation(dir, "[Gmail]/All Mail", msgs, true, logging.Discard()); err != nil {
		t.Fatalf("dumpLocation: %v", err)
	}

	path, err := mbox.Path(dir, "[Gmail]/All Mail")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open mbox: %v", err)
	}
	defer f.Close()

	got, err := mbox.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("messages: got %d, want 1", len(got))
	}
	if !strings.Contains(string(got[0]), "SUPERMERCADO LIDER") {
		t.Errorf("message body lost: %q", got[0])
	}

	body, err := os.ReadFile(filepath.Join(dir, "[Gmail]_All_Mail_7.txt"))
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "compra por $12.990") {
		t.Errorf("body: got %q", body)
	}
}
