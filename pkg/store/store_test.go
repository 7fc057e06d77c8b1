package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/finduo/finduo-sync/pkg/store/memory"
	"github.com/finduo/finduo-sync/pkg/store/sqlite"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "memory://", nil)
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Errorf("memory:// opened %T", s)
	}

	path := filepath.Join(t.TempDir(), "gastos.db")
	s, err = Open(ctx, "sqlite://"+path, nil)
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*sqlite.Store); !ok {
		t.Errorf("sqlite:// opened %T", s)
	}
}

func TestOpen_Unsupported(t *testing.T) {
	for _, url := range []string{"gastos.db", "mysql://localhost/finduo"} {
		if _, err := Open(context.Background(), url, nil); !errors.Is(err, ErrUnsupportedURL) {
			t.Errorf("Open(%q): got %v, want %v", url, err, ErrUnsupportedURL)
		}
	}
}
