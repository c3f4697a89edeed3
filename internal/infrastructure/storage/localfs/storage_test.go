package localfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
)

func TestSaveCreatesParentsAndOverwrites(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	key := filepath.Join("contracts", "lease.pdf")

	for _, body := range []string{"first", "second"} {
		if err := s.Save(context.Background(), key, strings.NewReader(body), time.Time{}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	rc, err := s.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "second" {
		t.Fatalf("expected overwrite, got %q", data)
	}

	entries, err := os.ReadDir(filepath.Dir(s.Path(key)))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no temp leftovers, got %d entries", len(entries))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestSaveFailureKeepsExistingFile(t *testing.T) {
	s, _ := New(t.TempDir())
	key := filepath.Join("Food", "menu.jpg")
	if err := s.Save(context.Background(), key, strings.NewReader("original"), time.Time{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := s.Save(context.Background(), key, failingReader{}, time.Time{}); err == nil {
		t.Fatalf("expected write error")
	}
	data, err := os.ReadFile(s.Path(key))
	if err != nil || string(data) != "original" {
		t.Fatalf("existing file must survive a failed save, got %q err=%v", data, err)
	}
	entries, _ := os.ReadDir(filepath.Dir(s.Path(key)))
	if len(entries) != 1 {
		t.Fatalf("expected temp file to be cleaned up, got %d entries", len(entries))
	}
}

func TestSaveRejectsEscapingKeys(t *testing.T) {
	s, _ := New(t.TempDir())
	for _, key := range []string{"../outside.pdf", "/etc/passwd", "."} {
		if err := s.Save(context.Background(), key, strings.NewReader("x"), time.Time{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestEnsureCategoryDirs(t *testing.T) {
	base := t.TempDir()
	s, _ := New(base)
	if err := s.EnsureCategoryDirs(domain.DefaultTaxonomy()); err != nil {
		t.Fatalf("EnsureCategoryDirs() error = %v", err)
	}
	for _, name := range []string{"contracts", "personal_documents", "Food", "others"} {
		info, err := os.Stat(filepath.Join(base, name))
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s, err=%v", name, err)
		}
		entries, _ := os.ReadDir(filepath.Join(base, name))
		if len(entries) != 0 {
			t.Fatalf("probe file left in %s", name)
		}
	}
}

func TestSavePreservesModTime(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	key := filepath.Join("finance", "receipt.pdf")
	modTime := time.Date(2019, 3, 14, 15, 9, 26, 0, time.UTC)

	if err := s.Save(context.Background(), key, strings.NewReader("receipt"), modTime); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(s.Path(key))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.ModTime().Equal(modTime) {
		t.Fatalf("expected mod time %s, got %s", modTime, info.ModTime())
	}
}
