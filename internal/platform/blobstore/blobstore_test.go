package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// sha256("hello world")
const helloSum = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFSStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	return map[string]Store{"memory": NewMemStore(), "filesystem": fs}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			info, err := s.Put(ctx, "doc-1.pdf", strings.NewReader("hello world"), 0)
			if err != nil {
				t.Fatalf("Put: %v", err)
			}
			if info.Size != 11 || info.Checksum != helloSum {
				t.Errorf("info = %+v", info)
			}

			rc, err := s.Open(ctx, "doc-1.pdf")
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			b, _ := io.ReadAll(rc)
			rc.Close()
			if string(b) != "hello world" {
				t.Errorf("content = %q", b)
			}

			if err := s.Delete(ctx, "doc-1.pdf"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := s.Open(ctx, "doc-1.pdf"); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("Open after delete err = %v", err)
			}
			if err := s.Delete(ctx, "doc-1.pdf"); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("second Delete err = %v", err)
			}
		})
	}
}

func TestStore_Limit(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Put(ctx, "big", strings.NewReader("0123456789"), 5); !errors.Is(err, ErrFileTooLarge) {
				t.Fatalf("Put over limit err = %v", err)
			}
			if _, err := s.Open(ctx, "big"); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("oversized blob must not be kept, Open err = %v", err)
			}
			if _, err := s.Put(ctx, "exact", strings.NewReader("01234"), 5); err != nil {
				t.Errorf("Put at limit: %v", err)
			}
		})
	}
}

func TestStore_InvalidKey(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"", "../etc/passwd", "a/b", ".hidden"} {
				if _, err := s.Put(ctx, key, strings.NewReader("x"), 0); !errors.Is(err, ErrInvalidKey) {
					t.Errorf("Put(%q) err = %v", key, err)
				}
			}
		})
	}
}

func TestFSStore_NoTempFilesLeft(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := s.Put(ctx, "abcdef", strings.NewReader("content"), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, "abzzzz", strings.NewReader("far too long"), 3); err == nil {
		t.Fatal("expected size error")
	}
	entries, err := os.ReadDir(filepath.Join(root, "ab"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "abcdef" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("shard contents = %v", names)
	}
}

func TestCheckContentType(t *testing.T) {
	if err := CheckContentType("application/pdf"); err != nil {
		t.Errorf("pdf rejected: %v", err)
	}
	if err := CheckContentType("application/x-msdownload"); !errors.Is(err, ErrInvalidContentType) {
		t.Errorf("exe err = %v", err)
	}
}
