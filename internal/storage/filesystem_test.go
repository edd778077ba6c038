package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreUploadRead(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()

	key, err := store.Upload(ctx, "uploads/job-1/original.png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if key != "uploads/job-1/original.png" {
		t.Fatalf("key = %q", key)
	}

	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("data = %q", data)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	store, err := NewFileStore(base)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"../escape.txt", "a/../../escape.txt", "", "."} {
		if _, err := store.Upload(ctx, key, []byte("x")); err == nil {
			t.Fatalf("Upload(%q) accepted traversal key", key)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(base), "escape.txt")); !os.IsNotExist(err) {
		t.Fatalf("file escaped the storage root")
	}
}

func TestFileStoreNormalizesLeadingSlash(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	key, err := store.Upload(context.Background(), "/results/a.jpg", []byte("x"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if key != "results/a.jpg" {
		t.Fatalf("key = %q, want results/a.jpg", key)
	}
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore("  "); err == nil {
		t.Fatalf("NewFileStore accepted blank path")
	}
}
