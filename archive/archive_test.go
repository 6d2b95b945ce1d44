package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"fleetkernel/config"
)

func TestFilesystemPutGet(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFilesystem(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	key := OrderKey("T1")
	if err := fs.Put(ctx, key, []byte(`{"name":"T1"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "orders", "T1.json")); err != nil {
		t.Fatalf("archived file missing: %v", err)
	}
	got, err := fs.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"name":"T1"}` {
		t.Errorf("got %s", got)
	}

	// overwrite
	if err := fs.Put(ctx, key, []byte(`{"name":"T1","v":2}`)); err != nil {
		t.Fatalf("put again: %v", err)
	}
	got, _ = fs.Get(ctx, key)
	if string(got) != `{"name":"T1","v":2}` {
		t.Errorf("after overwrite got %s", got)
	}
}

func TestFilesystemMissingAndInvalidKeys(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if _, err := fs.Get(ctx, OrderKey("nope")); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key: err = %v, want ErrNotFound", err)
	}
	if err := fs.Put(ctx, "../escape.json", []byte("x")); err == nil {
		t.Error("key with .. accepted")
	}
	if err := fs.Put(ctx, "", []byte("x")); err == nil {
		t.Error("empty key accepted")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, &config.ArchiveConfig{})
	if err != nil || s != nil {
		t.Fatalf("disabled archive = %v, %v", s, err)
	}
	s, err = Open(ctx, &config.ArchiveConfig{Driver: "fs", Path: t.TempDir()})
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if s.Driver() != "fs" {
		t.Errorf("driver = %s", s.Driver())
	}
	if _, err := Open(ctx, &config.ArchiveConfig{Driver: "tape"}); err == nil {
		t.Error("unknown driver accepted")
	}
	if _, err := Open(ctx, &config.ArchiveConfig{Driver: "s3"}); err == nil {
		t.Error("s3 without bucket accepted")
	}
}
