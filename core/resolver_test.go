package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pkt.systems/juno/schema"
)

func TestResolveRemoteAddsSlash(t *testing.T) {
	got, err := ResolveResource("https://example.com/notebook")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "https://example.com/notebook/" {
		t.Fatalf("unexpected resource %q", got)
	}
	again, err := ResolveResource(string(got))
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if again != got {
		t.Fatalf("expected idempotent resolve, got %q then %q", got, again)
	}
}

func TestResolveFileUsesDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "analysis.ipynb")
	if err := os.WriteFile(file, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fromDir, err := ResolveResource(dir)
	if err != nil {
		t.Fatalf("resolve dir: %v", err)
	}
	fromFile, err := ResolveResource(file)
	if err != nil {
		t.Fatalf("resolve file: %v", err)
	}
	if fromDir != fromFile {
		t.Fatalf("expected %q, got %q", fromDir, fromFile)
	}
	if !fromDir.IsLocal() {
		t.Fatalf("expected local resource")
	}
}

func TestResolveRelativePath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.Mkdir("work", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	got, err := ResolveResource("work")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !filepath.IsAbs(string(got)) {
		t.Fatalf("expected absolute path, got %q", got)
	}
	if filepath.Base(string(got)) != "work" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestResolveMissingPath(t *testing.T) {
	_, err := ResolveResource(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, schema.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestResolveEmpty(t *testing.T) {
	if _, err := ResolveResource("  "); !errors.Is(err, schema.ErrResourceRequired) {
		t.Fatalf("expected ErrResourceRequired, got %v", err)
	}
}
