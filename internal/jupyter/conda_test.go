package jupyter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/juno/schema"
)

func fakeShell(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bash")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write shell: %v", err)
	}
	prev := condaShell
	condaShell = path
	t.Cleanup(func() { condaShell = prev })
}

func TestCondaCommandKeepsDefaultArgs(t *testing.T) {
	fakeShell(t, `echo /opt/conda/envs/science/bin/jupyter`)
	cmd, err := CondaCommand(context.Background(), "science", schema.DefaultLaunchCommand)
	if err != nil {
		t.Fatalf("conda: %v", err)
	}
	if cmd != "/opt/conda/envs/science/bin/jupyter lab --no-browser" {
		t.Fatalf("unexpected command %q", cmd)
	}
}

func TestCondaCommandReportsActivationFailure(t *testing.T) {
	fakeShell(t, `echo "Could not find conda environment: missing" >&2; exit 1`)
	_, err := CondaCommand(context.Background(), "missing", schema.DefaultLaunchCommand)
	if err == nil || !strings.Contains(err.Error(), "Could not find conda environment") {
		t.Fatalf("expected activation error, got %v", err)
	}
}

func TestCondaCommandRequiresName(t *testing.T) {
	if _, err := CondaCommand(context.Background(), " ", schema.DefaultLaunchCommand); err == nil {
		t.Fatalf("expected error for empty env")
	}
}
