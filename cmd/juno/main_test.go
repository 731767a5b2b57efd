package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/juno/internal/settings"
	"pkt.systems/juno/schema"
)

func TestRootSubcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"pick", "sources", "conda", "init", "version"}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected root command to include %s", name)
		}
	}
}

func TestRootPersistentFlags(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"config", "state-dir", "chrome", "listen", "headless"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Fatalf("expected persistent flag --%s", name)
		}
	}
	if flag := root.PersistentFlags().ShorthandLookup("c"); flag == nil || flag.Name != "config" {
		t.Fatalf("expected -c to alias --config")
	}
}

func TestRootRejectsExtraArgs(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"/a", "/b"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected two resources to be rejected")
	}
}

func TestLaunchOptionsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	opts := launchOptions{
		configPath: filepath.Join(dir, "missing.yaml"),
		stateDir:   dir,
		chrome:     "/opt/chrome",
		listen:     "127.0.0.1:9999",
		headless:   true,
	}
	cfg, err := opts.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StateDir != dir || cfg.Browser.ExecPath != "/opt/chrome" || cfg.HTTP.Addr != "127.0.0.1:9999" || !cfg.Browser.Headless {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	appCfg := toAppConfig(cfg)
	if appCfg.StateDir != dir || appCfg.HTTP.Addr != "127.0.0.1:9999" || appCfg.Browser.ExecPath != "/opt/chrome" {
		t.Fatalf("unexpected app config %+v", appCfg)
	}
	if appCfg.Shell.DefaultCommand != schema.DefaultLaunchCommand {
		t.Fatalf("unexpected default command %q", appCfg.Shell.DefaultCommand)
	}
}

func TestSourcesPrintsRecentResources(t *testing.T) {
	dir := t.TempDir()
	store, err := settings.Open(settings.Options{Dir: dir})
	if err != nil {
		t.Fatalf("open settings: %v", err)
	}
	store.UpdateSources(schema.Resource("/work/a"))
	store.UpdateSources(schema.Resource("https://example.com/"))
	if err := store.Close(); err != nil {
		t.Fatalf("close settings: %v", err)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"sources", "--state-dir", dir, "-c", filepath.Join(dir, "missing.yaml")})
	if err := root.Execute(); err != nil {
		t.Fatalf("sources: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || lines[0] != "https://example.com/" || lines[1] != "/work/a" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestInitWritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "juno", "config.yaml")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"init", "-c", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("init: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(data), "config_version: 1") {
		t.Fatalf("unexpected config %s", data)
	}

	root = newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"init", "-c", path})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected existing config to be kept without --force")
	}
	root = newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"init", "-c", path, "--force"})
	if err := root.Execute(); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}

func TestVersionPrintsBuildInfo(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out.String()) == "" {
		t.Fatalf("expected version output")
	}
}

func TestRunAppRejectsMissingResourceBeforeStart(t *testing.T) {
	dir := t.TempDir()
	opts := launchOptions{
		configPath: filepath.Join(dir, "missing.yaml"),
		stateDir:   dir,
		chrome:     filepath.Join(dir, "no-chrome"),
		listen:     "127.0.0.1:0",
	}
	err := runApp(context.Background(), opts, filepath.Join(dir, "does-not-exist"))
	if !errors.Is(err, schema.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, settings.FileName)); !os.IsNotExist(statErr) {
		t.Fatalf("expected nothing to start, settings stat: %v", statErr)
	}
}
