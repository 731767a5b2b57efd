package integration_test

import (
	"context"
	"errors"
	"strings"
	"syscall"
	"testing"
	"time"

	"pkt.systems/juno/httpapi"
	"pkt.systems/juno/schema"
)

const fakeServerURL = "http://localhost:8888/lab?token=abc"

func TestLocalNotebookServerLifecycle(t *testing.T) {
	requireLong(t)
	command := writeServerScript(t, "echo starting\necho \"  "+fakeServerURL+"\" >&2\nexec sleep 30\n")
	ta := newTestApp(t, command)
	notebook := t.TempDir()

	if err := ta.app.Open(context.Background(), notebook); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, "server url load", func() bool {
		for _, surface := range ta.display.list() {
			for _, url := range surface.loadList() {
				if url == fakeServerURL {
					return true
				}
			}
		}
		return false
	})
	started, ok := ta.events.find(schema.ServerStarted)
	if !ok || started.PID <= 0 {
		t.Fatalf("expected server_started event, got %+v", started)
	}
	if ready, ok := ta.events.find(schema.ServerReady); !ok || ready.URL != fakeServerURL {
		t.Fatalf("expected server_ready event with url, got %+v", ready)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ta.app.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, ok := ta.events.find(schema.ServerStopped); !ok {
		t.Fatalf("expected server_stopped event")
	}
	waitFor(t, "server process exit", func() bool {
		return errors.Is(syscall.Kill(started.PID, 0), syscall.ESRCH)
	})
}

func TestServerDeathOpensDiagnosticPane(t *testing.T) {
	requireLong(t)
	command := writeServerScript(t, "echo boom >&2\nexit 3\n")
	ta := newTestApp(t, command)

	if err := ta.app.Open(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, "server exit", func() bool {
		_, ok := ta.events.find(schema.ServerExited)
		return ok
	})
	exited, _ := ta.events.find(schema.ServerExited)
	if exited.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %+v", exited)
	}
	waitFor(t, "diagnostic pane", func() bool {
		return ta.display.modal() != nil
	})
	pane := ta.display.modal()
	if loads := pane.loadList(); len(loads) != 1 || !strings.Contains(loads[0], "/server.html?") {
		t.Fatalf("unexpected pane loads %v", loads)
	}

	events := readStream(t, ta.display.params.BaseURL, pane.ID(), func(events []httpapi.StreamEvent) bool {
		for _, event := range events {
			if event.Type == schema.MessageOutputLine && strings.Contains(event.Line, "boom") {
				return true
			}
		}
		return false
	})
	if events[0].Type != schema.MessageSetTitle || events[0].Title != schema.PaneTitleDied {
		t.Fatalf("expected pane title first, got %+v", events[0])
	}
}

func TestUnspawnableCommandReportsFailure(t *testing.T) {
	requireLong(t)
	ta := newTestApp(t, "/nonexistent/jupyter lab")

	if err := ta.app.Open(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, "spawn failure", func() bool {
		_, ok := ta.events.find(schema.ServerFailed)
		return ok
	})
	waitFor(t, "diagnostic pane", func() bool {
		return ta.display.modal() != nil
	})
	events := readStream(t, ta.display.params.BaseURL, ta.display.modal().ID(), func(events []httpapi.StreamEvent) bool {
		for _, event := range events {
			if event.Type == schema.MessageOutputLine && strings.Contains(event.Line, "Error spawning server process: ENOENT") {
				return true
			}
		}
		return false
	})
	if events[0].Title != schema.PaneTitleFailedToStart {
		t.Fatalf("expected failed-to-start title, got %+v", events[0])
	}
}
