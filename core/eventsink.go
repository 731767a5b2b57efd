package core

import "pkt.systems/juno/schema"

// EventSink receives window and server lifecycle events from the shell.
type EventSink interface {
	OnWindowEvent(event schema.WindowEvent)
}

type nopSink struct{}

func (nopSink) OnWindowEvent(schema.WindowEvent) {}
