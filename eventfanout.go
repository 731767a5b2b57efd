package juno

import (
	"pkt.systems/juno/core"
	"pkt.systems/juno/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnWindowEvent(event schema.WindowEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnWindowEvent(event)
	}
}
