package core

import (
	"github.com/google/uuid"

	"pkt.systems/juno/schema"
)

func newWindowID() schema.WindowID {
	return schema.WindowID(uuid.NewString())
}
