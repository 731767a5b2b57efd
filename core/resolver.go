package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/juno/schema"
)

// ResolveResource normalizes a raw resource string. URLs gain a trailing
// slash; paths become absolute directories, with files replaced by their
// parent directory.
func ResolveResource(raw string) (schema.Resource, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", schema.ErrResourceRequired
	}
	if schema.IsRemoteResource(raw) {
		return schema.NormalizeRemoteResource(raw), nil
	}
	path, err := filepath.Abs(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", schema.ErrResourceNotFound, raw, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", schema.ErrResourceNotFound, err)
	}
	if !info.IsDir() {
		// The filename is dropped; the server is opened on its directory.
		path = filepath.Dir(path)
	}
	return schema.Resource(path), nil
}
