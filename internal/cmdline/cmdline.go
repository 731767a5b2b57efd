// Package cmdline splits launch command strings the way a POSIX shell would.
package cmdline

import (
	"fmt"
	"strings"

	"github.com/google/shlex"

	"pkt.systems/juno/schema"
)

// Split tokenizes a command line into an argument vector.
// Single and double quotes group words; backslash escapes the next rune.
func Split(command string) ([]string, error) {
	if strings.TrimSpace(command) == "" {
		return nil, schema.ErrEmptyCommand
	}
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, schema.ErrEmptyCommand
	}
	return argv, nil
}

// Args returns the arguments of a command line without its program name.
func Args(command string) ([]string, error) {
	argv, err := Split(command)
	if err != nil {
		return nil, err
	}
	return argv[1:], nil
}

// Join renders an argument vector back into a command line, quoting words
// that would otherwise be split or expanded.
func Join(argv []string) string {
	parts := make([]string, 0, len(argv))
	for _, arg := range argv {
		parts = append(parts, quote(arg))
	}
	return strings.Join(parts, " ")
}

func quote(arg string) string {
	if arg == "" {
		return "''"
	}
	if !strings.ContainsAny(arg, " \t\n'\"\\$`#;&|<>()*?[]{}~") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'"'"'`) + "'"
}
