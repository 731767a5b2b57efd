package jupyter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"pkt.systems/juno/internal/cmdline"
)

// condaTimeout bounds the environment activation probe.
var condaTimeout = 2 * time.Second

// condaShell runs the activation script.
var condaShell = "/bin/bash"

// CondaCommand returns a launch command that runs jupyter from the conda
// environment env, keeping the arguments of defaultCommand.
func CondaCommand(ctx context.Context, env, defaultCommand string) (string, error) {
	env = strings.TrimSpace(env)
	if env == "" {
		return "", errors.New("conda environment name is required")
	}
	args, err := cmdline.Args(defaultCommand)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, condaTimeout)
	defer cancel()

	script := fmt.Sprintf("source activate %s && which jupyter", cmdline.Join([]string{env}))
	cmd := exec.CommandContext(ctx, condaShell, "-c", script)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("conda environment %s: %w: %s", env, err, msg)
		}
		return "", fmt.Errorf("conda environment %s: %w", env, err)
	}
	path := strings.TrimSpace(string(out))
	if path == "" {
		return "", fmt.Errorf("conda environment %s: jupyter not found", env)
	}
	return cmdline.Join(append([]string{path}, args...)), nil
}
