// Package proxyctl holds the process-lifecycle capabilities for the
// external proxy: executing its reload action and probing its health
// endpoint. The proxy itself is a black box; its only contract here is
// an exit status and an HTTP 200.
package proxyctl

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// CommandReloader reloads the proxy by running an external command,
// e.g. "docker-compose restart s3proxy".
type CommandReloader struct {
	argv []string
}

// NewCommandReloader creates a CommandReloader from an argv. The
// command is executed directly, without a shell.
func NewCommandReloader(argv []string) (*CommandReloader, error) {
	if len(argv) == 0 {
		return nil, errors.New("reload command is empty")
	}
	return &CommandReloader{argv: argv}, nil
}

// Reload runs the command, bounded by the context. A timeout is
// reported as a failure like any other; the caller decides whether to
// try again.
func (r *CommandReloader) Reload(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, r.argv[0], r.argv[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("reload command %q timed out", strings.Join(r.argv, " "))
		}
		return fmt.Errorf("reload command %q failed: %w (output: %s)", strings.Join(r.argv, " "), err, strings.TrimSpace(string(output)))
	}
	log.Debug().Str("command", strings.Join(r.argv, " ")).Msg("Reload command completed")
	return nil
}
