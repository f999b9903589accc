// Package killer runs the external OS command that terminates a database backend process.
package killer

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	cerrors "github.com/p-blackswan/cleaniit/internal/errors"
)

// PIDPlaceholder in an argv element is replaced with the target process id.
const PIDPlaceholder = "{pid}"

// Killer terminates the backend process with the given pid.
type Killer interface {
	Kill(ctx context.Context, pid int32) error
}

// CommandKiller runs an argv template once per kill and waits for it to finish.
type CommandKiller struct {
	argv   []string
	logger zerolog.Logger
}

// NewCommandKiller creates a CommandKiller. argv[0] is the executable; any
// element containing {pid} has it substituted.
func NewCommandKiller(argv []string, logger zerolog.Logger) (*CommandKiller, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, cerrors.Invalid("kill command is empty")
	}
	return &CommandKiller{
		argv:   append([]string(nil), argv...),
		logger: logger.With().Str("component", "killer").Logger(),
	}, nil
}

// Executable is the command's argv[0].
func (k *CommandKiller) Executable() string {
	return k.argv[0]
}

// Args returns the argv for pid.
func (k *CommandKiller) Args(pid int32) []string {
	p := strconv.FormatInt(int64(pid), 10)
	out := make([]string, len(k.argv))
	for i, a := range k.argv {
		out[i] = strings.ReplaceAll(a, PIDPlaceholder, p)
	}
	return out
}

// Kill runs the command and waits for it. Failing to start the command is an
// ErrActuation; a non-zero exit status is logged and not treated as fatal.
func (k *CommandKiller) Kill(ctx context.Context, pid int32) error {
	argv := k.Args(pid)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	k.logger.Debug().Int32("pid", pid).Strs("argv", argv).Msg("running kill command")

	if err := cmd.Start(); err != nil {
		return cerrors.Wrap(cerrors.ErrActuation, err, "starting kill command for pid "+strconv.FormatInt(int64(pid), 10))
	}
	err := cmd.Wait()
	output := strings.TrimSpace(buf.String())

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		k.logger.Debug().Int32("pid", pid).Str("output", output).Msg("kill command finished")
	case errors.As(err, &exitErr):
		k.logger.Warn().
			Int32("pid", pid).
			Int("exit_code", exitErr.ExitCode()).
			Str("output", output).
			Msg("kill command exited with non-zero status")
	default:
		return cerrors.Wrap(cerrors.ErrActuation, err, "waiting for kill command")
	}
	return nil
}

// Recorder is a Killer that remembers every pid it was asked to kill.
// It is used for previews and tests.
type Recorder struct {
	mu   sync.Mutex
	pids []int32
	Err  error
}

// Kill records pid and returns r.Err.
func (r *Recorder) Kill(_ context.Context, pid int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pids = append(r.pids, pid)
	return r.Err
}

// PIDs returns the recorded pids in call order.
func (r *Recorder) PIDs() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int32(nil), r.pids...)
}
