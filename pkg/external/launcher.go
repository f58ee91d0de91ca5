package external

import (
	"context"
	"os/exec"
	"strings"

	"github.com/arthur-debert/modkeeper/pkg/errors"
	"github.com/arthur-debert/modkeeper/pkg/logging"
)

// Launcher starts the game. It returns once the process is started and
// never waits for it to exit.
type Launcher interface {
	Launch(ctx context.Context, progress func(string)) error
}

// CommandLauncher starts a configured command, detached from modkeeper
type CommandLauncher struct {
	Command string
	Args    []string
	// Dir is the working directory, usually the game root
	Dir string
}

func (l *CommandLauncher) Launch(ctx context.Context, progress func(string)) error {
	logger := logging.GetLogger("external.launcher")
	if progress == nil {
		progress = func(string) {}
	}
	if strings.TrimSpace(l.Command) == "" {
		return errors.New(errors.ErrExternalProcess,
			"no launch command configured; set game.launch_command or start the game yourself")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrExternalProcess, "launch cancelled")
	}

	// Not CommandContext: the game must outlive this process
	cmd := exec.Command(l.Command, l.Args...)
	cmd.Dir = l.Dir
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, errors.ErrExternalProcess, "failed to launch %s", l.Command)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return errors.Wrapf(err, errors.ErrExternalProcess, "failed to detach from %s", l.Command)
	}

	logger.Info().Str("command", l.Command).Strs("args", l.Args).Int("pid", pid).Msg("Game launched")
	progress("game launched")
	return nil
}

// ManualLauncher is used when no launch command is configured: the operator
// starts the game and the cycle only waits.
type ManualLauncher struct{}

func (ManualLauncher) Launch(_ context.Context, progress func(string)) error {
	if progress != nil {
		progress("start the game now; waiting for extraction to finish")
	}
	return nil
}
