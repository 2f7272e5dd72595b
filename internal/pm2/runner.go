package pm2

import (
	"context"
	"errors"
	"os/exec"
)

// Runner invokes one external command and reports its stdout and exit code.
// A non-zero exit code is a normal result, not an error; err is reserved for
// spawn-level failures (binary missing, fork failure).
type Runner interface {
	Run(ctx context.Context, argv []string) (out []byte, exitCode int, err error)
}

// ExecRunner runs commands directly via os/exec, without a shell.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, argv []string) ([]byte, int, error) {
	if len(argv) == 0 {
		return nil, 0, errors.New("empty argv")
	}
	// ok: argv comes from configured command templates, not a shell string
	// #nosec G204
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.Output()
	if err == nil {
		return out, 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return out, ee.ExitCode(), nil
	}
	return nil, 0, err
}
