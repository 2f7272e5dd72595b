package pm2

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loykin/pmbridge/internal/metrics"
)

// DefaultTimeout bounds a single pm2 CLI invocation. pm2 itself has no such
// bound; a hung invocation would otherwise hang the calling operation forever.
const DefaultTimeout = 30 * time.Second

// Executor issues pm2 CLI commands and normalizes their output. Every
// lifecycle command is a templated string split on spaces into an argv; this
// mirrors pm2's own CLI conventions and means arguments containing embedded
// whitespace are unsupported.
type Executor struct {
	bin     string
	timeout time.Duration
	runner  Runner
	logger  *slog.Logger
}

// NewExecutor builds an executor for the given pm2 binary. Zero values fall
// back to "pm2", DefaultTimeout, ExecRunner and slog.Default respectively.
func NewExecutor(bin string, timeout time.Duration, runner Runner, logger *slog.Logger) *Executor {
	if bin == "" {
		bin = "pm2"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{bin: bin, timeout: timeout, runner: runner, logger: logger}
}

// Instruction builders. The resulting strings are split on single spaces at
// invocation time, exactly as they are stored on child records.

func (e *Executor) RestartInstruction(fullname string) string {
	return fmt.Sprintf("%s restart %s", e.bin, fullname)
}

func (e *Executor) StopInstruction(fullname string) string {
	return fmt.Sprintf("%s stop %s", e.bin, fullname)
}

func (e *Executor) RemoveInstruction(fullname string) string {
	return fmt.Sprintf("%s delete %s", e.bin, fullname)
}

func (e *Executor) ShowInstruction(fullname string) string {
	return fmt.Sprintf("%s show %s", e.bin, fullname)
}

func (e *Executor) listInstruction() string { return e.bin + " jlist" }

// StartInstruction builds the pm2 start command for a new child. The program
// is resolved relative to workdir and the remaining arguments are passed
// through after the "--" separator.
func (e *Executor) StartInstruction(workdir, program, interpreter, fullname string, args []string) string {
	return fmt.Sprintf(
		"%s start %s/%s --interpreter %s --name %s --log-date-format='YYYY-MM-DD::HH:mm:ss:SSS' -- %s",
		e.bin, workdir, program, interpreter, fullname, strings.Join(args, " "),
	)
}

// Run invokes argv with the executor's timeout applied. Non-zero exit codes
// come back as values; err is only set when the command could not be spawned.
func (e *Executor) Run(argv []string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	op := ""
	if len(argv) > 1 {
		op = argv[1]
	}
	started := time.Now()
	out, code, err := e.runner.Run(ctx, argv)
	metrics.ObserveCommand(op, code, err == nil, time.Since(started).Seconds())
	return out, code, err
}

// Do runs one templated instruction, discarding output. A non-zero exit code
// or spawn failure is logged and reported as false.
func (e *Executor) Do(instruction string) bool {
	argv := strings.Split(instruction, " ")
	_, code, err := e.Run(argv)
	if err != nil {
		e.logger.Error("failed to invoke command", "cmd", instruction, "error", err)
		return false
	}
	if code != 0 {
		e.logger.Error(fmt.Sprintf("error calling `%s`. Command returned code %d", instruction, code))
		return false
	}
	return true
}

// Restart restarts a process by its fully qualified name.
func (e *Executor) Restart(fullname string) bool { return e.Do(e.RestartInstruction(fullname)) }

// Stop stops a process by its fully qualified name.
func (e *Executor) Stop(fullname string) bool { return e.Do(e.StopInstruction(fullname)) }

// Remove deletes a process from pm2 by its fully qualified name.
func (e *Executor) Remove(fullname string) bool { return e.Do(e.RemoveInstruction(fullname)) }

// ListAll returns every process pm2 knows about. A command failure or a
// malformed payload is logged and yields an empty slice: "no data" means
// nothing confirmed, not nothing running.
func (e *Executor) ListAll() []Record {
	instr := e.listInstruction()
	out, code, err := e.Run(strings.Split(instr, " "))
	if err != nil {
		e.logger.Error("failed to invoke command", "cmd", instr, "error", err)
		return nil
	}
	if code != 0 {
		e.logger.Error(fmt.Sprintf("error calling `%s`. Command returned code %d", instr, code))
		return nil
	}
	recs, perr := ParseList(out)
	if perr != nil {
		e.logger.Error("error parsing pm2 listing", "error", perr)
		return nil
	}
	return recs
}
