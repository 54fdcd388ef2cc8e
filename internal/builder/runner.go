package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/sddekit/sddemake/internal/msg"
)

var errEmptyCommand = errors.New("empty command")

// Result is what a finished tool invocation left behind
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner starts an external tool and waits for it. A tool that ran but exited
// non-zero is reported as an *ExitError.
type Runner interface {
	Run(ctx context.Context, argv []string) (Result, error)
}

// ExitError is returned when a tool exits with a non-zero status
type ExitError struct {
	Argv   []string
	Code   int
	Stderr []byte
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Argv[0], e.Code)
}

// ExecRunner runs tools with os/exec. Streams are copied to Stdout/Stderr
// while the tool runs and captured in the Result.
type ExecRunner struct {
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

func NewExecRunner(dir string) *ExecRunner {
	return &ExecRunner{Dir: dir, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (r *ExecRunner) Run(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errEmptyCommand
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir
	cmd.Stdout = teeTo(&stdout, r.Stdout)
	cmd.Stderr = teeTo(&stderr, r.Stderr)

	err := cmd.Run()
	res := Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case ctx.Err() != nil:
		return res, fmt.Errorf("%s: %w", argv[0], ctx.Err())
	case errors.As(err, &exitErr):
		return res, &ExitError{Argv: argv, Code: exitErr.ExitCode(), Stderr: res.Stderr}
	default:
		return res, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
}

func teeTo(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}

// DryRunner prints every command instead of running it
type DryRunner struct {
	W io.Writer
}

func (r *DryRunner) Run(ctx context.Context, argv []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	w := &msg.IndentWriter{Indent: "    ", W: r.W}
	fmt.Fprintln(w, msg.Command(argv))
	return Result{}, nil
}
