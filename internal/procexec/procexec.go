// Package procexec isolates process invocation behind a small interface, so
// wrapper and orchestrator code never calls os/exec directly and can be
// exercised with a recording double in tests.
package procexec

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"

	"github.com/mbitsnbites/buildcache-go/internal/envutil"
)

// Command describes a single subprocess invocation: the real compiler, or a
// sandboxed probe of it.
type Command struct {
	Path       string
	Args       []string
	EnvUpdates []string // "NAME=VALUE" entries layered on top of the base environment
	Dir        string
}

// Result captures everything observed from running a Command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes Commands. Run captures output; Exec runs a command to
// completion and reports only its error. No implementation replaces the
// current process image.
type Runner interface {
	Run(cmd Command, stdin io.Reader) (Result, error)
	Exec(cmd Command) error
}

// OSRunner runs commands as real child processes via os/exec.
type OSRunner struct {
	Env envutil.Env
}

var _ Runner = OSRunner{}

func (r OSRunner) build(cmd Command) *exec.Cmd {
	execCmd := exec.Command(cmd.Path, cmd.Args...)
	execCmd.Dir = cmd.Dir
	base := r.Env.Environ()
	execCmd.Env = append(append([]string{}, base...), cmd.EnvUpdates...)
	return execCmd
}

func (r OSRunner) Run(cmd Command, stdin io.Reader) (Result, error) {
	execCmd := r.build(cmd)
	execCmd.Stdin = stdin
	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if code, ok := ExitCode(err); ok {
		res.ExitCode = code
	}
	return res, err
}

// Exec runs the command to completion, same as Run but discarding captured
// output. It does not replace the current process image.
func (r OSRunner) Exec(cmd Command) error {
	execCmd := r.build(cmd)
	execCmd.Stdin = nil
	_, err := r.Run(cmd, nil)
	return err
}

// ExitCode extracts a process exit code from an error returned by Run/Exec.
// ok is false if err is nil (success, code 0 is implied) or not an
// *exec.ExitError.
func ExitCode(err error) (code int, ok bool) {
	if err == nil {
		return 0, false
	}
	type exitCoder interface {
		ExitCode() int
	}
	if ee, ok := err.(exitCoder); ok {
		return ee.ExitCode(), true
	}
	return 0, false
}

// invocation is a single recorded Run/Exec call, kept for tests that assert
// on what was actually executed.
type invocation struct {
	Cmd    Command
	Stdout []byte
	Stderr []byte
	Err    error
}

// RecordingRunner wraps another Runner and keeps a log of every invocation,
// for asserting exactly what the wrapper would have executed without
// spawning a real process.
type RecordingRunner struct {
	Runner      Runner
	Invocations []invocation
}

var _ Runner = (*RecordingRunner)(nil)

func (r *RecordingRunner) Run(cmd Command, stdin io.Reader) (Result, error) {
	res, err := r.Runner.Run(cmd, stdin)
	r.Invocations = append(r.Invocations, invocation{Cmd: cmd, Stdout: res.Stdout, Stderr: res.Stderr, Err: err})
	return res, err
}

func (r *RecordingRunner) Exec(cmd Command) error {
	res, err := r.Runner.Run(cmd, nil)
	r.Invocations = append(r.Invocations, invocation{Cmd: cmd, Stdout: res.Stdout, Stderr: res.Stderr, Err: err})
	return err
}

// LastCommand returns the most recently recorded command, for tests that
// only care about the final dispatch.
func (r *RecordingRunner) LastCommand() (Command, error) {
	if len(r.Invocations) == 0 {
		return Command{}, fmt.Errorf("procexec: no commands recorded")
	}
	return r.Invocations[len(r.Invocations)-1].Cmd, nil
}

// FakeRunner is a Runner double that never spawns a real process. It
// returns a fixed Result (or Err, if set) for every call and records every
// command it was asked to run, for unit-testing wrapper logic in isolation
// from any actual compiler toolchain.
type FakeRunner struct {
	Result      Result
	Err         error
	Invocations []Command
}

var _ Runner = (*FakeRunner)(nil)

func (r *FakeRunner) Run(cmd Command, stdin io.Reader) (Result, error) {
	r.Invocations = append(r.Invocations, cmd)
	return r.Result, r.Err
}

func (r *FakeRunner) Exec(cmd Command) error {
	r.Invocations = append(r.Invocations, cmd)
	return r.Err
}
