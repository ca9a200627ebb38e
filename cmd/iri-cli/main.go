// iri-cli calls IRI API operations by id and drives compute jobs to
// completion.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit codes for failures outside the job lifecycle. Job runs exit with
// job.Result.ExitCode.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	return exitCode(cmd.ExecuteContext(ctx), stderr)
}

// exitError carries a specific process exit status.
type exitError struct {
	code int
	err  error // optional, printed when set
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitCode maps a command error to a process exit status and reports it.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return ExitCodeSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, "Error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return ExitCodeError
}
