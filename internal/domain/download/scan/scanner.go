package scan

import (
	"context"
	"os/exec"
	"strings"
)

// Verdict is the tri-state outcome of one scan
type Verdict string

const (
	VerdictClean    Verdict = "clean"
	VerdictInfected Verdict = "infected"
	// VerdictError covers spawn failures and unexpected exit codes; it
	// never propagates as a fault
	VerdictError Verdict = "error"
)

// Result is the classified outcome of one scanner invocation
type Result struct {
	Verdict  Verdict
	Details  string
	ExitCode int
}

// Scanner runs an integrity scan on one file
type Scanner interface {
	// Name identifies the scan engine for record keeping
	Name() string
	// Scan runs the scanner on path. It blocks until the scanner exits
	// or ctx is done, and always returns a classified Result.
	Scan(ctx context.Context, path string) Result
}

// runner executes a scanner binary and returns its combined output and
// exit code. Split out so classification can be tested without spawning
// processes.
type runner func(ctx context.Context, bin string, args []string) (output []byte, exitCode int, err error)

// classifier maps an exit code to a verdict
type classifier func(exitCode int) Verdict

// commandScanner invokes an external binary with a fixed argument
// contract per engine
type commandScanner struct {
	name     string
	bin      string
	args     func(path string) []string
	classify classifier
	run      runner
}

func (s *commandScanner) Name() string { return s.name }

func (s *commandScanner) Scan(ctx context.Context, path string) Result {
	output, code, err := s.run(ctx, s.bin, s.args(path))
	if err != nil {
		// Spawn failure (missing binary, permission): resolve to error
		// with a descriptive message rather than raising
		return Result{
			Verdict:  VerdictError,
			Details:  err.Error(),
			ExitCode: code,
		}
	}
	return Result{
		Verdict:  s.classify(code),
		Details:  condense(output),
		ExitCode: code,
	}
}

// execRun is the production runner
func execRun(ctx context.Context, bin string, args []string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			// The scanner ran; a non-zero exit is a classification input,
			// not an invocation failure
			return output, exitErr.ExitCode(), nil
		}
		return output, -1, err
	}
	return output, 0, nil
}

// condense trims scanner output to a single-line detail
func condense(output []byte) string {
	const maxDetail = 512

	s := strings.TrimSpace(string(output))
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[i+1:])
	}
	if len(s) > maxDetail {
		s = s[:maxDetail]
	}
	return s
}
