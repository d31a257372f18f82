package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Session is one POSIX shell session shared by all steps of a build job.
//
// The underlying interp.Runner keeps its variable table between Run
// calls, which is what makes `export PATH=...` in a before_install step
// visible to every later step of the job.
type Session struct {
	parser *syntax.Parser
	runner *interp.Runner
}

// NewSession creates a shell session rooted at dir with the given
// environment (os.Environ-style "NAME=VALUE" entries). Step output is
// streamed to stdout/stderr as it is produced.
func NewSession(dir string, env []string, stdout, stderr io.Writer) (*Session, error) {
	r, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(nil, stdout, stderr),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create shell interpreter: %w", err)
	}

	return &Session{
		parser: syntax.NewParser(),
		runner: r,
	}, nil
}

// Run parses and executes one step in the session and returns its exit
// status. A non-zero step exit is NOT an error — it is a normal outcome
// the caller turns into phase gating. The error return is reserved for
// unparseable commands and for context cancellation.
func (s *Session) Run(ctx context.Context, command string) (int, error) {
	file, err := s.parser.Parse(strings.NewReader(command), "step")
	if err != nil {
		return 0, fmt.Errorf("step %q: %w", command, err)
	}

	if err := s.runner.Run(ctx, file); err != nil {
		var status interp.ExitStatus
		if errors.As(err, &status) {
			return int(status), nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("step %q: %w", command, err)
	}
	return 0, nil
}
