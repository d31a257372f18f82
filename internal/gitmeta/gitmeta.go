// Package gitmeta reads repository metadata for builds.
//
// It wraps the git CLI (via os/exec) to discover the repository root,
// the checked-out branch, and the HEAD commit, which feed the branch
// rules and the CI environment variables exposed to build steps.
//
// Design decisions:
//   - We shell out to `git` rather than using a Go Git library because
//     the three queries we need are trivial CLI invocations and the
//     binary is present wherever builds run.
//   - All errors from Git commands are wrapped in model.CLIError with
//     ExitGitError to enable proper CLI exit code handling.
//   - A directory outside any repository is a supported case, not an
//     error path: Describe degrades to empty metadata so builds can run
//     on exported tarballs.
package gitmeta

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/mmr-tortoise/stagehand/internal/model"
)

// Info holds the repository metadata attached to a build. The zero
// value describes a directory outside any repository.
type Info struct {
	// Root is the absolute path of the working tree's top-level
	// directory.
	Root string

	// Branch is the short name of the checked-out branch, or "HEAD"
	// when the repository is in a detached HEAD state.
	Branch string

	// Commit is the full HEAD commit hash.
	Commit string
}

// Describe collects the repository metadata for the given directory.
//
// When the directory is not inside a Git working tree, it returns the
// zero Info and no error; callers then run with empty branch/commit
// variables and skip branch-rule evaluation. Other git failures (for
// example a repository with no commits yet) surface as errors.
func Describe(dir string) (Info, error) {
	if !InsideWorkTree(dir) {
		return Info{}, nil
	}

	root, err := RepoRoot(dir)
	if err != nil {
		return Info{}, err
	}
	branch, err := CurrentBranch(dir)
	if err != nil {
		return Info{}, err
	}
	commit, err := HeadCommit(dir)
	if err != nil {
		return Info{}, err
	}

	return Info{Root: root, Branch: branch, Commit: commit}, nil
}

// InsideWorkTree reports whether dir is inside a Git working tree.
//
// Uses `git rev-parse --is-inside-work-tree`, which exits non-zero
// outside a repository. Only the exit code matters here.
func InsideWorkTree(dir string) bool {
	out, err := runGit(dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

// RepoRoot returns the absolute path to the top-level directory of the
// working tree containing dir.
//
// Uses `git rev-parse --show-toplevel`, which works correctly for both
// main checkouts and linked worktrees.
func RepoRoot(dir string) (string, error) {
	out, err := runGit(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CurrentBranch returns the short name of the checked-out branch at
// dir.
//
// Uses `git rev-parse --abbrev-ref HEAD`, which returns "main" rather
// than "refs/heads/main", and the literal "HEAD" in a detached state.
// Branch rules treat "HEAD" as always allowed.
func CurrentBranch(dir string) (string, error) {
	out, err := runGit(dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// HeadCommit returns the full hash of the HEAD commit at dir.
func HeadCommit(dir string) (string, error) {
	out, err := runGit(dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// runGit executes a git command in the given directory.
//
// The directory is passed via the -C flag, which makes git change there
// before doing anything else. That avoids touching the process working
// directory, which would be problematic with concurrent jobs. On
// failure the stderr output is folded into a model.CLIError with
// ExitGitError.
func runGit(dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)

	// #nosec G204 — args are constructed internally, not from user input
	cmd := exec.Command("git", fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", model.WrapCLIError(model.ExitGitError, message, err)
	}

	return stdout.String(), nil
}
