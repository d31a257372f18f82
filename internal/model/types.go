package model

import (
	"fmt"
	"strings"
	"time"
)

// Phase identifies one stage of the CI build lifecycle. Phases execute
// in a fixed order; the order is defined by PhaseOrder below.
type Phase string

const (
	// PhaseAptAddons is the synthesized phase that installs apt packages
	// declared under addons.apt.packages. It runs before everything else
	// because later phases may depend on the installed tools.
	PhaseAptAddons Phase = "apt-addons"

	// PhaseBeforeInstall runs preparatory commands (fetching toolchains,
	// extending PATH) before dependency installation.
	PhaseBeforeInstall Phase = "before_install"

	// PhaseInstall installs the project's dependencies.
	PhaseInstall Phase = "install"

	// PhaseBeforeScript runs final setup immediately before the script phase.
	PhaseBeforeScript Phase = "before_script"

	// PhaseScript runs the actual build/lint/test commands. This is the
	// only phase whose failure marks the build "failed" rather than
	// "errored".
	PhaseScript Phase = "script"

	// PhaseAfterSuccess runs only when every prior phase passed
	// (e.g. coverage upload).
	PhaseAfterSuccess Phase = "after_success"

	// PhaseAfterFailure runs only when the script phase failed.
	PhaseAfterFailure Phase = "after_failure"

	// PhaseAfterScript runs after the script phase regardless of its
	// outcome, as long as setup did not error first.
	PhaseAfterScript Phase = "after_script"
)

// PhaseOrder lists every phase in execution order. Consumers iterate this
// slice rather than hardcoding the sequence.
var PhaseOrder = []Phase{
	PhaseAptAddons,
	PhaseBeforeInstall,
	PhaseInstall,
	PhaseBeforeScript,
	PhaseScript,
	PhaseAfterSuccess,
	PhaseAfterFailure,
	PhaseAfterScript,
}

// String returns the string representation of the Phase.
func (p Phase) String() string {
	return string(p)
}

// IsValid checks whether the Phase is one of the known lifecycle phases.
func (p Phase) IsValid() bool {
	for _, known := range PhaseOrder {
		if p == known {
			return true
		}
	}
	return false
}

// IsSetup reports whether a failure in this phase should error the build
// and halt it. Setup covers everything up to and including before_script.
func (p Phase) IsSetup() bool {
	switch p {
	case PhaseAptAddons, PhaseBeforeInstall, PhaseInstall, PhaseBeforeScript:
		return true
	default:
		return false
	}
}

// IsAfter reports whether this is one of the after_* phases, whose
// failures are logged but never change the build result.
func (p Phase) IsAfter() bool {
	switch p {
	case PhaseAfterSuccess, PhaseAfterFailure, PhaseAfterScript:
		return true
	default:
		return false
	}
}

// ParsePhase converts a string to a Phase.
// Returns an error if the string does not name a known phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(s))
	if !p.IsValid() {
		return "", fmt.Errorf("unknown phase %q (valid: %s)", s, joinPhases())
	}
	return p, nil
}

func joinPhases() string {
	names := make([]string, len(PhaseOrder))
	for i, p := range PhaseOrder {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

// BuildStatus represents the terminal state of a build (or of a single
// phase). The states mirror conventional CI host semantics:
//
//	passed  — every gating phase exited zero
//	failed  — a script step exited non-zero
//	errored — a setup step exited non-zero (the build never ran its script)
//	canceled — the run was interrupted before completion
//	skipped — the build did not run (e.g. branch rules excluded it)
type BuildStatus string

const (
	StatusPassed   BuildStatus = "passed"
	StatusFailed   BuildStatus = "failed"
	StatusErrored  BuildStatus = "errored"
	StatusCanceled BuildStatus = "canceled"
	StatusSkipped  BuildStatus = "skipped"
)

// String returns the string representation of the BuildStatus.
func (s BuildStatus) String() string {
	return string(s)
}

// IsValid checks whether the BuildStatus is one of the defined states.
func (s BuildStatus) IsValid() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusErrored, StatusCanceled, StatusSkipped:
		return true
	default:
		return false
	}
}

// ParseBuildStatus converts a string to a BuildStatus.
func ParseBuildStatus(s string) (BuildStatus, error) {
	status := BuildStatus(strings.ToLower(s))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid build status: %q (valid: passed, failed, errored, canceled, skipped)", s)
	}
	return status, nil
}

// StepResult records the outcome of a single shell command within a phase.
type StepResult struct {
	// Command is the manifest step exactly as declared.
	Command string `json:"command"`

	// ExitCode is the command's exit status. Zero means success.
	ExitCode int `json:"exitCode"`

	// Duration is the wall-clock time the step took.
	Duration time.Duration `json:"duration"`
}

// OK reports whether the step exited successfully.
func (r StepResult) OK() bool {
	return r.ExitCode == 0
}

// PhaseResult aggregates the step results of one lifecycle phase.
type PhaseResult struct {
	// Phase is the lifecycle phase these steps belong to.
	Phase Phase `json:"phase"`

	// Steps holds the results of the steps that actually ran. When a step
	// fails, the remaining steps of the phase are aborted and therefore
	// absent from this slice.
	Steps []StepResult `json:"steps"`

	// Skipped is true when the phase was gated off (e.g. after_success on
	// a failed build) or explicitly excluded.
	Skipped bool `json:"skipped,omitempty"`
}

// OK reports whether every executed step in the phase succeeded.
func (r PhaseResult) OK() bool {
	for _, s := range r.Steps {
		if !s.OK() {
			return false
		}
	}
	return true
}

// BuildResult is the outcome of running one job of a manifest.
type BuildResult struct {
	// JobNumber is the 1-based index of the job within the expanded
	// env matrix.
	JobNumber int `json:"jobNumber"`

	// Status is the terminal state of the build.
	Status BuildStatus `json:"status"`

	// Phases lists the per-phase results in execution order, including
	// skipped phases.
	Phases []PhaseResult `json:"phases"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Duration returns the total wall-clock time of the build.
func (r *BuildResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// FirstFailure returns the phase and step that decided a failed or
// errored build, or nil values for a passed build.
func (r *BuildResult) FirstFailure() (*PhaseResult, *StepResult) {
	for i := range r.Phases {
		pr := &r.Phases[i]
		if pr.Phase.IsAfter() {
			continue
		}
		for j := range pr.Steps {
			if !pr.Steps[j].OK() {
				return pr, &pr.Steps[j]
			}
		}
	}
	return nil, nil
}

// ExitCode defines the CLI exit codes. These codes let scripts and
// outer CI layers distinguish outcome classes programmatically.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitManifestNotFound indicates no manifest file was found in the
	// expected locations.
	ExitManifestNotFound ExitCode = 2

	// ExitManifestInvalid indicates the manifest could not be parsed or
	// failed schema validation.
	ExitManifestInvalid ExitCode = 3

	// ExitBuildFailed indicates a script-phase step exited non-zero.
	ExitBuildFailed ExitCode = 4

	// ExitBuildErrored indicates a setup-phase step exited non-zero.
	ExitBuildErrored ExitCode = 5

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 6

	// ExitGitError indicates a git invocation failed.
	ExitGitError ExitCode = 7
)

// ExitCodeForStatus maps a terminal build status to the process exit code
// the run command should return.
func ExitCodeForStatus(s BuildStatus) ExitCode {
	switch s {
	case StatusFailed:
		return ExitBuildFailed
	case StatusErrored, StatusCanceled:
		return ExitBuildErrored
	default:
		return ExitSuccess
	}
}

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
