package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mmr-tortoise/stagehand/internal/manifest"
	"github.com/mmr-tortoise/stagehand/internal/model"
)

// Options configures a Runner.
type Options struct {
	// Dir is the working directory steps run in. Defaults to the
	// manifest's directory when empty.
	Dir string

	// Stdout and Stderr receive step output. Default to os.Stdout and
	// os.Stderr.
	Stdout io.Writer
	Stderr io.Writer

	// Logger receives phase/step progress. Defaults to the package-level
	// charmbracelet logger.
	Logger *log.Logger

	// Git provides the branch/commit built-in variables.
	Git GitInfo

	// Only restricts execution to the listed phases. Empty means all.
	// The outcome gating still applies to the phases that do run.
	Only []model.Phase

	// SkipAddons disables the synthesized apt-addons phase.
	SkipAddons bool

	// StepTimeout bounds each individual step. Zero means no limit.
	StepTimeout time.Duration

	// DryRun logs every step that would run without executing anything.
	// A dry run always passes.
	DryRun bool
}

// Runner executes build jobs of one manifest.
type Runner struct {
	m    *manifest.Manifest
	opts Options
}

// New creates a Runner for the given manifest, filling in option
// defaults.
func New(m *manifest.Manifest, opts Options) *Runner {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Runner{m: m, opts: opts}
}

// Run executes one job: all lifecycle phases in order with CI gating
// semantics. The returned BuildResult is always non-nil on a nil error;
// a failed or errored build is a successful Run with the corresponding
// status.
func (r *Runner) Run(ctx context.Context, job manifest.Job) (*model.BuildResult, error) {
	result := &model.BuildResult{
		JobNumber: job.Number,
		StartedAt: time.Now().UTC(),
	}

	env := BuildJobEnv(os.Environ(), job, r.opts.Git)
	session, err := NewSession(r.opts.Dir, env, r.opts.Stdout, r.opts.Stderr)
	if err != nil {
		return nil, err
	}

	var errored, failed, canceled bool
	for _, phase := range model.PhaseOrder {
		steps := r.stepsFor(phase)
		pr := model.PhaseResult{Phase: phase}

		if len(steps) == 0 || canceled || r.skipPhase(phase, errored, failed) {
			pr.Skipped = len(steps) > 0
			result.Phases = append(result.Phases, pr)
			continue
		}

		r.opts.Logger.Info("phase", "name", phase.String(), "steps", len(steps), "job", job.Number)

		for _, step := range steps {
			sr, stepErr := r.runStep(ctx, session, phase, step)
			if stepErr != nil {
				if errors.Is(stepErr, context.Canceled) || errors.Is(stepErr, context.DeadlineExceeded) {
					canceled = true
					pr.Steps = append(pr.Steps, sr)
					break
				}
				return nil, stepErr
			}
			pr.Steps = append(pr.Steps, sr)

			if sr.ExitCode != 0 {
				// A failing step aborts the remaining steps of its phase.
				switch {
				case phase.IsSetup():
					errored = true
					r.opts.Logger.Error("setup step failed, build errored",
						"phase", phase.String(), "step", step, "exit", sr.ExitCode)
				case phase == model.PhaseScript:
					failed = true
					r.opts.Logger.Error("script step failed, build failed",
						"step", step, "exit", sr.ExitCode)
				default:
					// after_* failures never change the build result.
					r.opts.Logger.Warn("post-build step failed, result unchanged",
						"phase", phase.String(), "step", step, "exit", sr.ExitCode)
				}
				break
			}
		}

		result.Phases = append(result.Phases, pr)
	}

	result.FinishedAt = time.Now().UTC()
	switch {
	case canceled:
		result.Status = model.StatusCanceled
	case errored:
		result.Status = model.StatusErrored
	case failed:
		result.Status = model.StatusFailed
	default:
		result.Status = model.StatusPassed
	}

	r.opts.Logger.Info("build finished",
		"job", job.Number, "status", result.Status.String(), "duration", result.Duration().Round(time.Millisecond))
	return result, nil
}

// runStep executes a single step with the optional per-step timeout.
func (r *Runner) runStep(ctx context.Context, session *Session, phase model.Phase, step string) (model.StepResult, error) {
	r.opts.Logger.Debug("step", "phase", phase.String(), "cmd", step)

	if r.opts.DryRun {
		r.opts.Logger.Info("dry-run", "phase", phase.String(), "cmd", step)
		return model.StepResult{Command: step}, nil
	}

	stepCtx := ctx
	if r.opts.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, r.opts.StepTimeout)
		defer cancel()
	}

	start := time.Now()
	code, err := session.Run(stepCtx, step)
	sr := model.StepResult{
		Command:  step,
		ExitCode: code,
		Duration: time.Since(start),
	}
	if err != nil {
		return sr, err
	}
	return sr, nil
}

// skipPhase applies the outcome gating and the --only filter.
func (r *Runner) skipPhase(phase model.Phase, errored, failed bool) bool {
	if !phaseSelected(r.opts.Only, phase) {
		return true
	}

	// Once setup errored, nothing else runs — the worker never reached
	// the script stage, so even after_script stays off.
	if errored {
		return true
	}

	switch phase {
	case model.PhaseAfterSuccess:
		return failed
	case model.PhaseAfterFailure:
		return !failed
	default:
		return false
	}
}

// phaseSelected applies an --only phase filter. An empty filter keeps
// every phase. Shared with the build-script compiler.
func phaseSelected(only []model.Phase, phase model.Phase) bool {
	if len(only) == 0 {
		return true
	}
	for _, p := range only {
		if p == phase {
			return true
		}
	}
	return false
}

// stepsFor returns the commands of a phase, synthesizing the apt-addons
// phase from the manifest's addon section.
func (r *Runner) stepsFor(phase model.Phase) []string {
	if phase == model.PhaseAptAddons {
		if r.opts.SkipAddons {
			return nil
		}
		return r.aptAddonSteps()
	}
	return r.m.Steps(phase)
}

// aptAddonSteps turns the apt addon declaration into shell steps.
//
// Local runs are usually unprivileged: when not running as root the
// commands are prefixed with sudo if available, and the phase is dropped
// with a warning otherwise. Container runs compile the same commands via
// script.go and execute as root.
func (r *Runner) aptAddonSteps() []string {
	packages := r.m.AptPackages()
	if len(packages) == 0 {
		return nil
	}

	prefix := ""
	if os.Geteuid() != 0 {
		if _, err := exec.LookPath("sudo"); err != nil {
			r.opts.Logger.Warn("skipping apt addons: not root and sudo not found",
				"packages", strings.Join(packages, " "))
			return nil
		}
		prefix = "sudo "
	}

	return aptCommands(prefix, packages, r.m.Addons.Apt.Update)
}

// aptCommands builds the apt-get invocations for the addons phase.
// Shared with the build-script compiler, which always runs as root and
// passes an empty prefix.
func aptCommands(prefix string, packages []string, update bool) []string {
	cmds := []string{}
	if update {
		cmds = append(cmds, prefix+"apt-get update -qq")
	}
	cmds = append(cmds,
		prefix+"apt-get install -y --no-install-recommends "+strings.Join(packages, " "))
	return cmds
}
