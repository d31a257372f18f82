// run.go implements the "stagehand run" command.
//
// run executes the manifest's build matrix: every job in order, or a
// single job with --job. Builds run on the host by default, or inside
// a disposable container with --container. The process exit code
// reflects the worst job outcome, so the command is directly usable as
// a pre-push gate.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stagehand/internal/config"
	"github.com/mmr-tortoise/stagehand/internal/docker"
	"github.com/mmr-tortoise/stagehand/internal/manifest"
	"github.com/mmr-tortoise/stagehand/internal/model"
	"github.com/mmr-tortoise/stagehand/internal/runner"
)

// runFlags holds the flag values for the run command.
type runFlags struct {
	commonFlags

	// job selects a single matrix job by 1-based number. Zero runs all.
	job int

	// only restricts execution to a comma-separated list of phases.
	only []string

	// skipAddons disables the synthesized apt-addons phase.
	skipAddons bool

	// container runs the build inside Docker instead of on the host.
	container bool

	// image overrides the container image from the config file.
	image string

	// dryRun prints the steps that would run without executing them.
	dryRun bool

	// timeout bounds each step, overriding the config file.
	timeout time.Duration

	// allBranches ignores the manifest's branch rules.
	allBranches bool
}

// NewRunCommand creates the "run" cobra command.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [manifest]",
		Short: "Execute the manifest's build jobs",
		Long: `Execute every job of the manifest's build matrix, or a single job
selected with --job.

Phases run in lifecycle order. A failing setup step (before_install,
install, before_script, or an addon) errors the build and halts it; a
failing script step fails the build but still runs after_failure and
after_script. The after_* phases never change the outcome.

Examples:
  stagehand run
  stagehand run --job 2
  stagehand run --container --image python:3.7-slim
  stagehand run --only script --skip-addons`,

		// The optional positional argument names the manifest directly,
		// equivalent to --manifest.
		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.manifestPath = args[0]
			}
			return runRun(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.dir, "dir", "d", ".", "Project directory to build")
	cmd.Flags().StringVar(&flags.manifestPath, "manifest", "", "Explicit manifest path (bypasses search)")
	cmd.Flags().IntVarP(&flags.job, "job", "j", 0, "Run only the given matrix job (1-based)")
	cmd.Flags().StringSliceVar(&flags.only, "only", nil, "Run only the listed phases (comma-separated)")
	cmd.Flags().BoolVar(&flags.skipAddons, "skip-addons", false, "Skip the apt addons phase")
	cmd.Flags().BoolVar(&flags.container, "container", false, "Run inside a Docker container")
	cmd.Flags().StringVar(&flags.image, "image", "", "Container image (implies --container)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print steps without executing them")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Per-step timeout (e.g. 10m)")
	cmd.Flags().BoolVar(&flags.allBranches, "all-branches", false, "Ignore the manifest's branch rules")

	return cmd
}

// jobOutcome pairs a job with its result for the summary output.
type jobOutcome struct {
	Job    manifest.Job
	Result *model.BuildResult
}

func runRun(ctx context.Context, flags *runFlags) error {
	useContainer := flags.container || flags.image != ""

	// The container path streams one compiled script and cannot bound
	// individual steps, so a per-step timeout there would be a lie.
	if useContainer && flags.timeout != 0 {
		return model.NewCLIError(model.ExitGeneralError,
			"--timeout bounds individual steps and is not supported with --container")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flags.manifestPath == "" {
		flags.manifestPath = cfg.Manifest
	}

	m, err := loadManifest(flags.commonFlags)
	if err != nil {
		return err
	}
	dir, err := projectDir(m)
	if err != nil {
		return err
	}
	git, err := describeGit(dir)
	if err != nil {
		return err
	}

	// Branch rules gate the whole build, mirroring how a CI host decides
	// whether to build a push at all. A skipped build is a success.
	if !flags.allBranches && git.Branch != "" && !m.Branches.Allows(git.Branch) {
		log.Info("branch not allowed by manifest, skipping build", "branch", git.Branch)
		printRunSkipped(git.Branch)
		return nil
	}

	only, err := parsePhaseList(flags.only)
	if err != nil {
		return err
	}

	jobs, err := selectJobs(m, flags.job)
	if err != nil {
		return err
	}

	timeout := flags.timeout
	if timeout == 0 {
		timeout, err = cfg.ParseStepTimeout()
		if err != nil {
			return err
		}
	}
	skipAddons := flags.skipAddons || cfg.SkipAddons

	image := flags.image
	if image == "" {
		image = cfg.Image
	}

	outcomes := make([]jobOutcome, 0, len(jobs))
	for _, job := range jobs {
		log.Info("starting job", "job", job.Number, "of", len(jobs), "matrix", job.MatrixEntry)

		var result *model.BuildResult
		if useContainer {
			result, err = runContainerJob(ctx, m, job, containerJobOptions{
				image:      image,
				projectDir: dir,
				gitInfo:    runnerGitInfo(git),
				only:       only,
				skipAddons: skipAddons,
				dryRun:     flags.dryRun,
			})
		} else {
			r := runner.New(m, runner.Options{
				Dir:         dir,
				Git:         runnerGitInfo(git),
				Only:        only,
				SkipAddons:  skipAddons,
				StepTimeout: timeout,
				DryRun:      flags.dryRun,
			})
			result, err = r.Run(ctx, job)
		}
		if err != nil {
			return err
		}
		outcomes = append(outcomes, jobOutcome{Job: job, Result: result})
	}

	printRunResult(outcomes)

	worst := worstStatus(outcomes)
	switch worst {
	case model.StatusFailed:
		return model.NewCLIError(model.ExitBuildFailed, "build failed")
	case model.StatusErrored:
		return model.NewCLIError(model.ExitBuildErrored, "build errored")
	case model.StatusCanceled:
		return model.NewCLIError(model.ExitBuildErrored, "build canceled")
	}
	return nil
}

// containerJobOptions collects what a containerized job needs beyond
// the manifest itself.
type containerJobOptions struct {
	image      string
	projectDir string
	gitInfo    runner.GitInfo
	only       []model.Phase
	skipAddons bool
	dryRun     bool
}

// runContainerJob compiles the job to a build script and executes it in
// a disposable container. The container is labeled for later cleanup
// and removed on completion; the clean command catches any that an
// interrupted run leaves behind.
//
// The result carries only the overall status. Per-step detail stays in
// the streamed output, the same trade a remote CI worker makes.
func runContainerJob(ctx context.Context, m *manifest.Manifest, job manifest.Job, opts containerJobOptions) (*model.BuildResult, error) {
	script := runner.CompileScript(m, job, runner.ScriptOptions{
		IncludeAddons: !opts.skipAddons && len(m.AptPackages()) > 0,
		Only:          opts.only,
		Git:           opts.gitInfo,
	})

	if opts.dryRun {
		fmt.Print(script)
		return &model.BuildResult{
			JobNumber:  job.Number,
			Status:     model.StatusPassed,
			StartedAt:  time.Now().UTC(),
			FinishedAt: time.Now().UTC(),
		}, nil
	}

	cli, err := docker.NewClient()
	if err != nil {
		return nil, err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return nil, err
	}
	if err := docker.EnsureImage(ctx, cli, opts.image); err != nil {
		return nil, err
	}

	started := time.Now().UTC()
	containerID, err := docker.StartJobContainer(ctx, cli, opts.image, opts.projectDir, docker.JobMeta{
		JobNumber:    job.Number,
		Branch:       opts.gitInfo.Branch,
		Commit:       opts.gitInfo.Commit,
		ManifestPath: m.Path,
		CreatedAt:    started,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := docker.RemoveContainer(context.WithoutCancel(ctx), cli, containerID, true); err != nil {
			log.Warn("failed to remove build container", "container", containerID, "err", err)
		}
	}()

	log.Info("running job in container", "job", job.Number, "image", opts.image)
	code, err := docker.ExecBuildScript(ctx, containerID, script, os.Stdout, os.Stderr)
	if err != nil {
		return nil, err
	}

	return &model.BuildResult{
		JobNumber:  job.Number,
		Status:     runner.StatusFromScriptExit(code),
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}, nil
}

// parsePhaseList converts --only values into typed phases.
func parsePhaseList(names []string) ([]model.Phase, error) {
	phases := make([]model.Phase, 0, len(names))
	for _, name := range names {
		phase, err := model.ParsePhase(name)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("invalid --only phase %q", name), err)
		}
		phases = append(phases, phase)
	}
	return phases, nil
}

// worstStatus reduces the outcomes to the status that decides the exit
// code. Errored outranks failed, failed outranks canceled.
func worstStatus(outcomes []jobOutcome) model.BuildStatus {
	worst := model.StatusPassed
	rank := map[model.BuildStatus]int{
		model.StatusPassed:   0,
		model.StatusSkipped:  0,
		model.StatusCanceled: 1,
		model.StatusFailed:   2,
		model.StatusErrored:  3,
	}
	for _, o := range outcomes {
		if rank[o.Result.Status] > rank[worst] {
			worst = o.Result.Status
		}
	}
	return worst
}

// runResultJSON mirrors the summary structure for --json output.
type runResultJSON struct {
	Status string       `json:"status"`
	Jobs   []runJobJSON `json:"jobs"`
}

type runJobJSON struct {
	Number      int     `json:"number"`
	MatrixEntry string  `json:"matrixEntry,omitempty"`
	Status      string  `json:"status"`
	DurationSec float64 `json:"durationSeconds"`
}

func printRunResult(outcomes []jobOutcome) {
	if IsJSONOutput() {
		result := runResultJSON{
			Status: worstStatus(outcomes).String(),
			Jobs:   make([]runJobJSON, 0, len(outcomes)),
		}
		for _, o := range outcomes {
			result.Jobs = append(result.Jobs, runJobJSON{
				Number:      o.Job.Number,
				MatrixEntry: o.Job.MatrixEntry,
				Status:      o.Result.Status.String(),
				DurationSec: o.Result.Duration().Seconds(),
			})
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("%-6s %-30s %-10s %s\n", "JOB", "MATRIX", "STATUS", "DURATION")
	for _, o := range outcomes {
		matrix := o.Job.MatrixEntry
		if matrix == "" {
			matrix = "-"
		}
		fmt.Printf("%-6d %-30s %-10s %s\n",
			o.Job.Number, matrix, o.Result.Status.String(),
			o.Result.Duration().Round(time.Millisecond))
	}
}

func printRunSkipped(branch string) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]string{
			"status": model.StatusSkipped.String(),
			"branch": branch,
		}, "", "  ")
		fmt.Println(string(data))
		return
	}
	fmt.Printf("Build skipped: branch %q is excluded by the manifest's branch rules.\n", branch)
}
