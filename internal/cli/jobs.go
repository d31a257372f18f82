// jobs.go implements the "stagehand jobs" command.
//
// jobs prints the expanded build matrix: one row per job with its
// number and environment variables. It also evaluates the manifest's
// branch rules against the current branch, so the user can see up
// front whether "run" would build or skip.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stagehand/internal/manifest"
)

// NewJobsCommand creates the "jobs" cobra command.
func NewJobsCommand() *cobra.Command {
	flags := &commonFlags{}

	cmd := &cobra.Command{
		Use:   "jobs [manifest]",
		Short: "List the expanded build matrix",
		Long: `List every job the manifest's env matrix expands to, with the
variables each job receives, and whether the current branch passes the
manifest's branch rules.

Examples:
  stagehand jobs
  stagehand jobs --json`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.manifestPath = args[0]
			}
			return runJobs(flags)
		},
	}

	cmd.Flags().StringVarP(&flags.dir, "dir", "d", ".", "Project directory")
	cmd.Flags().StringVar(&flags.manifestPath, "manifest", "", "Explicit manifest path (bypasses search)")

	return cmd
}

func runJobs(flags *commonFlags) error {
	m, err := loadManifest(*flags)
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

	jobs, err := manifest.ExpandJobs(m)
	if err != nil {
		return err
	}

	branchAllowed := git.Branch == "" || m.Branches.Allows(git.Branch)
	printJobs(jobs, git.Branch, branchAllowed)
	return nil
}

// jobJSON mirrors one matrix job for --json output.
type jobJSON struct {
	Number      int               `json:"number"`
	MatrixEntry string            `json:"matrixEntry,omitempty"`
	Env         map[string]string `json:"env"`
}

func printJobs(jobs []manifest.Job, branch string, branchAllowed bool) {
	if IsJSONOutput() {
		result := struct {
			Branch        string    `json:"branch,omitempty"`
			BranchAllowed bool      `json:"branchAllowed"`
			Jobs          []jobJSON `json:"jobs"`
		}{
			Branch:        branch,
			BranchAllowed: branchAllowed,
			Jobs:          make([]jobJSON, 0, len(jobs)),
		}
		for _, job := range jobs {
			env := make(map[string]string, len(job.Env))
			for _, v := range job.Env {
				env[v.Name] = v.Value
			}
			result.Jobs = append(result.Jobs, jobJSON{
				Number:      job.Number,
				MatrixEntry: job.MatrixEntry,
				Env:         env,
			})
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("%-6s %s\n", "JOB", "ENV")
	for _, job := range jobs {
		fmt.Printf("%-6d %s\n", job.Number, formatJobEnv(job))
	}
	if branch != "" && !branchAllowed {
		fmt.Printf("\nNote: branch %q is excluded by the manifest's branch rules; run would skip.\n", branch)
	}
}

// formatJobEnv renders a job's variables as space-separated NAME=VALUE
// pairs, or "-" for a job with none.
func formatJobEnv(job manifest.Job) string {
	if len(job.Env) == 0 {
		return "-"
	}
	out := ""
	for i, v := range job.Env {
		if i > 0 {
			out += " "
		}
		out += v.String()
	}
	return out
}
