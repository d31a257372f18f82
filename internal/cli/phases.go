// phases.go implements the "stagehand phases" command.
//
// phases prints the resolved lifecycle plan for one job: every phase in
// execution order with the steps it would run, including the
// synthesized apt-addons commands. It is the "what would happen" view
// that run --dry-run gives interactively, but without a runner.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stagehand/internal/manifest"
	"github.com/mmr-tortoise/stagehand/internal/model"
)

// phasesFlags holds the flag values for the phases command.
type phasesFlags struct {
	commonFlags

	// job selects the matrix job whose plan is shown.
	job int
}

// NewPhasesCommand creates the "phases" cobra command.
func NewPhasesCommand() *cobra.Command {
	flags := &phasesFlags{}

	cmd := &cobra.Command{
		Use:   "phases [manifest]",
		Short: "Show the resolved phase plan for a job",
		Long: `Show every lifecycle phase in execution order with the steps it
would run for the selected matrix job.

Examples:
  stagehand phases
  stagehand phases --job 2 --json`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.manifestPath = args[0]
			}
			return runPhases(flags)
		},
	}

	cmd.Flags().StringVarP(&flags.dir, "dir", "d", ".", "Project directory")
	cmd.Flags().StringVar(&flags.manifestPath, "manifest", "", "Explicit manifest path (bypasses search)")
	cmd.Flags().IntVarP(&flags.job, "job", "j", 1, "Matrix job to show (1-based)")

	return cmd
}

// phasePlan is one phase with its resolved steps.
type phasePlan struct {
	Phase string   `json:"phase"`
	Steps []string `json:"steps"`
}

func runPhases(flags *phasesFlags) error {
	m, err := loadManifest(flags.commonFlags)
	if err != nil {
		return err
	}
	jobs, err := selectJobs(m, flags.job)
	if err != nil {
		return err
	}
	job := jobs[0]

	plan := buildPhasePlan(m)
	printPhasePlan(job, plan)
	return nil
}

// buildPhasePlan resolves the steps of every non-empty phase, with the
// apt addon commands synthesized the way a root build would run them.
func buildPhasePlan(m *manifest.Manifest) []phasePlan {
	var plan []phasePlan
	for _, phase := range model.PhaseOrder {
		var steps []string
		if phase == model.PhaseAptAddons {
			if packages := m.AptPackages(); len(packages) > 0 {
				steps = aptPlanSteps(m)
			}
		} else {
			steps = m.Steps(phase)
		}
		if len(steps) == 0 {
			continue
		}
		plan = append(plan, phasePlan{Phase: phase.String(), Steps: steps})
	}
	return plan
}

// aptPlanSteps shows the addon commands without a privilege prefix; the
// actual prefix depends on how the build is run.
func aptPlanSteps(m *manifest.Manifest) []string {
	steps := []string{}
	if m.Addons.Apt.Update {
		steps = append(steps, "apt-get update -qq")
	}
	install := "apt-get install -y --no-install-recommends"
	for _, p := range m.AptPackages() {
		install += " " + p
	}
	return append(steps, install)
}

func printPhasePlan(job manifest.Job, plan []phasePlan) {
	if IsJSONOutput() {
		result := struct {
			Job    int         `json:"job"`
			Matrix string      `json:"matrixEntry,omitempty"`
			Phases []phasePlan `json:"phases"`
		}{
			Job:    job.Number,
			Matrix: job.MatrixEntry,
			Phases: plan,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	for _, p := range plan {
		fmt.Printf("%s:\n", p.Phase)
		for _, step := range p.Steps {
			fmt.Printf("  $ %s\n", step)
		}
	}
}
