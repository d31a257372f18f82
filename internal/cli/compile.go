// compile.go implements the "stagehand compile" command.
//
// compile renders one matrix job as the standalone POSIX build script
// that container runs execute. Writing it to a file lets users inspect
// exactly what would run, or execute it themselves in any environment
// with /bin/sh.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stagehand/internal/model"
	"github.com/mmr-tortoise/stagehand/internal/runner"
)

// compileFlags holds the flag values for the compile command.
type compileFlags struct {
	commonFlags

	// job selects the matrix job to compile.
	job int

	// output is the destination file; "-" or empty writes to stdout.
	output string

	// skipAddons omits the apt-addons phase from the script.
	skipAddons bool
}

// NewCompileCommand creates the "compile" cobra command.
func NewCompileCommand() *cobra.Command {
	flags := &compileFlags{}

	cmd := &cobra.Command{
		Use:   "compile [manifest]",
		Short: "Render a job as a standalone build script",
		Long: `Render the selected matrix job as a standalone POSIX sh script.

The script embeds the job's environment, runs the phases with the same
gating as the runner, and exits 0 when the build passed, 20 when it
failed, and 30 when it errored.

Examples:
  stagehand compile
  stagehand compile --job 2 -o build.sh`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.manifestPath = args[0]
			}
			return runCompile(flags)
		},
	}

	cmd.Flags().StringVarP(&flags.dir, "dir", "d", ".", "Project directory")
	cmd.Flags().StringVar(&flags.manifestPath, "manifest", "", "Explicit manifest path (bypasses search)")
	cmd.Flags().IntVarP(&flags.job, "job", "j", 1, "Matrix job to compile (1-based)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write the script to a file instead of stdout")
	cmd.Flags().BoolVar(&flags.skipAddons, "skip-addons", false, "Omit the apt addons phase")

	return cmd
}

func runCompile(flags *compileFlags) error {
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
	jobs, err := selectJobs(m, flags.job)
	if err != nil {
		return err
	}

	script := runner.CompileScript(m, jobs[0], runner.ScriptOptions{
		IncludeAddons: !flags.skipAddons,
		Git:           runnerGitInfo(git),
	})

	if flags.output == "" || flags.output == "-" {
		fmt.Print(script)
		return nil
	}

	// 0o755 so the result is directly executable.
	if err := os.WriteFile(flags.output, []byte(script), 0o755); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to write %q", flags.output), err)
	}
	return nil
}
