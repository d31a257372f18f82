// lint.go implements the "stagehand lint" command.
//
// lint parses the manifest and reports problems without executing
// anything: a missing script phase, malformed env entries, unknown
// top-level keys, references to variables that nothing declares, and
// sections that are parsed but not executed. Errors fail the command;
// warnings fail it only under --strict.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stagehand/internal/manifest"
	"github.com/mmr-tortoise/stagehand/internal/model"
)

// lintFlags holds the flag values for the lint command.
type lintFlags struct {
	commonFlags

	// strict treats warnings as errors.
	strict bool
}

// NewLintCommand creates the "lint" cobra command.
func NewLintCommand() *cobra.Command {
	flags := &lintFlags{}

	cmd := &cobra.Command{
		Use:   "lint [manifest]",
		Short: "Check the manifest for problems without running it",
		Long: `Parse the manifest and report problems without executing anything.

Errors (missing script phase, malformed env entries) make the command
fail with the manifest-invalid exit code. Warnings (unknown keys,
undeclared variable references, sections that are parsed but never
executed) are informational unless --strict is set.

Examples:
  stagehand lint
  stagehand lint --strict
  stagehand lint --manifest ci/.travis.yml --json`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.manifestPath = args[0]
			}
			return runLint(flags)
		},
	}

	cmd.Flags().StringVarP(&flags.dir, "dir", "d", ".", "Project directory to check")
	cmd.Flags().StringVar(&flags.manifestPath, "manifest", "", "Explicit manifest path (bypasses search)")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "Treat warnings as errors")

	return cmd
}

func runLint(flags *lintFlags) error {
	m, err := loadManifest(flags.commonFlags)
	if err != nil {
		return err
	}

	issues := manifest.Lint(m)
	printLintResult(m.Path, issues)

	if manifest.HasErrors(issues) {
		return model.NewCLIError(model.ExitManifestInvalid, "manifest has errors")
	}
	if flags.strict && len(issues) > 0 {
		return model.NewCLIError(model.ExitManifestInvalid, "manifest has warnings (strict mode)")
	}
	return nil
}

// lintIssueJSON mirrors a single issue for --json output.
type lintIssueJSON struct {
	Severity string `json:"severity"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

func printLintResult(path string, issues []manifest.Issue) {
	if IsJSONOutput() {
		result := struct {
			Manifest string          `json:"manifest"`
			Issues   []lintIssueJSON `json:"issues"`
		}{
			Manifest: path,
			Issues:   make([]lintIssueJSON, 0, len(issues)),
		}
		for _, issue := range issues {
			result.Issues = append(result.Issues, lintIssueJSON{
				Severity: string(issue.Severity),
				Field:    issue.Field,
				Message:  issue.Message,
			})
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(issues) == 0 {
		fmt.Printf("%s: no problems found.\n", path)
		return
	}
	for _, issue := range issues {
		fmt.Printf("%s: %s\n", path, issue.String())
	}
}
