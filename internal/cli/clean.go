// clean.go implements the "stagehand clean" command.
//
// Normal runs remove their container when the job finishes, but an
// interrupted run (Ctrl-C during a long build, a crashed terminal)
// can leave one behind. clean finds every container carrying the
// stagehand management label and removes it. State lives entirely in
// Docker labels, so discovery needs no bookkeeping on disk.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/stagehand/internal/docker"
)

// cleanFlags holds the flag values for the clean command.
type cleanFlags struct {
	// dryRun lists leftover containers without removing them.
	dryRun bool
}

// NewCleanCommand creates the "clean" cobra command.
func NewCleanCommand() *cobra.Command {
	flags := &cleanFlags{}

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove leftover build containers",
		Long: `Find and remove build containers left behind by interrupted runs.

Containers are discovered by their stagehand labels; nothing else on
the host is touched.

Examples:
  stagehand clean
  stagehand clean --dry-run`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "List leftover containers without removing them")

	return cmd
}

func runClean(ctx context.Context, flags *cleanFlags) error {
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}

	containers, err := docker.ListBuildContainers(ctx, cli)
	if err != nil {
		return err
	}
	log.Debug("found build containers", "count", len(containers))

	removed := make([]docker.BuildContainer, 0, len(containers))
	for _, c := range containers {
		if !flags.dryRun {
			if err := docker.RemoveContainer(ctx, cli, c.ID, true); err != nil {
				// Keep going; one stuck container should not block the rest.
				log.Warn("failed to remove container", "name", c.Name, "err", err)
				continue
			}
		}
		removed = append(removed, c)
	}

	printCleanResult(removed, flags.dryRun)
	return nil
}

// cleanContainerJSON mirrors one removed container for --json output.
type cleanContainerJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Job       int       `json:"job"`
	Branch    string    `json:"branch,omitempty"`
	Manifest  string    `json:"manifest"`
	CreatedAt time.Time `json:"createdAt"`
}

func printCleanResult(containers []docker.BuildContainer, dryRun bool) {
	if IsJSONOutput() {
		result := struct {
			DryRun     bool                 `json:"dryRun"`
			Containers []cleanContainerJSON `json:"containers"`
		}{
			DryRun:     dryRun,
			Containers: make([]cleanContainerJSON, 0, len(containers)),
		}
		for _, c := range containers {
			result.Containers = append(result.Containers, cleanContainerJSON{
				ID:        c.ID,
				Name:      c.Name,
				Job:       c.Meta.JobNumber,
				Branch:    c.Meta.Branch,
				Manifest:  c.Meta.ManifestPath,
				CreatedAt: c.Meta.CreatedAt,
			})
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(containers) == 0 {
		fmt.Println("No leftover build containers found.")
		return
	}

	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}
	for _, c := range containers {
		fmt.Printf("%s %s (job %d, created %s)\n",
			verb, c.Name, c.Meta.JobNumber, c.Meta.CreatedAt.Format(time.RFC3339))
	}
}
