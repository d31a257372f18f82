// load.go holds the manifest/repository loading helpers shared by all
// subcommands.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/mmr-tortoise/stagehand/internal/gitmeta"
	"github.com/mmr-tortoise/stagehand/internal/manifest"
	"github.com/mmr-tortoise/stagehand/internal/model"
	"github.com/mmr-tortoise/stagehand/internal/runner"
)

// commonFlags are the project-location flags every subcommand accepts.
type commonFlags struct {
	// dir is the project directory searched for a manifest. Defaults to
	// the current directory.
	dir string

	// manifestPath names the manifest file explicitly, bypassing the
	// search order.
	manifestPath string
}

// loadManifest resolves and parses the manifest named by the flags.
func loadManifest(flags commonFlags) (*manifest.Manifest, error) {
	path := flags.manifestPath
	if path == "" {
		found, err := manifest.Find(flags.dir)
		if err != nil {
			return nil, err
		}
		path = found
	}
	return manifest.Load(path)
}

// projectDir returns the absolute directory builds run in: the
// directory containing the manifest.
func projectDir(m *manifest.Manifest) (string, error) {
	dir, err := filepath.Abs(filepath.Dir(m.Path))
	if err != nil {
		return "", model.WrapCLIError(model.ExitGeneralError, "failed to resolve project directory", err)
	}
	return dir, nil
}

// describeGit collects repository metadata for the project directory.
// Outside a repository the zero Info is returned and builds proceed
// with empty branch/commit variables.
func describeGit(dir string) (gitmeta.Info, error) {
	return gitmeta.Describe(dir)
}

// runnerGitInfo converts repository metadata to the runner's shape.
func runnerGitInfo(info gitmeta.Info) runner.GitInfo {
	return runner.GitInfo{Branch: info.Branch, Commit: info.Commit}
}

// selectJobs expands the build matrix and optionally narrows it to one
// job number. Job numbers are 1-based, matching CI convention.
func selectJobs(m *manifest.Manifest, jobNumber int) ([]manifest.Job, error) {
	jobs, err := manifest.ExpandJobs(m)
	if err != nil {
		return nil, err
	}
	if jobNumber == 0 {
		return jobs, nil
	}
	for _, job := range jobs {
		if job.Number == jobNumber {
			return []manifest.Job{job}, nil
		}
	}
	return nil, model.NewCLIError(model.ExitGeneralError,
		fmt.Sprintf("no such job %d: the matrix has %d job(s)", jobNumber, len(jobs)))
}
