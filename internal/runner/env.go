// env.go assembles the environment for a build job.
package runner

import (
	"strconv"
	"strings"

	"github.com/mmr-tortoise/stagehand/internal/manifest"
)

// GitInfo carries the repository metadata the runner exposes to builds.
// Zero values are allowed; the corresponding variables are then set to
// empty strings, matching how CI hosts behave outside a repository.
type GitInfo struct {
	Branch string
	Commit string
}

// BuildJobEnv assembles the full environment for a job in precedence
// order: the base process environment first, then the runner built-ins,
// then the manifest variables (global before matrix row, as ordered by
// ExpandJobs). Later assignments win.
//
// Built-ins mirror conventional CI worker variables:
//
//	CI=true  STAGEHAND=true
//	STAGEHAND_BRANCH, STAGEHAND_COMMIT, STAGEHAND_JOB_NUMBER
func BuildJobEnv(base []string, job manifest.Job, git GitInfo) []string {
	entries := make([]envEntry, 0, len(base)+len(job.Env)+5)
	for _, kv := range base {
		name, value, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		entries = append(entries, envEntry{name, value})
	}

	entries = append(entries,
		envEntry{"CI", "true"},
		envEntry{"STAGEHAND", "true"},
		envEntry{"STAGEHAND_BRANCH", git.Branch},
		envEntry{"STAGEHAND_COMMIT", git.Commit},
		envEntry{"STAGEHAND_JOB_NUMBER", strconv.Itoa(job.Number)},
	)

	for _, v := range job.Env {
		entries = append(entries, envEntry{v.Name, v.Value})
	}

	return dedupe(entries)
}

type envEntry struct {
	name  string
	value string
}

// dedupe collapses repeated names, keeping the LAST value but the FIRST
// position, so the result is deterministic and has exactly one entry per
// name.
func dedupe(entries []envEntry) []string {
	last := make(map[string]string, len(entries))
	for _, e := range entries {
		last[e.name] = e.value
	}

	result := make([]string, 0, len(last))
	seen := make(map[string]bool, len(last))
	for _, e := range entries {
		if seen[e.name] {
			continue
		}
		seen[e.name] = true
		result = append(result, e.name+"="+last[e.name])
	}
	return result
}
