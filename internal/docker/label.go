package docker

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Label key constants define the Docker label keys used to tag build
// containers. The labels are the sole persistence mechanism: the clean
// command reconstructs everything it needs from container inspection,
// with no external state file.
//
// All keys share the "stagehand." prefix to avoid collisions with
// labels set by other tools.
const (
	// LabelPrefix is the common prefix for all stagehand labels.
	LabelPrefix = "stagehand."

	// LabelManagedBy identifies containers created by stagehand. This is
	// the primary label used for filtering and discovery.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelJobNumber stores the 1-based job number within the build
	// matrix.
	LabelJobNumber = LabelPrefix + "job-number"

	// LabelBranch stores the Git branch the build ran against. Empty
	// outside a repository.
	LabelBranch = LabelPrefix + "branch"

	// LabelCommit stores the HEAD commit hash. Empty outside a
	// repository.
	LabelCommit = LabelPrefix + "commit"

	// LabelManifest stores the absolute path of the manifest file the
	// job was built from.
	LabelManifest = LabelPrefix + "manifest"

	// LabelCreatedAt stores the container creation time, RFC3339 in UTC.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the constant value of the LabelManagedBy label on
// every container this tool creates.
const ManagedByValue = "stagehand"

// JobMeta is the build metadata persisted on a job container through
// its labels.
type JobMeta struct {
	JobNumber    int
	Branch       string
	Commit       string
	ManifestPath string
	CreatedAt    time.Time
}

// BuildLabels constructs the Docker label map for a job container.
// ParseLabels is its inverse.
func BuildLabels(meta JobMeta) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelJobNumber: strconv.Itoa(meta.JobNumber),
		LabelBranch:    meta.Branch,
		LabelCommit:    meta.Commit,
		LabelManifest:  meta.ManifestPath,
		// UTC keeps timestamps comparable regardless of the host
		// machine's timezone.
		LabelCreatedAt: meta.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ParseLabels reconstructs JobMeta from a container's label map. It is
// used by the clean command when listing leftover build containers.
//
// Required labels: managed-by, job-number, manifest, created-at. Branch
// and commit may be empty (builds outside a repository). Missing
// required labels cause an error listing all of them at once.
func ParseLabels(labels map[string]string) (JobMeta, error) {
	requiredKeys := []string{
		LabelManagedBy,
		LabelJobNumber,
		LabelManifest,
		LabelCreatedAt,
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return JobMeta{}, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return JobMeta{}, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	jobNumber, err := strconv.Atoi(labels[LabelJobNumber])
	if err != nil {
		return JobMeta{}, fmt.Errorf("invalid label %s: %w", LabelJobNumber, err)
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return JobMeta{}, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	return JobMeta{
		JobNumber:    jobNumber,
		Branch:       labels[LabelBranch],
		Commit:       labels[LabelCommit],
		ManifestPath: labels[LabelManifest],
		CreatedAt:    createdAt,
	}, nil
}
