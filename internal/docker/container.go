// container.go implements the container lifecycle for one build job:
// pull the image, create and start a labeled container with the project
// bind-mounted, stream the compiled build script through docker exec,
// and remove the container afterwards.
//
// Creation and removal go through the Docker SDK. Script execution
// shells out to "docker exec" instead, because streaming stdin and
// interleaved output through the SDK's hijacked-connection exec API is
// considerably more involved than the CLI equivalent.
package docker

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"

	"github.com/mmr-tortoise/stagehand/internal/model"
)

// BuildWorkdir is where the project directory is mounted inside the
// build container, and the working directory every phase runs in.
const BuildWorkdir = "/build"

// BuildContainer describes one stagehand-managed container, as listed
// by ListBuildContainers.
type BuildContainer struct {
	ID     string
	Name   string
	Status string
	Meta   JobMeta
}

// EnsureImage pulls the image if the daemon does not have it yet.
// Pull progress is discarded; the caller logs around this call.
func EnsureImage(ctx context.Context, cli *Client, ref string) error {
	if _, err := cli.Inner().ImageInspect(ctx, ref); err == nil {
		return nil
	}

	rc, err := cli.Inner().ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to pull image %q", ref),
			err,
		)
	}
	defer rc.Close()

	// The pull is not complete until the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("image pull for %q interrupted", ref),
			err,
		)
	}
	return nil
}

// StartJobContainer creates and starts a container for one build job.
// The project directory is bind-mounted read-write at BuildWorkdir, and
// the container idles on sleep so that docker exec can run the build
// script against it. The returned ID is used for exec and removal.
func StartJobContainer(ctx context.Context, cli *Client, imageRef, projectDir string, meta JobMeta) (string, error) {
	name := fmt.Sprintf("stagehand-job-%d-%d", meta.JobNumber, time.Now().Unix())

	created, err := cli.Inner().ContainerCreate(ctx,
		&container.Config{
			Image:      imageRef,
			Cmd:        []string{"sleep", "infinity"},
			WorkingDir: BuildWorkdir,
			Labels:     BuildLabels(meta),
		},
		&container.HostConfig{
			Binds: []string{projectDir + ":" + BuildWorkdir},
		},
		nil, nil, name)
	if err != nil {
		return "", model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create container for job %d", meta.JobNumber),
			err,
		)
	}

	if err := cli.Inner().ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to start container %q", name),
			err,
		)
	}

	return created.ID, nil
}

// ExecBuildScript runs a compiled build script inside a running
// container and returns the script's exit code.
//
// The script is piped to "docker exec -i <id> /bin/sh -s" on stdin, so
// nothing is written to the container filesystem. Step output streams
// to the given writers as it is produced. A non-zero script exit is not
// an error; the caller classifies the code into a build status.
func ExecBuildScript(ctx context.Context, containerID, script string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, "docker", "exec", "-i", containerID, "/bin/sh", "-s")
	cmd.Stdin = strings.NewReader(script)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return 0, model.WrapCLIError(
		model.ExitDockerNotRunning,
		fmt.Sprintf("docker exec failed for container %q", containerID),
		err,
	)
}

// ListBuildContainers queries the daemon for every container carrying
// the stagehand management label, including stopped ones. It is the
// discovery entry point for the clean command; all state comes from
// labels, not from any external database.
//
// Containers whose labels fail to parse are skipped rather than
// aborting the listing, so one corrupted container cannot block
// cleanup of the rest.
func ListBuildContainers(ctx context.Context, cli *Client) ([]BuildContainer, error) {
	// Filter server-side; cheaper than listing everything and matching
	// labels in Go.
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]BuildContainer, 0, len(containers))
	for _, c := range containers {
		meta, err := ParseLabels(c.Labels)
		if err != nil {
			continue
		}
		result = append(result, BuildContainer{
			ID:     c.ID,
			Name:   containerName(c),
			Status: c.State,
			Meta:   meta,
		})
	}

	return result, nil
}

// containerName extracts the display name from a listing entry. The
// API returns names with a leading "/" that is an artifact, not
// meaningful to users.
func containerName(c types.Container) string {
	if len(c.Names) == 0 {
		return ""
	}
	return strings.TrimPrefix(c.Names[0], "/")
}

// RemoveContainer removes a container by ID. With force true the
// container is killed first, which is what the post-build cleanup and
// the clean command both want.
func RemoveContainer(ctx context.Context, cli *Client, containerID string, force bool) error {
	err := cli.Inner().ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: force,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove container %q", containerID),
			err,
		)
	}
	return nil
}
