package whail

import (
	"errors"
	"fmt"
	"net"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/moby/moby/client"
)

// DockerError represents a user-friendly Docker error with remediation steps.
// It wraps the underlying SDK error, which stays reachable through Unwrap so
// errdefs classification keeps working on the chain.
type DockerError struct {
	Op        string   // Operation that failed (e.g., "create", "pull", "exec")
	Err       error    // Underlying error
	Message   string   // Human-readable message
	NextSteps []string // Suggested remediation steps
}

func (e *DockerError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *DockerError) Unwrap() error {
	return e.Err
}

// FormatUserError formats the error for display to users with next steps.
func (e *DockerError) FormatUserError() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", e.Message)

	if e.Err != nil {
		fmt.Fprintf(&sb, "  Details: %s\n", e.Err.Error())
	}

	if len(e.NextSteps) > 0 {
		sb.WriteString("\nNext Steps:\n")
		for i, step := range e.NextSteps {
			fmt.Fprintf(&sb, "  %d. %s\n", i+1, step)
		}
	}

	return sb.String()
}

// Cause returns the raw engine error beneath any DockerError wrapping.
func Cause(err error) error {
	var de *DockerError
	for errors.As(err, &de) && de.Err != nil {
		err = de.Err
	}
	return err
}

// IsNotFound reports whether err belongs to the engine's "not found" class.
func IsNotFound(err error) bool {
	return cerrdefs.IsNotFound(err)
}

// IsConflict reports whether err belongs to the engine's "conflict" class.
func IsConflict(err error) bool {
	return cerrdefs.IsConflict(err)
}

// IsUnreachable reports whether err is a transport failure reaching the daemon.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	var de *DockerError
	if errors.As(err, &de) && de.Op == "connect" {
		return true
	}
	cause := Cause(err)
	if client.IsErrConnectionFailed(cause) || cerrdefs.IsUnavailable(cause) {
		return true
	}
	var opErr *net.OpError
	return errors.As(cause, &opErr) && opErr.Op == "dial"
}

// Common error constructors

// ErrDockerNotRunning returns an error for when Docker daemon is not accessible.
func ErrDockerNotRunning(err error) *DockerError {
	return &DockerError{
		Op:      "connect",
		Err:     err,
		Message: "Cannot connect to Docker daemon",
		NextSteps: []string{
			"Ensure Docker is installed and running",
			"Check if Docker socket is accessible: ls -la /var/run/docker.sock",
			"Verify TORRENTBED_ENGINE_HOST or DOCKER_HOST points at a live daemon",
		},
	}
}

// ErrImageNotFound returns an error for when an image cannot be found.
func ErrImageNotFound(image string, err error) *DockerError {
	return &DockerError{
		Op:      "pull",
		Err:     err,
		Message: fmt.Sprintf("Image '%s' not found", image),
		NextSteps: []string{
			"Check the image name and tag are correct",
			"Verify you have network access to the registry",
			"Try pulling manually: docker pull " + image,
		},
	}
}

// ErrImagePullFailed returns an error for when the pull stream reports a failure.
func ErrImagePullFailed(image string, err error) *DockerError {
	return &DockerError{
		Op:      "pull",
		Err:     err,
		Message: fmt.Sprintf("Failed to pull image '%s'", image),
		NextSteps: []string{
			"Verify you have network access to the registry",
			"Check registry credentials if the image is private",
		},
	}
}

// ErrContainerNotFound returns an error for when a container cannot be found.
func ErrContainerNotFound(name string) *DockerError {
	return &DockerError{
		Op:      "find",
		Message: fmt.Sprintf("Container '%s' not found", name),
		NextSteps: []string{
			"Bring the service up first: torrentbed up",
			"Check all containers: docker ps -a",
		},
	}
}

// ErrContainerCreateFailed returns an error for when container creation fails.
func ErrContainerCreateFailed(name string, err error) *DockerError {
	return &DockerError{
		Op:      "create",
		Err:     err,
		Message: fmt.Sprintf("Failed to create container '%s'", name),
		NextSteps: []string{
			"Check if the image exists",
			"Verify volume mount paths are valid",
			"Review Docker daemon logs for details",
		},
	}
}

// ErrContainerStartFailed returns an error for when a container fails to start.
func ErrContainerStartFailed(name string, err error) *DockerError {
	return &DockerError{
		Op:      "start",
		Err:     err,
		Message: fmt.Sprintf("Failed to start container '%s'", name),
		NextSteps: []string{
			"Check container logs: docker logs " + name,
			"Check for host port conflicts",
		},
	}
}

// ErrContainerRemoveFailed returns an error for when container removal fails.
func ErrContainerRemoveFailed(name string, err error) *DockerError {
	return &DockerError{
		Op:      "remove",
		Err:     err,
		Message: fmt.Sprintf("Failed to remove container '%s'", name),
		NextSteps: []string{
			"Check if the container exists: docker ps -a",
			"Review Docker daemon logs for details",
		},
	}
}

// ErrContainerListFailed returns an error for when listing containers fails.
func ErrContainerListFailed(err error) *DockerError {
	return &DockerError{
		Op:      "list",
		Err:     err,
		Message: "Failed to list containers",
		NextSteps: []string{
			"Check if Docker daemon is running",
		},
	}
}

// ErrContainerExecFailed returns an error for when creating an exec instance fails.
func ErrContainerExecFailed(name string, err error) *DockerError {
	return &DockerError{
		Op:      "exec",
		Err:     err,
		Message: fmt.Sprintf("Failed to execute command in container '%s'", name),
		NextSteps: []string{
			"Check if the container is running: docker ps",
			"Verify the command exists in the container",
		},
	}
}

// ErrExecAttachFailed returns an error for when attaching to an exec instance fails.
func ErrExecAttachFailed(execID string, err error) *DockerError {
	return &DockerError{
		Op:      "exec_attach",
		Err:     err,
		Message: fmt.Sprintf("Failed to attach to exec instance '%s'", execID),
		NextSteps: []string{
			"Verify the container is still running",
		},
	}
}

// ErrExecInspectFailed returns an error for when the exit status of an exec cannot be read.
func ErrExecInspectFailed(execID string, err error) *DockerError {
	return &DockerError{
		Op:      "exec_inspect",
		Err:     err,
		Message: fmt.Sprintf("Failed to inspect exec instance '%s'", execID),
	}
}
