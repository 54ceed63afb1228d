package container

import (
	"fmt"

	"github.com/docker/docker/api/types/container"

	"github.com/edgekit/device-manager/internal/api"
)

// StateInfo holds the result of mapping a Docker container state onto the
// API's container status model.
type StateInfo struct {
	// Status is the mapped lifecycle state.
	Status api.ContainerStatus

	// ErrorMessage carries details for containers in a failed state.
	ErrorMessage string

	// ExitCode is the container exit code, meaningful for exited containers.
	ExitCode int

	// IsRunning indicates whether the container is currently running.
	IsRunning bool
}

// mapState converts a Docker container state to our status model. This is
// the single source of truth for the mapping:
//
//	running            -> StatusRunning
//	created            -> StatusCreated
//	exited, dead       -> StatusExited (ErrorMessage set for non-zero exit)
//	restarting         -> StatusRestarting
//	anything else      -> StatusUnknown
func mapState(state *container.State) StateInfo {
	if state == nil {
		return StateInfo{Status: api.StatusUnknown}
	}

	info := StateInfo{
		IsRunning: state.Running,
		ExitCode:  state.ExitCode,
	}

	switch {
	case state.Running:
		info.Status = api.StatusRunning

	case state.Restarting:
		info.Status = api.StatusRestarting

	case state.Status == "created":
		info.Status = api.StatusCreated

	case state.Status == "exited" || state.Status == "dead":
		info.Status = api.StatusExited
		if state.ExitCode != 0 {
			info.ErrorMessage = formatExitError(state)
		}

	default:
		info.Status = api.StatusUnknown
		info.ErrorMessage = fmt.Sprintf("container in unexpected state: %s", state.Status)
	}

	return info
}

func formatExitError(state *container.State) string {
	if state.Error != "" {
		return fmt.Sprintf("container exited with code %d: %s", state.ExitCode, state.Error)
	}
	return fmt.Sprintf("container exited with code %d", state.ExitCode)
}
