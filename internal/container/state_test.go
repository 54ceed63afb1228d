package container

import (
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"

	"github.com/edgekit/device-manager/internal/api"
)

func TestMapState(t *testing.T) {
	tests := []struct {
		name      string
		state     *container.State
		status    api.ContainerStatus
		errSubstr string
	}{
		{
			name:   "running",
			state:  &container.State{Status: "running", Running: true},
			status: api.StatusRunning,
		},
		{
			name:   "created",
			state:  &container.State{Status: "created"},
			status: api.StatusCreated,
		},
		{
			name:   "clean exit",
			state:  &container.State{Status: "exited", ExitCode: 0},
			status: api.StatusExited,
		},
		{
			name:      "crash",
			state:     &container.State{Status: "exited", ExitCode: 1},
			status:    api.StatusExited,
			errSubstr: "exited with code 1",
		},
		{
			name:      "oom kill with daemon error",
			state:     &container.State{Status: "dead", ExitCode: 137, Error: "OCI runtime error"},
			status:    api.StatusExited,
			errSubstr: "OCI runtime error",
		},
		{
			name:   "restarting",
			state:  &container.State{Status: "restarting", Restarting: true},
			status: api.StatusRestarting,
		},
		{
			name:      "unexpected state",
			state:     &container.State{Status: "paused"},
			status:    api.StatusUnknown,
			errSubstr: "unexpected state",
		},
		{
			name:   "nil state",
			state:  nil,
			status: api.StatusUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := mapState(tt.state)
			assert.Equal(t, tt.status, info.Status)
			if tt.errSubstr != "" {
				assert.Contains(t, info.ErrorMessage, tt.errSubstr)
			} else {
				assert.Empty(t, info.ErrorMessage)
			}
		})
	}
}
