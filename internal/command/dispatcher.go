package command

import (
	"context"
	"fmt"

	"github.com/edgekit/device-manager/internal/api"
)

// ContainerOps is the part of the container service the dispatcher drives.
type ContainerOps interface {
	Start(ctx context.Context, containerID string) error
	Stop(ctx context.Context, containerID string) error
	Restart(ctx context.Context, containerID string) error
	Remove(ctx context.Context, containerID string) error
	PullImage(ctx context.Context, ref string) error
	SnapshotLogs(ctx context.Context, containerID string, tail string) (string, error)
}

// snapshotTail bounds how many log lines a snapshot-logs command captures.
const snapshotTail = "500"

// Dispatcher maps command types onto container operations.
type Dispatcher struct {
	containers ContainerOps
}

// NewDispatcher creates a dispatcher backed by the given container
// operations.
func NewDispatcher(containers ContainerOps) *Dispatcher {
	return &Dispatcher{containers: containers}
}

// Execute runs a single command and returns its output, if any.
func (d *Dispatcher) Execute(ctx context.Context, rec *api.CommandRecord) (string, error) {
	switch rec.Type {
	case api.CommandRestart:
		return "", d.containers.Restart(ctx, rec.ContainerID)
	case api.CommandStop:
		return "", d.containers.Stop(ctx, rec.ContainerID)
	case api.CommandStart:
		return "", d.containers.Start(ctx, rec.ContainerID)
	case api.CommandRemove:
		return "", d.containers.Remove(ctx, rec.ContainerID)
	case api.CommandPull:
		return "", d.containers.PullImage(ctx, rec.Image)
	case api.CommandSnapshotLogs:
		return d.containers.SnapshotLogs(ctx, rec.ContainerID, snapshotTail)
	default:
		return "", fmt.Errorf("unknown command type: %s", rec.Type)
	}
}
