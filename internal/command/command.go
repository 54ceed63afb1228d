// Package command implements management command execution.
//
// Commands (restart, stop, start, pull, snapshot-logs) arrive from the HTTP
// API or from the fleet API poller, are queued, and are executed by a fixed
// pool of workers. The pool size is the NUM_WORKERS setting from the launch
// contract. Every command is tracked in a bounded in-memory history that
// the API exposes for status queries.
package command

import (
	"errors"
	"fmt"

	"github.com/edgekit/device-manager/internal/api"
)

// Errors returned by Submit.
var (
	// ErrQueueFull means the pending command queue is at capacity.
	ErrQueueFull = errors.New("command queue is full")

	// ErrPoolClosed means the pool is shutting down and no longer accepts
	// commands.
	ErrPoolClosed = errors.New("command pool is closed")
)

// ValidateRequest checks that a command request is well formed.
func ValidateRequest(req *api.SubmitCommandRequest) error {
	switch req.Type {
	case api.CommandRestart, api.CommandStop, api.CommandStart, api.CommandRemove, api.CommandSnapshotLogs:
		if req.ContainerID == "" {
			return fmt.Errorf("container_id is required for %s commands", req.Type)
		}
	case api.CommandPull:
		if req.Image == "" {
			return fmt.Errorf("image is required for pull commands")
		}
	case "":
		return errors.New("command type is required")
	default:
		return fmt.Errorf("unknown command type: %s", req.Type)
	}
	return nil
}
