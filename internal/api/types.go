// Package api defines the JSON types served by the device-manager HTTP API
// and exchanged with the fleet API.
//
// All types in this package are plain data carriers with no behavior, so
// they can be shared between the server handlers, the upstream client, and
// any Go consumers of the API.
package api

import "time"

// ContainerStatus describes the lifecycle state of a managed container, as
// mapped from the Docker container state.
type ContainerStatus string

const (
	// StatusRunning means the container process is up.
	StatusRunning ContainerStatus = "running"

	// StatusCreated means the container exists but was never started.
	StatusCreated ContainerStatus = "created"

	// StatusExited means the container stopped, cleanly or not. The exit
	// code and error message distinguish the two.
	StatusExited ContainerStatus = "exited"

	// StatusRestarting means Docker is restarting the container under a
	// restart policy.
	StatusRestarting ContainerStatus = "restarting"

	// StatusUnknown is reported when the container state cannot be
	// determined, e.g. inspection failed.
	StatusUnknown ContainerStatus = "unknown"
)

// Container describes a single managed inference-server container.
type Container struct {
	// ID is the full Docker container ID.
	ID string `json:"id"`

	// Name is the container name without the leading slash.
	Name string `json:"name"`

	// Image is the image reference the container was created from.
	Image string `json:"image"`

	// Status is the mapped lifecycle state.
	Status ContainerStatus `json:"status"`

	// ExitCode is the last exit code. Only meaningful when Status is
	// "exited".
	ExitCode int `json:"exit_code,omitempty"`

	// Error carries a human-readable problem description for containers
	// in a failed state.
	Error string `json:"error,omitempty"`

	// Port is the host port mapped to the inference server's HTTP port,
	// or 0 if no mapping exists.
	Port int `json:"port,omitempty"`

	// CreatedAt is when the container was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the container last started. Zero if never started.
	StartedAt time.Time `json:"started_at,omitempty"`

	// Labels are the container labels.
	Labels map[string]string `json:"labels,omitempty"`
}

// ContainerStats is a one-shot resource usage sample for a container.
type ContainerStats struct {
	// ContainerID identifies the sampled container.
	ContainerID string `json:"container_id"`

	// CPUPercent is the CPU usage as a percentage of host capacity.
	CPUPercent float64 `json:"cpu_percent"`

	// MemoryUsageBytes is the current memory consumption.
	MemoryUsageBytes uint64 `json:"memory_usage_bytes"`

	// MemoryLimitBytes is the memory limit, or total host memory when the
	// container is unconstrained.
	MemoryLimitBytes uint64 `json:"memory_limit_bytes"`

	// MemoryUsageHuman is MemoryUsageBytes rendered for display,
	// e.g. "1.2GiB".
	MemoryUsageHuman string `json:"memory_usage_human,omitempty"`
}

// DeviceInfo is the snapshot of this device returned by GET /api/device.
type DeviceInfo struct {
	// DeviceID is a stable identifier for this device, generated on first
	// start and persisted.
	DeviceID string `json:"device_id"`

	// Hostname is the device hostname.
	Hostname string `json:"hostname"`

	// OS and Arch identify the platform.
	OS   string `json:"os"`
	Arch string `json:"arch"`

	// ManagerVersion is the device-manager build version.
	ManagerVersion string `json:"manager_version"`

	// Containers are the managed containers known at snapshot time.
	Containers []Container `json:"containers"`

	// RefreshedAt is when the snapshot was last refreshed from Docker.
	RefreshedAt time.Time `json:"refreshed_at"`

	// Stale is true when the most recent refresh attempt failed and the
	// snapshot may be out of date.
	Stale bool `json:"stale,omitempty"`
}

// CommandType identifies a management operation executed against a
// container.
type CommandType string

const (
	CommandRestart      CommandType = "restart"
	CommandStop         CommandType = "stop"
	CommandStart        CommandType = "start"
	CommandRemove       CommandType = "remove"
	CommandPull         CommandType = "pull"
	CommandSnapshotLogs CommandType = "snapshot-logs"
)

// CommandState is the lifecycle state of a submitted command.
type CommandState string

const (
	CommandPending   CommandState = "pending"
	CommandRunning   CommandState = "running"
	CommandSucceeded CommandState = "succeeded"
	CommandFailed    CommandState = "failed"
)

// SubmitCommandRequest is the body of POST /api/commands.
type SubmitCommandRequest struct {
	// Type is the operation to perform.
	Type CommandType `json:"type"`

	// ContainerID targets a managed container. Required for all command
	// types except "pull".
	ContainerID string `json:"container_id,omitempty"`

	// Image is the image reference for "pull" commands.
	Image string `json:"image,omitempty"`
}

// CommandRecord describes a command and its outcome.
type CommandRecord struct {
	// ID is the unique command identifier.
	ID string `json:"id"`

	// Type is the operation performed.
	Type CommandType `json:"type"`

	// ContainerID is the target container, if any.
	ContainerID string `json:"container_id,omitempty"`

	// Image is the image reference for pull commands.
	Image string `json:"image,omitempty"`

	// State is the current lifecycle state.
	State CommandState `json:"state"`

	// Error holds the failure reason when State is "failed".
	Error string `json:"error,omitempty"`

	// Output holds command output, e.g. a log snapshot.
	Output string `json:"output,omitempty"`

	// Source records where the command came from: "api" or "fleet".
	Source string `json:"source,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// SubmitCommandResponse is returned with 202 Accepted when a command is
// queued.
type SubmitCommandResponse struct {
	ID    string       `json:"id"`
	State CommandState `json:"state"`
}

// ListCommandsResponse is the body of GET /api/commands.
type ListCommandsResponse struct {
	Commands []CommandRecord `json:"commands"`
}

// ListContainersResponse is the body of GET /api/containers.
type ListContainersResponse struct {
	Containers []Container `json:"containers"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status string `json:"status"`

	// Docker reports whether the Docker daemon is reachable.
	Docker string `json:"docker"`
}

// VersionResponse is the body of GET /api/version.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// ErrorResponse is the uniform error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MetricsReport is the payload posted to the fleet API on every metrics
// interval.
type MetricsReport struct {
	DeviceID   string           `json:"device_id"`
	Hostname   string           `json:"hostname"`
	ReportedAt time.Time        `json:"reported_at"`
	Containers []Container      `json:"containers"`
	Stats      []ContainerStats `json:"stats,omitempty"`
}

// FetchCommandsResponse is the fleet API response to a command poll.
type FetchCommandsResponse struct {
	Commands []SubmitCommandRequest `json:"commands"`
}
