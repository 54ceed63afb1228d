package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/edgekit/device-manager/internal/api"
	"github.com/edgekit/device-manager/internal/logger"
	"github.com/edgekit/device-manager/internal/version"
)

// DeviceSource provides the device snapshot. Implemented by
// device.Manager.
type DeviceSource interface {
	Snapshot() api.DeviceInfo
}

// ContainerSource is the part of the container service the handlers use
// directly. Lifecycle mutations go through the command pool instead.
type ContainerSource interface {
	Ping(ctx context.Context) error
	List(ctx context.Context) ([]api.Container, error)
	Inspect(ctx context.Context, containerID string) (api.Container, error)
	Logs(ctx context.Context, containerID string, follow bool, tail string) (io.ReadCloser, error)
}

// CommandService accepts and reports on management commands. Implemented
// by the command pool and store together.
type CommandService interface {
	Submit(req api.SubmitCommandRequest, source string) (api.SubmitCommandResponse, error)
	Get(id string) (api.CommandRecord, error)
	List() []api.CommandRecord
}

// Handler carries the dependencies shared by all HTTP handlers.
type Handler struct {
	device     DeviceSource
	containers ContainerSource
	commands   CommandService
}

// NewHandler creates a handler with all dependencies injected.
func NewHandler(device DeviceSource, containers ContainerSource, commands CommandService) *Handler {
	return &Handler{
		device:     device,
		containers: containers,
		commands:   commands,
	}
}

// WriteJSON writes v as a JSON response with the given status code.
func (h *Handler) WriteJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

// WriteError writes a uniform JSON error body with the given status code.
func (h *Handler) WriteError(w http.ResponseWriter, message string, status int) {
	h.WriteJSON(w, api.ErrorResponse{Error: message}, status)
}

// Health handles GET /api/health.
//
// The endpoint reports "ok" as long as the process is serving; the docker
// field separately reports daemon reachability so orchestrators can tell a
// healthy manager with a broken daemon from a dead manager.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{Status: "ok", Docker: "ok"}

	if err := h.containers.Ping(r.Context()); err != nil {
		logger.Warn("Health check: %v", err)
		resp.Docker = "unreachable"
	}

	h.WriteJSON(w, resp, http.StatusOK)
}

// Version handles GET /api/version.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, api.VersionResponse{
		Version:   version.Version,
		Commit:    version.Commit,
		BuildDate: version.BuildDate,
	}, http.StatusOK)
}

// Device handles GET /api/device. It serves the cached snapshot and never
// blocks on the Docker daemon.
func (h *Handler) Device(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, h.device.Snapshot(), http.StatusOK)
}
