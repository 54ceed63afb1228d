package container

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"

	"github.com/edgekit/device-manager/internal/api"
	"github.com/edgekit/device-manager/internal/logger"
)

// Service provides lifecycle operations on managed inference-server
// containers.
//
// Containers are selected by label: only containers carrying the configured
// managed label are visible through the service. All methods are safe for
// concurrent use; the Docker client handles its own connection pooling.
type Service struct {
	client      dockerAPI
	closer      io.Closer
	label       string
	stopTimeout time.Duration
}

// NewService creates a Service backed by a real Docker client and verifies
// daemon connectivity. The label selects managed containers and may be a
// bare key or "key=value". stopTimeout bounds graceful container stops.
func NewService(ctx context.Context, label string, stopTimeout time.Duration) (*Service, error) {
	cli, err := newDockerClient(ctx)
	if err != nil {
		return nil, err
	}

	logger.Info("Docker client initialized, managing containers with label %q", label)

	return &Service{
		client:      cli,
		closer:      cli,
		label:       label,
		stopTimeout: stopTimeout,
	}, nil
}

// newServiceWithAPI wires a Service to an arbitrary dockerAPI. Used by tests.
func newServiceWithAPI(client dockerAPI, label string, stopTimeout time.Duration) *Service {
	return &Service{client: client, label: label, stopTimeout: stopTimeout}
}

// Close releases the underlying Docker client.
func (s *Service) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Ping checks Docker daemon reachability. Used by the health endpoint.
func (s *Service) Ping(ctx context.Context) error {
	if _, err := s.client.Ping(ctx); err != nil {
		return fmt.Errorf("Docker daemon is not accessible: %w", err)
	}
	return nil
}

// List returns all managed containers, including stopped ones. Each
// container is inspected for an accurate state; containers that vanish or
// fail inspection between listing and inspecting are reported with status
// "unknown" rather than dropped.
func (s *Service) List(ctx context.Context) ([]api.Container, error) {
	summaries, err := s.client.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", s.label),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]api.Container, 0, len(summaries))
	for _, summary := range summaries {
		result = append(result, s.fromSummary(ctx, summary))
	}

	return result, nil
}

// Inspect returns the current state of a single managed container.
func (s *Service) Inspect(ctx context.Context, containerID string) (api.Container, error) {
	inspect, err := s.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return api.Container{}, fmt.Errorf("failed to inspect container %s: %w", shortID(containerID), err)
	}

	c := api.Container{
		ID:        inspect.ID,
		Name:      strings.TrimPrefix(inspect.Name, "/"),
		CreatedAt: parseDockerTime(inspect.Created),
	}
	if inspect.Config != nil {
		c.Image = inspect.Config.Image
		c.Labels = inspect.Config.Labels
	}

	info := mapState(inspect.State)
	c.Status = info.Status
	c.ExitCode = info.ExitCode
	c.Error = info.ErrorMessage

	if inspect.State != nil && info.IsRunning {
		c.StartedAt = parseDockerTime(inspect.State.StartedAt)
	}

	return c, nil
}

// Start starts a stopped or created container.
func (s *Service) Start(ctx context.Context, containerID string) error {
	logger.Info("Starting container %s", shortID(containerID))

	if err := s.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", shortID(containerID), err)
	}
	return nil
}

// Stop gracefully stops a running container. The daemon sends SIGTERM and
// escalates to SIGKILL after the configured stop timeout, giving the
// inference server time to finish in-flight requests.
func (s *Service) Stop(ctx context.Context, containerID string) error {
	logger.Info("Stopping container %s", shortID(containerID))

	timeout := int(s.stopTimeout.Seconds())
	if err := s.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", shortID(containerID), err)
	}
	return nil
}

// Restart stops and restarts a container with the configured stop timeout.
func (s *Service) Restart(ctx context.Context, containerID string) error {
	logger.Info("Restarting container %s", shortID(containerID))

	timeout := int(s.stopTimeout.Seconds())
	if err := s.client.ContainerRestart(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to restart container %s: %w", shortID(containerID), err)
	}
	return nil
}

// Remove deletes a stopped container. Running containers are not force
// removed; stop them first.
func (s *Service) Remove(ctx context.Context, containerID string) error {
	logger.Info("Removing container %s", shortID(containerID))

	if err := s.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", shortID(containerID), err)
	}
	return nil
}

// Logs returns the raw multiplexed log stream for a container. The caller
// must close the stream and demultiplex it with stdcopy.
func (s *Service) Logs(ctx context.Context, containerID string, follow bool, tail string) (io.ReadCloser, error) {
	if tail == "" {
		tail = "all"
	}

	reader, err := s.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Timestamps: true,
		Tail:       tail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get logs for container %s: %w", shortID(containerID), err)
	}

	return reader, nil
}

// SnapshotLogs captures the last tail lines of a container's logs as a
// string. Used by the snapshot-logs command to ship logs upstream.
func (s *Service) SnapshotLogs(ctx context.Context, containerID string, tail string) (string, error) {
	reader, err := s.Logs(ctx, containerID, false, tail)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read logs for container %s: %w", shortID(containerID), err)
	}

	return buf.String(), nil
}

// PullImage pulls an image from its registry, blocking until the pull
// completes. The progress stream is consumed and discarded; callers that
// need progress should watch the daemon's events instead.
func (s *Service) PullImage(ctx context.Context, ref string) error {
	if ref == "" {
		return fmt.Errorf("image reference is required")
	}

	logger.Info("Pulling image %s", ref)

	reader, err := s.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()

	// The pull only completes once the stream is fully drained.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("image pull interrupted for %s: %w", ref, err)
	}

	logger.Info("Image pulled: %s", ref)
	return nil
}

// Stats takes a one-shot resource usage sample for a container.
func (s *Service) Stats(ctx context.Context, containerID string) (api.ContainerStats, error) {
	resp, err := s.client.ContainerStats(ctx, containerID, false)
	if err != nil {
		return api.ContainerStats{}, fmt.Errorf("failed to get stats for container %s: %w", shortID(containerID), err)
	}
	defer resp.Body.Close()

	var raw container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return api.ContainerStats{}, fmt.Errorf("failed to decode stats for container %s: %w", shortID(containerID), err)
	}

	stats := api.ContainerStats{
		ContainerID:      containerID,
		CPUPercent:       cpuPercent(&raw),
		MemoryUsageBytes: raw.MemoryStats.Usage,
		MemoryLimitBytes: raw.MemoryStats.Limit,
	}
	stats.MemoryUsageHuman = units.BytesSize(float64(stats.MemoryUsageBytes))

	return stats, nil
}

// fromSummary builds an api.Container from a list entry, inspecting the
// container for accurate state. Inspection failures degrade to status
// "unknown" instead of failing the whole listing.
func (s *Service) fromSummary(ctx context.Context, summary container.Summary) api.Container {
	c := api.Container{
		ID:        summary.ID,
		Image:     summary.Image,
		Labels:    summary.Labels,
		CreatedAt: time.Unix(summary.Created, 0),
	}

	if len(summary.Names) > 0 {
		c.Name = strings.TrimPrefix(summary.Names[0], "/")
	}

	// First published port; inference servers expose exactly one.
	for _, p := range summary.Ports {
		if p.PublicPort != 0 {
			c.Port = int(p.PublicPort)
			break
		}
	}

	inspect, err := s.client.ContainerInspect(ctx, summary.ID)
	if err != nil {
		logger.Warn("Failed to inspect container %s: %v", shortID(summary.ID), err)
		c.Status = api.StatusUnknown
		c.Error = fmt.Sprintf("failed to inspect: %v", err)
		return c
	}

	info := mapState(inspect.State)
	c.Status = info.Status
	c.ExitCode = info.ExitCode
	c.Error = info.ErrorMessage

	if inspect.State != nil && info.IsRunning {
		c.StartedAt = parseDockerTime(inspect.State.StartedAt)
	}

	return c
}

// cpuPercent computes CPU usage relative to host capacity from a stats
// sample, using the same formula as docker stats.
func cpuPercent(raw *container.StatsResponse) float64 {
	cpuDelta := float64(raw.CPUStats.CPUUsage.TotalUsage) - float64(raw.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(raw.CPUStats.SystemUsage) - float64(raw.PreCPUStats.SystemUsage)

	if cpuDelta <= 0 || systemDelta <= 0 {
		return 0
	}

	onlineCPUs := float64(raw.CPUStats.OnlineCPUs)
	if onlineCPUs == 0 {
		onlineCPUs = float64(len(raw.CPUStats.CPUUsage.PercpuUsage))
	}
	if onlineCPUs == 0 {
		onlineCPUs = 1
	}

	return cpuDelta / systemDelta * onlineCPUs * 100.0
}

func parseDockerTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
