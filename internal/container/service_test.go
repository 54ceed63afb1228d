package container

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgekit/device-manager/internal/api"
)

// fakeDocker implements dockerAPI for tests.
type fakeDocker struct {
	pingErr error

	summaries []container.Summary
	listErr   error

	inspects   map[string]container.InspectResponse
	inspectErr error

	started   []string
	stopped   []string
	restarted []string
	removed   []string
	pulled    []string

	stopTimeouts []int

	logData []byte
	logErr  error

	statsBody []byte
}

func (f *fakeDocker) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{}, f.pingErr
}

func (f *fakeDocker) ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error) {
	return f.summaries, f.listErr
}

func (f *fakeDocker) ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error) {
	if f.inspectErr != nil {
		return container.InspectResponse{}, f.inspectErr
	}
	resp, ok := f.inspects[id]
	if !ok {
		return container.InspectResponse{}, errors.New("no such container")
	}
	return resp, nil
}

func (f *fakeDocker) ContainerStart(ctx context.Context, id string, options container.StartOptions) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakeDocker) ContainerStop(ctx context.Context, id string, options container.StopOptions) error {
	f.stopped = append(f.stopped, id)
	if options.Timeout != nil {
		f.stopTimeouts = append(f.stopTimeouts, *options.Timeout)
	}
	return nil
}

func (f *fakeDocker) ContainerRestart(ctx context.Context, id string, options container.StopOptions) error {
	f.restarted = append(f.restarted, id)
	return nil
}

func (f *fakeDocker) ContainerRemove(ctx context.Context, id string, options container.RemoveOptions) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeDocker) ContainerLogs(ctx context.Context, id string, options container.LogsOptions) (io.ReadCloser, error) {
	if f.logErr != nil {
		return nil, f.logErr
	}
	return io.NopCloser(bytes.NewReader(f.logData)), nil
}

func (f *fakeDocker) ContainerStats(ctx context.Context, id string, stream bool) (container.StatsResponseReader, error) {
	return container.StatsResponseReader{
		Body: io.NopCloser(bytes.NewReader(f.statsBody)),
	}, nil
}

func (f *fakeDocker) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	f.pulled = append(f.pulled, ref)
	return io.NopCloser(bytes.NewReader([]byte("{}"))), nil
}

func runningInspect(id string) container.InspectResponse {
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID:      id,
			Name:    "/inference-server",
			Created: "2026-08-01T10:00:00.000000000Z",
			State: &container.State{
				Status:    "running",
				Running:   true,
				StartedAt: "2026-08-01T10:00:05.000000000Z",
			},
		},
		Config: &container.Config{
			Image:  "edgekit/inference-server:latest",
			Labels: map[string]string{"com.edgekit.inference-server": ""},
		},
	}
}

func exitedInspect(id string, exitCode int) container.InspectResponse {
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID:      id,
			Name:    "/inference-server",
			Created: "2026-08-01T10:00:00.000000000Z",
			State: &container.State{
				Status:   "exited",
				ExitCode: exitCode,
			},
		},
		Config: &container.Config{Image: "edgekit/inference-server:latest"},
	}
}

func newTestService(fake *fakeDocker) *Service {
	return newServiceWithAPI(fake, "com.edgekit.inference-server", 30*time.Second)
}

func TestListMapsContainerStates(t *testing.T) {
	fake := &fakeDocker{
		summaries: []container.Summary{
			{
				ID:      "aaa",
				Names:   []string{"/inference-server"},
				Image:   "edgekit/inference-server:latest",
				Created: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC).Unix(),
				Ports: []container.Port{
					{PrivatePort: 9001, PublicPort: 9001, Type: "tcp"},
				},
			},
			{ID: "bbb", Names: []string{"/inference-server-old"}},
		},
		inspects: map[string]container.InspectResponse{
			"aaa": runningInspect("aaa"),
			"bbb": exitedInspect("bbb", 137),
		},
	}

	svc := newTestService(fake)
	containers, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, containers, 2)

	running := containers[0]
	assert.Equal(t, "aaa", running.ID)
	assert.Equal(t, "inference-server", running.Name)
	assert.Equal(t, api.StatusRunning, running.Status)
	assert.Equal(t, 9001, running.Port)
	assert.False(t, running.StartedAt.IsZero())

	exited := containers[1]
	assert.Equal(t, api.StatusExited, exited.Status)
	assert.Equal(t, 137, exited.ExitCode)
	assert.Contains(t, exited.Error, "exited with code 137")
}

func TestListDegradesOnInspectFailure(t *testing.T) {
	fake := &fakeDocker{
		summaries:  []container.Summary{{ID: "aaa", Names: []string{"/x"}}},
		inspectErr: errors.New("daemon hiccup"),
	}

	svc := newTestService(fake)
	containers, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, containers, 1)

	assert.Equal(t, api.StatusUnknown, containers[0].Status)
	assert.Contains(t, containers[0].Error, "daemon hiccup")
}

func TestListError(t *testing.T) {
	fake := &fakeDocker{listErr: errors.New("cannot connect to the Docker daemon")}

	svc := newTestService(fake)
	_, err := svc.List(context.Background())
	require.Error(t, err)
}

func TestInspect(t *testing.T) {
	fake := &fakeDocker{
		inspects: map[string]container.InspectResponse{"aaa": runningInspect("aaa")},
	}

	svc := newTestService(fake)
	c, err := svc.Inspect(context.Background(), "aaa")
	require.NoError(t, err)

	assert.Equal(t, "inference-server", c.Name)
	assert.Equal(t, "edgekit/inference-server:latest", c.Image)
	assert.Equal(t, api.StatusRunning, c.Status)

	_, err = svc.Inspect(context.Background(), "missing")
	require.Error(t, err)
}

func TestStopUsesConfiguredTimeout(t *testing.T) {
	fake := &fakeDocker{}
	svc := newServiceWithAPI(fake, "label", 45*time.Second)

	require.NoError(t, svc.Stop(context.Background(), "aaa"))
	require.Len(t, fake.stopTimeouts, 1)
	assert.Equal(t, 45, fake.stopTimeouts[0])
	assert.Equal(t, []string{"aaa"}, fake.stopped)
}

func TestLifecycleOperations(t *testing.T) {
	fake := &fakeDocker{}
	svc := newTestService(fake)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx, "aaa"))
	require.NoError(t, svc.Restart(ctx, "aaa"))
	require.NoError(t, svc.Remove(ctx, "aaa"))

	assert.Equal(t, []string{"aaa"}, fake.started)
	assert.Equal(t, []string{"aaa"}, fake.restarted)
	assert.Equal(t, []string{"aaa"}, fake.removed)
}

func TestSnapshotLogsDemultiplexes(t *testing.T) {
	var buf bytes.Buffer
	stdout := stdcopy.NewStdWriter(&buf, stdcopy.Stdout)
	stderr := stdcopy.NewStdWriter(&buf, stdcopy.Stderr)
	_, err := stdout.Write([]byte("inference ready\n"))
	require.NoError(t, err)
	_, err = stderr.Write([]byte("warning: low memory\n"))
	require.NoError(t, err)

	fake := &fakeDocker{logData: buf.Bytes()}
	svc := newTestService(fake)

	out, err := svc.SnapshotLogs(context.Background(), "aaa", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "inference ready")
	assert.Contains(t, out, "warning: low memory")
}

func TestPullImage(t *testing.T) {
	fake := &fakeDocker{}
	svc := newTestService(fake)

	require.NoError(t, svc.PullImage(context.Background(), "edgekit/inference-server:2.0"))
	assert.Equal(t, []string{"edgekit/inference-server:2.0"}, fake.pulled)

	err := svc.PullImage(context.Background(), "")
	require.Error(t, err)
}

func TestStats(t *testing.T) {
	raw := container.StatsResponse{}
	raw.CPUStats.CPUUsage.TotalUsage = 400_000_000
	raw.CPUStats.SystemUsage = 2_000_000_000
	raw.CPUStats.OnlineCPUs = 4
	raw.PreCPUStats.CPUUsage.TotalUsage = 200_000_000
	raw.PreCPUStats.SystemUsage = 1_000_000_000
	raw.MemoryStats.Usage = 512 * 1024 * 1024
	raw.MemoryStats.Limit = 2 * 1024 * 1024 * 1024

	body, err := json.Marshal(raw)
	require.NoError(t, err)

	fake := &fakeDocker{statsBody: body}
	svc := newTestService(fake)

	stats, err := svc.Stats(context.Background(), "aaa")
	require.NoError(t, err)

	// delta 200ms CPU over 1s system across 4 CPUs -> 80%
	assert.InDelta(t, 80.0, stats.CPUPercent, 0.01)
	assert.Equal(t, uint64(512*1024*1024), stats.MemoryUsageBytes)
	assert.Equal(t, "512MiB", stats.MemoryUsageHuman)
}

func TestPingError(t *testing.T) {
	fake := &fakeDocker{pingErr: errors.New("connection refused")}
	svc := newTestService(fake)

	err := svc.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not accessible")
}
