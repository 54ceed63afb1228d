// Package device maintains the identity and state snapshot of this device.
//
// The Manager aggregates everything the API reports about the device: a
// stable device ID, host facts, and the set of managed inference containers
// with their current states. Container discovery is delegated to the
// container service; the Manager caches the last good snapshot so that API
// reads never block on the Docker daemon.
package device

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/edgekit/device-manager/internal/api"
	"github.com/edgekit/device-manager/internal/logger"
	"github.com/edgekit/device-manager/internal/version"
)

// ContainerLister is the part of the container service the Manager needs.
type ContainerLister interface {
	List(ctx context.Context) ([]api.Container, error)
}

// Manager holds the device snapshot.
//
// All access goes through the RWMutex so the snapshot can be read
// concurrently by API handlers while the metrics reporter refreshes it in
// the background.
type Manager struct {
	lister ContainerLister

	mu          sync.RWMutex
	deviceID    string
	hostname    string
	containers  []api.Container
	refreshedAt time.Time
	stale       bool
}

// NewManager creates a device manager with the given identity and performs
// an initial refresh. A failed initial refresh is not fatal: the snapshot
// starts empty and marked stale, and the periodic refresh will recover once
// Docker is reachable.
func NewManager(ctx context.Context, deviceID string, lister ContainerLister) *Manager {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	m := &Manager{
		lister:   lister,
		deviceID: deviceID,
		hostname: hostname,
	}

	if err := m.Refresh(ctx); err != nil {
		logger.Warn("Initial container discovery failed: %v", err)
	}

	return m
}

// Refresh re-discovers managed containers. On failure the previous
// snapshot is kept and marked stale.
func (m *Manager) Refresh(ctx context.Context) error {
	containers, err := m.lister.List(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.stale = true
		return err
	}

	m.containers = containers
	m.refreshedAt = time.Now()
	m.stale = false
	return nil
}

// Snapshot returns a copy of the current device state.
func (m *Manager) Snapshot() api.DeviceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	containers := make([]api.Container, len(m.containers))
	copy(containers, m.containers)

	return api.DeviceInfo{
		DeviceID:       m.deviceID,
		Hostname:       m.hostname,
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
		ManagerVersion: version.Version,
		Containers:     containers,
		RefreshedAt:    m.refreshedAt,
		Stale:          m.stale,
	}
}

// DeviceID returns the stable device identifier.
func (m *Manager) DeviceID() string {
	return m.deviceID
}

// Hostname returns the device hostname captured at startup.
func (m *Manager) Hostname() string {
	return m.hostname
}

// CountByStatus returns the number of containers in each status in the
// current snapshot. Used by the metrics gauges.
func (m *Manager) CountByStatus() map[api.ContainerStatus]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[api.ContainerStatus]int)
	for _, c := range m.containers {
		counts[c.Status]++
	}
	return counts
}
