package metrics

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgekit/device-manager/internal/api"
	"github.com/edgekit/device-manager/internal/device"
	"github.com/edgekit/device-manager/internal/logger"
)

// StatsSampler samples resource usage for a container. Implemented by the
// container service.
type StatsSampler interface {
	Stats(ctx context.Context, containerID string) (api.ContainerStats, error)
}

// UpstreamSink receives metrics reports. Implemented by the upstream
// client; nil means standalone operation with no reporting.
type UpstreamSink interface {
	ReportMetrics(ctx context.Context, report api.MetricsReport) error
}

// Reporter periodically refreshes the device snapshot, updates the
// Prometheus gauges, and ships a report upstream when a sink is configured.
//
// The clock is injectable so tests can drive ticks without real time. The
// interval and enabled settings are functions so configuration hot reload
// can change the period or pause sampling without restarting the loop;
// both are consulted on every iteration.
type Reporter struct {
	clock    clockwork.Clock
	interval func() time.Duration
	enabled  func() bool
	device   *device.Manager
	sampler  StatsSampler
	sink     UpstreamSink
	metrics  *Metrics
}

// NewReporter creates a reporter. sink may be nil.
func NewReporter(clock clockwork.Clock, interval func() time.Duration, enabled func() bool, dev *device.Manager, sampler StatsSampler, sink UpstreamSink, m *Metrics) *Reporter {
	return &Reporter{
		clock:    clock,
		interval: interval,
		enabled:  enabled,
		device:   dev,
		sampler:  sampler,
		sink:     sink,
		metrics:  m,
	}
}

// Run executes the sampling loop until ctx is cancelled. An immediate
// first sample runs before the first wait so gauges are populated right
// after startup. While sampling is disabled the loop keeps waking so a
// reload that re-enables it takes effect on the next interval.
func (r *Reporter) Run(ctx context.Context) {
	for {
		if r.enabled == nil || r.enabled() {
			r.sample(ctx)
		}

		timer := r.clock.NewTimer(r.interval())
		select {
		case <-timer.Chan():
		case <-ctx.Done():
			timer.Stop()
			logger.Debug("Metrics reporter stopped")
			return
		}
	}
}

func (r *Reporter) sample(ctx context.Context) {
	if err := r.device.Refresh(ctx); err != nil {
		logger.Warn("Container discovery refresh failed: %v", err)
		r.metrics.RefreshFailed()
	}

	r.metrics.SetContainerCounts(r.device.CountByStatus())

	if r.sink == nil {
		return
	}

	snapshot := r.device.Snapshot()
	report := api.MetricsReport{
		DeviceID:   snapshot.DeviceID,
		Hostname:   snapshot.Hostname,
		ReportedAt: r.clock.Now(),
		Containers: snapshot.Containers,
	}

	if r.sampler != nil {
		for _, c := range snapshot.Containers {
			if c.Status != api.StatusRunning {
				continue
			}
			stats, err := r.sampler.Stats(ctx, c.ID)
			if err != nil {
				logger.Debug("Stats sample failed for %s: %v", c.ID, err)
				continue
			}
			report.Stats = append(report.Stats, stats)
		}
	}

	err := r.sink.ReportMetrics(ctx, report)
	r.metrics.ReportSent(err)
	if err != nil {
		logger.Warn("Metrics report failed: %v", err)
	}
}
