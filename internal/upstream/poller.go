package upstream

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/edgekit/device-manager/internal/api"
	"github.com/edgekit/device-manager/internal/logger"
)

// CommandSink accepts commands for local execution. Implemented by the
// command pool.
type CommandSink interface {
	Submit(req api.SubmitCommandRequest, source string) (api.SubmitCommandResponse, error)
}

// Poller fetches remotely issued commands and submits them to the local
// command pool.
type Poller struct {
	client   *Client
	sink     CommandSink
	clock    clockwork.Clock
	interval time.Duration
}

// NewPoller creates a poller.
func NewPoller(client *Client, sink CommandSink, clock clockwork.Clock, interval time.Duration) *Poller {
	return &Poller{
		client:   client,
		sink:     sink,
		clock:    clock,
		interval: interval,
	}
}

// Run polls until ctx is cancelled. Poll errors are logged and the loop
// continues; the circuit breaker in the client keeps a dead fleet API
// cheap.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			p.poll(ctx)
		case <-ctx.Done():
			logger.Debug("Command poller stopped")
			return
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	commands, err := p.client.FetchCommands(ctx)
	if err != nil {
		// The breaker being open is already reported by its state change
		// log; repeating it every tick is noise.
		if !errors.Is(err, gobreaker.ErrOpenState) {
			logger.Warn("Command poll failed: %v", err)
		}
		return
	}

	for _, req := range commands {
		resp, err := p.sink.Submit(req, "fleet")
		if err != nil {
			logger.Warn("Rejected fleet command %s: %v", req.Type, err)
			continue
		}
		logger.Info("Accepted fleet command %s as %s", req.Type, resp.ID)
	}
}
