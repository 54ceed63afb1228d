package upstream

import (
	"context"
	"time"

	"github.com/edgekit/device-manager/internal/api"
	"github.com/edgekit/device-manager/internal/logger"
)

// Acker reports the outcomes of fleet-issued commands back to the fleet
// API. It implements command.Observer and ignores commands from any other
// source.
//
// The fleet API removes commands from its queue as soon as they are
// fetched, so the ack is the only signal it gets about whether a command
// actually ran.
type Acker struct {
	client  *Client
	timeout time.Duration
}

// NewAcker creates an acker backed by the given fleet client.
func NewAcker(client *Client, timeout time.Duration) *Acker {
	return &Acker{client: client, timeout: timeout}
}

// CommandStarted implements command.Observer. Only completed commands are
// acknowledged.
func (a *Acker) CommandStarted(rec api.CommandRecord) {}

// CommandFinished acknowledges a finished fleet command, carrying its final
// state, error, and output.
func (a *Acker) CommandFinished(rec api.CommandRecord, duration time.Duration) {
	if rec.Source != "fleet" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.client.AckCommand(ctx, rec); err != nil {
		logger.Warn("Failed to ack fleet command %s: %v", rec.ID, err)
		return
	}
	logger.Debug("Acked fleet command %s (%s)", rec.ID, rec.State)
}
