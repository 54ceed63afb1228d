package command

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/edgekit/device-manager/internal/api"
	"github.com/edgekit/device-manager/internal/logger"
)

// Observer receives command lifecycle notifications. The metrics package
// implements it for instrumentation and the upstream package for fleet
// acknowledgements; a nil observer is valid and means no notifications.
//
// CommandFinished receives the final record, including state, error, and
// output.
type Observer interface {
	CommandStarted(rec api.CommandRecord)
	CommandFinished(rec api.CommandRecord, duration time.Duration)
}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (o Observers) CommandStarted(rec api.CommandRecord) {
	for _, obs := range o {
		obs.CommandStarted(rec)
	}
}

func (o Observers) CommandFinished(rec api.CommandRecord, duration time.Duration) {
	for _, obs := range o {
		obs.CommandFinished(rec, duration)
	}
}

// Pool executes commands with a fixed number of workers.
//
// The worker count is the NUM_WORKERS setting: one launch-contract worker
// maps to one executing goroutine. Admission is bounded by a weighted
// semaphore sized to the queue capacity, so a burst of submissions fails
// fast with ErrQueueFull instead of blocking API handlers.
type Pool struct {
	workers    int
	dispatcher *Dispatcher
	store      *Store
	observer   Observer

	queue chan string
	sem   *semaphore.Weighted

	mu     sync.Mutex
	closed bool

	draining bool

	wg sync.WaitGroup
}

// NewPool creates and starts a pool with the given worker count and queue
// capacity. Workers run until Stop is called.
func NewPool(ctx context.Context, workers, queueSize int, dispatcher *Dispatcher, store *Store, observer Observer) *Pool {
	p := &Pool{
		workers:    workers,
		dispatcher: dispatcher,
		store:      store,
		observer:   observer,
		queue:      make(chan string, queueSize),
		sem:        semaphore.NewWeighted(int64(queueSize)),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i+1)
	}

	logger.Info("Command pool started with %d worker(s), queue size %d", workers, queueSize)

	return p
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// Get returns the record for a submitted command.
func (p *Pool) Get(id string) (api.CommandRecord, error) {
	return p.store.Get(id)
}

// List returns the command history, newest first.
func (p *Pool) List() []api.CommandRecord {
	return p.store.List()
}

// Submit validates and enqueues a command, returning its record ID. source
// records the origin of the command ("api" or "fleet").
func (p *Pool) Submit(req api.SubmitCommandRequest, source string) (api.SubmitCommandResponse, error) {
	if err := ValidateRequest(&req); err != nil {
		return api.SubmitCommandResponse{}, err
	}

	if !p.sem.TryAcquire(1) {
		return api.SubmitCommandResponse{}, ErrQueueFull
	}

	rec := api.CommandRecord{
		ID:          uuid.NewString(),
		Type:        req.Type,
		ContainerID: req.ContainerID,
		Image:       req.Image,
		State:       api.CommandPending,
		Source:      source,
		SubmittedAt: time.Now(),
	}

	// The mutex covers both the closed check and the send so Submit can
	// never write to a queue that Stop is closing. The semaphore
	// guarantees queue capacity, so the send cannot block while the lock
	// is held.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return api.SubmitCommandResponse{}, ErrPoolClosed
	}
	p.store.Add(rec)
	p.queue <- rec.ID
	p.mu.Unlock()

	logger.Debug("Command %s queued: %s %s%s", rec.ID, rec.Type, rec.ContainerID, rec.Image)

	return api.SubmitCommandResponse{ID: rec.ID, State: api.CommandPending}, nil
}

// Stop shuts the pool down. In-flight commands run to completion; commands
// still queued are marked failed with a shutdown reason. Stop blocks until
// all workers exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.draining = true
	p.mu.Unlock()

	close(p.queue)
	p.wg.Wait()

	logger.Info("Command pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for cmdID := range p.queue {
		p.mu.Lock()
		draining := p.draining
		p.mu.Unlock()

		if draining {
			p.store.MarkFinished(cmdID, "", errors.New("device manager shutting down"))
			p.sem.Release(1)
			continue
		}

		p.run(ctx, id, cmdID)
		p.sem.Release(1)
	}
}

func (p *Pool) run(ctx context.Context, workerID int, cmdID string) {
	rec, err := p.store.Get(cmdID)
	if err != nil {
		logger.Warn("Worker %d: %v", workerID, err)
		return
	}

	p.store.MarkRunning(cmdID)
	if p.observer != nil {
		p.observer.CommandStarted(rec)
	}

	start := time.Now()
	output, execErr := p.dispatcher.Execute(ctx, &rec)
	duration := time.Since(start)

	p.store.MarkFinished(cmdID, output, execErr)

	if execErr != nil {
		logger.Warn("Worker %d: command %s (%s) failed after %v: %v",
			workerID, cmdID, rec.Type, duration, execErr)
	} else {
		logger.Info("Worker %d: command %s (%s) completed in %v",
			workerID, cmdID, rec.Type, duration)
	}

	if p.observer != nil {
		// Re-read so observers see the final state, error, and output.
		if final, err := p.store.Get(cmdID); err == nil {
			p.observer.CommandFinished(final, duration)
		}
	}
}
