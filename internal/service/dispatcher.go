package service

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	registryfanout "github.com/TruongKhoiNguyen/Agora-api/internal/registry/fanout"
	"github.com/TruongKhoiNguyen/Agora-api/internal/security"
)

// publishTimeout bounds a single bridge call made by the worker.
const publishTimeout = 5 * time.Second

// enqueueTimeout bounds how long Publish waits for room on a full queue.
const enqueueTimeout = 2 * time.Second

type fanoutJob struct {
	channel string
	event   string
	payload any
}

// Dispatcher hands events to a bridge from a single worker so events keep
// the order they were submitted in. Every queued event goes through the
// queue; one that cannot be queued in time is dropped, never reordered.
// Publish never fails the caller.
type Dispatcher struct {
	bridge  registryfanout.Bridge
	queue   chan fanoutJob
	done    chan struct{}
	enqueue time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts a worker over a queue of queueSize events. With a
// queueSize of zero every event is published inline by the caller.
func NewDispatcher(bridge registryfanout.Bridge, queueSize int) *Dispatcher {
	d := &Dispatcher{bridge: bridge, done: make(chan struct{}), enqueue: enqueueTimeout}
	if queueSize <= 0 {
		close(d.done)
		return d
	}
	d.queue = make(chan fanoutJob, queueSize)
	go d.run()
	return d
}

// Bridge returns the underlying bridge.
func (d *Dispatcher) Bridge() registryfanout.Bridge { return d.bridge }

// Publish queues an event, waiting up to the enqueue timeout when the
// queue is full. Without a queue the event is delivered inline.
func (d *Dispatcher) Publish(channel, event string, payload any) {
	job := fanoutJob{channel: channel, event: event, payload: payload}
	if d.queue == nil {
		d.deliver(job)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(job, "dispatcher closed")
		return
	}
	select {
	case d.queue <- job:
		d.observeDepth()
		return
	default:
	}

	timer := time.NewTimer(d.enqueue)
	defer timer.Stop()
	select {
	case d.queue <- job:
		d.observeDepth()
	case <-timer.C:
		d.drop(job, "queue full")
	}
}

func (d *Dispatcher) drop(job fanoutJob, reason string) {
	security.CountFanoutDropped(d.bridge.Name())
	log.Error("Fanout event dropped", "reason", reason, "bridge", d.bridge.Name(), "channel", job.channel, "event", job.event)
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for job := range d.queue {
		d.observeDepth()
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job fanoutJob) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err := d.bridge.Publish(ctx, job.channel, job.event, job.payload)
	security.CountFanout(d.bridge.Name(), err)
	if err != nil {
		log.Error("Fanout publish failed", "bridge", d.bridge.Name(), "channel", job.channel, "event", job.event, "err", err)
	}
}

func (d *Dispatcher) observeDepth() {
	if security.FanoutQueueDepth != nil && d.queue != nil {
		security.FanoutQueueDepth.Set(float64(len(d.queue)))
	}
}

// Close stops accepting queued events and waits until the backlog is
// delivered or ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		if d.queue != nil {
			close(d.queue)
		}
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
