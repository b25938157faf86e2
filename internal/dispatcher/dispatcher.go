// Package dispatcher serializes everything that drives assignment
// state: coord-store watch events and periodic timer ticks, fed
// through a single logical consumer. Per-region work is farmed out to a
// bounded worker pool so one slow region cannot stall the rest of the
// cluster: events for distinct regions may run concurrently, while
// distinct events for the *same* region are never processed out of
// order or in parallel with each other.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"regioncore/pkg/region"
)

// EventKind distinguishes what woke the dispatcher.
type EventKind int

const (
	// RegionChanged carries a coord-store watch event for a region's
	// unassigned node (created, data changed, or deleted).
	RegionChanged EventKind = iota
	// ServerDown carries the loss of a RegionServer's ephemeral node.
	ServerDown
	// BalanceTick fires periodically to invoke the balancer.
	BalanceTick
	// TimeoutTick fires periodically to scan for expired transitions.
	TimeoutTick
)

// Event is one unit of work handed to the Handler.
type Event struct {
	Kind       EventKind
	RegionName string
	Server     region.ServerName
}

// Handler is the Assignment Manager's single entry point for mutating
// shared state. The dispatcher invokes it on a region's lane for
// per-region events and on the dispatch loop itself for regionless
// ones, never concurrently for the same region name.
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

// Dispatcher is the single logical consumer described for the event
// pipeline: one goroutine pulls events off a bounded queue and hands
// them to per-region workers, preserving per-region ordering while
// letting distinct regions proceed in parallel.
type Dispatcher struct {
	handler Handler
	queue   chan Event
	sem     chan struct{} // bounds concurrently running lanes

	mu      sync.Mutex
	regions map[string]chan Event // per-region serialization lane
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Dispatcher with the given queue depth and per-region
// worker concurrency cap. workers bounds how many regions may be
// processed concurrently at any instant; events for the same region
// always run on the same lane and therefore never overlap.
func New(handler Handler, queueDepth, workers int) *Dispatcher {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	if workers <= 0 {
		workers = 8
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler: handler,
		queue:   make(chan Event, queueDepth),
		sem:     make(chan struct{}, workers),
		regions: make(map[string]chan Event),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the dispatch loop. It returns immediately; call Stop to
// drain and shut down.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop cancels the dispatch loop and waits for every in-flight per-region
// lane to finish its current event.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

// Post enqueues an event. It blocks if the queue is full, applying
// back-pressure to whatever produced the event (a watch-draining
// goroutine, or a timer).
func (d *Dispatcher) Post(ev Event) {
	select {
	case d.queue <- ev:
	case <-d.ctx.Done():
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.queue:
			d.dispatch(ev)
		case <-d.ctx.Done():
			return
		}
	}
}

// dispatch routes an event to its region's lane, creating the lane
// (and its worker goroutine) lazily. Events with no region name (server
// down fan-out is expanded by the handler itself; balance/timeout ticks
// have no single region) run directly on the dispatch loop, so no
// further event is dispatched until the Handler returns from one of
// them; lanes already holding events keep running meanwhile.
func (d *Dispatcher) dispatch(ev Event) {
	if ev.RegionName == "" {
		d.handler.Handle(d.ctx, ev)
		return
	}

	d.mu.Lock()
	lane, ok := d.regions[ev.RegionName]
	if !ok {
		lane = make(chan Event, 1)
		d.regions[ev.RegionName] = lane
		d.wg.Add(1)
		go d.runLane(ev.RegionName, lane)
	}
	d.mu.Unlock()

	select {
	case lane <- ev:
	case <-d.ctx.Done():
	}
}

// runLane processes events for a single region, one at a time, until the
// dispatcher is stopped. It never exits early just because the lane is
// momentarily empty — a region may be quiet for a long time and then
// receive another event years (in cluster terms) later.
func (d *Dispatcher) runLane(name string, lane chan Event) {
	defer d.wg.Done()
	for {
		select {
		case ev := <-lane:
			d.runBounded(ev)
		case <-d.ctx.Done():
			return
		}
	}
}

// runBounded acquires a slot in the worker pool before invoking the
// handler, so at most `workers` lanes run Handle concurrently regardless
// of how many distinct regions currently have a live lane.
func (d *Dispatcher) runBounded(ev Event) {
	select {
	case d.sem <- struct{}{}:
	case <-d.ctx.Done():
		return
	}
	defer func() { <-d.sem }()
	d.handler.Handle(d.ctx, ev)
}

// Ticker posts BalanceTick or TimeoutTick events on a fixed interval until
// stopped; it is started separately by the Master so tests can drive the
// dispatcher with hand-built events instead.
func Ticker(ctx context.Context, d *Dispatcher, kind EventKind, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			d.Post(Event{Kind: kind})
		case <-ctx.Done():
			return
		}
	}
}
