package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu    sync.Mutex
	order map[string][]EventKind
	total int32
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{order: make(map[string][]EventKind)}
}

func (h *recordingHandler) Handle(_ context.Context, ev Event) {
	atomic.AddInt32(&h.total, 1)
	if ev.RegionName == "" {
		return
	}
	time.Sleep(time.Millisecond)
	h.mu.Lock()
	h.order[ev.RegionName] = append(h.order[ev.RegionName], ev.Kind)
	h.mu.Unlock()
}

func TestDispatcherOrdersEventsPerRegion(t *testing.T) {
	h := newRecordingHandler()
	d := New(h, 0, 4)
	d.Start()
	defer d.Stop()

	var want []EventKind
	for i := 0; i < 20; i++ {
		kind := EventKind(i % 4)
		want = append(want, kind)
		d.Post(Event{Kind: kind, RegionName: "r1"})
	}

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.order["r1"]) == 20
	}, time.Second, time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, want, h.order["r1"])
}

// blockingHandler holds every event until release is closed (or a second
// has passed), counting how many handlers are running at once.
type blockingHandler struct {
	inFlight int32
	done     int32
	release  chan struct{}
}

func (h *blockingHandler) Handle(_ context.Context, _ Event) {
	atomic.AddInt32(&h.inFlight, 1)
	select {
	case <-h.release:
	case <-time.After(time.Second):
	}
	atomic.AddInt32(&h.done, 1)
}

func TestDispatcherRunsDistinctRegionsConcurrently(t *testing.T) {
	h := &blockingHandler{release: make(chan struct{})}
	d := New(h, 0, 8)
	d.Start()
	defer d.Stop()

	for i := 0; i < 8; i++ {
		d.Post(Event{Kind: RegionChanged, RegionName: string(rune('a' + i))})
	}

	// All eight handlers must be running at the same time, well before
	// any of them would give up waiting for release.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&h.inFlight) == 8
	}, 500*time.Millisecond, time.Millisecond)
	close(h.release)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&h.done) == 8
	}, time.Second, time.Millisecond)
}

func TestDispatcherRoutesRegionlessEventsDirectly(t *testing.T) {
	h := newRecordingHandler()
	d := New(h, 0, 2)
	d.Start()
	defer d.Stop()

	d.Post(Event{Kind: BalanceTick})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&h.total) == 1
	}, time.Second, time.Millisecond)
}

func TestDispatcherStopIsIdempotentAfterWorkCompletes(t *testing.T) {
	h := newRecordingHandler()
	d := New(h, 0, 2)
	d.Start()
	d.Post(Event{Kind: RegionChanged, RegionName: "r1"})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&h.total) == 1
	}, time.Second, time.Millisecond)

	d.Stop()
	d.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.total))
}
