package events

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/athena-dhcpd/dhcpcore/internal/metrics"
)

// Bus fans events out to subscribers. Publish never blocks: when the inbound
// queue or a subscriber's channel is full the event is counted as a drop.
// A nil *Bus discards everything, so callers need not check for one.
type Bus struct {
	queue  chan Event
	logger *slog.Logger

	mu   sync.RWMutex
	subs []chan Event

	drops   atomic.Uint64
	stopped chan struct{}
	stop    sync.Once
}

func NewBus(bufferSize int, logger *slog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Bus{
		queue:   make(chan Event, bufferSize),
		logger:  logger,
		stopped: make(chan struct{}),
	}
}

// Start delivers queued events until Stop. Run it on its own goroutine.
func (b *Bus) Start() {
	for {
		select {
		case <-b.stopped:
			return
		case evt := <-b.queue:
			b.deliver(evt)
		}
	}
}

func (b *Bus) deliver(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.drop(evt, "subscriber channel full")
		}
	}
}

func (b *Bus) drop(evt Event, why string) {
	n := b.drops.Add(1)
	metrics.EventBufferDrops.Inc()
	b.logger.Warn("dropping event", "event_type", string(evt.Type), "reason", why, "total_drops", n)
}

// Stop ends delivery. It is safe to call more than once.
func (b *Bus) Stop() {
	b.stop.Do(func() { close(b.stopped) })
}

func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	select {
	case <-b.stopped:
		return
	default:
	}
	metrics.EventsPublished.WithLabelValues(string(evt.Type)).Inc()
	select {
	case b.queue <- evt:
	default:
		b.drop(evt, "bus queue full")
	}
}

// Subscribe registers a new channel for every future event. Slow readers
// lose events rather than stall the bus.
func (b *Bus) Subscribe(bufferSize int) chan Event {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	ch := make(chan Event, bufferSize)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe detaches ch and closes it. Unknown channels are ignored.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := slices.Index(b.subs, ch); i >= 0 {
		b.subs = slices.Delete(b.subs, i, i+1)
		close(ch)
	}
}

// Drops is the number of events lost so far.
func (b *Bus) Drops() uint64 {
	return b.drops.Load()
}
