package game

import (
	"log"
	"sync"
	"sync/atomic"
)

// Bus fans engine events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full loses the event and the drop is counted,
// the same policy the transport applies to slow clients. Size buffers for
// the subscriber's worst case (lifecycle consumers see a handful of events
// per tick).
type Bus struct {
	mu      sync.Mutex
	subs    map[int]*Subscription
	nextID  int
	logger  *log.Logger
	dropped atomic.Uint64
}

type Subscription struct {
	C chan Event

	id  int
	bus *Bus

	closeOnce sync.Once
	done      chan struct{}
}

func NewBus(logger *log.Logger) *Bus {
	return &Bus{subs: map[int]*Subscription{}, logger: logger}
}

func (b *Bus) Subscribe(buf int) *Subscription {
	if buf <= 0 {
		buf = 64
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s := &Subscription{
		C:    make(chan Event, buf),
		id:   b.nextID,
		bus:  b,
		done: make(chan struct{}),
	}
	b.subs[s.id] = s
	return s
}

// Close detaches the subscription. Events already buffered remain readable;
// no further events arrive. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
	})
}

func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		select {
		case <-s.done:
		case s.C <- ev:
		default:
			n := b.dropped.Add(1)
			if b.logger != nil {
				b.logger.Printf("bus: subscriber %d full, dropping %s (total dropped %d)", s.id, ev.Kind(), n)
			}
		}
	}
}

func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
