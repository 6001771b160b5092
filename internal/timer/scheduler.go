package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type TickFunc func(roomID string, gen uint64)

type tickHandle struct {
	gen    uint64
	ticker clockwork.Ticker
	done   chan struct{}
	once   sync.Once
}

func (h *tickHandle) stop() {
	h.once.Do(func() {
		h.ticker.Stop()
		close(h.done)
	})
}

// Scheduler runs one ticker goroutine per running room. Every handle carries
// a generation so callbacks can tell whether they still belong to the live
// countdown.
type Scheduler struct {
	clock    clockwork.Clock
	interval time.Duration
	onTick   TickFunc

	mu      sync.Mutex
	handles map[string]*tickHandle
	nextGen uint64
}

func NewScheduler(clock clockwork.Clock, interval time.Duration, onTick TickFunc) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		clock:    clock,
		interval: interval,
		onTick:   onTick,
		handles:  make(map[string]*tickHandle),
	}
}

// Start replaces any existing handle for the room and returns the new
// generation.
func (s *Scheduler) Start(roomID string) uint64 {
	s.mu.Lock()
	if old, ok := s.handles[roomID]; ok {
		old.stop()
	}
	s.nextGen++
	h := &tickHandle{
		gen:    s.nextGen,
		ticker: s.clock.NewTicker(s.interval),
		done:   make(chan struct{}),
	}
	s.handles[roomID] = h
	s.mu.Unlock()

	go s.run(roomID, h)
	return h.gen
}

func (s *Scheduler) run(roomID string, h *tickHandle) {
	for {
		select {
		case <-h.done:
			return
		case <-h.ticker.Chan():
			select {
			case <-h.done:
				return
			default:
			}
			s.onTick(roomID, h.gen)
		}
	}
}

// Cancel stops the room's handle. It never waits for an in-flight callback;
// callers rely on IsCurrent to reject it.
func (s *Scheduler) Cancel(roomID string) bool {
	s.mu.Lock()
	h, ok := s.handles[roomID]
	if ok {
		delete(s.handles, roomID)
	}
	s.mu.Unlock()
	if ok {
		h.stop()
	}
	return ok
}

func (s *Scheduler) IsCurrent(roomID string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[roomID]
	return ok && h.gen == gen
}

func (s *Scheduler) Running(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[roomID]
	return ok
}

func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *Scheduler) StopAll() {
	s.mu.Lock()
	handles := s.handles
	s.handles = make(map[string]*tickHandle)
	s.mu.Unlock()
	for _, h := range handles {
		h.stop()
	}
}
