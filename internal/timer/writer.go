package timer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"studyhub/backend/internal/model"
	"studyhub/backend/internal/repository"
)

type WriterConfig struct {
	Debounce       time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	WriteTimeout   time.Duration
}

func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		Debounce:       5 * time.Second,
		MaxAttempts:    5,
		InitialBackoff: 200 * time.Millisecond,
		WriteTimeout:   5 * time.Second,
	}
}

type writeKind int

const (
	writeUpsert writeKind = iota
	writeComplete
)

type writeOp struct {
	kind  writeKind
	state model.TimerState
}

type roomQueue struct {
	pending     *model.TimerState
	debounce    clockwork.Timer
	debounceGen uint64
	ops         []writeOp
	draining    bool
	idle        chan struct{}
}

// Writer persists registry snapshots behind the live state. Debounced
// snapshots coalesce per room; immediate writes and completions cancel the
// pending snapshot and are applied in order by one drain goroutine per room.
type Writer struct {
	store Store
	clock clockwork.Clock
	cfg   WriterConfig

	mu     sync.Mutex
	rooms  map[string]*roomQueue
	wg     sync.WaitGroup
	closed bool
}

func NewWriter(store Store, clock clockwork.Clock, cfg WriterConfig) *Writer {
	defaults := DefaultWriterConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaults.Debounce
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	return &Writer{
		store: store,
		clock: clock,
		cfg:   cfg,
		rooms: make(map[string]*roomQueue),
	}
}

func (w *Writer) ScheduleWrite(roomID string, state model.TimerState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	q := w.queueLocked(roomID)
	q.pending = &state
	if q.debounce != nil {
		q.debounce.Stop()
	}
	q.debounceGen++
	gen := q.debounceGen
	q.debounce = w.clock.AfterFunc(w.cfg.Debounce, func() {
		w.fireDebounce(roomID, q, gen)
	})
}

func (w *Writer) WriteNow(roomID string, state model.TimerState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	q := w.queueLocked(roomID)
	w.cancelDebounceLocked(q)
	w.enqueueLocked(roomID, q, writeOp{kind: writeUpsert, state: state})
}

func (w *Writer) Complete(roomID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	q := w.queueLocked(roomID)
	w.cancelDebounceLocked(q)
	w.enqueueLocked(roomID, q, writeOp{kind: writeComplete})
}

// Flush turns every pending debounced snapshot into an immediate write.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for roomID, q := range w.rooms {
		if q.pending == nil {
			continue
		}
		state := *q.pending
		w.cancelDebounceLocked(q)
		w.enqueueLocked(roomID, q, writeOp{kind: writeUpsert, state: state})
	}
}

// Wait blocks until every queued write has been applied or ctx is done.
func (w *Writer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitRoom blocks until the writes already queued for roomID have been
// applied. A pending debounced snapshot is not waited for.
func (w *Writer) WaitRoom(ctx context.Context, roomID string) error {
	w.mu.Lock()
	q, ok := w.rooms[roomID]
	if !ok || !q.draining {
		w.mu.Unlock()
		return nil
	}
	idle := q.idle
	w.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending snapshots, waits for the queues to drain and rejects
// further writes.
func (w *Writer) Close(ctx context.Context) error {
	w.Flush()
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return w.Wait(ctx)
}

func (w *Writer) Pending(roomID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	q, ok := w.rooms[roomID]
	return ok && (q.pending != nil || len(q.ops) > 0 || q.draining)
}

func (w *Writer) queueLocked(roomID string) *roomQueue {
	q, ok := w.rooms[roomID]
	if !ok {
		q = &roomQueue{}
		w.rooms[roomID] = q
	}
	return q
}

func (w *Writer) cancelDebounceLocked(q *roomQueue) {
	if q.debounce != nil {
		q.debounce.Stop()
		q.debounce = nil
	}
	q.debounceGen++
	q.pending = nil
}

func (w *Writer) fireDebounce(roomID string, q *roomQueue, gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if q.debounceGen != gen || q.pending == nil {
		return
	}
	state := *q.pending
	q.pending = nil
	q.debounce = nil
	w.enqueueLocked(roomID, q, writeOp{kind: writeUpsert, state: state})
}

func (w *Writer) enqueueLocked(roomID string, q *roomQueue, op writeOp) {
	if op.kind == writeUpsert && len(q.ops) > 0 && q.ops[len(q.ops)-1].kind == writeUpsert {
		q.ops[len(q.ops)-1] = op
	} else {
		q.ops = append(q.ops, op)
	}
	if q.draining {
		return
	}
	q.draining = true
	q.idle = make(chan struct{})
	w.wg.Add(1)
	go w.drain(roomID, q)
}

func (w *Writer) drain(roomID string, q *roomQueue) {
	defer w.wg.Done()
	for {
		w.mu.Lock()
		if len(q.ops) == 0 {
			q.draining = false
			close(q.idle)
			if q.pending == nil && w.rooms[roomID] == q {
				delete(w.rooms, roomID)
			}
			w.mu.Unlock()
			return
		}
		op := q.ops[0]
		q.ops = q.ops[1:]
		w.mu.Unlock()

		w.apply(roomID, op)
	}
}

func (w *Writer) apply(roomID string, op writeOp) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = w.cfg.InitialBackoff << uint(w.cfg.MaxAttempts)
	b.Reset()

	attempt := 0
	_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
		defer cancel()

		var err error
		if op.kind == writeComplete {
			err = w.store.CompleteSession(ctx, roomID)
		} else {
			err = w.store.UpsertSession(ctx, roomID, op.state)
		}
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, repository.ErrWriteConflict) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(w.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Str("room_id", roomID).Int("attempt", attempt).Dur("retry_in", next).Msg("timer write conflict, retrying")
		}),
	)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Int("attempts", attempt).Msg("timer write failed")
	}
}
