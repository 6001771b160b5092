package timer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"studyhub/backend/internal/model"
	"studyhub/backend/internal/repository"
)

type Config struct {
	Durations    model.Durations
	TickInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Durations:    model.DefaultDurations(),
		TickInterval: time.Second,
	}
}

// Engine owns the live timers. Every operation on a room runs under that
// room's lock, including scheduler ticks.
type Engine struct {
	cfg       Config
	clock     clockwork.Clock
	store     Store
	writer    *Writer
	publisher Publisher
	registry  *Registry
	scheduler *Scheduler
	locks     *roomLocks
}

func NewEngine(cfg Config, store Store, writer *Writer, publisher Publisher, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Durations.TotalSessions < 1 {
		cfg.Durations.TotalSessions = model.DefaultTotalSessions
	}
	e := &Engine{
		cfg:       cfg,
		clock:     clock,
		store:     store,
		writer:    writer,
		publisher: publisher,
		registry:  NewRegistry(cfg.Durations, clock, writer),
		locks:     newRoomLocks(),
	}
	e.scheduler = NewScheduler(clock, cfg.TickInterval, e.handleTick)
	return e
}

func (e *Engine) Durations() model.Durations {
	return e.cfg.Durations
}

func (e *Engine) Start(ctx context.Context, roomID, userID string) model.TimerState {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	e.loadLocked(ctx, roomID)
	state := e.registry.Set(roomID, Patch{
		IsRunning:    ptr(true),
		IsPaused:     ptr(false),
		ControlledBy: ptr(userID),
	}, WriteImmediate)
	e.scheduler.Start(roomID)

	log.Info().Str("room_id", roomID).Str("user_id", userID).Str("phase", string(state.Phase)).Int("remaining", state.RemainingSeconds).Msg("timer started")
	e.publish(ctx, EventStarted, state)
	return state
}

func (e *Engine) Pause(ctx context.Context, roomID, userID string) model.TimerState {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	e.loadLocked(ctx, roomID)
	e.scheduler.Cancel(roomID)

	state := e.registry.Set(roomID, Patch{
		IsRunning:    ptr(false),
		IsPaused:     ptr(true),
		ControlledBy: ptr(userID),
	}, WriteImmediate)

	log.Info().Str("room_id", roomID).Str("user_id", userID).Int("remaining", state.RemainingSeconds).Msg("timer paused")
	e.publish(ctx, EventPaused, state)
	return state
}

func (e *Engine) Reset(ctx context.Context, roomID, userID string) model.TimerState {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	current := e.loadLocked(ctx, roomID)
	e.scheduler.Cancel(roomID)

	state := e.registry.Set(roomID, Patch{
		RemainingSeconds: ptr(e.cfg.Durations.For(current.Phase)),
		IsRunning:        ptr(false),
		IsPaused:         ptr(false),
		ControlledBy:     ptr(userID),
	}, WriteImmediate)

	log.Info().Str("room_id", roomID).Str("user_id", userID).Str("phase", string(state.Phase)).Msg("timer reset")
	e.publish(ctx, EventReset, state)
	return state
}

// Tick applies a countdown step to a running room. Rooms that are not
// running are left untouched and reported with ok=false.
func (e *Engine) Tick(ctx context.Context, roomID string, newRemaining int) (model.TimerState, bool) {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	state, ok := e.registry.Get(roomID)
	if !ok || !state.IsRunning {
		return state, false
	}
	return e.tickLocked(ctx, roomID, newRemaining), true
}

func (e *Engine) GetOrCreate(ctx context.Context, roomID string) model.TimerState {
	unlock := e.locks.Lock(roomID)
	defer unlock()
	return e.loadLocked(ctx, roomID)
}

func (e *Engine) Get(roomID string) (model.TimerState, bool) {
	return e.registry.Get(roomID)
}

// Evict drops the room from memory and leaves its durable record completed.
func (e *Engine) Evict(ctx context.Context, roomID string) {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	e.scheduler.Cancel(roomID)
	if state, ok := e.registry.Get(roomID); ok && (state.IsRunning || e.writer.Pending(roomID)) {
		// Record how far the countdown got before the record is closed.
		e.writer.WriteNow(roomID, state)
	}
	e.writer.Complete(roomID)
	e.registry.Delete(roomID)
	log.Info().Str("room_id", roomID).Msg("timer evicted")
}

// Recover resumes every room whose durable record was running when the
// process last stopped.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	states, err := e.store.ListActiveSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}

	recovered := 0
	for _, stored := range states {
		unlock := e.locks.Lock(stored.RoomID)
		if _, ok := e.registry.Get(stored.RoomID); !ok {
			e.hydrateLocked(ctx, stored)
			recovered++
		}
		unlock()
	}
	log.Info().Int("rooms", recovered).Msg("timers recovered")
	return recovered, nil
}

func (e *Engine) Shutdown(ctx context.Context) error {
	e.scheduler.StopAll()
	if err := e.writer.Close(ctx); err != nil {
		return fmt.Errorf("flush timer writes: %w", err)
	}
	return nil
}

func (e *Engine) ActiveRooms() int {
	return e.registry.Len()
}

func (e *Engine) RunningRooms() int {
	return e.scheduler.Active()
}

func (e *Engine) handleTick(roomID string, gen uint64) {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	if !e.scheduler.IsCurrent(roomID, gen) {
		return
	}
	state, ok := e.registry.Get(roomID)
	if !ok || !state.IsRunning || state.RemainingSeconds <= 0 {
		e.scheduler.Cancel(roomID)
		return
	}
	e.tickLocked(context.Background(), roomID, state.RemainingSeconds-1)
}

func (e *Engine) tickLocked(ctx context.Context, roomID string, newRemaining int) model.TimerState {
	if newRemaining <= 0 {
		return e.completePhaseLocked(ctx, roomID)
	}
	state := e.registry.Set(roomID, Patch{RemainingSeconds: ptr(newRemaining)}, WriteDebounced)
	e.publish(ctx, EventTick, state)
	return state
}

func (e *Engine) completePhaseLocked(ctx context.Context, roomID string) model.TimerState {
	current, ok := e.registry.Get(roomID)
	e.scheduler.Cancel(roomID)
	if ok {
		current = e.registry.Set(roomID, Patch{RemainingSeconds: ptr(0)}, WriteImmediate)
	} else {
		current = model.NewTimerState(roomID, e.cfg.Durations, e.clock.Now())
	}
	e.writer.Complete(roomID)

	phase, session := NextPhase(current)
	state := e.registry.Set(roomID, Patch{
		Phase:            ptr(phase),
		RemainingSeconds: ptr(e.cfg.Durations.For(phase)),
		IsRunning:        ptr(false),
		IsPaused:         ptr(false),
		Session:          ptr(session),
		ControlledBy:     ptr(""),
	}, WriteImmediate)

	log.Info().Str("room_id", roomID).Str("from", string(current.Phase)).Str("to", string(phase)).Int("session", session).Msg("timer phase completed")
	e.publish(ctx, EventCompleted, state)
	return state
}

func (e *Engine) loadLocked(ctx context.Context, roomID string) model.TimerState {
	if state, ok := e.registry.Get(roomID); ok {
		return state
	}

	// An eviction may still be completing the previous record.
	if err := e.writer.WaitRoom(ctx, roomID); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("queued timer writes still pending, using idle timer")
		state := model.NewTimerState(roomID, e.cfg.Durations, e.clock.Now())
		e.registry.Load(state)
		return state
	}

	stored, err := e.store.LoadActiveOrPausedSession(ctx, roomID)
	if err == nil {
		stored.RoomID = roomID
		return e.hydrateLocked(ctx, stored)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		log.Warn().Err(err).Str("room_id", roomID).Msg("load timer session failed, using idle timer")
	}

	state := model.NewTimerState(roomID, e.cfg.Durations, e.clock.Now())
	e.registry.Load(state)
	return state
}

// hydrateLocked installs a durable snapshot. A running snapshot is advanced
// by the wall-clock time since it was written and its countdown resumed.
func (e *Engine) hydrateLocked(ctx context.Context, state model.TimerState) model.TimerState {
	if state.TotalSessions < 1 {
		state.TotalSessions = e.cfg.Durations.TotalSessions
	}
	if state.Session < 1 {
		state.Session = 1
	}
	if !state.IsRunning {
		e.registry.Load(state)
		return state
	}

	state.IsPaused = false
	elapsed := int(e.clock.Since(state.UpdatedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	state.RemainingSeconds -= elapsed
	if state.RemainingSeconds <= 0 {
		state.RemainingSeconds = 0
		e.registry.Load(state)
		return e.completePhaseLocked(ctx, state.RoomID)
	}

	state.UpdatedAt = e.clock.Now().UTC()
	e.registry.Load(state)
	e.scheduler.Start(state.RoomID)
	log.Info().Str("room_id", state.RoomID).Int("remaining", state.RemainingSeconds).Int("elapsed", elapsed).Msg("timer resumed")
	return state
}

func (e *Engine) publish(ctx context.Context, event string, state model.TimerState) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, state.RoomID, event, state); err != nil {
		log.Warn().Err(err).Str("room_id", state.RoomID).Str("event", event).Msg("timer broadcast failed")
	}
}
