package timer

import (
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"studyhub/backend/internal/model"
)

type WriteMode int

const (
	WriteDebounced WriteMode = iota
	WriteImmediate
)

type Persister interface {
	ScheduleWrite(roomID string, state model.TimerState)
	WriteNow(roomID string, state model.TimerState)
}

// Patch carries the fields a Set call changes; nil fields keep their value.
type Patch struct {
	Phase            *model.Phase
	RemainingSeconds *int
	IsRunning        *bool
	IsPaused         *bool
	Session          *int
	TotalSessions    *int
	ControlledBy     *string
}

func ptr[T any](v T) *T {
	return &v
}

type Registry struct {
	mu        sync.RWMutex
	states    map[string]model.TimerState
	durations model.Durations
	clock     clockwork.Clock
	persister Persister
}

func NewRegistry(durations model.Durations, clock clockwork.Clock, persister Persister) *Registry {
	return &Registry{
		states:    make(map[string]model.TimerState),
		durations: durations,
		clock:     clock,
		persister: persister,
	}
}

func (r *Registry) Get(roomID string) (model.TimerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[roomID]
	return state, ok
}

// Set merges the patch into the room's state (or a fresh idle state), bumps
// the version and hands the snapshot to the persister.
func (r *Registry) Set(roomID string, patch Patch, mode WriteMode) model.TimerState {
	r.mu.Lock()
	state, ok := r.states[roomID]
	if !ok {
		state = model.NewTimerState(roomID, r.durations, r.clock.Now())
	}
	applyPatch(&state, patch)
	state.Version++
	state.UpdatedAt = r.clock.Now().UTC()
	r.states[roomID] = state
	r.mu.Unlock()

	if r.persister != nil {
		if mode == WriteImmediate {
			r.persister.WriteNow(roomID, state)
		} else {
			r.persister.ScheduleWrite(roomID, state)
		}
	}
	return state
}

// Load installs a state without touching persistence.
func (r *Registry) Load(state model.TimerState) {
	r.mu.Lock()
	r.states[state.RoomID] = state
	r.mu.Unlock()
}

func (r *Registry) Delete(roomID string) {
	r.mu.Lock()
	delete(r.states, roomID)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}

func (r *Registry) RoomIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func applyPatch(state *model.TimerState, patch Patch) {
	if patch.Phase != nil {
		state.Phase = *patch.Phase
	}
	if patch.RemainingSeconds != nil {
		state.RemainingSeconds = *patch.RemainingSeconds
	}
	if patch.IsRunning != nil {
		state.IsRunning = *patch.IsRunning
	}
	if patch.IsPaused != nil {
		state.IsPaused = *patch.IsPaused
	}
	if patch.Session != nil {
		state.Session = *patch.Session
	}
	if patch.TotalSessions != nil {
		state.TotalSessions = *patch.TotalSessions
	}
	if patch.ControlledBy != nil {
		state.ControlledBy = *patch.ControlledBy
	}
}
