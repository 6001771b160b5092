package timer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"studyhub/backend/internal/model"
	"studyhub/backend/internal/repository"
)

type storedSession struct {
	state     model.TimerState
	status    string
	startedAt time.Time
	planned   int
	elapsed   int
}

type memoryStore struct {
	mu       sync.Mutex
	sessions map[string][]*storedSession
	loadErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string][]*storedSession)}
}

func (s *memoryStore) live(roomID string) *storedSession {
	var latest *storedSession
	for _, rec := range s.sessions[roomID] {
		if rec.status == model.SessionStatusCompleted {
			continue
		}
		if latest == nil || !rec.startedAt.Before(latest.startedAt) {
			latest = rec
		}
	}
	return latest
}

func (s *memoryStore) LoadActiveOrPausedSession(_ context.Context, roomID string) (model.TimerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return model.TimerState{}, s.loadErr
	}
	rec := s.live(roomID)
	if rec == nil {
		return model.TimerState{}, repository.ErrNotFound
	}
	return rec.state, nil
}

func (s *memoryStore) UpsertSession(_ context.Context, roomID string, state model.TimerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.live(roomID)
	if rec == nil {
		s.sessions[roomID] = append(s.sessions[roomID], &storedSession{
			state:     state,
			status:    state.DurableStatus(),
			startedAt: state.UpdatedAt,
			planned:   state.RemainingSeconds,
		})
		return nil
	}
	if rec.state.Version >= state.Version {
		return nil
	}
	rec.state = state
	rec.status = state.DurableStatus()
	return nil
}

func (s *memoryStore) CompleteSession(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec := s.live(roomID); rec != nil {
		rec.status = model.SessionStatusCompleted
		rec.elapsed = max(rec.planned-rec.state.RemainingSeconds, 0)
		rec.state.RemainingSeconds = 0
		rec.state.IsRunning = false
		rec.state.IsPaused = false
	}
	return nil
}

func (s *memoryStore) ListActiveSessions(_ context.Context) ([]model.TimerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	states := make([]model.TimerState, 0)
	for roomID := range s.sessions {
		if rec := s.live(roomID); rec != nil && rec.status == model.SessionStatusActive {
			states = append(states, rec.state)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].RoomID < states[j].RoomID })
	return states, nil
}

func (s *memoryStore) seed(state model.TimerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state.RoomID] = append(s.sessions[state.RoomID], &storedSession{
		state:     state,
		status:    state.DurableStatus(),
		startedAt: state.UpdatedAt,
		planned:   state.RemainingSeconds,
	})
}

func (s *memoryStore) statuses(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sessions[roomID]))
	for _, rec := range s.sessions[roomID] {
		out = append(out, rec.status)
	}
	return out
}

// elapsed lists the seconds each completed record ran before it was closed.
func (s *memoryStore) elapsed(roomID string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0)
	for _, rec := range s.sessions[roomID] {
		if rec.status == model.SessionStatusCompleted {
			out = append(out, rec.elapsed)
		}
	}
	return out
}

// gatedStore holds every CompleteSession call until release is closed.
type gatedStore struct {
	*memoryStore
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		memoryStore: newMemoryStore(),
		entered:     make(chan struct{}, 16),
		release:     make(chan struct{}),
	}
}

func (g *gatedStore) CompleteSession(ctx context.Context, roomID string) error {
	g.entered <- struct{}{}
	<-g.release
	return g.memoryStore.CompleteSession(ctx, roomID)
}

type publishedEvent struct {
	roomID string
	event  string
	state  model.TimerState
}

type recordingPublisher struct {
	events chan publishedEvent
	err    error
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(chan publishedEvent, 4096)}
}

func (p *recordingPublisher) Publish(_ context.Context, roomID, event string, state model.TimerState) error {
	p.events <- publishedEvent{roomID: roomID, event: event, state: state}
	return p.err
}

func (p *recordingPublisher) next(t *testing.T) publishedEvent {
	t.Helper()
	select {
	case evt := <-p.events:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
		return publishedEvent{}
	}
}

func (p *recordingPublisher) drain() []publishedEvent {
	var out []publishedEvent
	for {
		select {
		case evt := <-p.events:
			out = append(out, evt)
		default:
			return out
		}
	}
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) LoadActiveOrPausedSession(ctx context.Context, roomID string) (model.TimerState, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(model.TimerState), args.Error(1)
}

func (m *mockStore) UpsertSession(ctx context.Context, roomID string, state model.TimerState) error {
	return m.Called(ctx, roomID, state).Error(0)
}

func (m *mockStore) CompleteSession(ctx context.Context, roomID string) error {
	return m.Called(ctx, roomID).Error(0)
}

func (m *mockStore) ListActiveSessions(ctx context.Context) ([]model.TimerState, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.TimerState), args.Error(1)
}

var errBoom = errors.New("boom")
