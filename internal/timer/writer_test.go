package timer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"studyhub/backend/internal/model"
	"studyhub/backend/internal/repository"
)

func newTestWriter(store Store, clock clockwork.Clock) *Writer {
	return NewWriter(store, clock, WriterConfig{
		Debounce:       5 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		WriteTimeout:   time.Second,
	})
}

func waitIdle(t *testing.T, w *Writer, roomID string) {
	t.Helper()
	require.Eventually(t, func() bool { return !w.Pending(roomID) }, 2*time.Second, 5*time.Millisecond)
}

func stateWith(remaining int, version int64) model.TimerState {
	return model.TimerState{RoomID: "room-1", Phase: model.PhaseFocus, RemainingSeconds: remaining, Session: 1, TotalSessions: 4, Version: version}
}

func TestWriterDebounceCoalescesToLastSnapshot(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &mockStore{}
	store.On("UpsertSession", mock.Anything, "room-1", stateWith(97, 3)).Return(nil).Once()
	w := newTestWriter(store, clock)

	w.ScheduleWrite("room-1", stateWith(99, 1))
	clock.Advance(time.Second)
	w.ScheduleWrite("room-1", stateWith(98, 2))
	clock.Advance(time.Second)
	w.ScheduleWrite("room-1", stateWith(97, 3))
	clock.Advance(4 * time.Second)
	assert.True(t, w.Pending("room-1"))

	clock.Advance(time.Second)
	waitIdle(t, w, "room-1")
	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "UpsertSession", 1)
}

func TestWriterImmediateWriteCancelsPendingSnapshot(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := &mockStore{}
	store.On("UpsertSession", mock.Anything, "room-1", stateWith(50, 2)).Return(nil).Once()
	w := newTestWriter(store, clock)

	w.ScheduleWrite("room-1", stateWith(51, 1))
	w.WriteNow("room-1", stateWith(50, 2))
	waitIdle(t, w, "room-1")

	clock.Advance(10 * time.Second)
	require.NoError(t, w.Wait(context.Background()))
	store.AssertNumberOfCalls(t, "UpsertSession", 1)
}

func TestWriterRetriesWriteConflicts(t *testing.T) {
	store := &mockStore{}
	conflict := fmt.Errorf("upsert: %w", repository.ErrWriteConflict)
	store.On("UpsertSession", mock.Anything, "room-1", mock.Anything).Return(conflict).Twice()
	store.On("UpsertSession", mock.Anything, "room-1", mock.Anything).Return(nil).Once()
	w := newTestWriter(store, clockwork.NewFakeClock())

	w.WriteNow("room-1", stateWith(10, 1))
	waitIdle(t, w, "room-1")
	store.AssertNumberOfCalls(t, "UpsertSession", 3)
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	store := &mockStore{}
	store.On("CompleteSession", mock.Anything, "room-1").Return(repository.ErrWriteConflict)
	w := newTestWriter(store, clockwork.NewFakeClock())

	w.Complete("room-1")
	waitIdle(t, w, "room-1")
	store.AssertNumberOfCalls(t, "CompleteSession", 3)
}

func TestWriterDoesNotRetryOtherErrors(t *testing.T) {
	store := &mockStore{}
	store.On("UpsertSession", mock.Anything, "room-1", mock.Anything).Return(errBoom)
	w := newTestWriter(store, clockwork.NewFakeClock())

	w.WriteNow("room-1", stateWith(10, 1))
	waitIdle(t, w, "room-1")
	store.AssertNumberOfCalls(t, "UpsertSession", 1)
}

func TestWriterAppliesCompletionBeforeNextRecord(t *testing.T) {
	store := &mockStore{}
	var mu sync.Mutex
	var order []string
	record := func(name string) func(mock.Arguments) {
		return func(mock.Arguments) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	store.On("CompleteSession", mock.Anything, "room-1").Run(record("complete")).Return(nil)
	store.On("UpsertSession", mock.Anything, "room-1", mock.Anything).Run(record("upsert")).Return(nil)
	w := newTestWriter(store, clockwork.NewFakeClock())

	w.ScheduleWrite("room-1", stateWith(1, 1))
	w.Complete("room-1")
	w.WriteNow("room-1", stateWith(300, 2))
	waitIdle(t, w, "room-1")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"complete", "upsert"}, order)
}

func TestWriterCloseFlushesPendingSnapshots(t *testing.T) {
	store := &mockStore{}
	store.On("UpsertSession", mock.Anything, "room-1", stateWith(42, 4)).Return(nil).Once()
	w := newTestWriter(store, clockwork.NewFakeClock())

	w.ScheduleWrite("room-1", stateWith(42, 4))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Close(ctx))
	store.AssertExpectations(t)

	w.WriteNow("room-1", stateWith(41, 5))
	require.NoError(t, w.Wait(ctx))
	store.AssertNumberOfCalls(t, "UpsertSession", 1)
}

func TestWaitRoomBlocksUntilQueuedWritesLand(t *testing.T) {
	store := newGatedStore()
	w := newTestWriter(store, clockwork.NewFakeClock())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = w.Wait(ctx)
	})

	require.NoError(t, w.WaitRoom(context.Background(), "room-1"))

	w.Complete("room-1")
	<-store.entered

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, w.WaitRoom(short, "room-1"), context.DeadlineExceeded)
	require.NoError(t, w.WaitRoom(context.Background(), "other-room"))

	close(store.release)
	ctx, cancelWait := context.WithTimeout(context.Background(), time.Second)
	defer cancelWait()
	require.NoError(t, w.WaitRoom(ctx, "room-1"))
	assert.False(t, w.Pending("room-1"))
}
