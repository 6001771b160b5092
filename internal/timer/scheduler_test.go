package timer

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickCall struct {
	roomID string
	gen    uint64
}

func TestSchedulerRestartReplacesHandle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan tickCall, 16)
	scheduler := NewScheduler(clock, time.Second, func(roomID string, gen uint64) {
		ticks <- tickCall{roomID: roomID, gen: gen}
	})
	t.Cleanup(scheduler.StopAll)

	first := scheduler.Start("room")
	second := scheduler.Start("room")
	require.NotEqual(t, first, second)
	assert.False(t, scheduler.IsCurrent("room", first))
	assert.True(t, scheduler.IsCurrent("room", second))
	assert.Equal(t, 1, scheduler.Active())

	clock.Advance(time.Second)
	select {
	case call := <-ticks:
		assert.Equal(t, tickCall{roomID: "room", gen: second}, call)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a tick")
	}

	select {
	case call := <-ticks:
		t.Fatalf("unexpected extra tick %+v", call)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSchedulerCancelIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan tickCall, 16)
	scheduler := NewScheduler(clock, time.Second, func(roomID string, gen uint64) {
		ticks <- tickCall{roomID: roomID, gen: gen}
	})

	assert.False(t, scheduler.Cancel("missing"))

	gen := scheduler.Start("room")
	assert.True(t, scheduler.Running("room"))
	assert.True(t, scheduler.Cancel("room"))
	assert.False(t, scheduler.Cancel("room"))
	assert.False(t, scheduler.IsCurrent("room", gen))
	assert.Equal(t, 0, scheduler.Active())

	clock.Advance(3 * time.Second)
	select {
	case call := <-ticks:
		t.Fatalf("cancelled room ticked: %+v", call)
	case <-time.After(50 * time.Millisecond):
	}
}
