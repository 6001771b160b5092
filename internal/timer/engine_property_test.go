package timer

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"pgregory.net/rapid"

	"studyhub/backend/internal/model"
)

func TestControlSequencesKeepInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		clock := clockwork.NewFakeClock()
		store := newMemoryStore()
		durations := model.Durations{FocusSeconds: 5, ShortBreakSeconds: 2, LongBreakSeconds: 3, TotalSessions: 2}
		writer := NewWriter(store, clock, WriterConfig{Debounce: time.Second, MaxAttempts: 1, InitialBackoff: time.Millisecond})
		engine := NewEngine(Config{Durations: durations, TickInterval: time.Hour}, store, writer, nil, clock)
		ctx := context.Background()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			_ = engine.Shutdown(shutdownCtx)
		}()

		prev := engine.GetOrCreate(ctx, "room")
		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			op := rapid.SampledFrom([]string{"start", "pause", "reset", "tick"}).Draw(t, "op")
			var next model.TimerState
			switch op {
			case "start":
				next = engine.Start(ctx, "room", "u1")
				if !next.IsRunning || next.RemainingSeconds != prev.RemainingSeconds {
					t.Fatalf("start: %+v -> %+v", prev, next)
				}
			case "pause":
				next = engine.Pause(ctx, "room", "u1")
				if next.IsRunning || !next.IsPaused || next.RemainingSeconds != prev.RemainingSeconds {
					t.Fatalf("pause: %+v -> %+v", prev, next)
				}
			case "reset":
				next = engine.Reset(ctx, "room", "u1")
				if next.IsRunning || next.IsPaused || next.RemainingSeconds != durations.For(prev.Phase) {
					t.Fatalf("reset: %+v -> %+v", prev, next)
				}
			case "tick":
				var applied bool
				next, applied = engine.Tick(ctx, "room", prev.RemainingSeconds-1)
				if applied != prev.IsRunning {
					t.Fatalf("tick applied=%v on %+v", applied, prev)
				}
				if !applied {
					next = prev
					break
				}
				if next.Phase == prev.Phase && next.RemainingSeconds != prev.RemainingSeconds-1 {
					t.Fatalf("tick did not decrement by one: %+v -> %+v", prev, next)
				}
				if next.Phase != prev.Phase && (next.IsRunning || next.RemainingSeconds != durations.For(next.Phase)) {
					t.Fatalf("phase change left timer running or short: %+v", next)
				}
			}

			if next.IsRunning && next.IsPaused {
				t.Fatalf("running and paused at once: %+v", next)
			}
			if next.RemainingSeconds <= 0 {
				t.Fatalf("non-positive remaining: %+v", next)
			}
			if engine.RunningRooms() > 1 || (engine.RunningRooms() == 1) != next.IsRunning {
				t.Fatalf("scheduler out of sync: running=%v handles=%d", next.IsRunning, engine.RunningRooms())
			}
			prev = next
		}
	})
}
