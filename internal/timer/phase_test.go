package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"studyhub/backend/internal/model"
)

func TestNextPhaseCycle(t *testing.T) {
	state := model.TimerState{Phase: model.PhaseFocus, Session: 1, TotalSessions: 4}
	var visited []model.Phase
	var sessions []int
	for i := 0; i < 8; i++ {
		state.Phase, state.Session = NextPhase(state)
		visited = append(visited, state.Phase)
		sessions = append(sessions, state.Session)
	}

	assert.Equal(t, []model.Phase{
		model.PhaseShortBreak, model.PhaseFocus,
		model.PhaseShortBreak, model.PhaseFocus,
		model.PhaseShortBreak, model.PhaseFocus,
		model.PhaseLongBreak, model.PhaseFocus,
	}, visited)
	assert.Equal(t, []int{1, 2, 2, 3, 3, 4, 4, 5}, sessions)
}

func TestNextPhaseProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		total := rapid.IntRange(1, 8).Draw(t, "total")
		session := rapid.IntRange(1, 100).Draw(t, "session")
		phase := rapid.SampledFrom([]model.Phase{model.PhaseFocus, model.PhaseShortBreak, model.PhaseLongBreak}).Draw(t, "phase")

		next, nextSession := NextPhase(model.TimerState{Phase: phase, Session: session, TotalSessions: total})
		if phase == model.PhaseFocus {
			if nextSession != session {
				t.Fatalf("session changed leaving focus: %d -> %d", session, nextSession)
			}
			want := model.PhaseShortBreak
			if session%total == 0 {
				want = model.PhaseLongBreak
			}
			if next != want {
				t.Fatalf("session %d/%d: got %s want %s", session, total, next, want)
			}
			return
		}
		if next != model.PhaseFocus || nextSession != session+1 {
			t.Fatalf("break should lead to focus session %d, got %s %d", session+1, next, nextSession)
		}
	})
}
