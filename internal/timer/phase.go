package timer

import "studyhub/backend/internal/model"

// NextPhase returns the phase and session number that follow a completed
// phase. Leaving focus keeps the session; leaving a break starts the next one.
func NextPhase(state model.TimerState) (model.Phase, int) {
	total := state.TotalSessions
	if total < 1 {
		total = 1
	}
	if state.Phase == model.PhaseFocus {
		if state.Session%total == 0 {
			return model.PhaseLongBreak, state.Session
		}
		return model.PhaseShortBreak, state.Session
	}
	return model.PhaseFocus, state.Session + 1
}
