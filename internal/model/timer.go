package model

import "time"

type Phase string

const (
	PhaseFocus      Phase = "FOCUS"
	PhaseShortBreak Phase = "SHORT_BREAK"
	PhaseLongBreak  Phase = "LONG_BREAK"
)

// Durable lifecycle of a timer_sessions row. A running timer is stored as
// ACTIVE, any other live timer as PAUSED.
const (
	SessionStatusActive    = "ACTIVE"
	SessionStatusPaused    = "PAUSED"
	SessionStatusCompleted = "COMPLETED"
)

const (
	DefaultFocusDurationSeconds      = 25 * 60
	DefaultShortBreakDurationSeconds = 5 * 60
	DefaultLongBreakDurationSeconds  = 15 * 60
	DefaultTotalSessions             = 4
)

type Durations struct {
	FocusSeconds      int `json:"focusSeconds"`
	ShortBreakSeconds int `json:"shortBreakSeconds"`
	LongBreakSeconds  int `json:"longBreakSeconds"`
	TotalSessions     int `json:"totalSessions"`
}

func DefaultDurations() Durations {
	return Durations{
		FocusSeconds:      DefaultFocusDurationSeconds,
		ShortBreakSeconds: DefaultShortBreakDurationSeconds,
		LongBreakSeconds:  DefaultLongBreakDurationSeconds,
		TotalSessions:     DefaultTotalSessions,
	}
}

func (d Durations) For(phase Phase) int {
	switch phase {
	case PhaseShortBreak:
		return d.ShortBreakSeconds
	case PhaseLongBreak:
		return d.LongBreakSeconds
	default:
		return d.FocusSeconds
	}
}

type TimerState struct {
	RoomID           string    `json:"roomId"`
	Phase            Phase     `json:"phase"`
	RemainingSeconds int       `json:"remainingSeconds"`
	IsRunning        bool      `json:"isRunning"`
	IsPaused         bool      `json:"isPaused"`
	Session          int       `json:"session"`
	TotalSessions    int       `json:"totalSessions"`
	ControlledBy     string    `json:"controlledBy"`
	Version          int64     `json:"version"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NewTimerState returns the idle state a room starts in: first focus
// session at full duration, nobody in control.
func NewTimerState(roomID string, d Durations, now time.Time) TimerState {
	return TimerState{
		RoomID:           roomID,
		Phase:            PhaseFocus,
		RemainingSeconds: d.FocusSeconds,
		Session:          1,
		TotalSessions:    d.TotalSessions,
		UpdatedAt:        now.UTC(),
	}
}

func (s TimerState) DurableStatus() string {
	if s.IsRunning {
		return SessionStatusActive
	}
	return SessionStatusPaused
}

type TimerSession struct {
	ID               string     `json:"id"`
	RoomID           string     `json:"roomId"`
	Phase            Phase      `json:"phase"`
	Status           string     `json:"status"`
	RemainingSeconds int        `json:"remainingSeconds"`
	PlannedSeconds   int        `json:"plannedSeconds"`
	ElapsedSeconds   int        `json:"elapsedSeconds"`
	SessionNumber    int        `json:"sessionNumber"`
	TotalSessions    int        `json:"totalSessions"`
	IsRunning        bool       `json:"isRunning"`
	IsPaused         bool       `json:"isPaused"`
	ControlledBy     string     `json:"controlledBy"`
	Version          int64      `json:"version"`
	StartedAt        time.Time  `json:"startedAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

type SessionStats struct {
	RoomID                 string `json:"roomId"`
	CompletedFocusSessions int    `json:"completedFocusSessions"`
	CompletedBreaks        int    `json:"completedBreaks"`
	FocusedSeconds         int    `json:"focusedSeconds"`
}
