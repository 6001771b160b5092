package timer

import (
	"context"

	"studyhub/backend/internal/model"
)

const (
	EventStarted   = "started"
	EventPaused    = "paused"
	EventReset     = "reset"
	EventTick      = "tick"
	EventCompleted = "completed"
	EventSync      = "sync"
)

// Store is the durable side of the engine. LoadActiveOrPausedSession returns
// repository.ErrNotFound when the room has no live record, and writes that
// lose a race return an error wrapping repository.ErrWriteConflict.
type Store interface {
	LoadActiveOrPausedSession(ctx context.Context, roomID string) (model.TimerState, error)
	UpsertSession(ctx context.Context, roomID string, state model.TimerState) error
	CompleteSession(ctx context.Context, roomID string) error
	ListActiveSessions(ctx context.Context) ([]model.TimerState, error)
}

type Publisher interface {
	Publish(ctx context.Context, roomID, event string, state model.TimerState) error
}
