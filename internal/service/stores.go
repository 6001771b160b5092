package service

import (
	"context"

	"studyhub/backend/internal/model"
)

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
}

type RoomStore interface {
	Create(ctx context.Context, room *model.Room) error
	GetByID(ctx context.Context, id string) (*model.Room, error)
	Delete(ctx context.Context, id string) error
}

type SessionHistory interface {
	ListSessions(ctx context.Context, roomID string, limit int) ([]model.TimerSession, error)
	SessionStats(ctx context.Context, roomID string) (model.SessionStats, error)
}

type TimerEngine interface {
	Start(ctx context.Context, roomID, userID string) model.TimerState
	Pause(ctx context.Context, roomID, userID string) model.TimerState
	Reset(ctx context.Context, roomID, userID string) model.TimerState
	GetOrCreate(ctx context.Context, roomID string) model.TimerState
	Evict(ctx context.Context, roomID string)
}
