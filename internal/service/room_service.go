package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "studyhub/backend/internal/errors"
	"studyhub/backend/internal/model"
	"studyhub/backend/internal/repository"
)

const maxRoomNameLength = 120

// RoomCloser drops realtime connections for a removed room.
type RoomCloser interface {
	CloseRoom(roomID string)
}

type RoomService struct {
	rooms      RoomStore
	engine     TimerEngine
	authorizer *RoomAuthorizer
	closer     RoomCloser
}

type RoomView struct {
	Room  model.Room       `json:"room"`
	Timer model.TimerState `json:"timer"`
}

func NewRoomService(rooms RoomStore, engine TimerEngine, authorizer *RoomAuthorizer, closer RoomCloser) *RoomService {
	return &RoomService{
		rooms:      rooms,
		engine:     engine,
		authorizer: authorizer,
		closer:     closer,
	}
}

func (s *RoomService) Create(ctx context.Context, userID, name string) (*RoomView, *apperrors.APIError) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.BadRequest("invalid_name", "room name is required")
	}
	if len(name) > maxRoomNameLength {
		return nil, apperrors.BadRequest("invalid_name", "room name is too long")
	}

	room := model.Room{
		ID:        uuid.NewString(),
		Name:      name,
		CreatorID: userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.rooms.Create(ctx, &room); err != nil {
		return nil, apperrors.Internal("failed to create room").WithCause(err)
	}

	log.Info().Str("room_id", room.ID).Str("user_id", userID).Msg("room created")
	return &RoomView{Room: room, Timer: s.engine.GetOrCreate(ctx, room.ID)}, nil
}

func (s *RoomService) Get(ctx context.Context, roomID string) (*RoomView, *apperrors.APIError) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("room_not_found", "room not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to load room").WithCause(err)
	}
	return &RoomView{Room: *room, Timer: s.engine.GetOrCreate(ctx, roomID)}, nil
}

// Delete removes the room and everything the process holds for it. Only the
// creator or an admin may delete.
func (s *RoomService) Delete(ctx context.Context, roomID, userID string) *apperrors.APIError {
	room, err := s.rooms.GetByID(ctx, roomID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("room_not_found", "room not found")
	}
	if err != nil {
		return apperrors.Internal("failed to load room").WithCause(err)
	}

	if room.CreatorID != userID {
		isAdmin, err := s.authorizer.IsAdmin(ctx, userID)
		if err != nil {
			return apperrors.Internal("failed to authorize").WithCause(err)
		}
		if !isAdmin {
			return apperrors.Forbidden("only the room creator or an admin can delete the room")
		}
	}

	if err := s.rooms.Delete(ctx, roomID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperrors.Internal("failed to delete room").WithCause(err)
	}

	s.Forget(ctx, roomID)
	log.Info().Str("room_id", roomID).Str("user_id", userID).Msg("room deleted")
	return nil
}

// Forget evicts the room's timer and drops its connections and cached
// authorization decisions. It is also the lifecycle listener's eviction hook.
func (s *RoomService) Forget(ctx context.Context, roomID string) {
	s.engine.Evict(ctx, roomID)
	s.ForgetConnections(roomID)
}

func (s *RoomService) ForgetConnections(roomID string) {
	if s.closer != nil {
		s.closer.CloseRoom(roomID)
	}
	s.authorizer.Forget(roomID)
}
