package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "studyhub/backend/internal/errors"
	"studyhub/backend/internal/model"
	"studyhub/backend/internal/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type TimerService struct {
	engine     TimerEngine
	authorizer *RoomAuthorizer
	history    SessionHistory
	tracer     trace.Tracer
	now        func() time.Time
}

type StateView struct {
	model.TimerState
	ServerTime time.Time `json:"serverTime"`
}

func NewTimerService(engine TimerEngine, authorizer *RoomAuthorizer, history SessionHistory, tracer trace.Tracer) *TimerService {
	return &TimerService{
		engine:     engine,
		authorizer: authorizer,
		history:    history,
		tracer:     tracer,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *TimerService) view(state model.TimerState) *StateView {
	return &StateView{TimerState: state, ServerTime: s.now()}
}

func (s *TimerService) GetState(ctx context.Context, roomID string) (*StateView, *apperrors.APIError) {
	ctx, span := s.startSpan(ctx, "timer.get", roomID, "")
	defer span.End()

	if apiErr := s.requireRoom(ctx, roomID); apiErr != nil {
		return nil, apiErr
	}
	return s.view(s.engine.GetOrCreate(ctx, roomID)), nil
}

func (s *TimerService) Start(ctx context.Context, roomID, userID string) (*StateView, *apperrors.APIError) {
	return s.control(ctx, "timer.start", roomID, userID, s.engine.Start)
}

func (s *TimerService) Pause(ctx context.Context, roomID, userID string) (*StateView, *apperrors.APIError) {
	return s.control(ctx, "timer.pause", roomID, userID, s.engine.Pause)
}

func (s *TimerService) Reset(ctx context.Context, roomID, userID string) (*StateView, *apperrors.APIError) {
	return s.control(ctx, "timer.reset", roomID, userID, s.engine.Reset)
}

func (s *TimerService) control(
	ctx context.Context,
	spanName, roomID, userID string,
	op func(ctx context.Context, roomID, userID string) model.TimerState,
) (*StateView, *apperrors.APIError) {
	ctx, span := s.startSpan(ctx, spanName, roomID, userID)
	defer span.End()

	if apiErr := s.authorize(ctx, roomID, userID); apiErr != nil {
		span.SetStatus(codes.Error, apiErr.Code)
		return nil, apiErr
	}

	state := op(ctx, roomID, userID)
	span.SetAttributes(
		attribute.String("timer.phase", string(state.Phase)),
		attribute.Int64("timer.version", state.Version),
	)
	return s.view(state), nil
}

func (s *TimerService) GetHistory(ctx context.Context, roomID string, limit int) ([]model.TimerSession, *apperrors.APIError) {
	ctx, span := s.startSpan(ctx, "timer.history", roomID, "")
	defer span.End()

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	if apiErr := s.requireRoom(ctx, roomID); apiErr != nil {
		return nil, apiErr
	}

	sessions, err := s.history.ListSessions(ctx, roomID, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to list sessions").WithCause(err)
	}
	if sessions == nil {
		sessions = []model.TimerSession{}
	}
	return sessions, nil
}

func (s *TimerService) GetStats(ctx context.Context, roomID string) (*model.SessionStats, *apperrors.APIError) {
	ctx, span := s.startSpan(ctx, "timer.stats", roomID, "")
	defer span.End()

	if apiErr := s.requireRoom(ctx, roomID); apiErr != nil {
		return nil, apiErr
	}

	stats, err := s.history.SessionStats(ctx, roomID)
	if err != nil {
		return nil, apperrors.Internal("failed to load stats").WithCause(err)
	}
	return &stats, nil
}

func (s *TimerService) authorize(ctx context.Context, roomID, userID string) *apperrors.APIError {
	allowed, err := s.authorizer.CanControlTimer(ctx, roomID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("room_not_found", "room not found")
	}
	if err != nil {
		return apperrors.Internal("failed to authorize").WithCause(err)
	}
	if !allowed {
		log.Debug().Str("room_id", roomID).Str("user_id", userID).Msg("timer control denied")
		return apperrors.Forbidden("only the room creator or a moderator can control the timer")
	}
	return nil
}

func (s *TimerService) requireRoom(ctx context.Context, roomID string) *apperrors.APIError {
	if _, err := s.authorizer.rooms.GetByID(ctx, roomID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("room_not_found", "room not found")
		}
		return apperrors.Internal("failed to load room").WithCause(err)
	}
	return nil
}

func (s *TimerService) startSpan(ctx context.Context, name, roomID, userID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("room.id", roomID)}
	if userID != "" {
		attrs = append(attrs, attribute.String("user.id", userID))
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
