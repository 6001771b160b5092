package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"studyhub/backend/internal/model"
)

const timerSessionColumns = `id, room_id, phase, status, remaining_seconds, planned_seconds,
	session_number, total_sessions, is_running, is_paused, controlled_by, version,
	started_at, updated_at, completed_at, elapsed_seconds`

type TimerSessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTimerSessionRepository(db *sql.DB) *TimerSessionRepository {
	return &TimerSessionRepository{db: db, now: time.Now}
}

func (r *TimerSessionRepository) LoadActiveOrPausedSession(ctx context.Context, roomID string) (model.TimerState, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT `+timerSessionColumns+`
		 FROM timer_sessions
		 WHERE room_id = ? AND status IN ('ACTIVE', 'PAUSED')
		 ORDER BY started_at DESC, version DESC
		 LIMIT 1`,
		roomID,
	)
	session, err := scanTimerSession(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.TimerState{}, err
		}
		return model.TimerState{}, fmt.Errorf("load timer session: %w", err)
	}
	return stateFromSession(session), nil
}

// UpsertSession updates the room's live row when the incoming version is
// newer, leaves it alone when stale, and inserts a fresh row when the room
// has no live row.
func (r *TimerSessionRepository) UpsertSession(ctx context.Context, roomID string, state model.TimerState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", classifySQLite(err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var id string
	var version int64
	err = tx.QueryRowContext(
		ctx,
		`SELECT id, version FROM timer_sessions
		 WHERE room_id = ? AND status IN ('ACTIVE', 'PAUSED')
		 ORDER BY started_at DESC, version DESC
		 LIMIT 1`,
		roomID,
	).Scan(&id, &version)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO timer_sessions (`+timerSessionColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 0)`,
			uuid.NewString(),
			roomID,
			string(state.Phase),
			state.DurableStatus(),
			state.RemainingSeconds,
			state.RemainingSeconds,
			state.Session,
			state.TotalSessions,
			state.IsRunning,
			state.IsPaused,
			state.ControlledBy,
			state.Version,
			formatTime(state.UpdatedAt),
			formatTime(state.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert timer session: %w", liveRowConflict(classifySQLite(err)))
		}
	case err != nil:
		return fmt.Errorf("select timer session: %w", classifySQLite(err))
	case version >= state.Version:
		return nil
	default:
		_, err = tx.ExecContext(
			ctx,
			`UPDATE timer_sessions
			 SET phase = ?, status = ?, remaining_seconds = ?, session_number = ?,
			     total_sessions = ?, is_running = ?, is_paused = ?, controlled_by = ?,
			     version = ?, updated_at = ?
			 WHERE id = ?`,
			string(state.Phase),
			state.DurableStatus(),
			state.RemainingSeconds,
			state.Session,
			state.TotalSessions,
			state.IsRunning,
			state.IsPaused,
			state.ControlledBy,
			state.Version,
			formatTime(state.UpdatedAt),
			id,
		)
		if err != nil {
			return fmt.Errorf("update timer session: %w", classifySQLite(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", classifySQLite(err))
	}
	return nil
}

func (r *TimerSessionRepository) CompleteSession(ctx context.Context, roomID string) error {
	now := formatTime(r.now())
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE timer_sessions
		 SET status = 'COMPLETED',
		     elapsed_seconds = MAX(planned_seconds - remaining_seconds, 0),
		     remaining_seconds = 0, is_running = 0, is_paused = 0,
		     updated_at = ?, completed_at = ?
		 WHERE id = (
			SELECT id FROM timer_sessions
			WHERE room_id = ? AND status IN ('ACTIVE', 'PAUSED')
			ORDER BY started_at DESC, version DESC
			LIMIT 1
		 )`,
		now,
		now,
		roomID,
	)
	if err != nil {
		return fmt.Errorf("complete timer session: %w", classifySQLite(err))
	}
	return nil
}

func (r *TimerSessionRepository) ListActiveSessions(ctx context.Context) ([]model.TimerState, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+timerSessionColumns+`
		 FROM timer_sessions
		 WHERE status = 'ACTIVE'
		 ORDER BY started_at DESC, version DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	states := make([]model.TimerState, 0)
	for rows.Next() {
		session, err := scanTimerSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active session: %w", err)
		}
		if _, ok := seen[session.RoomID]; ok {
			continue
		}
		seen[session.RoomID] = struct{}{}
		states = append(states, stateFromSession(session))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active sessions: %w", err)
	}
	return states, nil
}

func (r *TimerSessionRepository) ListSessions(ctx context.Context, roomID string, limit int) ([]model.TimerSession, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+timerSessionColumns+`
		 FROM timer_sessions
		 WHERE room_id = ?
		 ORDER BY started_at DESC, version DESC
		 LIMIT ?`,
		roomID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list timer sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.TimerSession, 0, limit)
	for rows.Next() {
		session, err := scanTimerSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timer session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timer sessions: %w", err)
	}
	return sessions, nil
}

func (r *TimerSessionRepository) SessionStats(ctx context.Context, roomID string) (model.SessionStats, error) {
	stats := model.SessionStats{RoomID: roomID}
	err := r.db.QueryRowContext(
		ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN phase = 'FOCUS' AND elapsed_seconds >= planned_seconds THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN phase != 'FOCUS' AND elapsed_seconds >= planned_seconds THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN phase = 'FOCUS' THEN elapsed_seconds ELSE 0 END), 0)
		 FROM timer_sessions
		 WHERE room_id = ? AND status = 'COMPLETED'`,
		roomID,
	).Scan(&stats.CompletedFocusSessions, &stats.CompletedBreaks, &stats.FocusedSeconds)
	if err != nil {
		return stats, fmt.Errorf("timer session stats: %w", err)
	}
	return stats, nil
}

func scanTimerSession(s scanner) (*model.TimerSession, error) {
	session := model.TimerSession{}
	var phase string
	var startedAt string
	var updatedAt string
	var completedAt sql.NullString
	err := s.Scan(
		&session.ID,
		&session.RoomID,
		&phase,
		&session.Status,
		&session.RemainingSeconds,
		&session.PlannedSeconds,
		&session.SessionNumber,
		&session.TotalSessions,
		&session.IsRunning,
		&session.IsPaused,
		&session.ControlledBy,
		&session.Version,
		&startedAt,
		&updatedAt,
		&completedAt,
		&session.ElapsedSeconds,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	session.Phase = model.Phase(phase)

	if session.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if session.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	return &session, nil
}

func stateFromSession(session *model.TimerSession) model.TimerState {
	return model.TimerState{
		RoomID:           session.RoomID,
		Phase:            session.Phase,
		RemainingSeconds: session.RemainingSeconds,
		IsRunning:        session.IsRunning,
		IsPaused:         session.IsPaused,
		Session:          session.SessionNumber,
		TotalSessions:    session.TotalSessions,
		ControlledBy:     session.ControlledBy,
		Version:          session.Version,
		UpdatedAt:        session.UpdatedAt,
	}
}
