package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyhub/backend/internal/model"
)

type PostgresTimerSessionRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresTimerSessionRepository(pool *pgxpool.Pool) *PostgresTimerSessionRepository {
	return &PostgresTimerSessionRepository{pool: pool, now: time.Now}
}

func (r *PostgresTimerSessionRepository) LoadActiveOrPausedSession(ctx context.Context, roomID string) (model.TimerState, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+timerSessionColumns+`
		 FROM timer_sessions
		 WHERE room_id = $1 AND status IN ('ACTIVE', 'PAUSED')
		 ORDER BY started_at DESC, version DESC
		 LIMIT 1`,
		roomID,
	)
	session, err := scanPostgresTimerSession(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.TimerState{}, err
		}
		return model.TimerState{}, fmt.Errorf("load timer session: %w", err)
	}
	return stateFromSession(session), nil
}

func (r *PostgresTimerSessionRepository) UpsertSession(ctx context.Context, roomID string, state model.TimerState) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", classifyPostgres(err))
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var id string
	var version int64
	err = tx.QueryRow(ctx,
		`SELECT id, version FROM timer_sessions
		 WHERE room_id = $1 AND status IN ('ACTIVE', 'PAUSED')
		 ORDER BY started_at DESC, version DESC
		 LIMIT 1
		 FOR UPDATE NOWAIT`,
		roomID,
	).Scan(&id, &version)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx,
			`INSERT INTO timer_sessions (`+timerSessionColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULL, 0)`,
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
			state.UpdatedAt.UTC(),
			state.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert timer session: %w", liveRowConflict(classifyPostgres(err)))
		}
	case err != nil:
		return fmt.Errorf("select timer session: %w", classifyPostgres(err))
	case version >= state.Version:
		return nil
	default:
		_, err = tx.Exec(ctx,
			`UPDATE timer_sessions
			 SET phase = $1, status = $2, remaining_seconds = $3, session_number = $4,
			     total_sessions = $5, is_running = $6, is_paused = $7, controlled_by = $8,
			     version = $9, updated_at = $10
			 WHERE id = $11`,
			string(state.Phase),
			state.DurableStatus(),
			state.RemainingSeconds,
			state.Session,
			state.TotalSessions,
			state.IsRunning,
			state.IsPaused,
			state.ControlledBy,
			state.Version,
			state.UpdatedAt.UTC(),
			id,
		)
		if err != nil {
			return fmt.Errorf("update timer session: %w", classifyPostgres(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert tx: %w", classifyPostgres(err))
	}
	return nil
}

func (r *PostgresTimerSessionRepository) CompleteSession(ctx context.Context, roomID string) error {
	now := r.now().UTC()
	_, err := r.pool.Exec(ctx,
		`UPDATE timer_sessions
		 SET status = 'COMPLETED',
		     elapsed_seconds = GREATEST(planned_seconds - remaining_seconds, 0),
		     remaining_seconds = 0, is_running = FALSE, is_paused = FALSE,
		     updated_at = $1, completed_at = $1
		 WHERE id = (
			SELECT id FROM timer_sessions
			WHERE room_id = $2 AND status IN ('ACTIVE', 'PAUSED')
			ORDER BY started_at DESC, version DESC
			LIMIT 1
		 )`,
		now, roomID,
	)
	if err != nil {
		return fmt.Errorf("complete timer session: %w", classifyPostgres(err))
	}
	return nil
}

func (r *PostgresTimerSessionRepository) ListActiveSessions(ctx context.Context) ([]model.TimerState, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ON (room_id) `+timerSessionColumns+`
		 FROM timer_sessions
		 WHERE status = 'ACTIVE'
		 ORDER BY room_id, started_at DESC, version DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	states := make([]model.TimerState, 0)
	for rows.Next() {
		session, err := scanPostgresTimerSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active session: %w", err)
		}
		states = append(states, stateFromSession(session))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active sessions: %w", err)
	}
	return states, nil
}

func (r *PostgresTimerSessionRepository) ListSessions(ctx context.Context, roomID string, limit int) ([]model.TimerSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+timerSessionColumns+`
		 FROM timer_sessions
		 WHERE room_id = $1
		 ORDER BY started_at DESC, version DESC
		 LIMIT $2`,
		roomID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list timer sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.TimerSession, 0, limit)
	for rows.Next() {
		session, err := scanPostgresTimerSession(rows)
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

func (r *PostgresTimerSessionRepository) SessionStats(ctx context.Context, roomID string) (model.SessionStats, error) {
	stats := model.SessionStats{RoomID: roomID}
	err := r.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE phase = 'FOCUS' AND elapsed_seconds >= planned_seconds),
			COUNT(*) FILTER (WHERE phase <> 'FOCUS' AND elapsed_seconds >= planned_seconds),
			COALESCE(SUM(elapsed_seconds) FILTER (WHERE phase = 'FOCUS'), 0)
		 FROM timer_sessions
		 WHERE room_id = $1 AND status = 'COMPLETED'`,
		roomID,
	).Scan(&stats.CompletedFocusSessions, &stats.CompletedBreaks, &stats.FocusedSeconds)
	if err != nil {
		return stats, fmt.Errorf("timer session stats: %w", err)
	}
	return stats, nil
}

func scanPostgresTimerSession(row pgx.Row) (*model.TimerSession, error) {
	session := model.TimerSession{}
	var phase string
	err := row.Scan(
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
		&session.StartedAt,
		&session.UpdatedAt,
		&session.CompletedAt,
		&session.ElapsedSeconds,
	)
	if err != nil {
		return nil, classifyPostgres(err)
	}
	session.Phase = model.Phase(phase)
	session.StartedAt = session.StartedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()
	return &session, nil
}
