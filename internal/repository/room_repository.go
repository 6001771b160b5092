package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"studyhub/backend/internal/model"
)

type RoomRepository struct {
	db *sql.DB
}

func NewRoomRepository(db *sql.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(ctx context.Context, room *model.Room) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO rooms (id, name, creator_id, created_at) VALUES (?, ?, ?, ?)`,
		room.ID,
		room.Name,
		room.CreatorID,
		formatTime(room.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create room: %w", classifySQLite(err))
	}
	return nil
}

func (r *RoomRepository) GetByID(ctx context.Context, id string) (*model.Room, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, name, creator_id, created_at FROM rooms WHERE id = ?`,
		id,
	)

	var room model.Room
	var createdAt string
	if err := row.Scan(&room.ID, &room.Name, &room.CreatorID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get room: %w", err)
	}
	parsed, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse room created_at: %w", err)
	}
	room.CreatedAt = parsed
	return &room, nil
}

func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete room: %w", classifySQLite(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
