package repository

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"studyhub/backend/internal/db"
)

func TestSecondLiveRowInsertIsRetryableConflict(t *testing.T) {
	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.RunMigrations(database))

	_, err = database.Exec(`INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES ('u1', 'a@example.com', 'x', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)
	_, err = database.Exec(`INSERT INTO rooms (id, name, creator_id, created_at)
		VALUES ('r1', 'Room', 'u1', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)

	insertLive := func(id string) error {
		_, err := database.Exec(`INSERT INTO timer_sessions
			(id, room_id, phase, status, remaining_seconds, planned_seconds, session_number,
			 total_sessions, version, started_at, updated_at)
			VALUES (?, 'r1', 'FOCUS', 'ACTIVE', 1500, 1500, 1, 4, 1, '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`, id)
		return err
	}
	require.NoError(t, insertLive("s1"))

	err = liveRowConflict(classifySQLite(insertLive("s2")))
	require.ErrorIs(t, err, ErrDuplicate)
	require.ErrorIs(t, err, ErrWriteConflict)

	require.NoError(t, liveRowConflict(nil))
}
