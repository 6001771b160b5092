package repository

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrWriteConflict marks a write that lost a race with another writer and
	// may succeed if retried.
	ErrWriteConflict = errors.New("write conflict")
	ErrDuplicate     = errors.New("duplicate")
)

func classifySQLite(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch {
	case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
		return errors.Join(ErrWriteConflict, err)
	case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return errors.Join(ErrDuplicate, err)
	}
	return err
}

// liveRowConflict turns a unique violation on the one-live-row-per-room index
// into a retryable conflict: the retry reads the row the other writer created.
func liveRowConflict(err error) error {
	if errors.Is(err, ErrDuplicate) {
		return errors.Join(ErrWriteConflict, err)
	}
	return err
}
