package retry

import (
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLiteClassifier marks SQLite faults transient when another connection
// holds the database or a table lock (SQLITE_BUSY, SQLITE_LOCKED), on
// locking protocol races (SQLITE_PROTOCOL), and on I/O errors
// (SQLITE_IOERR). Constraint and misuse errors are permanent.
type SQLiteClassifier struct{}

func (SQLiteClassifier) Transient(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrProtocol, sqlite3.ErrIoErr:
			return true
		}
		return false
	}
	return matchesTransientSignature(err)
}
