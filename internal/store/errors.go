package store

import (
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrDuplicateMessage is returned by InsertMessage when a row with the same
// msg_id already exists. It is the dedup signal, not a failure: the unique
// index is the authoritative arbiter under concurrent writers.
var ErrDuplicateMessage = errors.New("store: duplicate message id")

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
