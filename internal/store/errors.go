package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a row does not exist or is soft-deleted.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint rejects a write.
var ErrConflict = errors.New("already exists")

// ErrVersionConflict is returned when a versioned update matched no row,
// meaning a concurrent writer got there first.
var ErrVersionConflict = errors.New("version conflict")

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode
}
