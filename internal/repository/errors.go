package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Postgres SQLSTATE codes that mean "another writer got there first"
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// translate maps driver errors onto repository sentinels
func translate(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrVersionConflict, pqErr.Message)
		}
	}
	return err
}
