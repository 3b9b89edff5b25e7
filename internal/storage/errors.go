package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record is not found
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when trying to create a record that already exists
	ErrAlreadyExists = errors.New("record already exists")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownField is returned when a condition or update names a column dag_info does not have
	ErrUnknownField = errors.New("unknown field")
)
