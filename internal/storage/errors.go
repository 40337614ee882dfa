package storage

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when creating a record that must be unique,
// such as a second system setting.
var ErrAlreadyExists = errors.New("record already exists")
