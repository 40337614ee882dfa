package models

import (
	"errors"
	"fmt"
)

// ErrExclusiveOutcome is returned when a record carries both a tx hash and an
// error message, or a status that matches neither.
var ErrExclusiveOutcome = errors.New("exactly one of txHash and errorMessage must be set")

func errRequired(field string) error {
	return fmt.Errorf("%s is required", field)
}

func errExclusive() error {
	return ErrExclusiveOutcome
}

func errInvalidStatus(status string) error {
	return fmt.Errorf("invalid transaction status: %q", status)
}
