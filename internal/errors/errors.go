package errors

import (
	"errors"
	"fmt"
)

// Common error values shared by the client packages
var (
	// Storage errors
	ErrNotFound = errors.New("not found")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error wrapping the given errors, nil entries are dropped
func Join(errs ...error) error {
	return errors.Join(errs...)
}
