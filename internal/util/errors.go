package util

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the attempt and scoring services. Callers classify
// with errors.Is; the messages are shown to API clients.
var (
	ErrNotFound         = errors.New("not found")
	ErrWindowClosed     = errors.New("assessment not currently open")
	ErrAlreadyCompleted = errors.New("attempt already submitted")
	ErrInvalidStudent   = errors.New("student identity could not be resolved")
	ErrValidation       = errors.New("validation failed")
	ErrStorage          = errors.New("storage failure")
	ErrPermissionDenied = errors.New("permission denied")
)

// StorageError wraps a backing-store fault. It matches ErrStorage and unwraps
// to the underlying error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorage.Error(), e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// NotFoundf returns an ErrNotFound carrying the missing entity.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// Validationf returns an ErrValidation with a detail message.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
