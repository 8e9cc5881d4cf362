package storage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidName indicates a name or extension that is not filesystem safe.
	ErrInvalidName = errors.New("invalid storage name")

	// ErrUnknownResource indicates an operation on a name never registered.
	ErrUnknownResource = errors.New("unknown storage resource")

	// ErrIO indicates an open, read, write, sync or rename failure.
	ErrIO = errors.New("storage i/o failure")

	// ErrSerialization indicates a value could not be encoded or decoded.
	ErrSerialization = errors.New("storage serialization failure")

	// ErrPartialBatch indicates that some, but not all, configs of a bulk
	// CreateStorage call failed.
	ErrPartialBatch = errors.New("storage batch partially failed")
)

// PartialBatchError lists the configs that failed in a batch where at least
// one other config succeeded.
type PartialBatchError struct {
	Total  int
	Failed []Outcome
}

func (e *PartialBatchError) Error() string {
	names := make([]string, len(e.Failed))
	for i, o := range e.Failed {
		names[i] = fmt.Sprintf("%s (%v)", o.Name, o.Err)
	}
	return fmt.Sprintf("%s: %d of %d failed: %s",
		ErrPartialBatch.Error(), len(e.Failed), e.Total, strings.Join(names, ", "))
}

// Unwrap exposes ErrPartialBatch and every per-config error to errors.Is.
func (e *PartialBatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed)+1)
	errs = append(errs, ErrPartialBatch)
	for _, o := range e.Failed {
		errs = append(errs, o.Err)
	}
	return errs
}

func ioError(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
}
