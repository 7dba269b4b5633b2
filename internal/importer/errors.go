package importer

import (
	"context"
	"errors"
	"fmt"

	"ingest/internal/batch"
)

var (
	// ErrUnknownSize is returned by ParseBatched for a non-empty stream whose
	// size was not supplied.
	ErrUnknownSize = errors.New("importer: batched parsing needs the input size in bytes")

	// ErrStreamIO wraps failures reading the input stream.
	ErrStreamIO = errors.New("importer: stream read failed")

	// ErrInvalidColumns wraps a rejected caller-supplied column list.
	ErrInvalidColumns = errors.New("importer: invalid columns")
)

// BatchError reports the batch whose handler failed a batched run.
type BatchError = batch.HandlerError

// streamErr tags err as a stream failure. Cancellation passes through
// untouched.
func streamErr(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrStreamIO) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStreamIO, err)
}
