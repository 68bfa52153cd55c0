package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication means no active API key matched the client id and key.
	ErrAuthentication = errors.New("invalid API key")

	// ErrInvalidRequest wraps request shape problems found before authentication.
	ErrInvalidRequest = errors.New("invalid request")

	ErrUnsupportedDataType = fmt.Errorf("%w: unsupported data_type", ErrInvalidRequest)
)

// RecordError is a failure of a single record. It is collected into the batch
// result and never aborts the batch.
type RecordError struct {
	RecordID string
	Index    int
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %v", e.RecordID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
