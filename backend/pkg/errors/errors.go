// Package errors defines the typed error hierarchy shared by the memory
// engine. Each error carries a category so callers can map failures to the
// degradation policy: encoder and extractor failures degrade a turn, store
// and generator failures fail it.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeEncoding represents embedding encoder failures
	ErrorTypeEncoding ErrorType = "encoding"
	// ErrorTypeExtraction represents entity extractor failures
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeGeneration represents text generator failures
	ErrorTypeGeneration ErrorType = "generation"
	// ErrorTypeStore represents graph store failures
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeIngest represents ingestion failures
	ErrorTypeIngest ErrorType = "ingest"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Store Errors

// ErrNodeNotFound is returned when a memory node id is unknown
type ErrNodeNotFound struct {
	*BaseError
	NodeID string
}

func NewNodeNotFound(nodeID string) *ErrNodeNotFound {
	return &ErrNodeNotFound{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("memory node not found: %s", nodeID), nil),
		NodeID:    nodeID,
	}
}

// ErrVersionConflict is returned when an optimistic version check fails on
// update. The caller retries with a fresh read, up to the configured bound.
type ErrVersionConflict struct {
	*BaseError
	NodeID  string
	Version int64
}

func NewVersionConflict(nodeID string, version int64) *ErrVersionConflict {
	return &ErrVersionConflict{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("version conflict on node %s (expected %d)", nodeID, version), nil),
		NodeID:    nodeID,
		Version:   version,
	}
}

// ErrStoreUnavailable is returned when the backing graph store is unreachable
type ErrStoreUnavailable struct {
	*BaseError
	URI string
}

func NewStoreUnavailable(uri string, err error) *ErrStoreUnavailable {
	return &ErrStoreUnavailable{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("graph store unavailable: %s", uri), err),
		URI:       uri,
	}
}

// Capability Errors

// ErrEncodingFailed is returned when the embedding encoder fails after retries
type ErrEncodingFailed struct {
	*BaseError
	Model    string
	Attempts int
}

func NewEncodingFailed(model string, attempts int, err error) *ErrEncodingFailed {
	return &ErrEncodingFailed{
		BaseError: NewBaseError(ErrorTypeEncoding, fmt.Sprintf("encoding failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
	}
}

// ErrExtractionFailed is returned when entity extraction fails after retries
type ErrExtractionFailed struct {
	*BaseError
	Model string
}

func NewExtractionFailed(model string, err error) *ErrExtractionFailed {
	return &ErrExtractionFailed{
		BaseError: NewBaseError(ErrorTypeExtraction, "entity extraction failed", err),
		Model:     model,
	}
}

// ErrGenerationFailed is returned when the generator errors or times out.
// Unlike encoder and extractor failures, this fails the turn.
type ErrGenerationFailed struct {
	*BaseError
	Model string
}

func NewGenerationFailed(model string, err error) *ErrGenerationFailed {
	return &ErrGenerationFailed{
		BaseError: NewBaseError(ErrorTypeGeneration, "generation failed", err),
		Model:     model,
	}
}

// ErrDimensionMismatch is returned when an embedding does not match the
// configured encoder dimension
type ErrDimensionMismatch struct {
	*BaseError
	Want int
	Got  int
}

func NewDimensionMismatch(want, got int) *ErrDimensionMismatch {
	return &ErrDimensionMismatch{
		BaseError: NewBaseError(ErrorTypeEncoding, fmt.Sprintf("embedding dimension mismatch: want %d, got %d", want, got), nil),
		Want:      want,
		Got:       got,
	}
}

// Context Errors

// ErrContextTimeout is returned when a capability call times out
type ErrContextTimeout struct {
	*BaseError
	Operation string
	Timeout   time.Duration
}

func NewContextTimeout(operation string, timeout time.Duration) *ErrContextTimeout {
	return &ErrContextTimeout{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context timeout: %s (timeout: %v)", operation, timeout), nil),
		Operation: operation,
		Timeout:   timeout,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific category
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if baseErr, ok := err.(*BaseError); ok {
			return baseErr.Type == errType
		}
		if typed, ok := err.(interface{ base() *BaseError }); ok {
			return typed.base().Type == errType
		}
		err = errors.Unwrap(err)
	}
	return false
}

func (e *BaseError) base() *BaseError { return e }

// IsConflict reports whether err is an optimistic version conflict
func IsConflict(err error) bool {
	var conflict *ErrVersionConflict
	return errors.As(err, &conflict)
}

// IsNotFound reports whether err is a missing-node error
func IsNotFound(err error) bool {
	var notFound *ErrNodeNotFound
	return errors.As(err, &notFound)
}

// IsRetryable checks if an error is worth retrying. Conflicts retry with a
// fresh read; context errors never retry.
func IsRetryable(err error) bool {
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	if IsConflict(err) {
		return true
	}
	var unavailable *ErrStoreUnavailable
	return errors.As(err, &unavailable)
}
