package errors

import (
	"fmt"
	"testing"
)

func TestIsErrorType(t *testing.T) {
	encErr := NewEncodingFailed("embed-model", 3, fmt.Errorf("boom"))
	if !IsErrorType(encErr, ErrorTypeEncoding) {
		t.Error("expected encoding type")
	}
	if IsErrorType(encErr, ErrorTypeStore) {
		t.Error("unexpected store type")
	}

	wrapped := fmt.Errorf("outer: %w", NewGenerationFailed("gen-model", nil))
	if !IsErrorType(wrapped, ErrorTypeGeneration) {
		t.Error("expected type detection through wrapping")
	}
}

func TestIsConflictAndNotFound(t *testing.T) {
	conflict := NewVersionConflict("node-1", 4)
	if !IsConflict(conflict) {
		t.Error("expected conflict")
	}
	if IsNotFound(conflict) {
		t.Error("conflict is not a not-found")
	}

	notFound := fmt.Errorf("wrapped: %w", NewNodeNotFound("node-2"))
	if !IsNotFound(notFound) {
		t.Error("expected not-found through wrapping")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewVersionConflict("n", 1)) {
		t.Error("conflicts are retryable with a fresh read")
	}
	if !IsRetryable(NewStoreUnavailable("bolt://host", nil)) {
		t.Error("store unavailability is retryable")
	}
	if IsRetryable(NewContextTimeout("generate", 0)) {
		t.Error("context timeouts must not retry")
	}
	if IsRetryable(NewNodeNotFound("n")) {
		t.Error("not-found is not retryable")
	}
}
