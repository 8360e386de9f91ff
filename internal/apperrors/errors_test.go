package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatsCodeAndReason(t *testing.T) {
	err := Newf(CodeTiming, ReasonTooEarly, "reservation must start at least %d hour ahead", 1)
	assert.Equal(t, "TIMING_ERROR/TOO_EARLY: reservation must start at least 1 hour ahead", err.Error())

	plain := New(CodeNotFound, "reservation not found")
	assert.Equal(t, "NOT_FOUND: reservation not found", plain.Error())
}

func TestAsFindsWrappedError(t *testing.T) {
	inner := Newf(CodeCapacity, ReasonNoAvailability, "no table")
	wrapped := fmt.Errorf("create reservation: %w", inner)

	assert.Equal(t, inner, As(wrapped))
	assert.True(t, HasReason(wrapped, ReasonNoAvailability))
	assert.True(t, IsCode(wrapped, CodeCapacity))
	assert.Equal(t, CodeCapacity, CodeOf(wrapped))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Nil(t, As(nil))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(CodeResourceExhausted, cause, "store unreachable").WithReason(ReasonStoreUnreachable)

	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable())
}

func TestMetadataDefaultsToInternal(t *testing.T) {
	meta := MetadataFor(Code("SOMETHING_ELSE"))
	assert.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)

	assert.True(t, MetadataFor(CodeConcurrencyConflict).Retryable)
	assert.False(t, MetadataFor(CodeValidation).Retryable)
}
