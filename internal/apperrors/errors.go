package apperrors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeTiming              Code = "TIMING_ERROR"
	CodeCapacity            Code = "CAPACITY_ERROR"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeResourceExhausted   Code = "RESOURCE_EXHAUSTED"
	CodeNotFound            Code = "NOT_FOUND"
	CodeStateConflict       Code = "STATE_CONFLICT"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Reason narrows a Code down to the concrete rule that rejected the request.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonTooEarly            Reason = "TOO_EARLY"
	ReasonTooLate             Reason = "TOO_LATE"
	ReasonClosedDay           Reason = "CLOSED_DAY"
	ReasonOutsideHours        Reason = "OUTSIDE_HOURS"
	ReasonNoTableLargeEnough  Reason = "NO_TABLE_LARGE_ENOUGH"
	ReasonNoAvailability      Reason = "NO_AVAILABILITY"
	ReasonOfferExpired        Reason = "OFFER_EXPIRED"
	ReasonCodeSpaceExhausted  Reason = "CODE_SPACE_EXHAUSTED"
	ReasonStoreUnreachable    Reason = "STORE_UNREACHABLE"
	ReasonTableTaken          Reason = "TABLE_TAKEN"
	ReasonReservationOverlaps Reason = "RESERVATION_OVERLAPS"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeTiming: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "requested time cannot be booked",
		DetailsAllowed: true,
	},
	CodeCapacity: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "no table available",
		DetailsAllowed: true,
	},
	CodeConcurrencyConflict: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      true,
		PublicMessage:  "request lost a race for a shared resource, retry",
		DetailsAllowed: false,
	},
	CodeResourceExhausted: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "service temporarily unavailable",
		DetailsAllowed: false,
	},
	CodeNotFound: {
		HTTPStatus:     http.StatusNotFound,
		PublicMessage:  "resource not found",
		DetailsAllowed: false,
	},
	CodeStateConflict: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
	},
	CodeInternal: {
		HTTPStatus:     http.StatusInternalServerError,
		Retryable:      true,
		PublicMessage:  "internal server error",
		DetailsAllowed: false,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	reason  Reason
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

// Newf builds an error with a reason attached, the common case for rule rejections.
func Newf(code Code, reason Reason, format string, args ...any) *Error {
	return &Error{code: code, reason: reason, message: fmt.Sprintf(format, args...)}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Reason() Reason {
	if e == nil {
		return ReasonNone
	}
	return e.reason
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) Retryable() bool {
	return MetadataFor(e.Code()).Retryable
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) WithReason(reason Reason) *Error {
	if e == nil {
		return nil
	}
	e.reason = reason
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.reason != ReasonNone {
		return fmt.Sprintf("%s/%s: %s", e.code, e.reason, e.message)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf reports the taxonomy code of err; untyped errors are internal.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// HasReason reports whether err carries the given reason anywhere in its chain.
func HasReason(err error, reason Reason) bool {
	typed := As(err)
	return typed != nil && typed.Reason() == reason
}

func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
