package api

import (
	"errors"

	"github.com/Domenick1991/restobooking/internal/apperrors"
	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Code      string `json:"code"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// writeError maps err onto its HTTP status and the public error envelope.
// Internal causes are logged, never returned to the caller.
func writeError(c *gin.Context, log *logger.Logger, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := apperrors.As(err)
	if typed == nil {
		typed = apperrors.Wrap(apperrors.CodeInternal, err, "unexpected error")
	}
	meta := apperrors.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	switch typed.Code() {
	case apperrors.CodeValidation,
		apperrors.CodeTiming,
		apperrors.CodeCapacity,
		apperrors.CodeNotFound,
		apperrors.CodeStateConflict:
		if m := typed.Message(); m != "" {
			msg = m
		}
	}

	body := errorBody{
		Code:      string(typed.Code()),
		Reason:    string(typed.Reason()),
		Message:   msg,
		Retryable: meta.Retryable,
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	if log != nil {
		ctx := log.WithFields(c.Request.Context(), map[string]any{
			"error_code":   body.Code,
			"error_reason": body.Reason,
			"status":       meta.HTTPStatus,
		})
		if meta.HTTPStatus >= 500 {
			log.Error(ctx, "request.error", err)
		} else {
			log.Info(ctx, "request.rejected: "+err.Error())
		}
	}

	c.AbortWithStatusJSON(meta.HTTPStatus, errorEnvelope{Error: body})
}

func badRequest(message string, err error) error {
	if err == nil {
		return apperrors.New(apperrors.CodeValidation, message)
	}
	return apperrors.Wrap(apperrors.CodeValidation, err, message)
}
