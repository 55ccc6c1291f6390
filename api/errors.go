package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/arloliu/lvbits/errs"
)

// API-specific errors.
var (
	// ErrBodyTooLarge is returned when a request body exceeds the configured limit.
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrArtifactNotFound is returned when a download name is not in the artifact store.
	ErrArtifactNotFound = errors.New("artifact not found")
)

// ErrorCode represents an API error code.
type ErrorCode string

// Error codes for API responses.
const (
	CodeInvalidContainer ErrorCode = "invalid_container"
	CodeInvalidQuality   ErrorCode = "invalid_quality"
	CodeInvalidImage     ErrorCode = "invalid_image"
	CodeInvalidRequest   ErrorCode = "invalid_request"
	CodeBodyTooLarge     ErrorCode = "body_too_large"
	CodeNotFound         ErrorCode = "not_found"
	CodeCodecUnavailable ErrorCode = "codec_unavailable"
	CodeCodecFailure     ErrorCode = "codec_failure"
	CodeStagingFailure   ErrorCode = "staging_failure"
	CodeCancelled        ErrorCode = "cancelled"
	CodeTimeout          ErrorCode = "timeout"
	CodeInternalError    ErrorCode = "internal_error"
)

// internalMessage replaces the text of uncategorized errors in responses.
const internalMessage = "internal server error"

// HTTPError represents an error with an associated HTTP status code.
type HTTPError struct {
	StatusCode int
	Code       ErrorCode
	Err        error
}

func (e *HTTPError) Error() string {
	return e.Err.Error()
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Client messages for server-side failures. The wrapped error can carry staging
// paths and codec process output, so it is only logged.
const (
	codecEncodeMessage      = "codec failed to encode the image"
	codecDecodeMessage      = "codec failed to decode the payload"
	codecUnavailableMessage = "codec is unavailable"
	stagingMessage          = "failed to stage codec files"
	cancelledMessage        = "request cancelled"
	timeoutMessage          = "request timed out"
)

// Message returns the text sent to the client. Only validation and not-found
// errors expose their detail.
func (e *HTTPError) Message() string {
	switch e.Code {
	case CodeInternalError:
		return internalMessage
	case CodeCodecFailure:
		if errors.Is(e.Err, errs.ErrCodecDecode) {
			return codecDecodeMessage
		}
		return codecEncodeMessage
	case CodeCodecUnavailable:
		return codecUnavailableMessage
	case CodeStagingFailure:
		return stagingMessage
	case CodeCancelled:
		return cancelledMessage
	case CodeTimeout:
		return timeoutMessage
	default:
		return e.Err.Error()
	}
}

// MapError maps a domain error to an HTTPError.
func MapError(err error) *HTTPError {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return &HTTPError{http.StatusRequestEntityTooLarge, CodeBodyTooLarge, err}

	case errors.Is(err, context.Canceled):
		// 499: nginx convention for "client closed request"
		return &HTTPError{499, CodeCancelled, err}

	case errors.Is(err, context.DeadlineExceeded):
		return &HTTPError{http.StatusGatewayTimeout, CodeTimeout, err}

	case errors.Is(err, errs.ErrCodecUnavailable):
		return &HTTPError{http.StatusServiceUnavailable, CodeCodecUnavailable, err}

	case errors.Is(err, errs.ErrCodecEncode),
		errors.Is(err, errs.ErrCodecDecode):
		return &HTTPError{http.StatusInternalServerError, CodeCodecFailure, err}

	case errors.Is(err, errs.ErrInvalidQuality):
		return &HTTPError{http.StatusBadRequest, CodeInvalidQuality, err}

	case errors.Is(err, errs.ErrInvalidImage):
		return &HTTPError{http.StatusBadRequest, CodeInvalidImage, err}

	case errors.Is(err, errs.ErrInvalidRequest):
		return &HTTPError{http.StatusBadRequest, CodeInvalidRequest, err}

	case errs.IsValidation(err):
		return &HTTPError{http.StatusBadRequest, CodeInvalidContainer, err}

	case errors.Is(err, ErrArtifactNotFound):
		return &HTTPError{http.StatusNotFound, CodeNotFound, err}

	case errors.Is(err, errs.ErrStaging):
		return &HTTPError{http.StatusInternalServerError, CodeStagingFailure, err}

	default:
		return &HTTPError{http.StatusInternalServerError, CodeInternalError, err}
	}
}

// WriteError writes an error response, negotiating the encoding from r.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	httpErr := MapError(err)
	if httpErr == nil {
		return
	}

	if httpErr.StatusCode >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", httpErr.Code, "error", err)
	} else {
		logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "code", httpErr.Code, "error", err)
	}

	writeResponse(w, r, httpErr.StatusCode, ErrorResponse{
		Success: false,
		Error:   httpErr.Message(),
		Code:    string(httpErr.Code),
	})
}
