// Package errs defines the sentinel errors shared by lvbits packages.
//
// Callers match errors with errors.Is. Errors produced by lvbits wrap one of the
// sentinels below with additional context (expected vs. actual sizes, the failing
// component), so the message is actionable while the category stays stable.
//
// The taxonomy has two classes:
//
//   - Validation errors describe malformed client input. They are detected before
//     any codec resource is consumed and are recoverable by resubmitting corrected
//     input. See IsValidation.
//   - Server-side errors describe collaborator or resource failures (codec load,
//     codec encode/decode, staging IO). They are never retried automatically.
package errs

import "errors"

// Container validation errors.
var (
	// ErrTooSmall is returned when a container is shorter than its fixed layout requires.
	ErrTooSmall = errors.New("container too small")
	// ErrInvalidDimension is returned when an image height or width is zero or out of range.
	ErrInvalidDimension = errors.New("invalid image dimension")
	// ErrInvalidShapeMetadata is returned when the shape block is not exactly 6 bytes.
	ErrInvalidShapeMetadata = errors.New("invalid shape metadata")
	// ErrEmptyPayload is returned when a container would carry no payload bytes.
	ErrEmptyPayload = errors.New("empty payload")
	// ErrInvalidQuality is returned when the quality parameter is NaN or infinite.
	ErrInvalidQuality = errors.New("invalid quality parameter")
)

// Request validation errors.
var (
	// ErrInvalidImage is returned when uploaded bytes cannot be decoded as an image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrInvalidRequest is returned when a request is missing a required part.
	ErrInvalidRequest = errors.New("invalid request")
)

// Server-side errors.
var (
	// ErrCodecUnavailable is returned when the external codec cannot be loaded.
	ErrCodecUnavailable = errors.New("codec unavailable")
	// ErrCodecEncode is returned when the codec fails to encode an image.
	ErrCodecEncode = errors.New("codec encode failure")
	// ErrCodecDecode is returned when the codec fails to decode a payload.
	ErrCodecDecode = errors.New("codec decode failure")
	// ErrStaging is returned when a transient staging artifact cannot be created, written or read.
	ErrStaging = errors.New("staging failure")
)

// Codec collaborator errors.
var (
	// ErrModelNotFound is returned when no loader is registered for a model name.
	ErrModelNotFound = errors.New("codec model not found")
	// ErrCorruptPayload is returned by codec implementations when a payload fails their own integrity checks.
	ErrCorruptPayload = errors.New("corrupt codec payload")
	// ErrModelNotPrepared is returned when a model is invoked before it has been prepared for compression.
	ErrModelNotPrepared = errors.New("codec model not prepared")
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

var validationErrors = []error{
	ErrTooSmall,
	ErrInvalidDimension,
	ErrInvalidShapeMetadata,
	ErrEmptyPayload,
	ErrInvalidQuality,
	ErrInvalidImage,
	ErrInvalidRequest,
}

// IsValidation reports whether err belongs to the client-input validation class.
//
// Errors raised inside the codec stay server-side even when they wrap a
// validation sentinel.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCodecEncode) || errors.Is(err, ErrCodecDecode) || errors.Is(err, ErrCodecUnavailable) {
		return false
	}

	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
