package playback

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Errors
var (
	ErrPoolExhausted      = errors.New("no idle decoder in pool")
	ErrDecoderLoad        = errors.New("decoder failed to load source")
	ErrDecoderPlayback    = errors.New("decoder failed during playback")
	ErrDuplicateMessageID = errors.New("directive with this message id is already staged")
	ErrUnknownDirective   = errors.New("unknown directive")
	ErrNoDecoders         = errors.New("at least one decoder is required")
	ErrClosed             = errors.New("controller is closed")
)

// ErrorType classifies a media error in PlaybackFailed payloads.
type ErrorType string

const (
	ErrorTypeUnknown             ErrorType = "MEDIA_ERROR_UNKNOWN"
	ErrorTypeInvalidRequest      ErrorType = "MEDIA_ERROR_INVALID_REQUEST"
	ErrorTypeServiceUnavailable  ErrorType = "MEDIA_ERROR_SERVICE_UNAVAILABLE"
	ErrorTypeInternalServerError ErrorType = "MEDIA_ERROR_INTERNAL_SERVER_ERROR"
	ErrorTypeInternalDeviceError ErrorType = "MEDIA_ERROR_INTERNAL_DEVICE_ERROR"
)

// PlaybackError is a decoder failure attached to an entry.
// Kind is ErrDecoderLoad or ErrDecoderPlayback.
type PlaybackError struct {
	Kind    error
	Type    ErrorType
	Message string
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Type, e.Message)
}

func (e *PlaybackError) Unwrap() error {
	return e.Kind
}
