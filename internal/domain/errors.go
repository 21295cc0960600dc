package domain

import "errors"

// Error taxonomy shared by every stage of the turn pipeline.
var (
	// ErrPermissionDenied means microphone access was refused or no capture
	// device is available. The user may retry.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrServiceUnavailable covers unreachable endpoints, non-2xx responses
	// and timeouts of the transcription or agent services.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrConfigurationMissing means no transcription credential is configured.
	// Only voice features are affected.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrInvalidState is a caller ordering bug (double submit, stop without
	// start, second recording while transcribing).
	ErrInvalidState = errors.New("invalid state")

	// ErrUploadFailed is an attachment transport failure.
	ErrUploadFailed = errors.New("upload failed")
)

// ErrorKind is a stable label for an error, used in metrics and logs.
type ErrorKind string

const (
	KindPermissionDenied     ErrorKind = "permission_denied"
	KindServiceUnavailable   ErrorKind = "service_unavailable"
	KindConfigurationMissing ErrorKind = "configuration_missing"
	KindInvalidState         ErrorKind = "invalid_state"
	KindUploadFailed         ErrorKind = "upload_failed"
	KindUnknown              ErrorKind = "unknown"
)

// Kind classifies err against the taxonomy.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrServiceUnavailable):
		return KindServiceUnavailable
	case errors.Is(err, ErrConfigurationMissing):
		return KindConfigurationMissing
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrUploadFailed):
		return KindUploadFailed
	default:
		return KindUnknown
	}
}
