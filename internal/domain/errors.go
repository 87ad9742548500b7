package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied     = errors.New("microphone permission denied")
	ErrRecordingUnavailable = errors.New("recording unavailable")
	ErrNoActiveSession      = errors.New("no active recording session")
	ErrTurnInFlight         = errors.New("a turn is already in progress")
	ErrAuthMissing          = errors.New("API key missing in settings")
	ErrTimeout              = errors.New("request timed out")
	ErrCancelled            = errors.New("request cancelled")
	ErrMalformedResponse    = errors.New("malformed response from service")
	ErrEmptyTranscript      = errors.New("no speech was recognized")
)

// ServiceError is a non-2xx answer from one of the AI endpoints.
type ServiceError struct {
	Service string
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed with status %d", e.Service, e.Status)
	}
	return e.Message
}

// FromContext converts a context error into the matching taxonomy error.
// It returns err unchanged when it is not a context error.
func FromContext(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	default:
		return err
	}
}

// NormalizeRole maps legacy role names onto the current ones.
func NormalizeRole(role Role) Role {
	if role == "assistant" {
		return RoleSidekick
	}
	return role
}

// ErrorMessage renders err as the text shown next to the retry affordance.
// Service errors are surfaced verbatim.
func ErrorMessage(err error) string {
	var svcErr *ServiceError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &svcErr):
		return svcErr.Error()
	case errors.Is(err, ErrPermissionDenied):
		return "Microphone access was denied. Allow it and try again."
	case errors.Is(err, ErrRecordingUnavailable):
		return "No microphone is available."
	case errors.Is(err, ErrAuthMissing):
		return "API key missing in settings."
	case errors.Is(err, ErrTimeout):
		return "The request timed out. Try again."
	case errors.Is(err, ErrMalformedResponse):
		return "Got an unexpected response. Try again."
	case errors.Is(err, ErrEmptyTranscript):
		return "Didn't catch that. Try again."
	default:
		return err.Error()
	}
}
