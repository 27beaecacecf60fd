package domain

import (
	"errors"
	"fmt"
)

var (
	ErrLevelNotFound        = errors.New("cefr level not found")
	ErrProgramNotFound      = errors.New("program not found")
	ErrSessionNotFound      = errors.New("session not found")
	ErrAudioNotFound        = errors.New("audio not found")
	ErrMissingAPIKey        = errors.New("missing api key")
	ErrMissingVariable      = errors.New("missing prompt variable")
	ErrNoAudio              = errors.New("no audio recorded")
	ErrAudioTooLarge        = errors.New("recorded audio is too large")
	ErrTurnInProgress       = errors.New("a turn is already in progress")
	ErrEmptyConversation    = errors.New("no conversation to review yet")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrProgramLevelMismatch = errors.New("program does not belong to the selected level")
	ErrNoProgramSelected    = errors.New("no conversation program available for this level")
)

// ServiceKind classifies a failure of an external service call.
type ServiceKind string

const (
	ServiceKindNetwork         ServiceKind = "network"
	ServiceKindAuth            ServiceKind = "auth"
	ServiceKindInvalidResponse ServiceKind = "invalid_response"
)

// ServiceError wraps a failed call to one of the hosted services.
type ServiceError struct {
	Service string
	Kind    ServiceKind
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Service, e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError builds a ServiceError. A nil err yields nil.
func NewServiceError(service string, kind ServiceKind, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Service: service, Kind: kind, Err: err}
}

// ServiceErrorKind reports the kind of a wrapped ServiceError.
func ServiceErrorKind(err error) (ServiceKind, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// KindFromStatus maps an HTTP status code returned by a hosted API to a failure kind.
func KindFromStatus(status int) ServiceKind {
	switch {
	case status == 401 || status == 403:
		return ServiceKindAuth
	case status >= 500 || status == 429 || status == 408:
		return ServiceKindNetwork
	default:
		return ServiceKindInvalidResponse
	}
}
