package ai

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded indicates the AI provider kept returning a quota/limit error (HTTP 429 or similar)
// until the retry ceiling was reached.
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrMissingCredential is returned before any network call when no API key is configured.
var ErrMissingCredential = errors.New("ai api key not set")

// ErrEmptyResponse means the provider answered but with no usable text.
var ErrEmptyResponse = errors.New("ai returned no usable text")

// Kind classifies provider failures so callers can dispatch without matching messages.
type Kind int

const (
	KindOther Kind = iota
	KindAuth
	KindRateLimited
	KindNetwork
	KindBlocked
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindNetwork:
		return "network"
	case KindBlocked:
		return "blocked"
	default:
		return "other"
	}
}

// Error is the tagged error produced by model client adapters.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("ai %s (HTTP %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("ai %s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a tagged error.
func NewError(kind Kind, status int, message string, err error) *Error {
	return &Error{Kind: kind, StatusCode: status, Message: message, Err: err}
}

// KindOf returns the kind of a tagged error, KindAuth for a missing credential and KindOther otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return KindOther
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrMissingCredential) {
		return KindAuth
	}
	return KindOther
}

// KindForStatus maps an HTTP status from the provider to a kind.
func KindForStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429 || status == 503:
		return KindRateLimited
	default:
		return KindOther
	}
}
