package models

import (
	"context"
	"errors"
)

// Contract violations.
var (
	ErrValidation             = errors.New("validation failed")
	ErrIllegalStateTransition = errors.New("illegal state transition")
	ErrNoPendingTurn          = errors.New("no turn is awaiting a decision")
	ErrUnknownChoice          = errors.New("choice is not on offer")
	ErrBusy                   = errors.New("a choice is already being processed")
	ErrStaleResponse          = errors.New("response belongs to a previous turn or session")
	ErrOutOfOrder             = errors.New("turn record out of order")
	ErrMissingCredentials     = errors.New("missing or invalid API credentials")
)

// Generation service output that fails its contract.
var (
	ErrMalformedResponse        = errors.New("malformed response")
	ErrInvalidPointDistribution = errors.New("invalid point distribution")
)

// External service failures.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrRateLimited    = errors.New("rate limited")
	ErrNetwork        = errors.New("network failure")
	ErrGeneration     = errors.New("generation failed")
)

// Retryable reports whether a failed generation call may be attempted again.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrAuthentication), errors.Is(err, ErrQuotaExceeded), errors.Is(err, ErrMissingCredentials):
		return false
	case errors.Is(err, ErrValidation), errors.Is(err, ErrIllegalStateTransition), errors.Is(err, ErrStaleResponse):
		return false
	}
	return true
}

// UserMessage turns an error into text suitable for the player.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCredentials):
		return "No valid API key is configured. Check your settings."
	case errors.Is(err, ErrAuthentication):
		return "The story service rejected the API key. Check your settings."
	case errors.Is(err, ErrQuotaExceeded):
		return "The story service quota is exhausted. Check your billing or try later."
	case errors.Is(err, ErrRateLimited):
		return "The story service is busy. Press r to try again in a moment."
	case errors.Is(err, ErrNetwork):
		return "Could not reach the story service. Press r to try again."
	case errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrInvalidPointDistribution):
		return "The story service returned an unusable scene. Press r to try again."
	case errors.Is(err, ErrBusy):
		return "Still working on your last decision."
	case errors.Is(err, ErrValidation):
		return "Some case details are missing."
	}
	return "Something went wrong: " + err.Error()
}
