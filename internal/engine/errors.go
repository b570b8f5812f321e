package engine

import (
	"errors"
	"fmt"

	"symptomcheck/internal/flight"
	"symptomcheck/internal/ledger"
	"symptomcheck/internal/model"
)

// Kind classifies engine failures
type Kind int

const (
	KindStartupFailure Kind = iota + 1
	KindGenerationFailure
	KindCancelled
	KindDuplicateRequest
	KindInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case KindStartupFailure:
		return "startup_failure"
	case KindGenerationFailure:
		return "generation_failure"
	case KindCancelled:
		return "cancelled"
	case KindDuplicateRequest:
		return "duplicate_request"
	case KindInvariantViolation:
		return "invariant_violation"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Message is the patient-facing text for failures that land in the error state
func (k Kind) Message() string {
	switch k {
	case KindStartupFailure:
		return "We could not start your assessment. Please try again."
	case KindGenerationFailure:
		return "We could not load the next question. Please try again."
	}
	return "Something went wrong."
}

// Error is returned by engine operations
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Caller errors
var (
	ErrInvalidState = errors.New("operation not allowed in the current state")
	ErrCannotGoBack = errors.New("cannot go back from the first question")
	ErrClosed       = errors.New("engine closed")

	// ErrInvalidAnswer is returned when an answer does not fit the current question
	ErrInvalidAnswer = model.ErrInvalidAnswer
)

// KindOf returns the kind of an engine error, or 0 when err is not one
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, flight.ErrCancelled):
		return KindCancelled
	case errors.Is(err, flight.ErrDuplicateRequest):
		return KindDuplicateRequest
	case errors.Is(err, ledger.ErrInvariantViolation):
		return KindInvariantViolation
	}
	return 0
}

// IsCancelled reports whether err is a dropped stale result
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}

// IsDuplicate reports whether err rejected a request already in progress
func IsDuplicate(err error) bool {
	return KindOf(err) == KindDuplicateRequest
}

func cancelled(op string) error {
	return &Error{Kind: KindCancelled, Op: op, Err: flight.ErrCancelled}
}

func duplicate(op string) error {
	return &Error{Kind: KindDuplicateRequest, Op: op, Err: flight.ErrDuplicateRequest}
}
