package engine

import (
	"errors"
	"fmt"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
)

var (
	ErrCardUnavailable     = errors.New("card already owned")
	ErrCardLimitReached    = errors.New("per-participant card limit reached")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownCard         = errors.New("unknown card number")
	ErrUnknownParticipant  = errors.New("unknown participant")
	ErrRoundNotFound       = errors.New("round not found")
	ErrRoundNotOpen        = errors.New("round is not open for purchases")
)

// ValidationError rejects a request before any state is mutated.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ConflictError means the round changed state between read and mutate.
// The caller may retry against the new state.
type ConflictError struct {
	RoundID int64
	Status  models.RoundStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("round %d is %s", e.RoundID, e.Status)
}

func (e *ConflictError) Unwrap() error {
	return ErrRoundNotOpen
}

func invalid(op string, err error) error {
	return &ValidationError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// ErrorCode maps an engine error to a stable code for clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCardUnavailable):
		return "card_unavailable"
	case errors.Is(err, ErrCardLimitReached):
		return "card_limit_reached"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrUnknownCard):
		return "unknown_card"
	case errors.Is(err, ErrUnknownParticipant):
		return "unknown_participant"
	case errors.Is(err, ErrRoundNotFound):
		return "round_not_found"
	case errors.Is(err, ErrRoundNotOpen):
		return "round_not_open"
	default:
		return "internal"
	}
}
