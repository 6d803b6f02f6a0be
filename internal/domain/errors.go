package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConflict               = errors.New("time slot conflict")
	ErrSlotTaken              = errors.New("slot already taken")
	ErrInvalidState           = errors.New("invalid state transition")
	ErrVoucherLocked          = errors.New("voucher is locked")
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// ConflictError describes the first existing booking overlapping a request.
type ConflictError struct {
	CourtID       int64
	ReservationID int64
	Start         time.Time
	End           time.Time
	// Taken marks a conflict lost at write time against a concurrent writer.
	Taken bool
	// Location is the facility timezone used to print the interval.
	Location *time.Location
}

func (e *ConflictError) Error() string {
	msg := "overlaps existing booking"
	if e.Taken {
		msg = "already taken"
	}
	start, end := e.Start, e.End
	if e.Location != nil {
		start, end = start.In(e.Location), end.In(e.Location)
	}
	return fmt.Sprintf("court %d: %s %s-%s (reservation %d)",
		e.CourtID, msg, start.Format("2006-01-02 15:04"), end.Format("15:04"), e.ReservationID)
}

func (e *ConflictError) Is(target error) bool {
	if target == ErrConflict {
		return true
	}
	return e.Taken && target == ErrSlotTaken
}

// InvalidStateError is returned for a disallowed status change.
type InvalidStateError struct {
	Entity string
	From   string
	To     string
	Reason error
}

func (e *InvalidStateError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("%s: cannot move from %s to %s: %v", e.Entity, e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("%s: cannot move from %s to %s", e.Entity, e.From, e.To)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

func (e *InvalidStateError) Unwrap() error {
	return e.Reason
}

type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFound is a shorthand for building a NotFoundError.
func NotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// Invalid is a shorthand for building a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
