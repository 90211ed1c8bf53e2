package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolved marks a snapshot whose required relation was not loaded.
	ErrUnresolved = errors.New("unresolved relation")
	// ErrInvalidTransition marks a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ResolutionError reports a relation an event needs that is missing or
// inconsistent with its foreign key. It matches ErrUnresolved.
type ResolutionError struct {
	Event    string
	Relation string
	Reason   string
}

func (e *ResolutionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: relation %q is not loaded", e.Event, e.Relation)
	}
	return fmt.Sprintf("%s: relation %q %s", e.Event, e.Relation, e.Reason)
}

func (e *ResolutionError) Is(target error) bool { return target == ErrUnresolved }

// Missing builds a ResolutionError for an unloaded relation.
func Missing(event, relation string) error {
	return &ResolutionError{Event: event, Relation: relation}
}

// Mismatch builds a ResolutionError for a relation whose id disagrees with its foreign key.
func Mismatch(event, relation string, fk, got int64) error {
	return &ResolutionError{
		Event:    event,
		Relation: relation,
		Reason:   fmt.Sprintf("has id %d, foreign key is %d", got, fk),
	}
}

// TransitionError reports a rejected status change. It matches ErrInvalidTransition.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move from %q to %q", e.Entity, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
