package movement

import (
	"github.com/mroshb/rallypoint/pkg/errors"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusEnRoute   Status = "en_route"
	StatusResolved  Status = "resolved"
	StatusCancelled Status = "cancelled"
	StatusReturning Status = "returning"
	StatusDone      Status = "done"
)

var transitions = map[Status][]Status{
	StatusScheduled: {StatusEnRoute, StatusCancelled},
	StatusEnRoute:   {StatusResolved, StatusCancelled},
	StatusReturning: {StatusDone},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and returns to.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, errors.Newf(errors.ErrCodeInvalidTransition, "cannot move from %s to %s", from, to)
	}
	return to, nil
}

// Terminal statuses never change again.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled || s == StatusDone
}

// Active statuses still have a pending wake-up in the queue.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusEnRoute || s == StatusReturning
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusScheduled, StatusEnRoute, StatusResolved, StatusCancelled, StatusReturning, StatusDone:
		return Status(s), nil
	}
	return "", errors.Newf(errors.ErrCodeValidation, "unknown status %q", s)
}
