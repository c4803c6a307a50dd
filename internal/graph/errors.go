package graph

import (
	"errors"
	"fmt"
)

// ErrIntegrity is matched by every error caused by route data disagreeing
// with stop data.
var ErrIntegrity = errors.New("graph input integrity error")

// MissingStopError reports a route entry whose stop id is absent from the
// stop set.
type MissingStopError struct {
	RouteID  string
	StopID   string
	Position int
}

func (e *MissingStopError) Error() string {
	return fmt.Sprintf("route %q references unknown stop %q at position %d", e.RouteID, e.StopID, e.Position)
}

func (e *MissingStopError) Is(target error) bool { return target == ErrIntegrity }

// DuplicateIDError reports two records of the same kind sharing an id.
type DuplicateIDError struct {
	Kind string // "route" or "stop"
	ID   string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate %s id %q", e.Kind, e.ID)
}

func (e *DuplicateIDError) Is(target error) bool { return target == ErrIntegrity }
