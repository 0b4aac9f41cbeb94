package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotModifiable is returned when a mutating call arrives outside a
	// modification cycle.
	ErrNotModifiable = errors.New("mesh is not in a modification cycle")

	// ErrAlreadyModifiable is returned by ModificationBegin when a cycle is
	// already open; nested cycles are not supported.
	ErrAlreadyModifiable = errors.New("modification cycle already open")

	// ErrNotOwner is returned when a process tries to mutate an entity it
	// does not own.
	ErrNotOwner = errors.New("entity is not locally owned")

	// ErrInternalPart is returned when an application adds or removes a
	// mesh-internal part (universal, owned, shared, aura).
	ErrInternalPart = errors.New("internal parts cannot be changed directly")

	// ErrUnknownEntity is returned when an operation references an entity
	// that does not exist on this process.
	ErrUnknownEntity = errors.New("entity not found on this process")
)

// ErrInvalidKey indicates an out-of-range rank or id in a declaration.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidKey struct {
	Reason string
	cause  error
}

func (e *ErrInvalidKey) Error() string {
	return fmt.Sprintf("invalid entity key: %s", e.Reason)
}

func (e *ErrInvalidKey) Unwrap() error { return e.cause }

// ParallelError aggregates parallel-consistency failures detected during
// ModificationEnd. Every rank of the machine raises a ParallelError, or none
// does: the error flag is all-reduced before anything is raised, so control
// flow never diverges across ranks. Ranks without local failures carry only
// the peer flag.
type ParallelError struct {
	Rank       int
	Local      []string
	PeerFailed bool
}

func (e *ParallelError) Error() string {
	if len(e.Local) == 0 {
		return fmt.Sprintf("rank %d: modification failed on a peer process", e.Rank)
	}
	return fmt.Sprintf("rank %d: modification failed: %s", e.Rank, strings.Join(e.Local, "; "))
}
