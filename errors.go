package meshgo

import (
	"github.com/hupe1980/meshgo/engine"
)

// The engine's sentinel errors, re-exported so callers working through Mesh
// can match them without importing the engine package.
var (
	ErrNotModifiable     = engine.ErrNotModifiable
	ErrAlreadyModifiable = engine.ErrAlreadyModifiable
	ErrNotOwner          = engine.ErrNotOwner
	ErrInternalPart      = engine.ErrInternalPart
	ErrUnknownEntity     = engine.ErrUnknownEntity
)

// ParallelError is the error every rank raises together when a modification
// cycle fails parallel consistency checks.
type ParallelError = engine.ParallelError
