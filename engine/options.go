package engine

import (
	"github.com/hupe1980/meshgo/core"
)

// Logger is the narrow logging interface the engine needs. The root package
// adapts its slog-based logger to it; the default discards everything.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// noopLogger is the default logger.
type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

// DefaultMaxID is the default entity id ceiling (ids are 64-bit capable, but
// meshes configured for 32-bit interop keep ids below 2^32).
const DefaultMaxID = core.EntityID(1<<63 - 1)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithAutoAura enables or disables automatic maintenance of the one-layer
// ghost halo at every ModificationEnd. Enabled by default.
func WithAutoAura(enabled bool) Option {
	return func(e *Engine) { e.autoAura = enabled }
}

// WithMaxID caps entity ids (for 32-bit id interop use 1<<32 - 1).
func WithMaxID(maxID core.EntityID) Option {
	return func(e *Engine) {
		if maxID > 0 {
			e.maxID = maxID
		}
	}
}

// WithSpatialDimension sets the mesh dimension: 3 (default) makes faces the
// side rank, 2 makes edges the side rank.
func WithSpatialDimension(dim int) Option {
	return func(e *Engine) {
		if dim == 2 {
			e.sideRank = core.EdgeRank
		} else {
			e.sideRank = core.FaceRank
		}
	}
}

// WithObserver appends an observer; observers fire in registration order.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithVerification enables the consistency verification pass at the end of
// every modification cycle. Verification failures are defects and panic.
func WithVerification(enabled bool) Option {
	return func(e *Engine) { e.verify = enabled }
}
