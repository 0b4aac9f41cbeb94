package meshgo

import (
	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/engine"
)

// Option configures a Mesh.
type Option func(*Mesh)

// WithLogger sets the structured logger. Defaults to a disabled logger.
func WithLogger(l *Logger) Option {
	return func(m *Mesh) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the metrics collector. Defaults to no-op.
func WithMetrics(c MetricsCollector) Option {
	return func(m *Mesh) {
		if c != nil {
			m.metrics = c
		}
	}
}

// WithSpatialDimension sets the mesh dimension: 3 (default) makes faces the
// side rank, 2 makes edges the side rank.
func WithSpatialDimension(dim int) Option {
	return func(m *Mesh) {
		m.engineOpts = append(m.engineOpts, engine.WithSpatialDimension(dim))
	}
}

// WithAutoAura enables or disables automatic maintenance of the one-layer
// ghost halo. Enabled by default.
func WithAutoAura(enabled bool) Option {
	return func(m *Mesh) {
		m.engineOpts = append(m.engineOpts, engine.WithAutoAura(enabled))
	}
}

// WithMaxID caps entity ids (for 32-bit id interop use 1<<32 - 1).
func WithMaxID(maxID core.EntityID) Option {
	return func(m *Mesh) {
		m.engineOpts = append(m.engineOpts, engine.WithMaxID(maxID))
	}
}

// WithVerification enables the full consistency verification pass at the end
// of every modification cycle. Expensive; meant for tests and debugging.
func WithVerification(enabled bool) Option {
	return func(m *Mesh) {
		m.engineOpts = append(m.engineOpts, engine.WithVerification(enabled))
	}
}

// WithObserver registers a structural change observer.
func WithObserver(o engine.Observer) Option {
	return func(m *Mesh) {
		m.engineOpts = append(m.engineOpts, engine.WithObserver(o))
	}
}
