package meshgo

import (
	"time"

	"github.com/hupe1980/meshgo/comm"
	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/engine"
	"github.com/hupe1980/meshgo/part"
)

// Mesh is the top-level handle to one rank's share of a distributed mesh. It
// owns the part registry and the topology engine and layers logging and
// metrics over the engine's operations.
//
// A Mesh is not safe for concurrent mutation; all structural changes happen
// on one goroutine per rank. Collective operations (EndModification, Modify)
// must be called symmetrically on every rank of the machine.
type Mesh struct {
	machine  comm.Machine
	registry *part.Registry
	engine   *engine.Engine

	logger  *Logger
	metrics MetricsCollector

	engineOpts []engine.Option
	beganAt    time.Time
}

// New creates a mesh on the given machine. The same parts and fields must be
// declared in the same order on every rank (SPMD).
func New(machine comm.Machine, opts ...Option) *Mesh {
	m := &Mesh{
		machine:  machine,
		registry: part.NewRegistry(),
		logger:   NoopLogger(),
		metrics:  NoopMetricsCollector{},
	}
	for _, opt := range opts {
		opt(m)
	}

	engineOpts := append([]engine.Option{
		engine.WithLogger(engineLogger{l: m.logger.WithRank(machine.Rank())}),
		engine.WithObserver(&metricsObserver{metrics: m.metrics}),
	}, m.engineOpts...)
	m.engine = engine.New(machine, m.registry, engineOpts...)
	return m
}

// Machine returns the parallel machine the mesh runs on.
func (m *Mesh) Machine() comm.Machine { return m.machine }

// Registry returns the part registry. Declare parts before the first
// modification cycle.
func (m *Mesh) Registry() *part.Registry { return m.registry }

// Bulk returns the underlying topology engine, the full mutation and query
// surface. Mutating calls require an open modification cycle.
func (m *Mesh) Bulk() *engine.Engine { return m.engine }

// Rank is this process's rank.
func (m *Mesh) Rank() int { return m.machine.Rank() }

// Size is the number of ranks.
func (m *Mesh) Size() int { return m.machine.Size() }

// IsSynchronized reports whether the mesh is between modification cycles.
func (m *Mesh) IsSynchronized() bool { return !m.engine.InModification() }

// SynchronizedCount is the number of completed modification cycles.
func (m *Mesh) SynchronizedCount() uint64 { return m.engine.SynchronizedCount() }

// BeginModification opens a modification cycle.
func (m *Mesh) BeginModification() error {
	if err := m.engine.ModificationBegin(); err != nil {
		return err
	}
	m.beganAt = time.Now()
	return nil
}

// EndModification closes the cycle and resolves the mesh to a globally
// consistent state. Collective.
func (m *Mesh) EndModification() error {
	err := m.engine.ModificationEnd()
	duration := time.Since(m.beganAt)
	m.metrics.RecordModification(duration, err)
	m.logger.WithRank(m.Rank()).WithCycle(m.engine.SynchronizedCount()).LogModification(duration, err)
	return err
}

// Modify brackets fn in one modification cycle. When fn fails the cycle is
// left open so the caller can inspect or abandon the partial state; the
// returned error is fn's.
func (m *Mesh) Modify(fn func(bulk *engine.Engine) error) error {
	if err := m.BeginModification(); err != nil {
		return err
	}
	if err := fn(m.engine); err != nil {
		return err
	}
	return m.EndModification()
}

// Count returns the number of local entities of a rank, ghosts included.
func (m *Mesh) Count(rank core.Rank) int {
	return m.CountSelected(rank, part.All(m.registry.Universal()))
}

// CountSelected returns the number of local entities of a rank whose bucket
// matches the selector.
func (m *Mesh) CountSelected(rank core.Rank, sel part.Selector) int {
	n := 0
	m.engine.ForEachSelected(rank, sel, func(core.Entity) { n++ })
	return n
}

// CountOwned returns the number of locally owned entities of a rank.
func (m *Mesh) CountOwned(rank core.Rank) int {
	return m.CountSelected(rank, part.All(m.registry.LocallyOwned()))
}

// metricsObserver feeds structural events into the metrics collector.
type metricsObserver struct {
	engine.NoopObserver
	metrics MetricsCollector
}

func (o *metricsObserver) OnEntityAdded(core.EntityKey)   { o.metrics.RecordEntityAdded() }
func (o *metricsObserver) OnEntityDeleted(core.EntityKey) { o.metrics.RecordEntityDeleted() }
