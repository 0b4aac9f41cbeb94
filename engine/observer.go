package engine

import "github.com/hupe1980/meshgo/core"

// Observer receives synchronous notifications about structural mesh changes.
// Observers run in registration order on the mutating goroutine; they must
// not mutate the mesh.
type Observer interface {
	// OnEntityAdded fires when an entity comes into existence locally,
	// whether declared by the application or unpacked from a peer.
	OnEntityAdded(key core.EntityKey)

	// OnEntityDeleted fires just before local destruction.
	OnEntityDeleted(key core.EntityKey)

	// OnPartsChanged fires after an entity moved buckets.
	OnPartsChanged(key core.EntityKey)

	// OnModificationEnd fires once per successful cycle, after the mesh
	// returned to the synchronized state.
	OnModificationEnd(cycle uint64)
}

// NoopObserver implements Observer with no-ops; embed it to observe a subset
// of events.
type NoopObserver struct{}

func (NoopObserver) OnEntityAdded(core.EntityKey)   {}
func (NoopObserver) OnEntityDeleted(core.EntityKey) {}
func (NoopObserver) OnPartsChanged(core.EntityKey)  {}
func (NoopObserver) OnModificationEnd(uint64)       {}

func (e *Engine) notifyAdded(key core.EntityKey) {
	for _, o := range e.observers {
		o.OnEntityAdded(key)
	}
}

func (e *Engine) notifyDeleted(key core.EntityKey) {
	for _, o := range e.observers {
		o.OnEntityDeleted(key)
	}
}

func (e *Engine) notifyPartsChanged(key core.EntityKey) {
	for _, o := range e.observers {
		o.OnPartsChanged(key)
	}
}

func (e *Engine) notifyModificationEnd() {
	for _, o := range e.observers {
		o.OnModificationEnd(e.cycle)
	}
}
