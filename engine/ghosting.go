package engine

import (
	"fmt"
	"slices"

	"github.com/hupe1980/meshgo/comm"
	"github.com/hupe1980/meshgo/core"
	"github.com/hupe1980/meshgo/part"
)

// Ghosting is one named ghost distribution channel. The SHARED channel and
// the aura are built in; application channels come from CreateGhosting.
type Ghosting struct {
	engine *Engine
	id     core.GhostID
	name   string
}

// Name returns the channel name.
func (g *Ghosting) Name() string { return g.name }

// Ordinal returns the channel's ghost id.
func (g *Ghosting) Ordinal() core.GhostID { return g.id }

// GhostRequest asks for one owned entity (and its downward closure) to be
// ghosted onto a process.
type GhostRequest struct {
	Entity core.Entity
	Proc   int
}

// Aura returns the built-in aura ghosting.
func (e *Engine) Aura() *Ghosting { return e.ghostings[core.AuraGhostID] }

// Ghostings returns every ghosting channel, built-ins first.
func (e *Engine) Ghostings() []*Ghosting { return e.ghostings }

// CreateGhosting creates a new application ghosting channel. Collective: all
// ranks must create the same channels in the same order.
func (e *Engine) CreateGhosting(name string) (*Ghosting, error) {
	if err := e.requireModifiable(); err != nil {
		return nil, err
	}
	for _, g := range e.ghostings {
		if g.name == name {
			return nil, &ErrInvalidKey{Reason: fmt.Sprintf("ghosting %q already exists", name)}
		}
	}
	g := &Ghosting{engine: e, id: core.GhostID(len(e.ghostings)), name: name}
	e.ghostings = append(e.ghostings, g)
	return g, nil
}

// ChangeGhosting adds and removes ghost distribution on an application
// channel. Adds name owned entities and destination processes; removes name
// ghost copies received here that are no longer wanted. Collective.
func (e *Engine) ChangeGhosting(g *Ghosting, adds []GhostRequest, removes []core.Entity) error {
	if err := e.requireModifiable(); err != nil {
		return err
	}
	if g.id <= core.AuraGhostID {
		return &ErrInvalidKey{Reason: fmt.Sprintf("ghosting %q is managed internally", g.name)}
	}
	for _, req := range adds {
		if !e.entities.IsLive(req.Entity) {
			return ErrUnknownEntity
		}
		if e.entities.Owner(req.Entity) != e.Rank() {
			return fmt.Errorf("ghost %s: %w", e.Key(req.Entity), ErrNotOwner)
		}
		if req.Proc == e.Rank() || req.Proc < 0 || req.Proc >= e.machine.Size() {
			return &ErrInvalidKey{Reason: fmt.Sprintf("ghost destination %d invalid", req.Proc)}
		}
	}
	for _, ent := range removes {
		if e.entities.IsLive(ent) && e.entities.Owner(ent) == e.Rank() {
			return &ErrInvalidKey{Reason: fmt.Sprintf("remove of locally owned %s; removes name received ghosts", e.Key(ent))}
		}
	}
	return e.changeGhosting(g.id, adds, removes)
}

// DestroyGhosting empties an application channel everywhere. Collective.
func (e *Engine) DestroyGhosting(g *Ghosting) error {
	if err := e.requireModifiable(); err != nil {
		return err
	}
	if g.id <= core.AuraGhostID {
		return &ErrInvalidKey{Reason: fmt.Sprintf("ghosting %q is managed internally", g.name)}
	}
	return e.changeGhosting(g.id, nil, e.receivedGhosts(g.id))
}

// DestroyAllGhosting empties every application channel. Collective.
func (e *Engine) DestroyAllGhosting() error {
	for _, g := range e.ghostings[core.AuraGhostID+1:] {
		if err := e.DestroyGhosting(g); err != nil {
			return err
		}
	}
	return nil
}

// receivedGhosts lists the local entities held here as receives of the given
// channel, highest rank first so destruction can proceed top-down. Walking
// the comm map's sorted keys in reverse gives that order directly and only
// touches communicated entities.
func (e *Engine) receivedGhosts(ghostID core.GhostID) []core.Entity {
	keys := e.commDB.SortedKeys()
	var out []core.Entity
	for i := len(keys) - 1; i >= 0; i-- {
		key := keys[i]
		if !e.commDB.HasGhosting(key, ghostID) {
			continue
		}
		ent, ok := e.entities.Get(key)
		if !ok || e.entities.Owner(ent) == e.Rank() {
			continue
		}
		out = append(out, ent)
	}
	return out
}

// changeGhosting runs the two-round ghost update protocol: a notice round
// where receivers drop unwanted copies and tell the owners, then a payload
// round where owners ship entity closures to their new destinations.
func (e *Engine) changeGhosting(ghostID core.GhostID, adds []GhostRequest, removes []core.Entity) error {
	size := e.machine.Size()

	// Round 1: removal notices. The receiver erases its record and destroys
	// the copy when nothing else pins it; the owner erases its send record.
	notices := make([]*comm.Buffer, size)
	for _, ent := range removes {
		if !e.entities.IsLive(ent) {
			continue
		}
		key := e.entities.Key(ent)
		owner := e.entities.Owner(ent)
		if owner == e.Rank() || !e.commDB.HasGhosting(key, ghostID) {
			continue
		}
		if notices[owner] == nil {
			notices[owner] = comm.NewBuffer()
		}
		notices[owner].PackKey(key)

		// Drop the whole channel for this key, not just the current owner's
		// entry: an ownership change between cycles can leave a record from
		// the previous owner that would otherwise pin the copy forever.
		e.commDB.EraseGhosting(key, ghostID)
		if len(e.commDB.Entries(key)) == 0 {
			if ok, err := e.DestroyEntity(ent); err != nil {
				return err
			} else if !ok {
				// Still pinned by upward connectivity here; keep the copy
				// but it no longer belongs to the channel.
				e.logger.Debugf("ghost %s kept: upward connectivity remains", key)
			}
		}
	}
	for src, buf := range e.machine.SparseExchange(notices) {
		if buf == nil {
			continue
		}
		for buf.Remaining() > 0 {
			key := buf.UnpackKey()
			e.commDB.Erase(key, ghostID, src)
		}
		if err := buf.Err(); err != nil {
			return err
		}
	}

	// Round 2: ship closures. Closure members the destination already holds
	// (shared with it, owned by it, or previously sent on this channel) are
	// skipped; the rest are packed in ascending rank order so relation
	// targets always precede their dependents.
	type sendItem struct {
		ent  core.Entity
		proc int
	}
	var items []sendItem
	seen := make(map[sendItem]bool)
	for _, req := range adds {
		for _, m := range e.downwardClosure(req.Entity) {
			key := e.entities.Key(m)
			it := sendItem{ent: m, proc: req.Proc}
			if seen[it] {
				continue
			}
			seen[it] = true
			if e.entities.Owner(m) != e.Rank() {
				continue // its owner ships it if needed; sharing covers nodes
			}
			if e.commDB.IsGhostedTo(key, ghostID, req.Proc) {
				continue
			}
			if slices.Contains(e.commDB.SharingProcs(key), req.Proc) {
				continue
			}
			items = append(items, it)
		}
	}
	slices.SortFunc(items, func(a, b sendItem) int {
		if a.proc != b.proc {
			return a.proc - b.proc
		}
		ka, kb := e.entities.Key(a.ent), e.entities.Key(b.ent)
		if ka.Rank != kb.Rank {
			return int(ka.Rank) - int(kb.Rank)
		}
		if ka.Less(kb) {
			return -1
		}
		if kb.Less(ka) {
			return 1
		}
		return 0
	})

	payloads := make([]*comm.Buffer, size)
	for _, it := range items {
		if payloads[it.proc] == nil {
			payloads[it.proc] = comm.NewBuffer()
		}
		e.packEntityState(payloads[it.proc], it.ent)
		e.commDB.Insert(e.entities.Key(it.ent), ghostID, it.proc)
	}
	for src, buf := range e.machine.SparseExchange(payloads) {
		if buf == nil {
			continue
		}
		for buf.Remaining() > 0 {
			w, err := unpackEntityState(buf)
			if err != nil {
				return err
			}
			ent, err := e.applyReceivedEntity(buf, w)
			if err != nil {
				return err
			}
			if ghostID == core.AuraGhostID {
				e.applyPartDelta(ent, part.NewOrdinalSet(part.AuraOrdinal), nil)
			}
			e.commDB.Insert(w.key, ghostID, src)
		}
	}
	return nil
}

// downwardClosure returns ent plus everything reachable through downward
// relations, deduplicated.
func (e *Engine) downwardClosure(ent core.Entity) []core.Entity {
	visited := map[core.Entity]bool{ent: true}
	out := []core.Entity{ent}
	for i := 0; i < len(out); i++ {
		cur := out[i]
		rank := e.entities.Key(cur).Rank
		for r := int(rank) - 1; r >= 0; r-- {
			for _, rel := range e.graph.Relations(cur, core.Rank(r)) {
				if !visited[rel.Target] {
					visited[rel.Target] = true
					out = append(out, rel.Target)
				}
			}
		}
	}
	return out
}
