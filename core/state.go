package core

// EntityState tracks what happened to an entity during the current
// modification cycle. States reset to Unchanged when the cycle ends.
type EntityState uint8

const (
	// Unchanged means the entity was not touched this cycle.
	Unchanged EntityState = iota
	// Created means the entity came into existence this cycle.
	Created
	// Modified means the entity, or something in its downward closure,
	// changed this cycle.
	Modified
	// Deleted means the entity was destroyed this cycle; its slot is
	// reclaimed when the cycle ends.
	Deleted
)

func (s EntityState) String() string {
	switch s {
	case Unchanged:
		return "Unchanged"
	case Created:
		return "Created"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	}
	return "Unknown"
}
