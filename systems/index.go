// Package systems provides the spatial index and steering systems for the
// simulation.
package systems

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/murmur/geom"
)

// AgentRef identifies an indexed agent: the live entity plus its slot in the
// tick's read-only snapshot. Index structures hold references, never agent
// data itself.
type AgentRef struct {
	Entity ecs.Entity
	Index  int32
}

// Neighbor holds a nearby agent with precomputed spatial data.
// This avoids recomputing delta and distance in the force evaluators.
type Neighbor struct {
	Ref    AgentRef
	Delta  geom.Vec3 // from query origin to the neighbor
	DistSq float32   // squared distance (avoid sqrt in hot path)
}

// SpatialIndex answers "who is near this point" without a linear scan.
// Correctness is guaranteed only relative to the last Clear+Insert cycle,
// which is why the scheduler rebuilds the index every tick.
type SpatialIndex interface {
	// Clear empties all cells, keeping backing storage where feasible.
	Clear()
	// Insert places a reference into the cell containing pos. Positions
	// outside the world bounds are clamped so every live agent stays
	// discoverable.
	Insert(ref AgentRef, pos geom.Vec3)
	// QueryInto appends every indexed agent within radius of center to dst
	// and returns the updated slice. No duplicates, no omissions relative
	// to the last rebuild. Reuse dst across calls to avoid allocations.
	// exclude is skipped (a zero entity excludes nothing).
	QueryInto(dst []Neighbor, center geom.Vec3, radius float32, exclude ecs.Entity) []Neighbor
	// Len returns the number of inserted references.
	Len() int
}
