// Package components defines ECS components for the simulation.
package components

import "github.com/pthm-cable/murmur/geom"

// Position represents an entity's world position.
type Position struct {
	X, Y, Z float32
}

// Vec returns the position as a vector.
func (p Position) Vec() geom.Vec3 {
	return geom.Vec3{X: p.X, Y: p.Y, Z: p.Z}
}

// FromVec creates a Position from a vector.
func FromVec(v geom.Vec3) Position {
	return Position{X: v.X, Y: v.Y, Z: v.Z}
}

// Velocity represents an entity's velocity.
type Velocity struct {
	X, Y, Z float32
}

// Vec returns the velocity as a vector.
func (v Velocity) Vec() geom.Vec3 {
	return geom.Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

// Steering holds per-agent movement limits.
type Steering struct {
	MaxSpeed         float32 // maximum velocity magnitude
	MaxForce         float32 // maximum combined steering force magnitude
	PerceptionRadius float32 // neighbor sensing distance
	Mass             float32 // force-to-acceleration scaling
}

// Agent carries the stable identity of a boid.
// ID is unique and never reused for the simulation's lifetime.
type Agent struct {
	ID uint64
}

// Wander holds the persistent wander-target state.
// This is the only behavior state that survives across ticks; everything
// else is a pure function of the tick's snapshot.
type Wander struct {
	Target geom.Vec3
	Seeded bool
}
