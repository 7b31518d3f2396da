package systems

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/murmur/components"
	"github.com/pthm-cable/murmur/geom"
)

// BehaviorKind tags a steering rule. Behaviors are data plus a stateless
// evaluator selected by kind, not subclasses, so dispatch stays cheap across
// thousands of calls per tick.
type BehaviorKind uint8

const (
	BehaviorSeparation BehaviorKind = iota
	BehaviorAlignment
	BehaviorCohesion
	BehaviorSeek
	BehaviorFlee
	BehaviorWander
	BehaviorObstacle

	// BehaviorCount is the number of behavior kinds.
	BehaviorCount
)

var behaviorNames = [BehaviorCount]string{
	"separation", "alignment", "cohesion", "seek", "flee", "wander", "obstacle",
}

// String returns the behavior's config/wire name.
func (k BehaviorKind) String() string {
	if k < BehaviorCount {
		return behaviorNames[k]
	}
	return "unknown"
}

// ParseBehaviorKind maps a config/wire name back to a kind.
func ParseBehaviorKind(s string) (BehaviorKind, error) {
	for k, name := range behaviorNames {
		if name == s {
			return BehaviorKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown behavior kind %q", s)
}

// FalloffFunc maps a neighbor distance to a repulsion weight.
// The default is 1/distance.
type FalloffFunc func(dist, radius float32) float32

// EasingFunc shapes arrival deceleration; t is distance/arrivalRadius in
// [0,1] and the result scales desired speed. The default is smoothstep.
type EasingFunc func(t float32) float32

// ObstacleHit describes the nearest obstacle along a probe ray.
type ObstacleHit struct {
	Point  geom.Vec3
	Normal geom.Vec3
	Dist   float32
}

// ObstacleFunc is the injected obstacle probe, typically backed by an
// external physics/raycast system. The core has no dependency on any
// particular engine; a nil func disables obstacle avoidance.
type ObstacleFunc func(origin, dir geom.Vec3, maxDist float32) (ObstacleHit, bool)

// Behavior is a descriptor: immutable during a tick, mutable between ticks.
type Behavior struct {
	Kind    BehaviorKind
	Weight  float32
	Enabled bool

	// Radius is the neighbor radius for separation/alignment/cohesion, the
	// influence radius for flee, and the probe length for obstacle.
	Radius float32

	// Arrival damping (cohesion, seek).
	ArrivalRadius float32
	Easing        EasingFunc

	// Separation falloff.
	Falloff FalloffFunc

	// Alignment: neighbors slower than this are ignored as near-stationary.
	MinNeighborSpeed float32

	// Seek/flee target point.
	Target geom.Vec3

	// Flee: inside PanicRadius the force is multiplied by PanicBoost.
	PanicRadius float32
	PanicBoost  float32

	// Wander geometry: the remembered target is jittered by WanderJitter
	// each tick and re-projected onto a circle of WanderRadius centered
	// WanderDistance ahead of the agent's heading.
	WanderDistance float32
	WanderRadius   float32
	WanderJitter   float32

	// Alignment/cohesion: weight contributions by inverse distance.
	InverseDistance bool
}

// AgentState is one agent's slice of the tick's read-only snapshot.
// Evaluators may mutate only the Wander slot, and only for the agent they
// are evaluating; everything else is read-only during a tick.
type AgentState struct {
	Entity ecs.Entity
	ID     uint64
	Pos    geom.Vec3
	Vel    geom.Vec3
	Limits components.Steering
	Wander components.Wander
}

// Pipeline combines weighted behaviors into one clamped steering force.
type Pipeline struct {
	Behaviors [BehaviorCount]Behavior
	Obstacles ObstacleFunc
	Seed      uint64
}

// NewPipeline returns a pipeline with all behaviors disabled.
func NewPipeline(seed uint64) *Pipeline {
	var p Pipeline
	for k := BehaviorKind(0); k < BehaviorCount; k++ {
		p.Behaviors[k].Kind = k
	}
	p.Seed = seed
	return &p
}

// Set replaces one behavior descriptor. Call only between ticks.
func (p *Pipeline) Set(b Behavior) {
	if b.Kind >= BehaviorCount {
		return
	}
	p.Behaviors[b.Kind] = b
}

// Force evaluates the enabled behaviors for one agent and returns the
// combined force plus whether the final clamp engaged. Disabled behaviors
// are skipped entirely, not merely zero-weighted. The clamp applies to the
// weighted sum, so individual weighted contributions may locally exceed
// MaxForce before it.
func (p *Pipeline) Force(self *AgentState, neighbors []Neighbor, all []AgentState, tick uint64) (geom.Vec3, bool) {
	var sum geom.Vec3
	for k := BehaviorKind(0); k < BehaviorCount; k++ {
		b := &p.Behaviors[k]
		if !b.Enabled || b.Weight == 0 {
			continue
		}
		var f geom.Vec3
		switch k {
		case BehaviorSeparation:
			f = Separation(b, self, neighbors)
		case BehaviorAlignment:
			f = Alignment(b, self, neighbors, all)
		case BehaviorCohesion:
			f = Cohesion(b, self, neighbors, all)
		case BehaviorSeek:
			f = Seek(b, self, b.Target)
		case BehaviorFlee:
			f = Flee(b, self, b.Target)
		case BehaviorWander:
			f = WanderStep(b, self, p.Seed, tick)
		case BehaviorObstacle:
			f = AvoidObstacle(b, self, p.Obstacles)
		}
		sum = sum.Add(f.Scale(b.Weight))
	}
	maxForce := self.Limits.MaxForce
	saturated := sum.LenSq() > maxForce*maxForce
	return sum.Limit(maxForce), saturated
}

// steerToward turns a desired velocity into a steering force:
// desired minus current velocity, clamped to the agent's force budget.
func steerToward(self *AgentState, desired geom.Vec3) geom.Vec3 {
	return desired.Sub(self.Vel).Limit(self.Limits.MaxForce)
}

// Separation pushes away from neighbors inside b.Radius, each contribution
// weighted by the falloff curve (1/distance by default). Coincident
// neighbors are skipped rather than dividing by zero.
func Separation(b *Behavior, self *AgentState, neighbors []Neighbor) geom.Vec3 {
	radiusSq := b.Radius * b.Radius
	var accum geom.Vec3
	contributing := 0
	for i := range neighbors {
		n := &neighbors[i]
		if n.DistSq > radiusSq || n.DistSq < geom.Epsilon*geom.Epsilon {
			continue
		}
		dist := n.Delta.Len()
		w := float32(1) / dist
		if b.Falloff != nil {
			w = b.Falloff(dist, b.Radius)
		}
		// Delta points at the neighbor; push the other way.
		accum = accum.Add(n.Delta.Scale(-w / dist))
		contributing++
	}
	if contributing == 0 {
		return geom.Vec3{}
	}
	desired := accum.Scale(1 / float32(contributing)).WithLen(self.Limits.MaxSpeed)
	if desired.IsZero() {
		return geom.Vec3{}
	}
	return steerToward(self, desired)
}

// Alignment steers toward the average heading of neighbors inside b.Radius,
// optionally inverse-distance weighted and ignoring near-stationary
// neighbors below MinNeighborSpeed.
func Alignment(b *Behavior, self *AgentState, neighbors []Neighbor, all []AgentState) geom.Vec3 {
	radiusSq := b.Radius * b.Radius
	minSpeedSq := b.MinNeighborSpeed * b.MinNeighborSpeed
	var accum geom.Vec3
	var totalW float32
	for i := range neighbors {
		n := &neighbors[i]
		if n.DistSq > radiusSq {
			continue
		}
		vel := all[n.Ref.Index].Vel
		if vel.LenSq() < minSpeedSq {
			continue
		}
		w := float32(1)
		if b.InverseDistance && n.DistSq > geom.Epsilon*geom.Epsilon {
			w = 1 / n.Delta.Len()
		}
		accum = accum.Add(vel.Scale(w))
		totalW += w
	}
	if totalW == 0 {
		return geom.Vec3{}
	}
	desired := accum.Scale(1 / totalW).WithLen(self.Limits.MaxSpeed)
	if desired.IsZero() {
		return geom.Vec3{}
	}
	return steerToward(self, desired)
}

// Cohesion seeks the neighbors' center of mass, decelerating through the
// arrival easing once inside ArrivalRadius.
func Cohesion(b *Behavior, self *AgentState, neighbors []Neighbor, all []AgentState) geom.Vec3 {
	radiusSq := b.Radius * b.Radius
	var center geom.Vec3
	var totalW float32
	for i := range neighbors {
		n := &neighbors[i]
		if n.DistSq > radiusSq {
			continue
		}
		w := float32(1)
		if b.InverseDistance && n.DistSq > geom.Epsilon*geom.Epsilon {
			w = 1 / n.Delta.Len()
		}
		center = center.Add(all[n.Ref.Index].Pos.Scale(w))
		totalW += w
	}
	if totalW == 0 {
		return geom.Vec3{}
	}
	return Seek(b, self, center.Scale(1/totalW))
}

// Seek steers toward a point at full speed, easing off inside ArrivalRadius
// so the agent settles instead of overshooting.
func Seek(b *Behavior, self *AgentState, target geom.Vec3) geom.Vec3 {
	offset := target.Sub(self.Pos)
	dist := offset.Len()
	if dist < geom.Epsilon {
		return geom.Vec3{}
	}
	speed := self.Limits.MaxSpeed
	if b.ArrivalRadius > 0 && dist < b.ArrivalRadius {
		t := dist / b.ArrivalRadius
		if b.Easing != nil {
			speed *= b.Easing(t)
		} else {
			speed *= smoothstep(t)
		}
	}
	desired := offset.Scale(speed / dist)
	return steerToward(self, desired)
}

// Flee steers away from a point. Intensity ramps down linearly with distance
// over b.Radius (zero force beyond it, full force at the point), and inside
// PanicRadius the desired speed is boosted by PanicBoost.
func Flee(b *Behavior, self *AgentState, threat geom.Vec3) geom.Vec3 {
	away := self.Pos.Sub(threat)
	dist := away.Len()
	if b.Radius > 0 && dist >= b.Radius {
		return geom.Vec3{}
	}
	intensity := float32(1)
	if b.Radius > 0 {
		intensity = clamp01(1 - dist/b.Radius)
	}
	if b.PanicRadius > 0 && dist < b.PanicRadius && b.PanicBoost > 1 {
		intensity *= b.PanicBoost
	}
	dir := away
	if dist < geom.Epsilon {
		// Sitting on the threat: pick a stable direction from the agent id.
		x, y, z := jitterVec(self.ID, self.ID, 0)
		dir = geom.Vec3{X: x, Y: y, Z: z}
		if dir.IsZero() {
			dir = geom.Vec3{X: 1}
		}
	}
	desired := dir.WithLen(self.Limits.MaxSpeed * intensity)
	return steerToward(self, desired)
}

// WanderStep displaces the agent's remembered wander target by bounded
// deterministic jitter, re-projects it onto a circle ahead of the current
// heading, and seeks it. The updated target is written back into the
// agent's state slot.
func WanderStep(b *Behavior, self *AgentState, seed, tick uint64) geom.Vec3 {
	heading := self.Vel.Normalize()
	if heading.IsZero() {
		heading = geom.Vec3{X: 1}
	}
	ahead := self.Pos.Add(heading.Scale(b.WanderDistance))

	if !self.Wander.Seeded {
		self.Wander.Target = ahead.Add(heading.Scale(b.WanderRadius))
		self.Wander.Seeded = true
	}

	jx, jy, jz := jitterVec(seed, self.ID, tick)
	jittered := self.Wander.Target.Add(geom.Vec3{
		X: jx * b.WanderJitter,
		Y: jy * b.WanderJitter,
		Z: jz * b.WanderJitter,
	})

	offset := jittered.Sub(ahead)
	if offset.IsZero() {
		offset = heading
	}
	target := ahead.Add(offset.WithLen(b.WanderRadius))
	self.Wander.Target = target

	desired := target.Sub(self.Pos).WithLen(self.Limits.MaxSpeed)
	if desired.IsZero() {
		return geom.Vec3{}
	}
	return steerToward(self, desired)
}

// AvoidObstacle probes along the agent's heading and steers along the hit
// normal, stronger the closer the obstacle. Zero force without a probe or a
// hit.
func AvoidObstacle(b *Behavior, self *AgentState, probe ObstacleFunc) geom.Vec3 {
	if probe == nil || b.Radius <= 0 {
		return geom.Vec3{}
	}
	heading := self.Vel.Normalize()
	if heading.IsZero() {
		return geom.Vec3{}
	}
	hit, ok := probe(self.Pos, heading, b.Radius)
	if !ok {
		return geom.Vec3{}
	}
	normal := hit.Normal.Normalize()
	if normal.IsZero() {
		return geom.Vec3{}
	}
	urgency := clamp01(1 - hit.Dist/b.Radius)
	desired := normal.Scale(self.Limits.MaxSpeed * urgency)
	return steerToward(self, desired)
}
