package engine

import (
	"math"

	"github.com/pthm-cable/murmur/geom"
	"github.com/pthm-cable/murmur/systems"
	"github.com/pthm-cable/murmur/telemetry"
)

// Step advances the simulation by one tick of dt seconds. Non-positive dt
// falls back to the configured timestep. The four stages run strictly in
// order; only evaluation is parallel, and the worker barrier guarantees
// every force is computed before any agent moves.
func (e *Engine) Step(dt float32) {
	if dt <= 0 {
		dt = e.cfg.Derived.DT32
	}

	e.perf.StartTick()

	e.perf.StartPhase(telemetry.PhaseRebuild)
	e.rebuild()

	e.perf.StartPhase(telemetry.PhaseEvaluate)
	e.evaluate()

	e.perf.StartPhase(telemetry.PhaseIntegrate)
	e.integrate(dt)

	e.perf.StartPhase(telemetry.PhaseBounds)
	e.enforceBounds(dt)

	e.perf.StartPhase(telemetry.PhaseTelemetry)
	e.tick++
	e.collect()

	e.perf.EndTick()
}

// rebuild snapshots every live agent and reinserts it into the spatial
// index. The snapshot order is the ECS iteration order, which is stable
// across a tick; the index slot records the snapshot position so workers
// can resolve neighbors without touching component storage.
func (e *Engine) rebuild() {
	p := e.parallel
	p.snapshots = p.snapshots[:0]

	query := e.filter.Query()
	for query.Next() {
		pos, vel, steering, agent, wander := query.Get()
		p.snapshots = append(p.snapshots, systems.AgentState{
			Entity: query.Entity(),
			ID:     agent.ID,
			Pos:    pos.Vec(),
			Vel:    vel.Vec(),
			Limits: *steering,
			Wander: *wander,
		})
	}

	e.index.Clear()
	for i := range p.snapshots {
		snap := &p.snapshots[i]
		e.index.Insert(systems.AgentRef{Entity: snap.Entity, Index: int32(i)}, snap.Pos)
	}
}

// integrate applies the computed forces with semi-implicit Euler and writes
// the results back to component storage. Single-threaded so write order is
// deterministic.
func (e *Engine) integrate(dt float32) {
	p := e.parallel
	for i := range p.snapshots {
		snap := &p.snapshots[i]

		pos := e.posMap.Get(snap.Entity)
		vel := e.velMap.Get(snap.Entity)
		if pos == nil || vel == nil {
			continue
		}

		mass := snap.Limits.Mass
		if mass < 1e-6 {
			mass = 1
		}
		accel := p.forces[i].Scale(1 / mass)

		newVel := snap.Vel.Add(accel.Scale(dt)).Limit(snap.Limits.MaxSpeed)
		newPos := snap.Pos.Add(newVel.Scale(dt))

		vel.X, vel.Y, vel.Z = newVel.X, newVel.Y, newVel.Z
		pos.X, pos.Y, pos.Z = newPos.X, newPos.Y, newPos.Z

		// Wander target advanced during evaluation; persist it.
		if wander := e.wanderMap.Get(snap.Entity); wander != nil {
			*wander = snap.Wander
		}
	}
}

// enforceBounds applies the configured containment policy to every agent.
func (e *Engine) enforceBounds(dt float32) {
	switch e.cfg.World.BoundsPolicy {
	case "wrap":
		e.boundsWrap()
	case "inward":
		e.boundsInward(dt)
	default:
		e.boundsReflect()
	}
}

// boundsReflect clamps escaped agents onto the wall and mirrors the
// offending velocity component.
func (e *Engine) boundsReflect() {
	min, max := e.bounds.Min, e.bounds.Max
	query := e.filter.Query()
	for query.Next() {
		pos, vel, _, _, _ := query.Get()
		reflectAxis(&pos.X, &vel.X, min.X, max.X)
		reflectAxis(&pos.Y, &vel.Y, min.Y, max.Y)
		reflectAxis(&pos.Z, &vel.Z, min.Z, max.Z)
	}
}

func reflectAxis(p, v *float32, lo, hi float32) {
	if *p < lo {
		*p = lo
		if *v < 0 {
			*v = -*v
		}
	} else if *p > hi {
		*p = hi
		if *v > 0 {
			*v = -*v
		}
	}
}

// boundsWrap teleports escaped agents to the opposite face, toroidally.
func (e *Engine) boundsWrap() {
	min := e.bounds.Min
	size := e.bounds.Size()
	query := e.filter.Query()
	for query.Next() {
		pos, _, _, _, _ := query.Get()
		pos.X = wrapAxis(pos.X, min.X, size.X)
		pos.Y = wrapAxis(pos.Y, min.Y, size.Y)
		pos.Z = wrapAxis(pos.Z, min.Z, size.Z)
	}
}

func wrapAxis(p, lo, size float32) float32 {
	if size <= 0 {
		return lo
	}
	m := float32(math.Mod(float64(p-lo), float64(size)))
	if m < 0 {
		m += size
	}
	return lo + m
}

// boundsInward adds a steering impulse back toward the interior once an
// agent enters the margin band, hard-clamping only if it still escapes.
func (e *Engine) boundsInward(dt float32) {
	min, max := e.bounds.Min, e.bounds.Max
	margin := float32(e.cfg.World.InwardMargin)
	force := float32(e.cfg.World.InwardForce)

	query := e.filter.Query()
	for query.Next() {
		pos, vel, steering, _, _ := query.Get()

		var push geom.Vec3
		push.X = inwardAxis(pos.X, min.X, max.X, margin)
		push.Y = inwardAxis(pos.Y, min.Y, max.Y, margin)
		push.Z = inwardAxis(pos.Z, min.Z, max.Z, margin)

		if !push.IsZero() {
			nv := vel.Vec().Add(push.Scale(force * dt)).Limit(steering.MaxSpeed)
			vel.X, vel.Y, vel.Z = nv.X, nv.Y, nv.Z
		}

		// Last resort: never let an agent leave the world entirely.
		clampAxis(&pos.X, min.X, max.X)
		clampAxis(&pos.Y, min.Y, max.Y)
		clampAxis(&pos.Z, min.Z, max.Z)
	}
}

// inwardAxis returns -1, 0, or a graded push toward the interior depending
// on how deep into the margin band the coordinate sits.
func inwardAxis(p, lo, hi, margin float32) float32 {
	if margin <= 0 {
		return 0
	}
	if p < lo+margin {
		return (lo + margin - p) / margin
	}
	if p > hi-margin {
		return (hi - margin - p) / margin
	}
	return 0
}

func clampAxis(p *float32, lo, hi float32) {
	if *p < lo {
		*p = lo
	} else if *p > hi {
		*p = hi
	}
}

// collect emits window stats when a window boundary is crossed.
func (e *Engine) collect() {
	if !e.collector.WindowDone(e.tick) {
		return
	}

	sample := e.sampleWindow()
	stats := e.collector.EndWindow(e.tick, sample)

	if e.logStats {
		logWindow(stats, e.index)
		e.perf.Stats().LogStats()
	}
	if e.output != nil {
		e.output.WriteTelemetry(stats)
		e.output.WritePerf(e.perf.Stats(), e.tick)
	}
}

// sampleWindow measures the post-integration population. Speeds come from
// live component state; neighbor counts and saturation from the evaluation
// phase of the tick that closed the window.
func (e *Engine) sampleWindow() telemetry.TickSample {
	p := e.parallel
	n := len(p.snapshots)

	speeds := make([]float64, 0, n)
	counts := make([]float64, 0, n)
	saturated := 0
	var headingSum geom.Vec3

	for i := range p.snapshots {
		snap := &p.snapshots[i]
		vel := e.velMap.Get(snap.Entity)
		if vel == nil {
			continue
		}
		v := vel.Vec()
		speeds = append(speeds, float64(v.Len()))
		counts = append(counts, float64(p.neighborCounts[i]))
		if p.saturated[i] {
			saturated++
		}
		headingSum = headingSum.Add(v.Normalize())
	}

	polarization := 0.0
	if len(speeds) > 0 {
		polarization = float64(headingSum.Len()) / float64(len(speeds))
	}

	return telemetry.TickSample{
		AgentCount:     len(speeds),
		Speeds:         speeds,
		NeighborCounts: counts,
		Saturated:      saturated,
		Polarization:   polarization,
	}
}
