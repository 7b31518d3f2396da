// Package engine owns the authoritative agent world and drives the
// four-stage update pipeline: rebuild index, evaluate steering, integrate
// motion, enforce bounds.
package engine

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/murmur/components"
	"github.com/pthm-cable/murmur/config"
	"github.com/pthm-cable/murmur/geom"
	"github.com/pthm-cable/murmur/systems"
	"github.com/pthm-cable/murmur/telemetry"
)

// Options configures a new Engine.
type Options struct {
	// Config to use; nil means the global config.Cfg().
	Config *config.Config
	// Seed for spawn placement and wander jitter.
	Seed int64
	// Obstacles is the injected obstacle probe; nil disables obstacle
	// avoidance regardless of behavior configuration.
	Obstacles systems.ObstacleFunc
	// LogStats enables structured window-stats logging via slog.
	LogStats bool
	// Output receives CSV telemetry; nil disables file output.
	Output *telemetry.OutputManager
	// SkipInitialPopulation suppresses spawning cfg.Population.Initial
	// agents at construction.
	SkipInitialPopulation bool
}

// AgentParams describe a spawn request. Zero limits fall back to the
// configured agent defaults.
type AgentParams struct {
	Pos              geom.Vec3
	Vel              geom.Vec3
	MaxSpeed         float32
	MaxForce         float32
	PerceptionRadius float32
	Mass             float32
}

// AgentSnapshot is a read-only copy of one agent's public state.
type AgentSnapshot struct {
	Entity ecs.Entity
	ID     uint64
	Pos    geom.Vec3
	Vel    geom.Vec3
}

type entityMapper = ecs.Map5[
	components.Position,
	components.Velocity,
	components.Steering,
	components.Agent,
	components.Wander,
]

type entityFilter = ecs.Filter5[
	components.Position,
	components.Velocity,
	components.Steering,
	components.Agent,
	components.Wander,
]

// Engine holds the complete simulation state. It is not safe for concurrent
// use: Step, Spawn, Despawn, and ConfigureBehavior must be called from one
// goroutine, and never while a Step is in flight.
type Engine struct {
	world  *ecs.World
	cfg    *config.Config
	rng    *rand.Rand
	bounds geom.AABB

	mapper *entityMapper
	filter *entityFilter

	posMap    *ecs.Map1[components.Position]
	velMap    *ecs.Map1[components.Velocity]
	wanderMap *ecs.Map1[components.Wander]

	index    systems.SpatialIndex
	pipeline *systems.Pipeline
	parallel *parallelState

	collector *telemetry.Collector
	perf      *telemetry.PerfCollector
	output    *telemetry.OutputManager
	logStats  bool

	tick   uint64
	nextID uint64
	alive  int
}

// New creates an engine from the given options and spawns the configured
// initial population.
func New(opts Options) *Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Cfg()
	}

	world := ecs.NewWorld()
	bounds := worldBounds(cfg)

	e := &Engine{
		world:  world,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(opts.Seed)),
		bounds: bounds,
		mapper: ecs.NewMap5[
			components.Position,
			components.Velocity,
			components.Steering,
			components.Agent,
			components.Wander,
		](world),
		filter: ecs.NewFilter5[
			components.Position,
			components.Velocity,
			components.Steering,
			components.Agent,
			components.Wander,
		](world),
		posMap:    ecs.NewMap1[components.Position](world),
		velMap:    ecs.NewMap1[components.Velocity](world),
		wanderMap: ecs.NewMap1[components.Wander](world),
		index:     newIndex(cfg, bounds),
		pipeline:  pipelineFromConfig(cfg, uint64(opts.Seed), opts.Obstacles),
		parallel:  newParallelState(),
		collector: telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Derived.DT32),
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		output:    opts.Output,
		logStats:  opts.LogStats,
		nextID:    1,
	}

	if !opts.SkipInitialPopulation {
		e.spawnInitialPopulation()
	}

	return e
}

// worldBounds converts the derived config corners into a box.
func worldBounds(cfg *config.Config) geom.AABB {
	return geom.NewAABB(
		geom.Vec3{X: cfg.Derived.WorldMin[0], Y: cfg.Derived.WorldMin[1], Z: cfg.Derived.WorldMin[2]},
		geom.Vec3{X: cfg.Derived.WorldMax[0], Y: cfg.Derived.WorldMax[1], Z: cfg.Derived.WorldMax[2]},
	)
}

// newIndex builds the configured spatial index over the world bounds.
func newIndex(cfg *config.Config, bounds geom.AABB) systems.SpatialIndex {
	if cfg.Index.Type == "octree" {
		return systems.NewOctree(bounds, cfg.Index.MaxAgentsPerNode, cfg.Index.MaxDepth)
	}
	return systems.NewHashGrid(bounds, float32(cfg.Index.GridCellSize))
}

// pipelineFromConfig maps the behavior config sections onto descriptors.
func pipelineFromConfig(cfg *config.Config, seed uint64, obstacles systems.ObstacleFunc) *systems.Pipeline {
	p := systems.NewPipeline(seed)
	p.Obstacles = obstacles

	b := &cfg.Behaviors
	p.Set(systems.Behavior{
		Kind:    systems.BehaviorSeparation,
		Weight:  float32(b.Separation.Weight),
		Enabled: b.Separation.Enabled,
		Radius:  float32(b.Separation.Radius),
	})
	p.Set(systems.Behavior{
		Kind:             systems.BehaviorAlignment,
		Weight:           float32(b.Alignment.Weight),
		Enabled:          b.Alignment.Enabled,
		Radius:           float32(b.Alignment.Radius),
		MinNeighborSpeed: float32(b.Alignment.MinNeighborSpeed),
		InverseDistance:  b.Alignment.InverseDistance,
	})
	p.Set(systems.Behavior{
		Kind:            systems.BehaviorCohesion,
		Weight:          float32(b.Cohesion.Weight),
		Enabled:         b.Cohesion.Enabled,
		Radius:          float32(b.Cohesion.Radius),
		ArrivalRadius:   float32(b.Cohesion.ArrivalRadius),
		InverseDistance: b.Cohesion.InverseDistance,
	})
	p.Set(systems.Behavior{
		Kind:          systems.BehaviorSeek,
		Weight:        float32(b.Seek.Weight),
		Enabled:       b.Seek.Enabled,
		Target:        vecFromConfig(b.Seek.Target),
		ArrivalRadius: float32(b.Seek.ArrivalRadius),
	})
	p.Set(systems.Behavior{
		Kind:        systems.BehaviorFlee,
		Weight:      float32(b.Flee.Weight),
		Enabled:     b.Flee.Enabled,
		Target:      vecFromConfig(b.Flee.Target),
		Radius:      float32(b.Flee.Radius),
		PanicRadius: float32(b.Flee.PanicRadius),
		PanicBoost:  float32(b.Flee.PanicBoost),
	})
	p.Set(systems.Behavior{
		Kind:           systems.BehaviorWander,
		Weight:         float32(b.Wander.Weight),
		Enabled:        b.Wander.Enabled,
		WanderDistance: float32(b.Wander.Distance),
		WanderRadius:   float32(b.Wander.Radius),
		WanderJitter:   float32(b.Wander.Jitter),
	})
	p.Set(systems.Behavior{
		Kind:    systems.BehaviorObstacle,
		Weight:  float32(b.Obstacle.Weight),
		Enabled: b.Obstacle.Enabled,
		Radius:  float32(b.Obstacle.Lookahead),
	})

	return p
}

func vecFromConfig(v [3]float64) geom.Vec3 {
	return geom.Vec3{X: float32(v[0]), Y: float32(v[1]), Z: float32(v[2])}
}

// spawnInitialPopulation places the configured number of agents uniformly
// inside the world bounds with random headings.
func (e *Engine) spawnInitialPopulation() {
	size := e.bounds.Size()
	spawnSpeed := float32(e.cfg.Agent.SpawnSpeed)
	for i := 0; i < e.cfg.Population.Initial; i++ {
		pos := geom.Vec3{
			X: e.bounds.Min.X + e.rng.Float32()*size.X,
			Y: e.bounds.Min.Y + e.rng.Float32()*size.Y,
			Z: e.bounds.Min.Z + e.rng.Float32()*size.Z,
		}
		vel := randomUnit(e.rng).Scale(spawnSpeed)
		e.Spawn(AgentParams{Pos: pos, Vel: vel})
	}
}

// randomUnit samples a direction uniformly on the unit sphere.
func randomUnit(rng *rand.Rand) geom.Vec3 {
	z := rng.Float64()*2 - 1
	theta := rng.Float64() * 2 * math.Pi
	r := math.Sqrt(1 - z*z)
	return geom.Vec3{
		X: float32(r * math.Cos(theta)),
		Y: float32(r * math.Sin(theta)),
		Z: float32(z),
	}
}

// Spawn creates a new agent and returns its handle. Call between ticks.
func (e *Engine) Spawn(p AgentParams) ecs.Entity {
	agentCfg := &e.cfg.Agent
	if p.MaxSpeed <= 0 {
		p.MaxSpeed = float32(agentCfg.MaxSpeed)
	}
	if p.MaxForce <= 0 {
		p.MaxForce = float32(agentCfg.MaxForce)
	}
	if p.PerceptionRadius <= 0 {
		p.PerceptionRadius = float32(agentCfg.PerceptionRadius)
	}
	if p.Mass <= 0 {
		p.Mass = float32(agentCfg.Mass)
	}

	id := e.nextID
	e.nextID++

	pos := components.FromVec(e.bounds.Clamp(p.Pos))
	vel := components.Velocity{X: p.Vel.X, Y: p.Vel.Y, Z: p.Vel.Z}
	steering := components.Steering{
		MaxSpeed:         p.MaxSpeed,
		MaxForce:         p.MaxForce,
		PerceptionRadius: p.PerceptionRadius,
		Mass:             p.Mass,
	}
	agent := components.Agent{ID: id}
	wander := components.Wander{}

	entity := e.mapper.NewEntity(&pos, &vel, &steering, &agent, &wander)
	e.alive++
	e.collector.RecordSpawn()

	slog.Debug("spawn", "id", id, "pos", p.Pos)
	return entity
}

// Despawn removes an agent. Returns false for a dead or unknown handle.
// Call between ticks; the index keeps referencing the agent until the next
// rebuild, but dead entities are filtered out of QueryNeighbors results.
func (e *Engine) Despawn(entity ecs.Entity) bool {
	if !e.world.Alive(entity) {
		return false
	}
	e.mapper.Remove(entity)
	e.alive--
	e.collector.RecordDespawn()
	return true
}

// ConfigureBehavior replaces one behavior descriptor between ticks.
// Degenerate values are clamped here so tick-time code never sees them.
func (e *Engine) ConfigureBehavior(b systems.Behavior) {
	if b.Kind >= systems.BehaviorCount {
		slog.Warn("unknown behavior kind ignored", "kind", int(b.Kind))
		return
	}
	if b.Weight < 0 {
		slog.Warn("negative behavior weight clamped to zero", "behavior", b.Kind.String(), "weight", b.Weight)
		b.Weight = 0
	}
	switch b.Kind {
	case systems.BehaviorSeparation, systems.BehaviorAlignment, systems.BehaviorCohesion:
		if b.Radius <= 0 {
			fallback := float32(e.cfg.Agent.PerceptionRadius)
			slog.Warn("non-positive behavior radius replaced", "behavior", b.Kind.String(), "fallback", fallback)
			b.Radius = fallback
		}
	}
	e.pipeline.Set(b)
}

// Behavior returns the current descriptor for one behavior kind.
func (e *Engine) Behavior(kind systems.BehaviorKind) systems.Behavior {
	if kind >= systems.BehaviorCount {
		return systems.Behavior{}
	}
	return e.pipeline.Behaviors[kind]
}

// QueryNeighbors returns every live agent within radius of pos, relative to
// the last rebuild. Exposed for debug and visualization collaborators so
// they need not depend on the index representation.
func (e *Engine) QueryNeighbors(pos geom.Vec3, radius float32) []ecs.Entity {
	neighbors := e.index.QueryInto(nil, pos, radius, ecs.Entity{})
	result := make([]ecs.Entity, 0, len(neighbors))
	for _, n := range neighbors {
		if e.world.Alive(n.Ref.Entity) {
			result = append(result, n.Ref.Entity)
		}
	}
	return result
}

// Agents returns a fresh copy of every live agent's public state.
func (e *Engine) Agents() []AgentSnapshot {
	out := make([]AgentSnapshot, 0, e.alive)
	query := e.filter.Query()
	for query.Next() {
		pos, vel, _, agent, _ := query.Get()
		out = append(out, AgentSnapshot{
			Entity: query.Entity(),
			ID:     agent.ID,
			Pos:    pos.Vec(),
			Vel:    vel.Vec(),
		})
	}
	return out
}

// Tick returns the number of completed ticks.
func (e *Engine) Tick() uint64 {
	return e.tick
}

// Count returns the number of live agents.
func (e *Engine) Count() int {
	return e.alive
}

// Perf returns aggregated pipeline timings for the rolling window.
func (e *Engine) Perf() telemetry.PerfStats {
	return e.perf.Stats()
}

// Close stops the worker pool, waiting for any in-flight chunks, so shared
// buffers can be released safely.
func (e *Engine) Close() {
	e.parallel.stopWorkers()
}
