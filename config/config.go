// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	World      WorldConfig      `yaml:"world"`
	Physics    PhysicsConfig    `yaml:"physics"`
	Index      IndexConfig      `yaml:"index"`
	Agent      AgentConfig      `yaml:"agent"`
	Population PopulationConfig `yaml:"population"`
	Behaviors  BehaviorsConfig  `yaml:"behaviors"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds world bounds and the boundary policy.
type WorldConfig struct {
	Min          [3]float64 `yaml:"min"`
	Max          [3]float64 `yaml:"max"`
	BoundsPolicy string     `yaml:"bounds_policy"` // reflect | wrap | inward
	InwardForce  float64    `yaml:"inward_force"`  // acceleration applied by the inward policy
	InwardMargin float64    `yaml:"inward_margin"` // distance from the wall where the inward push starts
}

// PhysicsConfig holds simulation physics parameters.
type PhysicsConfig struct {
	DT float64 `yaml:"dt"`
}

// IndexConfig selects and tunes the spatial index.
type IndexConfig struct {
	Type             string  `yaml:"type"`                // grid | octree
	GridCellSize     float64 `yaml:"grid_cell_size"`      // should be >= the common perception radius
	MaxAgentsPerNode int     `yaml:"max_agents_per_node"` // octree leaf capacity
	MaxDepth         int     `yaml:"max_depth"`           // octree depth budget
}

// AgentConfig holds default movement limits for spawned agents.
type AgentConfig struct {
	MaxSpeed         float64 `yaml:"max_speed"`
	MaxForce         float64 `yaml:"max_force"`
	PerceptionRadius float64 `yaml:"perception_radius"`
	Mass             float64 `yaml:"mass"`
	SpawnSpeed       float64 `yaml:"spawn_speed"` // initial speed along a random heading
}

// PopulationConfig holds population parameters.
type PopulationConfig struct {
	Initial int `yaml:"initial"`
}

// BehaviorsConfig holds the per-behavior descriptors.
type BehaviorsConfig struct {
	Separation SeparationConfig `yaml:"separation"`
	Alignment  AlignmentConfig  `yaml:"alignment"`
	Cohesion   CohesionConfig   `yaml:"cohesion"`
	Seek       SeekConfig       `yaml:"seek"`
	Flee       FleeConfig       `yaml:"flee"`
	Wander     WanderConfig     `yaml:"wander"`
	Obstacle   ObstacleConfig   `yaml:"obstacle"`
}

// SeparationConfig tunes the separation behavior.
type SeparationConfig struct {
	Weight  float64 `yaml:"weight"`
	Enabled bool    `yaml:"enabled"`
	Radius  float64 `yaml:"radius"`
}

// AlignmentConfig tunes the alignment behavior.
type AlignmentConfig struct {
	Weight           float64 `yaml:"weight"`
	Enabled          bool    `yaml:"enabled"`
	Radius           float64 `yaml:"radius"`
	MinNeighborSpeed float64 `yaml:"min_neighbor_speed"`
	InverseDistance  bool    `yaml:"inverse_distance"`
}

// CohesionConfig tunes the cohesion behavior.
type CohesionConfig struct {
	Weight          float64 `yaml:"weight"`
	Enabled         bool    `yaml:"enabled"`
	Radius          float64 `yaml:"radius"`
	ArrivalRadius   float64 `yaml:"arrival_radius"`
	InverseDistance bool    `yaml:"inverse_distance"`
}

// SeekConfig tunes the seek behavior.
type SeekConfig struct {
	Weight        float64    `yaml:"weight"`
	Enabled       bool       `yaml:"enabled"`
	Target        [3]float64 `yaml:"target"`
	ArrivalRadius float64    `yaml:"arrival_radius"`
}

// FleeConfig tunes the flee behavior.
type FleeConfig struct {
	Weight      float64    `yaml:"weight"`
	Enabled     bool       `yaml:"enabled"`
	Target      [3]float64 `yaml:"target"`
	Radius      float64    `yaml:"radius"`
	PanicRadius float64    `yaml:"panic_radius"`
	PanicBoost  float64    `yaml:"panic_boost"`
}

// WanderConfig tunes the wander behavior.
type WanderConfig struct {
	Weight   float64 `yaml:"weight"`
	Enabled  bool    `yaml:"enabled"`
	Distance float64 `yaml:"distance"` // circle center ahead of the heading
	Radius   float64 `yaml:"radius"`   // circle radius
	Jitter   float64 `yaml:"jitter"`   // per-tick target displacement bound
}

// ObstacleConfig tunes obstacle avoidance.
type ObstacleConfig struct {
	Weight    float64 `yaml:"weight"`
	Enabled   bool    `yaml:"enabled"`
	Lookahead float64 `yaml:"lookahead"` // probe length along the heading
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"` // seconds per stats window
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT32             float32
	WorldMin         [3]float32
	WorldMax         [3]float32
	StatsWindowTicks int
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if
// path is empty. Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used. Degenerate values
// (non-positive radii, negative weights) are clamped here, at configuration
// time, never at tick time.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.sanitize()
	cfg.computeDerived()

	return cfg, nil
}

// sanitize clamps configuration values into valid ranges, warning about
// every correction.
func (c *Config) sanitize() {
	clampWeight := func(name string, w *float64) {
		if *w < 0 {
			slog.Warn("negative behavior weight clamped to zero", "behavior", name, "weight", *w)
			*w = 0
		}
	}
	clampRadius := func(name string, r *float64, fallback float64) {
		if *r <= 0 {
			slog.Warn("non-positive radius replaced", "param", name, "radius", *r, "fallback", fallback)
			*r = fallback
		}
	}

	clampWeight("separation", &c.Behaviors.Separation.Weight)
	clampWeight("alignment", &c.Behaviors.Alignment.Weight)
	clampWeight("cohesion", &c.Behaviors.Cohesion.Weight)
	clampWeight("seek", &c.Behaviors.Seek.Weight)
	clampWeight("flee", &c.Behaviors.Flee.Weight)
	clampWeight("wander", &c.Behaviors.Wander.Weight)
	clampWeight("obstacle", &c.Behaviors.Obstacle.Weight)

	clampRadius("behaviors.separation.radius", &c.Behaviors.Separation.Radius, c.Agent.PerceptionRadius)
	clampRadius("behaviors.alignment.radius", &c.Behaviors.Alignment.Radius, c.Agent.PerceptionRadius)
	clampRadius("behaviors.cohesion.radius", &c.Behaviors.Cohesion.Radius, c.Agent.PerceptionRadius)
	clampRadius("agent.perception_radius", &c.Agent.PerceptionRadius, 10)

	if c.Agent.MaxSpeed <= 0 {
		slog.Warn("non-positive max_speed replaced", "value", c.Agent.MaxSpeed)
		c.Agent.MaxSpeed = 1
	}
	if c.Agent.MaxForce <= 0 {
		slog.Warn("non-positive max_force replaced", "value", c.Agent.MaxForce)
		c.Agent.MaxForce = 1
	}
	if c.Agent.Mass <= 0 {
		slog.Warn("non-positive mass replaced", "value", c.Agent.Mass)
		c.Agent.Mass = 1
	}
	if c.Physics.DT <= 0 {
		c.Physics.DT = 1.0 / 60.0
	}
	if c.Index.GridCellSize <= 0 {
		c.Index.GridCellSize = c.Agent.PerceptionRadius
	}
	if c.Index.MaxAgentsPerNode < 1 {
		c.Index.MaxAgentsPerNode = 16
	}
	if c.Index.MaxDepth < 1 {
		c.Index.MaxDepth = 8
	}
	switch c.World.BoundsPolicy {
	case "reflect", "wrap", "inward":
	default:
		slog.Warn("unknown bounds policy, using reflect", "policy", c.World.BoundsPolicy)
		c.World.BoundsPolicy = "reflect"
	}
	switch c.Index.Type {
	case "grid", "octree":
	default:
		slog.Warn("unknown index type, using grid", "type", c.Index.Type)
		c.Index.Type = "grid"
	}
	for i := 0; i < 3; i++ {
		if c.World.Min[i] >= c.World.Max[i] {
			slog.Warn("degenerate world axis expanded", "axis", i)
			c.World.Max[i] = c.World.Min[i] + 1
		}
	}
}

// Finalize re-runs validation and derived-value computation after direct
// mutation of a Config, as the optimizer does between evaluations.
func (c *Config) Finalize() {
	c.sanitize()
	c.computeDerived()
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.DT32 = float32(c.Physics.DT)
	for i := 0; i < 3; i++ {
		c.Derived.WorldMin[i] = float32(c.World.Min[i])
		c.Derived.WorldMax[i] = float32(c.World.Max[i])
	}
	ticks := int(c.Telemetry.StatsWindow / c.Physics.DT)
	if ticks < 1 {
		ticks = 1
	}
	c.Derived.StatsWindowTicks = ticks
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
