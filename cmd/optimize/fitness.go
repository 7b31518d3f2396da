package main

import (
	"math"

	"github.com/pthm-cable/murmur/config"
	"github.com/pthm-cable/murmur/engine"
	"github.com/pthm-cable/murmur/geom"
)

// Evaluation schedule. Warmup ticks let the flock form before any metric
// is read; after that the run is sampled at a fixed stride.
const (
	warmupFraction = 0.25
	sampleStride   = 30
)

// FlockMetrics aggregates the quality measurements of one run.
type FlockMetrics struct {
	Polarization float64 // mean heading alignment, 0..1
	MeanNearest  float64 // mean nearest-neighbor distance
	Collisions   float64 // fraction of agents closer than the collision distance
	Samples      int
}

// FitnessEvaluator runs headless simulations and scores flock quality.
type FitnessEvaluator struct {
	params     *ParamVector
	maxTicks   int
	agents     int
	seeds      []int64
	baseConfig *config.Config

	lastMetrics FlockMetrics
}

func NewFitnessEvaluator(params *ParamVector, maxTicks, agents int, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		maxTicks:   maxTicks,
		agents:     agents,
		seeds:      seeds,
		baseConfig: baseCfg,
	}
}

// LastMetrics returns the metrics of the most recent evaluation, averaged
// over its seeds.
func (fe *FitnessEvaluator) LastMetrics() FlockMetrics {
	return fe.lastMetrics
}

// Evaluate runs one simulation per seed and returns the mean cost. Lower
// is better: high polarization, spacing near the separation radius, and no
// collisions all reduce it.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)
	cfg.Population.Initial = fe.agents
	cfg.Finalize()

	total := 0.0
	var accum FlockMetrics
	for _, seed := range fe.seeds {
		m := fe.runOnce(cfg, seed)
		total += cost(m, cfg)
		accum.Polarization += m.Polarization
		accum.MeanNearest += m.MeanNearest
		accum.Collisions += m.Collisions
		accum.Samples += m.Samples
	}

	n := float64(len(fe.seeds))
	accum.Polarization /= n
	accum.MeanNearest /= n
	accum.Collisions /= n
	fe.lastMetrics = accum

	return total / n
}

// runOnce simulates one seed to completion and measures the flock.
func (fe *FitnessEvaluator) runOnce(cfg *config.Config, seed int64) FlockMetrics {
	eng := engine.New(engine.Options{Config: cfg, Seed: seed})
	defer eng.Close()

	warmup := int(float64(fe.maxTicks) * warmupFraction)
	collisionDist := cfg.Behaviors.Separation.Radius * 0.25

	var m FlockMetrics
	dt := cfg.Derived.DT32
	for t := 0; t < fe.maxTicks; t++ {
		eng.Step(dt)
		if t < warmup || t%sampleStride != 0 {
			continue
		}
		measure(&m, eng.Agents(), collisionDist)
	}

	if m.Samples > 0 {
		s := float64(m.Samples)
		m.Polarization /= s
		m.MeanNearest /= s
		m.Collisions /= s
	}
	return m
}

// measure accumulates one sample of polarization, nearest-neighbor
// distance, and collision fraction into m.
func measure(m *FlockMetrics, agents []engine.AgentSnapshot, collisionDist float64) {
	n := len(agents)
	if n < 2 {
		return
	}

	var headingSum geom.Vec3
	nearestSum := 0.0
	colliding := 0

	for i := range agents {
		headingSum = headingSum.Add(agents[i].Vel.Normalize())

		best := math.MaxFloat64
		for j := range agents {
			if i == j {
				continue
			}
			d := float64(agents[i].Pos.DistTo(agents[j].Pos))
			if d < best {
				best = d
			}
		}
		nearestSum += best
		if best < collisionDist {
			colliding++
		}
	}

	m.Polarization += float64(headingSum.Len()) / float64(n)
	m.MeanNearest += nearestSum / float64(n)
	m.Collisions += float64(colliding) / float64(n)
	m.Samples++
}

// cost maps metrics to a scalar for the minimizer. The spacing target is
// the separation radius: a flock that holds that distance scores best.
func cost(m FlockMetrics, cfg *config.Config) float64 {
	target := cfg.Behaviors.Separation.Radius
	spacingErr := math.Abs(m.MeanNearest-target) / target

	return -2.0*m.Polarization + spacingErr + 4.0*m.Collisions
}

// copyConfig creates an independent copy of the base config. Config holds
// only value types, so a shallow copy is a deep copy.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	return &cfg
}
