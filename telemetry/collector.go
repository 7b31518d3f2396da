package telemetry

// TickSample is the per-window-end measurement handed in by the engine.
// Slices are read during EndWindow only and not retained.
type TickSample struct {
	AgentCount     int
	Speeds         []float64
	NeighborCounts []float64
	Saturated      int
	Polarization   float64
}

// Collector accumulates lifecycle events within tick windows and produces
// WindowStats at window boundaries.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks uint64
	dt                  float32

	windowStartTick uint64

	// Event counters for current window
	spawns   int
	despawns int
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds.
// dt: seconds per tick.
func NewCollector(windowDurationSec float64, dt float32) *Collector {
	ticksPerWindow := uint64(windowDurationSec / float64(dt))
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}
	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
	}
}

// RecordSpawn records an agent spawn.
func (c *Collector) RecordSpawn() {
	c.spawns++
}

// RecordDespawn records an agent despawn.
func (c *Collector) RecordDespawn() {
	c.despawns++
}

// WindowDone reports whether tick closes the current window.
func (c *Collector) WindowDone(tick uint64) bool {
	return tick >= c.windowStartTick+c.windowDurationTicks
}

// EndWindow builds the stats for the closing window and starts the next one.
func (c *Collector) EndWindow(tick uint64, sample TickSample) WindowStats {
	speedMean, speedP10, speedP50, speedP90 := DistStats(sample.Speeds)
	neighborMean, _, _, _ := DistStats(sample.NeighborCounts)

	var neighborMax float64
	for _, n := range sample.NeighborCounts {
		if n > neighborMax {
			neighborMax = n
		}
	}

	var saturation float64
	if sample.AgentCount > 0 {
		saturation = float64(sample.Saturated) / float64(sample.AgentCount)
	}

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   tick,
		SimTimeSec:      float64(tick) * float64(c.dt),
		AgentCount:      sample.AgentCount,
		Spawns:          c.spawns,
		Despawns:        c.despawns,
		SpeedMean:       speedMean,
		SpeedP10:        speedP10,
		SpeedP50:        speedP50,
		SpeedP90:        speedP90,
		NeighborMean:    neighborMean,
		NeighborMax:     neighborMax,
		ForceSaturation: saturation,
		Polarization:    sample.Polarization,
	}

	c.windowStartTick = tick
	c.spawns = 0
	c.despawns = 0

	return stats
}
