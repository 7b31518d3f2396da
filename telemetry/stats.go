package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick uint64  `csv:"-"`
	WindowEndTick   uint64  `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Population at window end
	AgentCount int `csv:"agents"`

	// Lifecycle events during window
	Spawns   int `csv:"spawns"`
	Despawns int `csv:"despawns"`

	// Motion distribution (sampled at window end)
	SpeedMean float64 `csv:"speed_mean"`
	SpeedP10  float64 `csv:"speed_p10"`
	SpeedP50  float64 `csv:"speed_p50"`
	SpeedP90  float64 `csv:"speed_p90"`

	// Local density
	NeighborMean float64 `csv:"neighbor_mean"`
	NeighborMax  float64 `csv:"neighbor_max"`

	// Fraction of agents whose combined steering force hit the clamp
	ForceSaturation float64 `csv:"force_saturation"`

	// Velocity order parameter: |mean unit velocity|, 1.0 = perfect
	// alignment, ~0 = disordered motion
	Polarization float64 `csv:"polarization"`
}

// DistStats computes mean and p10/p50/p90 of a sample.
// Returns zeros for an empty sample.
func DistStats(values []float64) (mean, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mean = stat.Mean(sorted, nil)
	p10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	p50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	p90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)
	return mean, p10, p50, p90
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStartTick),
		slog.Uint64("window_end", s.WindowEndTick),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("agents", s.AgentCount),
		slog.Int("spawns", s.Spawns),
		slog.Int("despawns", s.Despawns),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_p10", s.SpeedP10),
		slog.Float64("speed_p50", s.SpeedP50),
		slog.Float64("speed_p90", s.SpeedP90),
		slog.Float64("neighbor_mean", s.NeighborMean),
		slog.Float64("neighbor_max", s.NeighborMax),
		slog.Float64("force_saturation", s.ForceSaturation),
		slog.Float64("polarization", s.Polarization),
	)
}
