package engine

import (
	"log/slog"

	"github.com/pthm-cable/murmur/systems"
	"github.com/pthm-cable/murmur/telemetry"
)

// logWindow emits one structured record per stats window. Octree shape
// stats ride along when that index is active.
func logWindow(stats telemetry.WindowStats, index systems.SpatialIndex) {
	attrs := []any{"window", stats}
	if oct, ok := index.(*systems.Octree); ok {
		s := oct.Stats()
		attrs = append(attrs,
			"octree_nodes", s.Nodes,
			"octree_leaves", s.Leaves,
			"octree_depth", s.MaxDepth,
		)
	}
	slog.Info("window stats", attrs...)
}
