package systems

import (
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/murmur/geom"
)

// Spatial hash primes for combining 3D cell coordinates into one bucket id.
const (
	hashPrimeX = 73856093
	hashPrimeY = 19349663
	hashPrimeZ = 83492791
)

type gridEntry struct {
	ref AgentRef
	pos geom.Vec3
}

// HashGrid is a uniform grid with hashed cells. Cell size should be at least
// the largest perception radius in common use: smaller cells cut per-cell
// scan cost but widen the cube of cells each query must visit.
type HashGrid struct {
	bounds   geom.AABB
	cellSize float32
	cells    map[uint64][]gridEntry
	count    int
}

// NewHashGrid creates a grid covering the given world bounds.
func NewHashGrid(bounds geom.AABB, cellSize float32) *HashGrid {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &HashGrid{
		bounds:   bounds,
		cellSize: cellSize,
		cells:    make(map[uint64][]gridEntry, 256),
	}
}

// Clear removes all references without deallocating bucket storage.
func (g *HashGrid) Clear() {
	for k := range g.cells {
		g.cells[k] = g.cells[k][:0]
	}
	g.count = 0
}

// Insert adds a reference to the cell containing pos. Out-of-bounds
// positions are clamped into the world so the agent stays discoverable.
func (g *HashGrid) Insert(ref AgentRef, pos geom.Vec3) {
	clamped := g.bounds.Clamp(pos)
	key := g.cellKey(g.cellCoords(clamped))
	g.cells[key] = append(g.cells[key], gridEntry{ref: ref, pos: pos})
	g.count++
}

// Len returns the number of inserted references.
func (g *HashGrid) Len() int {
	return g.count
}

// QueryInto appends agents within radius of center to dst.
// The cube of candidate cells is enumerated in a fixed order and members are
// visited in insertion order, so the result sequence is reproducible for a
// given rebuild. Callers must not rely on the ordering for anything else.
func (g *HashGrid) QueryInto(dst []Neighbor, center geom.Vec3, radius float32, exclude ecs.Entity) []Neighbor {
	if radius <= 0 {
		return dst
	}
	cellRadius := int32(math.Ceil(float64(radius / g.cellSize)))
	cx, cy, cz := g.cellCoords(g.bounds.Clamp(center))
	radiusSq := radius * radius

	for dx := -cellRadius; dx <= cellRadius; dx++ {
		for dy := -cellRadius; dy <= cellRadius; dy++ {
			for dz := -cellRadius; dz <= cellRadius; dz++ {
				bucket, ok := g.cells[g.cellKey(cx+dx, cy+dy, cz+dz)]
				if !ok {
					continue
				}
				for _, e := range bucket {
					if e.ref.Entity == exclude {
						continue
					}
					delta := e.pos.Sub(center)
					distSq := delta.LenSq()
					if distSq <= radiusSq {
						dst = append(dst, Neighbor{Ref: e.ref, Delta: delta, DistSq: distSq})
					}
				}
			}
		}
	}
	return dst
}

// cellCoords returns integer grid coordinates for a world position.
func (g *HashGrid) cellCoords(p geom.Vec3) (int32, int32, int32) {
	rel := p.Sub(g.bounds.Min)
	return int32(math.Floor(float64(rel.X / g.cellSize))),
		int32(math.Floor(float64(rel.Y / g.cellSize))),
		int32(math.Floor(float64(rel.Z / g.cellSize)))
}

// cellKey combines cell coordinates into a single bucket id.
func (g *HashGrid) cellKey(x, y, z int32) uint64 {
	return uint64(int64(x)*hashPrimeX) ^ uint64(int64(y)*hashPrimeY) ^ uint64(int64(z)*hashPrimeZ)
}
