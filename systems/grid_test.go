package systems

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/murmur/components"
	"github.com/pthm-cable/murmur/geom"
)

// makeEntities creates n distinct live entities for index tests.
func makeEntities(n int) []ecs.Entity {
	world := ecs.NewWorld()
	mapper := ecs.NewMap1[components.Position](world)
	out := make([]ecs.Entity, n)
	for i := range out {
		pos := components.Position{}
		out[i] = mapper.NewEntity(&pos)
	}
	return out
}

// randomPoints generates n points uniformly inside bounds.
func randomPoints(rng *rand.Rand, bounds geom.AABB, n int) []geom.Vec3 {
	size := bounds.Size()
	pts := make([]geom.Vec3, n)
	for i := range pts {
		pts[i] = geom.Vec3{
			X: bounds.Min.X + rng.Float32()*size.X,
			Y: bounds.Min.Y + rng.Float32()*size.Y,
			Z: bounds.Min.Z + rng.Float32()*size.Z,
		}
	}
	return pts
}

// bruteNeighbors is the reference implementation both indexes must match.
func bruteNeighbors(pts []geom.Vec3, entities []ecs.Entity, center geom.Vec3, radius float32, exclude ecs.Entity) []int32 {
	var out []int32
	radiusSq := radius * radius
	for i, p := range pts {
		if entities[i] == exclude {
			continue
		}
		if p.DistSqTo(center) <= radiusSq {
			out = append(out, int32(i))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

func neighborIndices(neighbors []Neighbor) []int32 {
	out := make([]int32, len(neighbors))
	for i, n := range neighbors {
		out[i] = n.Ref.Index
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

func indicesEqual(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// fillIndex inserts every point into the index.
func fillIndex(idx SpatialIndex, pts []geom.Vec3, entities []ecs.Entity) {
	for i, p := range pts {
		idx.Insert(AgentRef{Entity: entities[i], Index: int32(i)}, p)
	}
}

// TestHashGridMatchesBruteForce cross-checks grid queries against a direct
// scan over many random centers and radii.
func TestHashGridMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	bounds := geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 100, Y: 100, Z: 100})
	pts := randomPoints(rng, bounds, 300)
	entities := makeEntities(len(pts))

	grid := NewHashGrid(bounds, 10)
	fillIndex(grid, pts, entities)

	if grid.Len() != len(pts) {
		t.Fatalf("Len() = %d, want %d", grid.Len(), len(pts))
	}

	for trial := 0; trial < 50; trial++ {
		center := randomPoints(rng, bounds, 1)[0]
		radius := 5 + rng.Float32()*30
		exclude := entities[rng.Intn(len(entities))]

		got := neighborIndices(grid.QueryInto(nil, center, radius, exclude))
		want := bruteNeighbors(pts, entities, center, radius, exclude)
		if !indicesEqual(got, want) {
			t.Fatalf("trial %d: grid returned %v, brute force %v (center=%v radius=%v)",
				trial, got, want, center, radius)
		}
	}
}

// TestHashGridDeltaAndDistSq verifies the precomputed fields.
func TestHashGridDeltaAndDistSq(t *testing.T) {
	bounds := geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 100, Y: 100, Z: 100})
	entities := makeEntities(1)

	grid := NewHashGrid(bounds, 10)
	grid.Insert(AgentRef{Entity: entities[0], Index: 0}, geom.Vec3{X: 13, Y: 10, Z: 10})

	got := grid.QueryInto(nil, geom.Vec3{X: 10, Y: 10, Z: 10}, 5, ecs.Entity{})
	if len(got) != 1 {
		t.Fatalf("got %d neighbors, want 1", len(got))
	}
	if got[0].Delta != (geom.Vec3{X: 3}) {
		t.Errorf("Delta = %v, want (3, 0, 0)", got[0].Delta)
	}
	if got[0].DistSq != 9 {
		t.Errorf("DistSq = %v, want 9", got[0].DistSq)
	}
}

// TestHashGridExcludesSelf verifies the querying agent never appears in its
// own results even at distance zero.
func TestHashGridExcludesSelf(t *testing.T) {
	bounds := geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 100, Y: 100, Z: 100})
	entities := makeEntities(2)
	p := geom.Vec3{X: 50, Y: 50, Z: 50}

	grid := NewHashGrid(bounds, 10)
	grid.Insert(AgentRef{Entity: entities[0], Index: 0}, p)
	grid.Insert(AgentRef{Entity: entities[1], Index: 1}, p)

	got := grid.QueryInto(nil, p, 10, entities[0])
	if len(got) != 1 || got[0].Ref.Index != 1 {
		t.Fatalf("expected only the other agent, got %v", got)
	}
}

// TestHashGridOutOfBounds verifies escaped agents stay discoverable from
// queries near the wall they left through.
func TestHashGridOutOfBounds(t *testing.T) {
	bounds := geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 100, Y: 100, Z: 100})
	entities := makeEntities(1)

	grid := NewHashGrid(bounds, 10)
	grid.Insert(AgentRef{Entity: entities[0], Index: 0}, geom.Vec3{X: 120, Y: 50, Z: 50})

	got := grid.QueryInto(nil, geom.Vec3{X: 99, Y: 50, Z: 50}, 30, ecs.Entity{})
	if len(got) != 1 {
		t.Fatalf("out-of-bounds agent not found, got %v", got)
	}
}

// TestHashGridDeterministicOrder verifies identical builds produce an
// identical result sequence, not just an identical set.
func TestHashGridDeterministicOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	bounds := geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 100, Y: 100, Z: 100})
	pts := randomPoints(rng, bounds, 200)
	entities := makeEntities(len(pts))

	a := NewHashGrid(bounds, 12)
	b := NewHashGrid(bounds, 12)
	fillIndex(a, pts, entities)
	fillIndex(b, pts, entities)

	center := geom.Vec3{X: 50, Y: 50, Z: 50}
	ra := a.QueryInto(nil, center, 40, ecs.Entity{})
	rb := b.QueryInto(nil, center, 40, ecs.Entity{})

	if len(ra) != len(rb) {
		t.Fatalf("result lengths differ: %d vs %d", len(ra), len(rb))
	}
	for i := range ra {
		if ra[i].Ref.Index != rb[i].Ref.Index {
			t.Fatalf("order diverges at %d: %d vs %d", i, ra[i].Ref.Index, rb[i].Ref.Index)
		}
	}
}

// TestHashGridClearReuse verifies Clear empties the grid while keeping it
// usable for the next rebuild.
func TestHashGridClearReuse(t *testing.T) {
	bounds := geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 100, Y: 100, Z: 100})
	entities := makeEntities(2)
	grid := NewHashGrid(bounds, 10)

	grid.Insert(AgentRef{Entity: entities[0], Index: 0}, geom.Vec3{X: 50, Y: 50, Z: 50})
	grid.Clear()
	if grid.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", grid.Len())
	}
	if got := grid.QueryInto(nil, geom.Vec3{X: 50, Y: 50, Z: 50}, 10, ecs.Entity{}); len(got) != 0 {
		t.Fatalf("stale results after Clear: %v", got)
	}

	grid.Insert(AgentRef{Entity: entities[1], Index: 1}, geom.Vec3{X: 50, Y: 50, Z: 50})
	got := grid.QueryInto(nil, geom.Vec3{X: 50, Y: 50, Z: 50}, 10, ecs.Entity{})
	if len(got) != 1 || got[0].Ref.Index != 1 {
		t.Fatalf("reinsert after Clear failed: %v", got)
	}
}
