package systems

import (
	"math/rand"
	"testing"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/murmur/geom"
)

// checkLeafCapacity walks the tree and fails the test if an internal node
// holds members, or a leaf above capacity sits at a depth where it could
// still have split.
func checkLeafCapacity(t *testing.T, tree *Octree) {
	t.Helper()
	var walk func(n *octreeNode)
	walk = func(n *octreeNode) {
		if n.children != nil {
			if len(n.members) != 0 {
				t.Errorf("internal node at depth %d holds %d members", n.depth, len(n.members))
			}
			for i := range n.children {
				walk(&n.children[i])
			}
			return
		}
		if n.depth < tree.maxDepth && len(n.members) > tree.maxPerNode {
			t.Errorf("leaf at depth %d holds %d members, capacity %d",
				n.depth, len(n.members), tree.maxPerNode)
		}
	}
	walk(&tree.root)
}

// TestOctreeMatchesBruteForce cross-checks octree queries against a direct
// scan, same harness as the grid test.
func TestOctreeMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	bounds := geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 100, Y: 100, Z: 100})
	pts := randomPoints(rng, bounds, 300)
	entities := makeEntities(len(pts))

	tree := NewOctree(bounds, 8, 6)
	fillIndex(tree, pts, entities)

	if tree.Len() != len(pts) {
		t.Fatalf("Len() = %d, want %d", tree.Len(), len(pts))
	}
	checkLeafCapacity(t, tree)

	for trial := 0; trial < 50; trial++ {
		center := randomPoints(rng, bounds, 1)[0]
		radius := 5 + rng.Float32()*30
		exclude := entities[rng.Intn(len(entities))]

		got := neighborIndices(tree.QueryInto(nil, center, radius, exclude))
		want := bruteNeighbors(pts, entities, center, radius, exclude)
		if !indicesEqual(got, want) {
			t.Fatalf("trial %d: octree returned %v, brute force %v (center=%v radius=%v)",
				trial, got, want, center, radius)
		}
	}
}

// TestOctreeSubdivides verifies a leaf splits past capacity and that every
// member survives the redistribution.
func TestOctreeSubdivides(t *testing.T) {
	bounds := geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 100, Y: 100, Z: 100})
	entities := makeEntities(9)

	tree := NewOctree(bounds, 8, 6)
	// Spread members across octants so the first split distributes them.
	pts := []geom.Vec3{
		{X: 10, Y: 10, Z: 10}, {X: 90, Y: 10, Z: 10},
		{X: 10, Y: 90, Z: 10}, {X: 90, Y: 90, Z: 10},
		{X: 10, Y: 10, Z: 90}, {X: 90, Y: 10, Z: 90},
		{X: 10, Y: 90, Z: 90}, {X: 90, Y: 90, Z: 90},
		{X: 50, Y: 50, Z: 50},
	}
	fillIndex(tree, pts, entities)

	stats := tree.Stats()
	if stats.Nodes == 1 {
		t.Fatal("tree never subdivided past capacity")
	}
	if stats.Leaves < 8 {
		t.Errorf("Leaves = %d, want at least 8 after one split", stats.Leaves)
	}
	checkLeafCapacity(t, tree)

	got := tree.QueryInto(nil, geom.Vec3{X: 50, Y: 50, Z: 50}, 100, ecs.Entity{})
	if len(got) != len(pts) {
		t.Fatalf("members lost in subdivision: found %d of %d", len(got), len(pts))
	}
}

// TestOctreeLeafCapacityUnderClustering verifies the recursive re-split after
// a skewed redistribution: all members land in one octant, which must keep
// splitting until every leaf is within capacity or at the depth limit.
func TestOctreeLeafCapacityUnderClustering(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	bounds := geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 100, Y: 100, Z: 100})
	cluster := geom.NewAABB(geom.Vec3{X: 60, Y: 60, Z: 60}, geom.Vec3{X: 70, Y: 70, Z: 70})
	pts := randomPoints(rng, cluster, 120)
	entities := makeEntities(len(pts))

	tree := NewOctree(bounds, 4, 6)
	fillIndex(tree, pts, entities)

	checkLeafCapacity(t, tree)
	if tree.Stats().MaxDepth < 2 {
		t.Fatalf("clustered insert only reached depth %d", tree.Stats().MaxDepth)
	}
}

// TestOctreeDepthBudget verifies coincident members cannot split the tree
// beyond its depth budget.
func TestOctreeDepthBudget(t *testing.T) {
	bounds := geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 100, Y: 100, Z: 100})
	const n = 40
	entities := makeEntities(n)

	tree := NewOctree(bounds, 4, 3)
	p := geom.Vec3{X: 20, Y: 20, Z: 20}
	for i := 0; i < n; i++ {
		tree.Insert(AgentRef{Entity: entities[i], Index: int32(i)}, p)
	}

	stats := tree.Stats()
	if stats.MaxDepth > 3 {
		t.Fatalf("MaxDepth = %d, want <= 3", stats.MaxDepth)
	}

	got := tree.QueryInto(nil, p, 1, ecs.Entity{})
	if len(got) != n {
		t.Fatalf("found %d of %d coincident members", len(got), n)
	}
}

// TestOctreeOutOfBounds verifies escaped agents stay discoverable through
// the boundary leaf while queries see their true geometry, matching the
// grid's reporting for the same points.
func TestOctreeOutOfBounds(t *testing.T) {
	bounds := geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 100, Y: 100, Z: 100})
	entities := makeEntities(1)
	escaped := geom.Vec3{X: 120, Y: 50, Z: 50}
	center := geom.Vec3{X: 99, Y: 50, Z: 50}

	tree := NewOctree(bounds, 8, 6)
	tree.Insert(AgentRef{Entity: entities[0], Index: 0}, escaped)

	got := tree.QueryInto(nil, center, 30, ecs.Entity{})
	if len(got) != 1 {
		t.Fatalf("escaped agent not found near the wall, got %v", got)
	}
	if got[0].Delta.X != 21 || got[0].DistSq != 441 {
		t.Fatalf("delta/distance lost true geometry: %+v", got[0])
	}

	grid := NewHashGrid(bounds, 10)
	grid.Insert(AgentRef{Entity: entities[0], Index: 0}, escaped)
	fromGrid := grid.QueryInto(nil, center, 30, ecs.Entity{})
	if len(fromGrid) != 1 || fromGrid[0].Delta != got[0].Delta || fromGrid[0].DistSq != got[0].DistSq {
		t.Fatalf("indexes disagree on escaped agent: octree %+v grid %v", got[0], fromGrid)
	}

	// Beyond the agent's true distance, the wall leaf no longer matches.
	if near := tree.QueryInto(nil, center, 5, ecs.Entity{}); len(near) != 0 {
		t.Fatalf("agent beyond radius returned: %v", near)
	}
}

// TestOctreeClearReleasesChildren verifies Clear resets to a single root
// leaf and the tree regrows on reuse.
func TestOctreeClearReleasesChildren(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	bounds := geom.NewAABB(geom.Vec3{}, geom.Vec3{X: 100, Y: 100, Z: 100})
	pts := randomPoints(rng, bounds, 100)
	entities := makeEntities(len(pts))

	tree := NewOctree(bounds, 8, 6)
	fillIndex(tree, pts, entities)
	if tree.Stats().Nodes == 1 {
		t.Fatal("setup failed to grow the tree")
	}

	tree.Clear()
	if tree.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", tree.Len())
	}
	if s := tree.Stats(); s.Nodes != 1 || s.Leaves != 1 {
		t.Fatalf("Clear left structure behind: %+v", s)
	}

	fillIndex(tree, pts, entities)
	got := neighborIndices(tree.QueryInto(nil, geom.Vec3{X: 50, Y: 50, Z: 50}, 40, ecs.Entity{}))
	want := bruteNeighbors(pts, entities, geom.Vec3{X: 50, Y: 50, Z: 50}, 40, ecs.Entity{})
	if !indicesEqual(got, want) {
		t.Fatalf("rebuild after Clear wrong: got %v want %v", got, want)
	}
}
