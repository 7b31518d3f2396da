package systems

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/murmur/geom"
)

type octreeEntry struct {
	ref AgentRef
	pos geom.Vec3
}

// octreeNode is a leaf holding member references, or an internal node with
// exactly 8 children. Internal nodes hold no members.
type octreeNode struct {
	bounds   geom.AABB
	depth    int
	members  []octreeEntry
	children *[8]octreeNode
}

// Octree adaptively subdivides space. It trades higher per-query traversal
// overhead for better behavior under highly non-uniform agent density, where
// a uniform grid degrades to scanning a few crowded cells.
type Octree struct {
	root       octreeNode
	maxPerNode int
	maxDepth   int
	count      int
}

// NewOctree creates an octree covering the given world bounds.
// A leaf subdivides once its member count exceeds maxPerNode, as long as its
// depth is below maxDepth.
func NewOctree(bounds geom.AABB, maxPerNode, maxDepth int) *Octree {
	if maxPerNode < 1 {
		maxPerNode = 1
	}
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &Octree{
		root:       octreeNode{bounds: bounds, members: make([]octreeEntry, 0, maxPerNode+1)},
		maxPerNode: maxPerNode,
		maxDepth:   maxDepth,
	}
}

// Clear removes all references. The root's member storage is kept; child
// nodes are released for the next rebuild to regrow where density demands.
func (o *Octree) Clear() {
	o.root.members = o.root.members[:0]
	o.root.children = nil
	o.count = 0
}

// Len returns the number of inserted references.
func (o *Octree) Len() int {
	return o.count
}

// Insert places a reference into the leaf containing pos. Positions outside
// the root bounds are clamped in for placement only, so no live agent can
// fall out of the tree; the stored position stays raw so query deltas and
// distances reflect true geometry near the walls.
func (o *Octree) Insert(ref AgentRef, pos geom.Vec3) {
	o.insertAt(&o.root, octreeEntry{ref: ref, pos: pos})
	o.count++
}

func (o *Octree) insertAt(n *octreeNode, e octreeEntry) {
	place := o.root.bounds.Clamp(e.pos)
	for n.children != nil {
		n = &n.children[octantIndex(n.bounds.Center(), place)]
	}
	n.members = append(n.members, e)
	if len(n.members) > o.maxPerNode && n.depth < o.maxDepth {
		o.subdivide(n)
	}
}

// subdivide splits a leaf into 8 children and redistributes its members.
// Octants are chosen by comparing positions against the node center, so
// every member lands in exactly one child and none can be stranded by
// floating-point edge cases on child boundaries.
func (o *Octree) subdivide(n *octreeNode) {
	center := n.bounds.Center()
	var children [8]octreeNode
	for i := range children {
		children[i] = octreeNode{
			bounds: octantBounds(n.bounds, center, i),
			depth:  n.depth + 1,
		}
	}
	n.children = &children
	for _, e := range n.members {
		// Placement uses the clamped position, same as insertAt, so a
		// redistribution can never move an entry relative to insertion.
		child := &n.children[octantIndex(center, o.root.bounds.Clamp(e.pos))]
		child.members = append(child.members, e)
	}
	n.members = nil

	// A skewed distribution can overfill one child; keep splitting while
	// the depth budget allows.
	for i := range n.children {
		child := &n.children[i]
		if len(child.members) > o.maxPerNode && child.depth < o.maxDepth {
			o.subdivide(child)
		}
	}
}

// QueryInto appends agents within radius of center to dst, recursing only
// into nodes whose bounds intersect the query's bounding box.
func (o *Octree) QueryInto(dst []Neighbor, center geom.Vec3, radius float32, exclude ecs.Entity) []Neighbor {
	if radius <= 0 {
		return dst
	}
	ext := geom.Vec3{X: radius, Y: radius, Z: radius}
	box := geom.AABB{Min: center.Sub(ext), Max: center.Add(ext)}
	return o.queryNode(&o.root, dst, center, radius*radius, box, exclude)
}

func (o *Octree) queryNode(n *octreeNode, dst []Neighbor, center geom.Vec3, radiusSq float32, box geom.AABB, exclude ecs.Entity) []Neighbor {
	if !n.bounds.Intersects(box) {
		return dst
	}
	if n.children != nil {
		for i := range n.children {
			dst = o.queryNode(&n.children[i], dst, center, radiusSq, box, exclude)
		}
		return dst
	}
	for _, e := range n.members {
		if e.ref.Entity == exclude {
			continue
		}
		delta := e.pos.Sub(center)
		distSq := delta.LenSq()
		if distSq <= radiusSq {
			dst = append(dst, Neighbor{Ref: e.ref, Delta: delta, DistSq: distSq})
		}
	}
	return dst
}

// Stats describe the current tree shape, for telemetry and debugging.
type OctreeStats struct {
	Nodes    int
	Leaves   int
	MaxDepth int
}

// Stats walks the tree and reports its shape.
func (o *Octree) Stats() OctreeStats {
	var s OctreeStats
	statsWalk(&o.root, &s)
	return s
}

func statsWalk(n *octreeNode, s *OctreeStats) {
	s.Nodes++
	if n.depth > s.MaxDepth {
		s.MaxDepth = n.depth
	}
	if n.children == nil {
		s.Leaves++
		return
	}
	for i := range n.children {
		statsWalk(&n.children[i], s)
	}
}

// octantIndex selects the child octant for pos relative to center.
// Bit 0 = +X half, bit 1 = +Y half, bit 2 = +Z half.
func octantIndex(center, pos geom.Vec3) int {
	idx := 0
	if pos.X >= center.X {
		idx |= 1
	}
	if pos.Y >= center.Y {
		idx |= 2
	}
	if pos.Z >= center.Z {
		idx |= 4
	}
	return idx
}

// octantBounds computes the child box for the given octant index.
func octantBounds(parent geom.AABB, center geom.Vec3, idx int) geom.AABB {
	child := geom.AABB{Min: parent.Min, Max: center}
	if idx&1 != 0 {
		child.Min.X, child.Max.X = center.X, parent.Max.X
	}
	if idx&2 != 0 {
		child.Min.Y, child.Max.Y = center.Y, parent.Max.Y
	}
	if idx&4 != 0 {
		child.Min.Z, child.Max.Z = center.Z, parent.Max.Z
	}
	return child
}
