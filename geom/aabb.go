package geom

// AABB is an axis-aligned bounding box defined by its min and max corners.
type AABB struct {
	Min, Max Vec3
}

// NewAABB builds a box from two corners, fixing any inverted axis.
func NewAABB(a, b Vec3) AABB {
	box := AABB{Min: a, Max: b}
	if box.Min.X > box.Max.X {
		box.Min.X, box.Max.X = box.Max.X, box.Min.X
	}
	if box.Min.Y > box.Max.Y {
		box.Min.Y, box.Max.Y = box.Max.Y, box.Min.Y
	}
	if box.Min.Z > box.Max.Z {
		box.Min.Z, box.Max.Z = box.Max.Z, box.Min.Z
	}
	return box
}

// Center returns the box midpoint.
func (b AABB) Center() Vec3 {
	return Vec3{
		X: (b.Min.X + b.Max.X) * 0.5,
		Y: (b.Min.Y + b.Max.Y) * 0.5,
		Z: (b.Min.Z + b.Max.Z) * 0.5,
	}
}

// Size returns the box extents along each axis.
func (b AABB) Size() Vec3 {
	return b.Max.Sub(b.Min)
}

// Contains reports whether p lies inside the box.
// Min faces are inclusive, max faces exclusive, so adjacent boxes never
// both claim a shared-face point.
func (b AABB) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X < b.Max.X &&
		p.Y >= b.Min.Y && p.Y < b.Max.Y &&
		p.Z >= b.Min.Z && p.Z < b.Max.Z
}

// Intersects reports whether the two boxes overlap.
func (b AABB) Intersects(other AABB) bool {
	return b.Min.X <= other.Max.X && b.Max.X >= other.Min.X &&
		b.Min.Y <= other.Max.Y && b.Max.Y >= other.Min.Y &&
		b.Min.Z <= other.Max.Z && b.Max.Z >= other.Min.Z
}

// Clamp returns p moved to the nearest point inside the box.
func (b AABB) Clamp(p Vec3) Vec3 {
	if p.X < b.Min.X {
		p.X = b.Min.X
	} else if p.X > b.Max.X {
		p.X = b.Max.X
	}
	if p.Y < b.Min.Y {
		p.Y = b.Min.Y
	} else if p.Y > b.Max.Y {
		p.Y = b.Max.Y
	}
	if p.Z < b.Min.Z {
		p.Z = b.Min.Z
	} else if p.Z > b.Max.Z {
		p.Z = b.Max.Z
	}
	return p
}
