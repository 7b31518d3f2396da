// Package geom provides float32 vector and box math for the simulation.
package geom

import (
	"fmt"
	"math"
)

// Epsilon is the magnitude below which a vector is treated as zero.
const Epsilon = 1e-6

// Vec3 represents a 3D vector or point in cartesian space.
// Fields are public because they are fundamental data, not internal state.
type Vec3 struct {
	X, Y, Z float32
}

// String implements fmt.Stringer.
func (v Vec3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{v.X + other.X, v.Y + other.Y, v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{v.X - other.X, v.Y - other.Y, v.Z - other.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product of v and other.
func (v Vec3) Dot(other Vec3) float32 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// LenSq returns the squared magnitude. Faster than Len; use for comparisons.
func (v Vec3) LenSq() float32 {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

// Len returns the magnitude.
func (v Vec3) Len() float32 {
	return float32(math.Sqrt(float64(v.LenSq())))
}

// Normalize returns a unit vector in the same direction.
// Returns the zero vector when the length is effectively zero.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l < Epsilon {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// Limit returns v clamped to at most max magnitude.
func (v Vec3) Limit(max float32) Vec3 {
	if max <= 0 {
		return Vec3{}
	}
	lsq := v.LenSq()
	if lsq <= max*max {
		return v
	}
	return v.Scale(max / float32(math.Sqrt(float64(lsq))))
}

// WithLen returns a vector in v's direction with the given magnitude.
// Returns the zero vector when v has effectively zero length.
func (v Vec3) WithLen(l float32) Vec3 {
	return v.Normalize().Scale(l)
}

// DistTo returns the Euclidean distance to other.
func (v Vec3) DistTo(other Vec3) float32 {
	return v.Sub(other).Len()
}

// DistSqTo returns the squared Euclidean distance to other.
func (v Vec3) DistSqTo(other Vec3) float32 {
	return v.Sub(other).LenSq()
}

// IsZero reports whether v is effectively the zero vector.
func (v Vec3) IsZero() bool {
	return v.LenSq() < Epsilon*Epsilon
}
