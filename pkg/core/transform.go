// pkg/core/transform.go
package core

import "math"

// DefaultTolerance matches the engine's default transform comparison epsilon.
const DefaultTolerance = 1e-4

// Vec3 is a point or direction in engine units.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product of v and o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Len returns the euclidean length of v.
func (v Vec3) Len() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalized returns v scaled to unit length. The zero vector is returned unchanged.
func (v Vec3) Normalized() Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// Min returns the smallest component.
func (v Vec3) Min() float64 {
	return math.Min(v.X, math.Min(v.Y, v.Z))
}

// NearlyEqual reports whether every component of v is within tol of o.
func (v Vec3) NearlyEqual(o Vec3, tol float64) bool {
	return math.Abs(v.X-o.X) <= tol &&
		math.Abs(v.Y-o.Y) <= tol &&
		math.Abs(v.Z-o.Z) <= tol
}

// Quat is a rotation quaternion.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityQuat is the no-rotation quaternion.
var IdentityQuat = Quat{W: 1}

// IsZero reports whether q is the zero value, which callers treat as identity.
func (q Quat) IsZero() bool {
	return q == Quat{}
}

// Rotate applies q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	if q.IsZero() {
		return v
	}
	u := Vec3{X: q.X, Y: q.Y, Z: q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

func (q Quat) nearlyEqual(o Quat, tol float64) bool {
	return math.Abs(q.X-o.X) <= tol &&
		math.Abs(q.Y-o.Y) <= tol &&
		math.Abs(q.Z-o.Z) <= tol &&
		math.Abs(q.W-o.W) <= tol
}

func (q Quat) orIdentity() Quat {
	if q.IsZero() {
		return IdentityQuat
	}
	return q
}

// Transform is a 3D pose: translation, rotation and scale.
type Transform struct {
	Translation Vec3 `json:"translation"`
	Rotation    Quat `json:"rotation"`
	Scale       Vec3 `json:"scale"`
}

// IdentityTransform returns a transform at the origin with unit scale.
func IdentityTransform() Transform {
	return Transform{Rotation: IdentityQuat, Scale: Vec3{X: 1, Y: 1, Z: 1}}
}

// At returns an identity transform translated to p.
func At(p Vec3) Transform {
	t := IdentityTransform()
	t.Translation = p
	return t
}

func (t Transform) scaleOrUnit() Vec3 {
	if t.Scale == (Vec3{}) {
		return Vec3{X: 1, Y: 1, Z: 1}
	}
	return t.Scale
}

// Equals compares two transforms component-wise within tol.
// A rotation and its negation describe the same orientation and compare equal.
func (t Transform) Equals(o Transform, tol float64) bool {
	if !t.Translation.NearlyEqual(o.Translation, tol) {
		return false
	}
	if !t.scaleOrUnit().NearlyEqual(o.scaleOrUnit(), tol) {
		return false
	}
	a, b := t.Rotation.orIdentity(), o.Rotation.orIdentity()
	neg := Quat{X: -b.X, Y: -b.Y, Z: -b.Z, W: -b.W}
	return a.nearlyEqual(b, tol) || a.nearlyEqual(neg, tol)
}

// UnitAxisZ returns the transform's up axis in world space.
func (t Transform) UnitAxisZ() Vec3 {
	return t.Rotation.Rotate(Vec3{Z: 1}).Normalized()
}

// AddTranslation returns a copy of t moved by offset.
func (t Transform) AddTranslation(offset Vec3) Transform {
	t.Translation = t.Translation.Add(offset)
	return t
}
