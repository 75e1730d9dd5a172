package pose

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Angle conversion factors.
const (
	DegToRad = math.Pi / 180
	RadToDeg = 180 / math.Pi
)

const epsilon = 1e-9

// Axes in the joint's local frame, matching the usual Y-up, Z-forward convention.
var (
	Right   = r3.Vec{X: 1}
	Up      = r3.Vec{Y: 1}
	Forward = r3.Vec{Z: 1}
)

// IdentityRotation returns the unit quaternion with no rotation.
func IdentityRotation() quat.Number { return quat.Number{Real: 1} }

// One returns the unit scale vector.
func One() r3.Vec { return r3.Vec{X: 1, Y: 1, Z: 1} }

// Uniform returns the vector (s, s, s).
func Uniform(s float64) r3.Vec { return r3.Vec{X: s, Y: s, Z: s} }

// Rotate applies rotation q to v.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	return r3.Rotation(q).Rotate(v)
}

// Inverse returns the inverse rotation of q.
func Inverse(q quat.Number) quat.Number {
	if q == (quat.Number{}) {
		return IdentityRotation()
	}
	return quat.Inv(q)
}

// Normalize returns q scaled to unit length. The zero quaternion maps to identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n < epsilon {
		return IdentityRotation()
	}
	return quat.Scale(1/n, q)
}

// Mul composes rotations left to right: Mul(a, b, c) applies c, then b, then a.
func Mul(qs ...quat.Number) quat.Number {
	r := IdentityRotation()
	for _, q := range qs {
		r = quat.Mul(r, q)
	}
	return r
}

// AngleAxis returns the rotation of degrees around axis.
func AngleAxis(degrees float64, axis r3.Vec) quat.Number {
	if degrees == 0 || r3.Norm2(axis) < epsilon {
		return IdentityRotation()
	}
	return quat.Number(r3.NewRotation(degrees*DegToRad, r3.Unit(axis)))
}

func qdot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// Angle returns the angle in degrees between two orientations.
func Angle(a, b quat.Number) float64 {
	na, nb := quat.Abs(a), quat.Abs(b)
	if na < epsilon || nb < epsilon {
		return 0
	}
	d := math.Abs(qdot(a, b)) / (na * nb)
	if d > 1 {
		d = 1
	}
	return 2 * math.Acos(d) * RadToDeg
}

// FromToRotation returns the shortest rotation taking direction from onto direction to.
func FromToRotation(from, to r3.Vec) quat.Number {
	if r3.Norm2(from) < epsilon || r3.Norm2(to) < epsilon {
		return IdentityRotation()
	}
	f, t := r3.Unit(from), r3.Unit(to)
	d := r3.Dot(f, t)
	if d >= 1-epsilon {
		return IdentityRotation()
	}
	if d <= -1+epsilon {
		axis := r3.Cross(Right, f)
		if r3.Norm2(axis) < epsilon {
			axis = r3.Cross(Up, f)
		}
		return AngleAxis(180, axis)
	}
	c := r3.Cross(f, t)
	return Normalize(quat.Number{Real: 1 + d, Imag: c.X, Jmag: c.Y, Kmag: c.Z})
}

// Slerp spherically interpolates between a and b along the shortest arc.
func Slerp(a, b quat.Number, t float64) quat.Number {
	d := qdot(a, b)
	if d < 0 {
		b = quat.Scale(-1, b)
		d = -d
	}
	if d > 0.9995 {
		return Normalize(quat.Add(a, quat.Scale(t, quat.Sub(b, a))))
	}
	theta := math.Acos(d)
	s := math.Sin(theta)
	return quat.Add(
		quat.Scale(math.Sin((1-t)*theta)/s, a),
		quat.Scale(math.Sin(t*theta)/s, b),
	)
}

// Lerp linearly interpolates between a and b.
func Lerp(a, b r3.Vec, t float64) r3.Vec {
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}

// MulElem returns the component-wise product of a and b.
func MulElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: a.X * b.X, Y: a.Y * b.Y, Z: a.Z * b.Z}
}

// DivElem returns the component-wise quotient a / b. Zero components of b
// leave the matching component of a unchanged.
func DivElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: safeDiv(a.X, b.X), Y: safeDiv(a.Y, b.Y), Z: safeDiv(a.Z, b.Z)}
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return a
	}
	return a / b
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b r3.Vec) float64 {
	return r3.Norm(r3.Sub(a, b))
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
