package pose

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is a joint pose: position, orientation and scale. It is a value
// type and is copied freely.
type Transform struct {
	Position    r3.Vec
	Orientation quat.Number
	Scale       r3.Vec
}

// Identity returns the identity transform (unit scale, no rotation).
func Identity() Transform {
	return Transform{Orientation: IdentityRotation(), Scale: One()}
}

// New returns a transform with the given position and orientation and unit scale.
func New(position r3.Vec, orientation quat.Number) Transform {
	return Transform{Position: position, Orientation: orientation, Scale: One()}
}

// At returns an identity-oriented, unit-scale transform at position p.
func At(p r3.Vec) Transform {
	return New(p, IdentityRotation())
}

// IdentityPose returns n identity transforms.
func IdentityPose(n int) []Transform {
	p := make([]Transform, n)
	for i := range p {
		p[i] = Identity()
	}
	return p
}

// Clone returns a copy of p.
func Clone(p []Transform) []Transform {
	if p == nil {
		return nil
	}
	out := make([]Transform, len(p))
	copy(out, p)
	return out
}
