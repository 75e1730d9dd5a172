package alignment

import (
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/retarget/internal/pose"
	"github.com/banshee-data/retarget/internal/skeleton"
)

// Rig is an editable world-space copy of a skeleton's T-pose. Edits move
// whole subtrees; Commit writes the result back to the description.
type Rig struct {
	desc  *skeleton.Description
	World []pose.Transform
}

// NewRig loads the world-space T-pose variant t of d.
func NewRig(d *skeleton.Description, t skeleton.TPoseType) *Rig {
	return &Rig{desc: d, World: d.WorldTPose(t)}
}

// Description returns the skeleton the rig edits.
func (r *Rig) Description() *skeleton.Description { return r.desc }

// Known returns the index bound to k, or skeleton.NoJoint.
func (r *Rig) Known(k skeleton.KnownJointType) int { return r.desc.KnownIndex(k) }

// Position returns the world position of joint i.
func (r *Rig) Position(i int) r3.Vec { return r.World[i].Position }

// SetWorldRotation sets the world orientation of joint i, carrying its
// descendants rigidly around the joint.
func (r *Rig) SetWorldRotation(i int, q quat.Number) {
	delta := pose.Mul(q, pose.Inverse(r.World[i].Orientation))
	pivot := r.World[i].Position
	for _, d := range r.desc.Hierarchy().Descendants(i) {
		w := &r.World[d]
		w.Position = r3.Add(pivot, pose.Rotate(delta, r3.Sub(w.Position, pivot)))
		w.Orientation = pose.Normalize(pose.Mul(delta, w.Orientation))
	}
	r.World[i].Orientation = pose.Normalize(q)
}

// SetWorldPosition moves joint i to p, translating its descendants with it.
func (r *Rig) SetWorldPosition(i int, p r3.Vec) {
	offset := r3.Sub(p, r.World[i].Position)
	r.World[i].Position = p
	for _, d := range r.desc.Hierarchy().Descendants(i) {
		r.World[d].Position = r3.Add(r.World[d].Position, offset)
	}
}

// ScaleSubtree scales the offsets of joint i's descendants from joint i by s.
func (r *Rig) ScaleSubtree(i int, s float64) {
	pivot := r.World[i].Position
	for _, d := range r.desc.Hierarchy().Descendants(i) {
		r.World[d].Position = r3.Add(pivot, r3.Scale(s, r3.Sub(r.World[d].Position, pivot)))
	}
}

// Local returns the rig in parent-relative local space.
func (r *Rig) Local() []pose.Transform {
	local := make([]pose.Transform, len(r.World))
	_ = r.desc.Hierarchy().WorldToLocal(local, r.World, pose.IdentityRoot())
	return local
}

// SetLocal replaces the rig from a parent-relative local pose.
func (r *Rig) SetLocal(local []pose.Transform) error {
	if len(local) != len(r.World) {
		return fmt.Errorf("local pose length %d, want %d", len(local), len(r.World))
	}
	return r.desc.Hierarchy().LocalToWorld(r.World, local, pose.IdentityRoot())
}

// Commit stores the rig as T-pose variant t of the description.
func (r *Rig) Commit(t skeleton.TPoseType) error {
	return r.desc.SetWorldTPose(t, r.World)
}
