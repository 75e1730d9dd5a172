package pose

import (
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Root is the placement of a pose's root joints: a world offset, a rotation
// and the uniform hierarchical scale inherited by every level.
type Root struct {
	Position r3.Vec
	Rotation quat.Number
	Scale    r3.Vec
}

// IdentityRoot places the pose at the origin with unit scale.
func IdentityRoot() Root {
	return Root{Rotation: IdentityRotation(), Scale: One()}
}

// ScaledRoot is IdentityRoot with scale s.
func ScaledRoot(s r3.Vec) Root {
	return Root{Rotation: IdentityRotation(), Scale: s}
}

func (h *Hierarchy) checkLen(dst, src []Transform) error {
	if len(src) != h.Len() || len(dst) != h.Len() {
		return fmt.Errorf("pose length mismatch: hierarchy=%d src=%d dst=%d", h.Len(), len(src), len(dst))
	}
	return nil
}

// WorldToLocal converts a world-space pose to parent-relative local space.
// Local positions are divided by root.Scale; root joints are expressed
// relative to root.Position and root.Rotation. Joint scale passes through.
// dst may alias world.
func (h *Hierarchy) WorldToLocal(dst, world []Transform, root Root) error {
	if err := h.checkLen(dst, world); err != nil {
		return err
	}
	invRoot := Inverse(root.Rotation)
	// Children first, so a parent's world value is still readable when dst
	// aliases world.
	for k := len(h.order) - 1; k >= 0; k-- {
		i := h.order[k]
		w := world[i]
		origin, inv := root.Position, invRoot
		if p := h.parents[i]; p != NoParent {
			origin, inv = world[p].Position, Inverse(world[p].Orientation)
		}
		dst[i] = Transform{
			Position:    DivElem(Rotate(inv, r3.Sub(w.Position, origin)), root.Scale),
			Orientation: quat.Mul(inv, w.Orientation),
			Scale:       w.Scale,
		}
	}
	return nil
}

// LocalToWorld composes a parent-relative pose into world space. The root
// scale, not per-joint scale, is applied at every level. dst may alias local.
func (h *Hierarchy) LocalToWorld(dst, local []Transform, root Root) error {
	if err := h.checkLen(dst, local); err != nil {
		return err
	}
	for _, i := range h.order {
		l := local[i]
		origin, rot := root.Position, root.Rotation
		if p := h.parents[i]; p != NoParent {
			origin, rot = dst[p].Position, dst[p].Orientation
		}
		dst[i] = Transform{
			Position:    r3.Add(origin, Rotate(rot, MulElem(l.Position, root.Scale))),
			Orientation: quat.Mul(rot, l.Orientation),
			Scale:       l.Scale,
		}
	}
	return nil
}
