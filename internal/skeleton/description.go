// Package skeleton describes a joint hierarchy: joint names, parent links,
// known joint roles and the three T-pose variants used for retargeting.
package skeleton

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/retarget/internal/pose"
)

// Type says which side of the retargeting a skeleton is on.
type Type int

const (
	Source Type = iota
	Target
)

func (t Type) String() string {
	if t == Source {
		return "source"
	}
	return "target"
}

// ParseType parses "source" or "target".
func ParseType(s string) (Type, error) {
	switch s {
	case "source":
		return Source, nil
	case "target":
		return Target, nil
	}
	return 0, fmt.Errorf("unknown skeleton type %q", s)
}

// TPoseType selects a T-pose variant.
type TPoseType int

const (
	TPoseUnscaled TPoseType = iota
	TPoseMin
	TPoseMax

	tposeCount
)

func (t TPoseType) String() string {
	switch t {
	case TPoseUnscaled:
		return "unscaled"
	case TPoseMin:
		return "min"
	case TPoseMax:
		return "max"
	}
	return fmt.Sprintf("TPoseType(%d)", int(t))
}

// ParseTPoseType parses "unscaled", "min" or "max".
func ParseTPoseType(s string) (TPoseType, error) {
	for t := TPoseUnscaled; t < tposeCount; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown T-pose variant %q", s)
}

// ErrJointNotFound is returned when a joint name does not resolve.
var ErrJointNotFound = errors.New("joint not found")

// Description is a skeleton: parallel arrays of joint names, parent names
// and local-space T-poses, indexed by joint id. It is mutated only through
// AddJoint, RemoveJoint, RenameKnownJoint and SetTPose.
type Description struct {
	typ          Type
	joints       []string
	parentJoints []string
	tposes       [tposeCount][]pose.Transform
	known        KnownJointTable

	index     map[string]int
	hierarchy *pose.Hierarchy
}

// Params holds the inputs to New. TPoseMin and TPoseMax default to copies
// of TPose when nil.
type Params struct {
	Type         Type
	Joints       []string
	ParentJoints []string
	TPose        []pose.Transform
	TPoseMin     []pose.Transform
	TPoseMax     []pose.Transform
	KnownJoints  map[KnownJointType]string
}

// New builds and validates a skeleton description.
func New(p Params) (*Description, error) {
	n := len(p.Joints)
	if p.TPoseMin == nil {
		p.TPoseMin = p.TPose
	}
	if p.TPoseMax == nil {
		p.TPoseMax = p.TPose
	}
	if len(p.ParentJoints) != n || len(p.TPose) != n || len(p.TPoseMin) != n || len(p.TPoseMax) != n {
		return nil, fmt.Errorf("%s skeleton: length mismatch: joints=%d parents=%d tpose=%d tpose_min=%d tpose_max=%d",
			p.Type, n, len(p.ParentJoints), len(p.TPose), len(p.TPoseMin), len(p.TPoseMax))
	}

	d := &Description{
		typ:          p.Type,
		joints:       append([]string(nil), p.Joints...),
		parentJoints: append([]string(nil), p.ParentJoints...),
	}
	d.tposes[TPoseUnscaled] = pose.Clone(p.TPose)
	d.tposes[TPoseMin] = pose.Clone(p.TPoseMin)
	d.tposes[TPoseMax] = pose.Clone(p.TPoseMax)
	if err := d.rebuild(); err != nil {
		return nil, err
	}

	d.known = NewKnownJointTable()
	for k, name := range p.KnownJoints {
		if err := d.RenameKnownJoint(k, name); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// rebuild recomputes the name index and hierarchy from the joint arrays.
func (d *Description) rebuild() error {
	d.index = make(map[string]int, len(d.joints))
	for i, name := range d.joints {
		if name == "" {
			return fmt.Errorf("%s skeleton: joint %d has an empty name", d.typ, i)
		}
		if _, dup := d.index[name]; dup {
			return fmt.Errorf("%s skeleton: duplicate joint name %q", d.typ, name)
		}
		d.index[name] = i
	}
	parents := make([]int, len(d.joints))
	for i, pn := range d.parentJoints {
		if pn == "" {
			parents[i] = pose.NoParent
			continue
		}
		p, ok := d.index[pn]
		if !ok {
			return fmt.Errorf("%s skeleton: joint %q: parent %q: %w", d.typ, d.joints[i], pn, ErrJointNotFound)
		}
		parents[i] = p
	}
	h, err := pose.NewHierarchy(parents)
	if err != nil {
		return fmt.Errorf("%s skeleton: %w", d.typ, err)
	}
	d.hierarchy = h
	return nil
}

// Type returns whether this is the source or target skeleton.
func (d *Description) Type() Type { return d.typ }

// JointCount returns the number of joints.
func (d *Description) JointCount() int { return len(d.joints) }

// Joints returns a copy of the joint names.
func (d *Description) Joints() []string { return append([]string(nil), d.joints...) }

// ParentJoints returns a copy of the parent names; roots have "".
func (d *Description) ParentJoints() []string { return append([]string(nil), d.parentJoints...) }

// JointName returns the name of joint i.
func (d *Description) JointName(i int) string { return d.joints[i] }

// IndexOf returns the index of the named joint, or NoJoint.
func (d *Description) IndexOf(name string) int {
	if i, ok := d.index[name]; ok {
		return i
	}
	return NoJoint
}

// Hierarchy returns the validated parent hierarchy.
func (d *Description) Hierarchy() *pose.Hierarchy { return d.hierarchy }

// ParentIndices returns a copy of the parent-index array.
func (d *Description) ParentIndices() []int { return d.hierarchy.Parents() }

// Parent returns the parent index of joint i, or NoJoint.
func (d *Description) Parent(i int) int { return d.hierarchy.Parent(i) }

// Known returns the known joint table.
func (d *Description) Known() KnownJointTable { return d.known }

// KnownIndex returns the index bound to k, or NoJoint.
func (d *Description) KnownIndex(k KnownJointType) int { return d.known.Index(k) }

// IsBelow reports whether joint i is a strict descendant of known joint k.
func (d *Description) IsBelow(i int, k KnownJointType) bool {
	a := d.known.Index(k)
	return a != NoJoint && d.hierarchy.IsAncestor(a, i)
}

// TPose returns a copy of the local-space T-pose variant.
func (d *Description) TPose(t TPoseType) []pose.Transform {
	return pose.Clone(d.tposes[t])
}

// WorldTPose returns the T-pose variant composed into world space at the origin.
func (d *Description) WorldTPose(t TPoseType) []pose.Transform {
	world := make([]pose.Transform, len(d.joints))
	// Lengths are validated at construction.
	_ = d.hierarchy.LocalToWorld(world, d.tposes[t], pose.IdentityRoot())
	return world
}

// SetTPose replaces a T-pose variant.
func (d *Description) SetTPose(t TPoseType, local []pose.Transform) error {
	if t < 0 || t >= tposeCount {
		return fmt.Errorf("invalid T-pose type %d", int(t))
	}
	if len(local) != len(d.joints) {
		return fmt.Errorf("%s skeleton: T-pose length %d, want %d", d.typ, len(local), len(d.joints))
	}
	d.tposes[t] = pose.Clone(local)
	return nil
}

// SetWorldTPose replaces a T-pose variant from a world-space pose.
func (d *Description) SetWorldTPose(t TPoseType, world []pose.Transform) error {
	if len(world) != len(d.joints) {
		return fmt.Errorf("%s skeleton: T-pose length %d, want %d", d.typ, len(world), len(d.joints))
	}
	local := make([]pose.Transform, len(world))
	if err := d.hierarchy.WorldToLocal(local, world, pose.IdentityRoot()); err != nil {
		return err
	}
	return d.SetTPose(t, local)
}

// RenameKnownJoint binds known joint k to the named joint. An empty name
// clears the binding.
func (d *Description) RenameKnownJoint(k KnownJointType, name string) error {
	if k < 0 || k >= KnownJointCount {
		return fmt.Errorf("invalid known joint type %d", int(k))
	}
	if name == "" {
		d.known[k] = NoJoint
		return nil
	}
	i, ok := d.index[name]
	if !ok {
		return fmt.Errorf("%s skeleton: known joint %s -> %q: %w", d.typ, k, name, ErrJointNotFound)
	}
	d.known[k] = i
	return nil
}

// AddJoint appends a joint under parent ("" for a new root) with the same
// local transform in every T-pose variant.
func (d *Description) AddJoint(name, parent string, local pose.Transform) error {
	if _, dup := d.index[name]; dup {
		return fmt.Errorf("%s skeleton: duplicate joint name %q", d.typ, name)
	}
	if parent != "" {
		if _, ok := d.index[parent]; !ok {
			return fmt.Errorf("%s skeleton: parent %q: %w", d.typ, parent, ErrJointNotFound)
		}
	}
	d.joints = append(d.joints, name)
	d.parentJoints = append(d.parentJoints, parent)
	for t := range d.tposes {
		d.tposes[t] = append(d.tposes[t], local)
	}
	return d.rebuild()
}

// RemoveJoint deletes the named joint. Its children are re-parented to its
// parent with their local T-poses composed so their world poses are kept.
func (d *Description) RemoveJoint(name string) error {
	r, ok := d.index[name]
	if !ok {
		return fmt.Errorf("%s skeleton: remove %q: %w", d.typ, name, ErrJointNotFound)
	}
	newParent := d.parentJoints[r]
	for i, pn := range d.parentJoints {
		if pn != name {
			continue
		}
		d.parentJoints[i] = newParent
		for t := range d.tposes {
			d.tposes[t][i] = compose(d.tposes[t][r], d.tposes[t][i])
		}
	}

	d.joints = append(d.joints[:r], d.joints[r+1:]...)
	d.parentJoints = append(d.parentJoints[:r], d.parentJoints[r+1:]...)
	for t := range d.tposes {
		d.tposes[t] = append(d.tposes[t][:r], d.tposes[t][r+1:]...)
	}
	for k, idx := range d.known {
		switch {
		case idx == r:
			d.known[k] = NoJoint
		case idx > r:
			d.known[k] = idx - 1
		}
	}
	return d.rebuild()
}

// compose returns the local transform of child expressed in parent's parent frame.
func compose(parent, child pose.Transform) pose.Transform {
	return pose.Transform{
		Position:    r3.Add(parent.Position, pose.Rotate(parent.Orientation, child.Position)),
		Orientation: quat.Mul(parent.Orientation, child.Orientation),
		Scale:       child.Scale,
	}
}
