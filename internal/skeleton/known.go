package skeleton

import "fmt"

// NoJoint is the index reported for a known joint the skeleton lacks.
const NoJoint = -1

// KnownJointType is a skeleton-independent joint role.
type KnownJointType int

const (
	Root KnownJointType = iota
	Hips
	Chest
	Neck
	Head
	LeftShoulder
	RightShoulder
	LeftUpperArm
	RightUpperArm
	LeftLowerArm
	RightLowerArm
	LeftWrist
	RightWrist
	LeftUpperLeg
	RightUpperLeg
	LeftLowerLeg
	RightLowerLeg
	LeftAnkle
	RightAnkle

	// KnownJointCount is the number of known joint types.
	KnownJointCount
)

var knownJointNames = [KnownJointCount]string{
	Root:          "Root",
	Hips:          "Hips",
	Chest:         "Chest",
	Neck:          "Neck",
	Head:          "Head",
	LeftShoulder:  "LeftShoulder",
	RightShoulder: "RightShoulder",
	LeftUpperArm:  "LeftUpperArm",
	RightUpperArm: "RightUpperArm",
	LeftLowerArm:  "LeftLowerArm",
	RightLowerArm: "RightLowerArm",
	LeftWrist:     "LeftWrist",
	RightWrist:    "RightWrist",
	LeftUpperLeg:  "LeftUpperLeg",
	RightUpperLeg: "RightUpperLeg",
	LeftLowerLeg:  "LeftLowerLeg",
	RightLowerLeg: "RightLowerLeg",
	LeftAnkle:     "LeftAnkle",
	RightAnkle:    "RightAnkle",
}

func (k KnownJointType) String() string {
	if k < 0 || k >= KnownJointCount {
		return fmt.Sprintf("KnownJointType(%d)", int(k))
	}
	return knownJointNames[k]
}

// ParseKnownJointType returns the known joint type named s.
func ParseKnownJointType(s string) (KnownJointType, error) {
	for k, name := range knownJointNames {
		if name == s {
			return KnownJointType(k), nil
		}
	}
	return 0, fmt.Errorf("unknown known joint type %q", s)
}

// KnownJointTable resolves known joint types to skeleton joint indices.
// Missing joints hold NoJoint.
type KnownJointTable [KnownJointCount]int

// NewKnownJointTable returns a table with every entry set to NoJoint.
func NewKnownJointTable() KnownJointTable {
	var t KnownJointTable
	for i := range t {
		t[i] = NoJoint
	}
	return t
}

// Index returns the joint index for k, or NoJoint.
func (t KnownJointTable) Index(k KnownJointType) int {
	if k < 0 || k >= KnownJointCount {
		return NoJoint
	}
	return t[k]
}

// Has reports whether k resolves to a joint.
func (t KnownJointTable) Has(k KnownJointType) bool { return t.Index(k) != NoJoint }

// TypeOf returns the known joint type bound to joint i.
func (t KnownJointTable) TypeOf(i int) (KnownJointType, bool) {
	for k, idx := range t {
		if idx == i && idx != NoJoint {
			return KnownJointType(k), true
		}
	}
	return 0, false
}

// Side selects the left or right limb.
type Side int

const (
	Left Side = iota
	Right
)

// Sides lists both sides, left first.
var Sides = [...]Side{Left, Right}

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// Opposite returns the other side.
func (s Side) Opposite() Side { return 1 - s }

func (s Side) pick(left, right KnownJointType) KnownJointType {
	if s == Left {
		return left
	}
	return right
}

func (s Side) Shoulder() KnownJointType { return s.pick(LeftShoulder, RightShoulder) }
func (s Side) UpperArm() KnownJointType { return s.pick(LeftUpperArm, RightUpperArm) }
func (s Side) LowerArm() KnownJointType { return s.pick(LeftLowerArm, RightLowerArm) }
func (s Side) Wrist() KnownJointType    { return s.pick(LeftWrist, RightWrist) }
func (s Side) UpperLeg() KnownJointType { return s.pick(LeftUpperLeg, RightUpperLeg) }
func (s Side) LowerLeg() KnownJointType { return s.pick(LeftLowerLeg, RightLowerLeg) }
func (s Side) Ankle() KnownJointType    { return s.pick(LeftAnkle, RightAnkle) }
