// Package testutil provides shared test fixtures: procedurally built
// humanoid skeletons with twist, palm and finger joints.
package testutil

import (
	"fmt"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/retarget/internal/pose"
	"github.com/banshee-data/retarget/internal/skeleton"
)

// HumanoidOptions controls the proportions of a generated humanoid.
type HumanoidOptions struct {
	Scale    float64 // uniform scale of the whole body; 0 means 1
	ArmScale float64 // extra scale on arm segment lengths; 0 means 1
	Fingers  bool    // include five three-segment fingers and a tip per hand
	Twist    bool    // include a forearm twist joint and a palm joint per hand
}

// Fingers lists finger names in thumb-to-little order.
var Fingers = []string{"Thumb", "Index", "Middle", "Ring", "Little"}

type jointSpec struct {
	name, parent string
	world        r3.Vec
}

// HumanoidJoints returns the joint names, parent names and world-space
// T-pose positions of a humanoid built with opts. +X is the character's left.
func HumanoidJoints(opts HumanoidOptions) (names, parents []string, world []r3.Vec) {
	s := opts.Scale
	if s == 0 {
		s = 1
	}
	arm := opts.ArmScale
	if arm == 0 {
		arm = 1
	}

	specs := []jointSpec{
		{"Root", "", r3.Vec{}},
		{"Hips", "Root", r3.Vec{Y: 1.0}},
		{"Spine", "Hips", r3.Vec{Y: 1.2}},
		{"Chest", "Spine", r3.Vec{Y: 1.4}},
		{"Neck", "Chest", r3.Vec{Y: 1.6}},
		{"Head", "Neck", r3.Vec{Y: 1.75}},
	}
	for _, side := range []string{"Left", "Right"} {
		x := 1.0
		if side == "Right" {
			x = -1
		}
		shoulderX := 0.05
		upperX := 0.2
		lowerX := upperX + 0.3*arm
		wristX := lowerX + 0.3*arm
		specs = append(specs,
			jointSpec{side + "Shoulder", "Chest", r3.Vec{X: x * shoulderX, Y: 1.55}},
			jointSpec{side + "UpperArm", side + "Shoulder", r3.Vec{X: x * upperX, Y: 1.55}},
			jointSpec{side + "LowerArm", side + "UpperArm", r3.Vec{X: x * lowerX, Y: 1.55}},
			jointSpec{side + "Wrist", side + "LowerArm", r3.Vec{X: x * wristX, Y: 1.55}},
		)
		if opts.Twist {
			specs = append(specs,
				jointSpec{side + "ForearmTwist", side + "LowerArm", r3.Vec{X: x * (lowerX + wristX) / 2, Y: 1.55}},
				jointSpec{side + "Palm", side + "Wrist", r3.Vec{X: x * (wristX + 0.05), Y: 1.55}},
			)
		}
		if opts.Fingers {
			for f, finger := range Fingers {
				z := 0.04 - 0.02*float64(f)
				parent := side + "Wrist"
				fx := wristX + 0.08
				for seg, length := range []float64{0, 0.03, 0.03, 0.02} {
					fx += length
					name := fmt.Sprintf("%sHand%s%d", side, finger, seg+1)
					if seg == 3 {
						name = fmt.Sprintf("%sHand%sTip", side, finger)
					}
					specs = append(specs, jointSpec{name, parent, r3.Vec{X: x * fx, Y: 1.55, Z: z}})
					parent = name
				}
			}
		}
		specs = append(specs,
			jointSpec{side + "UpperLeg", "Hips", r3.Vec{X: x * 0.1, Y: 0.95}},
			jointSpec{side + "LowerLeg", side + "UpperLeg", r3.Vec{X: x * 0.1, Y: 0.5}},
			jointSpec{side + "Ankle", side + "LowerLeg", r3.Vec{X: x * 0.1, Y: 0.08}},
			jointSpec{side + "Toe", side + "Ankle", r3.Vec{X: x * 0.1, Z: 0.12}},
		)
	}

	for _, sp := range specs {
		names = append(names, sp.name)
		parents = append(parents, sp.parent)
		world = append(world, r3.Scale(s, sp.world))
	}
	return names, parents, world
}

// HumanoidKnownJoints binds every known joint type to its humanoid joint.
func HumanoidKnownJoints() map[skeleton.KnownJointType]string {
	known := make(map[skeleton.KnownJointType]string, skeleton.KnownJointCount)
	for k := skeleton.KnownJointType(0); k < skeleton.KnownJointCount; k++ {
		known[k] = k.String()
	}
	return known
}

// Humanoid builds a humanoid skeleton description with identity joint
// orientations. TPoseMin and TPoseMax are the T-pose scaled by 0.9 and 1.1.
func Humanoid(typ skeleton.Type, opts HumanoidOptions) (*skeleton.Description, error) {
	names, parents, world := HumanoidJoints(opts)
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	local := make([]pose.Transform, len(names))
	minT := make([]pose.Transform, len(names))
	maxT := make([]pose.Transform, len(names))
	for i := range names {
		p := world[i]
		if parents[i] != "" {
			p = r3.Sub(world[i], world[index[parents[i]]])
		}
		local[i] = pose.At(p)
		minT[i] = pose.At(r3.Scale(0.9, p))
		maxT[i] = pose.At(r3.Scale(1.1, p))
	}
	return skeleton.New(skeleton.Params{
		Type:         typ,
		Joints:       names,
		ParentJoints: parents,
		TPose:        local,
		TPoseMin:     minT,
		TPoseMax:     maxT,
		KnownJoints:  HumanoidKnownJoints(),
	})
}

// MustHumanoid is Humanoid for tests; it fails t on error.
func MustHumanoid(t testing.TB, typ skeleton.Type, opts HumanoidOptions) *skeleton.Description {
	t.Helper()
	d, err := Humanoid(typ, opts)
	if err != nil {
		t.Fatalf("build humanoid: %v", err)
	}
	return d
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
