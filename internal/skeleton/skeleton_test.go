package skeleton_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/retarget/internal/pose"
	"github.com/banshee-data/retarget/internal/skeleton"
	"github.com/banshee-data/retarget/internal/testutil"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	one := []pose.Transform{pose.Identity()}
	two := pose.IdentityPose(2)

	tests := []struct {
		name   string
		params skeleton.Params
	}{
		{"length mismatch", skeleton.Params{Joints: []string{"a", "b"}, ParentJoints: []string{""}, TPose: two}},
		{"empty name", skeleton.Params{Joints: []string{""}, ParentJoints: []string{""}, TPose: one}},
		{"duplicate", skeleton.Params{Joints: []string{"a", "a"}, ParentJoints: []string{"", "a"}, TPose: two}},
		{"missing parent", skeleton.Params{Joints: []string{"a", "b"}, ParentJoints: []string{"", "x"}, TPose: two}},
		{"cycle", skeleton.Params{Joints: []string{"a", "b"}, ParentJoints: []string{"b", "a"}, TPose: two}},
		{"unknown known joint", skeleton.Params{Joints: []string{"a"}, ParentJoints: []string{""}, TPose: one,
			KnownJoints: map[skeleton.KnownJointType]string{skeleton.Hips: "nope"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := skeleton.New(tt.params)
			assert.Error(t, err)
		})
	}
}

func TestParentAfterChild(t *testing.T) {
	t.Parallel()

	d, err := skeleton.New(skeleton.Params{
		Joints:       []string{"hand", "root", "arm"},
		ParentJoints: []string{"arm", "", "root"},
		TPose: []pose.Transform{
			pose.At(r3.Vec{X: 1}),
			pose.At(r3.Vec{Y: 1}),
			pose.At(r3.Vec{X: 2}),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, -1, 1}, d.ParentIndices())

	world := d.WorldTPose(skeleton.TPoseUnscaled)
	assert.Empty(t, cmp.Diff(r3.Vec{X: 3, Y: 1}, world[0].Position, approx))
}

func TestKnownJoints(t *testing.T) {
	t.Parallel()

	d := testutil.MustHumanoid(t, skeleton.Source, testutil.HumanoidOptions{Fingers: true})
	wrist := d.KnownIndex(skeleton.LeftWrist)
	require.NotEqual(t, skeleton.NoJoint, wrist)

	k, ok := d.Known().TypeOf(wrist)
	assert.True(t, ok)
	assert.Equal(t, skeleton.LeftWrist, k)

	assert.True(t, d.IsBelow(d.IndexOf("LeftHandThumb2"), skeleton.LeftWrist))
	assert.False(t, d.IsBelow(wrist, skeleton.LeftWrist))
	assert.False(t, d.IsBelow(d.IndexOf("RightHandThumb2"), skeleton.LeftWrist))

	require.NoError(t, d.RenameKnownJoint(skeleton.Chest, "Spine"))
	assert.Equal(t, d.IndexOf("Spine"), d.KnownIndex(skeleton.Chest))
	require.NoError(t, d.RenameKnownJoint(skeleton.Chest, ""))
	assert.False(t, d.Known().Has(skeleton.Chest))
	assert.ErrorIs(t, d.RenameKnownJoint(skeleton.Chest, "Missing"), skeleton.ErrJointNotFound)

	for k := skeleton.KnownJointType(0); k < skeleton.KnownJointCount; k++ {
		parsed, err := skeleton.ParseKnownJointType(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	assert.Equal(t, skeleton.Right, skeleton.Left.Opposite())
	assert.Equal(t, skeleton.RightAnkle, skeleton.Right.Ankle())
}

func TestAddRemoveJoint(t *testing.T) {
	t.Parallel()

	d := testutil.MustHumanoid(t, skeleton.Target, testutil.HumanoidOptions{})
	before := d.WorldTPose(skeleton.TPoseUnscaled)
	lowerArm := d.IndexOf("LeftLowerArm")
	wristWorld := before[d.IndexOf("LeftWrist")].Position

	require.NoError(t, d.AddJoint("LeftElbowHelper", "LeftLowerArm", pose.At(r3.Vec{X: 0.01})))
	assert.Equal(t, 23, d.JointCount())
	assert.Equal(t, lowerArm, d.Parent(d.IndexOf("LeftElbowHelper")))
	assert.Error(t, d.AddJoint("LeftElbowHelper", "", pose.Identity()))
	assert.ErrorIs(t, d.AddJoint("X", "Nowhere", pose.Identity()), skeleton.ErrJointNotFound)

	wristKnown := d.KnownIndex(skeleton.LeftWrist)
	require.NoError(t, d.RemoveJoint("LeftLowerArm"))
	assert.Equal(t, skeleton.NoJoint, d.IndexOf("LeftLowerArm"))
	assert.Equal(t, skeleton.NoJoint, d.KnownIndex(skeleton.LeftLowerArm))
	assert.Equal(t, wristKnown-1, d.KnownIndex(skeleton.LeftWrist))
	assert.Equal(t, "LeftUpperArm", d.JointName(d.Parent(d.IndexOf("LeftWrist"))))

	after := d.WorldTPose(skeleton.TPoseUnscaled)
	assert.Empty(t, cmp.Diff(wristWorld, after[d.IndexOf("LeftWrist")].Position, approx))

	assert.ErrorIs(t, d.RemoveJoint("LeftLowerArm"), skeleton.ErrJointNotFound)
}

func TestSetWorldTPose(t *testing.T) {
	t.Parallel()

	d := testutil.MustHumanoid(t, skeleton.Target, testutil.HumanoidOptions{})
	world := d.WorldTPose(skeleton.TPoseUnscaled)
	world[d.IndexOf("Head")].Position.Y += 0.1
	require.NoError(t, d.SetWorldTPose(skeleton.TPoseUnscaled, world))

	got := d.WorldTPose(skeleton.TPoseUnscaled)
	assert.Empty(t, cmp.Diff(world, got, approx))
	assert.Error(t, d.SetTPose(skeleton.TPoseMin, nil))
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	d := testutil.MustHumanoid(t, skeleton.Target, testutil.HumanoidOptions{Twist: true})
	data, err := json.Marshal(d)
	require.NoError(t, err)

	var got skeleton.Description
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, skeleton.Target, got.Type())
	assert.Equal(t, d.Joints(), got.Joints())
	assert.Equal(t, d.ParentIndices(), got.ParentIndices())
	assert.Equal(t, d.Known(), got.Known())
	for _, tp := range []skeleton.TPoseType{skeleton.TPoseUnscaled, skeleton.TPoseMin, skeleton.TPoseMax} {
		assert.Empty(t, cmp.Diff(d.TPose(tp), got.TPose(tp), approx), tp.String())
	}
}
