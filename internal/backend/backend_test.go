package backend

import (
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/retarget/internal/mapping"
	"github.com/banshee-data/retarget/internal/pose"
	"github.com/banshee-data/retarget/internal/skeleton"
	"github.com/banshee-data/retarget/internal/testutil"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func humanoidConfig(t *testing.T, srcOpts, tgtOpts testutil.HumanoidOptions) (*ConfigInitParams, []byte) {
	t.Helper()
	src := testutil.MustHumanoid(t, skeleton.Source, srcOpts)
	tgt := testutil.MustHumanoid(t, skeleton.Target, tgtOpts)
	p, err := NewConfigInitParams(src, tgt, mapping.DefaultOptions())
	require.NoError(t, err)
	data, err := p.Marshal()
	require.NoError(t, err)
	return p, data
}

func newHandle(t *testing.T, b *Reference, config []byte) Handle {
	t.Helper()
	h, err := b.CreateHandle(config)
	require.NoError(t, err)
	require.True(t, h.Valid())
	t.Cleanup(func() { _ = b.DestroyHandle(h) })
	return h
}

func TestConfigRoundTrip(t *testing.T) {
	t.Parallel()

	p, data := humanoidConfig(t, testutil.HumanoidOptions{Fingers: true}, testutil.HumanoidOptions{Twist: true})
	got, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, p.Source.Joints(), got.Source.Joints())
	assert.Equal(t, p.Target.Joints(), got.Target.Joints())
	assert.Empty(t, cmp.Diff(p.MinMappings, got.MinMappings, approx))
	assert.Empty(t, cmp.Diff(p.MaxMappings, got.MaxMappings, approx))
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	p, _ := humanoidConfig(t, testutil.HumanoidOptions{}, testutil.HumanoidOptions{})

	swapped := *p
	swapped.Source, swapped.Target = p.Target, p.Source
	assert.Error(t, swapped.Validate())

	missing := *p
	missing.MaxMappings = nil
	assert.Error(t, missing.Validate())

	broken := *p
	broken.MinMappings = p.MinMappings.Clone()
	broken.MinMappings.Entries[0].SourceJointIndex = 999
	assert.Error(t, broken.Validate())

	_, err := ParseConfig([]byte(`{"source":`))
	assert.Error(t, err)
}

func TestHandleLifecycle(t *testing.T) {
	t.Parallel()

	b := NewReference()
	_, data := humanoidConfig(t, testutil.HumanoidOptions{}, testutil.HumanoidOptions{Fingers: true})

	h, err := b.CreateHandle(data)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())

	n, err := b.JointCount(h, skeleton.Target)
	require.NoError(t, err)
	assert.Equal(t, 22+40, n)
	n, err = b.JointCount(h, skeleton.Source)
	require.NoError(t, err)
	assert.Equal(t, 22, n)

	parents, err := b.ParentIndices(h, skeleton.Source)
	require.NoError(t, err)
	assert.Equal(t, pose.NoParent, parents[0])

	idx, err := b.KnownJointIndex(h, skeleton.Target, skeleton.Head)
	require.NoError(t, err)
	assert.NotEqual(t, skeleton.NoJoint, idx)

	tp, err := b.TPose(h, skeleton.Target, skeleton.TPoseMax)
	require.NoError(t, err)
	assert.Len(t, tp, 62)
	_, err = b.TPose(h, skeleton.Target, skeleton.TPoseType(7))
	assert.Error(t, err)

	_, other := humanoidConfig(t, testutil.HumanoidOptions{}, testutil.HumanoidOptions{})
	require.NoError(t, b.UpdateHandle(h, other))
	n, err = b.JointCount(h, skeleton.Target)
	require.NoError(t, err)
	assert.Equal(t, 22, n)

	require.NoError(t, b.DestroyHandle(h))
	assert.ErrorIs(t, b.DestroyHandle(h), ErrUnknownHandle)
	assert.ErrorIs(t, b.UpdateHandle(h, other), ErrUnknownHandle)
	_, err = b.JointCount(h, skeleton.Source)
	assert.ErrorIs(t, err, ErrUnknownHandle)
	assert.Equal(t, 0, b.Len())

	_, err = b.CreateHandle([]byte("not json"))
	assert.Error(t, err)
}

func TestRetargetRigidMotion(t *testing.T) {
	t.Parallel()

	b := NewReference()
	p, data := humanoidConfig(t,
		testutil.HumanoidOptions{Fingers: true, Twist: true},
		testutil.HumanoidOptions{Fingers: true, Twist: true})
	h := newHandle(t, b, data)

	srcT := p.Source.WorldTPose(skeleton.TPoseUnscaled)
	tgtT := p.Target.WorldTPose(skeleton.TPoseUnscaled)
	rot := pose.AngleAxis(35, pose.Up)
	shift := r3.Vec{X: 0.5, Z: -2}

	move := func(in []pose.Transform) []pose.Transform {
		out := pose.Clone(in)
		for i := range out {
			out[i].Position = r3.Add(shift, pose.Rotate(rot, in[i].Position))
			out[i].Orientation = pose.Mul(rot, in[i].Orientation)
		}
		return out
	}

	dst := make([]pose.Transform, p.Target.JointCount())
	require.True(t, b.Retarget(h, BehaviorSettings{}, srcT, ManifestationFullBody, dst))
	assert.Empty(t, cmp.Diff(tgtT, dst, approx))

	require.True(t, b.Retarget(h, BehaviorSettings{}, move(srcT), ManifestationFullBody, dst))
	assert.Empty(t, cmp.Diff(move(tgtT), dst, approx, cmpopts.IgnoreFields(pose.Transform{}, "Orientation")))
	for i := range dst {
		assert.InDelta(t, 0, pose.Angle(rot, dst[i].Orientation), 1e-6, p.Target.JointName(i))
	}
}

func TestRetargetSingleMappedWrist(t *testing.T) {
	t.Parallel()

	build := func(typ skeleton.Type, wristX float64) *skeleton.Description {
		d, err := skeleton.New(skeleton.Params{
			Type:         typ,
			Joints:       []string{"Root", "Wrist"},
			ParentJoints: []string{"", "Root"},
			TPose:        []pose.Transform{pose.Identity(), pose.At(r3.Vec{X: wristX})},
			KnownJoints:  map[skeleton.KnownJointType]string{skeleton.Root: "Root", skeleton.LeftWrist: "Wrist"},
		})
		require.NoError(t, err)
		return d
	}
	p, err := NewConfigInitParams(build(skeleton.Source, 1), build(skeleton.Target, 2), mapping.DefaultOptions())
	require.NoError(t, err)
	data, err := p.Marshal()
	require.NoError(t, err)

	b := NewReference()
	h := newHandle(t, b, data)
	dst := make([]pose.Transform, 2)
	source := []pose.Transform{pose.Identity(), pose.At(r3.Vec{X: 1})}
	require.True(t, b.Retarget(h, BehaviorSettings{}, source, "", dst))
	assert.Empty(t, cmp.Diff(r3.Vec{X: 2}, dst[1].Position, approx))
}

func TestRetargetScale(t *testing.T) {
	t.Parallel()

	b := NewReference()
	p, data := humanoidConfig(t, testutil.HumanoidOptions{Scale: 2}, testutil.HumanoidOptions{})
	h := newHandle(t, b, data)

	dst := make([]pose.Transform, p.Target.JointCount())
	require.True(t, b.Retarget(h, BehaviorSettings{Scale: 2}, p.Source.WorldTPose(skeleton.TPoseUnscaled), "", dst))
	want := p.Target.WorldTPose(skeleton.TPoseUnscaled)
	for i := range want {
		want[i].Position = r3.Scale(2, want[i].Position)
	}
	assert.Empty(t, cmp.Diff(want, dst, approx))
}

func TestRetargetHalfBodyHoldsLegs(t *testing.T) {
	t.Parallel()

	b := NewReference()
	p, data := humanoidConfig(t, testutil.HumanoidOptions{}, testutil.HumanoidOptions{})
	h := newHandle(t, b, data)

	source := p.Source.WorldTPose(skeleton.TPoseUnscaled)
	ankle := p.Source.KnownIndex(skeleton.LeftAnkle)
	source[ankle].Position.Y += 0.3
	tgtAnkle := p.Target.KnownIndex(skeleton.LeftAnkle)
	rest := p.Target.WorldTPose(skeleton.TPoseUnscaled)[tgtAnkle].Position

	dst := make([]pose.Transform, p.Target.JointCount())
	require.True(t, b.Retarget(h, BehaviorSettings{}, source, ManifestationFullBody, dst))
	assert.InDelta(t, rest.Y+0.3, dst[tgtAnkle].Position.Y, 1e-9)

	require.True(t, b.Retarget(h, BehaviorSettings{}, source, ManifestationHalfBody, dst))
	assert.Empty(t, cmp.Diff(rest, dst[tgtAnkle].Position, approx))
}

func TestRetargetHalfBodyCustomTag(t *testing.T) {
	t.Parallel()

	b := NewReference()
	p, data := humanoidConfig(t, testutil.HumanoidOptions{}, testutil.HumanoidOptions{})
	h := newHandle(t, b, data)

	source := p.Source.WorldTPose(skeleton.TPoseUnscaled)
	source[p.Source.KnownIndex(skeleton.LeftAnkle)].Position.Y += 0.3
	tgtAnkle := p.Target.KnownIndex(skeleton.LeftAnkle)
	rest := p.Target.WorldTPose(skeleton.TPoseUnscaled)[tgtAnkle].Position

	settings := BehaviorSettings{HalfBodyManifestation: "seated"}
	dst := make([]pose.Transform, p.Target.JointCount())

	require.True(t, b.Retarget(h, settings, source, "seated", dst))
	assert.Empty(t, cmp.Diff(rest, dst[tgtAnkle].Position, approx))

	require.True(t, b.Retarget(h, settings, source, ManifestationHalfBody, dst))
	assert.InDelta(t, rest.Y+0.3, dst[tgtAnkle].Position.Y, 1e-9)
}

func TestRetargetRejectsBadInput(t *testing.T) {
	t.Parallel()

	b := NewReference()
	p, data := humanoidConfig(t, testutil.HumanoidOptions{}, testutil.HumanoidOptions{})
	h := newHandle(t, b, data)
	source := p.Source.WorldTPose(skeleton.TPoseUnscaled)
	dst := make([]pose.Transform, p.Target.JointCount())

	assert.False(t, b.Retarget(NilHandle, BehaviorSettings{}, source, "", dst))
	assert.False(t, b.Retarget(h, BehaviorSettings{}, source[:3], "", dst))
	assert.False(t, b.Retarget(h, BehaviorSettings{}, source, "", dst[:3]))
	assert.False(t, b.Retarget(h, BehaviorSettings{TPose: skeleton.TPoseType(9)}, source, "", dst))

	nan := pose.Clone(source)
	nan[2].Position.X = math.NaN()
	assert.False(t, b.Retarget(h, BehaviorSettings{}, nan, "", dst))
}

func TestRetargetConcurrentHandles(t *testing.T) {
	t.Parallel()

	b := NewReference()
	p, data := humanoidConfig(t, testutil.HumanoidOptions{}, testutil.HumanoidOptions{Scale: 0.9})
	want := p.Target.WorldTPose(skeleton.TPoseMin)
	source := p.Source.WorldTPose(skeleton.TPoseMin)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := b.CreateHandle(data)
			if !assert.NoError(t, err) {
				return
			}
			defer func() { _ = b.DestroyHandle(h) }()
			dst := make([]pose.Transform, len(want))
			for f := 0; f < 20; f++ {
				if !assert.True(t, b.Retarget(h, BehaviorSettings{TPose: skeleton.TPoseMin}, source, "", dst)) {
					return
				}
			}
			assert.Empty(t, cmp.Diff(want, dst, approx))
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.Len())
}
