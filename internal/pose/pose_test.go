package pose

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func randomRotation(rng *rand.Rand) quat.Number {
	axis := r3.Vec{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5, Z: rng.Float64() - 0.5}
	return AngleAxis(rng.Float64()*360-180, axis)
}

func randomLocalPose(rng *rand.Rand, n int) []Transform {
	p := make([]Transform, n)
	for i := range p {
		p[i] = Transform{
			Position:    r3.Vec{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()},
			Orientation: randomRotation(rng),
			Scale:       Uniform(0.5 + rng.Float64()),
		}
	}
	return p
}

func TestNewHierarchy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		parents []int
		wantErr bool
		order   []int
		inOrder bool
	}{
		{name: "chain", parents: []int{-1, 0, 1}, order: []int{0, 1, 2}, inOrder: true},
		{name: "parent after child", parents: []int{-1, 2, 0}, order: []int{0, 2, 1}},
		{name: "two roots", parents: []int{-1, -1, 1}, order: []int{0, 1, 2}, inOrder: true},
		{name: "out of range", parents: []int{-1, 5}, wantErr: true},
		{name: "self parent", parents: []int{0}, wantErr: true},
		{name: "cycle", parents: []int{-1, 2, 1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, err := NewHierarchy(tt.parents)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.order, h.Order())
			assert.Equal(t, tt.inOrder, h.InIndexOrder())
		})
	}
}

func TestHierarchyQueries(t *testing.T) {
	t.Parallel()
	//   0
	//  / \
	// 1   2
	//     |
	//     3
	h, err := NewHierarchy([]int{-1, 0, 0, 2})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, h.Descendants(0))
	assert.Equal(t, []int{3}, h.Descendants(2))
	assert.Empty(t, h.Descendants(1))
	assert.True(t, h.IsAncestor(0, 3))
	assert.False(t, h.IsAncestor(1, 3))
	assert.Equal(t, 2, h.Depth(3))
	assert.Equal(t, []int{0}, h.Roots())
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	hierarchies := map[string][]int{
		"index order":       {-1, 0, 1, 2, 1, 4, 0, 6},
		"parents after":     {-1, 3, 1, 0, 5, 0, 4, 6},
		"multiple roots":    {-1, 0, -1, 2, 3},
		"single joint":      {-1},
		"deep reversed run": {4, 0, 1, 2, -1},
	}
	root := Root{
		Position: r3.Vec{X: 0.3, Y: -1, Z: 2},
		Rotation: AngleAxis(37, r3.Vec{X: 1, Y: 1}),
		Scale:    r3.Vec{X: 1.1, Y: 0.9, Z: 1.25},
	}

	for name, parents := range hierarchies {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h, err := NewHierarchy(parents)
			require.NoError(t, err)

			rng := rand.New(rand.NewSource(int64(len(parents))))
			local := randomLocalPose(rng, len(parents))

			world := make([]Transform, len(local))
			require.NoError(t, h.LocalToWorld(world, local, root))
			back := make([]Transform, len(local))
			require.NoError(t, h.WorldToLocal(back, world, root))
			if diff := cmp.Diff(local, back, approx); diff != "" {
				t.Errorf("WorldToLocal(LocalToWorld(local)) mismatch (-want +got):\n%s", diff)
			}

			again := make([]Transform, len(local))
			require.NoError(t, h.LocalToWorld(again, back, root))
			if diff := cmp.Diff(world, again, approx); diff != "" {
				t.Errorf("LocalToWorld(WorldToLocal(world)) mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConversionInPlace(t *testing.T) {
	t.Parallel()
	h, err := NewHierarchy([]int{-1, 2, 0, 1})
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(7))
	local := randomLocalPose(rng, 4)
	root := ScaledRoot(Uniform(1.2))

	world := make([]Transform, 4)
	require.NoError(t, h.LocalToWorld(world, local, root))

	buf := Clone(local)
	require.NoError(t, h.LocalToWorld(buf, buf, root))
	if diff := cmp.Diff(world, buf, approx); diff != "" {
		t.Errorf("in-place LocalToWorld mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, h.WorldToLocal(buf, buf, root))
	if diff := cmp.Diff(local, buf, approx); diff != "" {
		t.Errorf("in-place WorldToLocal mismatch (-want +got):\n%s", diff)
	}
}

func TestWorldToLocalRootScale(t *testing.T) {
	t.Parallel()
	h, err := NewHierarchy([]int{-1, 0})
	require.NoError(t, err)

	world := []Transform{At(r3.Vec{Y: 2}), At(r3.Vec{X: 1, Y: 2})}
	local := make([]Transform, 2)
	require.NoError(t, h.WorldToLocal(local, world, ScaledRoot(Uniform(2))))

	assert.InDelta(t, 1.0, local[0].Position.Y, 1e-12)
	assert.InDelta(t, 0.5, local[1].Position.X, 1e-12)
	assert.Equal(t, world[0].Orientation, local[0].Orientation)
}

func TestConversionLengthMismatch(t *testing.T) {
	t.Parallel()
	h, err := NewHierarchy([]int{-1, 0})
	require.NoError(t, err)
	assert.Error(t, h.LocalToWorld(make([]Transform, 2), make([]Transform, 3), IdentityRoot()))
	assert.Error(t, h.WorldToLocal(make([]Transform, 1), make([]Transform, 2), IdentityRoot()))
}

func TestFromToRotation(t *testing.T) {
	t.Parallel()
	cases := []struct{ from, to r3.Vec }{
		{Right, Up},
		{Right, r3.Vec{X: -1}},
		{r3.Vec{X: 1, Y: 2, Z: 3}, r3.Vec{X: -2, Y: 0.5, Z: 1}},
		{Up, Up},
	}
	for _, c := range cases {
		q := FromToRotation(c.from, c.to)
		got := Rotate(q, r3.Unit(c.from))
		want := r3.Unit(c.to)
		assert.InDelta(t, 0, Distance(got, want), 1e-9, "from %v to %v", c.from, c.to)
	}
}

func TestAngleAndAxis(t *testing.T) {
	t.Parallel()
	q := AngleAxis(90, Up)
	assert.InDelta(t, 90, Angle(IdentityRotation(), q), 1e-9)
	v := Rotate(q, Right)
	assert.InDelta(t, 0, Distance(v, r3.Vec{Z: -1}), 1e-9)

	assert.InDelta(t, 0, Angle(q, quat.Scale(-1, q)), 1e-6, "q and -q are the same orientation")
	assert.Equal(t, IdentityRotation(), AngleAxis(45, r3.Vec{}))
}

func TestSlerp(t *testing.T) {
	t.Parallel()
	a := IdentityRotation()
	b := AngleAxis(120, Forward)
	assert.InDelta(t, 0, Angle(a, Slerp(a, b, 0)), 1e-6)
	assert.InDelta(t, 0, Angle(b, Slerp(a, b, 1)), 1e-6)
	assert.InDelta(t, 60, Angle(a, Slerp(a, b, 0.5)), 1e-6)
}

func TestAlignScale(t *testing.T) {
	t.Parallel()
	ref := []Transform{At(r3.Vec{}), At(r3.Vec{Y: 2}), At(r3.Vec{X: 2})}
	frame := []Transform{At(r3.Vec{X: 1}), At(r3.Vec{X: 1, Y: 1}), At(r3.Vec{X: 2})}

	f := AlignScale(frame, ref, 0)
	assert.InDelta(t, 2, f, 1e-12)
	assert.InDelta(t, 2, frame[1].Position.Y, 1e-12)
	assert.InDelta(t, 3, frame[2].Position.X, 1e-12)
	assert.InDelta(t, Extent(ref, 0), Extent(frame, 0), 1e-12)

	assert.Equal(t, 1.0, AlignScale(frame[:1], ref[:1], 0))
	assert.InDelta(t, 2, Height(ref), 1e-12)
	assert.True(t, math.Abs(Clamp(5, 0, 1)-1) < 1e-12)
}
