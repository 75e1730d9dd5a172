package retarget

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/retarget/internal/backend"
	"github.com/banshee-data/retarget/internal/pose"
	"github.com/banshee-data/retarget/internal/skeleton"
)

// SourceProvider supplies tracked source poses. It is polled once per
// frame and never pushes.
type SourceProvider interface {
	// SkeletonPose returns the current world-space source pose.
	SkeletonPose() []pose.Transform
	// SkeletonTPose returns the world-space source T-pose.
	SkeletonTPose() []pose.Transform
	// Manifestation returns the tracking mode tag, if any.
	Manifestation() (string, bool)
	PoseValid() bool
	// NewTPoseAvailable reports a T-pose change since SkeletonTPose was
	// last called.
	NewTPoseAvailable() bool
}

// SyntheticOptions shapes the motion of a Synthetic source.
type SyntheticOptions struct {
	Scale         float64 // body scale relative to the description; 0 means 1
	SwingDegrees  float64 // arm swing amplitude
	Period        int     // frames per swing cycle; 0 means 60
	WalkSpeed     float64 // root travel along +Z per frame
	HalfBodyEvery int     // alternate full/half body every N frames; 0 disables
	InvalidEvery  int     // report every Nth frame invalid; 0 disables
}

// Synthetic is a SourceProvider that animates a skeleton description: the
// arms swing about the forward axis and the root walks forward.
type Synthetic struct {
	desc   *skeleton.Description
	opts   SyntheticOptions
	local  []pose.Transform
	world  []pose.Transform
	frame  int
	tposeV int
	seenV  int
}

// NewSynthetic returns a synthetic source posed at frame 0.
func NewSynthetic(d *skeleton.Description, opts SyntheticOptions) *Synthetic {
	if opts.Scale == 0 {
		opts.Scale = 1
	}
	if opts.Period <= 0 {
		opts.Period = 60
	}
	s := &Synthetic{
		desc:   d,
		opts:   opts,
		local:  make([]pose.Transform, d.JointCount()),
		world:  make([]pose.Transform, d.JointCount()),
		tposeV: 1,
	}
	s.pose()
	return s
}

// Frame returns the current frame number.
func (s *Synthetic) Frame() int { return s.frame }

// Advance steps to the next frame.
func (s *Synthetic) Advance() {
	s.frame++
	s.pose()
}

// SetScale changes the body scale and announces a new T-pose.
func (s *Synthetic) SetScale(scale float64) {
	s.opts.Scale = scale
	s.tposeV++
	s.pose()
}

func (s *Synthetic) pose() {
	tpose := s.desc.TPose(skeleton.TPoseUnscaled)
	for i := range tpose {
		s.local[i] = tpose[i]
		s.local[i].Position = r3.Scale(s.opts.Scale, tpose[i].Position)
	}
	phase := 2 * math.Pi * float64(s.frame) / float64(s.opts.Period)
	swing := s.opts.SwingDegrees * math.Sin(phase)
	for _, side := range skeleton.Sides {
		if j := s.desc.KnownIndex(side.UpperArm()); j != skeleton.NoJoint {
			angle := swing
			if side == skeleton.Right {
				angle = -swing
			}
			s.local[j].Orientation = pose.Mul(pose.AngleAxis(angle, pose.Forward), s.local[j].Orientation)
		}
	}
	root := pose.Root{
		Position: r3.Vec{Z: s.opts.WalkSpeed * float64(s.frame)},
		Rotation: pose.IdentityRotation(),
		Scale:    pose.One(),
	}
	_ = s.desc.Hierarchy().LocalToWorld(s.world, s.local, root)
}

func (s *Synthetic) SkeletonPose() []pose.Transform { return pose.Clone(s.world) }

func (s *Synthetic) SkeletonTPose() []pose.Transform {
	s.seenV = s.tposeV
	world := s.desc.WorldTPose(skeleton.TPoseUnscaled)
	for i := range world {
		world[i].Position = r3.Scale(s.opts.Scale, world[i].Position)
	}
	return world
}

func (s *Synthetic) Manifestation() (string, bool) {
	if s.opts.HalfBodyEvery > 0 && (s.frame/s.opts.HalfBodyEvery)%2 == 1 {
		return backend.ManifestationHalfBody, true
	}
	return backend.ManifestationFullBody, true
}

func (s *Synthetic) PoseValid() bool {
	return s.opts.InvalidEvery <= 0 || s.frame%s.opts.InvalidEvery != s.opts.InvalidEvery-1
}

func (s *Synthetic) NewTPoseAvailable() bool { return s.tposeV != s.seenV }
