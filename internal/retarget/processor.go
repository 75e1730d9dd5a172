package retarget

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/retarget/internal/pose"
	"github.com/banshee-data/retarget/internal/skeleton"
)

// Phase is the point in a frame at which a processor runs.
type Phase int

const (
	// PhaseSource runs on the world-space source pose before the backend.
	PhaseSource Phase = iota
	// PhaseTarget runs on the world-space target pose after the backend.
	PhaseTarget
	// PhaseLate runs in LateUpdate on the local target pose, with the
	// pose currently applied to the character available for comparison.
	PhaseLate
)

func (p Phase) String() string {
	switch p {
	case PhaseSource:
		return "source"
	case PhaseTarget:
		return "target"
	case PhaseLate:
		return "late"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// ProcessorKind tags the variant held by a Processor.
type ProcessorKind int

const (
	KindTwist ProcessorKind = iota
	KindAnimation
	KindLocomotion
	KindCCDIK
	KindHandIK
	KindHipPinning
	KindCustom
)

var kindNames = [...]string{"twist", "animation", "locomotion", "ccdik", "handik", "hippinning", "custom"}

func (k ProcessorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("ProcessorKind(%d)", int(k))
	}
	return kindNames[k]
}

// Supports reports whether processors of kind k can run in phase p.
func (k ProcessorKind) Supports(p Phase) bool {
	switch k {
	case KindHipPinning:
		return p == PhaseSource
	case KindTwist, KindCCDIK, KindHandIK:
		return p == PhaseTarget
	case KindAnimation, KindLocomotion:
		return p == PhaseLate
	case KindCustom:
		return true
	}
	return false
}

// Skeletons is the joint structure processors work against.
type Skeletons struct {
	Source      *pose.Hierarchy
	Target      *pose.Hierarchy
	SourceKnown skeleton.KnownJointTable
	TargetKnown skeleton.KnownJointTable
}

// Frame is the data a processor reads and edits in place.
type Frame struct {
	Source        []pose.Transform // world space
	Target        []pose.Transform // world space, after the backend
	Local         []pose.Transform // local space, late phase only
	Applied       []pose.Transform // local pose on the character, late phase only; may be nil
	Manifestation string
}

// TwistParams spreads the rotation between Parent and Driver onto Joint.
type TwistParams struct {
	Joint  int
	Parent int
	Driver int
}

// AnimationParams blends the local target pose towards Pose for Joints,
// or for every joint when Joints is empty.
type AnimationParams struct {
	Pose   []pose.Transform
	Joints []int
}

// LocomotionParams holds feet still while they move less than Threshold
// between the applied pose and the new pose.
type LocomotionParams struct {
	Feet      []int
	Threshold float64
}

// CCDIKParams bends Chain (ancestor first, effector last) so the effector
// reaches the world position of source joint SourceJoint.
type CCDIKParams struct {
	Chain       []int
	SourceJoint int
	Iterations  int
	Tolerance   float64
}

// HandIKParams runs CCD on the arm of Side towards the source wrist and
// keeps the wrist's world orientation.
type HandIKParams struct {
	Side       skeleton.Side
	Iterations int
	Tolerance  float64
}

// HipPinningParams moves the source pose so its hips sit at Position.
type HipPinningParams struct {
	Position r3.Vec
}

// CustomFunc is a caller-supplied processor.
type CustomFunc func(phase Phase, f *Frame, s *Skeletons) error

// Processor is a tagged union over the processor kinds: Kind selects which
// of the parameter fields is used. Weight in [0,1] scales the effect.
type Processor struct {
	Kind   ProcessorKind
	Weight float64

	Twist      *TwistParams
	Animation  *AnimationParams
	Locomotion *LocomotionParams
	CCDIK      *CCDIKParams
	HandIK     *HandIKParams
	HipPinning *HipPinningParams
	Custom     CustomFunc
}

func NewTwist(p TwistParams, weight float64) Processor {
	return Processor{Kind: KindTwist, Weight: weight, Twist: &p}
}

func NewAnimation(p AnimationParams, weight float64) Processor {
	return Processor{Kind: KindAnimation, Weight: weight, Animation: &p}
}

func NewLocomotion(p LocomotionParams) Processor {
	return Processor{Kind: KindLocomotion, Weight: 1, Locomotion: &p}
}

func NewCCDIK(p CCDIKParams, weight float64) Processor {
	return Processor{Kind: KindCCDIK, Weight: weight, CCDIK: &p}
}

func NewHandIK(p HandIKParams, weight float64) Processor {
	return Processor{Kind: KindHandIK, Weight: weight, HandIK: &p}
}

func NewHipPinning(p HipPinningParams, weight float64) Processor {
	return Processor{Kind: KindHipPinning, Weight: weight, HipPinning: &p}
}

func NewCustom(fn CustomFunc) Processor {
	return Processor{Kind: KindCustom, Weight: 1, Custom: fn}
}

var errMissingParams = errors.New("processor parameters missing")

// Validate checks that the variant matching Kind is set.
func (p Processor) Validate() error {
	if p.Weight < 0 || p.Weight > 1 {
		return fmt.Errorf("%s processor: weight %g outside [0,1]", p.Kind, p.Weight)
	}
	var ok bool
	switch p.Kind {
	case KindTwist:
		ok = p.Twist != nil
	case KindAnimation:
		ok = p.Animation != nil
	case KindLocomotion:
		ok = p.Locomotion != nil
	case KindCCDIK:
		ok = p.CCDIK != nil && len(p.CCDIK.Chain) >= 2
	case KindHandIK:
		ok = p.HandIK != nil
	case KindHipPinning:
		ok = p.HipPinning != nil
	case KindCustom:
		ok = p.Custom != nil
	default:
		return fmt.Errorf("unknown processor kind %d", int(p.Kind))
	}
	if !ok {
		return fmt.Errorf("%s processor: %w", p.Kind, errMissingParams)
	}
	return nil
}

// Process runs the processor for phase on f.
func (p Processor) Process(phase Phase, f *Frame, s *Skeletons) error {
	if !p.Kind.Supports(phase) {
		return fmt.Errorf("%s processor cannot run in the %s phase", p.Kind, phase)
	}
	switch p.Kind {
	case KindTwist:
		return p.twist(f)
	case KindAnimation:
		return p.animation(f)
	case KindLocomotion:
		p.locomotion(f)
		return nil
	case KindCCDIK:
		c := p.CCDIK
		if err := inRange(f.Source, c.SourceJoint); err != nil {
			return fmt.Errorf("ccd ik source: %w", err)
		}
		return ccd(f.Target, s.Target, c.Chain, f.Source[c.SourceJoint].Position, c.Iterations, c.Tolerance, p.Weight)
	case KindHandIK:
		return p.handIK(f, s)
	case KindHipPinning:
		p.hipPinning(f, s)
		return nil
	case KindCustom:
		return p.Custom(phase, f, s)
	}
	return fmt.Errorf("unknown processor kind %d", int(p.Kind))
}

func inRange(p []pose.Transform, idx ...int) error {
	for _, i := range idx {
		if i < 0 || i >= len(p) {
			return fmt.Errorf("joint %d out of range [0,%d)", i, len(p))
		}
	}
	return nil
}

func (p Processor) twist(f *Frame) error {
	t := p.Twist
	if err := inRange(f.Target, t.Joint, t.Parent, t.Driver); err != nil {
		return fmt.Errorf("twist: %w", err)
	}
	f.Target[t.Joint].Orientation = pose.Normalize(pose.Slerp(f.Target[t.Parent].Orientation, f.Target[t.Driver].Orientation, p.Weight))
	return nil
}

func (p Processor) animation(f *Frame) error {
	a := p.Animation
	if len(a.Pose) != len(f.Local) {
		return fmt.Errorf("animation: pose length %d, want %d", len(a.Pose), len(f.Local))
	}
	blend := func(j int) {
		l := &f.Local[j]
		l.Position = pose.Lerp(l.Position, a.Pose[j].Position, p.Weight)
		l.Orientation = pose.Normalize(pose.Slerp(l.Orientation, a.Pose[j].Orientation, p.Weight))
	}
	if len(a.Joints) == 0 {
		for j := range f.Local {
			blend(j)
		}
		return nil
	}
	if err := inRange(f.Local, a.Joints...); err != nil {
		return fmt.Errorf("animation: %w", err)
	}
	for _, j := range a.Joints {
		blend(j)
	}
	return nil
}

func (p Processor) locomotion(f *Frame) {
	if len(f.Applied) != len(f.Local) {
		return
	}
	for _, foot := range p.Locomotion.Feet {
		if foot < 0 || foot >= len(f.Local) {
			continue
		}
		was, now := f.Applied[foot], f.Local[foot]
		if pose.Distance(was.Position, now.Position) >= p.Locomotion.Threshold {
			continue
		}
		f.Local[foot].Position = pose.Lerp(now.Position, was.Position, p.Weight)
		f.Local[foot].Orientation = pose.Normalize(pose.Slerp(now.Orientation, was.Orientation, p.Weight))
	}
}

func (p Processor) handIK(f *Frame, s *Skeletons) error {
	side := p.HandIK.Side
	chain := []int{
		s.TargetKnown.Index(side.UpperArm()),
		s.TargetKnown.Index(side.LowerArm()),
		s.TargetKnown.Index(side.Wrist()),
	}
	src := s.SourceKnown.Index(side.Wrist())
	for _, j := range append(chain, src) {
		if j == skeleton.NoJoint {
			return nil
		}
	}
	wrist := chain[2]
	keep := f.Target[wrist].Orientation
	if err := ccd(f.Target, s.Target, chain, f.Source[src].Position, p.HandIK.Iterations, p.HandIK.Tolerance, p.Weight); err != nil {
		return fmt.Errorf("hand ik: %w", err)
	}
	setWorldRotation(f.Target, s.Target, wrist, keep)
	return nil
}

func (p Processor) hipPinning(f *Frame, s *Skeletons) {
	hips := s.SourceKnown.Index(skeleton.Hips)
	if hips == skeleton.NoJoint {
		hips = s.SourceKnown.Index(skeleton.Root)
	}
	if hips == skeleton.NoJoint || hips >= len(f.Source) {
		return
	}
	shift := r3.Scale(p.Weight, r3.Sub(p.HipPinning.Position, f.Source[hips].Position))
	for i := range f.Source {
		f.Source[i].Position = r3.Add(f.Source[i].Position, shift)
	}
}

// Defaults for the CCD solver.
const (
	DefaultIKIterations = 10
	DefaultIKTolerance  = 1e-4
)

// ccd runs cyclic coordinate descent on chain so the last joint approaches
// target, rotating each joint's subtree in world space.
func ccd(world []pose.Transform, h *pose.Hierarchy, chain []int, target r3.Vec, iterations int, tolerance, weight float64) error {
	if err := inRange(world, chain...); err != nil {
		return err
	}
	for k := 1; k < len(chain); k++ {
		if !h.IsAncestor(chain[k-1], chain[k]) {
			return fmt.Errorf("chain joint %d is not an ancestor of %d", chain[k-1], chain[k])
		}
	}
	if iterations <= 0 {
		iterations = DefaultIKIterations
	}
	if tolerance <= 0 {
		tolerance = DefaultIKTolerance
	}
	effector := chain[len(chain)-1]
	for it := 0; it < iterations; it++ {
		if pose.Distance(world[effector].Position, target) <= tolerance {
			return nil
		}
		for k := len(chain) - 2; k >= 0; k-- {
			j := chain[k]
			from := r3.Sub(world[effector].Position, world[j].Position)
			to := r3.Sub(target, world[j].Position)
			delta := pose.Slerp(pose.IdentityRotation(), pose.FromToRotation(from, to), weight)
			setWorldRotation(world, h, j, pose.Mul(delta, world[j].Orientation))
		}
	}
	return nil
}

// setWorldRotation sets joint i's world orientation and carries its
// descendants rigidly around it.
func setWorldRotation(world []pose.Transform, h *pose.Hierarchy, i int, q quat.Number) {
	q = pose.Normalize(q)
	delta := pose.Mul(q, pose.Inverse(world[i].Orientation))
	pivot := world[i].Position
	for _, d := range h.Descendants(i) {
		w := &world[d]
		w.Position = r3.Add(pivot, pose.Rotate(delta, r3.Sub(w.Position, pivot)))
		w.Orientation = pose.Normalize(pose.Mul(delta, w.Orientation))
	}
	world[i].Orientation = q
}
