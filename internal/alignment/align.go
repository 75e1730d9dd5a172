// Package alignment pre-aligns a target skeleton's T-pose onto the
// landmarks of a source skeleton: wrists, legs, arm proportions, fingers
// and root, plus the desired uniform scale between the two.
package alignment

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/retarget/internal/pose"
	"github.com/banshee-data/retarget/internal/skeleton"
)

// Search and scale defaults.
const (
	DefaultStepDegrees     = 0.1
	DefaultMaxAngleDegrees = 90
	DefaultMaxIterations   = 100000
	DefaultMinScale        = 0.5
	DefaultMaxScale        = 2.0
)

// Settings tunes the alignment engine. Zero fields take the defaults.
type Settings struct {
	StepDegrees     float64
	MaxAngleDegrees float64
	MaxIterations   int
	MinScale        float64
	MaxScale        float64
}

// DefaultSettings returns the default alignment settings.
func DefaultSettings() Settings {
	return Settings{
		StepDegrees:     DefaultStepDegrees,
		MaxAngleDegrees: DefaultMaxAngleDegrees,
		MaxIterations:   DefaultMaxIterations,
		MinScale:        DefaultMinScale,
		MaxScale:        DefaultMaxScale,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.StepDegrees <= 0 {
		s.StepDegrees = d.StepDegrees
	}
	if s.MaxAngleDegrees <= 0 {
		s.MaxAngleDegrees = d.MaxAngleDegrees
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = d.MaxIterations
	}
	if s.MinScale <= 0 {
		s.MinScale = d.MinScale
	}
	if s.MaxScale <= 0 {
		s.MaxScale = d.MaxScale
	}
	return s
}

// Aligner moves the joints of Target towards the world-space landmarks of
// a source skeleton.
type Aligner struct {
	Source      *skeleton.Description
	SourceWorld []pose.Transform
	Target      *Rig
	Settings    Settings
}

// New returns an aligner for src posed at srcWorld and the target rig.
func New(src *skeleton.Description, srcWorld []pose.Transform, target *Rig, s Settings) *Aligner {
	return &Aligner{Source: src, SourceWorld: srcWorld, Target: target, Settings: s.withDefaults()}
}

// joints resolves k on both skeletons, logging when either lacks it.
func (a *Aligner) joints(k skeleton.KnownJointType) (src, tgt int, ok bool) {
	src, tgt = a.Source.KnownIndex(k), a.Target.Known(k)
	if src == skeleton.NoJoint || tgt == skeleton.NoJoint {
		debugf("skip %s: source=%d target=%d", k, src, tgt)
		return src, tgt, false
	}
	return src, tgt, true
}

// AlignWrist rotates the upper arm of side so the wrist lands as close as
// possible to the source wrist, then snaps the wrist onto it.
func (a *Aligner) AlignWrist(side skeleton.Side) bool {
	srcWrist, wrist, ok := a.joints(side.Wrist())
	if !ok {
		return false
	}
	upper := a.Target.Known(side.UpperArm())
	if upper == skeleton.NoJoint {
		debugf("skip %s wrist: target has no upper arm", side)
		return false
	}
	target := a.SourceWorld[srcWrist].Position
	res := BestRotation(a.Target.World[upper], a.Target.World[wrist], target, a.Settings)
	a.Target.SetWorldRotation(upper, res.Rotation)
	a.Target.SetWorldPosition(wrist, target)
	debugf("%s wrist: residual %.4f after %d candidates", side, res.Distance, res.Iterations)
	return true
}

// AlignLeg rotates the upper leg of side so the ankle lands as close as
// possible to the source ankle. The ankle keeps its original orientation.
func (a *Aligner) AlignLeg(side skeleton.Side) bool {
	srcAnkle, ankle, ok := a.joints(side.Ankle())
	if !ok {
		return false
	}
	upper := a.Target.Known(side.UpperLeg())
	if upper == skeleton.NoJoint {
		debugf("skip %s leg: target has no upper leg", side)
		return false
	}
	footRot := a.Target.World[ankle].Orientation
	res := BestRotation(a.Target.World[upper], a.Target.World[ankle], a.SourceWorld[srcAnkle].Position, a.Settings)
	a.Target.SetWorldRotation(upper, res.Rotation)
	a.Target.SetWorldRotation(ankle, footRot)
	debugf("%s leg: residual %.4f after %d candidates", side, res.Distance, res.Iterations)
	return true
}

// ArmScale returns the ratio of root-relative wrist X between the source and
// the target. A zero target coordinate divides by 1.
func (a *Aligner) ArmScale(side skeleton.Side) (float64, bool) {
	srcWrist, wrist, ok := a.joints(side.Wrist())
	if !ok {
		return 1, false
	}
	srcRoot, root, ok := a.joints(skeleton.Root)
	if !ok {
		return 1, false
	}
	want := a.SourceWorld[srcWrist].Position.X - a.SourceWorld[srcRoot].Position.X
	have := a.Target.World[wrist].Position.X - a.Target.World[root].Position.X
	if have == 0 {
		have = 1
	}
	return want / have, true
}

// ScaleArm stretches the arm of side along X by ArmScale: the local X
// offset of the shoulder and of every joint below it is multiplied by the
// ratio.
func (a *Aligner) ScaleArm(side skeleton.Side) bool {
	ratio, ok := a.ArmScale(side)
	if !ok {
		return false
	}
	upper := a.Target.Known(side.UpperArm())
	if upper == skeleton.NoJoint {
		return false
	}
	shoulder := a.Target.Description().Parent(upper)
	if shoulder == skeleton.NoJoint {
		shoulder = upper
	}
	local := a.Target.Local()
	local[shoulder].Position.X *= ratio
	for _, d := range a.Target.Description().Hierarchy().Descendants(shoulder) {
		local[d].Position.X *= ratio
	}
	if err := a.Target.SetLocal(local); err != nil {
		debugf("scale %s arm: %v", side, err)
		return false
	}
	debugf("%s arm: x scale %.4f", side, ratio)
	return true
}

// fingerNames are matched case-insensitively against joint names; each
// entry lists aliases.
var fingerNames = [][]string{
	{"thumb"},
	{"index"},
	{"middle"},
	{"ring"},
	{"little", "pinky"},
}

// Start and end bone tokens, most specific first.
var (
	startTokens = []string{"metacarpal", "proximal", "1", "2"}
	endTokens   = []string{"distal", "3", "4"}
)

// findFinger returns the start and end joints of a finger among the
// descendants of wrist.
func findFinger(d *skeleton.Description, wrist int, aliases []string) (start, end int) {
	var names []int
	for _, j := range d.Hierarchy().Descendants(wrist) {
		n := strings.ToLower(d.JointName(j))
		for _, alias := range aliases {
			if strings.Contains(n, alias) {
				names = append(names, j)
				break
			}
		}
	}
	match := func(tokens []string, skip int) int {
		for _, tok := range tokens {
			for _, j := range names {
				if j != skip && strings.Contains(strings.ToLower(d.JointName(j)), tok) {
					return j
				}
			}
		}
		return skeleton.NoJoint
	}
	start = match(startTokens, skeleton.NoJoint)
	if start == skeleton.NoJoint {
		return skeleton.NoJoint, skeleton.NoJoint
	}
	return start, match(endTokens, start)
}

// AlignFingers places, orients and scales each finger of side onto the
// matching source finger. It returns the number of fingers aligned.
func (a *Aligner) AlignFingers(side skeleton.Side) int {
	srcWrist, wrist, ok := a.joints(side.Wrist())
	if !ok {
		return 0
	}
	tgt := a.Target.Description()
	n := 0
	for _, aliases := range fingerNames {
		ss, se := findFinger(a.Source, srcWrist, aliases)
		ts, te := findFinger(tgt, wrist, aliases)
		if ss == skeleton.NoJoint || se == skeleton.NoJoint || ts == skeleton.NoJoint || te == skeleton.NoJoint {
			debugf("%s %s finger: no start/end match (source %d/%d, target %d/%d)", side, aliases[0], ss, se, ts, te)
			continue
		}

		a.Target.SetWorldPosition(ts, a.SourceWorld[ss].Position)
		have := r3.Sub(a.Target.World[te].Position, a.Target.World[ts].Position)
		want := r3.Sub(a.SourceWorld[se].Position, a.SourceWorld[ss].Position)
		delta := pose.FromToRotation(have, want)
		a.Target.SetWorldRotation(ts, pose.Mul(delta, a.Target.World[ts].Orientation))
		if l := r3.Norm(have); l > 0 {
			a.Target.ScaleSubtree(ts, r3.Norm(want)/l)
		}
		n++
	}
	return n
}

// AlignRoot moves the target root, and then the hips, onto the source.
func (a *Aligner) AlignRoot() bool {
	srcRoot, root, ok := a.joints(skeleton.Root)
	if !ok {
		return false
	}
	a.Target.SetWorldPosition(root, a.SourceWorld[srcRoot].Position)
	if srcHips, hips, ok := a.joints(skeleton.Hips); ok {
		a.Target.SetWorldPosition(hips, a.SourceWorld[srcHips].Position)
	}
	return true
}

// DesiredScale returns the ratio of root-relative wrist height between the
// source and the target, clamped to the settings' scale band. Both wrists
// are averaged when present.
func (a *Aligner) DesiredScale() (float64, bool) {
	srcRoot, root, ok := a.joints(skeleton.Root)
	if !ok {
		return 1, false
	}
	var want, have float64
	n := 0
	for _, side := range skeleton.Sides {
		srcWrist, wrist, ok := a.joints(side.Wrist())
		if !ok {
			continue
		}
		want += a.SourceWorld[srcWrist].Position.Y - a.SourceWorld[srcRoot].Position.Y
		have += a.Target.World[wrist].Position.Y - a.Target.World[root].Position.Y
		n++
	}
	if n == 0 {
		return 1, false
	}
	if have == 0 {
		have = 1
	}
	s := pose.Clamp(want/have, a.Settings.MinScale, a.Settings.MaxScale)
	if math.IsNaN(s) {
		return 1, false
	}
	return s, true
}

// AutoAlign runs the full alignment: root, arm scaling, wrists, legs and
// fingers, in that order.
func (a *Aligner) AutoAlign() {
	a.AlignRoot()
	for _, side := range skeleton.Sides {
		a.ScaleArm(side)
		a.AlignWrist(side)
		a.AlignLeg(side)
		a.AlignFingers(side)
	}
}
