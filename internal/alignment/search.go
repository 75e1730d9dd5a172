package alignment

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/retarget/internal/pose"
)

// Result is the outcome of a best-rotation search.
type Result struct {
	Rotation   quat.Number // new world orientation for the parent
	Distance   float64     // child distance to the target after rotating
	Iterations int         // candidate rotations evaluated
}

// BestRotation searches for the world orientation of parent that brings
// child closest to target. Candidates are parent.Orientation * AngleAxis(a,
// axis) for the parent's local forward, up and right axes and a in
// [-360,360] degrees at s.StepDegrees. A candidate is rejected when it turns
// the child's own orientation by s.MaxAngleDegrees or more. The parent's
// current orientation is the starting best, so the result is never further
// from target than doing nothing. At most s.MaxIterations candidates are
// evaluated.
func BestRotation(parent, child pose.Transform, target r3.Vec, s Settings) Result {
	s = s.withDefaults()
	initial := parent.Orientation
	invInitial := pose.Inverse(initial)
	offset := r3.Sub(child.Position, parent.Position)

	best := Result{
		Rotation: initial,
		Distance: pose.Distance(child.Position, target),
	}
	steps := int(math.Round(720 / s.StepDegrees))

	for _, axis := range []r3.Vec{pose.Forward, pose.Up, pose.Right} {
		for k := 0; k <= steps; k++ {
			if best.Iterations >= s.MaxIterations {
				return best
			}
			best.Iterations++

			angle := -360 + float64(k)*s.StepDegrees
			cand := pose.Mul(initial, pose.AngleAxis(angle, axis))
			delta := pose.Mul(cand, invInitial)
			if pose.Angle(pose.Mul(delta, child.Orientation), child.Orientation) >= s.MaxAngleDegrees {
				continue
			}
			p := r3.Add(parent.Position, pose.Rotate(delta, offset))
			if d := pose.Distance(p, target); d < best.Distance {
				best.Rotation = cand
				best.Distance = d
			}
		}
	}
	return best
}
