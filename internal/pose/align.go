package pose

import "gonum.org/v1/gonum/spatial/r3"

// Extent returns the mean distance of every joint from joint root. It is
// the size measure used when rigidly aligning a pose to a reference.
func Extent(p []Transform, root int) float64 {
	if root < 0 || root >= len(p) || len(p) < 2 {
		return 0
	}
	var sum float64
	for i := range p {
		if i == root {
			continue
		}
		sum += Distance(p[i].Position, p[root].Position)
	}
	return sum / float64(len(p)-1)
}

// AlignScale rescales frame in place about its root joint so its extent
// matches reference, and returns the factor applied. Degenerate inputs leave
// frame unchanged and return 1.
func AlignScale(frame, reference []Transform, root int) float64 {
	if len(frame) != len(reference) {
		return 1
	}
	have, want := Extent(frame, root), Extent(reference, root)
	if have < epsilon || want < epsilon {
		return 1
	}
	f := want / have
	origin := frame[root].Position
	for i := range frame {
		frame[i].Position = r3.Add(origin, r3.Scale(f, r3.Sub(frame[i].Position, origin)))
	}
	return f
}

// Height returns the vertical extent (max Y - min Y) of a world-space pose.
func Height(p []Transform) float64 {
	if len(p) == 0 {
		return 0
	}
	lo, hi := p[0].Position.Y, p[0].Position.Y
	for _, t := range p[1:] {
		if t.Position.Y < lo {
			lo = t.Position.Y
		}
		if t.Position.Y > hi {
			hi = t.Position.Y
		}
	}
	return hi - lo
}
