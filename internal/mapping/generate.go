package mapping

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/retarget/internal/pose"
	"github.com/banshee-data/retarget/internal/skeleton"
)

const (
	DefaultNeighbors       = 4
	DefaultWeightThreshold = 0.05
)

// singleMapped are the known joints copied 1:1 from the source.
var singleMapped = []skeleton.KnownJointType{
	skeleton.Root,
	skeleton.RightWrist,
	skeleton.LeftWrist,
	skeleton.Neck,
	skeleton.RightUpperLeg,
	skeleton.LeftUpperLeg,
	skeleton.RightAnkle,
	skeleton.LeftAnkle,
}

// DefaultBlockedTokens are the joint name fragments never used as sources.
var DefaultBlockedTokens = []string{"twist", "palm", "tip"}

// Options tunes Generate.
type Options struct {
	// Neighbors is the size of the nearest-source-joint search.
	Neighbors int
	// WeightThreshold drops normalized weights below it.
	WeightThreshold float64
	// TPose selects the reference pose both skeletons are compared in.
	TPose skeleton.TPoseType
	// Blocked reports source joints that must never contribute. Nil
	// blocks names containing any of DefaultBlockedTokens.
	Blocked func(name string) bool
}

// DefaultOptions returns the default generation options.
func DefaultOptions() Options {
	return Options{
		Neighbors:       DefaultNeighbors,
		WeightThreshold: DefaultWeightThreshold,
		TPose:           skeleton.TPoseUnscaled,
	}
}

// BlockTokens returns a Blocked predicate matching names that contain any
// token, case-insensitively.
func BlockTokens(tokens ...string) func(string) bool {
	lower := make([]string, len(tokens))
	for i, t := range tokens {
		lower[i] = strings.ToLower(t)
	}
	return func(name string) bool {
		name = strings.ToLower(name)
		for _, t := range lower {
			if strings.Contains(name, t) {
				return true
			}
		}
		return false
	}
}

func (o Options) validate() error {
	if o.Neighbors < 1 {
		return fmt.Errorf("neighbors must be at least 1, got %d", o.Neighbors)
	}
	if o.WeightThreshold < 0 || o.WeightThreshold >= 1 {
		return fmt.Errorf("weight threshold must be in [0,1), got %g", o.WeightThreshold)
	}
	return nil
}

// Generate computes the mapping table from src to tgt, one mapping per
// target joint in index order.
func Generate(src, tgt *skeleton.Description, opts Options) (*Table, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if src == nil || tgt == nil {
		return nil, fmt.Errorf("generate mapping: nil skeleton")
	}
	blocked := opts.Blocked
	if blocked == nil {
		blocked = BlockTokens(DefaultBlockedTokens...)
	}

	g := generator{
		src:      src,
		tgt:      tgt,
		srcWorld: src.WorldTPose(opts.TPose),
		tgtWorld: tgt.WorldTPose(opts.TPose),
		opts:     opts,
		blocked:  make([]bool, src.JointCount()),
	}
	for i := range g.blocked {
		g.blocked[i] = blocked(src.JointName(i))
	}

	table := &Table{}
	for t := 0; t < tgt.JointCount(); t++ {
		m := JointMapping{TargetJointIndex: t, SourceSkeleton: src.Type(), Behavior: BehaviorNormal}
		table.Append(m, g.entries(t)...)
	}
	if err := table.Validate(src.JointCount(), tgt.JointCount()); err != nil {
		opsf("generated table failed validation: %v", err)
		return nil, err
	}
	diagf("generated %d mappings with %d entries (%s T-pose)", len(table.Mappings), len(table.Entries), opts.TPose)
	return table, nil
}

// GenerateMinMax generates the tables for the min and max T-pose variants.
func GenerateMinMax(src, tgt *skeleton.Description, opts Options) (min, max *Table, err error) {
	opts.TPose = skeleton.TPoseMin
	if min, err = Generate(src, tgt, opts); err != nil {
		return nil, nil, fmt.Errorf("min table: %w", err)
	}
	opts.TPose = skeleton.TPoseMax
	if max, err = Generate(src, tgt, opts); err != nil {
		return nil, nil, fmt.Errorf("max table: %w", err)
	}
	return min, max, nil
}

type generator struct {
	src, tgt           *skeleton.Description
	srcWorld, tgtWorld []pose.Transform
	opts               Options
	blocked            []bool
}

// candidate is a source joint and its distance to the target joint.
type candidate struct {
	index int
	dist  float64
}

func (g *generator) entries(t int) []JointMappingEntry {
	if s, ok := g.singleSource(t); ok {
		return []JointMappingEntry{{SourceJointIndex: s, PositionWeight: 1, RotationWeight: 1}}
	}

	target := g.tgtWorld[t].Position
	near := nearest(g.srcWorld, target, g.opts.Neighbors, func(i int) bool { return g.blocked[i] })
	if len(near) == 0 {
		diagf("target joint %q: no unblocked source joints", g.tgt.JointName(t))
		return nil
	}
	closest := near[0].index

	exclude := map[int]bool{}
	for _, side := range skeleton.Sides {
		upper := g.tgt.KnownIndex(side.UpperArm())
		if upper == skeleton.NoJoint || g.tgt.Parent(upper) != t {
			continue
		}
		shoulder := sourceShoulder(g.src, side)
		if shoulder == skeleton.NoJoint {
			diagf("target joint %q: source has no %s shoulder", g.tgt.JointName(t), side)
			continue
		}
		closest = shoulder
		if opp := sourceShoulder(g.src, side.Opposite()); opp != skeleton.NoJoint {
			exclude[opp] = true
		}
		if neck := g.src.KnownIndex(skeleton.Neck); neck != skeleton.NoJoint {
			exclude[neck] = true
		}
	}

	cands := []int{closest}
	if !g.inFingerChain(closest) {
		seen := map[int]bool{closest: true}
		add := func(i int) {
			if i == skeleton.NoJoint || seen[i] || g.blocked[i] || exclude[i] {
				return
			}
			seen[i] = true
			cands = append(cands, i)
		}
		if parent := g.src.Parent(closest); parent != skeleton.NoJoint {
			add(parent)
			add(g.src.Parent(parent))
			for _, sib := range g.src.Hierarchy().Children(parent) {
				add(sib)
			}
		}
	}

	dists := make([]float64, len(cands))
	for i, c := range cands {
		dists[i] = pose.Distance(g.srcWorld[c].Position, target)
	}
	weights := InverseDistanceWeights(dists, g.opts.WeightThreshold)

	best := -1
	for i, w := range weights {
		if w > 0 && (best < 0 || dists[i] < dists[best]) {
			best = i
		}
	}
	out := make([]JointMappingEntry, 0, len(cands))
	for i, w := range weights {
		if w == 0 {
			continue
		}
		e := JointMappingEntry{SourceJointIndex: cands[i], PositionWeight: w}
		if i == best {
			e.RotationWeight = 1
		}
		out = append(out, e)
	}
	return out
}

// singleSource returns the source joint for a single-mapped known target joint.
func (g *generator) singleSource(t int) (int, bool) {
	for _, k := range singleMapped {
		if g.tgt.KnownIndex(k) != t {
			continue
		}
		if s := g.src.KnownIndex(k); s != skeleton.NoJoint {
			return s, true
		}
		diagf("target joint %q is %s but the source lacks it, searching", g.tgt.JointName(t), k)
	}
	return skeleton.NoJoint, false
}

func (g *generator) inFingerChain(i int) bool {
	return g.src.IsBelow(i, skeleton.LeftWrist) || g.src.IsBelow(i, skeleton.RightWrist)
}

// sourceShoulder returns the known shoulder of side, falling back to the
// parent of the known upper arm.
func sourceShoulder(d *skeleton.Description, side skeleton.Side) int {
	if s := d.KnownIndex(side.Shoulder()); s != skeleton.NoJoint {
		return s
	}
	if upper := d.KnownIndex(side.UpperArm()); upper != skeleton.NoJoint {
		return d.Parent(upper)
	}
	return skeleton.NoJoint
}

// nearest returns up to k joints closest to target, nearest first. The
// buffer is kept sorted by insertion so equal distances keep scan order.
func nearest(points []pose.Transform, target r3.Vec, k int, skip func(int) bool) []candidate {
	buf := make([]candidate, 0, k)
	for i, p := range points {
		if skip(i) {
			continue
		}
		d := pose.Distance(p.Position, target)
		pos := len(buf)
		for pos > 0 && d < buf[pos-1].dist {
			pos--
		}
		if pos >= k {
			continue
		}
		if len(buf) < k {
			buf = append(buf, candidate{})
		}
		copy(buf[pos+1:], buf[pos:len(buf)-1])
		buf[pos] = candidate{index: i, dist: d}
	}
	return buf
}

// InverseDistanceWeights returns normalized 1/d² weights for distances.
// A zero distance takes all the weight. Weights below threshold are zeroed
// and the rest renormalized; if every weight falls below threshold the
// result is uniform.
func InverseDistanceWeights(distances []float64, threshold float64) []float64 {
	n := len(distances)
	w := make([]float64, n)
	if n == 0 {
		return w
	}
	for i, d := range distances {
		if d <= 0 {
			clear(w)
			w[i] = 1
			return w
		}
		w[i] = 1 / (d * d)
	}
	floats.Scale(1/floats.Sum(w), w)

	kept := 0
	for i := range w {
		if w[i] < threshold {
			w[i] = 0
			continue
		}
		kept++
	}
	if kept == 0 {
		for i := range w {
			w[i] = 1 / float64(n)
		}
		return w
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}
