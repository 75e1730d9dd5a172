package backend

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/retarget/internal/mapping"
	"github.com/banshee-data/retarget/internal/pose"
	"github.com/banshee-data/retarget/internal/skeleton"
)

// Reference is an in-process Backend. Each target joint is placed at the
// weighted blend of its mapped source joints, each displaced by the T-pose
// offset between the two skeletons carried through the source joint's
// rotation from its T-pose. Rotation comes from the single rotation source
// of the mapping. Unmapped joints, and legs under the half-body
// manifestation, keep their T-pose relative to their parent.
type Reference struct {
	mu       sync.RWMutex
	sessions map[Handle]*session
}

// NewReference returns an empty reference backend.
func NewReference() *Reference {
	return &Reference{sessions: make(map[Handle]*session)}
}

type session struct {
	params    *ConfigInitParams
	src, tgt  *skeleton.Description
	variants  [3]variant
	lowerBody []bool
}

type variant struct {
	srcWorld []pose.Transform
	tgtWorld []pose.Transform
	tgtLocal []pose.Transform
	rows     []row
}

// row is the compiled mapping of one target joint.
type row struct {
	entries []mapping.JointMappingEntry
	// rotation is the source joint driving orientation, or NoJoint.
	rotation int
}

func compile(p *ConfigInitParams) *session {
	s := &session{params: p, src: p.Source, tgt: p.Target}
	n := p.Target.JointCount()
	for _, t := range []skeleton.TPoseType{skeleton.TPoseUnscaled, skeleton.TPoseMin, skeleton.TPoseMax} {
		v := variant{
			srcWorld: p.Source.WorldTPose(t),
			tgtWorld: p.Target.WorldTPose(t),
			tgtLocal: p.Target.TPose(t),
			rows:     make([]row, n),
		}
		for i := range v.rows {
			v.rows[i].rotation = skeleton.NoJoint
		}
		behavior := make([]mapping.Behavior, n)
		p.Table(t).Each(func(m mapping.JointMapping, entries []mapping.JointMappingEntry) bool {
			r := row{entries: entries, rotation: skeleton.NoJoint}
			best := 0.0
			for _, e := range entries {
				if e.RotationWeight > best {
					best, r.rotation = e.RotationWeight, e.SourceJointIndex
				}
			}
			v.rows[m.TargetJointIndex] = r
			behavior[m.TargetJointIndex] = m.Behavior
			return true
		})
		for j, b := range behavior {
			if b != mapping.BehaviorChildRotation {
				continue
			}
			for _, c := range p.Target.Hierarchy().Children(j) {
				if rot := v.rows[c].rotation; rot != skeleton.NoJoint {
					v.rows[j].rotation = rot
					break
				}
			}
		}
		s.variants[t] = v
	}

	s.lowerBody = make([]bool, n)
	for _, k := range []skeleton.KnownJointType{skeleton.LeftUpperLeg, skeleton.RightUpperLeg} {
		if i := p.Target.KnownIndex(k); i != skeleton.NoJoint {
			s.lowerBody[i] = true
			for _, d := range p.Target.Hierarchy().Descendants(i) {
				s.lowerBody[d] = true
			}
		}
	}
	return s
}

func (r *Reference) session(h Handle) (*session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	return s, nil
}

// CreateHandle parses config and registers a new session.
func (r *Reference) CreateHandle(config []byte) (Handle, error) {
	p, err := ParseConfig(config)
	if err != nil {
		return NilHandle, fmt.Errorf("create handle: %w", err)
	}
	s := compile(p)
	h := Handle(uuid.New())
	r.mu.Lock()
	r.sessions[h] = s
	r.mu.Unlock()
	return h, nil
}

// UpdateHandle replaces the configuration of an existing session.
func (r *Reference) UpdateHandle(h Handle, config []byte) error {
	p, err := ParseConfig(config)
	if err != nil {
		return fmt.Errorf("update handle %s: %w", h, err)
	}
	s := compile(p)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[h]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	r.sessions[h] = s
	return nil
}

// DestroyHandle releases a session.
func (r *Reference) DestroyHandle(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[h]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	delete(r.sessions, h)
	return nil
}

// Len returns the number of live handles.
func (r *Reference) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (s *session) desc(t skeleton.Type) *skeleton.Description {
	if t == skeleton.Source {
		return s.src
	}
	return s.tgt
}

func (r *Reference) JointCount(h Handle, t skeleton.Type) (int, error) {
	s, err := r.session(h)
	if err != nil {
		return 0, err
	}
	return s.desc(t).JointCount(), nil
}

func (r *Reference) ParentIndices(h Handle, t skeleton.Type) ([]int, error) {
	s, err := r.session(h)
	if err != nil {
		return nil, err
	}
	return s.desc(t).ParentIndices(), nil
}

func (r *Reference) KnownJointIndex(h Handle, t skeleton.Type, k skeleton.KnownJointType) (int, error) {
	s, err := r.session(h)
	if err != nil {
		return skeleton.NoJoint, err
	}
	return s.desc(t).KnownIndex(k), nil
}

func (r *Reference) TPose(h Handle, t skeleton.Type, variant skeleton.TPoseType) ([]pose.Transform, error) {
	s, err := r.session(h)
	if err != nil {
		return nil, err
	}
	if variant < skeleton.TPoseUnscaled || variant > skeleton.TPoseMax {
		return nil, fmt.Errorf("invalid T-pose variant %d", int(variant))
	}
	return s.desc(t).TPose(variant), nil
}

func finite(t pose.Transform) bool {
	for _, f := range []float64{
		t.Position.X, t.Position.Y, t.Position.Z,
		t.Orientation.Real, t.Orientation.Imag, t.Orientation.Jmag, t.Orientation.Kmag,
	} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Retarget implements Backend.
func (r *Reference) Retarget(h Handle, settings BehaviorSettings, source []pose.Transform, manifestation string, dst []pose.Transform) bool {
	s, err := r.session(h)
	if err != nil {
		return false
	}
	if len(source) != s.src.JointCount() || len(dst) != s.tgt.JointCount() {
		return false
	}
	for _, t := range source {
		if !finite(t) {
			return false
		}
	}
	if settings.TPose < skeleton.TPoseUnscaled || settings.TPose > skeleton.TPoseMax {
		return false
	}
	scale := settings.Scale
	if scale == 0 {
		scale = 1
	}
	halfBody := settings.halfBody(manifestation)
	v := &s.variants[settings.TPose]
	hier := s.tgt.Hierarchy()

	for _, j := range hier.Order() {
		rw := v.rows[j]
		if len(rw.entries) == 0 || (halfBody && s.lowerBody[j]) {
			dst[j] = followParent(dst, hier.Parent(j), v.tgtLocal[j], scale)
			continue
		}

		tgtT := v.tgtWorld[j]
		var p r3.Vec
		for _, e := range rw.entries {
			src := source[e.SourceJointIndex]
			srcT := v.srcWorld[e.SourceJointIndex]
			offset := r3.Sub(r3.Scale(scale, tgtT.Position), srcT.Position)
			delta := pose.Mul(src.Orientation, pose.Inverse(srcT.Orientation))
			p = r3.Add(p, r3.Scale(e.PositionWeight, r3.Add(src.Position, pose.Rotate(delta, offset))))
		}

		q := tgtT.Orientation
		if rw.rotation != skeleton.NoJoint {
			q = pose.Mul(source[rw.rotation].Orientation, pose.Inverse(v.srcWorld[rw.rotation].Orientation), tgtT.Orientation)
		} else if parent := hier.Parent(j); parent != pose.NoParent {
			q = pose.Mul(dst[parent].Orientation, v.tgtLocal[j].Orientation)
		}
		dst[j] = pose.Transform{Position: p, Orientation: pose.Normalize(q), Scale: pose.One()}
	}
	return true
}

// followParent places a joint at its local T-pose under an already posed
// parent.
func followParent(dst []pose.Transform, parent int, local pose.Transform, scale float64) pose.Transform {
	offset := r3.Scale(scale, local.Position)
	if parent == pose.NoParent {
		return pose.Transform{Position: offset, Orientation: local.Orientation, Scale: pose.One()}
	}
	p := dst[parent]
	return pose.Transform{
		Position:    r3.Add(p.Position, pose.Rotate(p.Orientation, offset)),
		Orientation: pose.Normalize(pose.Mul(p.Orientation, local.Orientation)),
		Scale:       pose.One(),
	}
}
