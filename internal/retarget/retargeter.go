// Package retarget drives per-frame retargeting of a tracked source pose
// onto a target character through a Backend: T-pose driven scale,
// calibration lock, processor phases, root/head/leg scale policy and
// world-to-local conversion.
package retarget

import (
	"errors"
	"fmt"

	"github.com/banshee-data/retarget/internal/backend"
	"github.com/banshee-data/retarget/internal/pose"
	"github.com/banshee-data/retarget/internal/skeleton"
)

var (
	ErrNotInitialized     = errors.New("retargeter not initialized")
	ErrAlreadyInitialized = errors.New("retargeter already initialized")
	ErrDisposed           = errors.New("retargeter disposed")
	ErrNoSourceFrame      = errors.New("no source frame to calibrate against")
)

// State is the lifecycle state of a Retargeter.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Pipeline lists the processors of each phase in run order.
type Pipeline struct {
	Source []Processor
	Target []Processor
	Late   []Processor
}

// Validate checks every processor and that it can run in its phase.
func (p Pipeline) Validate() error {
	for phase, list := range [...][]Processor{PhaseSource: p.Source, PhaseTarget: p.Target, PhaseLate: p.Late} {
		for i, proc := range list {
			if err := proc.Validate(); err != nil {
				return fmt.Errorf("%s processor %d: %w", Phase(phase), i, err)
			}
			if !proc.Kind.Supports(Phase(phase)) {
				return fmt.Errorf("%s processor %d: %s cannot run in this phase", Phase(phase), i, proc.Kind)
			}
		}
	}
	return nil
}

// FrameResult is the payload for the character application layer. The
// slices are owned by the Retargeter and overwritten by the next frame.
type FrameResult struct {
	Frame         uint64
	World         []pose.Transform
	Local         []pose.Transform
	RootScale     float64
	HeadScale     float64
	LegScale      float64
	Manifestation string
}

// binding is what the retargeter reads back from one backend handle.
type binding struct {
	handle       backend.Handle
	skeletons    Skeletons
	sourceJoints int
	targetJoints int
	sourceRoot   int
	root         int
	head         int
	legs         []int
	targetHeight float64

	arena *frameArena
	world []pose.Transform
	local []pose.Transform
	// base is the local pose of the last good Update before the late phase.
	base []pose.Transform
}

// Retargeter owns one retargeting session. It is not safe for concurrent
// use; independent instances may run in parallel.
type Retargeter struct {
	backend  backend.Backend
	settings Settings
	pipeline Pipeline

	state State
	b     *binding

	currentScale float64
	sourceTPose  []pose.Transform
	reference    []pose.Transform
	lastSource   []pose.Transform
	haveSource   bool
	calibrated   bool

	frame         uint64
	updated       bool
	failing       bool
	failures      int
	rootScale     float64
	headScale     float64
	legScale      float64
	manifestation string
}

// New returns an uninitialized retargeter.
func New(b backend.Backend, s Settings, p Pipeline) (*Retargeter, error) {
	if b == nil {
		return nil, errors.New("retargeter: nil backend")
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("retargeter settings: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("retargeter pipeline: %w", err)
	}
	return &Retargeter{
		backend:      b,
		settings:     s,
		pipeline:     p,
		currentScale: 1,
		rootScale:    1,
		headScale:    1,
		legScale:     1,
	}, nil
}

// State returns the lifecycle state.
func (r *Retargeter) State() State { return r.state }

// Handle returns the backend handle, or backend.NilHandle.
func (r *Retargeter) Handle() backend.Handle {
	if r.b == nil {
		return backend.NilHandle
	}
	return r.b.handle
}

// CurrentScale returns the source/target height ratio before clamping.
func (r *Retargeter) CurrentScale() float64 { return r.currentScale }

// Calibrated reports whether the calibration lock is on.
func (r *Retargeter) Calibrated() bool { return r.calibrated }

// Failures returns the number of frames dropped since Setup.
func (r *Retargeter) Failures() int { return r.failures }

// Skeletons returns the joint structure of the current handle.
func (r *Retargeter) Skeletons() (Skeletons, bool) {
	if r.b == nil {
		return Skeletons{}, false
	}
	return r.b.skeletons, true
}

// Setup creates the backend handle from config text. A backend failure is
// returned as is; there is no retry.
func (r *Retargeter) Setup(config []byte) error {
	switch r.state {
	case StateInitialized:
		return ErrAlreadyInitialized
	case StateDisposed:
		return ErrDisposed
	}
	h, err := r.backend.CreateHandle(config)
	if err != nil {
		Opsf("setup failed: %v", err)
		return fmt.Errorf("setup: create handle: %w", err)
	}
	b, err := r.bind(h)
	if err != nil {
		_ = r.backend.DestroyHandle(h)
		Opsf("setup failed: %v", err)
		return fmt.Errorf("setup: %w", err)
	}
	r.b = b
	r.state = StateInitialized
	r.lastSource = make([]pose.Transform, b.sourceJoints)
	Opsf("setup: handle %s, %d source joints, %d target joints", h, b.sourceJoints, b.targetJoints)
	return nil
}

// Reconfigure replaces the handle with one built from config. The old
// handle is destroyed only after the new one is bound; on failure the
// retargeter keeps running on the old handle.
func (r *Retargeter) Reconfigure(config []byte) error {
	if err := r.ready(); err != nil {
		return err
	}
	h, err := r.backend.CreateHandle(config)
	if err != nil {
		Opsf("reconfigure failed, keeping handle %s: %v", r.b.handle, err)
		return fmt.Errorf("reconfigure: create handle: %w", err)
	}
	b, err := r.bind(h)
	if err != nil {
		_ = r.backend.DestroyHandle(h)
		Opsf("reconfigure failed, keeping handle %s: %v", r.b.handle, err)
		return fmt.Errorf("reconfigure: %w", err)
	}

	old := r.b
	r.b = b
	r.updated = false
	if b.sourceJoints != old.sourceJoints {
		r.lastSource = make([]pose.Transform, b.sourceJoints)
		r.haveSource = false
		r.reference = nil
		r.sourceTPose = nil
		r.calibrated = false
		r.currentScale = 1
	} else if r.sourceTPose != nil {
		r.refreshScale(r.sourceTPose)
	}
	if err := r.backend.DestroyHandle(old.handle); err != nil {
		Opsf("reconfigure: destroy old handle %s: %v", old.handle, err)
	}
	Opsf("reconfigure: handle %s replaced %s", b.handle, old.handle)
	return nil
}

// Dispose destroys the handle. The retargeter cannot be used afterwards.
func (r *Retargeter) Dispose() error {
	if r.state == StateDisposed {
		return ErrDisposed
	}
	var err error
	if r.b != nil {
		if err = r.backend.DestroyHandle(r.b.handle); err != nil {
			Opsf("dispose: %v", err)
			err = fmt.Errorf("dispose: %w", err)
		}
	}
	r.b = nil
	r.state = StateDisposed
	return err
}

func (r *Retargeter) ready() error {
	switch r.state {
	case StateUninitialized:
		return ErrNotInitialized
	case StateDisposed:
		return ErrDisposed
	}
	return nil
}

// Calibrate locks the most recent source frame as the reference every
// later frame is scaled to match.
func (r *Retargeter) Calibrate() error {
	if err := r.ready(); err != nil {
		return err
	}
	if !r.haveSource {
		return ErrNoSourceFrame
	}
	r.reference = pose.Clone(r.lastSource)
	r.calibrated = true
	Diagf("calibrated at frame %d (extent %.3f)", r.frame, pose.Extent(r.reference, r.b.sourceRoot))
	return nil
}

// Uncalibrate releases the calibration lock.
func (r *Retargeter) Uncalibrate() {
	if r.calibrated {
		Diagf("calibration released at frame %d", r.frame)
	}
	r.calibrated = false
}

func (r *Retargeter) bind(h backend.Handle) (*binding, error) {
	b := &binding{handle: h}
	for _, t := range []skeleton.Type{skeleton.Source, skeleton.Target} {
		n, err := r.backend.JointCount(h, t)
		if err != nil {
			return nil, fmt.Errorf("%s joint count: %w", t, err)
		}
		parents, err := r.backend.ParentIndices(h, t)
		if err != nil {
			return nil, fmt.Errorf("%s parents: %w", t, err)
		}
		if len(parents) != n {
			return nil, fmt.Errorf("%s skeleton: %d parents for %d joints", t, len(parents), n)
		}
		hier, err := pose.NewHierarchy(parents)
		if err != nil {
			return nil, fmt.Errorf("%s skeleton: %w", t, err)
		}
		known := skeleton.NewKnownJointTable()
		for k := skeleton.KnownJointType(0); k < skeleton.KnownJointCount; k++ {
			idx, err := r.backend.KnownJointIndex(h, t, k)
			if err != nil {
				return nil, fmt.Errorf("%s known joint %s: %w", t, k, err)
			}
			if idx >= n {
				return nil, fmt.Errorf("%s known joint %s: index %d out of range", t, k, idx)
			}
			known[k] = idx
		}
		if t == skeleton.Source {
			b.sourceJoints, b.skeletons.Source, b.skeletons.SourceKnown = n, hier, known
		} else {
			b.targetJoints, b.skeletons.Target, b.skeletons.TargetKnown = n, hier, known
		}
	}

	b.sourceRoot = rootIndex(b.skeletons.SourceKnown, b.skeletons.Source)
	b.root = rootIndex(b.skeletons.TargetKnown, b.skeletons.Target)
	b.head = b.skeletons.TargetKnown.Index(skeleton.Head)
	for _, k := range []skeleton.KnownJointType{skeleton.LeftUpperLeg, skeleton.RightUpperLeg, skeleton.LeftLowerLeg, skeleton.RightLowerLeg} {
		if i := b.skeletons.TargetKnown.Index(k); i != skeleton.NoJoint {
			b.legs = append(b.legs, i)
		}
	}

	local, err := r.backend.TPose(h, skeleton.Target, r.settings.TPose)
	if err != nil {
		return nil, fmt.Errorf("target T-pose: %w", err)
	}
	world := make([]pose.Transform, b.targetJoints)
	if err := b.skeletons.Target.LocalToWorld(world, local, pose.IdentityRoot()); err != nil {
		return nil, fmt.Errorf("target T-pose: %w", err)
	}
	b.targetHeight = pose.Height(world)
	b.arena = newFrameArena(b.sourceJoints, b.targetJoints)
	b.world = world
	b.local = local
	b.base = pose.Clone(local)
	return b, nil
}

// rootIndex returns the known root, else the first hierarchy root.
func rootIndex(known skeleton.KnownJointTable, h *pose.Hierarchy) int {
	if i := known.Index(skeleton.Root); i != skeleton.NoJoint {
		return i
	}
	if roots := h.Roots(); len(roots) > 0 {
		return roots[0]
	}
	return skeleton.NoJoint
}

// refreshScale recomputes the scale and reference from a source T-pose.
func (r *Retargeter) refreshScale(tpose []pose.Transform) {
	if len(tpose) != r.b.sourceJoints {
		Diagf("ignoring source T-pose with %d joints, want %d", len(tpose), r.b.sourceJoints)
		return
	}
	s := 1.0
	if h := pose.Height(tpose); h > 0 && r.b.targetHeight > 0 {
		s = h / r.b.targetHeight
	}
	if c := r.settings.CorrectScale(s); c != s {
		Diagf("scale %.4f below %.2f treated as degenerate, using %.4f", s, r.settings.DegenerateScaleThreshold, c)
		s = c
	}
	r.currentScale = s
	r.sourceTPose = pose.Clone(tpose)
	r.reference = r.sourceTPose
	Diagf("source T-pose refreshed: scale %.4f", s)
}

func (r *Retargeter) result() FrameResult {
	res := FrameResult{
		Frame:         r.frame,
		RootScale:     r.rootScale,
		HeadScale:     r.headScale,
		LegScale:      r.legScale,
		Manifestation: r.manifestation,
	}
	if r.b != nil {
		res.World, res.Local = r.b.world, r.b.local
	}
	return res
}

// fail records a dropped frame: the ops stream hears about the first
// failure of a streak, the trace stream about every one.
func (r *Retargeter) fail(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.failures++
	if !r.failing {
		Opsf("frame %d: %s; keeping previous pose", r.frame, msg)
		r.failing = true
	}
	Tracef("frame %d: %s", r.frame, msg)
}

// Update runs one frame against src. It reports false when the frame was
// dropped, in which case the result holds the previous pose.
func (r *Retargeter) Update(src SourceProvider) (FrameResult, bool) {
	if r.ready() != nil {
		return r.result(), false
	}
	b := r.b
	r.frame++
	r.updated = false

	if !r.calibrated && src.NewTPoseAvailable() {
		r.refreshScale(src.SkeletonTPose())
	}
	if !src.PoseValid() {
		Tracef("frame %d: source pose invalid", r.frame)
		return r.result(), false
	}
	if p := src.SkeletonPose(); !b.arena.loadSource(p) {
		r.fail("source pose has %d joints, want %d", len(p), b.sourceJoints)
		return r.result(), false
	}
	manifestation, _ := src.Manifestation()

	if r.calibrated {
		pose.AlignScale(b.arena.source, r.reference, b.sourceRoot)
	}
	copy(r.lastSource, b.arena.source)
	r.haveSource = true

	f := Frame{Source: b.arena.source, Target: b.arena.target, Manifestation: manifestation}
	for i, p := range r.pipeline.Source {
		if err := p.Process(PhaseSource, &f, &b.skeletons); err != nil {
			r.fail("source processor %d (%s): %v", i, p.Kind, err)
			return r.result(), false
		}
	}

	rootScale := r.settings.ClampRootScale(r.currentScale)
	settings := backend.BehaviorSettings{
		TPose:                 r.settings.TPose,
		Scale:                 rootScale,
		HalfBodyManifestation: r.settings.HalfBodyManifestation,
	}
	if !r.backend.Retarget(b.handle, settings, b.arena.source, manifestation, b.arena.target) {
		r.fail("backend retarget failed")
		return r.result(), false
	}

	for i, p := range r.pipeline.Target {
		if err := p.Process(PhaseTarget, &f, &b.skeletons); err != nil {
			r.fail("target processor %d (%s): %v", i, p.Kind, err)
			return r.result(), false
		}
	}

	headScale := r.settings.HeadScale(rootScale)
	legScale := 1.0
	if manifestation == r.settings.HalfBodyManifestation {
		legScale = r.settings.HiddenLegScale
	}

	if err := b.skeletons.Target.WorldToLocal(b.arena.local, b.arena.target, pose.ScaledRoot(pose.Uniform(rootScale))); err != nil {
		r.fail("world to local: %v", err)
		return r.result(), false
	}
	for i := range b.arena.local {
		b.arena.local[i].Scale = pose.One()
	}
	if b.root != skeleton.NoJoint {
		b.arena.local[b.root].Scale = pose.Uniform(rootScale)
	}
	if b.head != skeleton.NoJoint {
		b.arena.local[b.head].Scale = pose.Uniform(headScale)
	}
	for _, j := range b.legs {
		b.arena.local[j].Scale = pose.Uniform(legScale)
	}

	copy(b.world, b.arena.target)
	copy(b.local, b.arena.local)
	copy(b.base, b.arena.local)
	r.updated = true
	r.rootScale, r.headScale, r.legScale = rootScale, headScale, legScale
	if manifestation != r.manifestation {
		Diagf("frame %d: manifestation %q -> %q", r.frame, r.manifestation, manifestation)
		r.manifestation = manifestation
	}
	if r.failing {
		Opsf("frame %d: retargeting recovered after %d dropped frames", r.frame, r.failures)
		r.failing = false
	}
	Tracef("frame %d: root scale %.4f head scale %.4f leg scale %.2f", r.frame, rootScale, headScale, legScale)
	return r.result(), true
}

// LateUpdate runs the late processors against the pose currently applied
// to the character (local space, may be nil). The late phase always starts
// from the pose of the last Update, so calling it twice gives the same
// result. It reports false without touching the published pose when the
// last Update dropped its frame or a late processor fails.
func (r *Retargeter) LateUpdate(applied []pose.Transform) (FrameResult, bool) {
	if r.ready() != nil || !r.updated {
		return r.result(), false
	}
	if len(r.pipeline.Late) == 0 {
		return r.result(), true
	}
	b := r.b
	copy(b.arena.local, b.base)
	f := Frame{
		Source:        b.arena.source,
		Target:        b.world,
		Local:         b.arena.local,
		Applied:       applied,
		Manifestation: r.manifestation,
	}
	for i, p := range r.pipeline.Late {
		if err := p.Process(PhaseLate, &f, &b.skeletons); err != nil {
			r.fail("late processor %d (%s): %v", i, p.Kind, err)
			return r.result(), false
		}
	}
	copy(b.local, b.arena.local)
	return r.result(), true
}
