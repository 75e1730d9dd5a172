package backend

import (
	"errors"

	"github.com/google/uuid"

	"github.com/banshee-data/retarget/internal/pose"
	"github.com/banshee-data/retarget/internal/skeleton"
)

// Manifestation tags reported by source providers.
const (
	ManifestationFullBody = "fullbody"
	ManifestationHalfBody = "halfbody"
)

// ErrUnknownHandle is returned for handles that were never created or
// have been destroyed.
var ErrUnknownHandle = errors.New("unknown retargeting handle")

// Handle identifies a configured retargeting session inside a backend.
type Handle uuid.UUID

// NilHandle is the zero handle; no backend issues it.
var NilHandle Handle

func (h Handle) String() string { return uuid.UUID(h).String() }

// Valid reports whether h is not the zero handle.
func (h Handle) Valid() bool { return h != NilHandle }

// BehaviorSettings tunes a single retarget call.
type BehaviorSettings struct {
	// TPose selects the T-pose variant and mapping table.
	TPose skeleton.TPoseType
	// Scale multiplies the target's T-pose offsets so the output lands in
	// source-sized world space. Zero means 1.
	Scale float64
	// HalfBodyManifestation is the manifestation tag for which lower body
	// joints hold their T-pose. Empty means ManifestationHalfBody.
	HalfBodyManifestation string
}

// halfBody reports whether manifestation selects the half-body behavior.
func (s BehaviorSettings) halfBody(manifestation string) bool {
	tag := s.HalfBodyManifestation
	if tag == "" {
		tag = ManifestationHalfBody
	}
	return manifestation == tag
}

// Backend is the retargeting backend contract. Handles are owned by the
// caller that created them; Retarget may be called concurrently for
// different handles.
type Backend interface {
	CreateHandle(config []byte) (Handle, error)
	UpdateHandle(h Handle, config []byte) error
	DestroyHandle(h Handle) error

	JointCount(h Handle, t skeleton.Type) (int, error)
	ParentIndices(h Handle, t skeleton.Type) ([]int, error)
	KnownJointIndex(h Handle, t skeleton.Type, k skeleton.KnownJointType) (int, error)
	// TPose returns a T-pose variant in parent-relative local space.
	TPose(h Handle, t skeleton.Type, variant skeleton.TPoseType) ([]pose.Transform, error)

	// Retarget writes the world-space target pose for a world-space source
	// pose into dst. It reports false, leaving dst unspecified, when the
	// handle is unknown or the input is unusable.
	Retarget(h Handle, settings BehaviorSettings, source []pose.Transform, manifestation string, dst []pose.Transform) bool
}
