package retarget

import "github.com/banshee-data/retarget/internal/pose"

// frameArena holds the scratch buffers of one retargeter. They are sized
// once per configuration and overwritten every frame, so the frame path
// does not allocate pose arrays.
type frameArena struct {
	source []pose.Transform
	target []pose.Transform
	local  []pose.Transform
}

func newFrameArena(sourceJoints, targetJoints int) *frameArena {
	return &frameArena{
		source: make([]pose.Transform, sourceJoints),
		target: make([]pose.Transform, targetJoints),
		local:  make([]pose.Transform, targetJoints),
	}
}

// loadSource copies a provider pose into the source buffer. It reports
// false when the length does not match the configured skeleton.
func (a *frameArena) loadSource(p []pose.Transform) bool {
	if len(p) != len(a.source) {
		return false
	}
	copy(a.source, p)
	return true
}
