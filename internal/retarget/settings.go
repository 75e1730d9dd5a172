package retarget

import (
	"fmt"

	"github.com/banshee-data/retarget/internal/backend"
	"github.com/banshee-data/retarget/internal/skeleton"
)

// Settings holds the per-instance scale and manifestation policy.
type Settings struct {
	MinRootScale    float64
	MaxRootScale    float64
	HeadScaleFactor float64
	HiddenLegScale  float64

	// HalfBodyManifestation is the manifestation tag that hides the legs.
	HalfBodyManifestation string

	// Source/target height ratios below DegenerateScaleThreshold are
	// multiplied by DegenerateScaleMultiplier. This corrects a known bad
	// calibration pattern and is kept for compatibility.
	DegenerateScaleThreshold  float64
	DegenerateScaleMultiplier float64

	// TPose selects the backend T-pose variant and mapping table.
	TPose skeleton.TPoseType
}

// DefaultSettings returns the default retargeting settings.
func DefaultSettings() Settings {
	return Settings{
		MinRootScale:              0.8,
		MaxRootScale:              1.2,
		HeadScaleFactor:           0.5,
		HiddenLegScale:            0,
		HalfBodyManifestation:     backend.ManifestationHalfBody,
		DegenerateScaleThreshold:  0.2,
		DegenerateScaleMultiplier: 10,
		TPose:                     skeleton.TPoseUnscaled,
	}
}

// Validate checks the settings for consistency.
func (s Settings) Validate() error {
	if s.MinRootScale <= 0 || s.MaxRootScale < s.MinRootScale {
		return fmt.Errorf("root scale band [%g,%g] is invalid", s.MinRootScale, s.MaxRootScale)
	}
	if s.HeadScaleFactor < 0 || s.HeadScaleFactor > 1 {
		return fmt.Errorf("head scale factor %g outside [0,1]", s.HeadScaleFactor)
	}
	if s.HiddenLegScale < 0 {
		return fmt.Errorf("hidden leg scale %g is negative", s.HiddenLegScale)
	}
	if s.DegenerateScaleMultiplier <= 0 {
		return fmt.Errorf("degenerate scale multiplier %g must be positive", s.DegenerateScaleMultiplier)
	}
	if s.TPose < skeleton.TPoseUnscaled || s.TPose > skeleton.TPoseMax {
		return fmt.Errorf("invalid T-pose variant %d", int(s.TPose))
	}
	return nil
}

// ClampRootScale limits v to the root scale band. It is idempotent.
func (s Settings) ClampRootScale(v float64) float64 {
	if v < s.MinRootScale {
		return s.MinRootScale
	}
	if v > s.MaxRootScale {
		return s.MaxRootScale
	}
	return v
}

// HeadScale returns the head scale compensating a root scale.
func (s Settings) HeadScale(rootScale float64) float64 {
	return 1 + (1-rootScale)*(1-s.HeadScaleFactor)
}

// CorrectScale applies the degenerate-scale heuristic.
func (s Settings) CorrectScale(v float64) float64 {
	if v < s.DegenerateScaleThreshold {
		return v * s.DegenerateScaleMultiplier
	}
	return v
}
