package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/retarget/internal/alignment"
	"github.com/banshee-data/retarget/internal/mapping"
	"github.com/banshee-data/retarget/internal/retarget"
	"github.com/banshee-data/retarget/internal/skeleton"
)

// DefaultConfigPath is the path to the canonical retarget defaults file.
const DefaultConfigPath = "config/retarget.defaults.json"

// RetargetConfig is the tuning configuration for mapping generation,
// alignment and the per-frame retargeter. Unset fields fall back to the
// defaults returned by the Get* methods.
type RetargetConfig struct {
	// Retargeter scale policy
	MinRootScale              *float64 `json:"min_root_scale,omitempty"`
	MaxRootScale              *float64 `json:"max_root_scale,omitempty"`
	HeadScaleFactor           *float64 `json:"head_scale_factor,omitempty"`
	HiddenLegScale            *float64 `json:"hidden_leg_scale,omitempty"`
	HalfBodyManifestation     *string  `json:"half_body_manifestation,omitempty"`
	DegenerateScaleThreshold  *float64 `json:"degenerate_scale_threshold,omitempty"`
	DegenerateScaleMultiplier *float64 `json:"degenerate_scale_multiplier,omitempty"`
	TPose                     *string  `json:"tpose,omitempty"` // "unscaled", "min" or "max"

	// Mapping generator
	MappingNeighbors       *int     `json:"mapping_neighbors,omitempty"`
	MappingWeightThreshold *float64 `json:"mapping_weight_threshold,omitempty"`
	MappingBlockedTokens   []string `json:"mapping_blocked_tokens,omitempty"`

	// Alignment engine
	AlignStepDegrees     *float64 `json:"align_step_degrees,omitempty"`
	AlignMaxAngleDegrees *float64 `json:"align_max_angle_degrees,omitempty"`
	AlignMaxIterations   *int     `json:"align_max_iterations,omitempty"`
	DesiredScaleMin      *float64 `json:"desired_scale_min,omitempty"`
	DesiredScaleMax      *float64 `json:"desired_scale_max,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyRetargetConfig returns a RetargetConfig with all fields unset.
func EmptyRetargetConfig() *RetargetConfig {
	return &RetargetConfig{}
}

// DefaultRetargetConfig returns a RetargetConfig with every field set to
// its default.
func DefaultRetargetConfig() *RetargetConfig {
	e := EmptyRetargetConfig()
	return &RetargetConfig{
		MinRootScale:              ptrFloat64(e.GetMinRootScale()),
		MaxRootScale:              ptrFloat64(e.GetMaxRootScale()),
		HeadScaleFactor:           ptrFloat64(e.GetHeadScaleFactor()),
		HiddenLegScale:            ptrFloat64(e.GetHiddenLegScale()),
		HalfBodyManifestation:     ptrString(e.GetHalfBodyManifestation()),
		DegenerateScaleThreshold:  ptrFloat64(e.GetDegenerateScaleThreshold()),
		DegenerateScaleMultiplier: ptrFloat64(e.GetDegenerateScaleMultiplier()),
		TPose:                     ptrString(skeleton.TPoseUnscaled.String()),
		MappingNeighbors:          ptrInt(e.GetMappingNeighbors()),
		MappingWeightThreshold:    ptrFloat64(e.GetMappingWeightThreshold()),
		MappingBlockedTokens:      e.GetMappingBlockedTokens(),
		AlignStepDegrees:          ptrFloat64(e.GetAlignStepDegrees()),
		AlignMaxAngleDegrees:      ptrFloat64(e.GetAlignMaxAngleDegrees()),
		AlignMaxIterations:        ptrInt(e.GetAlignMaxIterations()),
		DesiredScaleMin:           ptrFloat64(e.GetDesiredScaleMin()),
		DesiredScaleMax:           ptrFloat64(e.GetDesiredScaleMax()),
	}
}

// LoadRetargetConfig loads a RetargetConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadRetargetConfig(path string) (*RetargetConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseRetargetConfig(data)
}

// ParseRetargetConfig parses and validates config JSON.
func ParseRetargetConfig(data []byte) (*RetargetConfig, error) {
	cfg := EmptyRetargetConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents up to the repo root.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *RetargetConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadRetargetConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *RetargetConfig) Validate() error {
	if c.TPose != nil {
		if _, err := skeleton.ParseTPoseType(*c.TPose); err != nil {
			return fmt.Errorf("tpose: %w", err)
		}
	}
	if err := c.Settings().Validate(); err != nil {
		return err
	}

	if n := c.GetMappingNeighbors(); n < 1 {
		return fmt.Errorf("mapping_neighbors must be at least 1, got %d", n)
	}
	if w := c.GetMappingWeightThreshold(); w < 0 || w >= 1 {
		return fmt.Errorf("mapping_weight_threshold must be in [0,1), got %f", w)
	}

	if s := c.GetAlignStepDegrees(); s <= 0 || s > 360 {
		return fmt.Errorf("align_step_degrees must be in (0,360], got %f", s)
	}
	if a := c.GetAlignMaxAngleDegrees(); a <= 0 || a > 180 {
		return fmt.Errorf("align_max_angle_degrees must be in (0,180], got %f", a)
	}
	if n := c.GetAlignMaxIterations(); n < 1 {
		return fmt.Errorf("align_max_iterations must be positive, got %d", n)
	}
	if lo, hi := c.GetDesiredScaleMin(), c.GetDesiredScaleMax(); lo <= 0 || hi < lo {
		return fmt.Errorf("desired scale band [%f,%f] is invalid", lo, hi)
	}
	return nil
}

// Settings converts the configuration to the retargeter's settings.
func (c *RetargetConfig) Settings() retarget.Settings {
	return retarget.Settings{
		MinRootScale:              c.GetMinRootScale(),
		MaxRootScale:              c.GetMaxRootScale(),
		HeadScaleFactor:           c.GetHeadScaleFactor(),
		HiddenLegScale:            c.GetHiddenLegScale(),
		HalfBodyManifestation:     c.GetHalfBodyManifestation(),
		DegenerateScaleThreshold:  c.GetDegenerateScaleThreshold(),
		DegenerateScaleMultiplier: c.GetDegenerateScaleMultiplier(),
		TPose:                     c.GetTPose(),
	}
}

// MappingOptions converts the configuration to mapping generator options.
func (c *RetargetConfig) MappingOptions() mapping.Options {
	o := mapping.DefaultOptions()
	o.Neighbors = c.GetMappingNeighbors()
	o.WeightThreshold = c.GetMappingWeightThreshold()
	o.TPose = c.GetTPose()
	o.Blocked = mapping.BlockTokens(c.GetMappingBlockedTokens()...)
	return o
}

// AlignmentSettings converts the configuration to alignment settings.
func (c *RetargetConfig) AlignmentSettings() alignment.Settings {
	return alignment.Settings{
		StepDegrees:     c.GetAlignStepDegrees(),
		MaxAngleDegrees: c.GetAlignMaxAngleDegrees(),
		MaxIterations:   c.GetAlignMaxIterations(),
		MinScale:        c.GetDesiredScaleMin(),
		MaxScale:        c.GetDesiredScaleMax(),
	}
}

// GetMinRootScale returns the min_root_scale value or the default.
func (c *RetargetConfig) GetMinRootScale() float64 {
	if c.MinRootScale == nil {
		return 0.8
	}
	return *c.MinRootScale
}

// GetMaxRootScale returns the max_root_scale value or the default.
func (c *RetargetConfig) GetMaxRootScale() float64 {
	if c.MaxRootScale == nil {
		return 1.2
	}
	return *c.MaxRootScale
}

// GetHeadScaleFactor returns the head_scale_factor value or the default.
func (c *RetargetConfig) GetHeadScaleFactor() float64 {
	if c.HeadScaleFactor == nil {
		return 0.5
	}
	return *c.HeadScaleFactor
}

// GetHiddenLegScale returns the hidden_leg_scale value or the default.
func (c *RetargetConfig) GetHiddenLegScale() float64 {
	if c.HiddenLegScale == nil {
		return 0 // default: legs collapse
	}
	return *c.HiddenLegScale
}

// GetHalfBodyManifestation returns the half_body_manifestation value or the default.
func (c *RetargetConfig) GetHalfBodyManifestation() string {
	if c.HalfBodyManifestation == nil || *c.HalfBodyManifestation == "" {
		return "halfbody"
	}
	return *c.HalfBodyManifestation
}

// GetDegenerateScaleThreshold returns the degenerate_scale_threshold value or the default.
func (c *RetargetConfig) GetDegenerateScaleThreshold() float64 {
	if c.DegenerateScaleThreshold == nil {
		return 0.2
	}
	return *c.DegenerateScaleThreshold
}

// GetDegenerateScaleMultiplier returns the degenerate_scale_multiplier value or the default.
func (c *RetargetConfig) GetDegenerateScaleMultiplier() float64 {
	if c.DegenerateScaleMultiplier == nil {
		return 10
	}
	return *c.DegenerateScaleMultiplier
}

// GetTPose returns the T-pose variant, falling back to unscaled when unset
// or unparseable.
func (c *RetargetConfig) GetTPose() skeleton.TPoseType {
	if c.TPose == nil {
		return skeleton.TPoseUnscaled
	}
	t, err := skeleton.ParseTPoseType(*c.TPose)
	if err != nil {
		return skeleton.TPoseUnscaled
	}
	return t
}

// GetMappingNeighbors returns the mapping_neighbors value or the default.
func (c *RetargetConfig) GetMappingNeighbors() int {
	if c.MappingNeighbors == nil {
		return mapping.DefaultNeighbors
	}
	return *c.MappingNeighbors
}

// GetMappingWeightThreshold returns the mapping_weight_threshold value or the default.
func (c *RetargetConfig) GetMappingWeightThreshold() float64 {
	if c.MappingWeightThreshold == nil {
		return mapping.DefaultWeightThreshold
	}
	return *c.MappingWeightThreshold
}

// GetMappingBlockedTokens returns the mapping_blocked_tokens value or the default.
func (c *RetargetConfig) GetMappingBlockedTokens() []string {
	if c.MappingBlockedTokens == nil {
		return append([]string(nil), mapping.DefaultBlockedTokens...)
	}
	return c.MappingBlockedTokens
}

// GetAlignStepDegrees returns the align_step_degrees value or the default.
func (c *RetargetConfig) GetAlignStepDegrees() float64 {
	if c.AlignStepDegrees == nil {
		return alignment.DefaultStepDegrees
	}
	return *c.AlignStepDegrees
}

// GetAlignMaxAngleDegrees returns the align_max_angle_degrees value or the default.
func (c *RetargetConfig) GetAlignMaxAngleDegrees() float64 {
	if c.AlignMaxAngleDegrees == nil {
		return alignment.DefaultMaxAngleDegrees
	}
	return *c.AlignMaxAngleDegrees
}

// GetAlignMaxIterations returns the align_max_iterations value or the default.
func (c *RetargetConfig) GetAlignMaxIterations() int {
	if c.AlignMaxIterations == nil {
		return alignment.DefaultMaxIterations
	}
	return *c.AlignMaxIterations
}

// GetDesiredScaleMin returns the desired_scale_min value or the default.
func (c *RetargetConfig) GetDesiredScaleMin() float64 {
	if c.DesiredScaleMin == nil {
		return alignment.DefaultMinScale
	}
	return *c.DesiredScaleMin
}

// GetDesiredScaleMax returns the desired_scale_max value or the default.
func (c *RetargetConfig) GetDesiredScaleMax() float64 {
	if c.DesiredScaleMax == nil {
		return alignment.DefaultMaxScale
	}
	return *c.DesiredScaleMax
}
