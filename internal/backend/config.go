// Package backend defines the retargeting backend contract: opaque handles
// built from JSON config text, skeleton queries, and the per-frame
// retarget call. Reference is a pure-Go implementation of the contract.
package backend

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/retarget/internal/mapping"
	"github.com/banshee-data/retarget/internal/skeleton"
)

// ConfigInitParams is everything needed to build a retargeting handle.
type ConfigInitParams struct {
	Source      *skeleton.Description `json:"source"`
	Target      *skeleton.Description `json:"target"`
	MinMappings *mapping.Table        `json:"min_mappings"`
	MaxMappings *mapping.Table        `json:"max_mappings"`
}

// NewConfigInitParams generates both mapping tables for src and tgt.
func NewConfigInitParams(src, tgt *skeleton.Description, opts mapping.Options) (*ConfigInitParams, error) {
	min, max, err := mapping.GenerateMinMax(src, tgt, opts)
	if err != nil {
		return nil, fmt.Errorf("generate mappings: %w", err)
	}
	p := &ConfigInitParams{Source: src, Target: tgt, MinMappings: min, MaxMappings: max}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that both skeletons are present with the right roles and
// that both tables fit them.
func (p *ConfigInitParams) Validate() error {
	if p.Source == nil || p.Target == nil {
		return errors.New("config: source and target skeletons are required")
	}
	if p.Source.Type() != skeleton.Source {
		return fmt.Errorf("config: source skeleton has type %s", p.Source.Type())
	}
	if p.Target.Type() != skeleton.Target {
		return fmt.Errorf("config: target skeleton has type %s", p.Target.Type())
	}
	for name, t := range map[string]*mapping.Table{"min": p.MinMappings, "max": p.MaxMappings} {
		if t == nil {
			return fmt.Errorf("config: %s mapping table is required", name)
		}
		if err := t.Validate(p.Source.JointCount(), p.Target.JointCount()); err != nil {
			return fmt.Errorf("config: %s mapping table: %w", name, err)
		}
	}
	return nil
}

// Table returns the mapping table used with T-pose variant t. The
// unscaled T-pose uses the min table.
func (p *ConfigInitParams) Table(t skeleton.TPoseType) *mapping.Table {
	if t == skeleton.TPoseMax {
		return p.MaxMappings
	}
	return p.MinMappings
}

// Marshal returns the JSON config text for p.
func (p *ConfigInitParams) Marshal() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// ParseConfig parses and validates JSON config text.
func ParseConfig(data []byte) (*ConfigInitParams, error) {
	var p ConfigInitParams
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
