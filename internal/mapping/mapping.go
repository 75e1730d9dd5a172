// Package mapping builds joint mapping tables: for every target joint, a
// short weighted list of source joints whose positions are blended to place
// it.
package mapping

import (
	"fmt"
	"math"

	"github.com/banshee-data/retarget/internal/skeleton"
)

// Behavior selects how a mapping is applied.
type Behavior int

const (
	BehaviorNormal Behavior = iota
	// BehaviorChildRotation takes the rotation of the first child's
	// rotation source instead of the joint's own.
	BehaviorChildRotation
)

func (b Behavior) String() string {
	switch b {
	case BehaviorNormal:
		return "normal"
	case BehaviorChildRotation:
		return "child_rotation"
	}
	return fmt.Sprintf("Behavior(%d)", int(b))
}

// ParseBehavior parses the String form of a Behavior.
func ParseBehavior(s string) (Behavior, error) {
	switch s {
	case "normal", "":
		return BehaviorNormal, nil
	case "child_rotation":
		return BehaviorChildRotation, nil
	}
	return 0, fmt.Errorf("unknown mapping behavior %q", s)
}

// JointMapping heads a run of EntriesCount entries for one target joint.
type JointMapping struct {
	TargetJointIndex int           `json:"target_joint"`
	SourceSkeleton   skeleton.Type `json:"source_skeleton"`
	Behavior         Behavior      `json:"behavior"`
	EntriesCount     int           `json:"entries_count"`
}

// JointMappingEntry is one weighted source joint contribution.
type JointMappingEntry struct {
	SourceJointIndex int     `json:"source_joint"`
	PositionWeight   float64 `json:"position_weight"`
	RotationWeight   float64 `json:"rotation_weight"`
}

// Table is a flat mapping table: Entries holds, in order, the contiguous
// entry run of each element of Mappings.
type Table struct {
	Mappings []JointMapping      `json:"mappings"`
	Entries  []JointMappingEntry `json:"entries"`
}

// Append adds a mapping and its entries; EntriesCount is set from entries.
func (t *Table) Append(m JointMapping, entries ...JointMappingEntry) {
	m.EntriesCount = len(entries)
	t.Mappings = append(t.Mappings, m)
	t.Entries = append(t.Entries, entries...)
}

// Each calls fn for every mapping with its entry run, in table order.
// Iteration stops when fn returns false.
func (t *Table) Each(fn func(m JointMapping, entries []JointMappingEntry) bool) {
	off := 0
	for _, m := range t.Mappings {
		entries := t.Entries[off : off+m.EntriesCount]
		off += m.EntriesCount
		if !fn(m, entries) {
			return
		}
	}
}

// Find returns the mapping and entry run for a target joint.
func (t *Table) Find(target int) (JointMapping, []JointMappingEntry, bool) {
	var (
		found   JointMapping
		entries []JointMappingEntry
		ok      bool
	)
	t.Each(func(m JointMapping, e []JointMappingEntry) bool {
		if m.TargetJointIndex == target {
			found, entries, ok = m, e, true
			return false
		}
		return true
	})
	return found, entries, ok
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	return &Table{
		Mappings: append([]JointMapping(nil), t.Mappings...),
		Entries:  append([]JointMappingEntry(nil), t.Entries...),
	}
}

// weightTolerance bounds the allowed drift of a weight sum from 1.
const weightTolerance = 1e-6

// Validate checks the table against skeletons with the given joint counts:
// entry runs must add up, indices must be in range, no target joint may be
// mapped twice and no source joint may repeat within a run. Non-empty runs
// must have position weights summing to 1.
func (t *Table) Validate(sourceJoints, targetJoints int) error {
	total := 0
	for _, m := range t.Mappings {
		if m.EntriesCount < 0 {
			return fmt.Errorf("target joint %d: negative entries count %d", m.TargetJointIndex, m.EntriesCount)
		}
		total += m.EntriesCount
	}
	if total != len(t.Entries) {
		return fmt.Errorf("entries count mismatch: mappings declare %d, table holds %d", total, len(t.Entries))
	}

	seenTarget := make(map[int]bool, len(t.Mappings))
	var err error
	t.Each(func(m JointMapping, entries []JointMappingEntry) bool {
		if m.TargetJointIndex < 0 || m.TargetJointIndex >= targetJoints {
			err = fmt.Errorf("target joint %d out of range [0,%d)", m.TargetJointIndex, targetJoints)
			return false
		}
		if seenTarget[m.TargetJointIndex] {
			err = fmt.Errorf("target joint %d mapped twice", m.TargetJointIndex)
			return false
		}
		seenTarget[m.TargetJointIndex] = true

		seenSource := make(map[int]bool, len(entries))
		sum := 0.0
		for _, e := range entries {
			if e.SourceJointIndex < 0 || e.SourceJointIndex >= sourceJoints {
				err = fmt.Errorf("target joint %d: source joint %d out of range [0,%d)", m.TargetJointIndex, e.SourceJointIndex, sourceJoints)
				return false
			}
			if seenSource[e.SourceJointIndex] {
				err = fmt.Errorf("target joint %d: source joint %d repeated", m.TargetJointIndex, e.SourceJointIndex)
				return false
			}
			seenSource[e.SourceJointIndex] = true
			sum += e.PositionWeight
		}
		if len(entries) > 0 && math.Abs(sum-1) > weightTolerance {
			err = fmt.Errorf("target joint %d: position weights sum to %g", m.TargetJointIndex, sum)
			return false
		}
		return true
	})
	return err
}
