package skeleton

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/retarget/internal/pose"
)

type jointJSON struct {
	Name     string          `json:"name"`
	Parent   string          `json:"parent,omitempty"`
	TPose    pose.Transform  `json:"tpose"`
	TPoseMin *pose.Transform `json:"tpose_min,omitempty"`
	TPoseMax *pose.Transform `json:"tpose_max,omitempty"`
}

type descriptionJSON struct {
	Type        string            `json:"type"`
	Joints      []jointJSON       `json:"joints"`
	KnownJoints map[string]string `json:"known_joints,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (d *Description) MarshalJSON() ([]byte, error) {
	out := descriptionJSON{
		Type:        d.typ.String(),
		Joints:      make([]jointJSON, len(d.joints)),
		KnownJoints: make(map[string]string),
	}
	for i, name := range d.joints {
		minT, maxT := d.tposes[TPoseMin][i], d.tposes[TPoseMax][i]
		out.Joints[i] = jointJSON{
			Name:     name,
			Parent:   d.parentJoints[i],
			TPose:    d.tposes[TPoseUnscaled][i],
			TPoseMin: &minT,
			TPoseMax: &maxT,
		}
	}
	for k, idx := range d.known {
		if idx != NoJoint {
			out.KnownJoints[KnownJointType(k).String()] = d.joints[idx]
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Description) UnmarshalJSON(data []byte) error {
	var raw descriptionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	typ, err := ParseType(raw.Type)
	if err != nil {
		return err
	}
	p := Params{
		Type:        typ,
		KnownJoints: make(map[KnownJointType]string, len(raw.KnownJoints)),
	}
	for _, j := range raw.Joints {
		p.Joints = append(p.Joints, j.Name)
		p.ParentJoints = append(p.ParentJoints, j.Parent)
		p.TPose = append(p.TPose, j.TPose)
		minT, maxT := j.TPose, j.TPose
		if j.TPoseMin != nil {
			minT = *j.TPoseMin
		}
		if j.TPoseMax != nil {
			maxT = *j.TPoseMax
		}
		p.TPoseMin = append(p.TPoseMin, minT)
		p.TPoseMax = append(p.TPoseMax, maxT)
	}
	for name, joint := range raw.KnownJoints {
		k, err := ParseKnownJointType(name)
		if err != nil {
			return fmt.Errorf("%s skeleton: %w", typ, err)
		}
		p.KnownJoints[k] = joint
	}
	parsed, err := New(p)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}
