package pose

import (
	"encoding/json"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// transformJSON is the persisted form of a Transform. Rotation is stored as
// (x, y, z, w); an omitted rotation or scale decodes to identity.
type transformJSON struct {
	Position [3]float64  `json:"position"`
	Rotation *[4]float64 `json:"rotation,omitempty"`
	Scale    *[3]float64 `json:"scale,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (t Transform) MarshalJSON() ([]byte, error) {
	q := t.Orientation
	s := t.Scale
	return json.Marshal(transformJSON{
		Position: [3]float64{t.Position.X, t.Position.Y, t.Position.Z},
		Rotation: &[4]float64{q.Imag, q.Jmag, q.Kmag, q.Real},
		Scale:    &[3]float64{s.X, s.Y, s.Z},
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Transform) UnmarshalJSON(data []byte) error {
	var raw transformJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Identity()
	t.Position = r3.Vec{X: raw.Position[0], Y: raw.Position[1], Z: raw.Position[2]}
	if r := raw.Rotation; r != nil {
		t.Orientation = Normalize(quat.Number{Imag: r[0], Jmag: r[1], Kmag: r[2], Real: r[3]})
	}
	if s := raw.Scale; s != nil {
		t.Scale = r3.Vec{X: s[0], Y: s[1], Z: s[2]}
	}
	return nil
}
