// Package stream encodes retargeted frames for the character application
// layer: protobuf wire format messages, length-delimited on a byte stream.
package stream

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/banshee-data/retarget/internal/pose"
	"github.com/banshee-data/retarget/internal/retarget"
)

// Field numbers of the frame message.
const (
	fieldSequence      protowire.Number = 1
	fieldManifestation protowire.Number = 2
	fieldRootScale     protowire.Number = 3
	fieldHeadScale     protowire.Number = 4
	fieldLegScale      protowire.Number = 5
	fieldJoint         protowire.Number = 6
)

// Field numbers of the joint message. Each is a packed repeated double.
const (
	fieldPosition    protowire.Number = 1 // x, y, z
	fieldOrientation protowire.Number = 2 // real, i, j, k
	fieldScale       protowire.Number = 3 // x, y, z
)

// Frame is one retargeted pose as the character application consumes it.
type Frame struct {
	Sequence      uint64
	Manifestation string
	RootScale     float64
	HeadScale     float64
	LegScale      float64
	Local         []pose.Transform
}

// FromResult copies a retargeter result into a Frame.
func FromResult(r retarget.FrameResult) Frame {
	return Frame{
		Sequence:      r.Frame,
		Manifestation: r.Manifestation,
		RootScale:     r.RootScale,
		HeadScale:     r.HeadScale,
		LegScale:      r.LegScale,
		Local:         pose.Clone(r.Local),
	}
}

// AppendFrame appends the wire encoding of f to b.
func AppendFrame(b []byte, f Frame) []byte {
	b = protowire.AppendTag(b, fieldSequence, protowire.VarintType)
	b = protowire.AppendVarint(b, f.Sequence)
	if f.Manifestation != "" {
		b = protowire.AppendTag(b, fieldManifestation, protowire.BytesType)
		b = protowire.AppendString(b, f.Manifestation)
	}
	b = appendDouble(b, fieldRootScale, f.RootScale)
	b = appendDouble(b, fieldHeadScale, f.HeadScale)
	b = appendDouble(b, fieldLegScale, f.LegScale)

	var joint []byte
	for _, t := range f.Local {
		joint = joint[:0]
		joint = appendPacked(joint, fieldPosition, t.Position.X, t.Position.Y, t.Position.Z)
		o := t.Orientation
		joint = appendPacked(joint, fieldOrientation, o.Real, o.Imag, o.Jmag, o.Kmag)
		joint = appendPacked(joint, fieldScale, t.Scale.X, t.Scale.Y, t.Scale.Z)
		b = protowire.AppendTag(b, fieldJoint, protowire.BytesType)
		b = protowire.AppendBytes(b, joint)
	}
	return b
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendPacked(b []byte, num protowire.Number, vs ...float64) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(8*len(vs)))
	for _, v := range vs {
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	return b
}

var errWireType = errors.New("unexpected wire type")

var frameFields = map[protowire.Number]protowire.Type{
	fieldSequence:      protowire.VarintType,
	fieldManifestation: protowire.BytesType,
	fieldRootScale:     protowire.Fixed64Type,
	fieldHeadScale:     protowire.Fixed64Type,
	fieldLegScale:      protowire.Fixed64Type,
	fieldJoint:         protowire.BytesType,
}

// UnmarshalFrame decodes a frame message. Unknown fields are skipped.
func UnmarshalFrame(b []byte) (Frame, error) {
	var f Frame
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Frame{}, protowire.ParseError(n)
		}
		b = b[n:]

		want, known := frameFields[num]
		switch {
		case !known:
			n = protowire.ConsumeFieldValue(num, typ, b)
		case typ != want:
			return Frame{}, fmt.Errorf("field %d: %w %d", num, errWireType, typ)
		case num == fieldSequence:
			f.Sequence, n = protowire.ConsumeVarint(b)
		case num == fieldManifestation:
			f.Manifestation, n = protowire.ConsumeString(b)
		case num == fieldJoint:
			var msg []byte
			if msg, n = protowire.ConsumeBytes(b); n >= 0 {
				t, err := unmarshalJoint(msg)
				if err != nil {
					return Frame{}, fmt.Errorf("joint %d: %w", len(f.Local), err)
				}
				f.Local = append(f.Local, t)
			}
		default:
			var v uint64
			v, n = protowire.ConsumeFixed64(b)
			switch num {
			case fieldRootScale:
				f.RootScale = math.Float64frombits(v)
			case fieldHeadScale:
				f.HeadScale = math.Float64frombits(v)
			case fieldLegScale:
				f.LegScale = math.Float64frombits(v)
			}
		}
		if n < 0 {
			return Frame{}, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return f, nil
}

// jointFieldLen returns the number of doubles in a joint field, or 0 for
// unknown fields.
func jointFieldLen(num protowire.Number) int {
	switch num {
	case fieldPosition, fieldScale:
		return 3
	case fieldOrientation:
		return 4
	}
	return 0
}

func unmarshalJoint(b []byte) (pose.Transform, error) {
	t := pose.Identity()
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return t, protowire.ParseError(n)
		}
		b = b[n:]

		want := jointFieldLen(num)
		if want == 0 {
			if n = protowire.ConsumeFieldValue(num, typ, b); n < 0 {
				return t, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		if typ != protowire.BytesType {
			return t, fmt.Errorf("field %d: %w %d", num, errWireType, typ)
		}
		packed, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return t, protowire.ParseError(n)
		}
		b = b[n:]
		vs, err := consumeDoubles(packed, want)
		if err != nil {
			return t, fmt.Errorf("field %d: %w", num, err)
		}
		switch num {
		case fieldPosition:
			t.Position = r3.Vec{X: vs[0], Y: vs[1], Z: vs[2]}
		case fieldOrientation:
			t.Orientation = quat.Number{Real: vs[0], Imag: vs[1], Jmag: vs[2], Kmag: vs[3]}
		case fieldScale:
			t.Scale = r3.Vec{X: vs[0], Y: vs[1], Z: vs[2]}
		}
	}
	return t, nil
}

func consumeDoubles(b []byte, want int) ([]float64, error) {
	if len(b) != 8*want {
		return nil, fmt.Errorf("packed length %d, want %d doubles", len(b), want)
	}
	vs := make([]float64, want)
	for i := range vs {
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		vs[i] = math.Float64frombits(v)
		b = b[n:]
	}
	return vs, nil
}
