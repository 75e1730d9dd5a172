package stream

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/banshee-data/retarget/internal/pose"
	"github.com/banshee-data/retarget/internal/retarget"
)

func testFrame(seq uint64) Frame {
	return Frame{
		Sequence:      seq,
		Manifestation: "halfbody",
		RootScale:     1.2,
		HeadScale:     0.9,
		LegScale:      0,
		Local: []pose.Transform{
			pose.Identity(),
			{
				Position:    r3.Vec{X: 0.1, Y: -2, Z: 3.5},
				Orientation: pose.AngleAxis(30, pose.Up),
				Scale:       pose.Uniform(0.5),
			},
		},
	}
}

func TestFrameEncoding(t *testing.T) {
	t.Parallel()

	want := testFrame(7)
	got, err := UnmarshalFrame(AppendFrame(nil, want))
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, got))

	empty, err := UnmarshalFrame(AppendFrame(nil, Frame{}))
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(Frame{}, empty))
}

func TestUnknownFieldsSkipped(t *testing.T) {
	t.Parallel()

	b := AppendFrame(nil, testFrame(3))
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future")
	b = protowire.AppendTag(b, 100, protowire.VarintType)
	b = protowire.AppendVarint(b, 12)

	got, err := UnmarshalFrame(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Sequence)
	assert.Len(t, got.Local, 2)
}

func TestUnmarshalErrors(t *testing.T) {
	t.Parallel()

	wrongType := protowire.AppendTag(nil, fieldSequence, protowire.BytesType)
	wrongType = protowire.AppendString(wrongType, "x")

	shortJoint := protowire.AppendTag(nil, fieldJoint, protowire.BytesType)
	shortJoint = protowire.AppendBytes(shortJoint, appendPacked(nil, fieldPosition, 1, 2))

	full := AppendFrame(nil, testFrame(1))

	tests := []struct {
		name string
		data []byte
	}{
		{"wrong wire type", wrongType},
		{"short packed field", shortJoint},
		{"truncated", full[:len(full)-3]},
		{"bad tag", []byte{0xff}},
	}
	for _, tt := range tests {
		_, err := UnmarshalFrame(tt.data)
		assert.Error(t, err, tt.name)
	}
	_, err := UnmarshalFrame(wrongType)
	assert.True(t, errors.Is(err, errWireType))
}

func TestWriterReader(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	var want []Frame
	for i := uint64(1); i <= 5; i++ {
		f := testFrame(i)
		f.RootScale = 1 + float64(i)/10
		require.NoError(t, w.Write(f))
		want = append(want, f)
	}
	assert.Equal(t, uint64(5), w.Count())

	got, err := NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, got))
}

func TestReaderTruncated(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).Write(testFrame(1)))
	data := buf.Bytes()

	r := NewReader(bytes.NewReader(data[:len(data)-4]))
	_, err := r.Read()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = NewReader(bytes.NewReader(nil)).Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderRejectsOversizedFrame(t *testing.T) {
	t.Parallel()

	data := protowire.AppendVarint(nil, MaxFrameSize+1)
	_, err := NewReader(bytes.NewReader(data)).Read()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFromResult(t *testing.T) {
	t.Parallel()

	local := []pose.Transform{pose.At(r3.Vec{Y: 1})}
	res := retarget.FrameResult{
		Frame:         12,
		Local:         local,
		RootScale:     1.1,
		HeadScale:     0.95,
		LegScale:      1,
		Manifestation: "fullbody",
	}
	f := FromResult(res)
	local[0].Position.Y = math.Inf(1)

	assert.Equal(t, uint64(12), f.Sequence)
	assert.Equal(t, "fullbody", f.Manifestation)
	assert.Equal(t, 1.0, f.Local[0].Position.Y)
}
