package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize bounds a single encoded frame.
const MaxFrameSize = 4 << 20

// ErrFrameTooLarge is returned for frames over MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame too large")

// Writer writes varint length-prefixed frames to an io.Writer.
type Writer struct {
	w   io.Writer
	buf []byte
	n   uint64
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes and writes one frame.
func (w *Writer) Write(f Frame) error {
	msg := AppendFrame(nil, f)
	if len(msg) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(msg))
	}
	w.buf = protowire.AppendVarint(w.buf[:0], uint64(len(msg)))
	w.buf = append(w.buf, msg...)
	if _, err := w.w.Write(w.buf); err != nil {
		return fmt.Errorf("write frame %d: %w", f.Sequence, err)
	}
	w.n++
	return nil
}

// Count returns the number of frames written.
func (w *Writer) Count() uint64 { return w.n }

// Reader reads frames written by Writer.
type Reader struct {
	r   *bufio.Reader
	buf []byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read returns the next frame. It returns io.EOF at a clean end of stream
// and io.ErrUnexpectedEOF when the stream ends inside a frame.
func (r *Reader) Read() (Frame, error) {
	size, err := binary.ReadUvarint(r.r)
	if err != nil {
		return Frame{}, err
	}
	if size > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	if cap(r.buf) < int(size) {
		r.buf = make([]byte, size)
	}
	r.buf = r.buf[:size]
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}
	return UnmarshalFrame(r.buf)
}

// ReadAll reads frames until the end of the stream.
func (r *Reader) ReadAll() ([]Frame, error) {
	var out []Frame
	for {
		f, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}
