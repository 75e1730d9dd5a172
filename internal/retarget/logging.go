package retarget

import (
	"io"

	"github.com/banshee-data/retarget/internal/logstream"
)

// Retargeting logs to three streams by audience: ops for lifecycle events
// and dropped frames, diag for scale and calibration decisions, trace for
// per-frame detail.
var (
	opsStream   = logstream.New("[retarget ops] ")
	diagStream  = logstream.New("[retarget diag] ")
	traceStream = logstream.New("[retarget trace] ")
)

// LogWriters routes each stream to a writer. A nil writer disables it.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

// SetLogWriters replaces the writers of all three streams.
func SetLogWriters(w LogWriters) {
	opsStream.Attach(w.Ops)
	diagStream.Attach(w.Diag)
	traceStream.Attach(w.Trace)
}

// Opsf logs to the ops stream.
func Opsf(format string, args ...any) { opsStream.Printf(format, args...) }

// Diagf logs to the diag stream.
func Diagf(format string, args ...any) { diagStream.Printf(format, args...) }

// Tracef logs to the trace stream.
func Tracef(format string, args ...any) { traceStream.Printf(format, args...) }
