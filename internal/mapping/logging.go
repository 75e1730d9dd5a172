package mapping

import (
	"io"

	"github.com/banshee-data/retarget/internal/logstream"
)

// Generation has no per-frame work, so there is no trace stream.
var (
	opsLog  = logstream.New("[mapping] ")
	diagLog = logstream.New("[mapping] ")
)

// SetLogWriters routes the ops and diag streams. A nil writer disables
// that stream.
func SetLogWriters(ops, diag io.Writer) {
	opsLog.Attach(ops)
	diagLog.Attach(diag)
}

func opsf(format string, args ...any)  { opsLog.Printf(format, args...) }
func diagf(format string, args ...any) { diagLog.Printf(format, args...) }
