package alignment

import (
	"io"

	"github.com/banshee-data/retarget/internal/logstream"
)

var debugLog = logstream.New("[align] ")

// SetDebugLogger routes alignment diagnostics such as missing known joints
// and unmatched finger names to w. Pass nil to disable them.
func SetDebugLogger(w io.Writer) { debugLog.Attach(w) }

func debugf(format string, args ...any) { debugLog.Printf(format, args...) }
