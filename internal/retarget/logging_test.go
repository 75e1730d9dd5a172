package retarget

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogStreamsRouteByAudience(t *testing.T) {
	var ops, diag bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag})
	t.Cleanup(func() { SetLogWriters(LogWriters{}) })

	Opsf("handle %d created", 7)
	Diagf("scale %.2f", 1.25)
	Tracef("frame %d", 3)

	assert.Contains(t, ops.String(), "[retarget ops] ")
	assert.Contains(t, ops.String(), "handle 7 created")
	assert.NotContains(t, ops.String(), "scale")
	assert.Contains(t, diag.String(), "[retarget diag] ")
	assert.Contains(t, diag.String(), "scale 1.25")
	assert.NotContains(t, diag.String(), "handle")
	assert.False(t, traceStream.Enabled())

	SetLogWriters(LogWriters{Diag: &diag})
	Opsf("after detach")
	assert.NotContains(t, ops.String(), "after detach")
}
