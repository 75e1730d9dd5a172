package logstream

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func TestStreamAttachDetach(t *testing.T) {
	t.Parallel()

	s := New("[test] ")
	assert.False(t, s.Enabled())
	s.Printf("dropped")

	var buf bytes.Buffer
	s.Attach(&buf)
	assert.True(t, s.Enabled())
	s.Printf("joint %d", 4)
	assert.Contains(t, buf.String(), "[test] ")
	assert.Contains(t, buf.String(), "joint 4")
	assert.NotContains(t, buf.String(), "dropped")

	s.Attach(nil)
	assert.False(t, s.Enabled())
	s.Printf("after")
	assert.NotContains(t, buf.String(), "after")
}

func TestStreamSwapWhileLogging(t *testing.T) {
	t.Parallel()

	s := New("[swap] ")
	var a, b lockedBuffer

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Printf("frame %d", i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			switch i % 3 {
			case 0:
				s.Attach(&a)
			case 1:
				s.Attach(&b)
			default:
				s.Attach(nil)
			}
		}
	}()
	wg.Wait()

	s.Attach(&a)
	s.Printf("last")
	assert.Contains(t, a.String(), "last")
	assert.NotContains(t, b.String(), "last")
}
