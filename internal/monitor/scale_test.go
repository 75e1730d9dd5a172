package monitor

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/retarget/internal/retarget"
)

func sampleRun() *ScalePlotter {
	sp := NewScalePlotter()
	for i := uint64(1); i <= 20; i++ {
		res := retarget.FrameResult{Frame: i, RootScale: 1.2, HeadScale: 0.9, LegScale: 1}
		if i%5 == 0 {
			res.LegScale = 0
		}
		sp.Sample(res, 1.3, i != 7)
	}
	return sp
}

func TestScalePlotterSamples(t *testing.T) {
	t.Parallel()

	sp := sampleRun()
	samples := sp.Samples()
	require.Len(t, samples, 20)
	assert.Equal(t, 1, sp.Dropped())
	assert.True(t, samples[6].Dropped)
	assert.Equal(t, 1.3, samples[0].CurrentScale)
	assert.Equal(t, 0.0, samples[4].LegScale)

	samples[0].RootScale = 99
	assert.Equal(t, 1.2, sp.Samples()[0].RootScale)
}

func TestGeneratePlot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file, err := sampleRun().GeneratePlot(dir, "")
	require.NoError(t, err)

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
	assert.True(t, strings.HasSuffix(file, "scales.png"))

	file, err = sampleRun().GeneratePlot(dir, "my avatar")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scales_my_avatar.png"), file)

	_, err = NewScalePlotter().GeneratePlot(dir, "")
	assert.Error(t, err)
}

func TestWriteScaleChart(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteScaleChart(&buf, "Replay", sampleRun().Samples()))
	html := buf.String()
	assert.Contains(t, html, "Replay")
	assert.Contains(t, html, "dropped=1")
	for _, name := range []string{"current", "root", "head", "legs"} {
		assert.Contains(t, html, name)
	}
}
