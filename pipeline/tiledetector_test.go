package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityTileDetectorNeverPositive(t *testing.T) {
	frame := solidImage(4, 4, 5, 6, 7)
	sub := &Subframe{TileRow: 0, TileCol: 0, TileH: 4, TileW: 4, Frame: frame, ParentSeq: 1}

	result := IdentityTileDetector{}.Detect(sub)
	assert.False(t, result.Positive())
	assert.Equal(t, frame.Pix, result.Frame.Pix)
}

func TestMotionTileDetectorFirstCallNeverPositive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "0-0")
	det := NewMotionTileDetector(0, 0, dir)

	frame := solidImage(4, 4, 10, 10, 10)
	sub := &Subframe{TileRow: 0, TileCol: 0, TileH: 4, TileW: 4, Frame: frame, ParentSeq: 1}

	result := det.Detect(sub)
	assert.False(t, result.Positive(), "no reference frame yet, nothing to diff against")
}

func TestMotionTileDetectorFlagsChangedRegion(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "0-0")
	det := NewMotionTileDetector(0, 0, dir)

	base := solidImage(8, 8, 10, 10, 10)
	det.Detect(&Subframe{TileRow: 0, TileCol: 0, TileH: 8, TileW: 8, Frame: base, ParentSeq: 1})

	changed := solidImage(8, 8, 10, 10, 10)
	for y := 1; y < 7; y++ {
		for x := 1; x < 7; x++ {
			changed.Set(x, y, 250, 250, 250)
		}
	}
	result := det.Detect(&Subframe{TileRow: 0, TileCol: 0, TileH: 8, TileW: 8, Frame: changed, ParentSeq: 2})

	require.True(t, result.Positive())
	assert.Equal(t, "motion", result.Regions[0].Label)
}

func TestMotionTileDetectorIgnoresSmallChange(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "0-0")
	det := NewMotionTileDetector(0, 0, dir)

	base := solidImage(10, 10, 10, 10, 10)
	det.Detect(&Subframe{TileRow: 0, TileCol: 0, TileH: 10, TileW: 10, Frame: base, ParentSeq: 1})

	changed := base.Clone()
	changed.Set(0, 0, 250, 250, 250) // single pixel, below MinRegionArea
	result := det.Detect(&Subframe{TileRow: 0, TileCol: 0, TileH: 10, TileW: 10, Frame: changed, ParentSeq: 2})

	assert.False(t, result.Positive())
}
