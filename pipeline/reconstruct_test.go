package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReconstructRoundTripIdentity checks that reconstructing tiles
// produced by an identity TileDetector reproduces the original frame
// exactly.
func TestReconstructRoundTripIdentity(t *testing.T) {
	rows, cols := 2, 2
	tileH, tileW := 3, 4
	frame := NewRGBImage(cols*tileW, rows*tileH)
	for y := 0; y < frame.H; y++ {
		for x := 0; x < frame.W; x++ {
			frame.Set(x, y, byte(x), byte(y), byte(x+y))
		}
	}

	results := make([]*DetectionResult, rows*cols)
	det := IdentityTileDetector{}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			sub := &Subframe{TileRow: r, TileCol: c, TileH: tileH, TileW: tileW, Frame: frame, ParentSeq: 1}
			results[r*cols+c] = det.Detect(sub)
		}
	}

	recon := reconstruct(results, rows, cols, tileH, tileW, false)
	require.Equal(t, frame.W, recon.RGB.W)
	require.Equal(t, frame.H, recon.RGB.H)
	assert.Equal(t, frame.Pix, recon.RGB.Pix)
	assert.False(t, recon.AnyPositive)
}

// TestReconstructOneByOneTileIsPassThrough covers the rows=1, cols=1
// boundary: the pipeline reduces to pass-through.
func TestReconstructOneByOneTileIsPassThrough(t *testing.T) {
	frame := NewRGBImage(4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			frame.Set(x, y, byte(x*50), byte(y*50), 7)
		}
	}
	sub := &Subframe{TileRow: 0, TileCol: 0, TileH: 4, TileW: 4, Frame: frame, ParentSeq: 5}
	result := IdentityTileDetector{}.Detect(sub)

	recon := reconstruct([]*DetectionResult{result}, 1, 1, 4, 4, false)
	assert.Equal(t, frame.Pix, recon.RGB.Pix)
}

func TestReconstructAnyPositiveWhenOneTileHasRegions(t *testing.T) {
	results := []*DetectionResult{
		{Frame: NewRGBImage(2, 2), Binary: NewGrayImage(2, 2), Thresh: NewGrayImage(2, 2)},
		{Frame: NewRGBImage(2, 2), Binary: NewGrayImage(2, 2), Thresh: NewGrayImage(2, 2), Regions: []Region{{Width: 1, Height: 1}}},
	}
	recon := reconstruct(results, 1, 2, 2, 2, false)
	assert.True(t, recon.AnyPositive)
}

func TestReconstructDrawBoundaryOverlaysGridLines(t *testing.T) {
	rows, cols, tileH, tileW := 2, 2, 2, 2
	results := make([]*DetectionResult, rows*cols)
	for i := range results {
		tile := NewRGBImage(tileW, tileH)
		for y := 0; y < tileH; y++ {
			for x := 0; x < tileW; x++ {
				tile.Set(x, y, 1, 2, 3)
			}
		}
		results[i] = &DetectionResult{Frame: tile, Binary: NewGrayImage(tileW, tileH), Thresh: NewGrayImage(tileW, tileH)}
	}

	recon := reconstruct(results, rows, cols, tileH, tileW, true)
	r, g, b := recon.RGB.At(0, tileH) // first row of the internal horizontal boundary
	assert.Equal(t, byte(255), r)
	assert.Equal(t, byte(0), g)
	assert.Equal(t, byte(0), b)
}
