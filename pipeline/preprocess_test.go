package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, r, g, b byte) *RGBImage {
	img := NewRGBImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, r, g, b)
		}
	}
	return img
}

func TestPreprocessLeavesOriginalUntouched(t *testing.T) {
	src := solidImage(8, 8, 100, 150, 200)
	cfg := Config{ResizeScale: -1, ResizeWidth: -1, ResizeHeight: -1}

	processed, original := Preprocess(src, cfg)
	require.NotNil(t, processed)
	require.NotNil(t, original)

	src.Set(0, 0, 0, 0, 0)
	r, g, b := original.At(0, 0)
	assert.Equal(t, byte(100), r)
	assert.Equal(t, byte(150), g)
	assert.Equal(t, byte(200), b)
}

func TestPreprocessResizePrecedenceScaleFirst(t *testing.T) {
	src := solidImage(10, 10, 1, 2, 3)
	cfg := Config{ResizeScale: 0.5, ResizeWidth: 999, ResizeHeight: 999}

	processed, _ := Preprocess(src, cfg)
	assert.Equal(t, 5, processed.W)
	assert.Equal(t, 5, processed.H)
}

func TestPreprocessResizeByWidthKeepsAspect(t *testing.T) {
	src := solidImage(20, 10, 1, 2, 3)
	cfg := Config{ResizeScale: -1, ResizeWidth: 10, ResizeHeight: -1}

	processed, _ := Preprocess(src, cfg)
	assert.Equal(t, 10, processed.W)
	assert.Equal(t, 5, processed.H)
}

func TestPreprocessCropROI(t *testing.T) {
	src := NewRGBImage(10, 10)
	src.Set(5, 5, 42, 42, 42)
	cfg := Config{
		ResizeScale: -1, ResizeWidth: -1, ResizeHeight: -1,
		ROI: ROI{X: 4, Y: 4, Width: 2, Height: 2},
	}

	processed, _ := Preprocess(src, cfg)
	require.Equal(t, 2, processed.W)
	require.Equal(t, 2, processed.H)
}

func TestGaussianBlur3x3FlatImageUnchanged(t *testing.T) {
	src := solidImage(6, 6, 77, 88, 99)
	out := gaussianBlur3x3(src)
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			r, g, b := out.At(x, y)
			require.Equal(t, byte(77), r, "x=%d y=%d", x, y)
			require.Equal(t, byte(88), g)
			require.Equal(t, byte(99), b)
		}
	}
}
