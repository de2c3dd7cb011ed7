package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRGBImageSetAtRoundTrip(t *testing.T) {
	img := NewRGBImage(4, 3)
	img.Set(1, 2, 10, 20, 30)
	r, g, b := img.At(1, 2)
	assert.Equal(t, byte(10), r)
	assert.Equal(t, byte(20), g)
	assert.Equal(t, byte(30), b)
}

func TestRGBImageClone(t *testing.T) {
	img := NewRGBImage(2, 2)
	img.Set(0, 0, 1, 2, 3)

	clone := img.Clone()
	clone.Set(0, 0, 9, 9, 9)

	r, g, b := img.At(0, 0)
	require.Equal(t, byte(1), r)
	assert.Equal(t, byte(2), g)
	assert.Equal(t, byte(3), b)
}

func TestRGBImageNRGBARoundTrip(t *testing.T) {
	img := NewRGBImage(3, 2)
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.Set(x, y, byte(x*10), byte(y*10), byte(x+y))
		}
	}

	back := RGBImageFromNRGBA(img.ToNRGBA())
	assert.Equal(t, img.Pix, back.Pix)
}

func TestGrayImageSetAt(t *testing.T) {
	img := NewGrayImage(2, 2)
	img.Set(1, 1, 255)
	assert.Equal(t, byte(255), img.At(1, 1))
	assert.Equal(t, byte(0), img.At(0, 0))
}

func TestDetectionResultPositive(t *testing.T) {
	empty := &DetectionResult{}
	assert.False(t, empty.Positive())

	positive := &DetectionResult{Regions: []Region{{Width: 1, Height: 1}}}
	assert.True(t, positive.Positive())
}
