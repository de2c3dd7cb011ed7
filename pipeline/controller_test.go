package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// alwaysPositiveDetector marks every tile positive so Collect always
// forwards the reconstructed frame, letting tests observe it on
// ResultQueue.
type alwaysPositiveDetector struct{}

func (alwaysPositiveDetector) Detect(sub *Subframe) *DetectionResult {
	view := sliceSubview(sub)
	return &DetectionResult{
		TileRow:   sub.TileRow,
		TileCol:   sub.TileCol,
		ParentSeq: sub.ParentSeq,
		Frame:     view,
		Binary:    NewGrayImage(view.W, view.H),
		Thresh:    NewGrayImage(view.W, view.H),
		Regions:   []Region{{Width: 1, Height: 1, Label: "x"}},
	}
}

// TestControllerEmptySourceDoesNotDeadlock checks the boundary behavior
// for an offline directory with nothing in it: Controller initialization
// must observe termination rather than block on its probe frame forever.
func TestControllerEmptySourceDoesNotDeadlock(t *testing.T) {
	frameQueue := make(chan *Frame)
	close(frameQueue)

	cfg := Config{Rows: 1, Cols: 1}
	ctl := NewController(cfg, frameQueue, []TileDetector{IdentityTileDetector{}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ctl.Start(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSourceExhausted)
	case <-time.After(2 * time.Second):
		t.Fatal("Controller.Start deadlocked on an empty source")
	}
}

// TestControllerDispatchCollectEndToEnd exercises the full
// dispatch/detector/collect loop for one real frame after the probe
// frame, using a detector that always marks a region so the reconstructed
// frame is observable on ResultQueue.
func TestControllerDispatchCollectEndToEnd(t *testing.T) {
	rows, cols := 2, 2
	frameQueue := make(chan *Frame, 4)
	cfg := Config{Rows: rows, Cols: cols, ResizeScale: -1, ResizeWidth: -1, ResizeHeight: -1}

	detectors := make([]TileDetector, rows*cols)
	for i := range detectors {
		detectors[i] = alwaysPositiveDetector{}
	}
	ctl := NewController(cfg, frameQueue, detectors)

	probe := solidImage(4, 4, 1, 1, 1)
	frameQueue <- &Frame{Seq: 1, Image: probe}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ctl.Start(ctx))

	real := solidImage(4, 4, 9, 8, 7)
	frameQueue <- &Frame{Seq: 2, Image: real}

	select {
	case recon := <-ctl.ResultQueue:
		assert.True(t, recon.AnyPositive)
		assert.Equal(t, 4, recon.RGB.W)
		assert.Equal(t, 4, recon.RGB.H)
		r, g, b := recon.RGB.At(0, 0)
		assert.Equal(t, byte(9), r)
		assert.Equal(t, byte(8), g)
		assert.Equal(t, byte(7), b)
	case <-time.After(2 * time.Second):
		t.Fatal("no reconstructed frame observed on ResultQueue")
	}
}
