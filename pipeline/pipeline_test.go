package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"vms-pipeline/config"
	"vms-pipeline/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromFleetEntryMapsAllFields(t *testing.T) {
	dirs := config.PipelineConfig{
		StreamPath:  "/data/streams",
		SamplePath:  "/data/samples",
		RegionPath:  "/data/regions",
		OfflinePath: "/data/offline",
	}
	entry := config.FleetEntry{
		Index:                 3,
		Enable:                true,
		Online:                true,
		RTSP:                  "rtsp://cam3",
		Routine:                config.Routine{Row: 2, Col: 3},
		SampleRate:            4,
		SampleIntervalMinutes: 5,
		Resize:                config.Resize{Scale: -1, Width: 640, Height: -1},
		ROI:                   config.ROI{X: 1, Y: 2, Width: 3, Height: 4},
		EnableSampleFrame:     true,
		RTSPSavedPerFrame:     25,
		DrawBoundary:          true,
		ShowWindow:            false,
		DeletePostRead:        true,
	}

	cfg := ConfigFromFleetEntry(entry, dirs)
	assert.Equal(t, 3, cfg.Index)
	assert.Equal(t, 2, cfg.Rows)
	assert.Equal(t, 3, cfg.Cols)
	assert.Equal(t, "rtsp://cam3", cfg.RTSPURL)
	assert.Equal(t, 640, cfg.ResizeWidth)
	assert.Equal(t, ROI{X: 1, Y: 2, Width: 3, Height: 4}, cfg.ROI)
	assert.Equal(t, filepath.Join(dirs.StreamPath, "3"), cfg.StreamPath)
}

func TestConfigFromCameraMapsAllFields(t *testing.T) {
	dirs := config.PipelineConfig{
		StreamPath:  "/data/streams",
		SamplePath:  "/data/samples",
		RegionPath:  "/data/regions",
		OfflinePath: "/data/offline",
	}
	cam := models.Camera{
		ID:                    7,
		Enable:                true,
		Online:                false,
		RTSPUrl:               "",
		TileRows:              2,
		TileCols:              2,
		SampleRate:            1,
		SampleIntervalMinutes: 0,
		ResizeScale:           -1,
		ResizeWidth:           -1,
		ResizeHeight:          -1,
		DeletePostRead:        true,
	}

	cfg := ConfigFromCamera(cam, dirs)
	assert.Equal(t, 7, cfg.Index)
	assert.False(t, cfg.Online)
	assert.Equal(t, 2, cfg.Rows)
	assert.True(t, cfg.DeletePostRead)
}

func TestNewPipelineOfflineEmptyDirectoryDoesNotError(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Index: 1, Enable: true, Online: false,
		Rows: 1, Cols: 1,
		SampleRate:  1,
		ResizeScale: -1, ResizeWidth: -1, ResizeHeight: -1,
		OfflinePath: dir,
		RegionPath:  t.TempDir(),
	}

	p, err := NewPipeline(cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, p.RunID)
}

// TestPipelineStartWaitTerminatesOnSourceExhaustion wires a Pipeline
// around a fake, non-ffmpeg Capture so the whole Start->Wait cycle can
// run against a source that exhausts naturally, the way an offline
// camera's descriptor list eventually runs dry. This is the full-graph
// regression test for the deadlock where Capture exhausting closed the
// frame queue but never unblocked the Writer or broadcaster, because
// nothing closed Controller.ResultQueue or cancelled the pipeline's
// context on that path.
func TestPipelineStartWaitTerminatesOnSourceExhaustion(t *testing.T) {
	frameQueue := make(chan *Frame, 500)
	source := &fakeSource{descriptors: []string{"a.mp4"}, framesPer: 5}
	history := &recordingHistory{}
	cap := NewCapture(1, source, history, &QueueSink{FrameQueue: frameQueue}, 1)

	cfg := Config{Index: 1, Rows: 1, Cols: 1, ResizeScale: -1, ResizeWidth: -1, ResizeHeight: -1}
	ctl := NewController(cfg, frameQueue, []TileDetector{IdentityTileDetector{}})

	broadcaster := newResultBroadcaster()
	_, writerFrames := broadcaster.subscribeLossless(32)
	writer, err := NewWriter(cfg.Index, t.TempDir(), writerFrames)
	require.NoError(t, err)

	p := &Pipeline{
		Config:      cfg,
		RunID:       "test-run",
		capture:     cap,
		controller:  ctl,
		writer:      writer,
		broadcaster: broadcaster,
		frameQueue:  frameQueue,
	}

	require.NoError(t, p.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Pipeline.Wait did not return after the source exhausted naturally")
	}
}
