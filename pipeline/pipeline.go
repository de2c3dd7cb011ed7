package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vms-pipeline/config"
	"vms-pipeline/models"
)

// ConfigFromCamera builds a Config from a database-backed camera row,
// mirroring ConfigFromFleetEntry's YAML-file path (pipeline/config.go).
func ConfigFromCamera(cam models.Camera, dirs config.PipelineConfig) Config {
	return Config{
		Index:                 int(cam.ID),
		Enable:                cam.Enable,
		Online:                cam.Online,
		RTSPURL:               cam.RTSPUrl,
		Rows:                  cam.TileRows,
		Cols:                  cam.TileCols,
		SampleRate:            cam.SampleRate,
		SampleIntervalMinutes: cam.SampleIntervalMinutes,
		ResizeScale:           cam.ResizeScale,
		ResizeWidth:           cam.ResizeWidth,
		ResizeHeight:          cam.ResizeHeight,
		ROI:                   ROI{X: cam.ROIX, Y: cam.ROIY, Width: cam.ROIWidth, Height: cam.ROIHeight},
		EnableSampleFrame:     cam.EnableSampleFrame,
		RTSPSavedPerFrame:     cam.RTSPSavedPerFrame,
		DrawBoundary:          cam.DrawBoundary,
		ShowWindow:            cam.ShowWindow,
		DeletePostRead:        cam.DeletePostRead,
		StreamPath:            filepath.Join(dirs.StreamPath, fmt.Sprintf("%d", cam.ID)),
		SamplePath:            filepath.Join(dirs.SamplePath, fmt.Sprintf("%d", cam.ID)),
		RegionPath:            dirs.RegionPath,
		OfflinePath:           filepath.Join(dirs.OfflinePath, fmt.Sprintf("%d", cam.ID)),
	}
}

// Pipeline wires Capture -> frame queue -> Controller -> Writer for one
// camera. One Pipeline is constructed per enabled camera by
// monitor.Monitor.
type Pipeline struct {
	Config Config
	RunID  string

	watcher     *StreamWatcher
	capture     *Capture
	controller  *Controller
	writer      *Writer
	broadcaster *resultBroadcaster

	frameQueue chan *Frame

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPipeline constructs a Pipeline but does not start it.
func NewPipeline(cfg Config) (*Pipeline, error) {
	frameQueue := make(chan *Frame, 500)

	var watcher *StreamWatcher
	var source SourceStrategy
	var history HistoryStrategy
	rtsp := cfg.Online && strings.HasPrefix(cfg.RTSPURL, "rtsp://")

	switch {
	case rtsp:
		source = &RTSPSource{URL: cfg.RTSPURL}
		history = KeepHistory{}
	case cfg.Online:
		index := make(chan string, 16)
		watcher = NewStreamWatcher(cfg.StreamPath, index)
		source = NewIndexQueueSource(index)
		if cfg.SampleIntervalMinutes > 0 {
			history = &ArchiveSampleHistory{
				SamplePath: cfg.SamplePath,
				Interval:   time.Duration(cfg.SampleIntervalMinutes) * time.Minute,
			}
		} else if cfg.DeletePostRead {
			history = DeleteHistory{}
		} else {
			history = KeepHistory{}
		}
	default:
		glob, err := NewOfflineGlobSource(cfg.OfflinePath, "*")
		if err != nil {
			return nil, fmt.Errorf("offline source %s: %w", cfg.OfflinePath, err)
		}
		source = glob
		if cfg.DeletePostRead {
			history = DeleteHistory{}
		} else {
			history = KeepHistory{}
		}
	}

	var sink SinkStrategy = &QueueSink{FrameQueue: frameQueue}
	if rtsp {
		sink = &RTSPSampleSink{
			Inner:         sink,
			SamplePath:    cfg.SamplePath,
			Enabled:       cfg.EnableSampleFrame,
			SavedPerFrame: cfg.RTSPSavedPerFrame,
		}
	}

	cap := NewCapture(cfg.Index, source, history, sink, cfg.SampleRate)

	n := cfg.Rows * cfg.Cols
	detectors := make([]TileDetector, n)
	for r := 0; r < cfg.Rows; r++ {
		for c := 0; c < cfg.Cols; c++ {
			regionDir := filepath.Join(cfg.RegionPath, fmt.Sprintf("%d", cfg.Index), fmt.Sprintf("%d-%d", r, c))
			detectors[r*cfg.Cols+c] = NewMotionTileDetector(r, c, regionDir)
		}
	}

	ctl := NewController(cfg, frameQueue, detectors)

	broadcaster := newResultBroadcaster()
	_, writerFrames := broadcaster.subscribeLossless(32)
	writer, err := NewWriter(cfg.Index, cfg.RegionPath, writerFrames)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Config:      cfg,
		RunID:       NewRunID(),
		watcher:     watcher,
		capture:     cap,
		controller:  ctl,
		writer:      writer,
		broadcaster: broadcaster,
		frameQueue:  frameQueue,
	}, nil
}

// Start launches StreamSource (if any), Capture, and Controller in that
// order: StreamSource must be running before Capture issues its first
// LoadNextSrc, and Capture must be started before Controller
// initialization. Start blocks until Controller's probe-frame read
// resolves, so it returns ErrSourceExhausted immediately for an empty
// offline source instead of deadlocking.
func (p *Pipeline) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	if p.watcher != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.watcher.Run(ctx)
		}()
	}

	p.capture.Start()

	// Close the frame queue once Capture's decode loop exits so Controller
	// (and Dispatch after it) observe termination instead of blocking
	// forever on an empty queue that will never receive another frame.
	go func() {
		<-p.capture.Done()
		close(p.frameQueue)
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.writer.Run(ctx)
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.broadcaster.run(ctx, p.controller.ResultQueue)
	}()

	if err := p.controller.Start(ctx); err != nil {
		p.capture.Stop()
		return err
	}
	return nil
}

// Subscribe registers a new consumer of reconstructed frames, for a
// delivery service previewing the tiled, annotated output live alongside
// the Writer's on-disk artifacts. Call Unsubscribe with the returned id
// once the consumer is done.
func (p *Pipeline) Subscribe(buf int) (id int, frames <-chan *ReconstructedFrame) {
	return p.broadcaster.subscribe(buf)
}

func (p *Pipeline) Unsubscribe(id int) {
	p.broadcaster.unsubscribe(id)
}

// Stop tears down Capture then Controller, then cancels the context Start
// derived, so the StreamWatcher, broadcaster and Writer exit as well and
// Wait returns.
func (p *Pipeline) Stop() {
	p.capture.Stop()
	p.controller.Stop()
	if p.cancel != nil {
		p.cancel()
	}
}

// Wait blocks until Capture's decode loop and the Writer have both
// exited.
func (p *Pipeline) Wait() {
	<-p.capture.Done()
	p.wg.Wait()
}
