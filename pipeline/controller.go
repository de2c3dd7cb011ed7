package pipeline

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Controller tiles frames, fans them out to TileDetectors, and fans the
// results back in. Dispatch and Collect run concurrently; Collect is
// serial over frames, so reconstructed output preserves frame order.
type Controller struct {
	Config      Config
	FrameQueue  chan *Frame
	ResultQueue chan *ReconstructedFrame
	Detectors   []TileDetector // len Rows*Cols, index = tileRow*Cols+tileCol

	rows, cols   int
	tileH, tileW int

	send []chan *Subframe
	recv []chan *DetectionResult

	ctx    context.Context
	cancel context.CancelFunc
	quit   int32

	detectorsDone sync.WaitGroup

	framesDispatched uint64
	framesCollected  uint64
}

func NewController(cfg Config, frameQueue chan *Frame, detectors []TileDetector) *Controller {
	return &Controller{
		Config:      cfg,
		FrameQueue:  frameQueue,
		ResultQueue: make(chan *ReconstructedFrame, 32),
		Detectors:   detectors,
		rows:        cfg.Rows,
		cols:        cfg.Cols,
	}
}

// Quit reports whether the controller has set its shutdown flag, either
// from external Stop or because every detector lane has exited.
func (ctl *Controller) Quit() bool { return atomic.LoadInt32(&ctl.quit) == 1 }

// Start pulls the probe frame to learn post-preprocess dimensions, then
// launches the detector pool, Dispatch and Collect. If the frame queue
// closes or ctx is cancelled before a probe frame arrives (e.g. an empty
// offline source), Start returns ErrSourceExhausted instead of blocking
// forever. In that case Collect is never launched, so Start closes
// ResultQueue itself: otherwise whatever already subscribed to it (the
// broadcaster, and transitively the Writer) would block forever waiting
// for a close that Collect would never get the chance to do.
func (ctl *Controller) Start(parent context.Context) error {
	ctl.ctx, ctl.cancel = context.WithCancel(parent)

	probe, ok := ctl.recvProbeFrame()
	if !ok {
		atomic.StoreInt32(&ctl.quit, 1)
		close(ctl.ResultQueue)
		return ErrSourceExhausted
	}

	processed, _ := Preprocess(probe.Image, ctl.Config)
	ctl.tileH = processed.H / ctl.rows
	ctl.tileW = processed.W / ctl.cols

	n := ctl.rows * ctl.cols
	ctl.send = make([]chan *Subframe, n)
	ctl.recv = make([]chan *DetectionResult, n)
	for i := 0; i < n; i++ {
		ctl.send[i] = make(chan *Subframe, 4)
		ctl.recv[i] = make(chan *DetectionResult, 4)
	}

	for i, det := range ctl.Detectors {
		ctl.detectorsDone.Add(1)
		go ctl.runDetector(i, det)
	}
	go func() {
		ctl.detectorsDone.Wait()
		atomic.StoreInt32(&ctl.quit, 1)
		ctl.cancel()
	}()

	go ctl.dispatch()
	go ctl.collect()
	return nil
}

func (ctl *Controller) Stop() {
	atomic.StoreInt32(&ctl.quit, 1)
	if ctl.cancel != nil {
		ctl.cancel()
	}
}

func (ctl *Controller) recvProbeFrame() (*Frame, bool) {
	select {
	case <-ctl.ctx.Done():
		return nil, false
	case frame, open := <-ctl.FrameQueue:
		if !open {
			return nil, false
		}
		return frame, true
	}
}

// runDetector is the lifecycle wrapper the Controller owns around one
// TileDetector. A panic inside Detect is logged with a stack trace and
// terminates this lane only; Collect then blocks forever on this tile's
// recv channel until cancellation.
func (ctl *Controller) runDetector(i int, det TileDetector) {
	defer ctl.detectorsDone.Done()
	for {
		select {
		case <-ctl.ctx.Done():
			return
		case sub, open := <-ctl.send[i]:
			if !open {
				return
			}
			result := ctl.detectSafely(det, sub)
			if result == nil {
				return
			}
			select {
			case ctl.recv[i] <- result:
			case <-ctl.ctx.Done():
				return
			}
		}
	}
}

func (ctl *Controller) detectSafely(det TileDetector, sub *Subframe) (result *DetectionResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[controller %d] %v: tile detector panic: %v\n%s", ctl.Config.Index, ErrDetectorFault, r, debug.Stack())
			result = nil
		}
	}()
	return det.Detect(sub)
}

// dispatch reads the frame queue, preprocesses, and fans each frame out to
// every tile lane, sending the full processed frame to every lane; each
// TileDetector slices its own sub-view.
func (ctl *Controller) dispatch() {
	for {
		select {
		case <-ctl.ctx.Done():
			return
		case frame, open := <-ctl.FrameQueue:
			if !open {
				ctl.Stop()
				return
			}
			processed, _ := Preprocess(frame.Image, ctl.Config)
			if n := atomic.AddUint64(&ctl.framesDispatched, 1); n%100 == 0 {
				log.Printf("[controller %d] dispatched %d frames", ctl.Config.Index, n)
			}
			for i := range ctl.send {
				sub := &Subframe{
					TileRow:   i / ctl.cols,
					TileCol:   i % ctl.cols,
					TileH:     ctl.tileH,
					TileW:     ctl.tileW,
					Frame:     processed,
					ParentSeq: frame.Seq,
				}
				select {
				case ctl.send[i] <- sub:
				case <-ctl.ctx.Done():
					return
				}
			}
		}
	}
}

// collect reads exactly one DetectionResult per tile, in fixed tile-index
// order, for each frame. Writer must never block Collect: ResultQueue is
// buffered and pushes select against ctx.Done rather than blocking
// indefinitely. collect is ResultQueue's sole producer, so it closes
// ResultQueue on every exit path: that is what lets the broadcaster and,
// downstream, the Writer notice source exhaustion or cancellation and
// terminate instead of blocking on it forever.
func (ctl *Controller) collect() {
	defer close(ctl.ResultQueue)
	n := ctl.rows * ctl.cols
	for {
		results := make([]*DetectionResult, n)
		for i := 0; i < n; i++ {
			select {
			case <-ctl.ctx.Done():
				return
			case res, open := <-ctl.recv[i]:
				if !open {
					return
				}
				results[i] = res
			}
		}

		recon := reconstruct(results, ctl.rows, ctl.cols, ctl.tileH, ctl.tileW, ctl.Config.DrawBoundary)
		atomic.AddUint64(&ctl.framesCollected, 1)
		if n := atomic.LoadUint64(&ctl.framesCollected); n%100 == 0 {
			log.Printf("[controller %d] collected %d frames", ctl.Config.Index, n)
		}
		if !recon.AnyPositive {
			continue
		}
		select {
		case ctl.ResultQueue <- recon:
		case <-ctl.ctx.Done():
			return
		}
	}
}
