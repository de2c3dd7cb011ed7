package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SystemStatus is Capture's atomic state. Terminal per run: a new run
// needs a fresh Capture.
type SystemStatus int32

const (
	StatusShutDown SystemStatus = iota
	StatusRunning
)

// TerminateSentinel is the index-queue value meaning "no more
// descriptors".
const TerminateSentinel = "\x00TERMINATE"

// SourceStrategy supplies stream descriptors and opens their decoders,
// replacing a deep class hierarchy with a single strategy axis.
type SourceStrategy interface {
	// LoadNextSrc blocks until a descriptor is available. ok=false means
	// the descriptor stream is exhausted.
	LoadNextSrc(ctx context.Context) (descriptor string, ok bool)
	OpenDecoder(descriptor string) (FrameDecoder, error)
}

// HistoryStrategy is the action applied to a descriptor once its stream
// ends.
type HistoryStrategy interface {
	Release(descriptor string)
}

// SinkStrategy is where Capture forwards a decoded frame: the frame queue
// by default, or directly to a callback for the Callback variant.
// PassFrame takes Capture's ctx so a blocking push (queue full, i.e.
// backpressure) unblocks immediately on cancellation instead of waiting
// for a consumer.
type SinkStrategy interface {
	PassFrame(ctx context.Context, frame *Frame)
}

// Capture owns the video decoder end to end for one camera.
type Capture struct {
	Index      int
	Source     SourceStrategy
	History    HistoryStrategy
	Sink       SinkStrategy
	SampleRate int // 1-in-N frame forwarding

	// PostFrameProcess is an optional hook invoked after every decoded
	// frame, forwarded or not. Default no-op.
	PostFrameProcess func(frame *Frame)

	status   int32
	ctx      context.Context
	cancelFn context.CancelFunc
	done     chan struct{}
	seq      uint64

	mu      sync.Mutex
	decoder FrameDecoder
}

func NewCapture(index int, source SourceStrategy, history HistoryStrategy, sink SinkStrategy, sampleRate int) *Capture {
	if sampleRate < 1 {
		sampleRate = 1
	}
	return &Capture{
		Index:      index,
		Source:     source,
		History:    history,
		Sink:       sink,
		SampleRate: sampleRate,
		status:     int32(StatusShutDown),
		done:       make(chan struct{}),
	}
}

func (c *Capture) Status() SystemStatus {
	return SystemStatus(atomic.LoadInt32(&c.status))
}

// Start transitions SHUT_DOWN -> RUNNING and launches the decode loop.
// Idempotent: a call while already RUNNING is a no-op.
func (c *Capture) Start() {
	if !atomic.CompareAndSwapInt32(&c.status, int32(StatusShutDown), int32(StatusRunning)) {
		return
	}
	c.ctx, c.cancelFn = context.WithCancel(context.Background())
	c.done = make(chan struct{})
	go c.loop()
}

// Read is the lazy-start wrapper: starts if SHUT_DOWN, otherwise returns
// immediately.
func (c *Capture) Read() {
	if c.Status() == StatusShutDown {
		c.Start()
	}
}

// Stop/Cancel set SHUT_DOWN; the loop observes it at its next boundary.
// Because a decoder read can block indefinitely on a pipe, Stop also
// closes the in-flight decoder to unblock it immediately rather than
// waiting for the next frame to arrive on its own.
func (c *Capture) Stop() {
	atomic.StoreInt32(&c.status, int32(StatusShutDown))
	if c.cancelFn != nil {
		c.cancelFn()
	}
	c.mu.Lock()
	dec := c.decoder
	c.mu.Unlock()
	if dec != nil {
		_ = dec.Close()
	}
}

func (c *Capture) Cancel() { c.Stop() }

// Done is closed once the decode loop has exited.
func (c *Capture) Done() <-chan struct{} { return c.done }

func (c *Capture) setDecoder(d FrameDecoder) {
	c.mu.Lock()
	c.decoder = d
	c.mu.Unlock()
}

func (c *Capture) loop() {
	defer close(c.done)
	defer atomic.StoreInt32(&c.status, int32(StatusShutDown))

	var descriptor string
	hasDescriptor := false

	openNext := func() bool {
		if hasDescriptor {
			c.History.Release(descriptor)
			hasDescriptor = false
		}
		desc, ok := c.Source.LoadNextSrc(c.ctx)
		if !ok {
			return false
		}
		descriptor, hasDescriptor = desc, true
		dec, err := c.Source.OpenDecoder(desc)
		if err != nil {
			log.Printf("[capture %d] %v: %s: %v", c.Index, ErrDecoderOpenFailed, desc, err)
			c.setDecoder(nil)
			return true
		}
		c.setDecoder(dec)
		return true
	}

	for c.Status() == StatusRunning {
		c.mu.Lock()
		decoder := c.decoder
		c.mu.Unlock()

		if decoder == nil {
			if !openNext() {
				log.Printf("[capture %d] %v", c.Index, ErrSourceExhausted)
				return
			}
			continue
		}

		img, ok := decoder.Read()
		if !ok {
			if c.Status() != StatusRunning {
				return
			}
			log.Printf("[capture %d] %v", c.Index, ErrReadFailed)
			_ = decoder.Close()
			c.setDecoder(nil)
			continue
		}

		c.seq++
		frame := &Frame{Seq: c.seq, Image: img, OriginTS: time.Now().UnixNano()}
		if c.seq%uint64(c.SampleRate) == 0 {
			c.Sink.PassFrame(c.ctx, frame)
		}
		if c.PostFrameProcess != nil {
			c.PostFrameProcess(frame)
		}
	}
}

// --- SourceStrategy implementations ---

// IndexQueueSource drains descriptors pushed by an external StreamSource
// onto Index. Non-video extensions are skipped without being handed to
// the decoder.
type IndexQueueSource struct {
	Index         chan string
	ValidExt      map[string]bool
	Width, Height int // known dims, 0 => probe with ffprobe per descriptor
}

func NewIndexQueueSource(index chan string) *IndexQueueSource {
	return &IndexQueueSource{
		Index:    index,
		ValidExt: map[string]bool{".mp4": true, ".mov": true},
	}
}

func (s *IndexQueueSource) LoadNextSrc(ctx context.Context) (string, bool) {
	for {
		select {
		case <-ctx.Done():
			return "", false
		case desc, open := <-s.Index:
			if !open || desc == TerminateSentinel {
				return "", false
			}
			ext := strings.ToLower(filepath.Ext(desc))
			if s.ValidExt != nil && !s.ValidExt[ext] {
				continue
			}
			return desc, true
		}
	}
}

func (s *IndexQueueSource) OpenDecoder(descriptor string) (FrameDecoder, error) {
	return openFFmpegDecoder(descriptor, s.Width, s.Height)
}

// OfflineGlobSource enumerates a directory once at construction time and
// serves names in sorted order; exhaustion is permanent.
type OfflineGlobSource struct {
	files []string
	idx   int
}

func NewOfflineGlobSource(dir string, pattern string) (*OfflineGlobSource, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return &OfflineGlobSource{files: matches}, nil
}

func (s *OfflineGlobSource) LoadNextSrc(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	default:
	}
	if s.idx >= len(s.files) {
		return "", false
	}
	f := s.files[s.idx]
	s.idx++
	return f, true
}

func (s *OfflineGlobSource) OpenDecoder(descriptor string) (FrameDecoder, error) {
	return openFFmpegDecoder(descriptor, 0, 0)
}

// RTSPSource is a fixed URL that never reaches EOF under normal operation.
// Dimensions are learned once via rtspProbe.
type RTSPSource struct {
	URL           string
	Width, Height int
}

func (s *RTSPSource) LoadNextSrc(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	default:
	}
	return s.URL, true
}

func (s *RTSPSource) OpenDecoder(descriptor string) (FrameDecoder, error) {
	if s.Width == 0 || s.Height == 0 {
		w, h, err := rtspProbe(descriptor)
		if err != nil {
			return nil, err
		}
		s.Width, s.Height = w, h
	}
	return openFFmpegDecoder(descriptor, s.Width, s.Height)
}

// --- HistoryStrategy implementations ---

type DeleteHistory struct{}

func (DeleteHistory) Release(descriptor string) {
	if err := os.Remove(descriptor); err != nil && !os.IsNotExist(err) {
		log.Printf("[history] %v: delete %s: %v", ErrFilesystemFault, descriptor, err)
	}
}

type KeepHistory struct{}

func (KeepHistory) Release(string) {}

// ArchiveSampleHistory copies the descriptor into SamplePath at most once
// per Interval, then deletes it.
type ArchiveSampleHistory struct {
	SamplePath string
	Interval   time.Duration

	mu          sync.Mutex
	lastArchive time.Time
}

func (h *ArchiveSampleHistory) Release(descriptor string) {
	now := time.Now()
	h.mu.Lock()
	due := h.lastArchive.IsZero() || now.Sub(h.lastArchive) >= h.Interval
	if due {
		h.lastArchive = now
	}
	h.mu.Unlock()

	if due {
		dest := filepath.Join(h.SamplePath, fmt.Sprintf("%s-%s", now.Format("01-02-15:04"), filepath.Base(descriptor)))
		if err := copyFile(descriptor, dest); err != nil {
			log.Printf("[history] %v: archive %s: %v", ErrFilesystemFault, descriptor, err)
		}
	}
	if err := os.Remove(descriptor); err != nil && !os.IsNotExist(err) {
		log.Printf("[history] %v: delete %s: %v", ErrFilesystemFault, descriptor, err)
	}
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// --- SinkStrategy implementations ---

// QueueSink pushes onto the bounded frame queue; the blocking send is the
// backpressure mechanism.
type QueueSink struct {
	FrameQueue chan *Frame
}

func (s *QueueSink) PassFrame(ctx context.Context, frame *Frame) {
	select {
	case s.FrameQueue <- frame:
	case <-ctx.Done():
	}
}

// CallbackSink routes frames directly to an external controller instead
// of the frame queue.
type CallbackSink struct {
	Callback func(*Frame)
}

func (s *CallbackSink) PassFrame(ctx context.Context, frame *Frame) {
	s.Callback(frame)
}

// RTSPSampleSink wraps a QueueSink/CallbackSink and additionally snapshots
// every rtsp_saved_per_frame-th frame to sample_path as a PNG, when
// enabled. The modulus check below is `== 0`, not a truthy-nonzero test.
type RTSPSampleSink struct {
	Inner             SinkStrategy
	SamplePath        string
	Enabled           bool
	SavedPerFrame     int
	sampleCnt         int
}

func (s *RTSPSampleSink) PassFrame(ctx context.Context, frame *Frame) {
	s.Inner.PassFrame(ctx, frame)
	if !s.Enabled || s.SavedPerFrame <= 0 {
		return
	}
	s.sampleCnt++
	if s.sampleCnt%s.SavedPerFrame != 0 {
		return
	}
	name := fmt.Sprintf("%s-%d.png", time.Now().Format("01-02-15-04"), s.sampleCnt)
	if err := encodePNG(filepath.Join(s.SamplePath, name), frame.Image.ToNRGBA()); err != nil {
		log.Printf("[capture] %v: rtsp sample write: %v", ErrFilesystemFault, err)
	}
}
