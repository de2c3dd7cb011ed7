package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDecoder struct {
	remaining int
	w, h      int
}

func (d *fakeDecoder) Read() (*RGBImage, bool) {
	if d.remaining <= 0 {
		return nil, false
	}
	d.remaining--
	return NewRGBImage(d.w, d.h), true
}

func (d *fakeDecoder) Close() error { return nil }

// fakeSource serves a fixed list of descriptors, each decoding framesPer
// frames, then exhausts.
type fakeSource struct {
	descriptors []string
	framesPer   int
	idx         int
}

func (s *fakeSource) LoadNextSrc(ctx context.Context) (string, bool) {
	if s.idx >= len(s.descriptors) {
		return "", false
	}
	d := s.descriptors[s.idx]
	s.idx++
	return d, true
}

func (s *fakeSource) OpenDecoder(descriptor string) (FrameDecoder, error) {
	return &fakeDecoder{remaining: s.framesPer, w: 2, h: 2}, nil
}

type recordingHistory struct {
	mu       sync.Mutex
	released []string
}

func (h *recordingHistory) Release(descriptor string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = append(h.released, descriptor)
}

func (h *recordingHistory) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.released))
	copy(out, h.released)
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	frames []*Frame
}

func (s *recordingSink) PassFrame(ctx context.Context, frame *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func waitDone(t *testing.T, c *Capture, timeout time.Duration) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(timeout):
		t.Fatal("capture did not terminate in time")
	}
}

// TestCaptureOfflineExhaustionTerminates covers an end-to-end offline
// scenario: 3 descriptors of 10 frames each, all frames forwarded,
// capture terminates, history applied to every descriptor in order.
func TestCaptureOfflineExhaustionTerminates(t *testing.T) {
	descriptors := []string{"a.mp4", "b.mp4", "c.mp4"}
	source := &fakeSource{descriptors: descriptors, framesPer: 10}
	history := &recordingHistory{}
	sink := &recordingSink{}

	cap := NewCapture(1, source, history, sink, 1)
	cap.Start()

	waitDone(t, cap, 2*time.Second)
	assert.Equal(t, 30, sink.count())
	assert.Equal(t, descriptors, history.snapshot())
	assert.Equal(t, StatusShutDown, cap.Status())
}

// TestCaptureSampleRateSubsamples checks 1-in-N forwarding.
func TestCaptureSampleRateSubsamples(t *testing.T) {
	source := &fakeSource{descriptors: []string{"a.mp4"}, framesPer: 10}
	history := &recordingHistory{}
	sink := &recordingSink{}

	cap := NewCapture(1, source, history, sink, 5)
	cap.Start()

	waitDone(t, cap, 2*time.Second)
	require.Equal(t, 2, sink.count())
	assert.Equal(t, uint64(5), sink.frames[0].Seq)
	assert.Equal(t, uint64(10), sink.frames[1].Seq)
}

// blockingSink never completes PassFrame until ctx is cancelled, standing
// in for a full frame queue with no consumer draining it.
type blockingSink struct{ entered chan struct{} }

func (s *blockingSink) PassFrame(ctx context.Context, frame *Frame) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
}

// TestCaptureCancelUnderBackpressure checks that cancellation while
// Capture is blocked pushing to a full queue still terminates the decode
// loop in bounded time.
func TestCaptureCancelUnderBackpressure(t *testing.T) {
	source := &fakeSource{descriptors: []string{"a.mp4"}, framesPer: 1000}
	history := &recordingHistory{}
	sink := &blockingSink{entered: make(chan struct{}, 1)}

	cap := NewCapture(1, source, history, sink, 1)
	cap.Start()

	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("capture never reached the blocking sink")
	}

	cap.Cancel()
	waitDone(t, cap, 2*time.Second)
}

// TestCaptureDecoderOpenFailureSkipsToNextDescriptor checks that a
// decoder-open failure is treated as EOF for that descriptor.
func TestCaptureDecoderOpenFailureSkipsToNextDescriptor(t *testing.T) {
	source := &failingOpenSource{fakeSource: fakeSource{descriptors: []string{"bad.mp4", "good.mp4"}, framesPer: 3}}
	history := &recordingHistory{}
	sink := &recordingSink{}

	cap := NewCapture(1, source, history, sink, 1)
	cap.Start()

	waitDone(t, cap, 2*time.Second)
	assert.Equal(t, 3, sink.count())
	assert.Equal(t, []string{"bad.mp4", "good.mp4"}, history.snapshot())
}

type failingOpenSource struct {
	fakeSource
}

func (s *failingOpenSource) OpenDecoder(descriptor string) (FrameDecoder, error) {
	if descriptor == "bad.mp4" {
		return nil, fmt.Errorf("simulated open failure")
	}
	return s.fakeSource.OpenDecoder(descriptor)
}
