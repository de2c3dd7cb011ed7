package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBroadcasterFansOutToEverySubscriber checks that two independent
// subscribers (standing in for the Writer and a live-preview consumer)
// both observe every frame published, rather than racing each other for
// a single shared channel.
func TestBroadcasterFansOutToEverySubscriber(t *testing.T) {
	b := newResultBroadcaster()
	_, a := b.subscribe(4)
	_, c := b.subscribe(4)

	frame := &ReconstructedFrame{ParentSeq: 1}
	b.publish(context.Background(), frame)

	select {
	case got := <-a:
		assert.Same(t, frame, got)
	case <-time.After(time.Second):
		t.Fatal("subscriber a did not receive the published frame")
	}

	select {
	case got := <-c:
		assert.Same(t, frame, got)
	case <-time.After(time.Second):
		t.Fatal("subscriber c did not receive the published frame")
	}
}

// TestBroadcasterDropsOnFullSubscriberWithoutBlockingOthers checks that a
// subscriber whose buffer is full gets its frame dropped instead of
// stalling publish for every other subscriber.
func TestBroadcasterDropsOnFullSubscriberWithoutBlockingOthers(t *testing.T) {
	b := newResultBroadcaster()
	_, slow := b.subscribe(1)
	_, fast := b.subscribe(4)

	first := &ReconstructedFrame{ParentSeq: 1}
	second := &ReconstructedFrame{ParentSeq: 2}

	done := make(chan struct{})
	go func() {
		b.publish(context.Background(), first)
		b.publish(context.Background(), second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	require.Len(t, fast, 2)
	require.Len(t, slow, 1)
	got := <-slow
	assert.Same(t, first, got)
}

// TestBroadcasterLosslessSubscriberBlocksUntilDrained checks that a
// lossless subscriber (the Writer's mode) makes publish block rather than
// drop once its buffer is full, unlike a drop-on-full subscriber.
func TestBroadcasterLosslessSubscriberBlocksUntilDrained(t *testing.T) {
	b := newResultBroadcaster()
	_, lossless := b.subscribeLossless(1)

	ctx := context.Background()
	b.publish(ctx, &ReconstructedFrame{ParentSeq: 1}) // fills the buffer of 1

	done := make(chan struct{})
	go func() {
		b.publish(ctx, &ReconstructedFrame{ParentSeq: 2})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("publish returned before the lossless subscriber's channel had room")
	case <-time.After(100 * time.Millisecond):
	}

	<-lossless // drain the first frame, making room

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish did not unblock once the lossless subscriber had room")
	}
}

// TestBroadcasterLosslessSubscriberUnblocksOnContextCancel checks that a
// blocked lossless publish still respects cancellation instead of
// deadlocking forever when nothing ever drains the subscriber.
func TestBroadcasterLosslessSubscriberUnblocksOnContextCancel(t *testing.T) {
	b := newResultBroadcaster()
	_, _ = b.subscribeLossless(1)

	ctx, cancel := context.WithCancel(context.Background())
	b.publish(ctx, &ReconstructedFrame{ParentSeq: 1}) // fills the buffer

	done := make(chan struct{})
	go func() {
		b.publish(ctx, &ReconstructedFrame{ParentSeq: 2})
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish did not unblock on ctx cancellation")
	}
}

// TestBroadcasterRunClosesSubscribersOnContextCancel checks that run
// unblocks and closes every live subscriber channel when ctx is
// cancelled, even though the source channel is never closed.
func TestBroadcasterRunClosesSubscribersOnContextCancel(t *testing.T) {
	b := newResultBroadcaster()
	_, frames := b.subscribe(1)

	source := make(chan *ReconstructedFrame)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		b.run(ctx, source)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not return after ctx cancellation")
	}

	_, open := <-frames
	assert.False(t, open)
}

// TestBroadcasterRunClosesSubscribersOnSourceClose checks the case where
// the upstream channel is closed, as Controller.collect does to
// ResultQueue on every exit path.
func TestBroadcasterRunClosesSubscribersOnSourceClose(t *testing.T) {
	b := newResultBroadcaster()
	_, frames := b.subscribe(1)

	source := make(chan *ReconstructedFrame)
	close(source)

	done := make(chan struct{})
	go func() {
		b.run(context.Background(), source)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not return after source closed")
	}

	_, open := <-frames
	assert.False(t, open)
}

// TestBroadcasterUnsubscribeClosesChannel checks that Unsubscribe lets a
// consumer observe channel closure and stop, rather than leaving it
// hanging on a channel that never receives or closes again.
func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := newResultBroadcaster()
	id, frames := b.subscribe(1)

	b.unsubscribe(id)

	_, open := <-frames
	assert.False(t, open)
}
