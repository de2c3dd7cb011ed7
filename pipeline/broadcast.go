package pipeline

import (
	"context"
	"sync"
)

// resultBroadcaster fans reconstructed frames out to multiple consumers
// (the Writer and, optionally, a live-preview delivery service) without
// letting a slow consumer block the others or the Controller's Collect
// loop. The Writer subscribes lossless: once its own subscription buffer
// is full, publish blocks until it has room or ctx is cancelled, rather
// than dropping a frame meant for disk. Preview subscribers stay drop-on-full so a stalled network
// peer can never back up the pipeline.
type resultBroadcaster struct {
	mu   sync.Mutex
	subs map[int]*subscriber
	next int
}

type subscriber struct {
	ch       chan *ReconstructedFrame
	lossless bool
}

func newResultBroadcaster() *resultBroadcaster {
	return &resultBroadcaster{subs: make(map[int]*subscriber)}
}

// subscribe registers a new drop-on-full consumer. buf sizes its channel;
// once full, further frames are dropped for that consumer rather than
// blocking the broadcast.
func (b *resultBroadcaster) subscribe(buf int) (id int, frames <-chan *ReconstructedFrame) {
	return b.add(buf, false)
}

// subscribeLossless registers a consumer that must see every frame. The
// Writer uses this: buf cushions a momentary stall, but publish blocks
// past that rather than drop a frame the Writer exists to persist.
func (b *resultBroadcaster) subscribeLossless(buf int) (id int, frames <-chan *ReconstructedFrame) {
	return b.add(buf, true)
}

func (b *resultBroadcaster) add(buf int, lossless bool) (id int, frames <-chan *ReconstructedFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id = b.next
	b.next++
	ch := make(chan *ReconstructedFrame, buf)
	b.subs[id] = &subscriber{ch: ch, lossless: lossless}
	return id, ch
}

func (b *resultBroadcaster) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// publish fans frame out to every subscriber. Drop-on-full subscribers
// never block this call; a lossless subscriber blocks it until its
// channel has room or ctx is cancelled, so the broadcaster's own read of
// ResultQueue (and transitively Collect, once ResultQueue's buffer is
// exhausted) is the only backpressure a stalled Writer can apply.
func (b *resultBroadcaster) publish(ctx context.Context, frame *ReconstructedFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.lossless {
			select {
			case sub.ch <- frame:
			case <-ctx.Done():
			}
			continue
		}
		select {
		case sub.ch <- frame:
		default:
		}
	}
}

// run drains source, publishing every frame, until ctx is cancelled or
// source closes, then closes and forgets every remaining subscriber.
// Collect closes ResultQueue on every exit path (pipeline/controller.go),
// so natural source exhaustion reaches run here as a closed channel, not
// just ctx cancellation.
func (b *resultBroadcaster) run(ctx context.Context, source <-chan *ReconstructedFrame) {
	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case frame, open := <-source:
			if !open {
				b.closeAll()
				return
			}
			b.publish(ctx, frame)
		}
	}
}

func (b *resultBroadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
