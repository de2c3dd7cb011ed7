package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"
)

// Writer drains the result queue and persists reconstructed frames to
// disk. The region_path/<index>/frames directory must exist before any
// output is emitted; NewWriter creates it eagerly.
type Writer struct {
	Index   int
	Dir     string // region_path/<index>/frames
	Source  <-chan *ReconstructedFrame
	counter uint64
}

func NewWriter(index int, regionPath string, source <-chan *ReconstructedFrame) (*Writer, error) {
	dir := filepath.Join(regionPath, fmt.Sprintf("%d", index), "frames")
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &Writer{Index: index, Dir: dir, Source: source}, nil
}

// Run blocks draining Source until it is closed or ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, open := <-w.Source:
			if !open {
				return
			}
			w.write(frame)
		}
	}
}

func (w *Writer) write(frame *ReconstructedFrame) {
	w.counter++
	name := fmt.Sprintf("%s-%d.png", time.Now().Format("01-02-15:04"), w.counter)
	path := filepath.Join(w.Dir, name)
	if err := encodePNG(path, frame.RGB.ToNRGBA()); err != nil {
		log.Printf("[writer %d] %v: %v", w.Index, ErrFilesystemFault, err)
	}
}
