package pipeline

import "errors"

// Fault kinds the core distinguishes. Decoder/source faults are
// recoverable and absorbed where they occur; detector faults are
// unrecoverable and propagate by flipping Controller.quit.
var (
	// ErrSourceExhausted: the index stream returned the terminate sentinel.
	ErrSourceExhausted = errors.New("pipeline: stream source exhausted")

	// ErrDecoderOpenFailed: opening a descriptor's decoder failed; treated
	// as EOF for that descriptor.
	ErrDecoderOpenFailed = errors.New("pipeline: decoder open failed")

	// ErrReadFailed: a mid-stream read failed; identical handling to EOF.
	ErrReadFailed = errors.New("pipeline: decoder read failed")

	// ErrQueueClosed: observed during shutdown; loops exit without error.
	ErrQueueClosed = errors.New("pipeline: queue closed")

	// ErrDetectorFault: a TileDetector loop panicked or returned an error;
	// that loop terminates and starves Collect.
	ErrDetectorFault = errors.New("pipeline: detector fault")

	// ErrFilesystemFault: a missing ROI path or unwritable sample/region
	// directory; logged, Capture continues, Writer may drop the frame.
	ErrFilesystemFault = errors.New("pipeline: filesystem fault")
)
