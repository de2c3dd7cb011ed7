package pipeline

import (
	"fmt"
	"path/filepath"

	"vms-pipeline/config"

	"github.com/google/uuid"
)

// Config describes one camera's pipeline. It is built either from a
// models.Camera row (database.go / handlers, see ConfigFromCamera) or
// from a config.FleetEntry (YAML file, see ConfigFromFleetEntry).
type Config struct {
	Index   int
	Enable  bool
	Online  bool // true: indexed/RTSP source; false: offline directory glob
	RTSPURL string

	Rows, Cols int

	SampleRate            int
	SampleIntervalMinutes int

	ResizeScale  float64
	ResizeWidth  int
	ResizeHeight int
	ROI          ROI

	EnableSampleFrame bool
	RTSPSavedPerFrame int

	DrawBoundary bool
	ShowWindow   bool

	DeletePostRead bool

	// Working directories. StreamPath, SamplePath and OfflinePath are this
	// camera's own <index> subdirectories; RegionPath is the shared root,
	// under which the Monitor cleans <index>/ before Capture/Controller
	// start.
	StreamPath  string
	SamplePath  string
	RegionPath  string
	OfflinePath string
}

// ROI is a crop rectangle in the resized coordinate space. Width/Height
// of zero means "no crop".
type ROI struct {
	X, Y, Width, Height int
}

func ConfigFromFleetEntry(e config.FleetEntry, dirs config.PipelineConfig) Config {
	return Config{
		Index:                 e.Index,
		Enable:                e.Enable,
		Online:                e.Online,
		RTSPURL:               e.RTSP,
		Rows:                  e.Routine.Row,
		Cols:                  e.Routine.Col,
		SampleRate:            e.SampleRate,
		SampleIntervalMinutes: e.SampleIntervalMinutes,
		ResizeScale:           e.Resize.Scale,
		ResizeWidth:           e.Resize.Width,
		ResizeHeight:          e.Resize.Height,
		ROI:                   ROI{X: e.ROI.X, Y: e.ROI.Y, Width: e.ROI.Width, Height: e.ROI.Height},
		EnableSampleFrame:     e.EnableSampleFrame,
		RTSPSavedPerFrame:     e.RTSPSavedPerFrame,
		DrawBoundary:          e.DrawBoundary,
		ShowWindow:            e.ShowWindow,
		DeletePostRead:        e.DeletePostRead,
		StreamPath:            filepath.Join(dirs.StreamPath, fmt.Sprintf("%d", e.Index)),
		SamplePath:            filepath.Join(dirs.SamplePath, fmt.Sprintf("%d", e.Index)),
		RegionPath:            dirs.RegionPath,
		OfflinePath:           filepath.Join(dirs.OfflinePath, fmt.Sprintf("%d", e.Index)),
	}
}

// NewRunID mints the correlation ID threaded through log lines and
// models.PipelineRun rows for one run of a camera's pipeline.
func NewRunID() string {
	return uuid.NewString()
}
