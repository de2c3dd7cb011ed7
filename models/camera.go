package models

import (
	"time"

	"gorm.io/gorm"
)

// Camera is both the row the REST API edits and the row the Monitor reads
// to build a pipeline.Config for this camera (see pipeline.ConfigFromCamera).
type Camera struct {
	ID                 uint           `json:"id" gorm:"primaryKey"`
	Name               string         `json:"name" gorm:"not null"`
	Latitude           float64        `json:"latitude" gorm:"not null"`
	Longitude          float64        `json:"longitude" gorm:"not null"`
	RTSPUrl            string         `json:"rtsp_url" gorm:"not null"`
	Status             string         `json:"status" gorm:"default:offline"` // online, offline
	Area               string         `json:"area" gorm:"not null"`
	Building           string         `json:"building" gorm:"not null"`
	LastMotionDetected *time.Time     `json:"last_motion_detected,omitempty"`

	// Pipeline configuration.
	Enable                bool    `json:"enable" gorm:"default:true"`
	Online                bool    `json:"online" gorm:"default:true"` // indexed/RTSP (true) vs offline glob (false)
	TileRows              int     `json:"tile_rows" gorm:"default:2"`
	TileCols              int     `json:"tile_cols" gorm:"default:2"`
	SampleRate            int     `json:"sample_rate" gorm:"default:1"`
	SampleIntervalMinutes int     `json:"sample_interval_minutes" gorm:"default:5"`
	ResizeScale           float64 `json:"resize_scale" gorm:"default:-1"`
	ResizeWidth           int     `json:"resize_width" gorm:"default:-1"`
	ResizeHeight          int     `json:"resize_height" gorm:"default:-1"`
	ROIX                  int     `json:"roi_x"`
	ROIY                  int     `json:"roi_y"`
	ROIWidth              int     `json:"roi_width"`
	ROIHeight             int     `json:"roi_height"`
	EnableSampleFrame     bool    `json:"enable_sample_frame" gorm:"default:false"`
	RTSPSavedPerFrame     int     `json:"rtsp_saved_per_frame" gorm:"default:25"`
	DrawBoundary          bool    `json:"draw_boundary" gorm:"default:true"`
	ShowWindow            bool    `json:"show_window" gorm:"default:false"`
	DeletePostRead        bool    `json:"delete_post_read" gorm:"default:true"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// PipelineRun records one pipeline run's lifecycle for a camera: when it
// started, when it quiesced, and what it produced.
type PipelineRun struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	CameraID        uint       `json:"camera_id" gorm:"not null;index"`
	RunID           string     `json:"run_id" gorm:"uniqueIndex"` // uuid, see pipeline.NewRunID
	StartedAt       time.Time  `json:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty"`
	FramesCaptured  uint64     `json:"frames_captured"`
	FramesWritten   uint64     `json:"frames_written"`
	TerminationNote string     `json:"termination_note,omitempty"`
}
