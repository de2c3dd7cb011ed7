package handlers

import (
	"context"
	"net/http"

	"vms-pipeline/config"
	"vms-pipeline/models"
	"vms-pipeline/monitor"
	"vms-pipeline/pipeline"
	"vms-pipeline/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// PipelineHandler exposes control of the capture/tile/detect/reconstruct
// graph per camera over HTTP, alongside the existing streaming handlers in
// camera_handler.go.
type PipelineHandler struct {
	db      *gorm.DB
	monitor *monitor.Monitor
	dirs    config.PipelineConfig
	webrtc  *services.WebRTCService
}

func NewPipelineHandler(db *gorm.DB, mon *monitor.Monitor, dirs config.PipelineConfig, webrtc *services.WebRTCService) *PipelineHandler {
	return &PipelineHandler{db: db, monitor: mon, dirs: dirs, webrtc: webrtc}
}

// StartPipeline builds a pipeline.Config from the camera row and starts it
// under the handler's Monitor.
func (h *PipelineHandler) StartPipeline(c *gin.Context) {
	id := c.Param("id")

	var camera models.Camera
	if err := h.db.First(&camera, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch camera"})
		return
	}

	if !camera.Enable {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Camera is disabled"})
		return
	}

	if _, running := h.monitor.Pipeline(int(camera.ID)); running {
		c.JSON(http.StatusConflict, gin.H{"error": "Pipeline already running for this camera"})
		return
	}

	cfg := pipeline.ConfigFromCamera(camera, h.dirs)
	h.monitor.Call(context.Background(), []pipeline.Config{cfg})

	if _, running := h.monitor.Pipeline(int(camera.ID)); !running {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start pipeline"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"camera_id": camera.ID, "status": "running"})
}

// StopPipeline cancels the running pipeline for a camera, if any.
func (h *PipelineHandler) StopPipeline(c *gin.Context) {
	id := c.Param("id")

	var camera models.Camera
	if err := h.db.First(&camera, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch camera"})
		return
	}

	p, running := h.monitor.Pipeline(int(camera.ID))
	if !running {
		c.JSON(http.StatusNotFound, gin.H{"error": "No pipeline running for this camera"})
		return
	}
	p.Stop()

	c.JSON(http.StatusOK, gin.H{"camera_id": camera.ID, "status": "stopping"})
}

// PipelineStatus reports whether a pipeline is currently running for a
// camera and, if so, its run id.
func (h *PipelineHandler) PipelineStatus(c *gin.Context) {
	id := c.Param("id")

	var camera models.Camera
	if err := h.db.First(&camera, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch camera"})
		return
	}

	p, running := h.monitor.Pipeline(int(camera.ID))
	if !running {
		c.JSON(http.StatusOK, gin.H{"camera_id": camera.ID, "status": "stopped"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"camera_id": camera.ID,
		"status":    "running",
		"run_id":    p.RunID,
	})
}

// PreviewPipeline subscribes a WebRTC track to the camera's running
// pipeline so a client can watch the tiled, annotated reconstruction live
// instead of the raw RTSP passthrough served by camera_handler.go.
func (h *PipelineHandler) PreviewPipeline(c *gin.Context) {
	id := c.Param("id")

	var camera models.Camera
	if err := h.db.First(&camera, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch camera"})
		return
	}

	p, running := h.monitor.Pipeline(int(camera.ID))
	if !running {
		c.JSON(http.StatusNotFound, gin.H{"error": "No pipeline running for this camera"})
		return
	}

	_, frames := p.Subscribe(4)
	if err := h.webrtc.StartReconstructedStream(camera.ID, frames); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start reconstructed preview"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"camera_id": camera.ID, "status": "preview_starting"})
}
