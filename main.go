package main

import (
	"context"
	"log"
	"os"

	"vms-pipeline/config"
	"vms-pipeline/database"
	"vms-pipeline/handlers"
	"vms-pipeline/middleware"
	"vms-pipeline/models"
	"vms-pipeline/monitor"
	"vms-pipeline/pipeline"
	"vms-pipeline/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize MediaMTX service (RTSP → HLS via MediaMTX)
	mediamtxService := services.NewMediaMTXService(cfg.MediaMTX)

	// Initialize RTSP service (legacy, kept for backward compatibility)
	rtspService := services.NewRTSPService(cfg.RTSP)

	// Initialize MJPEG service (simple, real-time streaming without file storage)
	mjpegService := services.NewMJPEGService()

	// Initialize WebRTC service (optional, more complex)
	webrtcService := services.NewWebRTCService()

	// Initialize the capture/tile/detect/reconstruct pipeline supervisor
	// and start it for every fleet-file or database camera already marked
	// enabled, so a restart resumes detection without an operator call.
	mon := monitor.New(db)
	startEnabledPipelines(mon, db, cfg.Pipeline)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(db, cfg.JWT)
	cameraHandler := handlers.NewCameraHandler(db, mediamtxService, rtspService, mjpegService, webrtcService)
	pipelineHandler := handlers.NewPipelineHandler(db, mon, cfg.Pipeline, webrtcService)

	// Setup router
	router := setupRouter(authHandler, cameraHandler, pipelineHandler, cfg)

	// Start server
	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// startEnabledPipelines builds pipeline.Config records from the fleet
// YAML file (if configured) and from enabled camera rows, and hands them
// all to the Monitor in one Call invocation.
func startEnabledPipelines(mon *monitor.Monitor, db *gorm.DB, dirs config.PipelineConfig) {
	var cfgs []pipeline.Config

	if dirs.FleetFile != "" {
		entries, err := config.LoadFleet(dirs.FleetFile)
		if err != nil {
			log.Printf("pipeline: failed to load fleet file %s: %v", dirs.FleetFile, err)
		} else {
			for _, e := range entries {
				cfgs = append(cfgs, pipeline.ConfigFromFleetEntry(e, dirs))
			}
		}
	}

	var cameras []models.Camera
	if err := db.Where("enable = ?", true).Find(&cameras).Error; err != nil {
		log.Printf("pipeline: failed to load enabled cameras: %v", err)
	} else {
		for _, cam := range cameras {
			cfgs = append(cfgs, pipeline.ConfigFromCamera(cam, dirs))
		}
	}

	if len(cfgs) == 0 {
		return
	}
	mon.Call(context.Background(), cfgs)
}

func setupRouter(authHandler *handlers.AuthHandler, cameraHandler *handlers.CameraHandler, pipelineHandler *handlers.PipelineHandler, cfg *config.Config) *gin.Engine {
	// Set Gin mode
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// CORS configuration
	// Allow all localhost origins for development
	router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			// Allow requests with no origin (like mobile apps or curl requests)
			if origin == "" {
				return true
			}
			// Allow all localhost and 127.0.0.1 origins
			return origin == "http://localhost:8080" ||
				origin == "http://localhost:5173" ||
				origin == "http://localhost:3000" ||
				origin == "http://127.0.0.1:8080" ||
				origin == "http://127.0.0.1:5173" ||
				origin == "http://127.0.0.1:3000"
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "Cache-Control", "Pragma"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "Cache-Control", "Pragma", "Expires"},
		AllowCredentials: true,
		MaxAge:           12 * 3600, // 12 hours
	}))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Note: HLS streams are now served directly by MediaMTX on port 8888
	// No need to serve static files from backend anymore
	// MediaMTX handles CORS and cache headers in its configuration

	// Public routes
	api := router.Group("/api/v1")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
		}
	}

	// Protected routes
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		// Auth routes
		protected.GET("/auth/me", authHandler.GetMe)
		protected.POST("/auth/logout", authHandler.Logout)

		// Camera routes
		cameras := protected.Group("/cameras")
		{
			cameras.GET("", cameraHandler.GetCameras)
			cameras.GET("/:id", cameraHandler.GetCamera)
			cameras.POST("", cameraHandler.CreateCamera)
			cameras.PUT("/:id", cameraHandler.UpdateCamera)
			cameras.DELETE("/:id", cameraHandler.DeleteCamera)
			cameras.GET("/:id/stream", cameraHandler.GetStreamURL) // HLS stream (legacy)
			cameras.GET("/:id/stream/health", cameraHandler.GetStreamHealth)
			cameras.GET("/:id/mjpeg", cameraHandler.GetMJPEGStream)            // MJPEG stream (simple, real-time, no file storage)
			cameras.GET("/:id/webrtc", cameraHandler.GetWebRTCStream)          // WebRTC stream (optional)
			cameras.GET("/:id/webrtc/ws", cameraHandler.HandleWebRTCWebSocket) // WebRTC WebSocket signaling

			cameras.POST("/:id/pipeline/start", pipelineHandler.StartPipeline)
			cameras.POST("/:id/pipeline/stop", pipelineHandler.StopPipeline)
			cameras.GET("/:id/pipeline/status", pipelineHandler.PipelineStatus)
			cameras.POST("/:id/pipeline/preview", pipelineHandler.PreviewPipeline)
		}
	}

	return router
}
