package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	RTSP     RTSPConfig
	MediaMTX MediaMTXConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret string
	Expiry string
}

type RTSPConfig struct {
	StreamPath string
	OutputPath string
}

type MediaMTXConfig struct {
	Host       string
	APIPort    string
	HTTPPort   string
	PublicHost string
}

// PipelineConfig holds the working-directory roots. pipeline.ConfigFromCamera
// and pipeline.ConfigFromFleetEntry carve them into per-camera <index>
// subdirectories, which the Monitor cleans before starting a pipeline.
type PipelineConfig struct {
	StreamPath  string // stream_path/<index>/...
	SamplePath  string // sample_path/<index>/...
	RegionPath  string // region_path/<index>/...
	OfflinePath string // offline_path/... (enumerated once for offline mode)
	FleetFile   string // YAML file listing camera records; empty disables file-based fleets
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "vms_cctv"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			Expiry: getEnv("JWT_EXPIRY", "24h"),
		},
		RTSP: RTSPConfig{
			StreamPath: getEnv("RTSP_STREAM_PATH", "/streams"),
			OutputPath: getEnv("HLS_OUTPUT_PATH", "./hls_output"),
		},
		MediaMTX: MediaMTXConfig{
			Host:       getEnv("MEDIAMTX_HOST", "localhost"),
			APIPort:    getEnv("MEDIAMTX_API_PORT", "9997"),
			HTTPPort:   getEnv("MEDIAMTX_HTTP_PORT", "8888"),
			PublicHost: getEnv("MEDIAMTX_PUBLIC_HOST", "localhost"),
		},
		Pipeline: PipelineConfig{
			StreamPath:  getEnv("PIPELINE_STREAM_PATH", "./data/streams"),
			SamplePath:  getEnv("PIPELINE_SAMPLE_PATH", "./data/samples"),
			RegionPath:  getEnv("PIPELINE_REGION_PATH", "./data/regions"),
			OfflinePath: getEnv("PIPELINE_OFFLINE_PATH", "./data/offline"),
			FleetFile:   getEnv("PIPELINE_FLEET_FILE", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FleetEntry is one camera record as it appears in the YAML fleet file. It
// mirrors models.Camera's pipeline fields but is decoded independently so
// a fleet of cameras can be described without a database row per camera.
type FleetEntry struct {
	Index                 int     `yaml:"index"`
	Enable                bool    `yaml:"enable"`
	Online                bool    `yaml:"online"`
	RTSP                  string  `yaml:"rtsp"`
	Routine               Routine `yaml:"routine"`
	SampleRate            int     `yaml:"sample_rate"`
	SampleIntervalMinutes int     `yaml:"sample_interval_minutes"`
	Resize                Resize  `yaml:"resize"`
	ROI                   ROI     `yaml:"roi"`
	EnableSampleFrame     bool    `yaml:"enable_sample_frame"`
	RTSPSavedPerFrame     int     `yaml:"rtsp_saved_per_frame"`
	DrawBoundary          bool    `yaml:"draw_boundary"`
	ShowWindow            bool    `yaml:"show_window"`
	DeletePostRead        bool    `yaml:"delete_post_read"`
}

type Routine struct {
	Row int `yaml:"row"`
	Col int `yaml:"col"`
}

type Resize struct {
	Scale  float64 `yaml:"scale"`
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
}

type ROI struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// LoadFleet parses a YAML list of FleetEntry records from path.
func LoadFleet(path string) ([]FleetEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fleet file: %w", err)
	}
	var entries []FleetEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse fleet file: %w", err)
	}
	return entries, nil
}
