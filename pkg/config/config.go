// Package config provides configuration management for faceattend.
// It loads configuration from YAML files with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that overrides the config lookup.
const EnvConfigPath = "FACEATTEND_CONFIG"

// Recognition engines.
const (
	EngineLBPH = "lbph"
	EngineDlib = "dlib"
)

// Config holds all faceattend configuration.
type Config struct {
	Camera      CameraConfig      `yaml:"camera"`
	Detection   DetectionConfig   `yaml:"detection"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Dataset     DatasetConfig     `yaml:"dataset"`
	Attendance  AttendanceConfig  `yaml:"attendance"`
	Storage     StorageConfig     `yaml:"storage"`
	Web         WebConfig         `yaml:"web"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// CameraConfig holds camera settings.
type CameraConfig struct {
	Device  int  `yaml:"device"`
	Width   int  `yaml:"width"`
	Height  int  `yaml:"height"`
	Preview bool `yaml:"preview"`
}

// DetectionConfig holds Haar cascade settings.
type DetectionConfig struct {
	CascadeFile  string  `yaml:"cascade_file"`
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
	MinFaceSize  int     `yaml:"min_face_size"`
}

// RecognitionConfig holds face recognition settings.
type RecognitionConfig struct {
	Engine string `yaml:"engine"`
	// ModelFile is where train writes and recognize reads the fitted model.
	ModelFile string `yaml:"model_file"`
	// Threshold is the LBPH distance below which a prediction is accepted.
	Threshold float64 `yaml:"threshold"`
	// Tolerance is the dlib descriptor distance below which a prediction is accepted.
	Tolerance float64 `yaml:"tolerance"`
	// ModelPath holds the dlib model files and the downloaded cascade.
	ModelPath string `yaml:"model_path"`
}

// DatasetConfig holds face sample settings.
type DatasetConfig struct {
	Dir     string `yaml:"dir"`
	Samples int    `yaml:"samples"`
}

// AttendanceConfig holds attendance ledger settings.
type AttendanceConfig struct {
	Dir         string `yaml:"dir"`
	WindowStart string `yaml:"window_start"`
	WindowEnd   string `yaml:"window_end"`
	// Database is an optional SQLite file mirroring the CSV ledger.
	Database string `yaml:"database"`
}

// StorageConfig holds settings for the dlib gallery file.
type StorageConfig struct {
	EncryptionEnabled bool `yaml:"encryption_enabled"`
}

// WebConfig holds web console settings.
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local/share/faceattend")
	modelPath := filepath.Join(dataDir, "models")

	return &Config{
		Camera: CameraConfig{
			Device:  0,
			Width:   640,
			Height:  480,
			Preview: true,
		},
		Detection: DetectionConfig{
			CascadeFile:  filepath.Join(modelPath, "haarcascade_frontalface_default.xml"),
			ScaleFactor:  1.1,
			MinNeighbors: 5,
			MinFaceSize:  30,
		},
		Recognition: RecognitionConfig{
			Engine:    EngineLBPH,
			ModelFile: filepath.Join(dataDir, "trainer", "trainer.yml"),
			Threshold: 60,
			Tolerance: 0.4,
			ModelPath: modelPath,
		},
		Dataset: DatasetConfig{
			Dir:     filepath.Join(dataDir, "dataset"),
			Samples: 1,
		},
		Attendance: AttendanceConfig{
			Dir:         filepath.Join(dataDir, "attendance"),
			WindowStart: "09:00:00",
			WindowEnd:   "11:00:00",
		},
		Storage: StorageConfig{
			EncryptionEnabled: true,
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8085,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(dataDir, "faceattend.log"),
		},
	}
}

// Load loads configuration from the specified file.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, fmt.Errorf("parsing %s: %w", path, err)
	}

	return config, nil
}

// LoadDefault loads a .env file if present and then tries the default
// config locations: $FACEATTEND_CONFIG, the system file, the user file.
func LoadDefault() (*Config, error) {
	_ = godotenv.Load()

	for _, path := range SearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return DefaultConfig(), nil
}

// SearchPaths lists the config files LoadDefault looks at, in order.
func SearchPaths() []string {
	var paths []string
	if env := os.Getenv(EnvConfigPath); env != "" {
		paths = append(paths, ExpandPath(env))
	}
	paths = append(paths, "/etc/faceattend/faceattend.yaml")
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config/faceattend/faceattend.yaml"))
	}
	return paths
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// ParseClock parses an "HH:MM:SS" wall-clock time into an offset since midnight.
func ParseClock(value string) (time.Duration, error) {
	t, err := time.Parse("15:04:05", value)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q (want HH:MM:SS)", value)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Camera.Device < 0 {
		return fmt.Errorf("invalid camera device index: %d", c.Camera.Device)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("invalid camera resolution: %dx%d", c.Camera.Width, c.Camera.Height)
	}

	if c.Detection.ScaleFactor <= 1 {
		return fmt.Errorf("scale_factor must be greater than 1, got %f", c.Detection.ScaleFactor)
	}
	if c.Detection.MinNeighbors < 0 {
		return fmt.Errorf("min_neighbors must not be negative, got %d", c.Detection.MinNeighbors)
	}

	switch c.Recognition.Engine {
	case EngineLBPH, EngineDlib:
	default:
		return fmt.Errorf("invalid recognition engine: %s (must be lbph or dlib)", c.Recognition.Engine)
	}
	if c.Recognition.ModelFile == "" {
		return fmt.Errorf("model_file must be set")
	}
	if c.Recognition.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %f", c.Recognition.Threshold)
	}
	if c.Recognition.Tolerance <= 0 || c.Recognition.Tolerance > 1 {
		return fmt.Errorf("tolerance must be between 0 and 1, got %f", c.Recognition.Tolerance)
	}

	if c.Dataset.Dir == "" {
		return fmt.Errorf("dataset dir must be set")
	}
	if c.Dataset.Samples <= 0 {
		return fmt.Errorf("samples must be positive, got %d", c.Dataset.Samples)
	}

	if c.Attendance.Dir == "" {
		return fmt.Errorf("attendance dir must be set")
	}
	if (c.Attendance.WindowStart == "") != (c.Attendance.WindowEnd == "") {
		return fmt.Errorf("window_start and window_end must both be set or both be empty")
	}
	if c.Attendance.WindowStart != "" {
		start, err := ParseClock(c.Attendance.WindowStart)
		if err != nil {
			return fmt.Errorf("window_start: %w", err)
		}
		end, err := ParseClock(c.Attendance.WindowEnd)
		if err != nil {
			return fmt.Errorf("window_end: %w", err)
		}
		if start > end {
			return fmt.Errorf("window_start %s is after window_end %s", c.Attendance.WindowStart, c.Attendance.WindowEnd)
		}
	}

	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web port: %d", c.Web.Port)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Detection.CascadeFile = ExpandPath(c.Detection.CascadeFile)
	c.Recognition.ModelFile = ExpandPath(c.Recognition.ModelFile)
	c.Recognition.ModelPath = ExpandPath(c.Recognition.ModelPath)
	c.Dataset.Dir = ExpandPath(c.Dataset.Dir)
	c.Attendance.Dir = ExpandPath(c.Attendance.Dir)
	c.Attendance.Database = ExpandPath(c.Attendance.Database)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// EnsureDirectories creates the dataset, model and attendance directories.
func (c *Config) EnsureDirectories() error {
	dirs := []struct {
		name string
		path string
		perm os.FileMode
	}{
		{"dataset", c.Dataset.Dir, 0700},
		{"model", filepath.Dir(c.Recognition.ModelFile), 0700},
		{"models", c.Recognition.ModelPath, 0755},
		{"attendance", c.Attendance.Dir, 0755},
	}

	for _, d := range dirs {
		if d.path == "" {
			continue
		}
		if err := os.MkdirAll(d.path, d.perm); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", d.name, err)
		}
	}

	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return nil
}

// Addr returns the web console listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}
