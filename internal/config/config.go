// Package config loads the monitor settings from a JSON file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/nidra/internal/capture"
	"github.com/ayusman/nidra/internal/detector"
)

// DefaultDirName is the data directory created under the user's home.
const DefaultDirName = ".nidra"

// maxFileSize bounds the config file.
const maxFileSize = 1 * 1024 * 1024

// Config holds everything needed to start the monitor.
// Fields omitted from the JSON file keep their Default values.
type Config struct {
	// Camera
	FrontDevice int  `json:"front_device"`
	BackDevice  int  `json:"back_device"`
	Facing      int  `json:"facing"`
	FPS         int  `json:"fps,omitempty"`
	AutoStart   bool `json:"auto_start"`

	// Model. A nil ModelID restores the last loaded model instead.
	ModelID *int `json:"model_id,omitempty"`
	Backend int  `json:"backend"`

	// Detector service
	ServiceScript string `json:"service_script,omitempty"`
	Python        string `json:"python,omitempty"`
	ModelDir      string `json:"model_dir,omitempty"`

	// Alert hooks. An empty HooksDir uses <data_dir>/hooks.
	HooksDir      string `json:"hooks_dir,omitempty"`
	HookTimeoutMs int    `json:"hook_timeout_ms,omitempty"`

	// Storage and HTTP
	DataDir  string `json:"data_dir"`
	HTTPAddr string `json:"http_addr"`
	WebDir   string `json:"web_dir,omitempty"`

	// Surfaces
	Tray    bool `json:"tray"`
	Preview bool `json:"preview"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogPretty bool   `json:"log_pretty"`
}

// Default returns the built-in settings.
func Default() *Config {
	dataDir := DefaultDirName
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, DefaultDirName)
	}
	return &Config{
		FrontDevice: 0,
		BackDevice:  1,
		Facing:      int(capture.FacingFront),
		Backend:     int(detector.BackendCPU),
		DataDir:     dataDir,
		HTTPAddr:    ":8080",
		LogLevel:    "info",
		LogPretty:   true,
	}
}

// Load reads a config file over the defaults.
// The file must have a .json extension and be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.FrontDevice < 0 || c.BackDevice < 0 {
		return fmt.Errorf("camera devices must be non-negative, got front=%d back=%d", c.FrontDevice, c.BackDevice)
	}
	if !capture.Facing(c.Facing).Valid() {
		return fmt.Errorf("facing must be 0 (front) or 1 (back), got %d", c.Facing)
	}
	if c.FPS < 0 {
		return fmt.Errorf("fps must be non-negative, got %d", c.FPS)
	}
	if c.ModelID != nil {
		if _, err := detector.ConfigFor(*c.ModelID, c.Backend); err != nil {
			return err
		}
	} else if !detector.Backend(c.Backend).Valid() {
		return fmt.Errorf("backend must be 0 (cpu) or 1 (accelerated), got %d", c.Backend)
	}
	if c.HookTimeoutMs < 0 {
		return fmt.Errorf("hook_timeout_ms must be non-negative, got %d", c.HookTimeoutMs)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr must be set")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// Devices returns the camera device mapping.
func (c *Config) Devices() capture.Devices {
	return capture.Devices{Front: c.FrontDevice, Back: c.BackDevice}
}

// DBPath returns the SQLite database location inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "nidra.db")
}

// HooksPath returns the directory scanned for alert hooks.
func (c *Config) HooksPath() string {
	if c.HooksDir != "" {
		return c.HooksDir
	}
	return filepath.Join(c.DataDir, "hooks")
}

// HookTimeout returns the per-hook run limit. Zero means the hook default.
func (c *Config) HookTimeout() time.Duration {
	return time.Duration(c.HookTimeoutMs) * time.Millisecond
}

// Service returns the detector service settings.
func (c *Config) Service() detector.ServiceConfig {
	return detector.ServiceConfig{
		Script:   c.ServiceScript,
		Python:   c.Python,
		ModelDir: c.ModelDir,
	}
}
