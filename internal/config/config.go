// Package config loads the glasscam daemon configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CameraConfig holds capture timing and resolution knobs.
type CameraConfig struct {
	// Provider selects the capture source: "webcam" or "fake".
	Provider string `yaml:"provider"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	Quality  int    `yaml:"quality"`

	InitialDelayMs   int `yaml:"initial_delay_ms"`
	RetryBaseMs      int `yaml:"retry_base_ms"`
	MaxAttempts      int `yaml:"max_attempts"`
	OpenTimeoutMs    int `yaml:"open_timeout_ms"`
	WarmupMs         int `yaml:"warmup_ms"`
	CaptureTimeoutMs int `yaml:"capture_timeout_ms"`
}

// CompressionConfig holds the transfer re-targeting profile.
type CompressionConfig struct {
	TargetWidth  int `yaml:"target_width"`
	TargetHeight int `yaml:"target_height"`
	Quality      int `yaml:"quality"`
	MaxBytes     int `yaml:"max_bytes"`
}

// TransferConfig holds the outbound link parameters.
type TransferConfig struct {
	// Endpoint is the WebSocket receiver to push photos to; empty disables
	// automatic push.
	Endpoint      string `yaml:"endpoint"`
	ChunkSize     int    `yaml:"chunk_size"`
	ThroughputBps int    `yaml:"throughput_bps"`
}

// StorageConfig holds persistence locations.
type StorageConfig struct {
	DBPath    string `yaml:"db_path"`
	PhotosDir string `yaml:"photos_dir"`
}

// ServerConfig holds the HTTP listen address.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the top-level structure of glasscam.yaml.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Camera      CameraConfig      `yaml:"camera"`
	Compression CompressionConfig `yaml:"compression"`
	Transfer    TransferConfig    `yaml:"transfer"`
	Storage     StorageConfig     `yaml:"storage"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Camera: CameraConfig{
			Provider:         "webcam",
			Width:            1280,
			Height:           720,
			Quality:          85,
			InitialDelayMs:   500,
			RetryBaseMs:      500,
			MaxAttempts:      5,
			OpenTimeoutMs:    5000,
			WarmupMs:         1500,
			CaptureTimeoutMs: 10000,
		},
		Compression: CompressionConfig{
			TargetWidth:  1280,
			TargetHeight: 720,
			Quality:      85,
			MaxBytes:     200 << 10,
		},
		Transfer: TransferConfig{
			ChunkSize:     4 << 10,
			ThroughputBps: 50 * 1024,
		},
		Storage: StorageConfig{
			DBPath:    "glasscam.db",
			PhotosDir: "photos",
		},
	}
}

// Load reads and parses a config file. A missing file yields the defaults;
// present fields override them.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
