// Package config loads the server configuration from an optional YAML file
// and environment variables, and builds the process logger.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfigFile   = "IMAGE_HISTORY_CONFIG"
	EnvLogLevel     = "IMAGE_HISTORY_LOG_LEVEL"
	EnvLogFormat    = "IMAGE_HISTORY_LOG_FORMAT"
	EnvExportDir    = "IMAGE_HISTORY_EXPORT_DIR"
	EnvWebcamDevice = "IMAGE_HISTORY_WEBCAM_DEVICE"
	EnvOCRLanguage  = "IMAGE_HISTORY_OCR_LANGUAGE"
)

// Config holds the server configuration.
type Config struct {
	// LogLevel is a logrus level name: trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is "text" or "json". Empty picks text for debug and trace
	// levels and JSON otherwise.
	LogFormat string `yaml:"log_format"`

	// ExportDir is where image_export writes files when no path is given.
	// Empty means the working directory.
	ExportDir string `yaml:"export_dir"`

	// WebcamDevice is the capture device index or URL used by
	// image_capture_webcam.
	WebcamDevice string `yaml:"webcam_device"`

	// OCRLanguage is the default Tesseract language for image_ocr.
	OCRLanguage string `yaml:"ocr_language"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		WebcamDevice: "0",
		OCRLanguage:  "eng",
	}
}

// LoadFile reads a YAML file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds the configuration from defaults, then the YAML file at path
// (or the file named by IMAGE_HISTORY_CONFIG when path is empty), then
// environment overrides. getenv is usually os.Getenv.
func Load(path string, getenv func(string) string) (*Config, error) {
	if path == "" {
		path = getenv(EnvConfigFile)
	}

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(getenv)
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields whose environment variable is set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&c.LogLevel, EnvLogLevel)
	override(&c.LogFormat, EnvLogFormat)
	override(&c.ExportDir, EnvExportDir)
	override(&c.WebcamDevice, EnvWebcamDevice)
	override(&c.OCRLanguage, EnvOCRLanguage)
}

// Validate checks the log settings.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format: unsupported format %q (use text or json)", c.LogFormat)
	}
	if c.OCRLanguage == "" {
		return fmt.Errorf("ocr_language is required")
	}
	return nil
}

// NewLogger builds a logger writing to w. Debug and trace levels use the
// text formatter with full timestamps; other levels log JSON.
func (c *Config) NewLogger(w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	format := c.LogFormat
	if format == "" {
		format = "json"
		if level >= logrus.DebugLevel {
			format = "text"
		}
	}

	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	return logger
}
