package config

import (
	"fmt"
	"path/filepath"
)

// Normalization names the pixel-scaling convention a model was trained with.
type Normalization string

const (
	// NormalizationNone passes raw [0,255] pixels through (EfficientNetV2 rescales internally).
	NormalizationNone Normalization = "none"
	// NormalizationCaffe converts RGB to BGR and subtracts the ImageNet channel means.
	NormalizationCaffe Normalization = "caffe"
	// NormalizationTorch scales to [0,1] and standardizes with ImageNet mean/std.
	NormalizationTorch Normalization = "torch"
	// NormalizationTF scales to [-1,1].
	NormalizationTF Normalization = "tf"
)

// Config holds the main configuration for the service.
type Config struct {
	ServiceName string           `json:"service_name"         yaml:"service_name"`
	Server      ServerConfig     `json:"server"               yaml:"server"`
	Runtime     RuntimeConfig    `json:"runtime"              yaml:"runtime"`
	ModelsDir   string           `json:"models_dir,omitempty" yaml:"models_dir,omitempty"`
	Models      []ModelConfig    `json:"models"               yaml:"models"`
	Prediction  PredictionConfig `json:"prediction"           yaml:"prediction"`
	Log         LogConfig        `json:"log"                  yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host           string   `json:"host"            yaml:"host"`
	Port           int      `json:"port"            yaml:"port"`
	GinMode        string   `json:"gin_mode"        yaml:"gin_mode"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// RuntimeConfig holds onnxruntime settings.
type RuntimeConfig struct {
	SharedLibrary string `json:"shared_library,omitempty" yaml:"shared_library,omitempty"`
}

// ModelConfig binds a nickname to an artifact and its input contract.
type ModelConfig struct {
	Name          string        `json:"name"          yaml:"name"`
	File          string        `json:"file"          yaml:"file"`
	Width         int           `json:"width"         yaml:"width"`
	Height        int           `json:"height"        yaml:"height"`
	Normalization Normalization `json:"normalization" yaml:"normalization"`
}

// PredictionConfig holds the request-level prediction policy.
type PredictionConfig struct {
	DefaultModel        string  `json:"default_model"        yaml:"default_model"`
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
	MaxUploadBytes      int64   `json:"max_upload_bytes"     yaml:"max_upload_bytes"`
	MaxImagePixels      int64   `json:"max_image_pixels"     yaml:"max_image_pixels"`
	Parallel            bool    `json:"parallel"             yaml:"parallel"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `json:"level"          yaml:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ArtifactPath resolves the model file against dir unless it is already absolute.
func (m ModelConfig) ArtifactPath(dir string) string {
	if filepath.IsAbs(m.File) || dir == "" {
		return m.File
	}
	return filepath.Join(dir, m.File)
}

// Model returns the configuration of the named model.
func (c *Config) Model(name string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// Validate checks what the schema cannot express.
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("config: no models configured")
	}

	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("config: model with empty name")
		}
		if seen[m.Name] {
			return fmt.Errorf("config: duplicate model %q", m.Name)
		}
		seen[m.Name] = true

		if m.File == "" {
			return fmt.Errorf("config: model %q has no file", m.Name)
		}
		if m.Width <= 0 || m.Height <= 0 {
			return fmt.Errorf("config: model %q has invalid dimensions %dx%d", m.Name, m.Width, m.Height)
		}
		switch m.Normalization {
		case NormalizationNone, NormalizationCaffe, NormalizationTorch, NormalizationTF:
		default:
			return fmt.Errorf("config: model %q has unknown normalization %q", m.Name, m.Normalization)
		}
	}

	if !seen[c.Prediction.DefaultModel] {
		return fmt.Errorf("config: default model %q is not configured", c.Prediction.DefaultModel)
	}
	if c.Prediction.ConfidenceThreshold < 0 || c.Prediction.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: confidence threshold %v outside [0,1]", c.Prediction.ConfidenceThreshold)
	}
	if c.Prediction.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: max upload bytes must be positive")
	}
	if c.Prediction.MaxImagePixels <= 0 {
		return fmt.Errorf("config: max image pixels must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}

	return nil
}
