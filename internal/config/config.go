// Package config handles bsp2obj configuration loading and management.
package config

import (
	"fmt"
	"runtime"

	"github.com/Faultbox/bsp2obj/internal/logger"
	"github.com/Faultbox/bsp2obj/pkg/export"
)

// Config holds all converter settings.
type Config struct {
	Export  ExportConfig  `yaml:"export"`
	Shaders ShaderConfig  `yaml:"shaders"`
	Logging LoggingConfig `yaml:"logging"`
}

// ExportConfig holds OBJ/MTL output settings.
type ExportConfig struct {
	ShadersAsBitmap bool   `yaml:"shaders_as_bitmap"` // map_Kd names the shader, not its image
	PathStyle       string `yaml:"path_style"`        // "windows" or "unix"
	OutputDir       string `yaml:"output_dir"`        // empty writes next to the BSP
	Workers         int    `yaml:"workers"`           // maps converted concurrently
}

// ShaderConfig holds shader resolution settings.
type ShaderConfig struct {
	BasePaths []string `yaml:"base_paths"` // game directories holding scripts/ and pk3s
	Implicit  bool     `yaml:"implicit"`   // resolve shaders that have no script
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Export: ExportConfig{
			PathStyle: export.WindowsPaths.String(),
			Workers:   runtime.GOMAXPROCS(0),
		},
		Shaders: ShaderConfig{
			BasePaths: []string{"baseq3"},
			Implicit:  true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks values that cannot be checked while decoding.
func (c *Config) Validate() error {
	if _, err := export.ParsePathStyle(c.Export.PathStyle); err != nil {
		return fmt.Errorf("export.path_style: %w", err)
	}
	if c.Export.Workers < 1 {
		return fmt.Errorf("export.workers: must be at least 1, got %d", c.Export.Workers)
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// ExportOptions returns the export options described by the config. The
// resolver and logger are left for the caller to set.
func (c *Config) ExportOptions() (export.Options, error) {
	style, err := export.ParsePathStyle(c.Export.PathStyle)
	if err != nil {
		return export.Options{}, err
	}
	return export.Options{
		ShadersAsBitmap: c.Export.ShadersAsBitmap,
		PathStyle:       style,
		OutputDir:       c.Export.OutputDir,
	}, nil
}
