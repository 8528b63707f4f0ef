// Package config holds the simulator's run configuration: image paths and
// root, the fuzz-init option, and the debug/monitor/logging
// knobs. An optional on-disk file is loaded with gopkg.in/yaml.v3 rather
// than the teacher's hand-rolled line-directive format (config/configparser
// in the teacher repo); CLI flags always take precedence over file values,
// mirroring how the teacher's main.go lets getopt flags override config
// options set earlier via LoadConfigFile.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full set of knobs the core constructor and front-end need.
type Config struct {
	ImagePaths []string `yaml:"images"`
	ImageRoot  string   `yaml:"image_root"`

	FuzzRegisters bool `yaml:"fuzz_registers"`

	DebugPort int  `yaml:"debug_port"`
	Monitor   bool `yaml:"monitor"`

	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
	LogAsync bool   `yaml:"log_async"`
}

// Default returns a Config with the simulator's baseline settings.
func Default() Config {
	return Config{
		LogLevel: "info",
	}
}

// LoadFile reads a YAML config file and merges it onto base, returning the
// merged Config. Zero-valued fields in the file leave base's value intact,
// so a partial file only overrides what it sets.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("config: read %s: %w", path, err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return base, fmt.Errorf("config: parse %s: %w", path, err)
	}
	merged := base
	if len(file.ImagePaths) > 0 {
		merged.ImagePaths = file.ImagePaths
	}
	if file.ImageRoot != "" {
		merged.ImageRoot = file.ImageRoot
	}
	if file.FuzzRegisters {
		merged.FuzzRegisters = true
	}
	if file.DebugPort != 0 {
		merged.DebugPort = file.DebugPort
	}
	if file.Monitor {
		merged.Monitor = true
	}
	if file.LogFile != "" {
		merged.LogFile = file.LogFile
	}
	if file.LogLevel != "" {
		merged.LogLevel = file.LogLevel
	}
	if file.LogAsync {
		merged.LogAsync = true
	}
	return merged, nil
}
