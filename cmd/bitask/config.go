package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the optional settings of the cli driver. Flags and the
// BITASK_PATH environment variable override what the file provides.
type Config struct {
	Path         string `yaml:"path"`
	DataFileSize int64  `yaml:"data_file_size"`
	MmapReads    bool   `yaml:"mmap_reads"`
	Verbose      bool   `yaml:"verbose"`
}

// LoadConfig reads a yaml config file. A missing file is not an error;
// the zero config is returned instead.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}
