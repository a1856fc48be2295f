package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type exclusionsFile struct {
	ExcludePaths []string `yaml:"exclude_paths"`
}

// LoadExclusions reads the crawl exclusion patterns from a YAML file.
// An empty path means no exclusions.
func LoadExclusions(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read exclusions file: %w", err)
	}

	var file exclusionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse exclusions file: %w", err)
	}
	return file.ExcludePaths, nil
}
