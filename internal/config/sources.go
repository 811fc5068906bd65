package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Sources lists the certification-body endpoints per framework.
type Sources struct {
	CC   FrameworkSources `yaml:"cc"`
	FIPS FrameworkSources `yaml:"fips"`
}

// FrameworkSources holds one framework's listing endpoints. Separate active
// and archived indexes are both listed here; the parser derives lifecycle
// status from the endpoint itself.
type FrameworkSources struct {
	ListingURLs []string `yaml:"listing_urls"`
}

// LoadSources reads and validates the sources YAML file.
func LoadSources(path string) (*Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var s Sources
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}
	return &s, nil
}

// ForFramework returns the endpoints for a framework name.
func (s *Sources) ForFramework(name string) ([]string, error) {
	switch name {
	case "cc":
		return s.CC.ListingURLs, nil
	case "fips":
		return s.FIPS.ListingURLs, nil
	default:
		return nil, fmt.Errorf("unknown framework %q", name)
	}
}
