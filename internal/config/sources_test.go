package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sourcesYAML = `cc:
  listing_urls:
    - https://www.commoncriteriaportal.org/products/index.cfm
    - https://www.commoncriteriaportal.org/products/index-archived.cfm
fips:
  listing_urls:
    - https://csrc.nist.gov/projects/cryptographic-module-validation-program/validated-modules
`

func writeSources(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write sources file: %v", err)
	}
	return path
}

func TestLoadSources(t *testing.T) {
	s, err := LoadSources(writeSources(t, sourcesYAML))
	if err != nil {
		t.Fatalf("LoadSources failed: %v", err)
	}

	cc, err := s.ForFramework("cc")
	if err != nil {
		t.Fatalf("ForFramework(cc) failed: %v", err)
	}
	if len(cc) != 2 {
		t.Errorf("Expected 2 CC endpoints, got %d", len(cc))
	}

	fips, err := s.ForFramework("fips")
	if err != nil {
		t.Fatalf("ForFramework(fips) failed: %v", err)
	}
	if len(fips) != 1 {
		t.Errorf("Expected 1 FIPS endpoint, got %d", len(fips))
	}
}

func TestLoadSources_MissingFile(t *testing.T) {
	if _, err := LoadSources(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestLoadSources_InvalidYAML(t *testing.T) {
	if _, err := LoadSources(writeSources(t, "cc: [unclosed")); err == nil {
		t.Error("Expected an error for malformed YAML")
	}
}

func TestForFramework_Unknown(t *testing.T) {
	s := &Sources{}
	if _, err := s.ForFramework("pci"); err == nil {
		t.Error("Expected an error for an unknown framework")
	}
}
