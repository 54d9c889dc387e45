package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one image to upload.
type Entry struct {
	Path     string         `json:"path" yaml:"path"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata"`
}

// Manifest lists the images of a batch upload.
type Manifest struct {
	Images []Entry `json:"images" yaml:"images"`
}

// LoadManifest reads a YAML or JSON manifest. Relative image paths are
// resolved against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("manifest path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(raw, &m)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(raw, &m)
	default:
		return nil, fmt.Errorf("unsupported manifest extension %q (expected .yaml, .yml or .json)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if len(m.Images) == 0 {
		return nil, errors.New("manifest contains no images")
	}

	base := filepath.Dir(path)
	for i := range m.Images {
		p := strings.TrimSpace(m.Images[i].Path)
		if p == "" {
			return nil, fmt.Errorf("images[%d]: path is required", i)
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		m.Images[i].Path = p
	}
	return &m, nil
}
