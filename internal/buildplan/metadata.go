package buildplan

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Metadata is the subset of package.json used to stamp the manifest
type Metadata struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// LoadMetadata reads package.json from dir. A missing or unreadable file
// yields empty metadata.
func LoadMetadata(dir string) Metadata {
	var md Metadata

	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return md
	}

	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}
	}

	return md
}
