package buildplan

import (
	"maps"
	"time"
)

const (
	ManifestVersionKey = "version"
	ManifestCreatedKey = "created"

	// CreatedLayout formats the build timestamp, always in UTC
	CreatedLayout = "2006-01-02 15:04:05"
)

type ManifestOptions struct {
	Output  string `json:"output" yaml:"output"`
	Version string `json:"version" yaml:"version"`
	Created string `json:"created" yaml:"created"`
}

// Transform returns a copy of assets with the version and created keys added
func (m ManifestOptions) Transform(assets map[string]string) map[string]string {
	out := make(map[string]string, len(assets)+2)
	maps.Copy(out, assets)
	out[ManifestVersionKey] = m.Version
	out[ManifestCreatedKey] = m.Created
	return out
}

func formatCreated(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(CreatedLayout)
}
