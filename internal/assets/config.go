package assets

type Config struct {
	// Project directory all plan paths are relative to
	ProjectDir string
	// Path of the dart-sass embedded binary, required for .scss and .sass sources
	SassBinary string
	// Where to write the esbuild metafile, empty to skip
	MetafilePath string
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		ProjectDir: ".",
	}
}
