package commands

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/webbundle/internal/buildplan"
	"github.com/wolfeidau/webbundle/internal/logger"
)

type Globals struct {
	Debug   bool
	Version string
	Stdout  io.Writer
}

type ProjectFlags struct {
	Dir        string `help:"project directory" default:"." env:"WEBBUNDLE_DIR" type:"existingdir"`
	SassBinary string `help:"path to the dart-sass embedded binary" default:"" env:"WEBBUNDLE_SASS_BINARY"`
}

func setupLogger(globals *Globals) zerolog.Logger {
	log := logger.Setup(globals.Debug)
	zlog.Logger = log
	return log
}

// resolvePlan resolves mode with the process environment as overrides
func resolvePlan(mode, dir string) (buildplan.BuildPlan, error) {
	return buildplan.Resolve(mode,
		buildplan.WithProjectDir(dir),
		buildplan.WithEnv(environ()))
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
