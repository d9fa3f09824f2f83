package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/webbundle/internal/assets"
)

type BuildCmd struct {
	ProjectFlags
	Mode     string `help:"build mode (development or production)" env:"WEBBUNDLE_MODE"`
	Metafile string `help:"write the esbuild metafile to this path" default:"" env:"WEBBUNDLE_METAFILE"`
}

func (b *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals)

	// an invalid mode aborts before the pipeline is created
	plan, err := resolvePlan(b.Mode, b.Dir)
	if err != nil {
		return err
	}

	pipeline, err := assets.New(plan, assets.Config{
		ProjectDir:   b.Dir,
		SassBinary:   b.SassBinary,
		MetafilePath: b.Metafile,
	})
	if err != nil {
		return fmt.Errorf("failed to load assets pipeline: %w", err)
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to stop sass compiler")
		}
	}()

	result, err := pipeline.Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build assets: %w", err)
	}

	log.Info().
		Str("mode", string(plan.Mode)).
		Int("files", len(result.Files)).
		Dur("duration", result.Duration).
		Msg("Assets written")

	return nil
}
