package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/webbundle/internal/assets"
	"github.com/wolfeidau/webbundle/internal/buildplan"
	"github.com/wolfeidau/webbundle/internal/devserver"
)

type ServeCmd struct {
	ProjectFlags
	NoOpen bool `help:"do not open a browser" default:"false" env:"WEBBUNDLE_NO_OPEN"`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogger(globals)

	plan, err := resolvePlan(string(buildplan.Development), s.Dir)
	if err != nil {
		return err
	}

	pipeline, err := assets.New(plan, assets.Config{
		ProjectDir: s.Dir,
		SassBinary: s.SassBinary,
	})
	if err != nil {
		return fmt.Errorf("failed to load assets pipeline: %w", err)
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to stop sass compiler")
		}
	}()

	server, err := devserver.New(plan, pipeline, devserver.Options{
		ProjectDir: s.Dir,
		NoOpen:     s.NoOpen,
		Logger:     &log,
	})
	if err != nil {
		return err
	}

	return server.Run(ctx)
}
