package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/webbundle/cmd/webbundle/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Plan    commands.PlanCmd  `cmd:"" help:"Print the resolved build plan"`
		Build   commands.BuildCmd `cmd:"" help:"Build the front-end assets"`
		Serve   commands.ServeCmd `cmd:"" help:"Run the development server"`
		Debug   bool              `help:"Enable debug mode."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version, Stdout: os.Stdout})
	cmd.FatalIfErrorf(err)
}
