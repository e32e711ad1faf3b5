package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/ato-dashboard/cmd"
)

func main() {
	app := &cli.App{
		Name:     "ato-dashboard",
		Usage:    "dashboard and remote control for the reef top-off controller",
		Action:   cmd.WatchCommand,
		Flags:    cmd.Flags(),
		Commands: cmd.Commands(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
