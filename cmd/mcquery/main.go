// main is the entry point of the mcquery application.
// It parses the command line, sets up logging and dispatches to the selected command.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcquery/internal/config"
	"github.com/woozymasta/mcquery/internal/logger"
)

func main() {
	cfg, command := config.Parse()
	lg := logger.Setup(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case config.CommandStatus:
		err = runStatus(ctx, cfg.Status, lg, os.Stdout)
	case config.CommandQuery:
		err = runQuery(ctx, cfg.Query, lg, os.Stdout)
	case config.CommandRcon:
		err = runRcon(ctx, cfg.Rcon, lg, os.Stdout)
	case config.CommandServe:
		err = runServe(ctx, cfg.Serve, lg)
	case config.CommandMaintenance:
		err = runMaintenance(ctx, cfg.Maintenance, lg)
	}

	if err != nil {
		stop()
		log.Fatal().Err(err).Str("command", command).Msg("Command failed")
	}
}
