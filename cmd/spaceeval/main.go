package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/config"
	"github.com/andresuchdata/space-evaluation/backend-go/pkg/logger"
)

// appState is filled by the app's Before hook and shared by every command.
type appState struct {
	cfg *config.Config
}

func newApp() *cli.App {
	state := &appState{}

	return &cli.App{
		Name:  "spaceeval",
		Usage: "Report object storage consumption by prefix",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			state.cfg = config.Load()
			level := state.cfg.LogLevel
			if c.IsSet("log-level") {
				level = c.String("log-level")
			}
			logger.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			runCommand(state),
			treeCommand(state),
			serveCommand(state),
			historyCommand(state),
			cacheCommand(state),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newApp().RunContext(ctx, os.Args)
	stop()
	if err != nil {
		logger.Log.Error().Stack().Err(err).Msg("spaceeval failed")
		os.Exit(1)
	}
}
