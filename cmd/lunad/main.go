// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Command lunad runs the coordination core of a luna controller: the
// task queue drainers, the housekeeping loops and HA synchronisation
// with the other controllers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"

	"github.com/clustervision/luna2-daemon-sub002/internal/config"
	"github.com/clustervision/luna2-daemon-sub002/internal/database"
)

var logger = loggo.GetLogger("luna.cmd.lunad")

func main() {
	os.Exit(Main(os.Args[1:]))
}

// Main parses the command line and runs the daemon until it is
// interrupted. It returns the process exit code.
func Main(args []string) int {
	fs := gnuflag.NewFlagSet("lunad", gnuflag.ContinueOnError)
	var (
		configPath string
		debug      bool
	)
	fs.StringVar(&configPath, "config", config.DefaultPath, "path of the daemon configuration")
	fs.BoolVar(&debug, "debug", false, "log at debug level")
	if err := fs.Parse(true, args); err != nil {
		if errors.Is(err, gnuflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if len(fs.Args()) > 0 {
		fmt.Fprintf(os.Stderr, "lunad: unrecognised arguments: %v\n", fs.Args())
		return 2
	}

	if err := run(configPath, debug); err != nil {
		fmt.Fprintf(os.Stderr, "lunad: %v\n", err)
		return 1
	}
	return 0
}

func run(configPath string, debug bool) error {
	cfg, err := config.Read(configPath)
	if err != nil {
		return errors.Trace(err)
	}
	closeLog, err := configureLogging(cfg, debug)
	if err != nil {
		return errors.Trace(err)
	}
	defer closeLog()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return errors.Annotatef(err, "opening database %q", cfg.Database)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warningf("closing database: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := NewAgent(ctx, cfg, clock.WallClock, db)
	if err != nil {
		return errors.Trace(err)
	}
	go func() {
		<-ctx.Done()
		logger.Infof("shutting down")
		a.Kill()
	}()
	return errors.Trace(a.Wait())
}
