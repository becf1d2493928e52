// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/lumberjack/v2"

	"github.com/clustervision/luna2-daemon-sub002/internal/config"
)

const (
	logFileMaxSizeMB  = 100
	logFileMaxBackups = 5
)

// configureLogging applies the logging config and, when a log file is
// configured, replaces the default writer with a rotating file. The
// returned function closes the file.
func configureLogging(cfg config.Config, debug bool) (func(), error) {
	loggingConfig := cfg.LoggingConfig
	if debug {
		loggingConfig += ";<root>=DEBUG"
	}
	if err := loggo.ConfigureLoggers(loggingConfig); err != nil {
		return nil, errors.Annotatef(err, "logging config %q", loggingConfig)
	}
	if cfg.LogFile == "" {
		return func() {}, nil
	}

	ljLogger := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
		Compress:   true,
	}
	if _, err := loggo.ReplaceDefaultWriter(loggo.NewSimpleWriter(ljLogger, loggo.DefaultFormatter)); err != nil {
		return nil, errors.Annotate(err, "replacing log writer")
	}
	logger.Debugf("created rotating log file %q with max size %d MB and max backups %d",
		ljLogger.Filename, ljLogger.MaxSize, ljLogger.MaxBackups)
	return func() {
		if err := ljLogger.Close(); err != nil {
			logger.Warningf("closing log file: %v", err)
		}
	}, nil
}
