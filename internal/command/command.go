// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package command runs the external collaborator programs of a
// controller: the image pipeline, switch discovery and configuration
// rendering.
package command

import (
	"context"
	"os"
	"strings"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/utils/v4/exec"
	"github.com/kballard/go-shellquote"
)

var logger = loggo.GetLogger("luna.command")

// Result holds the outcome of a finished command.
type Result struct {
	Code   int
	Stdout string
	Stderr string
}

// Runner runs configured command lines.
type Runner struct {
	clock clock.Clock
	env   []string
}

// NewRunner returns a runner that adds env to the environment of every
// command.
func NewRunner(clock clock.Clock, env ...string) *Runner {
	var full []string
	if len(env) > 0 {
		full = append(os.Environ(), env...)
	}
	return &Runner{clock: clock, env: full}
}

// Validate checks that a configured command line can be split into
// words.
func Validate(command string) error {
	words, err := shellquote.Split(command)
	if err != nil {
		return errors.NewNotValid(err, "parsing command "+command)
	}
	if len(words) == 0 {
		return errors.NotValidf("empty command")
	}
	return nil
}

// Run executes the command line with the extra arguments quoted and
// appended. A non zero exit code is returned as an error carrying the
// command's standard error.
func (r *Runner) Run(ctx context.Context, command string, args ...string) (Result, error) {
	words, err := shellquote.Split(command)
	if err != nil {
		return Result{}, errors.NewNotValid(err, "parsing command "+command)
	}
	if len(words) == 0 {
		return Result{}, errors.NotValidf("empty command")
	}
	line := shellquote.Join(append(words, args...)...)
	logger.Tracef("running %s", line)

	run := &exec.RunParams{
		Commands:    line,
		Environment: r.env,
		Clock:       r.clock,
	}
	if err := run.Run(); err != nil {
		return Result{}, errors.Annotatef(err, "starting %s", words[0])
	}
	resp, err := run.WaitWithCancel(ctx.Done())
	if err != nil {
		return Result{}, errors.Annotatef(err, "running %s", words[0])
	}
	result := Result{
		Code:   resp.Code,
		Stdout: string(resp.Stdout),
		Stderr: string(resp.Stderr),
	}
	if result.Code != 0 {
		detail := strings.TrimSpace(result.Stderr)
		if detail == "" {
			detail = strings.TrimSpace(result.Stdout)
		}
		return result, errors.Errorf("%s exited with code %d: %s", words[0], result.Code, detail)
	}
	return result, nil
}
