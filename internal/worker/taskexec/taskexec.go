// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package taskexec runs the operation named by a queued task through the
// matching collaborator and reports the outcome to the status log.
package taskexec

import (
	"context"
	"strings"

	"github.com/juju/errors"

	"github.com/clustervision/luna2-daemon-sub002/core/status"
	"github.com/clustervision/luna2-daemon-sub002/domain/taskqueue"
	"github.com/clustervision/luna2-daemon-sub002/internal/command"
	"github.com/clustervision/luna2-daemon-sub002/internal/servicecontrol"
)

// Task names understood by the executor.
const (
	DHCPRestart    = "dhcp:restart"
	DHCP6Restart   = "dhcp6:restart"
	DNSReload      = "dns:reload"
	ImagePack      = "image:pack"
	ImageCleanup   = "image:cleanup"
	ImageSync      = "image:sync"
	ImageProvision = "image:provision"

	servicePrefix = "service:"
)

// Logger represents the logging methods called.
type Logger interface {
	Warningf(message string, args ...any)
	Debugf(message string, args ...any)
}

// StatusLog receives the progress and outcome of tasks.
type StatusLog interface {
	Append(ctx context.Context, requestID, origin, text string) error
	AppendResult(ctx context.Context, requestID, origin string, result status.Result) error
	Finish(ctx context.Context, requestID, origin string) error
}

// ServiceController controls the provisioning services.
type ServiceController interface {
	Control(ctx context.Context, service string, action servicecontrol.Action) (string, error)
}

// CommandRunner runs the image pipeline commands.
type CommandRunner interface {
	Run(ctx context.Context, command string, args ...string) (command.Result, error)
}

// Services names the systemd units behind the service aliases used in
// task names.
type Services struct {
	DHCP  string
	DHCP6 string
	DNS   string
}

// ImageCommands holds the command lines of the image pipeline. The image
// name is appended as the last argument.
type ImageCommands struct {
	Pack      string
	Cleanup   string
	Sync      string
	Provision string
}

// Config holds the dependencies of an executor.
type Config struct {
	Hostname  string
	StatusLog StatusLog
	Services  ServiceController
	Commands  CommandRunner
	Units     Services
	Images    ImageCommands
	Logger    Logger
}

// Validate returns an error if the config cannot be used.
func (c Config) Validate() error {
	if c.Hostname == "" {
		return errors.NotValidf("empty Hostname")
	}
	if c.StatusLog == nil {
		return errors.NotValidf("nil StatusLog")
	}
	if c.Services == nil {
		return errors.NotValidf("nil Services")
	}
	if c.Commands == nil {
		return errors.NotValidf("nil Commands")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if c.Units.DHCP == "" || c.Units.DHCP6 == "" || c.Units.DNS == "" {
		return errors.NotValidf("missing service unit")
	}
	return nil
}

// Executor maps tasks to collaborators.
type Executor struct {
	config  Config
	aliases map[string]string
}

// NewExecutor returns an executor for the config.
func NewExecutor(config Config) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Executor{
		config: config,
		aliases: map[string]string{
			"dhcp":  config.Units.DHCP,
			"dhcp6": config.Units.DHCP6,
			"dns":   config.Units.DNS,
		},
	}, nil
}

// Execute runs the task, appends its tagged result to the status log of
// its request and terminates the request's feed. The feed is terminated
// even if the collaborator panics.
func (e *Executor) Execute(ctx context.Context, task taskqueue.Task) (err error) {
	origin := task.Subsystem
	defer func() {
		if ferr := e.config.StatusLog.Finish(ctx, task.RequestID, origin); ferr != nil {
			e.config.Logger.Warningf("finishing request %s: %v", task.RequestID, ferr)
			if err == nil {
				err = errors.Trace(ferr)
			}
		}
	}()

	if perr := e.config.StatusLog.Append(ctx, task.RequestID, origin, "started "+task.Task); perr != nil {
		e.config.Logger.Warningf("reporting start of task %d: %v", task.ID, perr)
	}

	actor, detail, err := e.run(ctx, task)
	result := status.Result{
		Actor:   actor,
		Command: task.Task,
		Success: err == nil,
		Detail:  detail,
	}
	if err != nil {
		result.Detail = err.Error()
	}
	if rerr := e.config.StatusLog.AppendResult(ctx, task.RequestID, origin, result); rerr != nil {
		e.config.Logger.Warningf("reporting result of task %d: %v", task.ID, rerr)
	}
	e.config.Logger.Debugf("task %d: %s", task.ID, result.String())
	return errors.Trace(err)
}

func (e *Executor) run(ctx context.Context, task taskqueue.Task) (string, string, error) {
	switch task.Task {
	case DHCPRestart:
		return e.service(ctx, "dhcp", servicecontrol.Restart)
	case DHCP6Restart:
		return e.service(ctx, "dhcp6", servicecontrol.Restart)
	case DNSReload:
		return e.service(ctx, "dns", servicecontrol.Reload)
	case ImagePack:
		return e.image(ctx, e.config.Images.Pack, task)
	case ImageCleanup:
		return e.image(ctx, e.config.Images.Cleanup, task)
	case ImageSync:
		return e.image(ctx, e.config.Images.Sync, task)
	case ImageProvision:
		return e.image(ctx, e.config.Images.Provision, task)
	}

	if rest, ok := strings.CutPrefix(task.Task, servicePrefix); ok {
		name, action, ok := strings.Cut(rest, ":")
		if !ok {
			return e.config.Hostname, "", errors.NotValidf("service task %q", task.Task)
		}
		return e.service(ctx, name, servicecontrol.Action(action))
	}
	return e.config.Hostname, "", errors.NotValidf("task %q", task.Task)
}

func (e *Executor) service(ctx context.Context, alias string, action servicecontrol.Action) (string, string, error) {
	unit, ok := e.aliases[alias]
	if !ok {
		return e.config.Hostname, "", errors.NotValidf("service %q", alias)
	}
	detail, err := e.config.Services.Control(ctx, unit, action)
	return e.config.Hostname, detail, errors.Trace(err)
}

func (e *Executor) image(ctx context.Context, line string, task taskqueue.Task) (string, string, error) {
	if task.Param == "" {
		return e.config.Hostname, "", errors.NotValidf("%s without image", task.Task)
	}
	if line == "" {
		return task.Param, "", errors.NotSupportedf("%s on this controller", task.Task)
	}
	result, err := e.config.Commands.Run(ctx, line, task.Param)
	if err != nil {
		return task.Param, "", errors.Trace(err)
	}
	return task.Param, lastLine(result.Stdout), nil
}

func lastLine(out string) string {
	out = strings.TrimSpace(out)
	if i := strings.LastIndexByte(out, '\n'); i >= 0 {
		return out[i+1:]
	}
	return out
}
