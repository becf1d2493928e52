// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package discovery refreshes the map of MAC addresses to the switch
// ports they were last seen on.
package discovery

import (
	"bufio"
	"context"
	"net"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"

	"github.com/clustervision/luna2-daemon-sub002/domain/maintenance"
	"github.com/clustervision/luna2-daemon-sub002/internal/command"
)

const defaultInterval = 5 * time.Minute

// Logger represents the logging methods called.
type Logger interface {
	Warningf(message string, args ...any)
	Debugf(message string, args ...any)
}

// CommandRunner runs the discovery collaborator.
type CommandRunner interface {
	Run(ctx context.Context, cmd string, args ...string) (command.Result, error)
}

// SwitchPorts stores the discovered map.
type SwitchPorts interface {
	ReplaceSwitchPorts(ctx context.Context, ports []maintenance.SwitchPort) error
}

// Config holds the dependencies of the worker.
type Config struct {
	// Command prints one "<mac> <switch> <port>" line per address.
	Command  string
	Runner   CommandRunner
	Ports    SwitchPorts
	Clock    clock.Clock
	Logger   Logger
	Interval time.Duration
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if err := command.Validate(config.Command); err != nil {
		return errors.Trace(err)
	}
	if config.Runner == nil {
		return errors.NotValidf("nil Runner")
	}
	if config.Ports == nil {
		return errors.NotValidf("nil Ports")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if config.Interval < 0 {
		return errors.NotValidf("negative Interval")
	}
	return nil
}

// Worker runs discovery on an interval.
type Worker struct {
	catacomb catacomb.Catacomb
	config   Config
}

// NewWorker starts the worker.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Interval == 0 {
		config.Interval = defaultInterval
	}
	w := &Worker{config: config}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.catacomb.Wait()
}

func (w *Worker) loop() error {
	timer := w.config.Clock.NewTimer(w.config.Interval)
	defer timer.Stop()

	ctx := w.catacomb.Context(context.Background())
	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case <-timer.Chan():
			if err := w.discover(ctx); err != nil {
				w.config.Logger.Warningf("switch port discovery: %v", err)
			}
			timer.Reset(w.config.Interval)
		}
	}
}

// discover replaces the stored map. A failing collaborator leaves the
// previous map in place.
func (w *Worker) discover(ctx context.Context) error {
	result, err := w.config.Runner.Run(ctx, w.config.Command)
	if err != nil {
		return errors.Trace(err)
	}
	ports, skipped := ParsePorts(result.Stdout)
	for _, line := range skipped {
		w.config.Logger.Debugf("ignoring discovery line %q", line)
	}
	if err := w.config.Ports.ReplaceSwitchPorts(ctx, ports); err != nil {
		return errors.Trace(err)
	}
	w.config.Logger.Debugf("discovered %d switch ports", len(ports))
	return nil
}

// ParsePorts reads "<mac> <switch> <port>" lines. Blank lines and
// comments are ignored; malformed lines are returned separately. A MAC
// address seen twice keeps its last port.
func ParsePorts(output string) ([]maintenance.SwitchPort, []string) {
	var (
		ports   []maintenance.SwitchPort
		skipped []string
		index   = make(map[string]int)
	)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			skipped = append(skipped, line)
			continue
		}
		mac, err := net.ParseMAC(fields[0])
		if err != nil {
			skipped = append(skipped, line)
			continue
		}
		port := maintenance.SwitchPort{
			MACAddress: mac.String(),
			Switch:     fields[1],
			Port:       fields[2],
		}
		if i, ok := index[port.MACAddress]; ok {
			ports[i] = port
			continue
		}
		index[port.MACAddress] = len(ports)
		ports = append(ports, port)
	}
	return ports, skipped
}
