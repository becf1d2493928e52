// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package servicecontrol starts, stops, restarts and reloads the
// provisioning services of a controller through systemd.
package servicecontrol

import (
	"context"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("luna.servicecontrol")

// Action is an operation on a systemd unit.
type Action string

const (
	Start   Action = "start"
	Stop    Action = "stop"
	Restart Action = "restart"
	Reload  Action = "reload"
	Status  Action = "status"
)

// Validate returns an error if the action is not known.
func (a Action) Validate() error {
	switch a {
	case Start, Stop, Restart, Reload, Status:
		return nil
	}
	return errors.NotValidf("service action %q", string(a))
}

// DBusAPI is the subset of the systemd dbus connection used here.
type DBusAPI interface {
	Close()
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	StartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	ReloadUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
}

// DBusAPIFactory opens a connection to systemd.
type DBusAPIFactory = func(ctx context.Context) (DBusAPI, error)

// NewDBusAPI connects to the system bus.
func NewDBusAPI(ctx context.Context) (DBusAPI, error) {
	return dbus.NewWithContext(ctx)
}

// Controller controls systemd units.
type Controller struct {
	newDBus DBusAPIFactory
}

// NewController returns a controller using the supplied dbus factory.
func NewController(newDBus DBusAPIFactory) *Controller {
	return &Controller{newDBus: newDBus}
}

// UnitName returns the systemd unit of a service name.
func UnitName(service string) string {
	if strings.Contains(service, ".") {
		return service
	}
	return service + ".service"
}

// Control applies the action to the named service. On success it
// returns a short description of the outcome. Status reports the active
// state of the unit.
func (c *Controller) Control(ctx context.Context, service string, action Action) (string, error) {
	if service == "" {
		return "", errors.NotValidf("empty service name")
	}
	if err := action.Validate(); err != nil {
		return "", errors.Trace(err)
	}
	unit := UnitName(service)

	conn, err := c.newDBus(ctx)
	if err != nil {
		logger.Errorf("failed to connect to dbus for service %q: %v", service, err)
		return "", errors.Annotate(err, "connecting to systemd")
	}
	defer conn.Close()

	if action == Status {
		return c.status(ctx, conn, unit)
	}

	var call func(context.Context, string, string, chan<- string) (int, error)
	switch action {
	case Start:
		call = conn.StartUnitContext
	case Stop:
		call = conn.StopUnitContext
	case Restart:
		call = conn.RestartUnitContext
	case Reload:
		call = conn.ReloadUnitContext
	}

	statusCh := make(chan string, 1)
	if _, err := call(ctx, unit, "replace", statusCh); err != nil {
		return "", errors.Annotatef(err, "dbus %s request for %q", action, unit)
	}
	select {
	case result := <-statusCh:
		if result != "done" {
			return "", errors.Errorf("%s of %q finished with %q", action, unit, result)
		}
	case <-ctx.Done():
		return "", errors.Trace(ctx.Err())
	}
	logger.Debugf("%s of %q done", action, unit)
	return string(action) + " done", nil
}

func (c *Controller) status(ctx context.Context, conn DBusAPI, unit string) (string, error) {
	units, err := conn.ListUnitsByNamesContext(ctx, []string{unit})
	if err != nil {
		return "", errors.Annotatef(err, "querying %q", unit)
	}
	for _, u := range units {
		if u.Name != unit {
			continue
		}
		if u.LoadState != "loaded" {
			return "", errors.NotFoundf("service %q", unit)
		}
		return u.ActiveState, nil
	}
	return "", errors.NotFoundf("service %q", unit)
}
