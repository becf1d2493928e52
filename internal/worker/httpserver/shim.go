// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package httpserver

import (
	"net"

	"github.com/juju/errors"
	"github.com/juju/worker/v4"
)

// NewWorkerShim calls through to NewWorker, and exists only to return
// the worker as a worker.Worker.
func NewWorkerShim(config Config) (worker.Worker, error) {
	return NewWorker(config)
}

// Listen opens a TCP listener for the input address. It exists so that
// the caller learns about an unusable address before any worker starts.
func Listen(address string) (net.Listener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Annotatef(err, "listening on %q", address)
	}
	return l, nil
}
