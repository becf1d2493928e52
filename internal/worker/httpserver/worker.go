// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package httpserver runs an HTTP server as a worker. It serves the
// peer endpoints and the metrics of the controller.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Logger represents the logging methods called.
type Logger interface {
	Infof(message string, args ...any)
	Warningf(message string, args ...any)
}

// Config holds the configuration of a server worker.
type Config struct {
	// Name labels the server in logs and metrics.
	Name string

	// Listener accepts the connections to serve.
	Listener net.Listener

	Handler http.Handler
	Logger  Logger

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string

	// PrometheusRegisterer is optional. When set, requests are counted
	// by method and status code.
	PrometheusRegisterer prometheus.Registerer
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if config.Name == "" {
		return errors.NotValidf("empty Name")
	}
	if config.Listener == nil {
		return errors.NotValidf("nil Listener")
	}
	if config.Handler == nil {
		return errors.NotValidf("nil Handler")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if (config.CertFile == "") != (config.KeyFile == "") {
		return errors.NotValidf("CertFile without KeyFile")
	}
	return nil
}

// Worker serves HTTP until it is killed.
type Worker struct {
	catacomb catacomb.Catacomb
	config   Config
	server   *http.Server
	requests *prometheus.CounterVec
}

// NewWorker starts serving on the configured listener. The listener is
// closed when the worker stops.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &Worker{config: config}

	handler := config.Handler
	if config.PrometheusRegisterer != nil {
		w.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "luna_http",
			Name:        "requests_total",
			Help:        "The number of HTTP requests served by method and code.",
			ConstLabels: prometheus.Labels{"server": config.Name},
		}, []string{"method", "code"})
		if err := config.PrometheusRegisterer.Register(w.requests); err != nil {
			return nil, errors.Annotate(err, "registering request metrics")
		}
		handler = promhttp.InstrumentHandlerCounter(w.requests, handler)
	}
	w.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		w.unregister()
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

// Addr returns the address the server listens on.
func (w *Worker) Addr() net.Addr {
	return w.config.Listener.Addr()
}

func (w *Worker) loop() error {
	defer w.unregister()

	served := make(chan error, 1)
	go func() {
		if w.config.CertFile != "" {
			served <- w.server.ServeTLS(w.config.Listener, w.config.CertFile, w.config.KeyFile)
			return
		}
		served <- w.server.Serve(w.config.Listener)
	}()
	w.config.Logger.Infof("%s server listening on %s", w.config.Name, w.config.Listener.Addr())

	select {
	case <-w.catacomb.Dying():
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := w.server.Shutdown(ctx); err != nil {
			w.config.Logger.Warningf("shutting down %s server: %v", w.config.Name, err)
		}
		<-served
		return w.catacomb.ErrDying()
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Annotatef(err, "serving %s", w.config.Name)
	}
}

func (w *Worker) unregister() {
	if w.requests != nil && w.config.PrometheusRegisterer != nil {
		w.config.PrometheusRegisterer.Unregister(w.requests)
	}
}
