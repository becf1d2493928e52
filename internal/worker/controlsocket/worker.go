// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package controlsocket serves the control plane of the controller over
// a local unix socket: task submission, status polling and the HA
// status.
package controlsocket

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"

	"github.com/clustervision/luna2-daemon-sub002/core/status"
	"github.com/clustervision/luna2-daemon-sub002/internal/controlplane"
)

const shutdownTimeout = 5 * time.Second

// Logger represents the logging methods called.
type Logger interface {
	Errorf(message string, args ...any)
	Warningf(message string, args ...any)
	Infof(message string, args ...any)
	Debugf(message string, args ...any)
	Tracef(message string, args ...any)
}

// ControlPlane is the contract served on the socket.
type ControlPlane interface {
	Submit(ctx context.Context, args controlplane.SubmitArgs) (controlplane.SubmitResult, error)
	Poll(ctx context.Context, requestID string) ([]status.Message, error)
	GetHAStatus(ctx context.Context) (controlplane.HAStatus, error)
}

// Config represents configuration for the controlsocket worker.
type Config struct {
	ControlPlane ControlPlane
	Logger       Logger
	// SocketName is the socket file descriptor.
	SocketName string
	// NewSocketListener is the function that creates a new socket listener.
	NewSocketListener func(path string) (net.Listener, error)
}

// Validate returns an error if config cannot drive the Worker.
func (config Config) Validate() error {
	if config.ControlPlane == nil {
		return errors.NotValidf("nil ControlPlane")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if config.SocketName == "" {
		return errors.NotValidf("empty SocketName")
	}
	if config.NewSocketListener == nil {
		return errors.NotValidf("nil NewSocketListener")
	}
	return nil
}

// Worker is a controlsocket worker.
type Worker struct {
	catacomb catacomb.Catacomb
	config   Config
	listener net.Listener
	server   *http.Server
}

// NewWorker returns a controlsocket worker with the given config.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	l, err := config.NewSocketListener(config.SocketName)
	if err != nil {
		return nil, errors.Annotate(err, "unable to listen on unix socket")
	}
	config.Logger.Debugf("controlsocket worker listening on socket %q", config.SocketName)

	w := &Worker{
		config:   config,
		listener: l,
	}
	w.server = &http.Server{
		Handler:           w.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.run,
	}); err != nil {
		_ = l.Close()
		return nil, errors.Trace(err)
	}
	return w, nil
}

// NewSocketListener removes a stale socket file and listens on path.
func NewSocketListener(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Annotatef(err, "creating socket directory")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Annotatef(err, "removing stale socket %q", path)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		_ = l.Close()
		return nil, errors.Trace(err)
	}
	return l, nil
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.catacomb.Wait()
}

func (w *Worker) run() error {
	served := make(chan error, 1)
	go func() {
		served <- w.server.Serve(w.listener)
	}()

	select {
	case <-w.catacomb.Dying():
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := w.server.Shutdown(ctx); err != nil {
			w.config.Logger.Warningf("shutting down control socket: %v", err)
		}
		<-served
		return w.catacomb.ErrDying()
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Annotate(err, "serving control socket")
	}
}

func (w *Worker) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/tasks", w.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/requests/{id}", w.handlePoll).Methods(http.MethodGet)
	r.HandleFunc("/ha", w.handleHAStatus).Methods(http.MethodGet)
	return r
}

// submitRequest is the body of a task submission.
type submitRequest struct {
	Lane  string `json:"lane"`
	Task  string `json:"task"`
	Param string `json:"param,omitempty"`
	Force bool   `json:"force,omitempty"`
}

type submitResponse struct {
	RequestID string `json:"request-id"`
	TaskID    int64  `json:"task-id"`
	Outcome   string `json:"outcome"`
}

type message struct {
	Origin  string         `json:"origin"`
	Text    string         `json:"text"`
	Result  *status.Result `json:"result,omitempty"`
	Created time.Time      `json:"created"`
}

type pollResponse struct {
	Messages []message `json:"messages"`

	// Done is set once the feed terminator was read.
	Done bool `json:"done"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (w *Worker) handleSubmit(resp http.ResponseWriter, req *http.Request) {
	var args submitRequest
	if err := json.NewDecoder(req.Body).Decode(&args); errors.Is(err, io.EOF) {
		w.writeResponse(resp, http.StatusBadRequest, errorBody{Error: "missing request body"})
		return
	} else if err != nil {
		w.writeResponse(resp, http.StatusBadRequest, errorBody{Error: "request body is not valid JSON: " + err.Error()})
		return
	}

	result, err := w.config.ControlPlane.Submit(req.Context(), controlplane.SubmitArgs{
		Lane:  args.Lane,
		Task:  args.Task,
		Param: args.Param,
		Force: args.Force,
	})
	if err != nil {
		w.writeError(resp, err)
		return
	}
	w.config.Logger.Infof("submitted %s in lane %q: %s", args.Task, args.Lane, result.Outcome)
	w.writeResponse(resp, http.StatusOK, submitResponse{
		RequestID: result.RequestID,
		TaskID:    result.TaskID,
		Outcome:   string(result.Outcome),
	})
}

func (w *Worker) handlePoll(resp http.ResponseWriter, req *http.Request) {
	msgs, err := w.config.ControlPlane.Poll(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		w.writeError(resp, err)
		return
	}
	out := pollResponse{Messages: make([]message, len(msgs))}
	for i, m := range msgs {
		out.Messages[i] = message{
			Origin:  m.Origin,
			Text:    m.Text,
			Result:  m.Result,
			Created: m.Created,
		}
		out.Done = out.Done || m.IsEOF()
	}
	w.writeResponse(resp, http.StatusOK, out)
}

func (w *Worker) handleHAStatus(resp http.ResponseWriter, req *http.Request) {
	st, err := w.config.ControlPlane.GetHAStatus(req.Context())
	if err != nil {
		w.writeError(resp, err)
		return
	}
	w.writeResponse(resp, http.StatusOK, st)
}

// writeError surfaces only the error text; the status code follows the
// error kind.
func (w *Worker) writeError(resp http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, errors.NotValid) {
		code = http.StatusBadRequest
	} else if errors.Is(err, errors.NotFound) {
		code = http.StatusNotFound
	} else {
		w.config.Logger.Errorf("control socket request: %v", err)
	}
	w.writeResponse(resp, code, errorBody{Error: err.Error()})
}

func (w *Worker) writeResponse(resp http.ResponseWriter, statusCode int, body any) {
	w.config.Logger.Debugf("operation finished with HTTP status %v", statusCode)
	resp.Header().Set("Content-Type", "application/json")

	message, err := json.Marshal(body)
	if err != nil {
		w.config.Logger.Errorf("error marshalling response body to JSON: %v", err)
		w.config.Logger.Errorf("response body was %#v", body)

		// Mark this as an "internal server error"
		statusCode = http.StatusInternalServerError
		// Just write an empty response
		message = []byte("{}")
	}

	resp.WriteHeader(statusCode)
	w.config.Logger.Tracef("returning response %q", message)
	if _, err := resp.Write(message); err != nil {
		w.config.Logger.Warningf("error writing HTTP response: %v", err)
	}
}
