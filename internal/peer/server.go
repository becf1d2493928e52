// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package peer

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/errors"

	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
	haerrors "github.com/clustervision/luna2-daemon-sub002/domain/ha/errors"
	"github.com/clustervision/luna2-daemon-sub002/domain/journal"
	"github.com/clustervision/luna2-daemon-sub002/domain/records"
	recordserrors "github.com/clustervision/luna2-daemon-sub002/domain/records/errors"
)

// Verifier checks the access token of an incoming request.
type Verifier interface {
	Verify(raw string) (string, error)
}

// HAService exposes the local HA state to peers.
type HAService interface {
	Status(ctx context.Context) (ha.State, error)
	RecordPing(ctx context.Context, hostname string) error
	SetRole(ctx context.Context, master bool, guard *time.Time) error
}

// RecordsService exposes the tracked tables to peers.
type RecordsService interface {
	Checksums(ctx context.Context) (map[string]string, error)
	Export(ctx context.Context, table string) (records.Table, error)
}

// JournalService exchanges journal entries with peers.
type JournalService interface {
	Receive(ctx context.Context, entries []journal.Entry) (int, error)
	Pending(ctx context.Context, target string) ([]journal.Entry, error)
	Acknowledge(ctx context.Context, target string, uuids []string) error
}

// ServerConfig holds the dependencies of the peer API.
type ServerConfig struct {
	Hostname string
	Verifier Verifier
	HA       HAService
	Records  RecordsService
	Journal  JournalService
	Logger   Logger
}

// Validate returns an error if the config is not usable.
func (c ServerConfig) Validate() error {
	if c.Hostname == "" {
		return errors.NotValidf("empty Hostname")
	}
	if c.Verifier == nil {
		return errors.NotValidf("nil Verifier")
	}
	if c.HA == nil {
		return errors.NotValidf("nil HA")
	}
	if c.Records == nil {
		return errors.NotValidf("nil Records")
	}
	if c.Journal == nil {
		return errors.NotValidf("nil Journal")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

type callerKey struct{}

// NewHandler returns the http handler serving the peer API.
func NewHandler(cfg ServerConfig) (http.Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	h := &handler{cfg: cfg}

	router := mux.NewRouter()
	router.HandleFunc(pathPing, h.ping).Methods(http.MethodGet)
	router.HandleFunc(pathChecksums, h.checksums).Methods(http.MethodGet)
	router.HandleFunc(pathTable, h.table).Methods(http.MethodGet)
	router.HandleFunc(pathJournal, h.receive).Methods(http.MethodPost)
	router.HandleFunc(pathPull, h.pending).Methods(http.MethodGet)
	router.HandleFunc(pathAck, h.acknowledge).Methods(http.MethodPost)
	router.HandleFunc(pathRole, h.role).Methods(http.MethodPost)
	router.Use(h.authenticate)
	return router, nil
}

type handler struct {
	cfg ServerConfig
}

func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			h.sendError(w, errors.Unauthorizedf("missing token"))
			return
		}
		caller, err := h.cfg.Verifier.Verify(raw)
		if err != nil {
			h.sendError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), callerKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFrom(r *http.Request) string {
	caller, _ := r.Context().Value(callerKey{}).(string)
	return caller
}

func (h *handler) ping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.cfg.HA.RecordPing(ctx, callerFrom(r)); err != nil {
		h.sendError(w, err)
		return
	}
	state, err := h.cfg.HA.Status(ctx)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendJSON(w, PingResponse{
		Hostname: h.cfg.Hostname,
		Master:   state.Master,
		InSync:   state.InSync,
	})
}

func (h *handler) checksums(w http.ResponseWriter, r *http.Request) {
	sums, err := h.cfg.Records.Checksums(r.Context())
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendJSON(w, ChecksumsResponse{Checksums: sums})
}

func (h *handler) table(w http.ResponseWriter, r *http.Request) {
	content, err := h.cfg.Records.Export(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		h.sendError(w, err)
		return
	}
	data, err := records.Marshal(content)
	if err != nil {
		h.sendError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeCBOR)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.cfg.Logger.Debugf("sending table %q: %v", content.Name, err)
	}
}

func (h *handler) receive(w http.ResponseWriter, r *http.Request) {
	var batch JournalBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.sendError(w, errors.NewNotValid(err, "decoding journal batch"))
		return
	}
	if batch.Origin != callerFrom(r) {
		h.sendError(w, errors.Unauthorizedf("journal of %q pushed by %q", batch.Origin, callerFrom(r)))
		return
	}
	received, err := h.cfg.Journal.Receive(r.Context(), batch.Entries)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.cfg.Logger.Debugf("received %d of %d journal entries from %s", received, len(batch.Entries), batch.Origin)
	h.sendJSON(w, struct{}{})
}

func (h *handler) pending(w http.ResponseWriter, r *http.Request) {
	host := mux.Vars(r)["host"]
	if host != callerFrom(r) {
		h.sendError(w, errors.Unauthorizedf("journal of %q pulled by %q", host, callerFrom(r)))
		return
	}
	entries, err := h.cfg.Journal.Pending(r.Context(), host)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendJSON(w, JournalBatch{Origin: h.cfg.Hostname, Entries: entries})
}

func (h *handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	host := mux.Vars(r)["host"]
	if host != callerFrom(r) {
		h.sendError(w, errors.Unauthorizedf("journal of %q acknowledged by %q", host, callerFrom(r)))
		return
	}
	var ack AckRequest
	if err := json.NewDecoder(r.Body).Decode(&ack); err != nil {
		h.sendError(w, errors.NewNotValid(err, "decoding acknowledgement"))
		return
	}
	if err := h.cfg.Journal.Acknowledge(r.Context(), host, ack.UUIDs); err != nil {
		h.sendError(w, err)
		return
	}
	h.sendJSON(w, struct{}{})
}

func (h *handler) role(w http.ResponseWriter, r *http.Request) {
	var change RoleChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		h.sendError(w, errors.NewNotValid(err, "decoding role change"))
		return
	}
	if err := h.cfg.HA.SetRole(r.Context(), change.Master, change.Guard); err != nil {
		h.sendError(w, err)
		return
	}
	h.cfg.Logger.Debugf("role set to master=%v by %s", change.Master, callerFrom(r))
	h.sendJSON(w, struct{}{})
}

func (h *handler) sendJSON(w http.ResponseWriter, v any) {
	h.sendStatusAndJSON(w, http.StatusOK, v)
}

func (h *handler) sendError(w http.ResponseWriter, err error) {
	code := errorCode(err)
	if code == http.StatusInternalServerError {
		h.cfg.Logger.Warningf("peer request failed: %v", err)
	}
	h.sendStatusAndJSON(w, code, ErrorResponse{Error: err.Error()})
}

func (h *handler) sendStatusAndJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.cfg.Logger.Warningf("cannot marshal JSON result %#v: %v", v, err)
		code = http.StatusInternalServerError
		body = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		h.cfg.Logger.Debugf("sending response: %v", err)
	}
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, errors.Unauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errors.NotValid):
		return http.StatusBadRequest
	case errors.Is(err, errors.NotFound),
		errors.Is(err, recordserrors.TableNotTracked):
		return http.StatusNotFound
	case errors.Is(err, haerrors.StaleRoleChange):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
