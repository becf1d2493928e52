// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"context"
	"encoding/json"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/clustervision/luna2-daemon-sub002/domain/journal"
	"github.com/clustervision/luna2-daemon-sub002/domain/records"
	"github.com/clustervision/luna2-daemon-sub002/domain/schema"
	"github.com/clustervision/luna2-daemon-sub002/internal/database"
)

var logger = loggo.GetLogger("luna.domain.records")

const (
	// OperationUpsert is the journal operation of a record upsert.
	OperationUpsert = "record.upsert"

	// OperationDelete is the journal operation of a record deletion.
	OperationDelete = "record.delete"

	// surrogateKey is the row id column of every tracked table.
	surrogateKey = "id"
)

// State describes access to the tracked tables.
type State interface {
	// Dump returns the table content in natural key order.
	Dump(ctx context.Context, table string) (records.Table, error)

	// Replace swaps the whole content of a table.
	Replace(ctx context.Context, content records.Table) error

	// Upsert writes a record by natural key and returns the stored row.
	Upsert(ctx context.Context, table string, values map[string]any) (map[string]any, error)

	// Delete removes a record by natural key.
	Delete(ctx context.Context, table string, keyValues map[string]any) error

	// NaturalKey returns the natural key columns of a table.
	NaturalKey(ctx context.Context, table string) ([]string, error)
}

// Journal records local mutations for replication.
type Journal interface {
	Record(ctx context.Context, operation, object, payload string) (journal.Entry, error)
}

// ApplierRegistry accepts the appliers of replicated record mutations.
type ApplierRegistry interface {
	RegisterApplier(operation string, applier journal.Applier) error
}

// mutation is the journal payload of a record mutation.
type mutation struct {
	Table  string         `json:"table"`
	Values map[string]any `json:"values"`
}

// Service gives access to the replicated provisioning tables.
type Service struct {
	st      State
	journal Journal
}

// NewService returns a new service reference.
func NewService(st State, journal Journal) *Service {
	return &Service{
		st:      st,
		journal: journal,
	}
}

// Tables returns the tracked tables in audit order.
func (s *Service) Tables() []string {
	return schema.TrackedTables()
}

// Checksum returns the fingerprint of the input table.
func (s *Service) Checksum(ctx context.Context, table string) (string, error) {
	content, err := s.st.Dump(ctx, table)
	if err != nil {
		return "", errors.Trace(err)
	}
	fp, err := records.Fingerprint(content)
	return fp, errors.Trace(err)
}

// Checksums returns the fingerprint of every tracked table.
func (s *Service) Checksums(ctx context.Context) (map[string]string, error) {
	result := make(map[string]string)
	for _, table := range s.Tables() {
		fp, err := s.Checksum(ctx, table)
		if err != nil {
			return nil, errors.Annotatef(err, "fingerprinting %q", table)
		}
		result[table] = fp
	}
	return result, nil
}

// Export returns the full content of the input table.
func (s *Service) Export(ctx context.Context, table string) (records.Table, error) {
	content, err := s.st.Dump(ctx, table)
	return content, errors.Trace(err)
}

// Replace imports a table content wholesale. It is the repair path and
// is not journaled.
func (s *Service) Replace(ctx context.Context, content records.Table) error {
	if err := s.st.Replace(ctx, content); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("replaced %q with %d rows", content.Name, len(content.Rows))
	return nil
}

// Upsert writes a record and journals the stored row for every peer.
func (s *Service) Upsert(ctx context.Context, table string, values map[string]any) error {
	stored, err := s.st.Upsert(ctx, table, values)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.record(ctx, OperationUpsert, table, stored))
}

// Delete removes a record and journals the deletion for every peer.
func (s *Service) Delete(ctx context.Context, table string, keyValues map[string]any) error {
	if err := s.st.Delete(ctx, table, keyValues); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.record(ctx, OperationDelete, table, keyValues))
}

func (s *Service) record(ctx context.Context, operation, table string, values map[string]any) error {
	object, err := s.objectKey(ctx, table, values)
	if err != nil {
		return errors.Trace(err)
	}
	payload, err := json.Marshal(mutation{Table: table, Values: values})
	if err != nil {
		return errors.Trace(err)
	}
	_, err = s.journal.Record(ctx, operation, object, string(payload))
	return errors.Trace(err)
}

func (s *Service) objectKey(ctx context.Context, table string, values map[string]any) (string, error) {
	key, err := s.st.NaturalKey(ctx, table)
	if err != nil {
		return "", errors.Trace(err)
	}
	object, err := records.ObjectKey(table, key, values)
	return object, errors.Trace(err)
}

// RegisterAppliers registers the appliers that replay record mutations
// received from peers. Replayed mutations are not journaled again.
func (s *Service) RegisterAppliers(registry ApplierRegistry) error {
	if err := registry.RegisterApplier(OperationUpsert, journal.ApplierFunc(s.applyUpsert)); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(registry.RegisterApplier(OperationDelete, journal.ApplierFunc(s.applyDelete)))
}

func (s *Service) applyUpsert(ctx context.Context, entry journal.Entry) error {
	m, err := decodeMutation(entry)
	if err != nil {
		return errors.Trace(err)
	}
	_, err = s.st.Upsert(ctx, m.Table, m.Values)
	if _, ok := m.Values[surrogateKey]; !ok || !database.IsErrConstraintUnique(err) {
		return errors.Trace(err)
	}

	// The peer's row id is taken by another record here. Keep the record
	// under a local id and leave the id drift to the table audit.
	logger.Warningf("%s record %v collides on %q, applying with a local id", m.Table, m.Values[surrogateKey], surrogateKey)
	delete(m.Values, surrogateKey)
	_, err = s.st.Upsert(ctx, m.Table, m.Values)
	return errors.Trace(err)
}

func (s *Service) applyDelete(ctx context.Context, entry journal.Entry) error {
	m, err := decodeMutation(entry)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.st.Delete(ctx, m.Table, m.Values))
}

func decodeMutation(entry journal.Entry) (mutation, error) {
	var m mutation
	if err := json.Unmarshal([]byte(entry.Payload), &m); err != nil {
		return mutation{}, errors.NewNotValid(err, "record mutation payload")
	}
	if m.Table == "" || len(m.Values) == 0 {
		return mutation{}, errors.NotValidf("record mutation %q", entry.UUID)
	}
	return m, nil
}
