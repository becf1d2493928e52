// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package records

import (
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"

	recordserrors "github.com/clustervision/luna2-daemon-sub002/domain/records/errors"
	"github.com/clustervision/luna2-daemon-sub002/domain/schema"
)

// Table is the full content of a tracked table. Rows hold values in
// column order.
type Table struct {
	Name    string   `cbor:"name"`
	Columns []string `cbor:"columns"`
	Rows    [][]any  `cbor:"rows"`
}

// NaturalKey returns the first candidate of [schema.NaturalKeys] whose
// columns all exist in the input columns.
func NaturalKey(columns []string) ([]string, error) {
	present := make(map[string]bool, len(columns))
	for _, col := range columns {
		present[col] = true
	}
	for _, candidate := range schema.NaturalKeys {
		found := true
		for _, col := range candidate {
			if !present[col] {
				found = false
				break
			}
		}
		if found {
			return candidate, nil
		}
	}
	return nil, errors.Trace(recordserrors.NoNaturalKey)
}

// ObjectKey returns the journal object key of a record: the table name
// followed by the natural key values.
func ObjectKey(table string, key []string, values map[string]any) (string, error) {
	parts := []string{table}
	for _, col := range key {
		v, ok := values[col]
		if !ok || v == nil {
			return "", errors.NotValidf("%s record without %q", table, col)
		}
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, "/"), nil
}

// Normalise converts a value read from the database or decoded from the
// wire to the form used for hashing and storage, so that the same cell
// has the same representation on every controller.
func Normalise(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint64:
		return int64(x)
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return x
	}
}
