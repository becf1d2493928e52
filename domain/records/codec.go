// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package records

import (
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
	"github.com/juju/errors"
	"github.com/zeebo/blake3"
)

// encMode produces Core Deterministic Encoding: the same row always
// serialises to the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("records: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		IntDec: cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic("records: CBOR decoder initialization failed: " + err.Error())
	}
}

// Fingerprint returns the hex encoded BLAKE3 digest of the concatenated
// deterministic encodings of the table's rows. Rows must already be in
// natural key order.
func Fingerprint(t Table) (string, error) {
	hasher := blake3.New()
	for i, row := range t.Rows {
		data, err := encMode.Marshal(normaliseRow(row))
		if err != nil {
			return "", errors.Annotatef(err, "encoding row %d of %s", i, t.Name)
		}
		_, _ = hasher.Write(data)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Marshal encodes a table for transfer between controllers.
func Marshal(t Table) ([]byte, error) {
	normalised := Table{Name: t.Name, Columns: t.Columns, Rows: make([][]any, len(t.Rows))}
	for i, row := range t.Rows {
		normalised.Rows[i] = normaliseRow(row)
	}
	data, err := encMode.Marshal(normalised)
	return data, errors.Trace(err)
}

// Unmarshal decodes a table encoded by [Marshal].
func Unmarshal(data []byte) (Table, error) {
	var t Table
	if err := decMode.Unmarshal(data, &t); err != nil {
		return Table{}, errors.Trace(err)
	}
	for i, row := range t.Rows {
		t.Rows[i] = normaliseRow(row)
	}
	return t, nil
}

func normaliseRow(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = Normalise(v)
	}
	return out
}
