package state

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/groundworklabs/groundwork/internal/attr"
)

// marshalAttrs converts an attribute map to canonical JSON TEXT for
// storage. RFC 8785 canonical form keeps stored bytes deterministic, so
// the snapshot checksum is stable across writers.
func marshalAttrs(m attr.Map) (string, error) {
	data, err := attr.MarshalCanonical(m)
	if err != nil {
		return "", fmt.Errorf("marshal attrs: %w", err)
	}
	return string(data), nil
}

// unmarshalAttrs parses canonical JSON TEXT back to an attribute map.
func unmarshalAttrs(data string) (attr.Map, error) {
	if data == "" || data == "{}" {
		return attr.Map{}, nil
	}
	var m attr.Map
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("unmarshal attrs: %w", err)
	}
	return m, nil
}

// marshalDependencies converts a dependency name list to canonical JSON
// TEXT.
func marshalDependencies(deps []string) (string, error) {
	data, err := attr.MarshalCanonical(dependencyList(deps))
	if err != nil {
		return "", fmt.Errorf("marshal dependencies: %w", err)
	}
	return string(data), nil
}

// unmarshalDependencies parses a JSON array of dependency names.
func unmarshalDependencies(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var deps []string
	if err := json.Unmarshal([]byte(data), &deps); err != nil {
		return nil, fmt.Errorf("unmarshal dependencies: %w", err)
	}
	return deps, nil
}

func dependencyList(deps []string) attr.List {
	l := make(attr.List, len(deps))
	for i, d := range deps {
		l[i] = attr.String(d)
	}
	return l
}

// marshalRecord serializes the three JSON columns of a record.
func marshalRecord(rec *Record) (inputs, outputs, deps string, err error) {
	inputs, err = marshalAttrs(rec.Inputs)
	if err != nil {
		return "", "", "", err
	}
	outputs, err = marshalAttrs(rec.Outputs)
	if err != nil {
		return "", "", "", err
	}
	deps, err = marshalDependencies(rec.Dependencies)
	if err != nil {
		return "", "", "", err
	}
	return inputs, outputs, deps, nil
}

// snapshotBody produces the canonical serialization of a record set,
// the bytes the snapshot checksum covers. Records must already be
// sorted by name.
func snapshotBody(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i := range records {
		rec := &records[i]
		if i > 0 {
			buf.WriteByte(',')
		}
		m := attr.Map{
			"dependencies": dependencyList(rec.Dependencies),
			"identity":     attr.String(rec.Identity),
			"inputs":       rec.Inputs,
			"inputs_hash":  attr.String(rec.InputsHash),
			"name":         attr.String(rec.Name),
			"outputs":      rec.Outputs,
			"protect":      attr.Bool(rec.Protect),
			"seq":          attr.Int(rec.Seq),
			"type":         attr.String(rec.Type),
		}
		b, err := attr.MarshalCanonical(m)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", rec.Name, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// scanRecord reads one record row. Malformed stored JSON is surfaced as
// StateCorruptionError; sql.ErrNoRows passes through for the caller's
// not-found mapping.
func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var inputsJSON, outputsJSON, depsJSON string

	if err := row.Scan(
		&rec.Name, &rec.Type, &rec.Identity, &inputsJSON, &outputsJSON,
		&rec.InputsHash, &rec.Protect, &depsJSON, &rec.Seq,
	); err != nil {
		return Record{}, err
	}

	inputs, err := unmarshalAttrs(inputsJSON)
	if err != nil {
		return Record{}, &StateCorruptionError{
			Reason: fmt.Sprintf("record %q: malformed inputs: %v", rec.Name, err),
		}
	}
	rec.Inputs = inputs

	outputs, err := unmarshalAttrs(outputsJSON)
	if err != nil {
		return Record{}, &StateCorruptionError{
			Reason: fmt.Sprintf("record %q: malformed outputs: %v", rec.Name, err),
		}
	}
	rec.Outputs = outputs

	deps, err := unmarshalDependencies(depsJSON)
	if err != nil {
		return Record{}, &StateCorruptionError{
			Reason: fmt.Sprintf("record %q: malformed dependencies: %v", rec.Name, err),
		}
	}
	rec.Dependencies = deps

	return rec, nil
}

// queryRecords runs a record SELECT and scans all rows. Returns an
// empty slice (not nil) when the state is empty.
func queryRecords(ctx context.Context, q querier, query string) ([]Record, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// refreshMeta recomputes the snapshot checksum over the current record
// set and advances the serial, inside the caller's transaction. The
// select and update queries are backend-specific (placeholder dialects
// differ).
func refreshMeta(ctx context.Context, tx *sql.Tx, serial int64, selectQuery, updateQuery string) error {
	records, err := queryRecords(ctx, tx, selectQuery)
	if err != nil {
		return err
	}
	body, err := snapshotBody(records)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, updateQuery, serial, attr.SnapshotChecksum(body)); err != nil {
		return fmt.Errorf("update snapshot meta: %w", err)
	}
	return nil
}
