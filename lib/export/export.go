// Package export persists assembled case records as JSON, JSONL or
// CSV files under an output directory. Records are appended one at a
// time as identifiers finish, so a partial run still leaves a
// readable file behind.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/noah-art3mis/judex-mini/lib/scrapers/stf"
)

// Format selects an output encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
	// FormatAll expands to every concrete format.
	FormatAll Format = "all"
)

// FormatFromString parses a user-supplied format name.
func FormatFromString(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatJSONL:
		return FormatJSONL, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatAll:
		return FormatAll, nil
	}
	return "", fmt.Errorf("unknown output format %q (want json, jsonl, csv or all)", s)
}

// Formats expands FormatAll into the concrete formats.
func (f Format) Formats() []Format {
	if f == FormatAll {
		return []Format{FormatJSON, FormatJSONL, FormatCSV}
	}
	return []Format{f}
}

func (f Format) ext() string {
	return string(f)
}

// ExportConflictError reports a refusal to touch an existing output
// file when overwrite was not requested. The file is left unchanged.
type ExportConflictError struct {
	Path string
}

func (e *ExportConflictError) Error() string {
	return fmt.Sprintf("output file already exists: %s (pass --overwrite to replace it)", e.Path)
}

// BaseName is the shared stem for every output file of one run.
func BaseName(r stf.Range) string {
	return fmt.Sprintf("judex-mini_%s_%d-%d", r.Class, r.First, r.Last)
}

// Writer appends records to one output file in one format.
type Writer struct {
	format Format
	path   string
	// fields is the CSV column order, fixed at creation.
	fields []string
}

// NewWriter prepares the output file for a run. An existing file is a
// conflict unless overwrite is set, in which case it is truncated.
func NewWriter(dir string, r stf.Range, format Format, overwrite bool) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, BaseName(r)+"."+format.ext())
	if _, err := os.Stat(path); err == nil {
		if !overwrite {
			return nil, &ExportConflictError{Path: path}
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("truncate %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return &Writer{
		format: format,
		path:   path,
		fields: stf.SchemaFields(),
	}, nil
}

// Path is where records are written.
func (w *Writer) Path() string {
	return w.path
}

// Append persists one record at the end of the output file.
func (w *Writer) Append(rec stf.CaseRecord) error {
	switch w.format {
	case FormatJSONL:
		return w.appendJSONL(rec)
	case FormatJSON:
		return w.appendJSON(rec)
	case FormatCSV:
		return w.appendCSV(rec)
	}
	return fmt.Errorf("unsupported format %q", w.format)
}

func (w *Writer) appendJSONL(rec stf.CaseRecord) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", w.path, err)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		f.Close()
		return fmt.Errorf("encode record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	return f.Close()
}

// appendJSON keeps the file a valid JSON array after every append, so
// an interrupted run never leaves a truncated document behind.
func (w *Writer) appendJSON(rec stf.CaseRecord) error {
	var records []stf.CaseRecord
	raw, err := os.ReadFile(w.path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &records); err != nil {
			return fmt.Errorf("reread %s: %w", w.path, err)
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("reread %s: %w", w.path, err)
	}

	records = append(records, rec)
	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := os.WriteFile(w.path, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	return nil
}

func (w *Writer) appendCSV(rec stf.CaseRecord) error {
	_, statErr := os.Stat(w.path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", w.path, err)
	}

	cw := csv.NewWriter(f)
	if writeHeader {
		if err := cw.Write(w.fields); err != nil {
			f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}
	row, err := csvRow(rec, w.fields)
	if err != nil {
		f.Close()
		return err
	}
	if err := cw.Write(row); err != nil {
		f.Close()
		return fmt.Errorf("write row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", w.path, err)
	}
	return f.Close()
}

// csvRow flattens a record in schema order. Scalar fields become
// their string value (empty cell for null); lists and nested objects
// are embedded as JSON so the row stays lossless.
func csvRow(rec stf.CaseRecord, fields []string) ([]string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var byKey map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, fmt.Errorf("reshape record: %w", err)
	}

	row := make([]string, len(fields))
	for i, field := range fields {
		cell, ok := byKey[field]
		if !ok {
			return nil, fmt.Errorf("record is missing schema field %q", field)
		}
		row[i] = csvCell(cell)
	}
	return row, nil
}

func csvCell(cell json.RawMessage) string {
	if string(cell) == "null" {
		return ""
	}
	switch cell[0] {
	case '"':
		var s string
		if err := json.Unmarshal(cell, &s); err == nil {
			return s
		}
	case '[', '{':
		return string(cell)
	}
	// numbers and booleans print as-is
	return string(cell)
}

// ReadRecords loads every record back from a JSON or JSONL file.
// Round-trips the exporter's own output for verification runs.
func ReadRecords(path string) ([]stf.CaseRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	switch strings.TrimPrefix(filepath.Ext(path), ".") {
	case string(FormatJSON):
		var records []stf.CaseRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return records, nil
	case string(FormatJSONL):
		var records []stf.CaseRecord
		for i, line := range strings.Split(string(raw), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			var rec stf.CaseRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				return nil, fmt.Errorf("decode %s line %d: %w", path, i+1, err)
			}
			records = append(records, rec)
		}
		return records, nil
	}
	return nil, fmt.Errorf("cannot read records from %s: unsupported extension", path)
}
