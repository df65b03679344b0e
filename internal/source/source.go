// Package source provides streaming record sources for load phases. Sources
// never hold a whole input file in memory; records are produced one at a time
// and batched downstream.
package source

import (
	"errors"
	"io"
	"strings"
)

// Record is one row of input, keyed by property name. Values are whatever the
// decoder produced; a Transform hook normalizes them before batching.
type Record map[string]any

// ErrSkipRecord is returned by a Transform to drop a malformed record.
// Skipped records are counted, not retried, and never fail the batch.
var ErrSkipRecord = errors.New("skip record")

// Source streams records for one phase. Next returns io.EOF when the source
// is exhausted. Sources are single-consumer; they are not safe for concurrent
// Next calls.
type Source interface {
	// Next returns the next record, or io.EOF at the end of input.
	Next() (Record, error)

	// Close releases the underlying reader. Safe to call more than once.
	Close() error
}

// Transform normalizes one raw record before it enters a batch. Returning
// ErrSkipRecord drops the record; any other error aborts the source read.
type Transform func(Record) (Record, error)

// RequireFields builds a Transform that skips records missing any of the
// named fields. A field is missing when it is absent, nil, or an empty or
// whitespace-only string. Registry extracts routinely carry rows with a blank
// key column; merging those would create junk nodes keyed on "".
func RequireFields(fields ...string) Transform {
	return func(rec Record) (Record, error) {
		for _, f := range fields {
			v, ok := rec[f]
			if !ok || v == nil {
				return nil, ErrSkipRecord
			}
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				return nil, ErrSkipRecord
			}
		}
		return rec, nil
	}
}

// Counter is implemented by sources that can report their total record count
// with an upfront pass. Counting a multi-gigabyte file is itself expensive,
// so callers may skip it and run with an unknown total.
type Counter interface {
	Count() (int64, error)
}

// Skipper is implemented by sources that count records dropped by their
// Transform. The count accumulates as the source is consumed; read it after
// the source reaches io.EOF for the full total.
type Skipper interface {
	Skipped() int64
}

// SliceSource serves records from memory. Used by lookup phases whose rows
// are derived in-process, and by tests.
type SliceSource struct {
	records []Record
	pos     int
	closed  bool
}

// NewSliceSource creates a source over the given records.
func NewSliceSource(records []Record) *SliceSource {
	return &SliceSource{records: records}
}

// Next returns the next record or io.EOF.
func (s *SliceSource) Next() (Record, error) {
	if s.closed || s.pos >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}

// Close marks the source exhausted.
func (s *SliceSource) Close() error {
	s.closed = true
	return nil
}

// Count returns the total number of records.
func (s *SliceSource) Count() (int64, error) {
	return int64(len(s.records)), nil
}

// Reset rewinds the source so it can be consumed again.
func (s *SliceSource) Reset() {
	s.pos = 0
	s.closed = false
}
