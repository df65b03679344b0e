package source

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/graphmill/graphload/internal/types"
)

// JSONLSource streams one record per line of newline-delimited JSON. Each
// line must decode to an object; blank lines are skipped.
type JSONLSource struct {
	path      string
	file      *os.File
	scanner   *bufio.Scanner
	transform Transform
	skipped   int64
}

// NewJSONLSource opens path for streaming. The optional transform is applied
// to every record before it is returned.
func NewJSONLSource(path string, transform Transform) (*JSONLSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, types.WrapError(types.SOURCE_OPEN_FAILED, "open jsonl "+path, err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)

	return &JSONLSource{
		path:      path,
		file:      file,
		scanner:   scanner,
		transform: transform,
	}, nil
}

// Next returns the next decoded record, or io.EOF at end of input. Lines that
// fail to decode surface as errors; the transform may skip records it deems
// malformed at the domain level.
func (s *JSONLSource) Next() (Record, error) {
	for {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, types.WrapError(types.SOURCE_READ_FAILED, "read jsonl "+s.path, err)
			}
			return nil, io.EOF
		}

		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}

		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, types.WrapError(types.SOURCE_READ_FAILED, "decode jsonl line in "+s.path, err)
		}

		if s.transform != nil {
			var err error
			record, err = s.transform(record)
			if err == ErrSkipRecord {
				s.skipped++
				continue
			}
			if err != nil {
				return nil, err
			}
		}

		return record, nil
	}
}

// Skipped returns the number of records the transform dropped so far.
func (s *JSONLSource) Skipped() int64 {
	return s.skipped
}

// Close closes the underlying file. Safe to call more than once.
func (s *JSONLSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Count runs a non-blank line count over the file.
func (s *JSONLSource) Count() (int64, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return 0, types.WrapError(types.SOURCE_OPEN_FAILED, "open jsonl for count "+s.path, err)
	}
	defer file.Close()

	var count int64
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, types.WrapError(types.SOURCE_READ_FAILED, "count jsonl rows "+s.path, err)
	}
	return count, nil
}

var _ io.Closer = (*JSONLSource)(nil)
