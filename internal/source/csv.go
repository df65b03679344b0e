package source

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/graphmill/graphload/internal/types"
)

// CSVSource streams one record per CSV row, keyed by the header. Header cells
// are whitespace-trimmed; some registry exports carry leading spaces in
// column names (" CompanyNumber") and keys must match the manifest's field
// references exactly.
type CSVSource struct {
	path      string
	file      *os.File
	reader    *csv.Reader
	header    []string
	transform Transform
	skipped   int64
}

// NewCSVSource opens path and reads its header row. The optional transform is
// applied to every record before it is returned.
func NewCSVSource(path string, transform Transform) (*CSVSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, types.WrapError(types.SOURCE_OPEN_FAILED, "open csv "+path, err)
	}

	reader := csv.NewReader(bufio.NewReaderSize(file, 1<<20))
	reader.ReuseRecord = true
	// Registry exports occasionally have ragged rows; surface them as
	// skippable records rather than failing the whole read.
	reader.FieldsPerRecord = -1

	rawHeader, err := reader.Read()
	if err != nil {
		file.Close()
		return nil, types.WrapError(types.SOURCE_READ_FAILED, "read csv header "+path, err)
	}

	header := make([]string, len(rawHeader))
	for i, h := range rawHeader {
		header[i] = strings.TrimSpace(h)
	}

	return &CSVSource{
		path:      path,
		file:      file,
		reader:    reader,
		header:    header,
		transform: transform,
	}, nil
}

// Header returns the trimmed column names.
func (s *CSVSource) Header() []string {
	return s.header
}

// Next returns the next row as a Record, applying the transform. Rows the
// transform skips are consumed silently and the following row is returned.
func (s *CSVSource) Next() (Record, error) {
	for {
		row, err := s.reader.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, types.WrapError(types.SOURCE_READ_FAILED, "read csv row "+s.path, err)
		}

		record := make(Record, len(s.header))
		for i, name := range s.header {
			if i < len(row) {
				record[name] = row[i]
			}
		}

		if s.transform != nil {
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

// Skipped returns the number of rows the transform dropped so far.
func (s *CSVSource) Skipped() int64 {
	return s.skipped
}

// Close closes the underlying file. Safe to call more than once.
func (s *CSVSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Count runs a line-counting pass over the file without decoding CSV. The
// header line is excluded. Transform-level skips are not predictable upfront,
// so the count is an upper bound used for progress percentages.
func (s *CSVSource) Count() (int64, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return 0, types.WrapError(types.SOURCE_OPEN_FAILED, "open csv for count "+s.path, err)
	}
	defer file.Close()

	var count int64
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, types.WrapError(types.SOURCE_READ_FAILED, "count csv rows "+s.path, err)
	}

	if count > 0 {
		count-- // header
	}
	return count, nil
}
