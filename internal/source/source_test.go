package source

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func drain(t *testing.T, s Source) []Record {
	t.Helper()
	var records []Record
	for {
		rec, err := s.Next()
		if err == io.EOF {
			return records
		}
		require.NoError(t, err)
		records = append(records, rec)
	}
}

func TestCSVSource(t *testing.T) {
	path := writeTempFile(t, "companies.csv",
		" CompanyName, CompanyNumber,CompanyStatus\n"+
			"ACME LTD,00000001,active\n"+
			"WIDGETS PLC,00000002,dissolved\n")

	src, err := NewCSVSource(path, nil)
	require.NoError(t, err)
	defer src.Close()

	// Header whitespace is trimmed.
	assert.Equal(t, []string{"CompanyName", "CompanyNumber", "CompanyStatus"}, src.Header())

	records := drain(t, src)
	require.Len(t, records, 2)
	assert.Equal(t, "ACME LTD", records[0]["CompanyName"])
	assert.Equal(t, "00000002", records[1]["CompanyNumber"])
}

func TestCSVSource_Count(t *testing.T) {
	path := writeTempFile(t, "companies.csv",
		"CompanyNumber\n1\n2\n3\n")

	src, err := NewCSVSource(path, nil)
	require.NoError(t, err)
	defer src.Close()

	count, err := src.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestCSVSource_TransformSkips(t *testing.T) {
	path := writeTempFile(t, "companies.csv",
		"CompanyNumber,CompanyName\n"+
			"00000001,ACME LTD\n"+
			",MISSING NUMBER LTD\n"+
			"00000003,THIRD LTD\n")

	skipped := 0
	transform := func(rec Record) (Record, error) {
		if rec["CompanyNumber"] == "" {
			skipped++
			return nil, ErrSkipRecord
		}
		return rec, nil
	}

	src, err := NewCSVSource(path, transform)
	require.NoError(t, err)
	defer src.Close()

	records := drain(t, src)
	require.Len(t, records, 2)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, int64(1), src.Skipped())
	assert.Equal(t, "00000003", records[1]["CompanyNumber"])
}

func TestJSONLSource_TransformSkips(t *testing.T) {
	path := writeTempFile(t, "officers.jsonl",
		`{"officer_id":"a1","name":"JONES, Alice"}`+"\n"+
			`{"name":"no id"}`+"\n"+
			`{"officer_id":"b2","name":"SMITH, Bob"}`+"\n")

	transform := func(rec Record) (Record, error) {
		if rec["officer_id"] == nil {
			return nil, ErrSkipRecord
		}
		return rec, nil
	}

	src, err := NewJSONLSource(path, transform)
	require.NoError(t, err)
	defer src.Close()

	records := drain(t, src)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), src.Skipped())
}

func TestRequireFields(t *testing.T) {
	transform := RequireFields("number", "name")

	tests := []struct {
		name string
		rec  Record
		skip bool
	}{
		{"all present", Record{"number": "00000001", "name": "ACME LTD"}, false},
		{"missing field", Record{"name": "ACME LTD"}, true},
		{"nil value", Record{"number": nil, "name": "ACME LTD"}, true},
		{"empty string", Record{"number": "", "name": "ACME LTD"}, true},
		{"whitespace only", Record{"number": "  ", "name": "ACME LTD"}, true},
		{"non-string value kept", Record{"number": 1, "name": "ACME LTD"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := transform(tt.rec)
			if tt.skip {
				assert.Equal(t, ErrSkipRecord, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.rec, rec)
		})
	}
}

func TestCSVSource_MissingFile(t *testing.T) {
	_, err := NewCSVSource(filepath.Join(t.TempDir(), "missing.csv"), nil)
	require.Error(t, err)
}

func TestJSONLSource(t *testing.T) {
	path := writeTempFile(t, "records.jsonl",
		`{"code":"68209","description":"Letting of real estate"}`+"\n"+
			"\n"+
			`{"code":"62012","description":"Business software development"}`+"\n")

	src, err := NewJSONLSource(path, nil)
	require.NoError(t, err)
	defer src.Close()

	records := drain(t, src)
	require.Len(t, records, 2)
	assert.Equal(t, "68209", records[0]["code"])
	assert.Equal(t, "Business software development", records[1]["description"])

	count, err := src.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestJSONLSource_BadLine(t *testing.T) {
	path := writeTempFile(t, "bad.jsonl", "{not json}\n")

	src, err := NewJSONLSource(path, nil)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Next()
	require.Error(t, err)
}

func TestSliceSource(t *testing.T) {
	src := NewSliceSource([]Record{{"id": 1}, {"id": 2}})

	count, err := src.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	records := drain(t, src)
	assert.Len(t, records, 2)

	// Exhausted until reset.
	_, err = src.Next()
	assert.Equal(t, io.EOF, err)
	src.Reset()
	records = drain(t, src)
	assert.Len(t, records, 2)
}
