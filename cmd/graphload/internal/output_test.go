package internal

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextFormatter_PrintTable(t *testing.T) {
	var buf bytes.Buffer
	f := NewTextFormatter(&buf)

	require.NoError(t, f.PrintTable(
		[]string{"ID", "Phase", "Processed"},
		[][]string{
			{"2", "companies", "5000000"},
			{"3", "officer-of", "9000000"},
		}))

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "companies")
	assert.Contains(t, out, "9000000")
}

func TestTextFormatter_Messages(t *testing.T) {
	var buf bytes.Buffer
	f := NewTextFormatter(&buf)

	require.NoError(t, f.PrintSuccess("load complete"))
	require.NoError(t, f.PrintError("phase failed"))

	assert.Contains(t, buf.String(), "✓ load complete")
	assert.Contains(t, buf.String(), "✗ phase failed")
}

func TestJSONFormatter_PrintTable(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(&buf)

	require.NoError(t, f.PrintTable(
		[]string{"Phase", "Processed"},
		[][]string{{"companies", "100"}}))

	var rows []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "companies", rows[0]["phase"])
	assert.Equal(t, "100", rows[0]["processed"])
}

func TestJSONFormatter_Messages(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(&buf)

	require.NoError(t, f.PrintSuccess("ok"))

	var msg map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &msg))
	assert.Equal(t, "success", msg["status"])
	assert.Equal(t, "ok", msg["message"])
}

func TestNewFormatter_SelectsByFormat(t *testing.T) {
	assert.IsType(t, &TextFormatter{}, NewFormatter(FormatText, nil))
	assert.IsType(t, &JSONFormatter{}, NewFormatter(FormatJSON, nil))
}
