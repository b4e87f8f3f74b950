package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedTable struct {
	headers []string
	rows    [][]string
}

func (t fixedTable) Headers() []string { return t.headers }
func (t fixedTable) Rows() [][]string  { return t.rows }

func TestPrintTable(t *testing.T) {
	table := fixedTable{
		headers: []string{"Name", "Value"},
		rows: [][]string{
			{"key1", "value1"},
			{"key2", "value2"},
		},
	}

	var buf bytes.Buffer
	err := PrintTable(&buf, table)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "VALUE")
	assert.Contains(t, output, "key1")
	assert.Contains(t, output, "value1")
	assert.Contains(t, output, "key2")
	assert.Contains(t, output, "value2")
}

func TestPrintTable_NoRows(t *testing.T) {
	table := fixedTable{headers: []string{"Name"}}

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, table))
	assert.Contains(t, buf.String(), "NAME")
}
