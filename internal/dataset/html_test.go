package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const salesPage = `
<html><body>
<table id="nav"></table>
<table>
  <thead><tr><th>Region</th><th>Sales</th></tr></thead>
  <tbody>
    <tr><td>East</td><td> 1,200 </td></tr>
    <tr><td>West</td><td>950</td></tr>
  </tbody>
</table>
<table>
  <tr><td>a</td><td>1</td></tr>
  <tr><td>b</td><td>2</td></tr>
</table>
</body></html>`

func TestLoadHTMLTable(t *testing.T) {
	table, err := LoadHTMLTable(strings.NewReader(salesPage), "page", 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"Region", "Sales"}, table.Columns)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, []any{"1,200", "950"}, table.Column("Sales"), "thousands separators keep the column as text")
}

func TestLoadHTMLTable_WithoutHeaderMarkup(t *testing.T) {
	table, err := LoadHTMLTable(strings.NewReader(salesPage), "page", 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"Unnamed: 0", "Unnamed: 1"}, table.Columns)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []any{int64(1), int64(2)}, table.Column("Unnamed: 1"))
}

func TestLoadHTMLTable_MissingIndex(t *testing.T) {
	_, err := LoadHTMLTable(strings.NewReader(salesPage), "page", 5)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)

	_, err = LoadHTMLTable(strings.NewReader("<p>no tables</p>"), "page", 0)
	assert.Error(t, err)
}
