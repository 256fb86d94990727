package dataset

import (
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/insight-pipeline/internal/types"
)

// LoadHTMLTable reads the index-th <table> with rows from an HTML document.
// The header is the <thead> row, else the first row when it holds <th>
// cells, else the first row.
func LoadHTMLTable(r io.Reader, source string, index int) (*types.Table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &LoadError{Source: source, Message: "failed to parse HTML", Cause: err}
	}

	var tables []*goquery.Selection
	doc.Find("table").Each(func(_ int, s *goquery.Selection) {
		if s.Find("tr").Length() > 0 {
			tables = append(tables, s)
		}
	})
	if index < 0 || index >= len(tables) {
		return nil, &LoadError{Source: source, Message: "no table at the requested index"}
	}
	table := tables[index]

	var records [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		// Skip rows that belong to a nested table
		if tr.ParentsFiltered("table").First().Get(0) != table.Get(0) {
			return
		}
		var cells []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, cleanCell(cell.Text()))
		})
		if len(cells) > 0 {
			records = append(records, cells)
		}
	})
	if len(records) == 0 {
		return nil, &LoadError{Source: source, Message: "table has no cells"}
	}

	header := records[0]
	body := records[1:]
	if thead := table.Find("thead tr").First(); thead.Length() == 0 && table.Find("tr").First().Find("th").Length() == 0 {
		// No header markup: synthesize positional names and keep the first row
		header = make([]string, len(records[0]))
		body = records
	}

	columns := uniqueHeaders(header)
	return &types.Table{
		Columns: columns,
		Rows:    buildRows(body, len(columns)),
	}, nil
}

// LoadHTMLFile reads the first table of an HTML file
func LoadHTMLFile(path string) (*types.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Source: path, Message: "failed to open file", Cause: err}
	}
	defer func() { _ = f.Close() }()
	return LoadHTMLTable(f, path, 0)
}

func cleanCell(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
