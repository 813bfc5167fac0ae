package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	embeddingTextColumn = "embedding_text"
	finalURLColumn      = "final_url"
)

// textFields lists the labelled lines of a generated embedding text, in order.
var textFields = []struct {
	label  string
	column string
}{
	{"Title", "title"},
	{"Short Intro", "short_intro"},
	{"Category", "category"},
	{"Sub Category", "sub-category"},
	{"Type", "course_type"},
	{"Language", "language"},
	{"Skills", "skills"},
	{"Instructors", "instructors"},
	{"Rating", "rating"},
	{"URL", "url"},
}

// Table is a parsed course CSV.
type Table struct {
	Columns []string
	Rows    [][]string

	index   map[string]int
	numeric []bool
}

// ReadTable parses a CSV with a header row. Short rows are padded with
// empty cells; long rows are an error.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("course table is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &Table{index: make(map[string]int, len(header))}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		t.Columns = append(t.Columns, name)
		t.index[name] = i
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(rec) > len(header) {
			return nil, fmt.Errorf("line %d: %d fields, header has %d", line, len(rec), len(header))
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		t.Rows = append(t.Rows, rec)
	}

	t.inferNumeric()
	return t, nil
}

// inferNumeric marks columns whose non-empty cells all parse as numbers.
func (t *Table) inferNumeric() {
	t.numeric = make([]bool, len(t.Columns))
	for c := range t.Columns {
		seen := false
		numeric := true
		for _, row := range t.Rows {
			v := strings.TrimSpace(row[c])
			if v == "" {
				continue
			}
			seen = true
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
				break
			}
		}
		t.numeric[c] = seen && numeric
	}
}

func (t *Table) cell(row int, column string) string {
	i, ok := t.index[column]
	if !ok {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][i])
}

// EmbeddingText returns the text embedded for a row: its embedding_text
// cell when present, otherwise labelled lines built from the course fields.
func (t *Table) EmbeddingText(row int) string {
	if v := t.cell(row, embeddingTextColumn); v != "" {
		return v
	}

	var lines []string
	for _, f := range textFields {
		if v := t.cell(row, f.column); v != "" {
			lines = append(lines, f.label+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}

// Payload returns every column except embedding_text. Empty cells are nil
// and numeric columns hold float64.
func (t *Table) Payload(row int) map[string]any {
	p := make(map[string]any, len(t.Columns))
	for i, name := range t.Columns {
		if name == embeddingTextColumn {
			continue
		}
		v := strings.TrimSpace(t.Rows[row][i])
		switch {
		case v == "":
			p[name] = nil
		case t.numeric[i]:
			f, _ := strconv.ParseFloat(v, 64)
			p[name] = f
		default:
			p[name] = v
		}
	}

	if v := t.cell(row, finalURLColumn); v != "" {
		p[finalURLColumn] = v
	}
	return p
}
