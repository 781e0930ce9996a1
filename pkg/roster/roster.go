// Package roster reads teacher/class assignment tables from delimited text
// or JSON records into an ordered, string-typed Table.
package roster

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
)

// DefaultDelimiter separates fields when none is requested.
const DefaultDelimiter = ';'

var (
	// ErrEmpty is returned when the input holds no header row.
	ErrEmpty = errors.New("roster is empty")
	// ErrUnsupportedDelimiter is returned by ParseDelimiter.
	ErrUnsupportedDelimiter = errors.New("unsupported delimiter")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a header row plus data rows. Every row has len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Options controls Parse.
type Options struct {
	Delimiter rune
}

// ParseDelimiter maps user supplied separator names to a rune.
func ParseDelimiter(raw string) (rune, error) {
	if raw == "\t" {
		return '\t', nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", ";", "semicolon":
		return DefaultDelimiter, nil
	case ",", "comma":
		return ',', nil
	case `\t`, "tab":
		return '\t', nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedDelimiter, raw)
}

// Parse reads delimited text. The first record is the header; header names
// are trimmed and short rows are padded with empty cells.
func Parse(r io.Reader, opts Options) (Table, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = DefaultDelimiter
	}

	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.Comma = opts.Delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, ErrEmpty
	}
	if err != nil {
		return Table{}, fmt.Errorf("read roster header: %w", err)
	}

	table := Table{Columns: lo.Map(header, func(h string, _ int) string { return strings.TrimSpace(h) })}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read roster row: %w", err)
		}
		table.Rows = append(table.Rows, table.fit(record))
	}
	return table, nil
}

// FromRecords builds a table from decoded JSON objects. Scalar cell values
// are weakly converted to strings and null becomes an empty cell. When
// columns is empty the sorted union of the record keys is used.
func FromRecords(columns []string, records []map[string]interface{}) (Table, error) {
	if len(columns) == 0 {
		keys := make([]string, 0)
		for _, record := range records {
			keys = append(keys, lo.Keys(record)...)
		}
		columns = lo.Uniq(keys)
		sort.Strings(columns)
	}
	if len(columns) == 0 {
		return Table{}, ErrEmpty
	}

	table := Table{Columns: lo.Map(columns, func(c string, _ int) string { return strings.TrimSpace(c) })}
	for i, record := range records {
		decoded := make(map[string]string, len(record))
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &decoded,
		})
		if err != nil {
			return Table{}, fmt.Errorf("build record decoder: %w", err)
		}
		if err := decoder.Decode(record); err != nil {
			return Table{}, fmt.Errorf("decode record %d: %w", i+1, err)
		}
		row := make([]string, len(columns))
		for j, column := range columns {
			row[j] = decoded[column]
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// Lookup finds a column by exact name, then by trimmed case-insensitive match.
func (t Table) Lookup(name string) (int, bool) {
	if idx := lo.IndexOf(t.Columns, name); idx >= 0 {
		return idx, true
	}
	want := strings.TrimSpace(name)
	for i, column := range t.Columns {
		if strings.EqualFold(strings.TrimSpace(column), want) {
			return i, true
		}
	}
	return -1, false
}

// Cell returns the value at row, col or "" when out of range.
func (t Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// Fingerprint is a stable sha256 digest of the columns and cells.
func (t Table) Fingerprint() string {
	h := sha256.New()
	writeRecord := func(fields []string) {
		for _, field := range fields {
			_, _ = fmt.Fprintf(h, "%d:%s\x1f", len(field), field)
		}
		_, _ = h.Write([]byte{0x1e})
	}
	writeRecord(t.Columns)
	for _, row := range t.Rows {
		writeRecord(row)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (t Table) fit(record []string) []string {
	row := make([]string, len(t.Columns))
	copy(row, record)
	return row
}
