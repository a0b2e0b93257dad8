package etl

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	apperrors "github.com/BartekS5/orderload/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVSource streams data rows of a delimited file with a header row.
// Parse problems are reported as MalformedSource; read failures of the
// underlying body as StorageUnavailable.
type CSVSource struct {
	r       *csv.Reader
	columns []string
	rows    int
}

func NewCSVSource(r io.Reader, delimiter rune) (*CSVSource, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = delimiter
	cr.FieldsPerRecord = 0

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperrors.New(apperrors.ErrMalformedSource, "read header", "object is empty")
	}
	if err != nil {
		return nil, classifyReadErr("read header", err)
	}

	seen := make(map[string]bool, len(header))
	columns := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			return nil, apperrors.New(apperrors.ErrMalformedSource, "read header", "column %d has no name", i+1)
		}
		if !utf8.ValidString(name) {
			return nil, apperrors.New(apperrors.ErrMalformedSource, "read header", "column %d is not valid UTF-8", i+1)
		}
		if seen[name] {
			return nil, apperrors.New(apperrors.ErrMalformedSource, "read header", "duplicate column %q", name)
		}
		seen[name] = true
		columns[i] = name
	}

	return &CSVSource{r: cr, columns: columns}, nil
}

// Columns returns the header in file order.
func (s *CSVSource) Columns() []string { return s.columns }

// Rows returns the number of data rows read so far.
func (s *CSVSource) Rows() int { return s.rows }

// Next returns the next data row, or io.EOF.
func (s *CSVSource) Next() ([]string, error) {
	record, err := s.r.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, classifyReadErr(fmt.Sprintf("read row %d", s.rows+1), err)
	}
	for i, field := range record {
		if !utf8.ValidString(field) {
			return nil, apperrors.New(apperrors.ErrMalformedSource, fmt.Sprintf("read row %d", s.rows+1), "column %q is not valid UTF-8", s.columns[i])
		}
	}
	s.rows++
	return record, nil
}

// classifyReadErr separates CSV syntax errors (the field count check
// included) from I/O errors of the object body.
func classifyReadErr(op string, err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return apperrors.Wrap(apperrors.ErrMalformedSource, op, err)
	}
	return apperrors.Wrap(apperrors.ErrStorageUnavailable, op, err)
}
