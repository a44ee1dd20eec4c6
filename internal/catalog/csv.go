package catalog

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Delimiter separates columns in catalog files.
const Delimiter = ';'

// MaxFileBytes bounds a single catalog file read.
const MaxFileBytes = 32 << 20

var (
	// ErrMalformed marks catalog content that could not be parsed.
	ErrMalformed = errors.New("catalog: malformed csv")
	// ErrTooLarge marks catalog files above MaxFileBytes.
	ErrTooLarge = errors.New("catalog: file exceeds size limit")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeRows reads a semicolon separated file with a header row into rows
// keyed by header. A leading UTF-8 BOM is dropped, stray quotes are tolerated
// and every cell is trimmed. Rows whose column count differs from the header
// make the whole file malformed. Empty input yields no rows.
func DecodeRows(r io.Reader) ([]Row, error) {
	br := bufio.NewReader(&cappedReader{r: r, n: MaxFileBytes + 1})
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = Delimiter
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = 0

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, decodeError(err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, decodeError(err)
		}
		row := make(Row, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			value := strings.TrimSpace(record[i])
			if prev, dup := row[name]; dup && value == "" {
				value = prev
			}
			row[name] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeError(err error) error {
	if errors.Is(err, ErrTooLarge) {
		return err
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return fmt.Errorf("%w: line %d: %v", ErrMalformed, pe.Line, pe.Err)
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

// cappedReader fails once more than n bytes have been read.
type cappedReader struct {
	r io.Reader
	n int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.n <= 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > c.n {
		p = p[:c.n]
	}
	n, err := c.r.Read(p)
	c.n -= int64(n)
	return n, err
}
