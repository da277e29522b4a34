package record

import (
	"strings"

	"turbodecode/internal/errors"
	"turbodecode/pkg/exception"
)

const (
	DefaultDelimiter byte = ','
	DefaultSuffixLen      = 5
	DefaultMarker    byte = '\\'
)

var (
	errNoDelimiter = errors.New("no delimiter")
	errShortField  = errors.New("symbol field shorter than suffix")
	errKeyBreak    = errors.New("key contains a carriage return")
)

// Record is one accepted input line.
type Record struct {
	Key    string
	Symbol string
}

// Parser splits and cleans raw input lines.
type Parser struct {
	Delimiter byte
	SuffixLen int
	Marker    byte
}

// DefaultParser returns the parser for the comma separated source format.
func DefaultParser() Parser {
	return Parser{
		Delimiter: DefaultDelimiter,
		SuffixLen: DefaultSuffixLen,
		Marker:    DefaultMarker,
	}
}

func (p Parser) withDefaults() Parser {
	if p.Delimiter == 0 {
		p.Delimiter = DefaultDelimiter
	}
	if p.SuffixLen == 0 {
		p.SuffixLen = DefaultSuffixLen
	}
	if p.Marker == 0 {
		p.Marker = DefaultMarker
	}
	return p
}

// Validate checks if the parser is usable.
func (p Parser) Validate() error {
	p = p.withDefaults()
	if p.SuffixLen < 0 {
		return errors.New("invalid parser: SuffixLen must be >= 0")
	}
	if p.Delimiter == p.Marker {
		return errors.New("invalid parser: Delimiter and Marker must differ")
	}
	if p.Delimiter == '\n' || p.Marker == '\n' {
		return errors.New("invalid parser: newline is reserved")
	}
	return nil
}

// Parse splits line at the first delimiter and cleans the symbol field.
// Rejected lines return an error matching exception.ErrMalformedRecord.
func (p Parser) Parse(line string) (Record, error) {
	p = p.withDefaults()
	idx := strings.IndexByte(line, p.Delimiter)
	if idx < 0 {
		return Record{}, errors.Join(exception.ErrMalformedRecord, errNoDelimiter)
	}
	if strings.IndexByte(line[:idx], '\r') >= 0 {
		return Record{}, errors.Join(exception.ErrMalformedRecord, errKeyBreak)
	}

	field, err := StripSuffix(line[idx+1:], p.SuffixLen)
	if err != nil {
		return Record{}, err
	}

	return Record{
		Key:    line[:idx],
		Symbol: Clean(field, p.Marker),
	}, nil
}

// StripSuffix removes exactly n trailing bytes from field.
func StripSuffix(field string, n int) (string, error) {
	if n < 0 || len(field) < n {
		return "", errors.Join(exception.ErrMalformedRecord, errShortField)
	}
	return field[:len(field)-n], nil
}

// Clean removes every trailing continuation marker. Clean is idempotent.
func Clean(s string, marker byte) string {
	end := len(s)
	for end > 0 && s[end-1] == marker {
		end--
	}
	return s[:end]
}
