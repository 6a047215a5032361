package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ronshih/caftlsim/internal/amu"
)

// TransactionReader streams host transactions from a trace file, one per
// line: "stream,type,lpa,sectors_bitmap,user_ref" where type is R or W.
// Comment lines beginning with '#' and blank lines are skipped.
type TransactionReader struct {
	sc     *bufio.Scanner
	closer io.Closer
	line   int
}

// OpenTransactionFile opens path and returns a TransactionReader over it.
func OpenTransactionFile(path string) (*TransactionReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &TransactionReader{sc: bufio.NewScanner(f), closer: f}, nil
}

// NewTransactionReader wraps an already-open reader (e.g. in tests).
func NewTransactionReader(r io.Reader) *TransactionReader {
	return &TransactionReader{sc: bufio.NewScanner(r)}
}

// Next returns the next transaction, or ok=false at end of file.
func (r *TransactionReader) Next() (t *amu.Transaction, ok bool, err error) {
	for r.sc.Scan() {
		r.line++
		line := strings.TrimSpace(r.sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		t, err := parseTransactionLine(line)
		if err != nil {
			return nil, false, fmt.Errorf("trace: line %d: %w", r.line, err)
		}
		return t, true, nil
	}
	return nil, false, r.sc.Err()
}

func parseTransactionLine(line string) (*amu.Transaction, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 {
		return nil, fmt.Errorf("want 5 comma-separated fields, got %d", len(fields))
	}
	stream, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}
	var typ amu.TransactionType
	switch strings.ToUpper(strings.TrimSpace(fields[1])) {
	case "R", "READ":
		typ = amu.Read
	case "W", "WRITE":
		typ = amu.Write
	default:
		return nil, fmt.Errorf("unknown transaction type %q", fields[1])
	}
	lpa, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("lpa: %w", err)
	}
	bitmap, err := strconv.ParseUint(strings.TrimSpace(fields[3]), 0, 64)
	if err != nil {
		return nil, fmt.Errorf("sectors_bitmap: %w", err)
	}
	ref, err := strconv.ParseUint(strings.TrimSpace(fields[4]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("user_ref: %w", err)
	}
	return &amu.Transaction{
		Stream:  amu.StreamID(stream),
		Type:    typ,
		LPA:     amu.LPA(lpa),
		Sectors: amu.PageStatusBitmap(bitmap),
		UserRef: ref,
	}, nil
}

// Close releases the underlying file, if any.
func (r *TransactionReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
