package trace

import (
	"strings"
	"testing"

	"github.com/ronshih/caftlsim/internal/amu"
)

func TestTransactionReaderParsesReadsAndWrites(t *testing.T) {
	r := NewTransactionReader(strings.NewReader(
		"# a comment line\n\n0,R,5,0xFF,1\n0,W,6,255,2\n",
	))
	t1, ok, err := r.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if t1.Type != amu.Read || t1.LPA != 5 || t1.Sectors != 0xFF || t1.UserRef != 1 {
		t.Fatalf("unexpected first transaction: %+v", t1)
	}
	t2, ok, err := r.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if t2.Type != amu.Write || t2.LPA != 6 || t2.Sectors != 255 {
		t.Fatalf("unexpected second transaction: %+v", t2)
	}
	_, ok, err = r.Next()
	if err != nil || ok {
		t.Fatalf("expected end of file, got ok=%v err=%v", ok, err)
	}
}

func TestTransactionReaderRejectsMalformedLine(t *testing.T) {
	r := NewTransactionReader(strings.NewReader("0,R,5\n"))
	_, _, err := r.Next()
	if err == nil {
		t.Fatalf("expected an error for a line with too few fields")
	}
}

func TestTransactionReaderRejectsUnknownType(t *testing.T) {
	r := NewTransactionReader(strings.NewReader("0,X,5,0xFF,1\n"))
	_, _, err := r.Next()
	if err == nil {
		t.Fatalf("expected an error for an unrecognized transaction type")
	}
}
