package trace

import (
	"strings"
	"testing"
)

func TestFingerprintSourceReadsOnePerLine(t *testing.T) {
	src := NewFingerprintSource(strings.NewReader("aaa\nbbb\nccc\n"))
	var got []string
	for {
		fp, ok := src.NextFingerprint()
		if !ok {
			break
		}
		got = append(got, fp)
	}
	want := []string{"aaa", "bbb", "ccc"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestFingerprintSourceExhaustionIsSilent(t *testing.T) {
	src := NewFingerprintSource(strings.NewReader("only\n"))
	if _, ok := src.NextFingerprint(); !ok {
		t.Fatalf("expected the first read to succeed")
	}
	_, ok := src.NextFingerprint()
	if ok {
		t.Fatalf("expected ok=false on exhaustion")
	}
}
