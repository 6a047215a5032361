package stats

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSummarize(t *testing.T) {
	c := New()
	c.FlashWrites = 100
	c.MappingWrites = 5
	c.FlashReads = 50
	c.ReadBeforeWrite = 2
	c.UpdateReads = 7
	c.DedupTotal = 100
	c.DedupHit = 40

	s := c.Summarize(1.5, 4096)
	if s.TotalWrites != 100 || s.GMTWrites != 5 || s.TotalReads != 50 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	if s.DedupRatePct != 40 {
		t.Fatalf("expected 40%% dedup rate, got %v", s.DedupRatePct)
	}
}

func TestAppendCSVWritesHeaderOnlyOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "summary.csv")

	s1 := Summary{FlashSpaceGB: 1, PageSizeBytes: 4096, DedupRatePct: 10, TotalWrites: 1}
	if err := AppendCSV(path, s1); err != nil {
		t.Fatalf("AppendCSV first: %v", err)
	}
	s2 := Summary{FlashSpaceGB: 2, PageSizeBytes: 4096, DedupRatePct: 20, TotalWrites: 2}
	if err := AppendCSV(path, s2); err != nil {
		t.Fatalf("AppendCSV second: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 1 header + 2 rows = 3 lines, got %d: %q", len(lines), string(data))
	}
	if !strings.HasPrefix(lines[0], "flash_space_gb,") {
		t.Fatalf("expected the first line to be the header, got %q", lines[0])
	}
}
