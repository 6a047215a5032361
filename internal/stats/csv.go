package stats

import (
	"encoding/csv"
	"fmt"
	"os"
)

// Summary is one row of the persisted CSV summary (spec.md §6 "Persisted
// outputs"). No corpus example imports a third-party CSV writer for a
// one-shot summary row like this, so it is built on encoding/csv directly.
type Summary struct {
	FlashSpaceGB    float64
	PageSizeBytes   uint32
	DedupRatePct    float64
	TotalWrites     uint64
	GMTWrites       uint64
	TotalReads      uint64
	ReadBeforeWrite uint64
	UpdateReads     uint64
}

var csvHeader = []string{
	"flash_space_gb", "page_size", "dedup_rate_pct", "total_writes_issued",
	"gmt_writes", "total_reads_issued", "read_before_write_count", "update_read_count",
}

// Summarize builds a Summary from the run's counters.
func (c *Counters) Summarize(flashSpaceGB float64, pageSizeBytes uint32) Summary {
	return Summary{
		FlashSpaceGB:    flashSpaceGB,
		PageSizeBytes:   pageSizeBytes,
		DedupRatePct:    c.DedupRate() * 100,
		TotalWrites:     c.FlashWrites,
		GMTWrites:       c.MappingWrites,
		TotalReads:      c.FlashReads,
		ReadBeforeWrite: c.ReadBeforeWrite,
		UpdateReads:     c.UpdateReads,
	}
}

// AppendCSV appends s as one row to path, writing the header first if the
// file is new or empty.
func AppendCSV(path string, s Summary) error {
	needsHeader := false
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("stats: open summary csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("stats: write csv header: %w", err)
		}
	}
	row := []string{
		fmt.Sprintf("%.6f", s.FlashSpaceGB),
		fmt.Sprintf("%d", s.PageSizeBytes),
		fmt.Sprintf("%.4f", s.DedupRatePct),
		fmt.Sprintf("%d", s.TotalWrites),
		fmt.Sprintf("%d", s.GMTWrites),
		fmt.Sprintf("%d", s.TotalReads),
		fmt.Sprintf("%d", s.ReadBeforeWrite),
		fmt.Sprintf("%d", s.UpdateReads),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("stats: write csv row: %w", err)
	}
	w.Flush()
	return w.Error()
}
