// Command ftlsim replays a transaction trace against the Address Mapping
// Unit and appends the CSV summary row spec.md §6 names to the -summary file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/schollz/progressbar/v3"

	"github.com/ronshih/caftlsim/internal/amu"
	"github.com/ronshih/caftlsim/internal/collab"
	"github.com/ronshih/caftlsim/internal/collab/simmodel"
	"github.com/ronshih/caftlsim/internal/stats"
	"github.com/ronshih/caftlsim/internal/trace"
)

// ExitError carries a process exit code out of run(), the way the
// teacher's internal/initx.ExitError does for cmd/cc.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("ftlsim: exiting with code %d", e.Code) }

func main() {
	if err := run(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "ftlsim: %v\n", err)
		os.Exit(1)
	}
}

type boolFlag struct {
	v   bool
	set bool
}

func (f *boolFlag) String() string {
	if f.v {
		return "true"
	}
	return "false"
}

func (f *boolFlag) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	f.v, f.set = v, true
	return nil
}

func (f *boolFlag) IsBoolFlag() bool { return true }

type uint64Flag struct {
	v   uint64
	set bool
}

func (f *uint64Flag) String() string { return strconv.FormatUint(f.v, 10) }

func (f *uint64Flag) Set(s string) error {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	f.v, f.set = v, true
	return nil
}

func run() error {
	configPath := flag.String("config", "config/caftlsim.yml", "Path to the simulator config file")
	tracePath := flag.String("trace", "", "Transaction trace file to replay")
	fpPath := flag.String("fingerprints", "", "Fingerprint trace file, one fingerprint per logical write")
	summaryPath := flag.String("summary", "summary.csv", "Path to append the CSV run summary to")
	var cmtBytesFlag uint64Flag
	flag.Var(&cmtBytesFlag, "cmt-capacity-in-bytes", "Override the config's CMT capacity")
	var quietFlag boolFlag
	flag.Var(&quietFlag, "quiet", "Suppress the terminal progress bar")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *tracePath == "" {
		return &ExitError{Code: 2}
	}

	cfg, err := amu.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmtBytesFlag.set {
		cfg.CMTCapacityInBytes = cmtBytesFlag.v
	}
	log.Info("loaded config", "streams", len(cfg.Streams), "ideal_mapping", cfg.IdealMappingTable)

	fpSources := make([]collab.FingerprintSource, len(cfg.Streams))
	if *fpPath != "" {
		for i := range cfg.Streams {
			src, err := trace.OpenFingerprintFile(*fpPath)
			if err != nil {
				return fmt.Errorf("open fingerprint file: %w", err)
			}
			defer src.Close()
			fpSources[i] = src
		}
	} else {
		for i := range cfg.Streams {
			fpSources[i] = trace.NewFingerprintSource(os.Stdin)
		}
	}

	clock := simmodel.NewClock()
	bm := simmodel.NewBlockManager(cfg.Blocks, cfg.PagesPerBlock)
	fc := simmodel.NewFlashController(bm)
	tsu := simmodel.NewTSU(fc)
	gcwl := simmodel.NewGCWearLeveling(bm, 8)
	counters := stats.New()

	engine, err := amu.Build(cfg, amu.Collaborators{
		TSU: tsu, BlockManager: bm, FlashCtrl: fc, GCWL: gcwl,
		Clock: clock, Stats: counters, Log: log, Fingerprints: fpSources,
	})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	for id := range cfg.Streams {
		if d, ok := engine.Domain(amu.StreamID(id)); ok {
			if err := engine.StoreMappingTableOnFlashAtStart(d); err != nil {
				return fmt.Errorf("prime mapping table for stream %d: %w", id, err)
			}
		}
	}

	tr, err := trace.OpenTransactionFile(*tracePath)
	if err != nil {
		return fmt.Errorf("open transaction trace: %w", err)
	}
	defer tr.Close()

	var bar *progressbar.ProgressBar
	if !quietFlag.v {
		bar = progressbar.Default(-1, "replaying trace")
		defer bar.Close()
	}

	var batch []*amu.Transaction
	const batchSize = 64
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := engine.TranslateAndDispatch(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for {
		t, ok, err := tr.Next()
		if err != nil {
			return fmt.Errorf("read transaction: %w", err)
		}
		if !ok {
			break
		}
		batch = append(batch, t)
		if bar != nil {
			bar.Add(1)
		}
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return fmt.Errorf("dispatch batch: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		return fmt.Errorf("dispatch final batch: %w", err)
	}

	flashSpaceGB := float64(cfg.Channels) * float64(cfg.Chips) * float64(cfg.Dies) *
		float64(cfg.Planes) * float64(cfg.Blocks) * float64(cfg.PagesPerBlock) *
		float64(cfg.PageSizeInBytes) / 1e9
	summary := counters.Summarize(flashSpaceGB, cfg.PageSizeInBytes)
	if err := stats.AppendCSV(*summaryPath, summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	log.Info("run complete", "dedup_rate_pct", summary.DedupRatePct, "total_writes", summary.TotalWrites)
	return nil
}
